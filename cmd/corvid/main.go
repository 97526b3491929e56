// Corvid CLI - loads .cv sources and runs them on the tiered VM.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/corvidlang/corvid/manifest"
	"github.com/corvidlang/corvid/vm"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 quiet, 2 debug)")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	mainEntry := flag.String("m", "", "Main entry point (e.g., 'App.run' or just 'main')")
	workers := flag.Int("workers", 0, "Background compiler threads (overrides manifest)")
	hotThreshold := flag.Uint64("hot", 0, "Invocation count that triggers optimization (overrides manifest)")
	report := flag.Bool("report", false, "Print a CBOR context report to stdout on exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: corvid [options] [paths...]\n\n")
		fmt.Fprintf(os.Stderr, "Loads .cv files from the given paths (or the corvid.toml source dirs) and runs them.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  corvid -i                # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  corvid ./src -m main     # Load src/, run 'main'\n")
		fmt.Fprintf(os.Stderr, "  corvid ./src -m App.run  # Load src/, run static App.run\n")
	}
	flag.Parse()

	// A manifest, when present, supplies defaults; flags win.
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	paths := flag.Args()
	entry := *mainEntry
	if m != nil {
		if len(paths) == 0 {
			paths = m.SourceDirPaths()
		}
		if entry == "" {
			entry = m.Source.Entry
		}
	}
	opts, logLevel := resolveRuntime(m, *workers, *hotThreshold, *verbosity)
	commonlog.Configure(logLevel, nil)

	ctx := vm.NewContext(opts)
	defer ctx.Close()

	for _, path := range paths {
		if err := loadPath(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := ctx.FinalizeClasses(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	in := vm.NewInterpreter(ctx)

	if *interactive || (len(paths) == 0 && entry == "") {
		runREPL(in)
	} else if entry != "" {
		result, err := runMain(in, entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !result.IsNull() {
			fmt.Println(result)
		}
	}

	if *report {
		data, err := vm.MarshalReport(ctx.Report(false))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	}
}

// resolveRuntime merges manifest runtime settings with command-line flags.
// The manifest supplies defaults; a nonzero flag wins. The second return
// value is the log verbosity.
func resolveRuntime(m *manifest.Manifest, workers int, hot uint64, verbosity int) (vm.Options, int) {
	opts := vm.DefaultOptions()
	logLevel := 0
	if m != nil {
		opts.Workers = m.Runtime.Workers
		opts.HotThreshold = m.Runtime.HotThreshold
		logLevel = m.Runtime.Verbosity
	}
	if workers > 0 {
		opts.Workers = workers
	}
	if hot > 0 {
		opts.HotThreshold = hot
	}
	if verbosity > 0 {
		logLevel = verbosity
	}
	return opts, logLevel
}

// loadPath loads .cv files from a file or directory into the context.
func loadPath(ctx *vm.ExecutionContext, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %q: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && strings.HasSuffix(p, ".cv") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking %q: %w", path, err)
		}
	} else {
		files = append(files, path)
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := ctx.LoadScript(file, string(content)); err != nil {
			return fmt.Errorf("loading %q: %w", file, err)
		}
	}
	return nil
}

// runMain resolves and invokes the entry point: "Class.method" names a
// static method, a bare name a top-level function.
func runMain(in *vm.Interpreter, entry string) (vm.Value, error) {
	ctx := in.Context()
	lib := ctx.RootLibrary()

	if className, methodName, ok := strings.Cut(entry, "."); ok {
		cls := lib.LookupClass(className)
		if cls == nil {
			return vm.Null, fmt.Errorf("class %q not found", className)
		}
		fn := cls.LookupStatic(methodName)
		if fn == nil {
			return vm.Null, fmt.Errorf("static method %q not found on %s", methodName, className)
		}
		return in.CallFunction(fn)
	}

	fn := lib.LookupFunction(entry)
	if fn == nil {
		return vm.Null, fmt.Errorf("function %q not found", entry)
	}
	return in.CallFunction(fn)
}

// runREPL reads expressions from stdin and evaluates them in library scope.
func runREPL(in *vm.Interpreter) {
	fmt.Println("Corvid REPL (type 'exit' to quit)")
	fmt.Println()

	scope := in.Context().LibraryScope()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(">> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		result, err := in.Evaluate(line, scope)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		fmt.Println(result)
	}
	fmt.Println()
}
