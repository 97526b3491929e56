package vm

import "github.com/corvidlang/corvid/compiler"

// Script is one parsed source unit. Functions keep a reference to their
// script so declaration source can be recovered verbatim.
type Script struct {
	URL    string
	Source string
	prog   *compiler.Program
}

// Program returns the parsed program for this script.
func (s *Script) Program() *compiler.Program {
	return s.prog
}
