package vm

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/corvidlang/corvid/compiler"
)

// ---------------------------------------------------------------------------
// Class finalization
// ---------------------------------------------------------------------------

// FinalizeClasses resolves superclasses, fixes instance layouts and
// materializes methods for every pending class. Failures are collected per
// class; classes that fail stay pending and may be retried after the cause
// is fixed.
func (ctx *ExecutionContext) FinalizeClasses() error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	var result *multierror.Error
	var remaining []*Class
	for _, c := range ctx.pending {
		if err := ctx.finalizeClass(c); err != nil {
			result = multierror.Append(result, err)
			remaining = append(remaining, c)
		}
	}
	ctx.pending = remaining
	return result.ErrorOrNil()
}

// finalizeClass finalizes one class, recursing into its superclass first.
// Called with ctx.mu held.
func (ctx *ExecutionContext) finalizeClass(c *Class) error {
	switch c.State() {
	case ClassFinalized:
		return nil
	case ClassFinalizing:
		return &CompileError{Message: fmt.Sprintf("cyclic inheritance involving '%s'", c.name)}
	}
	c.state.Store(int32(ClassFinalizing))

	// Resolve and finalize the superclass first so its layout is fixed.
	base := 0
	if c.decl.Superclass != "" {
		super := c.library.LookupClass(c.decl.Superclass)
		if super == nil {
			c.state.Store(int32(ClassPending))
			return &CompileError{Message: fmt.Sprintf("unknown superclass '%s' of '%s'", c.decl.Superclass, c.name)}
		}
		if err := ctx.finalizeClass(super); err != nil {
			c.state.Store(int32(ClassPending))
			return err
		}
		c.super = super
		base = super.numSlots
	}

	// Instance layout: superclass slots first, then this class's fields in
	// declaration order. Static fields get lazily initialized cells instead
	// of slots. Reset so a retried finalization starts clean.
	c.fields = nil
	c.staticVars = make(map[string]*GlobalVar)
	for _, fd := range c.decl.Fields {
		if fd.IsStatic {
			if _, dup := c.staticVars[fd.Name]; dup {
				c.state.Store(int32(ClassPending))
				return &CompileError{Message: fmt.Sprintf("duplicate static field '%s.%s'", c.name, fd.Name)}
			}
			c.staticVars[fd.Name] = &GlobalVar{Name: c.name + "." + fd.Name, Init: fd.Init}
			continue
		}
		for i := range c.fields {
			if c.fields[i].Name == fd.Name {
				c.state.Store(int32(ClassPending))
				return &CompileError{Message: fmt.Sprintf("duplicate field '%s.%s'", c.name, fd.Name)}
			}
		}
		c.fields = append(c.fields, Field{Name: fd.Name, Slot: base + len(c.fields), Init: fd.Init})
	}
	c.numSlots = base + len(c.fields)

	c.methods = make(map[string]*Function)
	c.statics = make(map[string]*Function)
	for _, md := range c.decl.Methods {
		fn := newFunction(md, c, c.library, c.script)
		if md.IsStatic {
			if _, dup := c.statics[md.Name]; dup {
				c.state.Store(int32(ClassPending))
				return &CompileError{Message: fmt.Sprintf("duplicate static method '%s.%s'", c.name, md.Name)}
			}
			c.statics[md.Name] = fn
		} else {
			if _, dup := c.methods[md.Name]; dup {
				c.state.Store(int32(ClassPending))
				return &CompileError{Message: fmt.Sprintf("duplicate method '%s.%s'", c.name, md.Name)}
			}
			c.methods[md.Name] = fn
		}
	}

	c.initFn = buildInitFunction(c)
	c.state.Store(int32(ClassFinalized))
	ctx.log.Debugf("finalized class %s (%d slots)", c.name, c.numSlots)
	return nil
}

// buildInitFunction synthesizes a function that runs this class's own field
// initializers against a fresh instance. Instantiation runs these along the
// superclass chain, root first. Returns nil when no field has an
// initializer.
func buildInitFunction(c *Class) *Function {
	var body []compiler.Stmt
	for i := range c.fields {
		f := &c.fields[i]
		if f.Init == nil {
			continue
		}
		sp := f.Init.Span()
		body = append(body, &compiler.ExprStmt{
			SpanVal: sp,
			Expr: &compiler.AssignExpr{
				SpanVal: sp,
				Target: &compiler.MemberAccess{
					SpanVal:  sp,
					Receiver: &compiler.ThisExpr{SpanVal: sp},
					Name:     f.Name,
				},
				Value: f.Init,
			},
		})
	}
	if len(body) == 0 {
		return nil
	}
	return &Function{
		name:    "<init>",
		owner:   c,
		library: c.library,
		script:  c.script,
		body:    body,
	}
}
