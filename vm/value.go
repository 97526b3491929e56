package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: runtime representation of Corvid values
// ---------------------------------------------------------------------------

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindObject
	KindClosure
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "object", "closure"}

// String returns the name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a tagged Corvid value. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	obj  *Object
	fn   *Closure
}

// Null is the null value.
var Null = Value{}

// True and False are the boolean values.
var (
	True  = Value{kind: KindBool, i: 1}
	False = Value{kind: KindBool}
)

// IntValue creates an integer value.
func IntValue(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// FloatValue creates a float value.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// StringValue creates a string value.
func StringValue(s string) Value {
	return Value{kind: KindString, s: s}
}

// BoolValue creates a boolean value.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// ObjectValue creates a value referencing a heap object.
func ObjectValue(obj *Object) Value {
	return Value{kind: KindObject, obj: obj}
}

// ClosureValue creates a value referencing a closure.
func ClosureValue(fn *Closure) Value {
	return Value{kind: KindClosure, fn: fn}
}

// Kind returns the value's runtime kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true if v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsBool returns true if v is a boolean.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsInt returns true if v is an integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsFloat returns true if v is a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsString returns true if v is a string.
func (v Value) IsString() bool { return v.kind == KindString }

// IsObject returns true if v references a heap object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsClosure returns true if v references a closure.
func (v Value) IsClosure() bool { return v.kind == KindClosure }

// AsInt returns the integer payload. Valid only when IsInt.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the float payload. Valid only when IsFloat.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the string payload. Valid only when IsString.
func (v Value) AsString() string { return v.s }

// AsBool returns the boolean payload. Valid only when IsBool.
func (v Value) AsBool() bool { return v.i != 0 }

// AsObject returns the object payload, or nil.
func (v Value) AsObject() *Object { return v.obj }

// AsClosure returns the closure payload, or nil.
func (v Value) AsClosure() *Closure { return v.fn }

// Truthy reports whether v counts as true in a condition. Only the boolean
// true is truthy; conditions on any other kind are a runtime error caught by
// the interpreter before calling this.
func (v Value) Truthy() bool {
	return v.kind == KindBool && v.i != 0
}

// Equals reports structural equality between two values. Objects and
// closures compare by identity.
func (v Value) Equals(w Value) bool {
	if v.kind != w.kind {
		// int/float cross-comparison
		if v.kind == KindInt && w.kind == KindFloat {
			return float64(v.i) == w.f
		}
		if v.kind == KindFloat && w.kind == KindInt {
			return v.f == float64(w.i)
		}
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool, KindInt:
		return v.i == w.i
	case KindFloat:
		return v.f == w.f
	case KindString:
		return v.s == w.s
	case KindObject:
		return v.obj == w.obj
	case KindClosure:
		return v.fn == w.fn
	}
	return false
}

// String renders the value for display and interpolation.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.i != 0 {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindObject:
		if v.obj == nil {
			return "null"
		}
		return fmt.Sprintf("instance of %s", v.obj.ClassName())
	case KindClosure:
		if v.fn == nil {
			return "null"
		}
		return fmt.Sprintf("closure %s", v.fn.Fn.Name())
	}
	return "?"
}

// Closure pairs a compiled function with values captured at creation time.
// Captures are copied by value; mutation of an enclosing local after the
// closure is created is not observed.
type Closure struct {
	Fn       *Function
	Captures []Value
}
