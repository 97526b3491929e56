package vm

// ---------------------------------------------------------------------------
// Object: heap-allocated Corvid instance
// ---------------------------------------------------------------------------

// Object is a heap-allocated instance of a Corvid class.
//
// Objects use a hybrid slot layout: 4 inline slots for instances with at
// most four fields, plus an overflow slice for larger layouts. Most classes
// fit the inline slots, avoiding a second allocation.
type Object struct {
	class *Class

	slot0 Value
	slot1 Value
	slot2 Value
	slot3 Value

	overflow []Value
}

// NumInlineSlots is the number of slots stored directly in the Object struct.
const NumInlineSlots = 4

// NewObject creates an instance of class with numSlots slots, all null.
func NewObject(class *Class, numSlots int) *Object {
	obj := &Object{class: class}
	if numSlots > NumInlineSlots {
		obj.overflow = make([]Value, numSlots-NumInlineSlots)
	}
	return obj
}

// Class returns the object's class.
func (obj *Object) Class() *Class {
	return obj.class
}

// ClassName returns the name of the object's class, or "?" if detached.
func (obj *Object) ClassName() string {
	if obj.class == nil {
		return "?"
	}
	return obj.class.name
}

// NumSlots returns the total number of slots in this object.
func (obj *Object) NumSlots() int {
	return NumInlineSlots + len(obj.overflow)
}

// GetSlot returns the value at the given slot index.
// Panics if index is out of range.
func (obj *Object) GetSlot(index int) Value {
	switch index {
	case 0:
		return obj.slot0
	case 1:
		return obj.slot1
	case 2:
		return obj.slot2
	case 3:
		return obj.slot3
	default:
		overflowIdx := index - NumInlineSlots
		if overflowIdx < 0 || overflowIdx >= len(obj.overflow) {
			panic("Object.GetSlot: index out of range")
		}
		return obj.overflow[overflowIdx]
	}
}

// SetSlot sets the value at the given slot index.
// Panics if index is out of range.
func (obj *Object) SetSlot(index int, value Value) {
	switch index {
	case 0:
		obj.slot0 = value
	case 1:
		obj.slot1 = value
	case 2:
		obj.slot2 = value
	case 3:
		obj.slot3 = value
	default:
		overflowIdx := index - NumInlineSlots
		if overflowIdx < 0 || overflowIdx >= len(obj.overflow) {
			panic("Object.SetSlot: index out of range")
		}
		obj.overflow[overflowIdx] = value
	}
}

// ForEachSlot calls fn for each slot in the object.
func (obj *Object) ForEachSlot(fn func(index int, value Value)) {
	fn(0, obj.slot0)
	fn(1, obj.slot1)
	fn(2, obj.slot2)
	fn(3, obj.slot3)
	for i, v := range obj.overflow {
		fn(NumInlineSlots+i, v)
	}
}
