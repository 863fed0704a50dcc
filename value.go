package dubbo

import "math"

// Value is the tagged sum accepted and produced by the Hessian2-style
// codec: Bool | Int32 | Int64 | Double | String | Object. The interface
// is deliberately closed — only the types declared in this file may
// implement it — so the encoder can exhaustively switch on concrete type
// instead of dispatching on reflect.Kind.
type Value interface {
	isValue()
}

// BoolValue is the Value variant for a Java boolean.
type BoolValue bool

func (BoolValue) isValue() {}

// Int32Value is the Value variant for an integer within signed 32-bit range.
type Int32Value int32

func (Int32Value) isValue() {}

// Int64Value is the Value variant for an integer outside signed 32-bit range.
type Int64Value int64

func (Int64Value) isValue() {}

// DoubleValue is the Value variant for a floating point number. There is no
// separate Float variant: every host-language float is widened to Double.
type DoubleValue float64

func (DoubleValue) isValue() {}

// StringValue is the Value variant for a Java string.
type StringValue string

func (StringValue) isValue() {}

// Field is one entry of an Object's ordered name->Value mapping. A plain Go
// map does not preserve insertion order, and the wire encoding of an Object
// is order-sensitive (field values are emitted in declared order), so
// Object keeps its fields in a slice instead.
type Field struct {
	Name  string
	Value Value
}

// ObjectValue is the Value variant for a Java object: a class name plus an
// ordered name->Value mapping. Two ObjectValues with the same ClassName are
// treated by the encoder as instances of the same class for the purposes of
// class-table interning (see hessian_encode.go).
type ObjectValue struct {
	ClassName string
	Fields    []Field
}

func (*ObjectValue) isValue() {}

// NewObject creates an empty object of the given Java class name.
func NewObject(className string) *ObjectValue {
	return &ObjectValue{ClassName: className}
}

// Set assigns the field name to value, preserving the position of the field
// if it was already present, or appending it otherwise. It returns the
// receiver so calls can be chained.
func (o *ObjectValue) Set(name string, value Value) *ObjectValue {
	for i := range o.Fields {
		if o.Fields[i].Name == name {
			o.Fields[i].Value = value
			return o
		}
	}
	o.Fields = append(o.Fields, Field{Name: name, Value: value})
	return o
}

// Get returns the value stored under name and whether it was present.
func (o *ObjectValue) Get(name string) (Value, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Bool wraps a bool as a Value.
func Bool(v bool) Value {
	return BoolValue(v)
}

// Int wraps an integer as a Value, demoting it to Int32Value when it fits
// in the signed 32-bit range and to Int64Value otherwise, per spec.md §3.
func Int(v int64) Value {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return Int32Value(int32(v))
	}
	return Int64Value(v)
}

// Double wraps a float64 as a Value.
func Double(v float64) Value {
	return DoubleValue(v)
}

// String wraps a string as a Value.
func String(v string) Value {
	return StringValue(v)
}
