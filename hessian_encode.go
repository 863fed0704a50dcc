package dubbo

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"
)

// Hessian2-style tag bytes used by the encoder (spec.md §4.1). Named after
// the constants their source ecosystem uses (BC_* for "byte code"), the
// same naming convention the original Python encoder uses for its
// constants module.
const (
	tagTrue  = byte('T')
	tagFalse = byte('F')

	bcIntZero      = 0x90
	intDirectMin   = -16
	intDirectMax   = 47
	bcIntByteZero  = 0xc8
	intByteMin     = -2048
	intByteMax     = 2047
	bcIntShortZero = 0xd4
	intShortMin    = -262144
	intShortMax    = 262143
	tagInt32       = byte('I')
	tagInt64       = byte('L')

	bcDoubleZero  = 0x5b
	bcDoubleOne   = 0x5c
	bcDoubleByte  = 0x5d
	bcDoubleShort = 0x5e
	bcDoubleMill  = 0x5f
	tagDouble     = byte('D')

	bcStringDirect  = 0x00
	stringDirectMax = 31
	bcStringShort   = 0x30
	stringShortMax  = 1023
	tagString       = byte('S')

	tagClassDef   = byte('C')
	tagObject     = byte('O')
	compactRefMax = 15
	compactRefTag = 0x60

	attachStart = byte('H')
	attachEnd   = byte('Z')
)

// classTable interns class names within the scope of a single Request, per
// spec.md §4.1: "Class definitions are interned per Request ... Contract:
// for a fixed sequence of argument Values, two encodings produced on
// different Request instances are byte-for-byte equal." A fresh classTable
// is therefore created per call to EncodeRequest/EncodeRequestBody.
type classTable struct {
	order []string
	index map[string]int
	// fields holds each interned class's declared field names, indexed by
	// class id. Populated only by the decoder (decodeClassDef), where a
	// later compact reference or 'O' form must recover the field list to
	// know how many values to read; the encoder never reads it.
	fields [][]string
}

func newClassTable() *classTable {
	return &classTable{index: make(map[string]int)}
}

// intern returns the class's id and whether this is its first occurrence.
func (t *classTable) intern(className string) (id int, isNew bool) {
	if id, ok := t.index[className]; ok {
		return id, false
	}
	id = len(t.order)
	t.order = append(t.order, className)
	t.index[className] = id
	return id, true
}

// RequestParam is the immutable invocation request of spec.md §3.
type RequestParam struct {
	DubboVersion string
	Path         string // Java interface FQN; also used as the "interface" attachment.
	Version      string
	Group        string
	Method       string
	Arguments    []Value
}

// EncodeRequestBody serializes param into the Dubbo request body: dubbo
// version, path, version, method, parameter-type descriptor, each argument,
// then the attachments map, in the order fixed by spec.md §4.1.
func EncodeRequestBody(param *RequestParam) ([]byte, error) {
	descriptor, err := buildParameterDescriptor(param.Arguments)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	ct := newClassTable()

	for _, s := range []string{param.DubboVersion, param.Path, param.Version, param.Method, descriptor} {
		if err := encodeValue(&buf, StringValue(s), ct); err != nil {
			return nil, err
		}
	}

	for _, arg := range param.Arguments {
		if err := encodeValue(&buf, arg, ct); err != nil {
			return nil, err
		}
	}

	if err := encodeAttachments(&buf, param, ct); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EncodeRequest serializes param into a full Dubbo frame: the 12-byte
// DefaultRequestMeta prefix (with a zero request-id placeholder the framer
// patches at send time), a 4-byte big-endian body length, and the body.
func EncodeRequest(param *RequestParam) ([]byte, error) {
	body, err := EncodeRequestBody(param)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, len(DefaultRequestMeta)+4+len(body))
	copy(frame, DefaultRequestMeta[:])
	binary.BigEndian.PutUint32(frame[len(DefaultRequestMeta):], uint32(len(body)))
	copy(frame[len(DefaultRequestMeta)+4:], body)
	return frame, nil
}

// encodeAttachments writes exactly {path, interface, version}, per
// spec.md §4.1 and original_source/dubbo/codec/encoder.py's
// _encode_request_body (attachments = {'path': ..., 'interface': ...,
// 'version': ...}). Group is not part of the attachment map.
func encodeAttachments(buf *bytes.Buffer, param *RequestParam, ct *classTable) error {
	buf.WriteByte(attachStart)
	attachments := []struct{ key, value string }{
		{"path", param.Path},
		{"interface", param.Path},
		{"version", param.Version},
	}
	for _, kv := range attachments {
		if err := encodeValue(buf, StringValue(kv.key), ct); err != nil {
			return err
		}
		if err := encodeValue(buf, StringValue(kv.value), ct); err != nil {
			return err
		}
	}
	buf.WriteByte(attachEnd)
	return nil
}

// buildParameterDescriptor builds the JVM-descriptor-syntax string for the
// argument sequence (spec.md §4.1).
func buildParameterDescriptor(args []Value) (string, error) {
	var b strings.Builder
	for _, arg := range args {
		switch v := arg.(type) {
		case BoolValue:
			b.WriteByte('Z')
		case Int32Value:
			b.WriteByte('I')
		case Int64Value:
			b.WriteByte('J')
		case DoubleValue:
			b.WriteByte('D')
		case StringValue:
			b.WriteString("Ljava/lang/String;")
		case *ObjectValue:
			b.WriteByte('L')
			b.WriteString(strings.ReplaceAll(v.ClassName, ".", "/"))
			b.WriteByte(';')
		default:
			return "", newHessianTypeError(arg)
		}
	}
	return b.String(), nil
}

// encodeValue encodes a single Value per the rules of spec.md §4.1.
func encodeValue(buf *bytes.Buffer, v Value, ct *classTable) error {
	switch val := v.(type) {
	case BoolValue:
		if val {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
		return nil
	case Int32Value:
		encodeInt32(buf, int32(val))
		return nil
	case Int64Value:
		buf.WriteByte(tagInt64)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(val))
		buf.Write(tmp[:])
		return nil
	case DoubleValue:
		encodeDouble(buf, float64(val))
		return nil
	case StringValue:
		return encodeString(buf, string(val))
	case *ObjectValue:
		return encodeObject(buf, val, ct)
	default:
		return newHessianTypeError(v)
	}
}

func encodeInt32(buf *bytes.Buffer, v int32) {
	switch {
	case v >= intDirectMin && v <= intDirectMax:
		buf.WriteByte(byte(v + bcIntZero))
	case v >= intByteMin && v <= intByteMax:
		buf.WriteByte(byte(bcIntByteZero + (v >> 8)))
		buf.WriteByte(byte(v))
	case v >= intShortMin && v <= intShortMax:
		buf.WriteByte(byte(bcIntShortZero + (v >> 16)))
		buf.WriteByte(byte(v >> 8))
		buf.WriteByte(byte(v))
	default:
		buf.WriteByte(tagInt32)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(v))
		buf.Write(tmp[:])
	}
}

func encodeDouble(buf *bytes.Buffer, v float64) {
	if intVal := int64(v); float64(intVal) == v {
		switch {
		case intVal == 0:
			buf.WriteByte(bcDoubleZero)
			return
		case intVal == 1:
			buf.WriteByte(bcDoubleOne)
			return
		case intVal >= -0x80 && intVal < 0x80:
			buf.WriteByte(bcDoubleByte)
			buf.WriteByte(byte(intVal))
			return
		case intVal >= -0x8000 && intVal < 0x8000:
			buf.WriteByte(bcDoubleShort)
			buf.WriteByte(byte(intVal >> 8))
			buf.WriteByte(byte(intVal))
			return
		}
	}

	mills := int64(v * 1000)
	if 0.001*float64(mills) == v && mills >= math.MinInt32 && mills <= math.MaxInt32 {
		buf.WriteByte(bcDoubleMill)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(int32(mills)))
		buf.Write(tmp[:])
		return
	}

	buf.WriteByte(tagDouble)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

// encodeString writes the BC_STRING_* / 'S' form. Length is the number of
// Unicode code points, not bytes (spec.md §4.1, §9: "Hessian2 counts code
// points, not bytes, for short strings").
func encodeString(buf *bytes.Buffer, s string) error {
	length := utf8.RuneCountInString(s)
	switch {
	case length <= stringDirectMax:
		buf.WriteByte(byte(bcStringDirect + length))
	case length <= stringShortMax:
		buf.WriteByte(byte(bcStringShort + (length >> 8)))
		buf.WriteByte(byte(length))
	default:
		buf.WriteByte(tagString)
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], uint16(length))
		buf.Write(tmp[:])
	}
	buf.WriteString(s)
	return nil
}

func encodeObject(buf *bytes.Buffer, obj *ObjectValue, ct *classTable) error {
	id, isNew := ct.intern(obj.ClassName)
	if isNew {
		buf.WriteByte(tagClassDef)
		if err := encodeString(buf, obj.ClassName); err != nil {
			return err
		}
		encodeInt32(buf, int32(len(obj.Fields)))
		for _, f := range obj.Fields {
			if err := encodeString(buf, f.Name); err != nil {
				return err
			}
		}
	}

	if id <= compactRefMax {
		buf.WriteByte(byte(compactRefTag + id))
	} else {
		buf.WriteByte(tagObject)
		encodeInt32(buf, int32(id))
	}

	for _, f := range obj.Fields {
		if err := encodeValue(buf, f.Value, ct); err != nil {
			return err
		}
	}
	return nil
}

// EncodeValue encodes a single Value in isolation, with its own
// request-scoped class table. It exists for the round-trip testable
// property of spec.md §8 (decode(encodeBody(v)) == v) and is not used on
// the request path, where all arguments share one classTable.
func EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, newClassTable()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
