package dubbo

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
)

// DecodeValue decodes a single Value encoded by EncodeValue/encodeValue,
// with its own class table. This is the symmetric inverse referenced by
// spec.md §4.2/§8's round-trip property: decode(encodeBody(v)) == v.
func DecodeValue(data []byte) (Value, error) {
	r := bufio.NewReader(bytes.NewReader(data))
	return decodeValue(r, newClassTable())
}

// decodeValue reads one value from r, resolving/interning object class
// definitions against ct. It tolerates the compact numeric and class-table
// reference forms described in spec.md §4.1/§4.2, since a Java peer may
// legitimately emit any of them.
func decodeValue(r *bufio.Reader, ct *classTable) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("dubbo: hessian: %w", err)
	}

	switch {
	case tag == tagTrue:
		return BoolValue(true), nil
	case tag == tagFalse:
		return BoolValue(false), nil

	case tag >= 0x80 && tag <= 0xbf: // compact int, direct
		return Int32Value(int32(tag) - bcIntZero), nil
	case tag >= 0xc0 && tag <= 0xcf: // compact int, byte form
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		hi := int32(tag) - bcIntByteZero
		return Int32Value((hi << 8) | int32(b2)), nil
	case tag >= 0xd0 && tag <= 0xd7: // compact int, short form
		b2, err := readN(r, 2)
		if err != nil {
			return nil, err
		}
		hi := int32(tag) - bcIntShortZero
		return Int32Value((hi << 16) | int32(b2[0])<<8 | int32(b2[1])), nil
	case tag == tagInt32:
		b, err := readN(r, 4)
		if err != nil {
			return nil, err
		}
		return Int32Value(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))), nil
	case tag == tagInt64:
		b, err := readN(r, 8)
		if err != nil {
			return nil, err
		}
		return Int64Value(int64(beUint64(b))), nil

	case tag == bcDoubleZero:
		return DoubleValue(0), nil
	case tag == bcDoubleOne:
		return DoubleValue(1), nil
	case tag == bcDoubleByte:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return DoubleValue(float64(int8(b))), nil
	case tag == bcDoubleShort:
		b, err := readN(r, 2)
		if err != nil {
			return nil, err
		}
		return DoubleValue(float64(int16(uint16(b[0])<<8 | uint16(b[1])))), nil
	case tag == bcDoubleMill:
		b, err := readN(r, 4)
		if err != nil {
			return nil, err
		}
		mills := int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
		return DoubleValue(0.001 * float64(mills)), nil
	case tag == tagDouble:
		b, err := readN(r, 8)
		if err != nil {
			return nil, err
		}
		return DoubleValue(math.Float64frombits(beUint64(b))), nil

	case tag <= 0x1f: // string, direct
		return decodeStringBody(r, int(tag))
	case tag >= 0x30 && tag <= 0x33: // string, short form
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		length := (int(tag-bcStringShort) << 8) | int(b2)
		return decodeStringBody(r, length)
	case tag == tagString:
		b, err := readN(r, 2)
		if err != nil {
			return nil, err
		}
		length := int(b[0])<<8 | int(b[1])
		return decodeStringBody(r, length)

	case tag == tagClassDef:
		if err := decodeClassDef(r, ct); err != nil {
			return nil, err
		}
		return decodeValue(r, ct)
	case tag >= compactRefTag && tag <= compactRefTag+compactRefMax:
		return decodeObjectInstance(r, int(tag)-compactRefTag, ct)
	case tag == tagObject:
		idVal, err := decodeValue(r, ct)
		if err != nil {
			return nil, err
		}
		id, err := asInt(idVal)
		if err != nil {
			return nil, err
		}
		return decodeObjectInstance(r, id, ct)
	}

	return nil, fmt.Errorf("dubbo: hessian: unrecognized tag byte 0x%02x", tag)
}

func decodeClassDef(r *bufio.Reader, ct *classTable) error {
	nameVal, err := decodeValue(r, ct)
	if err != nil {
		return err
	}
	name, ok := nameVal.(StringValue)
	if !ok {
		return fmt.Errorf("dubbo: hessian: class definition name is not a string")
	}
	countVal, err := decodeValue(r, ct)
	if err != nil {
		return err
	}
	count, err := asInt(countVal)
	if err != nil {
		return err
	}
	fieldNames := make([]string, count)
	for i := range fieldNames {
		fnVal, err := decodeValue(r, ct)
		if err != nil {
			return err
		}
		fn, ok := fnVal.(StringValue)
		if !ok {
			return fmt.Errorf("dubbo: hessian: field name is not a string")
		}
		fieldNames[i] = string(fn)
	}
	id, _ := ct.intern(string(name))
	for len(ct.fields) <= id {
		ct.fields = append(ct.fields, nil)
	}
	ct.fields[id] = fieldNames
	return nil
}

func decodeObjectInstance(r *bufio.Reader, id int, ct *classTable) (Value, error) {
	if id < 0 || id >= len(ct.order) || ct.fields[id] == nil {
		return nil, fmt.Errorf("dubbo: hessian: reference to undefined class id %d", id)
	}
	obj := NewObject(ct.order[id])
	for _, name := range ct.fields[id] {
		v, err := decodeValue(r, ct)
		if err != nil {
			return nil, err
		}
		obj.Set(name, v)
	}
	return obj, nil
}

func decodeStringBody(r *bufio.Reader, codePoints int) (Value, error) {
	var b bytes.Buffer
	for i := 0; i < codePoints; i++ {
		ch, _, err := r.ReadRune()
		if err != nil {
			return nil, fmt.Errorf("dubbo: hessian: truncated string: %w", err)
		}
		b.WriteRune(ch)
	}
	return StringValue(b.String()), nil
}

func asInt(v Value) (int, error) {
	switch n := v.(type) {
	case Int32Value:
		return int(n), nil
	case Int64Value:
		return int(n), nil
	default:
		return 0, fmt.Errorf("dubbo: hessian: expected integer value, got %T", v)
	}
}

func readN(r *bufio.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// DecodeResponse parses a response frame's status and body into a Value,
// reading the body as one encoded Value (see DecodeValue). A non-OK status yields a *DubboException carrying the status and the
// server's message, decoded from the body as a string (spec.md §4.3 rule
// 4, §7).
func DecodeResponse(status byte, body []byte) (Value, error) {
	if status != StatusOK {
		message := ""
		if v, err := DecodeValue(body); err == nil {
			if s, ok := v.(StringValue); ok {
				message = string(s)
			}
		}
		return nil, newDubboException(status, message)
	}
	return DecodeValue(body)
}
