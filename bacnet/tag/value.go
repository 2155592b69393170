// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tag

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Value is one application tagged primitive. Tag selects which field is
// meaningful.
type Value struct {
	Tag        ApplicationTag
	Boolean    bool
	Unsigned   uint32
	Signed     int32
	Real       float32
	Double     float64
	Octets     []byte
	String     CharString
	Bits       BitString
	Enumerated uint32
	Date       Date
	Time       Time
	ObjectID   ObjectID
}

// Constructors for each application type.

func NullValue() Value { return Value{Tag: AppNull} }
func BooleanValue(v bool) Value { return Value{Tag: AppBoolean, Boolean: v} }
func UnsignedValue(v uint32) Value { return Value{Tag: AppUnsigned, Unsigned: v} }
func SignedValue(v int32) Value { return Value{Tag: AppSigned, Signed: v} }
func RealValue(v float32) Value { return Value{Tag: AppReal, Real: v} }
func DoubleValue(v float64) Value { return Value{Tag: AppDouble, Double: v} }
func OctetStringValue(v []byte) Value { return Value{Tag: AppOctetString, Octets: v} }
func CharStringValue(v CharString) Value { return Value{Tag: AppCharacterString, String: v} }
func TextValue(s string) Value { return CharStringValue(UTF8(s)) }
func BitStringValue(v BitString) Value { return Value{Tag: AppBitString, Bits: v} }
func EnumeratedValue(v uint32) Value { return Value{Tag: AppEnumerated, Enumerated: v} }
func DateValue(v Date) Value { return Value{Tag: AppDate, Date: v} }
func TimeValue(v Time) Value { return Value{Tag: AppTime, Time: v} }
func ObjectIDValue(v ObjectID) Value { return Value{Tag: AppObjectID, ObjectID: v} }

// Interface returns the value as a plain Go value.
func (v Value) Interface() any {
	switch v.Tag {
	case AppNull:
		return nil
	case AppBoolean:
		return v.Boolean
	case AppUnsigned:
		return v.Unsigned
	case AppSigned:
		return v.Signed
	case AppReal:
		return v.Real
	case AppDouble:
		return v.Double
	case AppOctetString:
		return v.Octets
	case AppCharacterString:
		return v.String.Value
	case AppBitString:
		return v.Bits
	case AppEnumerated:
		return v.Enumerated
	case AppDate:
		return v.Date
	case AppTime:
		return v.Time
	case AppObjectID:
		return v.ObjectID
	}
	return nil
}

// Format renders the value for display.
func (v Value) Format() string {
	switch v.Tag {
	case AppNull:
		return "null"
	case AppReal:
		return strconv.FormatFloat(float64(v.Real), 'g', -1, 32)
	case AppDouble:
		return strconv.FormatFloat(v.Double, 'g', -1, 64)
	case AppOctetString:
		return hex.EncodeToString(v.Octets)
	case AppCharacterString:
		return strconv.Quote(v.String.Value)
	}
	return fmt.Sprint(v.Interface())
}

// Value writes v with its application tag.
func (w *Writer) Value(v Value) int {
	switch v.Tag {
	case AppNull:
		return w.Null()
	case AppBoolean:
		return w.Boolean(v.Boolean)
	case AppUnsigned:
		return w.Unsigned(v.Unsigned)
	case AppSigned:
		return w.Signed(v.Signed)
	case AppReal:
		return w.Real(v.Real)
	case AppDouble:
		return w.Double(v.Double)
	case AppOctetString:
		return w.OctetString(v.Octets)
	case AppCharacterString:
		return w.CharString(v.String)
	case AppBitString:
		return w.BitString(v.Bits)
	case AppEnumerated:
		return w.Enumerated(v.Enumerated)
	case AppDate:
		return w.Date(v.Date)
	case AppTime:
		return w.Time(v.Time)
	case AppObjectID:
		return w.ObjectID(v.ObjectID)
	}
	w.fail(fmt.Errorf("%w: application tag %d", ErrValueOutOfRange, v.Tag))
	return 0
}

// DecodeApplication decodes one application tagged value and returns the
// number of octets consumed, header included.
func DecodeApplication(buf []byte) (Value, int, error) {
	t, n, err := DecodeTag(buf)
	if err != nil {
		return Value{}, 0, err
	}
	if t.Class != ClassApplication {
		return Value{}, 0, fmt.Errorf("%w: expected application tag, got %s", ErrMalformedTag, t)
	}
	v, m, err := decodeContent(ApplicationTag(t.Number), t, buf[n:])
	if err != nil {
		return Value{}, 0, err
	}
	return v, n + m, nil
}

// DecodeApplicationValues decodes a run of application values filling buf.
func DecodeApplicationValues(buf []byte) ([]Value, error) {
	var out []Value
	for len(buf) > 0 {
		v, n, err := DecodeApplication(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		buf = buf[n:]
	}
	return out, nil
}

// decodeContent decodes the content of a tag as application type a. It
// also serves context tags whose type is known from the grammar.
func decodeContent(a ApplicationTag, t Tag, buf []byte) (Value, int, error) {
	v := Value{Tag: a}
	var (
		n   int
		err error
	)
	switch a {
	case AppNull:
		if t.Length != 0 {
			return Value{}, 0, fmt.Errorf("%w: null with length %d", ErrMalformedTag, t.Length)
		}
	case AppBoolean:
		if t.Class == ClassApplication {
			v.Boolean = t.Length == 1
		} else {
			v.Boolean, n, err = DecodeBooleanContent(buf, t.Length)
		}
	case AppUnsigned:
		v.Unsigned, n, err = DecodeUnsigned(buf, t.Length)
	case AppSigned:
		v.Signed, n, err = DecodeSigned(buf, t.Length)
	case AppReal:
		v.Real, n, err = DecodeReal(buf, t.Length)
	case AppDouble:
		v.Double, n, err = DecodeDouble(buf, t.Length)
	case AppOctetString:
		v.Octets, n, err = DecodeOctetString(buf, t.Length)
	case AppCharacterString:
		v.String, n, err = DecodeCharString(buf, t.Length)
	case AppBitString:
		v.Bits, n, err = DecodeBitString(buf, t.Length)
	case AppEnumerated:
		v.Enumerated, n, err = DecodeEnumerated(buf, t.Length)
	case AppDate:
		v.Date, n, err = DecodeDate(buf, t.Length)
	case AppTime:
		v.Time, n, err = DecodeTime(buf, t.Length)
	case AppObjectID:
		v.ObjectID, n, err = DecodeObjectID(buf, t.Length)
	default:
		if _, err := content(buf, t.Length); err != nil {
			return Value{}, 0, err
		}
		return Value{}, 0, fmt.Errorf("%w: reserved application tag %d", ErrMalformedTag, a)
	}
	if err != nil {
		return Value{}, 0, err
	}
	return v, n, nil
}
