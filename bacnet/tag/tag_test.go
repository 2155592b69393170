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
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func roundTripValues() []struct {
	name  string
	value Value
} {
	return []struct {
		name  string
		value Value
	}{
		{"null", NullValue()},
		{"boolean false", BooleanValue(false)},
		{"boolean true", BooleanValue(true)},
		{"unsigned 0", UnsignedValue(0)},
		{"unsigned 255", UnsignedValue(255)},
		{"unsigned 256", UnsignedValue(256)},
		{"unsigned 3 octets", UnsignedValue(0x123456)},
		{"unsigned max", UnsignedValue(math.MaxUint32)},
		{"signed -1", SignedValue(-1)},
		{"signed -128", SignedValue(-128)},
		{"signed 128", SignedValue(128)},
		{"signed -8388609", SignedValue(-8388609)},
		{"signed min", SignedValue(math.MinInt32)},
		{"signed max", SignedValue(math.MaxInt32)},
		{"real", RealValue(72.5)},
		{"real negative", RealValue(-0.125)},
		{"double", DoubleValue(1234.5678)},
		{"octet string", OctetStringValue([]byte{0xDE, 0xAD, 0xBE, 0xEF})},
		{"octet string empty", OctetStringValue([]byte{})},
		{"octet string long", OctetStringValue(bytes.Repeat([]byte{0xA5}, 300))},
		{"octet string 70000", OctetStringValue(bytes.Repeat([]byte{0x01}, 70000))},
		{"character string", TextValue("Zone Temp")},
		{"character string empty", TextValue("")},
		{"character string iso-8859-1", CharStringValue(CharString{Charset: CharsetISO8859_1, Value: "café"})},
		{"character string ucs-2", CharStringValue(CharString{Charset: CharsetUCS2, Value: "héllo"})},
		{"character string ucs-4", CharStringValue(CharString{Charset: CharsetUCS4, Value: "€uro"})},
		{"bit string", BitStringValue(BitStringOf(true, false, true, true))},
		{"bit string full octet", BitStringValue(BitStringOf(true, true, true, true, false, false, false, true))},
		{"bit string empty", BitStringValue(BitString{Data: []byte{}})},
		{"enumerated", EnumeratedValue(85)},
		{"enumerated large", EnumeratedValue(0x10000)},
		{"date", DateValue(Date{Year: 2024, Month: 3, Day: 17, Weekday: 7})},
		{"date any year", DateValue(Date{Year: AnyYear, Month: Unspecified, Day: 1, Weekday: Unspecified})},
		{"time", TimeValue(Time{Hour: 23, Minute: 59, Second: 58, Hundredths: 99})},
		{"object id", ObjectIDValue(ObjectID{Type: 8, Instance: 1234})},
		{"object id max", ObjectIDValue(ObjectID{Type: MaxObjectType, Instance: MaxInstance})},
	}
}

func TestApplicationRoundTrip(t *testing.T) {
	for _, tt := range roundTripValues() {
		t.Run(tt.name, func(t *testing.T) {
			measured := NewWriter(nil).Value(tt.value)

			w := NewBuffer(16)
			written := w.Value(tt.value)
			if err := w.Err(); err != nil {
				t.Fatalf("encode: %v", err)
			}
			if written != measured {
				t.Errorf("written %d octets, measured %d", written, measured)
			}
			if w.Len() != written {
				t.Errorf("Len() = %d, want %d", w.Len(), written)
			}

			got, n, err := DecodeApplication(w.Bytes())
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != measured {
				t.Errorf("consumed %d octets, measured %d", n, measured)
			}
			if diff := cmp.Diff(tt.value, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplicationTruncation(t *testing.T) {
	for _, tt := range roundTripValues() {
		t.Run(tt.name, func(t *testing.T) {
			w := NewBuffer(16)
			w.Value(tt.value)
			b := w.Bytes()
			for k := 0; k < len(b); k++ {
				if _, _, err := DecodeApplication(b[:k]); !errors.Is(err, ErrTruncated) {
					t.Fatalf("prefix %d/%d: err = %v, want ErrTruncated", k, len(b), err)
				}
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	w := NewBuffer(64)
	w.ContextObjectID(0, ObjectID{Type: 0, Instance: 1})
	w.ContextEnumerated(1, 85)
	w.ContextUnsigned(2, 7)
	w.ContextBoolean(3, true)
	w.ContextReal(4, 1.5)
	w.ContextSigned(5, -300)
	w.ContextCharString(6, UTF8("pw"))
	w.ContextBitString(7, BitStringOf(false, true))
	w.ContextOctetString(8, []byte{1, 2})
	w.ContextDate(9, Date{Year: 2000, Month: 1, Day: 1, Weekday: 6})
	w.ContextTime(10, Time{Hour: 12})
	w.ContextUnsigned(20, 5)
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	oid, err := r.ContextObjectID(0)
	if err != nil || oid != (ObjectID{Type: 0, Instance: 1}) {
		t.Fatalf("ContextObjectID = %v, %v", oid, err)
	}
	if v, err := r.ContextEnumerated(1); err != nil || v != 85 {
		t.Fatalf("ContextEnumerated = %d, %v", v, err)
	}
	if v, err := r.ContextUnsigned(2); err != nil || v != 7 {
		t.Fatalf("ContextUnsigned = %d, %v", v, err)
	}
	if v, err := r.ContextBoolean(3); err != nil || !v {
		t.Fatalf("ContextBoolean = %v, %v", v, err)
	}
	if v, err := r.ContextReal(4); err != nil || v != 1.5 {
		t.Fatalf("ContextReal = %v, %v", v, err)
	}
	if v, err := r.ContextSigned(5); err != nil || v != -300 {
		t.Fatalf("ContextSigned = %v, %v", v, err)
	}
	if v, err := r.ContextCharString(6); err != nil || v.Value != "pw" {
		t.Fatalf("ContextCharString = %v, %v", v, err)
	}
	if v, err := r.ContextBitString(7); err != nil || v.Bits != 2 || !v.Bit(1) || v.Bit(0) {
		t.Fatalf("ContextBitString = %v, %v", v, err)
	}
	if v, err := r.ContextOctetString(8); err != nil || !bytes.Equal(v, []byte{1, 2}) {
		t.Fatalf("ContextOctetString = %x, %v", v, err)
	}
	if v, err := r.ContextDate(9); err != nil || v.Year != 2000 {
		t.Fatalf("ContextDate = %v, %v", v, err)
	}
	if v, err := r.ContextTime(10); err != nil || v.Hour != 12 {
		t.Fatalf("ContextTime = %v, %v", v, err)
	}
	if v, err := r.ContextUnsigned(20); err != nil || v != 5 {
		t.Fatalf("ContextUnsigned(20) = %d, %v", v, err)
	}
	if !r.Empty() {
		t.Errorf("%d octets left over", r.Len())
	}
}

func TestKnownEncodings(t *testing.T) {
	tests := []struct {
		name   string
		encode func(w *Writer) int
		want   []byte
	}{
		{"real 72.5", func(w *Writer) int { return w.Real(72.5) }, []byte{0x44, 0x42, 0x91, 0x00, 0x00}},
		{"unsigned 256", func(w *Writer) int { return w.Unsigned(256) }, []byte{0x22, 0x01, 0x00}},
		{"signed -1", func(w *Writer) int { return w.Signed(-1) }, []byte{0x31, 0xFF}},
		{"enumerated 85", func(w *Writer) int { return w.Enumerated(85) }, []byte{0x91, 0x55}},
		{"boolean true", func(w *Writer) int { return w.Boolean(true) }, []byte{0x11}},
		{"null", func(w *Writer) int { return w.Null() }, []byte{0x00}},
		{"object id", func(w *Writer) int { return w.ObjectID(ObjectID{Type: 0, Instance: 1}) }, []byte{0xC4, 0x00, 0x00, 0x00, 0x01}},
		{"device object id", func(w *Writer) int { return w.ObjectID(ObjectID{Type: 8, Instance: 1}) }, []byte{0xC4, 0x02, 0x00, 0x00, 0x01}},
		{"text", func(w *Writer) int { return w.Text("AB") }, []byte{0x73, 0x00, 0x41, 0x42}},
		{"bit string", func(w *Writer) int { return w.BitString(BitStringOf(false, true, false, false)) }, []byte{0x82, 0x04, 0x40}},
		{"opening 3", func(w *Writer) int { return w.OpeningTag(3) }, []byte{0x3E}},
		{"closing 3", func(w *Writer) int { return w.ClosingTag(3) }, []byte{0x3F}},
		{"opening 20", func(w *Writer) int { return w.OpeningTag(20) }, []byte{0xFE, 0x14}},
		{"context extended number", func(w *Writer) int { return w.ContextUnsigned(20, 5) }, []byte{0xF9, 0x14, 0x05}},
		{"context enumerated", func(w *Writer) int { return w.ContextEnumerated(1, 85) }, []byte{0x19, 0x55}},
		{"extended length", func(w *Writer) int { return w.Tag(6, ClassApplication, 300) }, []byte{0x65, 0xFE, 0x01, 0x2C}},
		{"extended length 32", func(w *Writer) int { return w.Tag(6, ClassApplication, 70000) }, []byte{0x65, 0xFF, 0x00, 0x01, 0x11, 0x70}},
		{"date", func(w *Writer) int { return w.Date(Date{Year: 2024, Month: 1, Day: 2, Weekday: 2}) }, []byte{0xA4, 124, 1, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewBuffer(8)
			n := tt.encode(w)
			if diff := cmp.Diff(tt.want, w.Bytes()); diff != "" {
				t.Errorf("encoding mismatch (-want +got):\n%s", diff)
			}
			if n != len(tt.want) {
				t.Errorf("returned %d, want %d", n, len(tt.want))
			}
		})
	}
}

func TestDecodeTag(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    Tag
		n       int
		wantErr error
	}{
		{"short unsigned", []byte{0x21}, Tag{Number: 2, Length: 1}, 1, nil},
		{"boolean value", []byte{0x11}, Tag{Number: 1, Length: 1}, 1, nil},
		{"opening", []byte{0x0E}, Tag{Number: 0, Class: ClassContext, Opening: true}, 1, nil},
		{"closing", []byte{0x1F}, Tag{Number: 1, Class: ClassContext, Closing: true}, 1, nil},
		{"extended number", []byte{0xF9, 0x20}, Tag{Number: 32, Class: ClassContext, Length: 1}, 2, nil},
		{"extended length", []byte{0x75, 0x10}, Tag{Number: 7, Length: 16}, 2, nil},
		{"extended length 16", []byte{0x65, 0xFE, 0x01, 0x00}, Tag{Number: 6, Length: 256}, 4, nil},
		{"empty", nil, Tag{}, 0, ErrTruncated},
		{"extended number missing", []byte{0xF9}, Tag{}, 0, ErrTruncated},
		{"extended length missing", []byte{0x65}, Tag{}, 0, ErrTruncated},
		{"extended length 16 short", []byte{0x65, 0xFE, 0x01}, Tag{}, 0, ErrTruncated},
		{"extended length 32 short", []byte{0x65, 0xFF, 0x00, 0x00}, Tag{}, 0, ErrTruncated},
		{"application opening", []byte{0x06}, Tag{}, 0, ErrMalformedTag},
		{"reserved tag number", []byte{0xF8, 0xFF}, Tag{}, 0, ErrMalformedTag},
		{"boolean out of range", []byte{0x12}, Tag{}, 0, ErrMalformedTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := DecodeTag(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want || n != tt.n {
				t.Errorf("DecodeTag = %+v, %d; want %+v, %d", got, n, tt.want, tt.n)
			}
		})
	}
}

func TestMalformedContent(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"unsigned zero length", []byte{0x20}},
		{"unsigned five octets", []byte{0x25, 0x05, 1, 2, 3, 4, 5}},
		{"real three octets", []byte{0x43, 1, 2, 3}},
		{"object id two octets", []byte{0xC2, 1, 2}},
		{"bit string nine unused", []byte{0x82, 0x09, 0x00}},
		{"bit string empty with unused", []byte{0x81, 0x03}},
		{"null with content", []byte{0x01, 0x00}},
		{"reserved application tag", []byte{0xD1, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeApplication(tt.in); !errors.Is(err, ErrMalformedTag) {
				t.Errorf("err = %v, want ErrMalformedTag", err)
			}
		})
	}
}

func TestUnsupportedCharset(t *testing.T) {
	if _, _, err := DecodeApplication([]byte{0x73, 0x01, 0x41, 0x42}); !errors.Is(err, ErrCharacterSet) {
		t.Errorf("decode dbcs: err = %v, want ErrCharacterSet", err)
	}
	w := NewBuffer(8)
	w.CharString(CharString{Charset: CharsetJIS, Value: "x"})
	if !errors.Is(w.Err(), ErrCharacterSet) {
		t.Errorf("encode jis: err = %v, want ErrCharacterSet", w.Err())
	}
	w = NewBuffer(8)
	w.CharString(CharString{Charset: CharsetISO8859_1, Value: "€"})
	if !errors.Is(w.Err(), ErrValueOutOfRange) {
		t.Errorf("encode unmappable rune: err = %v, want ErrValueOutOfRange", w.Err())
	}
}

func TestWriterFixedBuffer(t *testing.T) {
	buf := make([]byte, 3)
	w := NewWriter(buf)
	if n := w.Real(1); n != 5 {
		t.Errorf("Real returned %d, want 5", n)
	}
	if !errors.Is(w.Err(), ErrBufferTooSmall) {
		t.Fatalf("err = %v, want ErrBufferTooSmall", w.Err())
	}
	if w.Len() != 5 {
		t.Errorf("Len = %d, want 5", w.Len())
	}

	buf = make([]byte, 5)
	w = NewWriter(buf)
	w.Real(72.5)
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x44, 0x42, 0x91, 0x00, 0x00}, w.Bytes()); diff != "" {
		t.Errorf("fixed buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestWriterValueErrors(t *testing.T) {
	tests := []struct {
		name   string
		encode func(w *Writer)
	}{
		{"year before 1900", func(w *Writer) { w.Date(Date{Year: 1899}) }},
		{"year after 2155", func(w *Writer) { w.Date(Date{Year: 2156}) }},
		{"instance too large", func(w *Writer) { w.ObjectID(ObjectID{Instance: MaxInstance + 1}) }},
		{"bit string short data", func(w *Writer) { w.BitString(BitString{Bits: 9, Data: []byte{0}}) }},
		{"unknown value tag", func(w *Writer) { w.Value(Value{Tag: 13}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewBuffer(8)
			tt.encode(w)
			if !errors.Is(w.Err(), ErrValueOutOfRange) {
				t.Errorf("err = %v, want ErrValueOutOfRange", w.Err())
			}
		})
	}
}

func TestWriterReservedTagNumber(t *testing.T) {
	tests := []struct {
		name   string
		encode func(w *Writer)
	}{
		{"opening", func(w *Writer) { w.OpeningTag(255) }},
		{"closing", func(w *Writer) { w.ClosingTag(255) }},
		{"context", func(w *Writer) { w.ContextUnsigned(255, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewBuffer(8)
			tt.encode(w)
			if !errors.Is(w.Err(), ErrMalformedTag) {
				t.Errorf("err = %v, want ErrMalformedTag", w.Err())
			}
		})
	}

	w := NewBuffer(8)
	w.OpeningTag(254)
	w.ClosingTag(254)
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(w.Bytes()).Enclosed(254); err != nil {
		t.Errorf("Enclosed(254): %v", err)
	}
}
