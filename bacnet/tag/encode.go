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

import "math"

// Application tagged encoders.

// Null encodes an application null.
func (w *Writer) Null() int {
	return w.Tag(uint8(AppNull), ClassApplication, 0)
}

// Boolean encodes an application boolean. The value lives in the tag.
func (w *Writer) Boolean(v bool) int {
	var l uint32
	if v {
		l = 1
	}
	return w.Tag(uint8(AppBoolean), ClassApplication, l)
}

// Unsigned encodes an application unsigned integer.
func (w *Writer) Unsigned(v uint32) int {
	return w.unsigned(uint8(AppUnsigned), ClassApplication, v)
}

// Signed encodes an application signed integer.
func (w *Writer) Signed(v int32) int {
	return w.signed(uint8(AppSigned), ClassApplication, v)
}

// Real encodes an application real.
func (w *Writer) Real(v float32) int {
	return w.real(uint8(AppReal), ClassApplication, v)
}

// Double encodes an application double.
func (w *Writer) Double(v float64) int {
	return w.double(uint8(AppDouble), ClassApplication, v)
}

// OctetString encodes an application octet string.
func (w *Writer) OctetString(v []byte) int {
	return w.octets(uint8(AppOctetString), ClassApplication, v)
}

// CharString encodes an application character string.
func (w *Writer) CharString(v CharString) int {
	return w.charString(uint8(AppCharacterString), ClassApplication, v)
}

// Text encodes s as a UTF-8 application character string.
func (w *Writer) Text(s string) int {
	return w.CharString(UTF8(s))
}

// BitString encodes an application bit string.
func (w *Writer) BitString(v BitString) int {
	return w.bitString(uint8(AppBitString), ClassApplication, v)
}

// Enumerated encodes an application enumerated value.
func (w *Writer) Enumerated(v uint32) int {
	return w.unsigned(uint8(AppEnumerated), ClassApplication, v)
}

// Date encodes an application date.
func (w *Writer) Date(v Date) int {
	return w.date(uint8(AppDate), ClassApplication, v)
}

// Time encodes an application time.
func (w *Writer) Time(v Time) int {
	return w.time(uint8(AppTime), ClassApplication, v)
}

// ObjectID encodes an application object identifier.
func (w *Writer) ObjectID(v ObjectID) int {
	return w.objectID(uint8(AppObjectID), ClassApplication, v)
}

// Context tagged encoders.

// ContextNull encodes a zero-length context tag.
func (w *Writer) ContextNull(n uint8) int {
	return w.Tag(n, ClassContext, 0)
}

// ContextBoolean encodes a context boolean as one content octet.
func (w *Writer) ContextBoolean(n uint8, v bool) int {
	var b byte
	if v {
		b = 1
	}
	return w.Tag(n, ClassContext, 1) + w.put(b)
}

// ContextUnsigned encodes a context unsigned integer.
func (w *Writer) ContextUnsigned(n uint8, v uint32) int {
	return w.unsigned(n, ClassContext, v)
}

// ContextSigned encodes a context signed integer.
func (w *Writer) ContextSigned(n uint8, v int32) int {
	return w.signed(n, ClassContext, v)
}

// ContextReal encodes a context real.
func (w *Writer) ContextReal(n uint8, v float32) int {
	return w.real(n, ClassContext, v)
}

// ContextDouble encodes a context double.
func (w *Writer) ContextDouble(n uint8, v float64) int {
	return w.double(n, ClassContext, v)
}

// ContextOctetString encodes a context octet string.
func (w *Writer) ContextOctetString(n uint8, v []byte) int {
	return w.octets(n, ClassContext, v)
}

// ContextCharString encodes a context character string.
func (w *Writer) ContextCharString(n uint8, v CharString) int {
	return w.charString(n, ClassContext, v)
}

// ContextBitString encodes a context bit string.
func (w *Writer) ContextBitString(n uint8, v BitString) int {
	return w.bitString(n, ClassContext, v)
}

// ContextEnumerated encodes a context enumerated value.
func (w *Writer) ContextEnumerated(n uint8, v uint32) int {
	return w.unsigned(n, ClassContext, v)
}

// ContextDate encodes a context date.
func (w *Writer) ContextDate(n uint8, v Date) int {
	return w.date(n, ClassContext, v)
}

// ContextTime encodes a context time.
func (w *Writer) ContextTime(n uint8, v Time) int {
	return w.time(n, ClassContext, v)
}

// ContextObjectID encodes a context object identifier.
func (w *Writer) ContextObjectID(n uint8, v ObjectID) int {
	return w.objectID(n, ClassContext, v)
}

func (w *Writer) unsigned(n uint8, c Class, v uint32) int {
	l := unsignedLen(v)
	return w.Tag(n, c, l) + w.bigEndian(v, l)
}

func (w *Writer) signed(n uint8, c Class, v int32) int {
	l := signedLen(v)
	return w.Tag(n, c, l) + w.bigEndian(uint32(v), l)
}

func (w *Writer) real(n uint8, c Class, v float32) int {
	return w.Tag(n, c, 4) + w.Uint32(math.Float32bits(v))
}

func (w *Writer) double(n uint8, c Class, v float64) int {
	bits := math.Float64bits(v)
	return w.Tag(n, c, 8) + w.Uint32(uint32(bits>>32)) + w.Uint32(uint32(bits))
}

func (w *Writer) octets(n uint8, c Class, v []byte) int {
	return w.Tag(n, c, uint32(len(v))) + w.put(v...)
}

func (w *Writer) charString(n uint8, c Class, v CharString) int {
	b, err := v.wire()
	if err != nil {
		w.fail(err)
		return 0
	}
	return w.Tag(n, c, uint32(len(b))) + w.put(b...)
}

func (w *Writer) bitString(n uint8, c Class, v BitString) int {
	data, err := v.octets()
	if err != nil {
		w.fail(err)
		return 0
	}
	return w.Tag(n, c, uint32(1+len(data))) + w.put(v.unused()) + w.put(data...)
}

func (w *Writer) date(n uint8, c Class, v Date) int {
	b, err := encodeDate(v)
	if err != nil {
		w.fail(err)
		return 0
	}
	return w.Tag(n, c, 4) + w.put(b[:]...)
}

func (w *Writer) time(n uint8, c Class, v Time) int {
	return w.Tag(n, c, 4) + w.put(v.Hour, v.Minute, v.Second, v.Hundredths)
}

func (w *Writer) objectID(n uint8, c Class, v ObjectID) int {
	if !v.Valid() {
		w.fail(ErrValueOutOfRange)
		return 0
	}
	return w.Tag(n, c, 4) + w.Uint32(v.Pack())
}
