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
	"encoding/binary"
	"fmt"
	"math"
)

// The Decode* functions read the content of a primitive whose tag header
// has already been consumed. length is the tag's content length. Each
// returns the value and the number of octets consumed. The buffer is
// bounds checked before the length is validated, so a short buffer always
// reports ErrTruncated.

func content(buf []byte, length uint32) ([]byte, error) {
	if uint64(len(buf)) < uint64(length) {
		return nil, ErrTruncated
	}
	return buf[:length], nil
}

// DecodeUnsigned decodes a 1 to 4 octet unsigned integer.
func DecodeUnsigned(buf []byte, length uint32) (uint32, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return 0, 0, err
	}
	if length == 0 || length > 4 {
		return 0, 0, fmt.Errorf("%w: unsigned of %d octets", ErrMalformedTag, length)
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v, int(length), nil
}

// DecodeEnumerated decodes an enumerated value.
func DecodeEnumerated(buf []byte, length uint32) (uint32, int, error) {
	return DecodeUnsigned(buf, length)
}

// DecodeSigned decodes a 1 to 4 octet two's complement integer.
func DecodeSigned(buf []byte, length uint32) (int32, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return 0, 0, err
	}
	if length == 0 || length > 4 {
		return 0, 0, fmt.Errorf("%w: signed of %d octets", ErrMalformedTag, length)
	}
	v := int32(int8(b[0]))
	for _, c := range b[1:] {
		v = v<<8 | int32(c)
	}
	return v, int(length), nil
}

// DecodeReal decodes an IEEE-754 single.
func DecodeReal(buf []byte, length uint32) (float32, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return 0, 0, err
	}
	if length != 4 {
		return 0, 0, fmt.Errorf("%w: real of %d octets", ErrMalformedTag, length)
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), 4, nil
}

// DecodeDouble decodes an IEEE-754 double.
func DecodeDouble(buf []byte, length uint32) (float64, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return 0, 0, err
	}
	if length != 8 {
		return 0, 0, fmt.Errorf("%w: double of %d octets", ErrMalformedTag, length)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), 8, nil
}

// DecodeOctetString copies length octets.
func DecodeOctetString(buf []byte, length uint32) ([]byte, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, len(b), nil
}

// DecodeCharString decodes a character string, charset octet included.
func DecodeCharString(buf []byte, length uint32) (CharString, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return CharString{}, 0, err
	}
	cs, err := decodeCharString(b)
	if err != nil {
		return CharString{}, 0, err
	}
	return cs, len(b), nil
}

// DecodeBitString decodes a bit string, unused-bits octet included.
func DecodeBitString(buf []byte, length uint32) (BitString, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return BitString{}, 0, err
	}
	if length == 0 {
		return BitString{}, 0, fmt.Errorf("%w: empty bit string", ErrMalformedTag)
	}
	unused := int(b[0])
	if unused > 7 || (length == 1 && unused != 0) {
		return BitString{}, 0, fmt.Errorf("%w: %d unused bits", ErrMalformedTag, unused)
	}
	data := make([]byte, length-1)
	copy(data, b[1:])
	return BitString{Bits: len(data)*8 - unused, Data: data}, len(b), nil
}

// DecodeDate decodes a 4 octet date.
func DecodeDate(buf []byte, length uint32) (Date, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return Date{}, 0, err
	}
	if length != 4 {
		return Date{}, 0, fmt.Errorf("%w: date of %d octets", ErrMalformedTag, length)
	}
	return decodeDate(b), 4, nil
}

// DecodeTime decodes a 4 octet time.
func DecodeTime(buf []byte, length uint32) (Time, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return Time{}, 0, err
	}
	if length != 4 {
		return Time{}, 0, fmt.Errorf("%w: time of %d octets", ErrMalformedTag, length)
	}
	return Time{Hour: b[0], Minute: b[1], Second: b[2], Hundredths: b[3]}, 4, nil
}

// DecodeObjectID decodes a 4 octet object identifier.
func DecodeObjectID(buf []byte, length uint32) (ObjectID, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return ObjectID{}, 0, err
	}
	if length != 4 {
		return ObjectID{}, 0, fmt.Errorf("%w: object identifier of %d octets", ErrMalformedTag, length)
	}
	return UnpackObjectID(binary.BigEndian.Uint32(b)), 4, nil
}

// DecodeBooleanContent decodes the single content octet of a context
// tagged boolean.
func DecodeBooleanContent(buf []byte, length uint32) (bool, int, error) {
	b, err := content(buf, length)
	if err != nil {
		return false, 0, err
	}
	if length != 1 || b[0] > 1 {
		return false, 0, fmt.Errorf("%w: boolean content", ErrMalformedTag)
	}
	return b[0] == 1, 1, nil
}

func unsignedLen(v uint32) uint32 {
	switch {
	case v < 0x100:
		return 1
	case v < 0x10000:
		return 2
	case v < 0x1000000:
		return 3
	}
	return 4
}

func signedLen(v int32) uint32 {
	switch {
	case v >= -0x80 && v < 0x80:
		return 1
	case v >= -0x8000 && v < 0x8000:
		return 2
	case v >= -0x800000 && v < 0x800000:
		return 3
	}
	return 4
}

func (w *Writer) bigEndian(v uint32, n uint32) int {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return w.put(b[4-n:]...)
}
