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
	"fmt"
	"strings"
)

// BitString holds Bits bits in wire order: bit 0 is the most significant
// bit of Data[0].
type BitString struct {
	Bits int
	Data []byte
}

// NewBitString returns an all-clear bit string of n bits.
func NewBitString(n int) BitString {
	return BitString{Bits: n, Data: make([]byte, (n+7)/8)}
}

// BitStringOf builds a bit string from booleans, first element is bit 0.
func BitStringOf(bits ...bool) BitString {
	b := NewBitString(len(bits))
	for i, v := range bits {
		b.Set(i, v)
	}
	return b
}

// Bit returns bit i. Out-of-range bits read as false.
func (b BitString) Bit(i int) bool {
	if i < 0 || i >= b.Bits || i/8 >= len(b.Data) {
		return false
	}
	return b.Data[i/8]&(0x80>>(i%8)) != 0
}

// Set assigns bit i. Out-of-range indices are ignored.
func (b BitString) Set(i int, v bool) {
	if i < 0 || i >= b.Bits || i/8 >= len(b.Data) {
		return
	}
	if v {
		b.Data[i/8] |= 0x80 >> (i % 8)
	} else {
		b.Data[i/8] &^= 0x80 >> (i % 8)
	}
}

func (b BitString) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i := 0; i < b.Bits; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		if b.Bit(i) {
			sb.WriteByte('T')
		} else {
			sb.WriteByte('F')
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func (b BitString) octets() ([]byte, error) {
	n := (b.Bits + 7) / 8
	if b.Bits < 0 || len(b.Data) < n {
		return nil, fmt.Errorf("%w: bit string of %d bits with %d octets", ErrValueOutOfRange, b.Bits, len(b.Data))
	}
	return b.Data[:n], nil
}

func (b BitString) unused() byte {
	return byte((8 - b.Bits%8) % 8)
}
