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
)

// Writer accumulates an encoding. It has three modes:
//
//   - NewWriter(nil) only counts octets, for sizing a buffer up front;
//   - NewWriter(buf) fills a caller-owned buffer and latches
//     ErrBufferTooSmall on overflow;
//   - NewBuffer(n) appends to a growing slice.
//
// Every encode method returns the number of octets it produced, in every
// mode, so measuring and writing report the same lengths.
type Writer struct {
	buf     []byte
	n       int
	measure bool
	grow    bool
	err     error
}

// NewWriter returns a Writer over buf. A nil buf measures only.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf, measure: buf == nil}
}

// NewBuffer returns a Writer that grows as needed.
func NewBuffer(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity), grow: true}
}

// Len returns the number of octets encoded so far.
func (w *Writer) Len() int { return w.n }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Bytes returns the encoded octets. It returns nil in measure mode.
func (w *Writer) Bytes() []byte {
	if w.measure {
		return nil
	}
	if w.grow {
		return w.buf
	}
	if w.n > len(w.buf) {
		return w.buf
	}
	return w.buf[:w.n]
}

// Reset discards everything written.
func (w *Writer) Reset() {
	w.n = 0
	w.err = nil
	if w.grow {
		w.buf = w.buf[:0]
	}
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *Writer) put(p ...byte) int {
	switch {
	case w.measure:
	case w.grow:
		w.buf = append(w.buf, p...)
	case w.err != nil:
	case w.n+len(p) > len(w.buf):
		w.fail(ErrBufferTooSmall)
	default:
		copy(w.buf[w.n:], p)
	}
	w.n += len(p)
	return len(p)
}

// Raw appends p unmodified.
func (w *Writer) Raw(p []byte) int {
	return w.put(p...)
}

// Byte appends a single octet.
func (w *Writer) Byte(b byte) int {
	return w.put(b)
}

// Uint16 appends v big-endian.
func (w *Writer) Uint16(v uint16) int {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return w.put(b[:]...)
}

// Uint32 appends v big-endian.
func (w *Writer) Uint32(v uint32) int {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return w.put(b[:]...)
}

// Tag encodes a tag header with the given content length. Tag number 255
// is reserved; it latches ErrMalformedTag and writes nothing.
func (w *Writer) Tag(number uint8, class Class, length uint32) int {
	if number == reservedNumber {
		w.fail(fmt.Errorf("%w: reserved tag number %d", ErrMalformedTag, number))
		return 0
	}
	var b [7]byte
	i := 1

	b[0] = byte(class&0x01) << 3
	if number >= extendedNumber {
		b[0] |= extendedNumber << 4
		b[i] = number
		i++
	} else {
		b[0] |= number << 4
	}

	switch {
	case length < lvtExtended:
		b[0] |= byte(length)
	case length < extended16:
		b[0] |= lvtExtended
		b[i] = byte(length)
		i++
	case length <= 0xFFFF:
		b[0] |= lvtExtended
		b[i] = extended16
		binary.BigEndian.PutUint16(b[i+1:], uint16(length))
		i += 3
	default:
		b[0] |= lvtExtended
		b[i] = extended32
		binary.BigEndian.PutUint32(b[i+1:], length)
		i += 5
	}

	return w.put(b[:i]...)
}

// OpeningTag encodes the opening tag of constructed context n.
func (w *Writer) OpeningTag(n uint8) int {
	return w.pairTag(n, lvtOpening)
}

// ClosingTag encodes the closing tag of constructed context n.
func (w *Writer) ClosingTag(n uint8) int {
	return w.pairTag(n, lvtClosing)
}

func (w *Writer) pairTag(n uint8, lvt byte) int {
	if n == reservedNumber {
		w.fail(fmt.Errorf("%w: reserved tag number %d", ErrMalformedTag, n))
		return 0
	}
	if n >= extendedNumber {
		return w.put(0xF8|lvt, n)
	}
	return w.put(n<<4 | 0x08 | lvt)
}
