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

// Package mstp implements BACnet MS/TP framing.
/*

Each frame has the following format:

    uint8  preamble 0x55
    uint8  preamble 0xFF
    uint8  frame type
    uint8  destination MAC
    uint8  source MAC
    uint16 data length (big endian)
    uint8  header CRC
    []byte data
    uint16 data CRC (little endian, only when length > 0)

The header CRC covers frame type through length and is transmitted as
its ones complement. The data CRC is CRC-16/X-25.

Reading re-synchronizes on the preamble after invalid data.

*/
package mstp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc16"
)

// FrameType is the MS/TP frame type
type FrameType uint8

const (
	FrameToken                 FrameType = 0
	FramePollForMaster         FrameType = 1
	FrameReplyToPollForMaster  FrameType = 2
	FrameTestRequest           FrameType = 3
	FrameTestResponse          FrameType = 4
	FrameDataExpectingReply    FrameType = 5
	FrameDataNotExpectingReply FrameType = 6
	FrameReplyPostponed        FrameType = 7
)

var frameTypeNames = map[FrameType]string{
	FrameToken:                 "token",
	FramePollForMaster:         "poll-for-master",
	FrameReplyToPollForMaster:  "reply-to-poll-for-master",
	FrameTestRequest:           "test-request",
	FrameTestResponse:          "test-response",
	FrameDataExpectingReply:    "data-expecting-reply",
	FrameDataNotExpectingReply: "data-not-expecting-reply",
	FrameReplyPostponed:        "reply-postponed",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("frame-type(%d)", uint8(t))
}

// IsData reports whether frames of this type carry an NPDU
func (t FrameType) IsData() bool {
	return t == FrameDataExpectingReply || t == FrameDataNotExpectingReply
}

const (
	// BroadcastMAC addresses every station on the segment
	BroadcastMAC = 0xFF

	// MaxData is the largest data field of a BACnet data frame
	MaxData = 501

	headerLength = 8
)

var (
	ErrFrameTooLong = errors.New("mstp: data too long")
	ErrHeaderCRC    = errors.New("mstp: header CRC mismatch")
	ErrDataCRC      = errors.New("mstp: data CRC mismatch")
)

// Frame is one MS/TP frame
type Frame struct {
	Type FrameType
	Dest uint8
	Src  uint8
	Data []byte
}

var dataTable = crc16.MakeTable(crc16.Params{
	Poly:   0x1021,
	Init:   0xFFFF,
	RefIn:  true,
	RefOut: true,
	XorOut: 0xFFFF,
	Check:  0x906E,
	Name:   "CRC-16/X-25",
})

// DataCRC returns the data CRC of b as transmitted
func DataCRC(b []byte) uint16 {
	return crc16.Checksum(b, dataTable)
}

// headerCRCStep folds one octet into the header CRC register
// (polynomial x^8 + x^7 + 1).
func headerCRCStep(b, reg uint8) uint8 {
	crc := uint16(reg ^ b)
	crc = crc ^ crc<<1 ^ crc<<2 ^ crc<<3 ^ crc<<4 ^ crc<<5 ^ crc<<6 ^ crc<<7
	return uint8(crc&0xFE) ^ uint8(crc>>8&1)
}

// HeaderCRC returns the header CRC of the five header octets as
// transmitted
func HeaderCRC(h []byte) uint8 {
	reg := uint8(0xFF)
	for _, b := range h {
		reg = headerCRCStep(b, reg)
	}
	return ^reg
}

// Encode returns the wire form of f
func (f Frame) Encode() ([]byte, error) {
	if len(f.Data) > MaxData {
		return nil, fmt.Errorf("%w: %d octets", ErrFrameTooLong, len(f.Data))
	}
	n := headerLength + len(f.Data)
	if len(f.Data) > 0 {
		n += 2
	}
	buf := make([]byte, n)
	buf[0], buf[1] = 0x55, 0xFF
	buf[2], buf[3], buf[4] = byte(f.Type), f.Dest, f.Src
	binary.BigEndian.PutUint16(buf[5:], uint16(len(f.Data)))
	buf[7] = HeaderCRC(buf[2:7])
	if len(f.Data) > 0 {
		copy(buf[headerLength:], f.Data)
		binary.LittleEndian.PutUint16(buf[n-2:], DataCRC(f.Data))
	}
	return buf, nil
}

// Reader reads frames from a byte stream
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 2*(headerLength+MaxData+2))}
}

// ReadFrame reads the next frame. Octets before a preamble are skipped.
// CRC errors consume the damaged frame and are returned so the caller
// can count them; the next call resumes at the following preamble.
func (r *Reader) ReadFrame() (Frame, error) {
	if err := r.sync(); err != nil {
		return Frame{}, err
	}

	var hdr [6]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	if HeaderCRC(hdr[:5]) != hdr[5] {
		return Frame{}, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrHeaderCRC, hdr[5], HeaderCRC(hdr[:5]))
	}
	f := Frame{Type: FrameType(hdr[0]), Dest: hdr[1], Src: hdr[2]}
	length := int(binary.BigEndian.Uint16(hdr[3:]))
	if length == 0 {
		return f, nil
	}
	if length > MaxData {
		return Frame{}, fmt.Errorf("%w: %d octets", ErrFrameTooLong, length)
	}

	body := make([]byte, length+2)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return Frame{}, err
	}
	f.Data = body[:length]
	got := binary.LittleEndian.Uint16(body[length:])
	if want := DataCRC(f.Data); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrDataCRC, got, want)
	}
	return f, nil
}

// sync consumes octets up to and including the 0x55 0xFF preamble
func (r *Reader) sync() error {
	prev := byte(0)
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0x55 && b == 0xFF {
			return nil
		}
		prev = b
	}
}
