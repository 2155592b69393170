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

// Package npdu implements the BACnet network layer header and the
// classification of inbound NPDUs for a non-routing device.
package npdu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// ProtocolVersion is the only NPDU version defined.
const ProtocolVersion = 0x01

// Errors
var (
	ErrTruncated          = tag.ErrTruncated
	ErrVersion            = errors.New("npdu: unsupported protocol version")
	ErrMalformed          = errors.New("npdu: malformed header")
	ErrRouted             = errors.New("npdu: destined for another network")
	ErrNoAPDU             = errors.New("npdu: no APDU")
	ErrConfirmedBroadcast = errors.New("npdu: confirmed request to global broadcast")
)

// Control octet bits.
const (
	controlNetworkMessage = 0x80
	controlDest           = 0x20
	controlSource         = 0x08
	controlExpectingReply = 0x04
	controlPriority       = 0x03
)

// DefaultHopCount is the hop count used on routed requests.
const DefaultHopCount = 0xFF

// Priority is the network priority.
type Priority uint8

const (
	PriorityNormal     Priority = 0
	PriorityUrgent     Priority = 1
	PriorityCritical   Priority = 2
	PriorityLifeSafety Priority = 3
)

// Remote is a network number and station address carried in the header.
type Remote struct {
	Net uint16
	Adr []byte
}

// Header is a decoded NPDU header.
type Header struct {
	NetworkMessage bool
	ExpectingReply bool
	Priority       Priority
	Dest           *Remote
	Src            *Remote
	HopCount       uint8
	MessageType    MessageType
	VendorID       uint16
}

// NewHeader builds the header for a message to dest.
func NewHeader(dest Address, expectingReply bool, priority Priority) Header {
	h := Header{ExpectingReply: expectingReply, Priority: priority}
	if dest.Net != LocalNetwork {
		h.Dest = &Remote{Net: dest.Net, Adr: dest.Adr}
		h.HopCount = DefaultHopCount
	}
	return h
}

// Encode writes the header and returns the octet count.
func (h Header) Encode(w *tag.Writer) int {
	control := byte(h.Priority) & controlPriority
	if h.NetworkMessage {
		control |= controlNetworkMessage
	}
	if h.Dest != nil {
		control |= controlDest
	}
	if h.Src != nil {
		control |= controlSource
	}
	if h.ExpectingReply {
		control |= controlExpectingReply
	}

	n := w.Byte(ProtocolVersion) + w.Byte(control)
	if h.Dest != nil {
		n += w.Uint16(h.Dest.Net) + w.Byte(byte(len(h.Dest.Adr))) + w.Raw(h.Dest.Adr)
	}
	if h.Src != nil {
		n += w.Uint16(h.Src.Net) + w.Byte(byte(len(h.Src.Adr))) + w.Raw(h.Src.Adr)
	}
	if h.Dest != nil {
		n += w.Byte(h.HopCount)
	}
	if h.NetworkMessage {
		n += w.Byte(byte(h.MessageType))
		if h.MessageType.IsProprietary() {
			n += w.Uint16(h.VendorID)
		}
	}
	return n
}

// Len returns the encoded header length.
func (h Header) Len() int {
	return h.Encode(tag.NewWriter(nil))
}

// Decode decodes an NPDU header and returns the offset of what follows.
func Decode(b []byte) (Header, int, error) {
	if len(b) < 2 {
		return Header{}, 0, ErrTruncated
	}
	if b[0] != ProtocolVersion {
		return Header{}, 0, fmt.Errorf("%w: %d", ErrVersion, b[0])
	}
	control := b[1]
	h := Header{
		NetworkMessage: control&controlNetworkMessage != 0,
		ExpectingReply: control&controlExpectingReply != 0,
		Priority:       Priority(control & controlPriority),
	}
	off := 2

	if control&controlDest != 0 {
		r, n, err := decodeRemote(b[off:], true)
		if err != nil {
			return Header{}, 0, err
		}
		h.Dest = r
		off += n
	}
	if control&controlSource != 0 {
		r, n, err := decodeRemote(b[off:], false)
		if err != nil {
			return Header{}, 0, err
		}
		h.Src = r
		off += n
	}
	if h.Dest != nil {
		if len(b) < off+1 {
			return Header{}, 0, ErrTruncated
		}
		h.HopCount = b[off]
		off++
	}
	if h.NetworkMessage {
		if len(b) < off+1 {
			return Header{}, 0, ErrTruncated
		}
		h.MessageType = MessageType(b[off])
		off++
		if h.MessageType.IsProprietary() {
			if len(b) < off+2 {
				return Header{}, 0, ErrTruncated
			}
			h.VendorID = binary.BigEndian.Uint16(b[off:])
			off += 2
		}
	}
	return h, off, nil
}

func decodeRemote(b []byte, dest bool) (*Remote, int, error) {
	if len(b) < 3 {
		return nil, 0, ErrTruncated
	}
	r := &Remote{Net: binary.BigEndian.Uint16(b)}
	l := int(b[2])
	switch {
	case !dest && l == 0:
		return nil, 0, fmt.Errorf("%w: zero length source address", ErrMalformed)
	case !dest && r.Net == GlobalBroadcast:
		return nil, 0, fmt.Errorf("%w: source network 65535", ErrMalformed)
	case l > MaxAddressLength:
		return nil, 0, fmt.Errorf("%w: address length %d", ErrMalformed, l)
	}
	if len(b) < 3+l {
		return nil, 0, ErrTruncated
	}
	if l > 0 {
		r.Adr = make([]byte, l)
		copy(r.Adr, b[3:3+l])
	}
	return r, 3 + l, nil
}

// Encode writes a complete NPDU: h followed by payload.
func Encode(h Header, payload []byte) []byte {
	w := tag.NewBuffer(h.Len() + len(payload))
	h.Encode(w)
	w.Raw(payload)
	return w.Bytes()
}

// SourceAddress combines the datalink source with the header's source
// specifier.
func SourceAddress(mac []byte, h Header) Address {
	a := Address{MAC: mac}
	if h.Src != nil {
		a.Net = h.Src.Net
		a.Adr = h.Src.Adr
	}
	return a
}
