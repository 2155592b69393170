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

// Package apdu encodes and decodes the fixed headers of the eight BACnet
// application PDU kinds. Service payloads are carried as opaque octets.
package apdu

import (
	"errors"
	"fmt"

	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// Errors
var (
	ErrTruncated   = tag.ErrTruncated
	ErrUnknownType = errors.New("apdu: unknown PDU type")
)

// Type is the PDU type held in the high nibble of octet 0.
type Type uint8

const (
	TypeConfirmedRequest   Type = 0
	TypeUnconfirmedRequest Type = 1
	TypeSimpleAck          Type = 2
	TypeComplexAck         Type = 3
	TypeSegmentAck         Type = 4
	TypeError              Type = 5
	TypeReject             Type = 6
	TypeAbort              Type = 7
)

var typeNames = map[Type]string{
	TypeConfirmedRequest:   "confirmed-request",
	TypeUnconfirmedRequest: "unconfirmed-request",
	TypeSimpleAck:          "simple-ack",
	TypeComplexAck:         "complex-ack",
	TypeSegmentAck:         "segment-ack",
	TypeError:              "error",
	TypeReject:             "reject",
	TypeAbort:              "abort",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("pdu-type(%d)", uint8(t))
}

// TypeOf returns the PDU type of an encoded APDU.
func TypeOf(b []byte) (Type, error) {
	if len(b) < 1 {
		return 0, ErrTruncated
	}
	return Type(b[0] >> 4), nil
}

// Flag bits in octet 0.
const (
	flagSegmented        = 0x08
	flagMoreFollows      = 0x04
	flagSegmentedAccept  = 0x02
	flagNegativeAck      = 0x02
	flagServer           = 0x01
	segmentedHeaderExtra = 2
)

// PDU is a decoded application PDU.
type PDU interface {
	Type() Type
	// Encode writes the header and payload and returns the octet count.
	Encode(w *tag.Writer) int
}

// Bytes encodes p into a new slice.
func Bytes(p PDU) []byte {
	w := tag.NewBuffer(Len(p))
	p.Encode(w)
	return w.Bytes()
}

// Len returns the encoded length of p.
func Len(p PDU) int {
	return p.Encode(tag.NewWriter(nil))
}

// Decode decodes any APDU.
func Decode(b []byte) (PDU, error) {
	t, err := TypeOf(b)
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeConfirmedRequest:
		return DecodeConfirmedRequest(b)
	case TypeUnconfirmedRequest:
		return DecodeUnconfirmedRequest(b)
	case TypeSimpleAck:
		return DecodeSimpleAck(b)
	case TypeComplexAck:
		return DecodeComplexAck(b)
	case TypeSegmentAck:
		return DecodeSegmentAck(b)
	case TypeError:
		return DecodeError(b)
	case TypeReject:
		return DecodeReject(b)
	case TypeAbort:
		return DecodeAbort(b)
	}
	return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, b[0])
}

// ConfirmedRequest is a BACnet-Confirmed-Request-PDU.
type ConfirmedRequest struct {
	Segmented                 bool
	MoreFollows               bool
	SegmentedResponseAccepted bool
	// MaxSegments is the decoded segment count; 0 means unspecified.
	MaxSegments int
	// MaxAPDU is the decoded size in octets.
	MaxAPDU            int
	InvokeID           uint8
	SequenceNumber     uint8
	ProposedWindowSize uint8
	Service            uint8
	Payload            []byte
	// NoServiceData is set when the request ended right after the
	// service choice. Some workstations send requests this way.
	NoServiceData bool
}

func (*ConfirmedRequest) Type() Type { return TypeConfirmedRequest }

// Encode writes the request.
func (p *ConfirmedRequest) Encode(w *tag.Writer) int {
	b0 := byte(TypeConfirmedRequest) << 4
	if p.Segmented {
		b0 |= flagSegmented
	}
	if p.MoreFollows {
		b0 |= flagMoreFollows
	}
	if p.SegmentedResponseAccepted {
		b0 |= flagSegmentedAccept
	}
	n := w.Byte(b0)
	n += w.Byte(EncodeMaxSegments(p.MaxSegments)<<4 | EncodeMaxAPDU(p.MaxAPDU))
	n += w.Byte(p.InvokeID)
	if p.Segmented {
		n += w.Byte(p.SequenceNumber)
		n += w.Byte(p.ProposedWindowSize)
	}
	n += w.Byte(p.Service)
	return n + w.Raw(p.Payload)
}

// DecodeConfirmedRequest decodes a confirmed request.
func DecodeConfirmedRequest(b []byte) (*ConfirmedRequest, error) {
	if len(b) < 3 {
		return nil, ErrTruncated
	}
	p := &ConfirmedRequest{
		Segmented:                 b[0]&flagSegmented != 0,
		MoreFollows:               b[0]&flagMoreFollows != 0,
		SegmentedResponseAccepted: b[0]&flagSegmentedAccept != 0,
		MaxSegments:               DecodeMaxSegments(b[1] >> 4),
		MaxAPDU:                   DecodeMaxAPDU(b[1] & 0x0F),
		InvokeID:                  b[2],
	}
	off := 3
	if p.Segmented {
		if len(b) < off+segmentedHeaderExtra {
			return nil, ErrTruncated
		}
		p.SequenceNumber = b[3]
		p.ProposedWindowSize = b[4]
		off += segmentedHeaderExtra
	}
	if len(b) < off+1 {
		return nil, ErrTruncated
	}
	p.Service = b[off]
	off++
	p.Payload = b[off:]
	p.NoServiceData = len(p.Payload) == 0
	return p, nil
}

// UnconfirmedRequest is a BACnet-Unconfirmed-Request-PDU.
type UnconfirmedRequest struct {
	Service uint8
	Payload []byte
}

func (*UnconfirmedRequest) Type() Type { return TypeUnconfirmedRequest }

// Encode writes the request.
func (p *UnconfirmedRequest) Encode(w *tag.Writer) int {
	n := w.Byte(byte(TypeUnconfirmedRequest) << 4)
	n += w.Byte(p.Service)
	return n + w.Raw(p.Payload)
}

// DecodeUnconfirmedRequest decodes an unconfirmed request.
func DecodeUnconfirmedRequest(b []byte) (*UnconfirmedRequest, error) {
	if len(b) < 2 {
		return nil, ErrTruncated
	}
	return &UnconfirmedRequest{Service: b[1], Payload: b[2:]}, nil
}

// SimpleAck is a BACnet-SimpleACK-PDU.
type SimpleAck struct {
	InvokeID uint8
	Service  uint8
}

func (*SimpleAck) Type() Type { return TypeSimpleAck }

// Encode writes the ack.
func (p *SimpleAck) Encode(w *tag.Writer) int {
	return w.Byte(byte(TypeSimpleAck)<<4) + w.Byte(p.InvokeID) + w.Byte(p.Service)
}

// DecodeSimpleAck decodes a simple ack.
func DecodeSimpleAck(b []byte) (*SimpleAck, error) {
	if len(b) < 3 {
		return nil, ErrTruncated
	}
	return &SimpleAck{InvokeID: b[1], Service: b[2]}, nil
}

// ComplexAck is a BACnet-ComplexACK-PDU.
type ComplexAck struct {
	Segmented          bool
	MoreFollows        bool
	InvokeID           uint8
	SequenceNumber     uint8
	ProposedWindowSize uint8
	Service            uint8
	Payload            []byte
}

func (*ComplexAck) Type() Type { return TypeComplexAck }

// Encode writes the ack.
func (p *ComplexAck) Encode(w *tag.Writer) int {
	b0 := byte(TypeComplexAck) << 4
	if p.Segmented {
		b0 |= flagSegmented
	}
	if p.MoreFollows {
		b0 |= flagMoreFollows
	}
	n := w.Byte(b0) + w.Byte(p.InvokeID)
	if p.Segmented {
		n += w.Byte(p.SequenceNumber)
		n += w.Byte(p.ProposedWindowSize)
	}
	n += w.Byte(p.Service)
	return n + w.Raw(p.Payload)
}

// DecodeComplexAck decodes a complex ack.
func DecodeComplexAck(b []byte) (*ComplexAck, error) {
	if len(b) < 3 {
		return nil, ErrTruncated
	}
	p := &ComplexAck{
		Segmented:   b[0]&flagSegmented != 0,
		MoreFollows: b[0]&flagMoreFollows != 0,
		InvokeID:    b[1],
	}
	off := 2
	if p.Segmented {
		if len(b) < off+segmentedHeaderExtra+1 {
			return nil, ErrTruncated
		}
		p.SequenceNumber = b[2]
		p.ProposedWindowSize = b[3]
		off += segmentedHeaderExtra
	}
	p.Service = b[off]
	p.Payload = b[off+1:]
	return p, nil
}

// SegmentAck is a BACnet-SegmentACK-PDU.
type SegmentAck struct {
	NegativeAck      bool
	Server           bool
	InvokeID         uint8
	SequenceNumber   uint8
	ActualWindowSize uint8
}

func (*SegmentAck) Type() Type { return TypeSegmentAck }

// Encode writes the segment ack.
func (p *SegmentAck) Encode(w *tag.Writer) int {
	b0 := byte(TypeSegmentAck) << 4
	if p.NegativeAck {
		b0 |= flagNegativeAck
	}
	if p.Server {
		b0 |= flagServer
	}
	return w.Byte(b0) + w.Byte(p.InvokeID) + w.Byte(p.SequenceNumber) + w.Byte(p.ActualWindowSize)
}

// DecodeSegmentAck decodes a segment ack.
func DecodeSegmentAck(b []byte) (*SegmentAck, error) {
	if len(b) < 4 {
		return nil, ErrTruncated
	}
	return &SegmentAck{
		NegativeAck:      b[0]&flagNegativeAck != 0,
		Server:           b[0]&flagServer != 0,
		InvokeID:         b[1],
		SequenceNumber:   b[2],
		ActualWindowSize: b[3],
	}, nil
}

// Error is a BACnet-Error-PDU. Payload holds the encoded error
// parameters.
type Error struct {
	InvokeID uint8
	Service  uint8
	Payload  []byte
}

func (*Error) Type() Type { return TypeError }

// Encode writes the error.
func (p *Error) Encode(w *tag.Writer) int {
	return w.Byte(byte(TypeError)<<4) + w.Byte(p.InvokeID) + w.Byte(p.Service) + w.Raw(p.Payload)
}

// DecodeError decodes an error PDU.
func DecodeError(b []byte) (*Error, error) {
	if len(b) < 3 {
		return nil, ErrTruncated
	}
	return &Error{InvokeID: b[1], Service: b[2], Payload: b[3:]}, nil
}

// Reject is a BACnet-Reject-PDU.
type Reject struct {
	InvokeID uint8
	Reason   uint8
}

func (*Reject) Type() Type { return TypeReject }

// Encode writes the reject.
func (p *Reject) Encode(w *tag.Writer) int {
	return w.Byte(byte(TypeReject)<<4) + w.Byte(p.InvokeID) + w.Byte(p.Reason)
}

// DecodeReject decodes a reject.
func DecodeReject(b []byte) (*Reject, error) {
	if len(b) < 3 {
		return nil, ErrTruncated
	}
	return &Reject{InvokeID: b[1], Reason: b[2]}, nil
}

// Abort is a BACnet-Abort-PDU.
type Abort struct {
	Server   bool
	InvokeID uint8
	Reason   uint8
}

func (*Abort) Type() Type { return TypeAbort }

// Encode writes the abort.
func (p *Abort) Encode(w *tag.Writer) int {
	b0 := byte(TypeAbort) << 4
	if p.Server {
		b0 |= flagServer
	}
	return w.Byte(b0) + w.Byte(p.InvokeID) + w.Byte(p.Reason)
}

// DecodeAbort decodes an abort.
func DecodeAbort(b []byte) (*Abort, error) {
	if len(b) < 3 {
		return nil, ErrTruncated
	}
	return &Abort{Server: b[0]&flagServer != 0, InvokeID: b[1], Reason: b[2]}, nil
}
