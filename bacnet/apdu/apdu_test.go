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

package apdu

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDecodeConfirmedRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    *ConfirmedRequest
		wantErr error
	}{
		{
			name: "read property",
			in:   []byte{0x00, 0x05, 0x05, 0x0C, 0x0C, 0x00, 0x00, 0x00, 0x01, 0x19, 0x55},
			want: &ConfirmedRequest{
				MaxAPDU:  1476,
				InvokeID: 5,
				Service:  12,
				Payload:  []byte{0x0C, 0x00, 0x00, 0x00, 0x01, 0x19, 0x55},
			},
		},
		{
			name: "segmented",
			in:   []byte{0x0E, 0x75, 0x01, 0x02, 0x04, 0x0E, 0xAA},
			want: &ConfirmedRequest{
				Segmented:                 true,
				MoreFollows:               true,
				SegmentedResponseAccepted: true,
				MaxSegments:               65,
				MaxAPDU:                   1476,
				InvokeID:                  1,
				SequenceNumber:            2,
				ProposedWindowSize:        4,
				Service:                   14,
				Payload:                   []byte{0xAA},
			},
		},
		{
			name: "no service data",
			in:   []byte{0x00, 0x03, 0x09, 0x0C},
			want: &ConfirmedRequest{
				MaxAPDU:       480,
				InvokeID:      9,
				Service:       12,
				Payload:       []byte{},
				NoServiceData: true,
			},
		},
		{name: "empty", in: nil, wantErr: ErrTruncated},
		{name: "two octets", in: []byte{0x00, 0x05}, wantErr: ErrTruncated},
		{name: "missing service choice", in: []byte{0x00, 0x05, 0x01}, wantErr: ErrTruncated},
		{name: "segmented missing window", in: []byte{0x08, 0x05, 0x01, 0x00}, wantErr: ErrTruncated},
		{name: "segmented missing service", in: []byte{0x08, 0x05, 0x01, 0x00, 0x01}, wantErr: ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeConfirmedRequest(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pdu  PDU
	}{
		{"confirmed", &ConfirmedRequest{MaxSegments: 8, MaxAPDU: 480, SegmentedResponseAccepted: true, InvokeID: 200, Service: 15, Payload: []byte{1, 2, 3}}},
		{"confirmed segmented", &ConfirmedRequest{Segmented: true, MoreFollows: true, MaxAPDU: 206, InvokeID: 3, SequenceNumber: 7, ProposedWindowSize: 16, Service: 16, Payload: []byte{9}}},
		{"unconfirmed", &UnconfirmedRequest{Service: 8, Payload: []byte{0x09, 0x01}}},
		{"simple ack", &SimpleAck{InvokeID: 9, Service: 15}},
		{"complex ack", &ComplexAck{InvokeID: 5, Service: 12, Payload: []byte{0x3E, 0x44, 0x42, 0x91, 0x00, 0x00, 0x3F}}},
		{"complex ack segmented", &ComplexAck{Segmented: true, MoreFollows: true, InvokeID: 5, SequenceNumber: 255, ProposedWindowSize: 2, Service: 14, Payload: []byte{1}}},
		{"segment ack", &SegmentAck{NegativeAck: true, Server: true, InvokeID: 1, SequenceNumber: 3, ActualWindowSize: 4}},
		{"error", &Error{InvokeID: 1, Service: 12, Payload: []byte{0x91, 0x02, 0x91, 0x20}}},
		{"reject", &Reject{InvokeID: 7, Reason: 9}},
		{"abort", &Abort{Server: true, InvokeID: 8, Reason: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bytes(tt.pdu)
			if len(b) != Len(tt.pdu) {
				t.Errorf("Bytes produced %d octets, Len reports %d", len(b), Len(tt.pdu))
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Type() != tt.pdu.Type() {
				t.Errorf("type = %s, want %s", got.Type(), tt.pdu.Type())
			}
			if diff := cmp.Diff(tt.pdu, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderTruncation(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"unconfirmed", []byte{0x10}},
		{"simple ack", []byte{0x20, 0x01}},
		{"complex ack", []byte{0x30, 0x01}},
		{"complex ack segmented", []byte{0x38, 0x01, 0x00, 0x01}},
		{"segment ack", []byte{0x40, 0x01, 0x02}},
		{"error", []byte{0x50, 0x01}},
		{"reject", []byte{0x60, 0x01}},
		{"abort", []byte{0x70, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.in); !errors.Is(err, ErrTruncated) {
				t.Errorf("err = %v, want ErrTruncated", err)
			}
		})
	}
}

func TestUnknownType(t *testing.T) {
	if _, err := Decode([]byte{0x80, 0x00, 0x00}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("err = %v, want ErrUnknownType", err)
	}
}

func TestKnownHeaders(t *testing.T) {
	tests := []struct {
		name string
		pdu  PDU
		want []byte
	}{
		{"reject unrecognized service", &Reject{InvokeID: 5, Reason: 9}, []byte{0x60, 0x05, 0x09}},
		{"abort from server", &Abort{Server: true, InvokeID: 1, Reason: 4}, []byte{0x71, 0x01, 0x04}},
		{"nak from client", &SegmentAck{NegativeAck: true, InvokeID: 1, SequenceNumber: 2, ActualWindowSize: 3}, []byte{0x42, 0x01, 0x02, 0x03}},
		{"simple ack", &SimpleAck{InvokeID: 3, Service: 15}, []byte{0x20, 0x03, 0x0F}},
		{"who-is", &UnconfirmedRequest{Service: 8}, []byte{0x10, 0x08}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Bytes(tt.pdu)); diff != "" {
				t.Errorf("encoding mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMaxAPDUCodes(t *testing.T) {
	tests := []struct {
		size int
		code byte
	}{
		{50, 0}, {127, 0}, {128, 1}, {206, 2}, {480, 3}, {1000, 3}, {1024, 4}, {1476, 5}, {9000, 5},
	}
	for _, tt := range tests {
		if got := EncodeMaxAPDU(tt.size); got != tt.code {
			t.Errorf("EncodeMaxAPDU(%d) = %d, want %d", tt.size, got, tt.code)
		}
	}
	for code, want := range []int{50, 128, 206, 480, 1024, 1476, 1476, 1476} {
		if got := DecodeMaxAPDU(byte(code)); got != want {
			t.Errorf("DecodeMaxAPDU(%d) = %d, want %d", code, got, want)
		}
	}
}

func TestMaxSegmentCodes(t *testing.T) {
	for code := byte(0); code < 8; code++ {
		n := DecodeMaxSegments(code)
		if got := EncodeMaxSegments(n); got != code {
			t.Errorf("EncodeMaxSegments(DecodeMaxSegments(%d) = %d) = %d", code, n, got)
		}
	}
	if got := EncodeMaxSegments(100); got != 7 {
		t.Errorf("EncodeMaxSegments(100) = %d, want 7", got)
	}
}
