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

package npdu

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		in      []byte
		want    Message
		wantErr error
	}{
		{
			name: "local unconfirmed",
			in:   []byte{0x01, 0x00, 0x10, 0x08},
			want: Message{Payload: []byte{0x10, 0x08}},
		},
		{
			name: "expecting reply",
			in:   []byte{0x01, 0x04, 0x00, 0x05, 0x01, 0x0C},
			want: Message{
				Header:  Header{ExpectingReply: true},
				Payload: []byte{0x00, 0x05, 0x01, 0x0C},
			},
		},
		{
			name: "global broadcast unconfirmed",
			in:   []byte{0x01, 0x20, 0xFF, 0xFF, 0x00, 0xFF, 0x10, 0x08},
			want: Message{
				Header:  Header{Dest: &Remote{Net: GlobalBroadcast}, HopCount: 0xFF},
				Payload: []byte{0x10, 0x08},
			},
		},
		{
			name: "remote source",
			in:   []byte{0x01, 0x08, 0x00, 0x02, 0x01, 0x0A, 0x10, 0x00},
			want: Message{
				Header:  Header{Src: &Remote{Net: 2, Adr: []byte{0x0A}}},
				Payload: []byte{0x10, 0x00},
			},
		},
		{
			name: "network message",
			in:   []byte{0x01, 0x80, 0x12},
			want: Message{Header: Header{NetworkMessage: true, MessageType: WhatIsNetworkNumber}},
		},
		{
			name: "proprietary network message",
			in:   []byte{0x01, 0x80, 0x80, 0x01, 0x04, 0xAA},
			want: Message{
				Header:  Header{NetworkMessage: true, MessageType: 0x80, VendorID: 0x0104},
				Payload: []byte{0xAA},
			},
		},
		{
			name:    "global broadcast confirmed",
			in:      []byte{0x01, 0x24, 0xFF, 0xFF, 0x00, 0xFF, 0x00, 0x05, 0x01, 0x0C},
			wantErr: ErrConfirmedBroadcast,
		},
		{name: "routed", in: []byte{0x01, 0x20, 0x00, 0x05, 0x01, 0x07, 0xFF, 0x10, 0x08}, wantErr: ErrRouted},
		{name: "routed network message", in: []byte{0x01, 0xA0, 0x00, 0x05, 0x00, 0xFF, 0x12}, wantErr: ErrRouted},
		{name: "zero length source", in: []byte{0x01, 0x08, 0x00, 0x02, 0x00, 0x10, 0x08}, wantErr: ErrMalformed},
		{name: "oversized address", in: []byte{0x01, 0x20, 0x00, 0x05, 0x08}, wantErr: ErrMalformed},
		{name: "wrong version", in: []byte{0x02, 0x00, 0x10, 0x08}, wantErr: ErrVersion},
		{name: "empty", in: nil, wantErr: ErrTruncated},
		{name: "no apdu", in: []byte{0x01, 0x00}, wantErr: ErrNoAPDU},
		{name: "truncated destination", in: []byte{0x01, 0x20, 0xFF}, wantErr: ErrTruncated},
		{name: "missing hop count", in: []byte{0x01, 0x20, 0xFF, 0xFF, 0x00}, wantErr: ErrTruncated},
		{name: "missing vendor id", in: []byte{0x01, 0x80, 0x81, 0x00}, wantErr: ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{"local", NewHeader(Address{MAC: []byte{10, 0, 0, 1, 0xBA, 0xC0}}, false, PriorityNormal)},
		{"remote station", NewHeader(Address{MAC: []byte{1}, Net: 5, Adr: []byte{0x21}}, true, PriorityUrgent)},
		{"global broadcast", NewHeader(GlobalBroadcastAddress(), false, PriorityNormal)},
		{"with source", Header{Src: &Remote{Net: 9, Adr: []byte{1, 2}}, Priority: PriorityLifeSafety}},
		{"network message", Header{NetworkMessage: true, MessageType: NetworkNumberIs}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Encode(tt.h, []byte{0x10, 0x08})
			got, off, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if off != tt.h.Len() {
				t.Errorf("offset = %d, want %d", off, tt.h.Len())
			}
			if diff := cmp.Diff(tt.h, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNetworkNumberIs(t *testing.T) {
	b := EncodeNetworkNumberIs(7, true)
	if diff := cmp.Diff([]byte{0x01, 0x80, 0x13, 0x00, 0x07, 0x01}, b); diff != "" {
		t.Fatalf("encoding mismatch (-want +got):\n%s", diff)
	}
	m, err := Classify(b)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	net, status, err := DecodeNetworkNumberIs(m.Payload)
	if err != nil {
		t.Fatalf("DecodeNetworkNumberIs: %v", err)
	}
	if net != 7 || status != NetworkNumberConfigured {
		t.Errorf("got net %d status %d, want 7 and %d", net, status, NetworkNumberConfigured)
	}
	if _, _, err := DecodeNetworkNumberIs([]byte{0x00}); !errors.Is(err, ErrTruncated) {
		t.Errorf("short body err = %v, want ErrTruncated", err)
	}
}

func TestAddressBroadcast(t *testing.T) {
	tests := []struct {
		name string
		a    Address
		want bool
	}{
		{"local broadcast", LocalBroadcast(), true},
		{"global broadcast", GlobalBroadcastAddress(), true},
		{"remote broadcast", Address{MAC: []byte{1}, Net: 5}, true},
		{"local station", Address{MAC: []byte{1}}, false},
		{"remote station", Address{MAC: []byte{1}, Net: 5, Adr: []byte{2}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.IsBroadcast(); got != tt.want {
				t.Errorf("IsBroadcast(%s) = %v, want %v", tt.a, got, tt.want)
			}
		})
	}
}

func TestSourceAddress(t *testing.T) {
	h := Header{Src: &Remote{Net: 3, Adr: []byte{0x44}}}
	got := SourceAddress([]byte{7}, h)
	want := Address{MAC: []byte{7}, Net: 3, Adr: []byte{0x44}}
	if !got.Equal(want) {
		t.Errorf("SourceAddress = %s, want %s", got, want)
	}
}
