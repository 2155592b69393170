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

package tsm

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

type sentPDU struct {
	dest  npdu.Address
	reply bool
	pdu   []byte
}

type fakeSender struct {
	sent []sentPDU
}

func (f *fakeSender) SendAPDU(dest npdu.Address, expectingReply bool, pdu []byte) error {
	f.sent = append(f.sent, sentPDU{dest: dest, reply: expectingReply, pdu: bytes.Clone(pdu)})
	return nil
}

func (f *fakeSender) decoded(t *testing.T, i int) apdu.PDU {
	t.Helper()
	if i >= len(f.sent) {
		t.Fatalf("only %d PDUs sent, want index %d", len(f.sent), i)
	}
	p, err := apdu.Decode(f.sent[i].pdu)
	if err != nil {
		t.Fatalf("decode sent PDU %d: %v", i, err)
	}
	return p
}

var peer = npdu.Address{MAC: []byte{192, 168, 1, 20, 0xBA, 0xC0}}

func readRequest(id uint8) *apdu.ConfirmedRequest {
	return &apdu.ConfirmedRequest{
		MaxAPDU:  apdu.MaxAPDU,
		InvokeID: id,
		Service:  12,
		Payload:  []byte{0x0C, 0x00, 0x00, 0x00, 0x01, 0x19, 0x55},
	}
}

func TestInvokeIDUniqueness(t *testing.T) {
	m := New(&fakeSender{}, WithSlots(8))
	seen := make(map[uint8]bool)
	for range 8 {
		id, err := m.NextFreeInvokeID()
		if err != nil {
			t.Fatalf("NextFreeInvokeID: %v", err)
		}
		if seen[id] {
			t.Fatalf("invoke ID %d handed out twice", id)
		}
		seen[id] = true
	}
	if _, err := m.NextFreeInvokeID(); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("err = %v, want ErrPoolExhausted", err)
	}
	if got := m.Active(); got != 8 {
		t.Errorf("Active = %d, want 8", got)
	}
}

func TestInvokeIDSkipsHeldAcrossWrap(t *testing.T) {
	m := New(&fakeSender{}, WithSlots(2))
	held, err := m.NextFreeInvokeID()
	if err != nil {
		t.Fatal(err)
	}
	for i := range 600 {
		id, err := m.NextFreeInvokeID()
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if id == held {
			t.Fatalf("iteration %d: got held invoke ID %d", i, id)
		}
		m.FreeInvokeID(id)
	}
}

func TestSetConfirmedUnsegmentedTransaction(t *testing.T) {
	m := New(&fakeSender{})
	if err := m.SetConfirmedUnsegmentedTransaction(42, peer, []byte{1}); !errors.Is(err, ErrInvalidInvokeID) {
		t.Errorf("unreserved: err = %v, want ErrInvalidInvokeID", err)
	}
	id, _ := m.NextFreeInvokeID()
	if err := m.SetConfirmedUnsegmentedTransaction(id, peer, []byte{1}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if got := m.StateOf(id); got != StateAwaitingAck {
		t.Errorf("state = %s, want %s", got, StateAwaitingAck)
	}
	err := m.SetConfirmedUnsegmentedTransaction(id, peer, []byte{1})
	if !errors.Is(err, ErrInvokeIDInUse) {
		t.Errorf("reuse: err = %v, want ErrInvokeIDInUse", err)
	}
}

func TestRetryThenTimeout(t *testing.T) {
	s := &fakeSender{}
	var timeouts []uint8
	var services []uint8
	m := New(s,
		WithRetries(2),
		WithAPDUTimeout(1000*time.Millisecond),
		WithTimeoutFunc(func(id, service uint8, dest npdu.Address) {
			timeouts = append(timeouts, id)
			services = append(services, service)
		}))

	id, err := m.NextFreeInvokeID()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SendConfirmed(peer, readRequest(id), apdu.MaxAPDU, 0); err != nil {
		t.Fatalf("SendConfirmed: %v", err)
	}
	original := s.sent[0].pdu

	tests := []struct {
		sent     int
		timeouts int
		state    State
	}{
		{sent: 2, timeouts: 0, state: StateAwaitingAck},
		{sent: 3, timeouts: 0, state: StateAwaitingAck},
		{sent: 3, timeouts: 1, state: StateFree},
		{sent: 3, timeouts: 1, state: StateFree},
	}
	for i, tt := range tests {
		m.Tick(1000 * time.Millisecond)
		if len(s.sent) != tt.sent {
			t.Errorf("tick %d: %d PDUs sent, want %d", i+1, len(s.sent), tt.sent)
		}
		if len(timeouts) != tt.timeouts {
			t.Errorf("tick %d: %d timeouts, want %d", i+1, len(timeouts), tt.timeouts)
		}
		if got := m.StateOf(id); got != tt.state {
			t.Errorf("tick %d: state = %s, want %s", i+1, got, tt.state)
		}
	}
	for i, p := range s.sent {
		if !bytes.Equal(p.pdu, original) {
			t.Errorf("transmission %d differs from the original", i)
		}
	}
	if !m.InvokeIDFree(id) || !m.InvokeIDFailed(id) {
		t.Errorf("InvokeIDFree = %v, InvokeIDFailed = %v, want both true", m.InvokeIDFree(id), m.InvokeIDFailed(id))
	}
	if got := m.Stats().Retransmissions; got != 2 {
		t.Errorf("Retransmissions = %d, want 2", got)
	}
	if diff := cmp.Diff([]uint8{12}, services); diff != "" {
		t.Errorf("timed out services (-want +got):\n%s", diff)
	}
	m.FreeInvokeID(id)
	if m.InvokeIDFailed(id) {
		t.Error("failed mark survived FreeInvokeID")
	}
}

func TestTickAccumulates(t *testing.T) {
	s := &fakeSender{}
	m := New(s, WithAPDUTimeout(time.Second))
	id, _ := m.NextFreeInvokeID()
	if err := m.SendConfirmed(peer, readRequest(id), apdu.MaxAPDU, 0); err != nil {
		t.Fatal(err)
	}
	m.Tick(400 * time.Millisecond)
	m.Tick(400 * time.Millisecond)
	if len(s.sent) != 1 {
		t.Fatalf("retransmitted after 800ms of a 1s timeout")
	}
	m.Tick(400 * time.Millisecond)
	if len(s.sent) != 2 {
		t.Fatalf("%d PDUs sent after 1.2s, want 2", len(s.sent))
	}
}

func TestMatch(t *testing.T) {
	remote := npdu.Address{MAC: []byte{10, 0, 0, 1, 0xBA, 0xC0}, Net: 5, Adr: []byte{0x21}}
	tests := []struct {
		name string
		dest npdu.Address
		src  npdu.Address
		want bool
	}{
		{"same station", peer, peer, true},
		{"other station", peer, npdu.Address{MAC: []byte{192, 168, 1, 21, 0xBA, 0xC0}}, false},
		{"broadcast request", npdu.LocalBroadcast(), peer, true},
		{"remote station", remote, npdu.Address{MAC: []byte{10, 0, 0, 2, 0xBA, 0xC0}, Net: 5, Adr: []byte{0x21}}, true},
		{"remote station wrong net", remote, npdu.Address{MAC: remote.MAC, Net: 6, Adr: []byte{0x21}}, false},
		{"local answer to remote request", remote, npdu.Address{MAC: remote.MAC}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&fakeSender{})
			id, _ := m.NextFreeInvokeID()
			if err := m.SetConfirmedUnsegmentedTransaction(id, tt.dest, []byte{0}); err != nil {
				t.Fatal(err)
			}
			if got := m.Match(tt.src, id); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
			if m.Match(tt.src, id+1) {
				t.Error("matched an invoke ID that was never used")
			}
		})
	}
}

func TestMatchReservedSlot(t *testing.T) {
	m := New(&fakeSender{})
	id, _ := m.NextFreeInvokeID()
	if m.Match(peer, id) {
		t.Error("a reserved slot with nothing sent must not match")
	}
}

func TestInWindow(t *testing.T) {
	tests := []struct {
		a, b, w uint8
		want    bool
	}{
		{0, 0, 1, true},
		{1, 0, 1, false},
		{3, 0, 4, true},
		{4, 0, 4, false},
		{1, 254, 4, true},
		{2, 254, 4, false},
		{253, 254, 4, false},
	}
	for _, tt := range tests {
		if got := InWindow(tt.a, tt.b, tt.w); got != tt.want {
			t.Errorf("InWindow(%d, %d, %d) = %v, want %v", tt.a, tt.b, tt.w, got, tt.want)
		}
	}
}

func TestSegmentationDisabled(t *testing.T) {
	s := &fakeSender{}
	m := New(s)
	id, _ := m.NextFreeInvokeID()
	req := readRequest(id)
	req.Payload = make([]byte, 100)
	if err := m.SendConfirmed(peer, req, 50, 0); !errors.Is(err, ErrSegmentationUnsupported) {
		t.Errorf("SendConfirmed err = %v, want ErrSegmentationUnsupported", err)
	}

	seg := &apdu.ConfirmedRequest{Segmented: true, MoreFollows: true, InvokeID: 3, Service: 14, Payload: []byte{1}}
	_, err := m.ReceiveRequestSegment(peer, seg)
	var aborted *AbortedError
	if !errors.As(err, &aborted) || aborted.Reason != AbortSegmentationUnsupported {
		t.Fatalf("err = %v, want abort segmentation-not-supported", err)
	}
	want := &apdu.Abort{Server: true, InvokeID: 3, Reason: AbortSegmentationUnsupported}
	if diff := cmp.Diff(apdu.PDU(want), s.decoded(t, 0)); diff != "" {
		t.Errorf("abort mismatch (-want +got):\n%s", diff)
	}
}
