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

func ackSegment(id, seq uint8, more bool, data ...byte) *apdu.ComplexAck {
	return &apdu.ComplexAck{
		Segmented:          true,
		MoreFollows:        more,
		InvokeID:           id,
		SequenceNumber:     seq,
		ProposedWindowSize: 4,
		Service:            14,
		Payload:            data,
	}
}

// awaiting returns a segmenting machine with one request outstanding.
func awaiting(t *testing.T, opts ...Option) (*Machine, *fakeSender, uint8) {
	t.Helper()
	s := &fakeSender{}
	m := New(s, append([]Option{WithSegmentation(2, 16)}, opts...)...)
	id, err := m.NextFreeInvokeID()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SendConfirmed(peer, readRequest(id), apdu.MaxAPDU, 0); err != nil {
		t.Fatal(err)
	}
	s.sent = nil
	return m, s, id
}

func TestReassembleComplexAck(t *testing.T) {
	m, s, id := awaiting(t)

	steps := []struct {
		seg     *apdu.ComplexAck
		wantAck *apdu.SegmentAck
		done    bool
	}{
		{ackSegment(id, 0, true, 'a'), &apdu.SegmentAck{InvokeID: id, SequenceNumber: 0, ActualWindowSize: 2}, false},
		{ackSegment(id, 1, true, 'b'), nil, false},
		{ackSegment(id, 2, true, 'c'), &apdu.SegmentAck{InvokeID: id, SequenceNumber: 2, ActualWindowSize: 2}, false},
		{ackSegment(id, 3, false, 'd'), &apdu.SegmentAck{InvokeID: id, SequenceNumber: 3, ActualWindowSize: 2}, true},
	}
	var payload []byte
	for i, st := range steps {
		s.sent = nil
		got, done, err := m.ReceiveComplexAckSegment(peer, st.seg)
		if err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
		if done != st.done {
			t.Fatalf("segment %d: done = %v, want %v", i, done, st.done)
		}
		if st.wantAck == nil {
			if len(s.sent) != 0 {
				t.Errorf("segment %d: unexpected %d PDUs sent", i, len(s.sent))
			}
		} else if diff := cmp.Diff(apdu.PDU(st.wantAck), s.decoded(t, 0)); diff != "" {
			t.Errorf("segment %d: ack mismatch (-want +got):\n%s", i, diff)
		}
		if i < 3 && m.StateOf(id) != StateSegmentedConfirmation {
			t.Errorf("segment %d: state = %s", i, m.StateOf(id))
		}
		payload = got
	}
	if !bytes.Equal(payload, []byte("abcd")) {
		t.Errorf("payload = %q, want %q", payload, "abcd")
	}
}

func TestReassembleOutOfOrder(t *testing.T) {
	m, s, id := awaiting(t)
	if _, _, err := m.ReceiveComplexAckSegment(peer, ackSegment(id, 0, true, 'a')); err != nil {
		t.Fatal(err)
	}
	s.sent = nil
	if _, _, err := m.ReceiveComplexAckSegment(peer, ackSegment(id, 2, true, 'c')); err != nil {
		t.Fatal(err)
	}
	want := &apdu.SegmentAck{NegativeAck: true, InvokeID: id, SequenceNumber: 0, ActualWindowSize: 2}
	if diff := cmp.Diff(apdu.PDU(want), s.decoded(t, 0)); diff != "" {
		t.Errorf("NAK mismatch (-want +got):\n%s", diff)
	}

	// A repeated segment is refused the same way.
	s.sent = nil
	if _, _, err := m.ReceiveComplexAckSegment(peer, ackSegment(id, 0, true, 'a')); err != nil {
		t.Fatal(err)
	}
	if p := s.decoded(t, 0).(*apdu.SegmentAck); !p.NegativeAck {
		t.Error("duplicate segment was acknowledged")
	}

	// Recovery resumes from the last good segment.
	payload, done, err := m.ReceiveComplexAckSegment(peer, ackSegment(id, 1, false, 'b'))
	if err != nil || !done {
		t.Fatalf("done = %v, err = %v", done, err)
	}
	if !bytes.Equal(payload, []byte("ab")) {
		t.Errorf("payload = %q, want %q", payload, "ab")
	}
}

func TestReassembleAborts(t *testing.T) {
	tests := []struct {
		name   string
		opts   []Option
		segs   func(id uint8) []*apdu.ComplexAck
		reason uint8
	}{
		{
			name:   "first segment not zero",
			segs:   func(id uint8) []*apdu.ComplexAck { return []*apdu.ComplexAck{ackSegment(id, 1, true, 'x')} },
			reason: AbortInvalidAPDUInThisState,
		},
		{
			name: "too many segments",
			opts: []Option{WithSegmentation(2, 2)},
			segs: func(id uint8) []*apdu.ComplexAck {
				return []*apdu.ComplexAck{
					ackSegment(id, 0, true, 'a'),
					ackSegment(id, 1, true, 'b'),
					ackSegment(id, 2, true, 'c'),
				}
			},
			reason: AbortBufferOverflow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s, id := awaiting(t, tt.opts...)
			var err error
			for _, seg := range tt.segs(id) {
				if _, _, err = m.ReceiveComplexAckSegment(peer, seg); err != nil {
					break
				}
			}
			var aborted *AbortedError
			if !errors.As(err, &aborted) || aborted.Reason != tt.reason {
				t.Fatalf("err = %v, want abort reason %d", err, tt.reason)
			}
			last := s.decoded(t, len(s.sent)-1)
			want := &apdu.Abort{InvokeID: id, Reason: tt.reason}
			if diff := cmp.Diff(apdu.PDU(want), last); diff != "" {
				t.Errorf("abort mismatch (-want +got):\n%s", diff)
			}
			if !m.InvokeIDFree(id) || !m.InvokeIDFailed(id) {
				t.Error("aborted transaction must be free and failed")
			}
		})
	}
}

func TestSegmentedConfirmationTimeout(t *testing.T) {
	var timedOut bool
	m, _, id := awaiting(t, WithSegmentTimeout(time.Second), WithTimeoutFunc(func(uint8, uint8, npdu.Address) { timedOut = true }))
	if _, _, err := m.ReceiveComplexAckSegment(peer, ackSegment(id, 0, true, 'a')); err != nil {
		t.Fatal(err)
	}
	m.Tick(time.Second)
	if !timedOut || !m.InvokeIDFree(id) {
		t.Errorf("timedOut = %v, free = %v; want both true", timedOut, m.InvokeIDFree(id))
	}
}

func TestSendSegmentedRequest(t *testing.T) {
	s := &fakeSender{}
	m := New(s, WithSegmentation(4, 16))
	id, _ := m.NextFreeInvokeID()
	req := readRequest(id)
	req.Service = 15
	req.Payload = bytes.Repeat([]byte{0xAB}, 100)

	// 50 octet APDUs leave 44 octets per segment: 44 + 44 + 12.
	if err := m.SendConfirmed(peer, req, 50, 0); err != nil {
		t.Fatalf("SendConfirmed: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("%d segments in the first window, want 1", len(s.sent))
	}
	first := s.decoded(t, 0).(*apdu.ConfirmedRequest)
	if !first.Segmented || !first.MoreFollows || first.SequenceNumber != 0 || len(first.Payload) != 44 {
		t.Errorf("first segment = %+v", first)
	}
	if m.StateOf(id) != StateAwaitingSegmentAck {
		t.Fatalf("state = %s, want %s", m.StateOf(id), StateAwaitingSegmentAck)
	}

	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{Server: true, InvokeID: id, SequenceNumber: 0, ActualWindowSize: 2}); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 3 {
		t.Fatalf("%d PDUs sent after the first ack, want 3", len(s.sent))
	}
	last := s.decoded(t, 2).(*apdu.ConfirmedRequest)
	if last.MoreFollows || last.SequenceNumber != 2 || len(last.Payload) != 12 {
		t.Errorf("last segment = %+v", last)
	}

	// Repeating the old ack changes nothing.
	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{Server: true, InvokeID: id, SequenceNumber: 0, ActualWindowSize: 2}); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 3 {
		t.Errorf("duplicate ack caused %d sends", len(s.sent)-3)
	}

	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{Server: true, InvokeID: id, SequenceNumber: 2, ActualWindowSize: 2}); err != nil {
		t.Fatal(err)
	}
	if m.StateOf(id) != StateAwaitingAck {
		t.Errorf("state = %s, want %s", m.StateOf(id), StateAwaitingAck)
	}
	if !m.Match(peer, id) {
		t.Error("the final ComplexAck would not match")
	}
}

func TestSendSegmentedRequestNak(t *testing.T) {
	s := &fakeSender{}
	m := New(s, WithSegmentation(4, 16))
	id, _ := m.NextFreeInvokeID()
	req := readRequest(id)
	req.Payload = make([]byte, 200)
	if err := m.SendConfirmed(peer, req, 50, 0); err != nil {
		t.Fatal(err)
	}
	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{Server: true, InvokeID: id, SequenceNumber: 0, ActualWindowSize: 3}); err != nil {
		t.Fatal(err)
	}
	s.sent = nil
	// Segment 2 went missing: the peer reports 1 as the last good one.
	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{NegativeAck: true, Server: true, InvokeID: id, SequenceNumber: 1, ActualWindowSize: 3}); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) == 0 {
		t.Fatal("nothing retransmitted after a NAK")
	}
	if seq := s.decoded(t, 0).(*apdu.ConfirmedRequest).SequenceNumber; seq != 2 {
		t.Errorf("retransmission starts at %d, want 2", seq)
	}
}

func TestTooManySegments(t *testing.T) {
	m := New(&fakeSender{}, WithSegmentation(4, 16))
	id, _ := m.NextFreeInvokeID()
	req := readRequest(id)
	req.Payload = make([]byte, 200)
	if err := m.SendConfirmed(peer, req, 50, 2); !errors.Is(err, ErrTooManySegments) {
		t.Errorf("err = %v, want ErrTooManySegments", err)
	}
}

func TestReassembleRequest(t *testing.T) {
	s := &fakeSender{}
	m := New(s, WithSegmentation(4, 16))
	seg := func(seq uint8, more bool, b byte) *apdu.ConfirmedRequest {
		return &apdu.ConfirmedRequest{
			Segmented:                 true,
			MoreFollows:               more,
			SegmentedResponseAccepted: true,
			MaxSegments:               16,
			MaxAPDU:                   480,
			InvokeID:                  9,
			SequenceNumber:            seq,
			ProposedWindowSize:        8,
			Service:                   15,
			Payload:                   []byte{b},
		}
	}

	for i, b := range []byte("xyz") {
		req, err := m.ReceiveRequestSegment(peer, seg(uint8(i), i < 2, b))
		if err != nil {
			t.Fatalf("segment %d: %v", i, err)
		}
		if i < 2 {
			if req != nil {
				t.Fatalf("segment %d completed the request", i)
			}
			continue
		}
		want := &apdu.ConfirmedRequest{
			SegmentedResponseAccepted: true,
			MaxSegments:               16,
			MaxAPDU:                   480,
			InvokeID:                  9,
			Service:                   15,
			Payload:                   []byte("xyz"),
		}
		if diff := cmp.Diff(want, req); diff != "" {
			t.Errorf("request mismatch (-want +got):\n%s", diff)
		}
	}
	// First segment and final segment are acknowledged by the server.
	if len(s.sent) != 2 {
		t.Fatalf("%d PDUs sent, want 2", len(s.sent))
	}
	ack := s.decoded(t, 0).(*apdu.SegmentAck)
	if !ack.Server || ack.ActualWindowSize != 4 {
		t.Errorf("first ack = %+v, want server ack with window 4", ack)
	}
	if m.ServerTransactions() != 0 {
		t.Errorf("%d server transactions left open", m.ServerTransactions())
	}
}

func TestReassembleRequestTimeout(t *testing.T) {
	m := New(&fakeSender{}, WithSegmentation(4, 16), WithSegmentTimeout(time.Second))
	req := &apdu.ConfirmedRequest{Segmented: true, MoreFollows: true, InvokeID: 1, Service: 15, Payload: []byte{1}}
	if _, err := m.ReceiveRequestSegment(peer, req); err != nil {
		t.Fatal(err)
	}
	m.Tick(3 * time.Second)
	if m.ServerTransactions() != 1 {
		t.Fatal("server transaction dropped before four segment timeouts")
	}
	m.Tick(time.Second)
	if m.ServerTransactions() != 0 {
		t.Error("server transaction survived four segment timeouts")
	}
}

func TestCancelServerTransaction(t *testing.T) {
	m := New(&fakeSender{}, WithSegmentation(4, 16))
	req := &apdu.ConfirmedRequest{Segmented: true, MoreFollows: true, InvokeID: 3, Service: 15, Payload: []byte{1}}
	if _, err := m.ReceiveRequestSegment(peer, req); err != nil {
		t.Fatal(err)
	}
	other := npdu.Address{MAC: []byte{10, 0, 0, 9, 0xBA, 0xC0}}
	if m.CancelServerTransaction(other, 3) {
		t.Error("cancelled a transaction of another peer")
	}
	if !m.CancelServerTransaction(peer, 3) {
		t.Fatal("open transaction not cancelled")
	}
	if m.ServerTransactions() != 0 || m.CancelServerTransaction(peer, 3) {
		t.Error("transaction still open after cancel")
	}
}

func TestSendSegmentedResponse(t *testing.T) {
	s := &fakeSender{}
	m := New(s, WithSegmentation(4, 16), WithSegmentTimeout(time.Second), WithRetries(1))
	ack := &apdu.ComplexAck{InvokeID: 7, Service: 14, Payload: make([]byte, 90)}

	// 50 octet APDUs leave 45 octets per segment.
	if err := m.SendSegmentedResponse(peer, ack, 50, 0); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("%d segments in the first window, want 1", len(s.sent))
	}

	m.Tick(time.Second)
	if len(s.sent) != 2 {
		t.Fatalf("first segment not retransmitted on timeout")
	}

	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{InvokeID: 7, SequenceNumber: 0, ActualWindowSize: 4}); err != nil {
		t.Fatal(err)
	}
	final := s.decoded(t, 2).(*apdu.ComplexAck)
	if final.MoreFollows || final.SequenceNumber != 1 || len(final.Payload) != 45 {
		t.Errorf("final segment = %+v", final)
	}
	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{InvokeID: 7, SequenceNumber: 1, ActualWindowSize: 4}); err != nil {
		t.Fatal(err)
	}
	if m.ServerTransactions() != 0 {
		t.Error("response still open after the final ack")
	}
	if err := m.ReceiveSegmentAck(peer, &apdu.SegmentAck{InvokeID: 7, SequenceNumber: 1}); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("late ack err = %v, want ErrNoTransaction", err)
	}
}
