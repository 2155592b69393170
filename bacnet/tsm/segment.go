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
	"log/slog"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// Header octets in front of each segment's service data.
const (
	requestSegmentHeader  = 6
	responseSegmentHeader = 5
)

// AbortOutOfResources is sent when no server transaction can be opened.
const AbortOutOfResources uint8 = 9

// InWindow reports whether sequence number a lies in the window of size w
// that starts at b.
func InWindow(a, b, w uint8) bool {
	return a-b < w
}

// outbound is a segmented message being sent.
type outbound struct {
	segments [][]byte
	base     int // first unacknowledged segment
	sent     int // one past the last segment transmitted
	window   int
}

// inbound is a segmented message being reassembled.
type inbound struct {
	buf     []byte
	last    uint8 // last sequence number received in order
	initial uint8 // sequence number that opened the current window
	window  uint8
	count   int
}

type serverKey struct {
	mac string
	net uint16
	adr string
	id  uint8
}

func keyOf(src npdu.Address, id uint8) serverKey {
	return serverKey{mac: string(src.MAC), net: src.Net, adr: string(src.Adr), id: id}
}

// serverTxn is a server transaction that spans several PDUs.
type serverTxn struct {
	state State
	peer  npdu.Address
	first apdu.ConfirmedRequest
	timer time.Duration
	retry int
	out   *outbound
	in    *inbound
}

func split(payload []byte, size int) [][]byte {
	if size <= 0 {
		return [][]byte{payload}
	}
	var chunks [][]byte
	for len(payload) > size {
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}
	return append(chunks, payload)
}

func clampWindow(w uint8) int {
	if w == 0 || w > 127 {
		return 1
	}
	return int(w)
}

func (m *Machine) sendWindow(dest npdu.Address, o *outbound, expectingReply bool) {
	end := min(o.base+o.window, len(o.segments))
	for i := o.base; i < end; i++ {
		if err := m.sender.SendAPDU(dest, expectingReply, o.segments[i]); err != nil {
			m.opts.logger.Warn("segment send failed",
				slog.Int("segment", i),
				slog.String("dest", dest.String()),
				slog.Any("error", err))
		}
		m.stats.SegmentsSent++
	}
	o.sent = end
}

// advance applies a SegmentAck to o. It reports whether every segment is
// acknowledged, and whether the ack was new.
func (m *Machine) advance(dest npdu.Address, o *outbound, sa *apdu.SegmentAck, expectingReply bool) (done, fresh bool) {
	// The window starts at the last acknowledged segment so that a NAK
	// repeating it can be recognised.
	first := uint8(o.base - 1)
	if !InWindow(sa.SequenceNumber, first, uint8(o.sent-o.base+1)) {
		return false, false
	}
	acked := o.base - 1 + int(sa.SequenceNumber-first)
	if acked == o.base-1 && !sa.NegativeAck {
		return false, false
	}
	o.base = acked + 1
	if o.base >= len(o.segments) {
		return true, true
	}
	o.window = clampWindow(sa.ActualWindowSize)
	m.sendWindow(dest, o, expectingReply)
	return false, true
}

func (m *Machine) sendSegmentedRequest(dest npdu.Address, req *apdu.ConfirmedRequest, peerMaxAPDU, peerMaxSegments int) error {
	if !m.opts.segmentation {
		return ErrSegmentationUnsupported
	}
	s := m.find(req.InvokeID)
	if s == nil {
		return ErrInvalidInvokeID
	}
	if s.state != StateReserved {
		return ErrInvokeIDInUse
	}
	chunks := split(req.Payload, peerMaxAPDU-requestSegmentHeader)
	if peerMaxSegments > 0 && len(chunks) > peerMaxSegments {
		return ErrTooManySegments
	}

	segments := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		seg := *req
		seg.Segmented = true
		seg.MoreFollows = i < len(chunks)-1
		seg.SequenceNumber = uint8(i)
		seg.ProposedWindowSize = m.opts.windowSize
		seg.Payload = chunk
		segments[i] = apdu.Bytes(&seg)
	}

	s.state = StateAwaitingSegmentAck
	s.service = req.Service
	s.dest = dest.Clone()
	s.retry = 0
	s.timer = m.opts.segmentTimeout
	s.out = &outbound{segments: segments, window: 1}
	m.sendWindow(s.dest, s.out, true)
	return nil
}

// SendSegmentedResponse sends ack to dest as a segmented ComplexAck and
// tracks it until the requester acknowledges the last segment.
func (m *Machine) SendSegmentedResponse(dest npdu.Address, ack *apdu.ComplexAck, peerMaxAPDU, peerMaxSegments int) error {
	if !m.opts.segmentation {
		return ErrSegmentationUnsupported
	}
	chunks := split(ack.Payload, peerMaxAPDU-responseSegmentHeader)
	if peerMaxSegments > 0 && len(chunks) > peerMaxSegments {
		return ErrTooManySegments
	}

	segments := make([][]byte, len(chunks))
	for i, chunk := range chunks {
		seg := *ack
		seg.Segmented = true
		seg.MoreFollows = i < len(chunks)-1
		seg.SequenceNumber = uint8(i)
		seg.ProposedWindowSize = m.opts.windowSize
		seg.Payload = chunk
		segments[i] = apdu.Bytes(&seg)
	}

	t := &serverTxn{
		state: StateSegmentedResponse,
		peer:  dest.Clone(),
		timer: m.opts.segmentTimeout,
		out:   &outbound{segments: segments, window: 1},
	}
	m.servers[keyOf(dest, ack.InvokeID)] = t
	m.sendWindow(t.peer, t.out, false)
	return nil
}

// ReceiveSegmentAck applies a SegmentAck from src to the transaction it
// acknowledges.
func (m *Machine) ReceiveSegmentAck(src npdu.Address, sa *apdu.SegmentAck) error {
	if sa.Server {
		s := m.find(sa.InvokeID)
		if s == nil || s.state != StateAwaitingSegmentAck || !addressed(s.dest, src) {
			return ErrNoTransaction
		}
		done, fresh := m.advance(s.dest, s.out, sa, true)
		switch {
		case done:
			s.state = StateAwaitingAck
			s.timer = m.opts.apduTimeout
			s.retry = 0
		case fresh:
			s.timer = m.opts.segmentTimeout
			s.retry = 0
		}
		return nil
	}

	k := keyOf(src, sa.InvokeID)
	t := m.servers[k]
	if t == nil || t.state != StateSegmentedResponse {
		return ErrNoTransaction
	}
	done, fresh := m.advance(t.peer, t.out, sa, false)
	switch {
	case done:
		delete(m.servers, k)
	case fresh:
		t.timer = m.opts.segmentTimeout
		t.retry = 0
	}
	return nil
}

func (m *Machine) open(seq, proposed uint8, payload []byte) (*inbound, bool) {
	if seq != 0 {
		return nil, false
	}
	window := min(clampWindow(proposed), int(m.opts.windowSize))
	m.stats.SegmentsReceived++
	return &inbound{buf: bytes.Clone(payload), window: uint8(window), count: 1}, true
}

type segmentResult uint8

const (
	segmentQueued segmentResult = iota
	segmentAcked
	segmentOutOfOrder
	segmentFinal
	segmentOverflow
)

func (m *Machine) accept(in *inbound, seq uint8, more bool, payload []byte) segmentResult {
	if seq != in.last+1 {
		in.initial = in.last
		return segmentOutOfOrder
	}
	in.count++
	m.stats.SegmentsReceived++
	if in.count > m.opts.maxSegments {
		return segmentOverflow
	}
	in.buf = append(in.buf, payload...)
	in.last = seq
	switch {
	case !more:
		return segmentFinal
	case seq == in.initial+in.window:
		in.initial = seq
		return segmentAcked
	}
	return segmentQueued
}

func (m *Machine) segmentAck(dest npdu.Address, id uint8, server, nak bool, seq, window uint8) {
	m.send(dest, false, &apdu.SegmentAck{
		NegativeAck:      nak,
		Server:           server,
		InvokeID:         id,
		SequenceNumber:   seq,
		ActualWindowSize: window,
	})
}

func (m *Machine) abort(dest npdu.Address, id uint8, server bool, reason uint8) error {
	m.stats.AbortsSent++
	m.send(dest, false, &apdu.Abort{Server: server, InvokeID: id, Reason: reason})
	return &AbortedError{InvokeID: id, Reason: reason}
}

// abortClient aborts the client transaction in s and marks it failed.
func (m *Machine) abortClient(s *slot, reason uint8) error {
	id, dest := s.invokeID, s.dest
	*s = slot{}
	m.failed[id] = true
	return m.abort(dest, id, false, reason)
}

// ReceiveComplexAckSegment applies one segment of a segmented ComplexAck
// from src. It returns the reassembled service data with done set once
// the final segment has arrived; the caller then releases the invoke ID.
func (m *Machine) ReceiveComplexAckSegment(src npdu.Address, ack *apdu.ComplexAck) (payload []byte, done bool, err error) {
	s := m.find(ack.InvokeID)
	if s == nil || !addressed(s.dest, src) {
		return nil, false, ErrNoTransaction
	}
	if !m.opts.segmentation {
		return nil, false, m.abortClient(s, AbortSegmentationUnsupported)
	}

	switch s.state {
	case StateAwaitingAck:
		in, ok := m.open(ack.SequenceNumber, ack.ProposedWindowSize, ack.Payload)
		if !ok {
			return nil, false, m.abortClient(s, AbortInvalidAPDUInThisState)
		}
		m.segmentAck(src, ack.InvokeID, false, false, 0, in.window)
		if !ack.MoreFollows {
			return in.buf, true, nil
		}
		s.state = StateSegmentedConfirmation
		s.in = in
		s.timer = m.opts.segmentTimeout
		return nil, false, nil

	case StateSegmentedConfirmation:
		s.timer = m.opts.segmentTimeout
		switch m.accept(s.in, ack.SequenceNumber, ack.MoreFollows, ack.Payload) {
		case segmentOverflow:
			return nil, false, m.abortClient(s, AbortBufferOverflow)
		case segmentOutOfOrder:
			m.segmentAck(src, ack.InvokeID, false, true, s.in.last, s.in.window)
		case segmentAcked:
			m.segmentAck(src, ack.InvokeID, false, false, s.in.last, s.in.window)
		case segmentFinal:
			m.segmentAck(src, ack.InvokeID, false, false, s.in.last, s.in.window)
			return s.in.buf, true, nil
		}
		return nil, false, nil
	}
	return nil, false, m.abortClient(s, AbortInvalidAPDUInThisState)
}

// ReceiveRequestSegment applies one segment of a segmented confirmed
// request from src. It returns the reassembled request once the final
// segment has arrived and nil while more segments are expected.
func (m *Machine) ReceiveRequestSegment(src npdu.Address, req *apdu.ConfirmedRequest) (*apdu.ConfirmedRequest, error) {
	if !m.opts.segmentation {
		return nil, m.abort(src, req.InvokeID, true, AbortSegmentationUnsupported)
	}

	k := keyOf(src, req.InvokeID)
	t := m.servers[k]
	if t == nil {
		if len(m.servers) >= m.opts.slots {
			return nil, m.abort(src, req.InvokeID, true, AbortOutOfResources)
		}
		in, ok := m.open(req.SequenceNumber, req.ProposedWindowSize, req.Payload)
		if !ok {
			return nil, m.abort(src, req.InvokeID, true, AbortInvalidAPDUInThisState)
		}
		m.segmentAck(src, req.InvokeID, true, false, 0, in.window)
		if !req.MoreFollows {
			return reassembled(req, in.buf), nil
		}
		m.servers[k] = &serverTxn{
			state: StateSegmentedRequest,
			peer:  src.Clone(),
			first: *req,
			timer: 4 * m.opts.segmentTimeout,
			in:    in,
		}
		return nil, nil
	}

	if t.state != StateSegmentedRequest {
		delete(m.servers, k)
		return nil, m.abort(src, req.InvokeID, true, AbortInvalidAPDUInThisState)
	}
	t.timer = 4 * m.opts.segmentTimeout
	switch m.accept(t.in, req.SequenceNumber, req.MoreFollows, req.Payload) {
	case segmentOverflow:
		delete(m.servers, k)
		return nil, m.abort(src, req.InvokeID, true, AbortBufferOverflow)
	case segmentOutOfOrder:
		m.segmentAck(src, req.InvokeID, true, true, t.in.last, t.in.window)
	case segmentAcked:
		m.segmentAck(src, req.InvokeID, true, false, t.in.last, t.in.window)
	case segmentFinal:
		m.segmentAck(src, req.InvokeID, true, false, t.in.last, t.in.window)
		delete(m.servers, k)
		return reassembled(&t.first, t.in.buf), nil
	}
	return nil, nil
}

func reassembled(first *apdu.ConfirmedRequest, payload []byte) *apdu.ConfirmedRequest {
	req := *first
	req.Segmented = false
	req.MoreFollows = false
	req.SequenceNumber = 0
	req.ProposedWindowSize = 0
	req.Payload = payload
	req.NoServiceData = len(payload) == 0
	return &req
}

// CancelServerTransaction drops the server transaction for (src, id)
// after the requester aborted it. It reports whether one was open.
func (m *Machine) CancelServerTransaction(src npdu.Address, id uint8) bool {
	k := keyOf(src, id)
	if _, ok := m.servers[k]; !ok {
		return false
	}
	delete(m.servers, k)
	return true
}

// ServerTransactions returns the number of open server transactions.
func (m *Machine) ServerTransactions() int { return len(m.servers) }

func (m *Machine) tickServers(elapsed time.Duration) {
	for k, t := range m.servers {
		if t.timer > elapsed {
			t.timer -= elapsed
			continue
		}
		switch t.state {
		case StateSegmentedResponse:
			if t.retry < m.opts.retries {
				t.retry++
				t.timer = m.opts.segmentTimeout
				m.stats.Retransmissions++
				m.sendWindow(t.peer, t.out, false)
				continue
			}
			m.opts.logger.Debug("segmented response timed out",
				slog.Uint64("invoke_id", uint64(k.id)),
				slog.String("peer", t.peer.String()))
		default:
			m.opts.logger.Debug("segmented request timed out",
				slog.Uint64("invoke_id", uint64(k.id)),
				slog.String("peer", t.peer.String()))
		}
		m.stats.Timeouts++
		delete(m.servers, k)
	}
}
