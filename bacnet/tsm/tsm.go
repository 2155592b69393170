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

// Package tsm implements the BACnet transaction state machine: invoke ID
// allocation, confirmed request retry and timeout, and segmented transfers.
//
// A Machine is not safe for concurrent use. The owning stack serializes
// every call, including Tick.
package tsm

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// State is the state of a transaction slot.
type State uint8

const (
	StateFree State = iota
	StateReserved
	StateAwaitingAck
	StateAwaitingSegmentAck
	StateSegmentedConfirmation
	StateSegmentedRequest
	StateSegmentedResponse
)

var stateNames = map[State]string{
	StateFree:                  "free",
	StateReserved:              "reserved",
	StateAwaitingAck:           "awaiting-ack",
	StateAwaitingSegmentAck:    "awaiting-segment-ack",
	StateSegmentedConfirmation: "segmented-confirmation",
	StateSegmentedRequest:      "segmented-request",
	StateSegmentedResponse:     "segmented-response",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Sender transmits an encoded APDU to dest.
type Sender interface {
	SendAPDU(dest npdu.Address, expectingReply bool, pdu []byte) error
}

// Stats counts machine activity.
type Stats struct {
	Retransmissions  uint64
	Timeouts         uint64
	SegmentsSent     uint64
	SegmentsReceived uint64
	AbortsSent       uint64
}

type slot struct {
	state    State
	invokeID uint8
	service  uint8
	dest     npdu.Address
	timer    time.Duration
	retry    int
	pdu      []byte

	// Only set for segmented transfers.
	out *outbound
	in  *inbound
}

func (s *slot) expire(elapsed time.Duration) bool {
	if s.timer > elapsed {
		s.timer -= elapsed
		return false
	}
	s.timer = 0
	return true
}

// Machine tracks client transactions in a fixed slot pool and server
// transactions that are mid-segmentation.
type Machine struct {
	opts    *machineOptions
	sender  Sender
	slots   []slot
	next    uint8
	failed  [256]bool
	servers map[serverKey]*serverTxn
	stats   Stats
}

// New creates a machine that transmits through sender.
func New(sender Sender, opts ...Option) *Machine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Machine{
		opts:    o,
		sender:  sender,
		slots:   make([]slot, o.slots),
		next:    1,
		servers: make(map[serverKey]*serverTxn),
	}
}

// Segmentation reports whether segmented transfers are enabled.
func (m *Machine) Segmentation() bool { return m.opts.segmentation }

// WindowSize returns the proposed window size.
func (m *Machine) WindowSize() uint8 { return m.opts.windowSize }

// MaxSegments returns the number of segments accepted when reassembling.
func (m *Machine) MaxSegments() int { return m.opts.maxSegments }

// Stats returns the activity counters.
func (m *Machine) Stats() Stats { return m.stats }

// SetTimeoutFunc replaces the timeout callback.
func (m *Machine) SetTimeoutFunc(fn TimeoutFunc) { m.opts.onTimeout = fn }

func (m *Machine) find(id uint8) *slot {
	for i := range m.slots {
		if m.slots[i].state != StateFree && m.slots[i].invokeID == id {
			return &m.slots[i]
		}
	}
	return nil
}

// NextFreeInvokeID reserves a slot and returns an invoke ID that no other
// slot holds.
func (m *Machine) NextFreeInvokeID() (uint8, error) {
	var free *slot
	for i := range m.slots {
		if m.slots[i].state == StateFree {
			free = &m.slots[i]
			break
		}
	}
	if free == nil {
		return 0, ErrPoolExhausted
	}
	for range 256 {
		id := m.next
		m.next++
		if m.find(id) != nil {
			continue
		}
		*free = slot{state: StateReserved, invokeID: id}
		m.failed[id] = false
		return id, nil
	}
	return 0, ErrPoolExhausted
}

// SetConfirmedUnsegmentedTransaction arms the reserved slot for id with a
// copy of pdu. The caller transmits the first copy.
func (m *Machine) SetConfirmedUnsegmentedTransaction(id uint8, dest npdu.Address, pdu []byte) error {
	s := m.find(id)
	if s == nil {
		return fmt.Errorf("%w: %d", ErrInvalidInvokeID, id)
	}
	if s.state != StateReserved {
		return fmt.Errorf("%w: %d is %s", ErrInvokeIDInUse, id, s.state)
	}
	s.state = StateAwaitingAck
	s.dest = dest.Clone()
	s.pdu = bytes.Clone(pdu)
	s.retry = 0
	s.timer = m.opts.apduTimeout
	return nil
}

// SendConfirmed arms the slot for req.InvokeID and transmits req, split
// into segments when it does not fit in peerMaxAPDU.
func (m *Machine) SendConfirmed(dest npdu.Address, req *apdu.ConfirmedRequest, peerMaxAPDU, peerMaxSegments int) error {
	if apdu.Len(req) > peerMaxAPDU {
		return m.sendSegmentedRequest(dest, req, peerMaxAPDU, peerMaxSegments)
	}
	b := apdu.Bytes(req)
	if err := m.SetConfirmedUnsegmentedTransaction(req.InvokeID, dest, b); err != nil {
		return err
	}
	m.find(req.InvokeID).service = req.Service
	return m.sender.SendAPDU(dest, true, b)
}

// InvokeIDFree reports whether no slot holds id.
func (m *Machine) InvokeIDFree(id uint8) bool {
	return m.find(id) == nil
}

// InvokeIDFailed reports whether the last transaction using id timed out
// or was aborted and has not been released since.
func (m *Machine) InvokeIDFailed(id uint8) bool {
	return m.failed[id]
}

// FreeInvokeID releases the slot holding id and clears its failed mark.
func (m *Machine) FreeInvokeID(id uint8) {
	if s := m.find(id); s != nil {
		*s = slot{}
	}
	m.failed[id] = false
}

// StateOf returns the state of the slot holding id.
func (m *Machine) StateOf(id uint8) State {
	if s := m.find(id); s != nil {
		return s.state
	}
	return StateFree
}

// Active returns the number of occupied client slots.
func (m *Machine) Active() int {
	n := 0
	for i := range m.slots {
		if m.slots[i].state != StateFree {
			n++
		}
	}
	return n
}

// Match reports whether a response from src with invoke ID id belongs to
// an outstanding client transaction.
func (m *Machine) Match(src npdu.Address, id uint8) bool {
	s := m.find(id)
	if s == nil {
		return false
	}
	switch s.state {
	case StateAwaitingAck, StateAwaitingSegmentAck, StateSegmentedConfirmation:
		return addressed(s.dest, src)
	}
	return false
}

// addressed reports whether src may answer a request sent to dest.
func addressed(dest, src npdu.Address) bool {
	if dest.IsBroadcast() {
		return true
	}
	if dest.Net != npdu.LocalNetwork {
		return dest.Net == src.Net && bytes.Equal(dest.Adr, src.Adr)
	}
	return src.Net == npdu.LocalNetwork && bytes.Equal(dest.MAC, src.MAC)
}

// Tick advances every timer by elapsed, retransmitting or failing
// transactions whose timer ran out.
func (m *Machine) Tick(elapsed time.Duration) {
	for i := range m.slots {
		s := &m.slots[i]
		switch s.state {
		case StateAwaitingAck, StateAwaitingSegmentAck:
			if !s.expire(elapsed) {
				continue
			}
			if s.retry < m.opts.retries {
				s.retry++
				m.retransmit(s)
			} else {
				m.fail(s)
			}
		case StateSegmentedConfirmation:
			if s.expire(elapsed) {
				m.fail(s)
			}
		}
	}
	m.tickServers(elapsed)
}

func (m *Machine) retransmit(s *slot) {
	m.stats.Retransmissions++
	m.opts.logger.Debug("retransmitting confirmed request",
		slog.Uint64("invoke_id", uint64(s.invokeID)),
		slog.Int("retry", s.retry),
		slog.String("dest", s.dest.String()))

	if s.out == nil {
		s.timer = m.opts.apduTimeout
		if err := m.sender.SendAPDU(s.dest, true, s.pdu); err != nil {
			m.opts.logger.Warn("retransmit failed", slog.Any("error", err))
		}
		return
	}
	if s.state == StateAwaitingAck {
		// All segments were acknowledged but no answer came; start over.
		s.out.base = 0
		s.out.window = 1
		s.state = StateAwaitingSegmentAck
	}
	s.timer = m.opts.segmentTimeout
	m.sendWindow(s.dest, s.out, true)
}

func (m *Machine) fail(s *slot) {
	id, service, dest := s.invokeID, s.service, s.dest
	*s = slot{}
	m.failed[id] = true
	m.stats.Timeouts++
	m.opts.logger.Debug("confirmed request timed out",
		slog.Uint64("invoke_id", uint64(id)),
		slog.Uint64("service", uint64(service)),
		slog.String("dest", dest.String()))
	if m.opts.onTimeout != nil {
		m.opts.onTimeout(id, service, dest)
	}
}

func (m *Machine) send(dest npdu.Address, expectingReply bool, p apdu.PDU) {
	if err := m.sender.SendAPDU(dest, expectingReply, apdu.Bytes(p)); err != nil {
		m.opts.logger.Warn("send failed",
			slog.String("pdu", p.Type().String()),
			slog.String("dest", dest.String()),
			slog.Any("error", err))
	}
}
