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

// Package bacnet implements a BACnet application and network layer engine:
// service dispatch with Device Communication Control, confirmed request
// transactions, a blocking client and default device handlers.
package bacnet

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
	"github.com/edgeo/drivers/bacstack/bacnet/tsm"
)

// peer is what an I-Am told us about a device
type peer struct {
	maxAPDU      int
	segmentation Segmentation
	maxSegments  int
}

type waiter struct {
	ch      chan *Confirmation
	service ConfirmedServiceChoice
	start   time.Time
}

// Stack is one BACnet protocol engine instance. It owns the handler
// registry, the transaction state machine and the DCC state. Every entry
// point serializes on one mutex; handlers run with it held.
type Stack struct {
	mu   sync.Mutex
	opts *stackOptions
	link Datalink
	tsm  *tsm.Machine
	reg  registry
	dcc  dcc

	network uint16
	peers   map[string]peer
	waiters map[uint8]*waiter
	synced  tsm.Stats

	metrics *Metrics
	logger  *slog.Logger

	running atomic.Bool
	closed  atomic.Bool
}

// NewStack creates a stack that sends and receives through link.
func NewStack(link Datalink, opts ...Option) *Stack {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}

	s := &Stack{
		opts:    o,
		link:    link,
		reg:     newRegistry(),
		network: o.networkNumber,
		peers:   make(map[string]peer),
		waiters: make(map[uint8]*waiter),
		metrics: o.metrics,
		logger:  o.logger,
	}
	mopts := append(o.machineOptions(), tsm.WithTimeoutFunc(s.onTimeout))
	s.tsm = tsm.New(apduSender{s}, mopts...)
	return s
}

// apduSender wraps APDUs from the transaction state machine in an NPDU
type apduSender struct {
	s *Stack
}

func (a apduSender) SendAPDU(dest npdu.Address, expectingReply bool, pdu []byte) error {
	return a.s.sendAPDU(dest, expectingReply, pdu)
}

func (s *Stack) sendAPDU(dest npdu.Address, expectingReply bool, pdu []byte) error {
	h := npdu.NewHeader(dest, expectingReply, npdu.Priority(s.opts.priority))
	return s.sendNPDU(dest, npdu.Encode(h, pdu))
}

func (s *Stack) sendNPDU(dest npdu.Address, b []byte) error {
	if s.closed.Load() {
		return ErrStackClosed
	}
	n, err := s.link.SendPDU(dest, b)
	if err != nil {
		return fmt.Errorf("send to %s: %w", dest, err)
	}
	s.metrics.PDUsSent.Inc()
	s.metrics.BytesSent.Add(int64(n))
	s.metrics.RecordActivity()
	return nil
}

// onTimeout runs inside tsm.Tick when a transaction ran out of retries
func (s *Stack) onTimeout(id, service uint8, dest npdu.Address) {
	s.metrics.RequestsTimedOut.Inc()
	err := &AbortError{InvokeID: id, Reason: AbortReasonTSMTimeout}
	s.logger.Debug("confirmed request timed out",
		slog.String("service", ConfirmedServiceChoice(service).String()),
		slog.Uint64("invoke_id", uint64(id)),
		slog.String("dest", dest.String()))
	if h := s.reg.abort; h != nil {
		h(dest, id, err.Reason, false)
	}
	c := &Confirmation{Source: dest, InvokeID: id, Service: ConfirmedServiceChoice(service), Err: err}
	if s.deliver(id, c) {
		s.tsm.FreeInvokeID(id)
	}
}

// DeviceID returns the local device instance.
func (s *Stack) DeviceID() uint32 { return s.opts.deviceID }

// VendorID returns the vendor identifier announced in I-Am.
func (s *Stack) VendorID() uint16 { return s.opts.vendorID }

// MaxAPDU returns the largest APDU the stack accepts.
func (s *Stack) MaxAPDU() int { return s.opts.maxAPDU }

// Segmentation returns the configured segmentation capability.
func (s *Stack) Segmentation() Segmentation { return s.opts.segmentation }

// Metrics returns the stack metrics.
func (s *Stack) Metrics() *Metrics { return s.metrics }

// Datalink returns the datalink the stack runs on.
func (s *Stack) Datalink() Datalink { return s.link }

// NetworkNumber returns the local network number, 0 while unknown.
func (s *Stack) NetworkNumber() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network
}

// CommunicationState returns the current DCC state.
func (s *Stack) CommunicationState() CommunicationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dcc.state
}

// SetCommunicationState changes the DCC state. A non-zero duration
// re-enables communication when it runs out.
func (s *Stack) SetCommunicationState(state CommunicationState, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCommunicationState(state, duration)
}

func (s *Stack) setCommunicationState(state CommunicationState, duration time.Duration) {
	s.dcc.set(state, duration)
	s.logger.Info("communication state changed",
		slog.String("state", state.String()),
		slog.Duration("duration", duration))
}

// InvokeIDFree reports whether no transaction holds id.
func (s *Stack) InvokeIDFree(id uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tsm.InvokeIDFree(id)
}

// InvokeIDFailed reports whether the transaction that used id timed out
// or was aborted.
func (s *Stack) InvokeIDFailed(id uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tsm.InvokeIDFailed(id)
}

// FreeInvokeID releases id once its outcome has been processed.
func (s *Stack) FreeInvokeID(id uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tsm.FreeInvokeID(id)
	s.metrics.ActiveTransactions.Set(int64(s.tsm.Active()))
}

// bind records the limits a device announced. Handlers call it with the
// lock held.
func (s *Stack) bind(addr npdu.Address, maxAPDU int, seg Segmentation) {
	p := s.peers[addr.String()]
	p.maxAPDU = maxAPDU
	p.segmentation = seg
	s.peers[addr.String()] = p
}

func (s *Stack) peerLimits(addr npdu.Address) peer {
	if p, ok := s.peers[addr.String()]; ok && p.maxAPDU > 0 {
		return p
	}
	return peer{maxAPDU: s.opts.maxAPDU, segmentation: SegmentationBoth}
}

// SendConfirmedRequest reserves an invoke ID and sends a confirmed
// request. The outcome reaches the registered ack, error, reject and abort
// handlers.
func (s *Stack) SendConfirmedRequest(dest npdu.Address, service ConfirmedServiceChoice, payload []byte) (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendConfirmed(dest, service, payload)
}

func (s *Stack) sendConfirmed(dest npdu.Address, service ConfirmedServiceChoice, payload []byte) (uint8, error) {
	if s.closed.Load() {
		return 0, ErrStackClosed
	}
	if s.dcc.state != CommunicationEnabled {
		return 0, ErrDCCBlocked
	}
	if dest.IsBroadcast() {
		return 0, ErrBroadcastDestination
	}

	id, err := s.tsm.NextFreeInvokeID()
	if err != nil {
		return 0, err
	}

	p := s.peerLimits(dest)
	req := &apdu.ConfirmedRequest{
		SegmentedResponseAccepted: s.tsm.Segmentation() && s.opts.segmentation.CanReceive(),
		MaxAPDU:                   s.opts.maxAPDU,
		InvokeID:                  id,
		Service:                   uint8(service),
		Payload:                   payload,
	}
	if s.tsm.Segmentation() {
		req.MaxSegments = s.tsm.MaxSegments()
	}

	limit := min(p.maxAPDU, s.opts.maxAPDU)
	if apdu.Len(req) > limit && (!s.canTransmitSegments() || !p.segmentation.CanReceive()) {
		s.tsm.FreeInvokeID(id)
		return 0, fmt.Errorf("%w: %d octets, limit %d", ErrAPDUTooLong, apdu.Len(req), limit)
	}

	if err := s.tsm.SendConfirmed(dest, req, limit, p.maxSegments); err != nil {
		s.tsm.FreeInvokeID(id)
		if errors.Is(err, tsm.ErrTooManySegments) {
			return 0, fmt.Errorf("%w: %v", ErrAPDUTooLong, err)
		}
		return 0, err
	}

	s.metrics.RequestsSent.Inc()
	s.metrics.ActiveTransactions.Set(int64(s.tsm.Active()))
	s.logger.Debug("confirmed request sent",
		slog.String("service", service.String()),
		slog.Uint64("invoke_id", uint64(id)),
		slog.String("dest", dest.String()))
	return id, nil
}

func (s *Stack) canTransmitSegments() bool {
	return s.tsm.Segmentation() && s.opts.segmentation.CanTransmit()
}

// SendUnconfirmedRequest sends an unconfirmed request. Use
// npdu.LocalBroadcast or npdu.GlobalBroadcastAddress to broadcast.
func (s *Stack) SendUnconfirmedRequest(dest npdu.Address, service UnconfirmedServiceChoice, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendUnconfirmed(dest, service, payload)
}

func (s *Stack) sendUnconfirmed(dest npdu.Address, service UnconfirmedServiceChoice, payload []byte) error {
	if !s.dcc.allowInitiate(service) {
		return ErrDCCBlocked
	}
	pdu := apdu.Bytes(&apdu.UnconfirmedRequest{Service: uint8(service), Payload: payload})
	if err := s.sendAPDU(dest, false, pdu); err != nil {
		return err
	}
	if service == ServiceWhoIs {
		s.metrics.WhoIsSent.Inc()
	}
	return nil
}

// DiscoverNetworkNumber broadcasts What-Is-Network-Number on the local
// network. A Network-Number-Is answer sets NetworkNumber unless one was
// configured.
func (s *Stack) DiscoverNetworkNumber() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendNPDU(npdu.LocalBroadcast(), npdu.EncodeWhatIsNetworkNumber())
}

// Tick advances the transaction and DCC timers by elapsed. Run calls it
// periodically; callers driving the stack themselves must too.
func (s *Stack) Tick(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tsm.Tick(elapsed)
	if s.dcc.tick(elapsed) {
		s.logger.Info("communication re-enabled after DCC timeout")
	}
	s.syncStats()
}

// syncStats moves new machine counts into the metrics
func (s *Stack) syncStats() {
	st := s.tsm.Stats()
	s.metrics.Retransmissions.Add(int64(st.Retransmissions - s.synced.Retransmissions))
	s.metrics.Timeouts.Add(int64(st.Timeouts - s.synced.Timeouts))
	s.metrics.SegmentsSent.Add(int64(st.SegmentsSent - s.synced.SegmentsSent))
	s.metrics.SegmentsReceived.Add(int64(st.SegmentsReceived - s.synced.SegmentsReceived))
	s.metrics.AbortsSent.Add(int64(st.AbortsSent - s.synced.AbortsSent))
	s.synced = st
	s.metrics.ActiveTransactions.Set(int64(s.tsm.Active()))
}

// Close fails every pending Request with ErrStackClosed and closes the
// datalink.
func (s *Stack) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	for id := range s.waiters {
		s.deliver(id, &Confirmation{InvokeID: id, Err: ErrStackClosed})
		s.tsm.FreeInvokeID(id)
	}
	s.mu.Unlock()
	return s.link.Close()
}
