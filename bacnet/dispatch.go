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

package bacnet

import (
	"errors"
	"log/slog"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
	"github.com/edgeo/drivers/bacstack/bacnet/tsm"
)

// Receive processes one NPDU from the datalink; src carries the datalink
// MAC. Handlers and confirmations may keep slices of b, so the caller must
// not reuse it.
func (s *Stack) Receive(src npdu.Address, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receive(src, b)
}

func (s *Stack) receive(src npdu.Address, b []byte) {
	s.metrics.PDUsReceived.Inc()
	s.metrics.BytesReceived.Add(int64(len(b)))
	s.metrics.RecordActivity()

	m, err := npdu.Classify(b)
	if err != nil {
		s.metrics.NPDUsDiscarded.Inc()
		s.logger.Debug("NPDU discarded",
			slog.String("src", src.String()),
			slog.Any("error", err))
		return
	}
	from := npdu.SourceAddress(src.MAC, m.Header)
	if m.IsNetworkMessage() {
		s.handleNetworkMessage(from, m)
		return
	}
	s.handleAPDU(from, m.Header.Priority, m.Payload)
}

func (s *Stack) handleNetworkMessage(src npdu.Address, m npdu.Message) {
	local := m.Header.Src == nil
	switch m.Header.MessageType {
	case npdu.WhatIsNetworkNumber:
		if !local || s.network == 0 {
			return
		}
		reply := npdu.EncodeNetworkNumberIs(s.network, s.opts.networkFixed)
		if err := s.sendNPDU(npdu.LocalBroadcast(), reply); err != nil {
			s.logger.Warn("Network-Number-Is not sent", slog.Any("error", err))
		}

	case npdu.NetworkNumberIs:
		if !local || s.opts.networkFixed {
			return
		}
		net, _, err := npdu.DecodeNetworkNumberIs(m.Payload)
		if err != nil {
			s.metrics.NPDUsDiscarded.Inc()
			return
		}
		if net != s.network {
			s.logger.Info("learned network number",
				slog.Uint64("network", uint64(net)),
				slog.String("from", src.String()))
			s.network = net
		}

	default:
		s.logger.Debug("network message ignored",
			slog.String("type", m.Header.MessageType.String()),
			slog.String("src", src.String()))
	}
}

// HandleAPDU dispatches one APDU from src. Receive calls it after the
// network layer; datalinks that carry bare APDUs may call it directly.
func (s *Stack) HandleAPDU(src npdu.Address, priority npdu.Priority, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleAPDU(src, priority, b)
}

func (s *Stack) handleAPDU(src npdu.Address, priority npdu.Priority, b []byte) {
	p, err := apdu.Decode(b)
	if err != nil {
		s.metrics.APDUsMalformed.Inc()
		s.logger.Debug("APDU discarded",
			slog.String("src", src.String()),
			slog.Any("error", err))
		return
	}

	switch pdu := p.(type) {
	case *apdu.ConfirmedRequest:
		s.handleConfirmed(src, priority, pdu)

	case *apdu.UnconfirmedRequest:
		s.handleUnconfirmed(src, priority, pdu)

	case *apdu.SimpleAck:
		if s.claim(src, pdu.InvokeID) {
			s.confirm(&Confirmation{Source: src, InvokeID: pdu.InvokeID, Service: ConfirmedServiceChoice(pdu.Service)})
		}

	case *apdu.ComplexAck:
		s.handleComplexAck(src, pdu)

	case *apdu.SegmentAck:
		if err := s.tsm.ReceiveSegmentAck(src, pdu); err != nil {
			s.metrics.UnmatchedResponses.Inc()
			s.logger.Debug("SegmentAck ignored",
				slog.Uint64("invoke_id", uint64(pdu.InvokeID)),
				slog.Any("error", err))
		}
		s.syncStats()

	case *apdu.Error:
		if !s.claim(src, pdu.InvokeID) {
			return
		}
		s.metrics.ErrorsReceived.Inc()
		service := ConfirmedServiceChoice(pdu.Service)
		c := &Confirmation{Source: src, InvokeID: pdu.InvokeID, Service: service}
		be, err := DecodeErrorPayload(service, pdu.Payload)
		if err != nil {
			c.Err = errors.Join(ErrInvalidResponse, err)
		} else {
			c.Err = be
		}
		s.confirm(c)

	case *apdu.Reject:
		if !s.claim(src, pdu.InvokeID) {
			return
		}
		s.metrics.RejectsReceived.Inc()
		s.confirm(&Confirmation{
			Source:   src,
			InvokeID: pdu.InvokeID,
			Service:  s.serviceOf(pdu.InvokeID),
			Err:      &RejectError{InvokeID: pdu.InvokeID, Reason: RejectReason(pdu.Reason)},
		})

	case *apdu.Abort:
		if !pdu.Server {
			// The requester gave up on one of our server transactions.
			if s.tsm.CancelServerTransaction(src, pdu.InvokeID) {
				s.logger.Debug("server transaction aborted by peer",
					slog.Uint64("invoke_id", uint64(pdu.InvokeID)),
					slog.String("reason", AbortReason(pdu.Reason).String()))
			}
			return
		}
		if !s.claim(src, pdu.InvokeID) {
			return
		}
		s.metrics.AbortsReceived.Inc()
		s.confirm(&Confirmation{
			Source:   src,
			InvokeID: pdu.InvokeID,
			Service:  s.serviceOf(pdu.InvokeID),
			Err:      &AbortError{InvokeID: pdu.InvokeID, Server: true, Reason: AbortReason(pdu.Reason)},
		})
	}
}

func (s *Stack) handleConfirmed(src npdu.Address, priority npdu.Priority, pdu *apdu.ConfirmedRequest) {
	s.metrics.ConfirmedReceived.Inc()
	service := ConfirmedServiceChoice(pdu.Service)
	if !s.dcc.allowConfirmed(service) {
		s.metrics.DCCDropped.Inc()
		s.logger.Debug("confirmed request dropped by DCC",
			slog.String("service", service.String()),
			slog.String("state", s.dcc.state.String()))
		return
	}

	if pdu.Segmented {
		full, err := s.tsm.ReceiveRequestSegment(src, pdu)
		s.syncStats()
		if err != nil {
			s.logger.Debug("segmented request aborted",
				slog.Uint64("invoke_id", uint64(pdu.InvokeID)),
				slog.Any("error", err))
			return
		}
		if full == nil {
			return
		}
		pdu = full
	}

	h, ok := s.reg.confirmed[service]
	if !ok {
		h = s.reg.unrecognized
	}
	req := &ServiceRequest{
		Source:                    src,
		Priority:                  priority,
		Confirmed:                 true,
		InvokeID:                  pdu.InvokeID,
		MaxAPDU:                   pdu.MaxAPDU,
		MaxSegments:               pdu.MaxSegments,
		SegmentedResponseAccepted: pdu.SegmentedResponseAccepted,
		NoServiceData:             pdu.NoServiceData,
		Service:                   pdu.Service,
		Payload:                   pdu.Payload,
		stack:                     s,
	}
	ack, err := h(req)
	s.respond(req, ack, err)
}

func (s *Stack) handleUnconfirmed(src npdu.Address, priority npdu.Priority, pdu *apdu.UnconfirmedRequest) {
	s.metrics.UnconfirmedReceived.Inc()
	service := UnconfirmedServiceChoice(pdu.Service)
	if !s.dcc.allowUnconfirmed(service) {
		s.metrics.DCCDropped.Inc()
		s.logger.Debug("unconfirmed request dropped by DCC",
			slog.String("service", service.String()),
			slog.String("state", s.dcc.state.String()))
		return
	}
	h, ok := s.reg.unconfirmed[service]
	if !ok {
		s.logger.Debug("unconfirmed service ignored",
			slog.String("service", service.String()),
			slog.String("src", src.String()))
		return
	}
	h(&ServiceRequest{
		Source:   src,
		Priority: priority,
		Service:  pdu.Service,
		Payload:  pdu.Payload,
		stack:    s,
	})
}

// respond answers a confirmed request with the outcome of its handler
func (s *Stack) respond(req *ServiceRequest, ack []byte, err error) {
	if err != nil {
		s.respondError(req, err)
		return
	}
	if ack == nil {
		s.reply(req.Source, &apdu.SimpleAck{InvokeID: req.InvokeID, Service: req.Service})
		s.metrics.AcksSent.Inc()
		return
	}

	ca := &apdu.ComplexAck{InvokeID: req.InvokeID, Service: req.Service, Payload: ack}
	limit := min(req.MaxAPDU, s.opts.maxAPDU)
	if apdu.Len(ca) <= limit {
		s.reply(req.Source, ca)
		s.metrics.AcksSent.Inc()
		return
	}
	if !req.SegmentedResponseAccepted || !s.canTransmitSegments() {
		s.abort(req.Source, req.InvokeID, AbortReasonSegmentationNotSupported)
		return
	}
	if err := s.tsm.SendSegmentedResponse(req.Source, ca, limit, req.MaxSegments); err != nil {
		reason := AbortReasonOther
		if errors.Is(err, tsm.ErrTooManySegments) {
			reason = AbortReasonAPDUTooLong
		}
		s.abort(req.Source, req.InvokeID, reason)
		return
	}
	s.metrics.AcksSent.Inc()
	s.syncStats()
}

func (s *Stack) respondError(req *ServiceRequest, err error) {
	var (
		bacnetErr *BACnetError
		rejectErr *RejectError
		abortErr  *AbortError
	)
	switch {
	case errors.As(err, &bacnetErr):
		s.reply(req.Source, &apdu.Error{
			InvokeID: req.InvokeID,
			Service:  req.Service,
			Payload:  EncodeErrorPayload(req.ConfirmedService(), bacnetErr),
		})
		s.metrics.ErrorsSent.Inc()
	case errors.As(err, &rejectErr):
		s.reply(req.Source, &apdu.Reject{InvokeID: req.InvokeID, Reason: uint8(rejectErr.Reason)})
		s.metrics.RejectsSent.Inc()
	case errors.As(err, &abortErr):
		s.abort(req.Source, req.InvokeID, abortErr.Reason)
	default:
		s.logger.Debug("confirmed request failed",
			slog.String("service", req.ConfirmedService().String()),
			slog.Uint64("invoke_id", uint64(req.InvokeID)),
			slog.Any("error", err))
		s.abort(req.Source, req.InvokeID, AbortReasonOther)
	}
}

func (s *Stack) abort(dest npdu.Address, id uint8, reason AbortReason) {
	s.reply(dest, &apdu.Abort{Server: true, InvokeID: id, Reason: uint8(reason)})
	s.metrics.AbortsSent.Inc()
}

func (s *Stack) reply(dest npdu.Address, p apdu.PDU) {
	if err := s.sendAPDU(dest, false, apdu.Bytes(p)); err != nil {
		s.logger.Warn("response not sent",
			slog.String("pdu", p.Type().String()),
			slog.Any("error", err))
	}
}

func (s *Stack) handleComplexAck(src npdu.Address, pdu *apdu.ComplexAck) {
	if !s.claim(src, pdu.InvokeID) {
		return
	}
	payload := pdu.Payload
	if pdu.Segmented {
		data, done, err := s.tsm.ReceiveComplexAckSegment(src, pdu)
		s.syncStats()
		var aborted *tsm.AbortedError
		switch {
		case errors.As(err, &aborted):
			// The machine already released the slot and told the peer.
			s.failTransaction(src, pdu.InvokeID, AbortReason(aborted.Reason))
			return
		case err != nil:
			s.logger.Debug("ComplexAck segment ignored", slog.Any("error", err))
			return
		case !done:
			return
		}
		payload = data
	}
	s.confirm(&Confirmation{
		Source:   src,
		InvokeID: pdu.InvokeID,
		Service:  ConfirmedServiceChoice(pdu.Service),
		Payload:  payload,
	})
}

// failTransaction reports a client transaction the stack aborted itself
func (s *Stack) failTransaction(dest npdu.Address, id uint8, reason AbortReason) {
	s.metrics.RequestsFailed.Inc()
	err := &AbortError{InvokeID: id, Reason: reason}
	if h := s.reg.abort; h != nil {
		h(dest, id, reason, false)
	}
	if s.deliver(id, &Confirmation{Source: dest, InvokeID: id, Service: s.serviceOf(id), Err: err}) {
		s.tsm.FreeInvokeID(id)
	}
}

// claim checks a response against the outstanding client transactions
func (s *Stack) claim(src npdu.Address, id uint8) bool {
	if s.tsm.Match(src, id) {
		return true
	}
	s.metrics.UnmatchedResponses.Inc()
	s.logger.Debug("response without a transaction",
		slog.Uint64("invoke_id", uint64(id)),
		slog.String("src", src.String()))
	return false
}

// confirm frees the transaction, runs the matching handler and wakes a
// waiting Request
func (s *Stack) confirm(c *Confirmation) {
	s.tsm.FreeInvokeID(c.InvokeID)
	s.metrics.ActiveTransactions.Set(int64(s.tsm.Active()))

	var (
		bacnetErr *BACnetError
		rejectErr *RejectError
		abortErr  *AbortError
	)
	switch {
	case c.Err == nil:
		s.metrics.RequestsSucceeded.Inc()
		if h := s.reg.acks[c.Service]; h != nil {
			h(c)
		}
	case errors.As(c.Err, &bacnetErr):
		s.metrics.RequestsFailed.Inc()
		if h := s.reg.errors[c.Service]; h != nil {
			h(c, bacnetErr)
		}
	case errors.As(c.Err, &rejectErr):
		s.metrics.RequestsFailed.Inc()
		if h := s.reg.reject; h != nil {
			h(c.Source, c.InvokeID, rejectErr.Reason)
		}
	case errors.As(c.Err, &abortErr):
		s.metrics.RequestsFailed.Inc()
		if h := s.reg.abort; h != nil {
			h(c.Source, c.InvokeID, abortErr.Reason, abortErr.Server)
		}
	default:
		s.metrics.RequestsFailed.Inc()
	}
	s.deliver(c.InvokeID, c)
}
