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
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// ServiceRequest is an inbound service request handed to a handler.
type ServiceRequest struct {
	Source   npdu.Address
	Priority npdu.Priority

	// Confirmed requests only.
	Confirmed                 bool
	InvokeID                  uint8
	MaxAPDU                   int
	MaxSegments               int
	SegmentedResponseAccepted bool
	NoServiceData             bool

	Service uint8
	Payload []byte

	stack *Stack
}

// ConfirmedService returns the service choice of a confirmed request.
func (r *ServiceRequest) ConfirmedService() ConfirmedServiceChoice {
	return ConfirmedServiceChoice(r.Service)
}

// UnconfirmedService returns the service choice of an unconfirmed request.
func (r *ServiceRequest) UnconfirmedService() UnconfirmedServiceChoice {
	return UnconfirmedServiceChoice(r.Service)
}

// SendUnconfirmed sends an unconfirmed request from inside a handler.
// Handlers run with the stack locked and must use this instead of the
// Stack methods.
func (r *ServiceRequest) SendUnconfirmed(dest npdu.Address, service UnconfirmedServiceChoice, payload []byte) error {
	return r.stack.sendUnconfirmed(dest, service, payload)
}

// Confirmation is the outcome of a confirmed request: an ack, or the
// error, reject or abort that ended it.
type Confirmation struct {
	Source   npdu.Address
	InvokeID uint8
	Service  ConfirmedServiceChoice

	// Payload is the service ack data, nil for a SimpleAck.
	Payload []byte

	// Err is a *BACnetError, *RejectError or *AbortError when the
	// request failed.
	Err error
}

// ConfirmedHandler serves a confirmed request. A nil ack with a nil error
// answers with a SimpleAck, a non-nil ack with a ComplexAck. A
// *BACnetError, *RejectError or *AbortError is sent back as the
// matching PDU; any other error aborts the transaction.
type ConfirmedHandler func(req *ServiceRequest) (ack []byte, err error)

// UnconfirmedHandler serves an unconfirmed request
type UnconfirmedHandler func(req *ServiceRequest)

// AckHandler receives SimpleAck and ComplexAck confirmations
type AckHandler func(c *Confirmation)

// ErrorHandler receives Error PDUs
type ErrorHandler func(c *Confirmation, err *BACnetError)

// RejectHandler receives Reject PDUs
type RejectHandler func(src npdu.Address, invokeID uint8, reason RejectReason)

// AbortHandler receives Abort PDUs, and local aborts such as a
// transaction timeout
type AbortHandler func(src npdu.Address, invokeID uint8, reason AbortReason, server bool)

type registry struct {
	confirmed    map[ConfirmedServiceChoice]ConfirmedHandler
	unconfirmed  map[UnconfirmedServiceChoice]UnconfirmedHandler
	acks         map[ConfirmedServiceChoice]AckHandler
	errors       map[ConfirmedServiceChoice]ErrorHandler
	reject       RejectHandler
	abort        AbortHandler
	unrecognized ConfirmedHandler
}

func newRegistry() registry {
	return registry{
		confirmed:    make(map[ConfirmedServiceChoice]ConfirmedHandler),
		unconfirmed:  make(map[UnconfirmedServiceChoice]UnconfirmedHandler),
		acks:         make(map[ConfirmedServiceChoice]AckHandler),
		errors:       make(map[ConfirmedServiceChoice]ErrorHandler),
		unrecognized: rejectUnrecognized,
	}
}

func rejectUnrecognized(req *ServiceRequest) ([]byte, error) {
	return nil, &RejectError{InvokeID: req.InvokeID, Reason: RejectReasonUnrecognizedService}
}

// SetConfirmedHandler installs the handler for a confirmed service. A nil
// handler removes it.
func (s *Stack) SetConfirmedHandler(service ConfirmedServiceChoice, h ConfirmedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.reg.confirmed, service)
		return
	}
	s.reg.confirmed[service] = h
}

// SetUnconfirmedHandler installs the handler for an unconfirmed service.
// A nil handler removes it.
func (s *Stack) SetUnconfirmedHandler(service UnconfirmedServiceChoice, h UnconfirmedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.reg.unconfirmed, service)
		return
	}
	s.reg.unconfirmed[service] = h
}

// SetConfirmedAckHandler installs the handler for acks to service.
func (s *Stack) SetConfirmedAckHandler(service ConfirmedServiceChoice, h AckHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.reg.acks, service)
		return
	}
	s.reg.acks[service] = h
}

// SetErrorHandler installs the handler for Error PDUs answering service.
func (s *Stack) SetErrorHandler(service ConfirmedServiceChoice, h ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.reg.errors, service)
		return
	}
	s.reg.errors[service] = h
}

// SetRejectHandler installs the handler for Reject PDUs.
func (s *Stack) SetRejectHandler(h RejectHandler) {
	s.mu.Lock()
	s.reg.reject = h
	s.mu.Unlock()
}

// SetAbortHandler installs the handler for aborted transactions.
func (s *Stack) SetAbortHandler(h AbortHandler) {
	s.mu.Lock()
	s.reg.abort = h
	s.mu.Unlock()
}

// SetUnrecognizedServiceHandler replaces the handler for confirmed
// services with no registered handler. The default rejects the request
// with unrecognized-service; nil restores it.
func (s *Stack) SetUnrecognizedServiceHandler(h ConfirmedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		h = rejectUnrecognized
	}
	s.reg.unrecognized = h
}
