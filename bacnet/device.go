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

	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// ObjectStore is the object layer served by a Device. Values are
// application encoded. Failures should be *BACnetError so they reach the
// requester as an Error PDU.
type ObjectStore interface {
	ReadProperty(oid ObjectIdentifier, prop PropertyIdentifier, index *uint32) ([]byte, error)
	WriteProperty(oid ObjectIdentifier, prop PropertyIdentifier, index *uint32, value []byte, priority *uint8) error
	Objects() []ObjectIdentifier
}

// PropertyLister is implemented by stores that can expand the all,
// required and optional property references of ReadPropertyMultiple
type PropertyLister interface {
	Properties(oid ObjectIdentifier) []PropertyIdentifier
}

// ReinitializeFunc runs a ReinitializeDevice request that passed the
// password check. A *BACnetError refuses it.
type ReinitializeFunc func(state ReinitializedState) error

// Device serves the device side of the stack: discovery, property access
// through an ObjectStore, DeviceCommunicationControl and
// ReinitializeDevice.
type Device struct {
	stack    *Stack
	store    ObjectStore
	password string
	reinit   ReinitializeFunc
}

// DeviceOption configures a Device
type DeviceOption func(*Device)

// WithPassword sets the password required by DeviceCommunicationControl
// and ReinitializeDevice
func WithPassword(password string) DeviceOption {
	return func(d *Device) {
		d.password = password
	}
}

// WithReinitializeFunc sets the function run on ReinitializeDevice
func WithReinitializeFunc(f ReinitializeFunc) DeviceOption {
	return func(d *Device) {
		d.reinit = f
	}
}

// NewDevice installs the device handlers on s.
func NewDevice(s *Stack, store ObjectStore, opts ...DeviceOption) *Device {
	d := &Device{stack: s, store: store}
	for _, opt := range opts {
		opt(d)
	}

	s.SetUnconfirmedHandler(ServiceWhoIs, d.handleWhoIs)
	s.SetUnconfirmedHandler(ServiceWhoHas, d.handleWhoHas)
	s.SetConfirmedHandler(ServiceReadProperty, d.handleReadProperty)
	s.SetConfirmedHandler(ServiceWriteProperty, d.handleWriteProperty)
	s.SetConfirmedHandler(ServiceReadPropertyMultiple, d.handleReadPropertyMultiple)
	s.SetConfirmedHandler(ServiceDeviceCommunicationControl, d.handleDCC)
	s.SetConfirmedHandler(ServiceReinitializeDevice, d.handleReinitialize)
	return d
}

// ObjectID returns the device object identifier
func (d *Device) ObjectID() ObjectIdentifier {
	return NewObjectIdentifier(ObjectTypeDevice, d.stack.DeviceID())
}

func (d *Device) iAm() IAm {
	return IAm{
		DeviceID:     d.ObjectID(),
		MaxAPDU:      uint32(d.stack.MaxAPDU()),
		Segmentation: d.stack.Segmentation(),
		VendorID:     d.stack.VendorID(),
	}
}

// Announce broadcasts an I-Am for this device.
func (d *Device) Announce() error {
	return d.stack.SendUnconfirmedRequest(npdu.LocalBroadcast(), ServiceIAm, d.iAm().Encode())
}

// replyAddress is the broadcast that reaches the network of src
func replyAddress(src npdu.Address) npdu.Address {
	if src.IsRemote() {
		return npdu.Address{MAC: src.MAC, Net: src.Net}
	}
	return npdu.LocalBroadcast()
}

func (d *Device) handleWhoIs(req *ServiceRequest) {
	who, err := DecodeWhoIs(req.Payload)
	if err != nil {
		d.stack.logger.Debug("invalid Who-Is", slog.String("src", req.Source.String()), slog.Any("error", err))
		return
	}
	if !who.Matches(d.stack.DeviceID()) {
		return
	}
	if err := req.SendUnconfirmed(replyAddress(req.Source), ServiceIAm, d.iAm().Encode()); err != nil {
		d.stack.logger.Warn("I-Am not sent", slog.Any("error", err))
	}
}

func (d *Device) handleWhoHas(req *ServiceRequest) {
	who, err := DecodeWhoHas(req.Payload)
	if err != nil {
		d.stack.logger.Debug("invalid Who-Has", slog.String("src", req.Source.String()), slog.Any("error", err))
		return
	}
	if !who.Matches(d.stack.DeviceID()) {
		return
	}

	var have *IHave
	if who.ObjectID != nil {
		if name, ok := d.objectName(*who.ObjectID); ok {
			have = &IHave{ObjectID: *who.ObjectID, ObjectName: name}
		}
	} else {
		for _, oid := range d.store.Objects() {
			if name, ok := d.objectName(oid); ok && name == who.ObjectName {
				have = &IHave{ObjectID: oid, ObjectName: name}
				break
			}
		}
	}
	if have == nil {
		return
	}
	have.DeviceID = d.ObjectID()
	if err := req.SendUnconfirmed(replyAddress(req.Source), ServiceIHave, have.Encode()); err != nil {
		d.stack.logger.Warn("I-Have not sent", slog.Any("error", err))
	}
}

func (d *Device) objectName(oid ObjectIdentifier) (string, bool) {
	b, err := d.store.ReadProperty(oid, PropertyObjectName, nil)
	if err != nil {
		return "", false
	}
	v, _, err := tag.DecodeApplication(b)
	if err != nil || v.Tag != tag.AppCharacterString {
		return "", false
	}
	return v.String.Value, true
}

// readProperty answers the device object properties owned by the stack
// and hands everything else to the store
func (d *Device) readProperty(oid ObjectIdentifier, prop PropertyIdentifier, index *uint32) ([]byte, error) {
	if oid == d.ObjectID() && index == nil {
		w := tag.NewBuffer(8)
		switch prop {
		case PropertyObjectIdentifier:
			w.ObjectID(oid.Wire())
			return w.Bytes(), nil
		case PropertyMaxApduLengthAccepted:
			w.Unsigned(uint32(d.stack.MaxAPDU()))
			return w.Bytes(), nil
		case PropertySegmentationSupported:
			w.Enumerated(uint32(d.stack.Segmentation()))
			return w.Bytes(), nil
		case PropertyVendorIdentifier:
			w.Unsigned(uint32(d.stack.VendorID()))
			return w.Bytes(), nil
		}
	}
	return d.store.ReadProperty(oid, prop, index)
}

func (d *Device) handleReadProperty(req *ServiceRequest) ([]byte, error) {
	rp, err := DecodeReadProperty(req.Payload)
	if err != nil {
		return nil, rejectFor(err)
	}
	value, err := d.readProperty(rp.ObjectID, rp.PropertyID, rp.ArrayIndex)
	if err != nil {
		return nil, err
	}
	ack := ReadPropertyAck{
		ObjectID:   rp.ObjectID,
		PropertyID: rp.PropertyID,
		ArrayIndex: rp.ArrayIndex,
		Value:      value,
	}
	return ack.Encode(), nil
}

func (d *Device) handleWriteProperty(req *ServiceRequest) ([]byte, error) {
	wp, err := DecodeWriteProperty(req.Payload)
	if err != nil {
		return nil, rejectFor(err)
	}
	if err := d.store.WriteProperty(wp.ObjectID, wp.PropertyID, wp.ArrayIndex, wp.Value, wp.Priority); err != nil {
		return nil, err
	}
	d.stack.logger.Info("property written",
		slog.String("object", wp.ObjectID.String()),
		slog.String("property", wp.PropertyID.String()),
		slog.String("src", req.Source.String()))
	return nil, nil
}

func (d *Device) handleReadPropertyMultiple(req *ServiceRequest) ([]byte, error) {
	specs, err := DecodeReadPropertyMultiple(req.Payload)
	if err != nil {
		return nil, rejectFor(err)
	}
	results := make([]ReadAccessResult, 0, len(specs))
	for _, spec := range specs {
		res := ReadAccessResult{ObjectID: spec.ObjectID}
		for _, ref := range spec.Properties {
			res.Results = append(res.Results, d.readReference(spec.ObjectID, ref)...)
		}
		results = append(results, res)
	}
	return EncodeReadPropertyMultipleAck(results), nil
}

// readReference reads one property reference, expanding all, required
// and optional
func (d *Device) readReference(oid ObjectIdentifier, ref PropertyReference) []ReadResult {
	switch ref.PropertyID {
	case PropertyAll, PropertyRequired, PropertyOptional:
		lister, ok := d.store.(PropertyLister)
		if !ok {
			return []ReadResult{{
				PropertyID: ref.PropertyID,
				Err:        NewBACnetError(ErrorClassServices, ErrorCodeOptionalFunctionalityNotSupported),
			}}
		}
		props := lister.Properties(oid)
		if props == nil {
			return []ReadResult{{
				PropertyID: ref.PropertyID,
				Err:        NewBACnetError(ErrorClassObject, ErrorCodeUnknownObject),
			}}
		}
		out := make([]ReadResult, 0, len(props))
		for _, p := range props {
			out = append(out, d.readResult(oid, p, nil))
		}
		return out
	}
	return []ReadResult{d.readResult(oid, ref.PropertyID, ref.ArrayIndex)}
}

func (d *Device) readResult(oid ObjectIdentifier, prop PropertyIdentifier, index *uint32) ReadResult {
	rr := ReadResult{PropertyID: prop, ArrayIndex: index}
	value, err := d.readProperty(oid, prop, index)
	if err != nil {
		var bacnetErr *BACnetError
		if !errors.As(err, &bacnetErr) {
			bacnetErr = NewBACnetError(ErrorClassDevice, ErrorCodeOther)
		}
		rr.Err = bacnetErr
		return rr
	}
	rr.Value = value
	return rr
}

func (d *Device) checkPassword(password string) error {
	if len(password) > MaxPasswordLength {
		return &RejectError{Reason: RejectReasonParameterOutOfRange}
	}
	if d.password != "" && password != d.password {
		return NewBACnetError(ErrorClassSecurity, ErrorCodePasswordFailure)
	}
	return nil
}

func (d *Device) handleDCC(req *ServiceRequest) ([]byte, error) {
	ctl, err := DecodeDeviceCommunicationControl(req.Payload)
	if err != nil {
		return nil, rejectFor(err)
	}
	if _, ok := communicationStateNames[ctl.State]; !ok {
		return nil, &RejectError{Reason: RejectReasonUndefinedEnumeration}
	}
	if err := d.checkPassword(ctl.Password); err != nil {
		return nil, err
	}
	req.stack.setCommunicationState(ctl.State, ctl.TimeDuration())
	return nil, nil
}

func (d *Device) handleReinitialize(req *ServiceRequest) ([]byte, error) {
	ri, err := DecodeReinitializeDevice(req.Payload)
	if err != nil {
		return nil, rejectFor(err)
	}
	if _, ok := reinitNames[ri.State]; !ok {
		return nil, &RejectError{Reason: RejectReasonUndefinedEnumeration}
	}
	if err := d.checkPassword(ri.Password); err != nil {
		return nil, err
	}
	d.stack.logger.Info("reinitialize requested",
		slog.String("state", ri.State.String()),
		slog.String("src", req.Source.String()))
	if d.reinit != nil {
		return nil, d.reinit(ri.State)
	}
	return nil, nil
}

// rejectFor turns a service data decode error into the matching Reject
func rejectFor(err error) error {
	reason := RejectReasonOther
	switch {
	case errors.Is(err, ErrTrailingData):
		reason = RejectReasonTooManyArguments
	case errors.Is(err, ErrTruncated):
		reason = RejectReasonMissingRequiredParameter
	case errors.Is(err, ErrMalformedTag), errors.Is(err, ErrStructureMismatch):
		reason = RejectReasonInvalidTag
	case errors.Is(err, tag.ErrValueOutOfRange):
		reason = RejectReasonParameterOutOfRange
	case errors.Is(err, tag.ErrCharacterSet):
		reason = RejectReasonInvalidParameterDataType
	}
	return &RejectError{Reason: reason}
}
