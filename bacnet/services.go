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
	"fmt"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// Device management and discovery service parameters.

// WhoIsRequest is a Who-Is. Without limits it addresses every device.
type WhoIsRequest struct {
	LowLimit  *uint32
	HighLimit *uint32
}

// Encode encodes the service parameters.
func (r WhoIsRequest) Encode() []byte {
	if r.LowLimit == nil || r.HighLimit == nil {
		return nil
	}
	w := tag.NewBuffer(10)
	w.ContextUnsigned(0, *r.LowLimit)
	w.ContextUnsigned(1, *r.HighLimit)
	return w.Bytes()
}

// Matches reports whether device instance falls in the requested range.
func (r WhoIsRequest) Matches(instance uint32) bool {
	if r.LowLimit == nil || r.HighLimit == nil {
		return true
	}
	return instance >= *r.LowLimit && instance <= *r.HighLimit
}

// DecodeWhoIs decodes Who-Is parameters. The limits come as a pair or not
// at all.
func DecodeWhoIs(b []byte) (WhoIsRequest, error) {
	var req WhoIsRequest
	if len(b) == 0 {
		return req, nil
	}
	r := tag.NewReader(b)
	low, err := r.ContextUnsigned(0)
	if err != nil {
		return req, err
	}
	high, err := r.ContextUnsigned(1)
	if err != nil {
		return req, err
	}
	if low > tag.MaxInstance || high > tag.MaxInstance {
		return req, fmt.Errorf("%w: who-is limit above %d", tag.ErrValueOutOfRange, tag.MaxInstance)
	}
	req.LowLimit, req.HighLimit = &low, &high
	return req, finish(r)
}

// IAm is the I-Am announcement of a device.
type IAm struct {
	DeviceID     ObjectIdentifier
	MaxAPDU      uint32
	Segmentation Segmentation
	VendorID     uint16
}

// Encode encodes the service parameters.
func (a IAm) Encode() []byte {
	w := tag.NewBuffer(16)
	w.ObjectID(a.DeviceID.Wire())
	w.Unsigned(a.MaxAPDU)
	w.Enumerated(uint32(a.Segmentation))
	w.Unsigned(uint32(a.VendorID))
	return w.Bytes()
}

// DecodeIAm decodes I-Am parameters.
func DecodeIAm(b []byte) (IAm, error) {
	var a IAm
	r := tag.NewReader(b)
	oid, err := r.ObjectID()
	if err != nil {
		return a, err
	}
	if ObjectType(oid.Type) != ObjectTypeDevice {
		return a, fmt.Errorf("%w: i-am from %s", ErrInvalidResponse, ObjectIdentifierOf(oid))
	}
	maxAPDU, err := r.Unsigned()
	if err != nil {
		return a, err
	}
	seg, err := r.Enumerated()
	if err != nil {
		return a, err
	}
	vendor, err := r.Unsigned()
	if err != nil {
		return a, err
	}
	if vendor > 0xFFFF {
		return a, fmt.Errorf("%w: vendor id %d", tag.ErrValueOutOfRange, vendor)
	}
	return IAm{
		DeviceID:     ObjectIdentifierOf(oid),
		MaxAPDU:      maxAPDU,
		Segmentation: Segmentation(seg),
		VendorID:     uint16(vendor),
	}, nil
}

// WhoHasRequest asks which device holds an object, by identifier or by
// name. Exactly one of ObjectID and ObjectName is used.
type WhoHasRequest struct {
	LowLimit   *uint32
	HighLimit  *uint32
	ObjectID   *ObjectIdentifier
	ObjectName string
}

// Encode encodes the service parameters.
func (r WhoHasRequest) Encode() []byte {
	w := tag.NewBuffer(32)
	if r.LowLimit != nil && r.HighLimit != nil {
		w.ContextUnsigned(0, *r.LowLimit)
		w.ContextUnsigned(1, *r.HighLimit)
	}
	if r.ObjectID != nil {
		w.ContextObjectID(2, r.ObjectID.Wire())
	} else {
		w.ContextCharString(3, tag.UTF8(r.ObjectName))
	}
	return w.Bytes()
}

// Matches reports whether device instance falls in the requested range.
func (r WhoHasRequest) Matches(instance uint32) bool {
	return WhoIsRequest{LowLimit: r.LowLimit, HighLimit: r.HighLimit}.Matches(instance)
}

// DecodeWhoHas decodes Who-Has parameters.
func DecodeWhoHas(b []byte) (WhoHasRequest, error) {
	var req WhoHasRequest
	r := tag.NewReader(b)
	if r.IsContext(0) {
		low, err := r.ContextUnsigned(0)
		if err != nil {
			return req, err
		}
		high, err := r.ContextUnsigned(1)
		if err != nil {
			return req, err
		}
		req.LowLimit, req.HighLimit = &low, &high
	}
	switch {
	case r.IsContext(2):
		oid, err := r.ContextObjectID(2)
		if err != nil {
			return req, err
		}
		id := ObjectIdentifierOf(oid)
		req.ObjectID = &id
	case r.IsContext(3):
		name, err := r.ContextCharString(3)
		if err != nil {
			return req, err
		}
		req.ObjectName = name.Value
	default:
		if r.Empty() {
			return req, ErrTruncated
		}
		t, _ := r.Peek()
		return req, fmt.Errorf("%w: who-has object, got %s", ErrMalformedTag, t)
	}
	return req, finish(r)
}

// IHave answers a Who-Has.
type IHave struct {
	DeviceID   ObjectIdentifier
	ObjectID   ObjectIdentifier
	ObjectName string
}

// Encode encodes the service parameters.
func (h IHave) Encode() []byte {
	w := tag.NewBuffer(32)
	w.ObjectID(h.DeviceID.Wire())
	w.ObjectID(h.ObjectID.Wire())
	w.Text(h.ObjectName)
	return w.Bytes()
}

// DecodeIHave decodes I-Have parameters.
func DecodeIHave(b []byte) (IHave, error) {
	var h IHave
	r := tag.NewReader(b)
	dev, err := r.ObjectID()
	if err != nil {
		return h, err
	}
	obj, err := r.ObjectID()
	if err != nil {
		return h, err
	}
	name, err := r.CharString()
	if err != nil {
		return h, err
	}
	return IHave{DeviceID: ObjectIdentifierOf(dev), ObjectID: ObjectIdentifierOf(obj), ObjectName: name.Value}, nil
}

// MaxPasswordLength bounds the DCC and ReinitializeDevice password
const MaxPasswordLength = 20

// DeviceCommunicationControlRequest changes the communication state of a
// device, optionally for a number of minutes.
type DeviceCommunicationControlRequest struct {
	Duration *uint16 // minutes
	State    CommunicationState
	Password string
}

// TimeDuration returns the duration, 0 meaning indefinitely.
func (r DeviceCommunicationControlRequest) TimeDuration() time.Duration {
	if r.Duration == nil {
		return 0
	}
	return time.Duration(*r.Duration) * time.Minute
}

// Encode encodes the service parameters.
func (r DeviceCommunicationControlRequest) Encode() []byte {
	w := tag.NewBuffer(32)
	if r.Duration != nil {
		w.ContextUnsigned(0, uint32(*r.Duration))
	}
	w.ContextEnumerated(1, uint32(r.State))
	if r.Password != "" {
		w.ContextCharString(2, tag.UTF8(r.Password))
	}
	return w.Bytes()
}

// DecodeDeviceCommunicationControl decodes DCC parameters.
func DecodeDeviceCommunicationControl(b []byte) (DeviceCommunicationControlRequest, error) {
	var req DeviceCommunicationControlRequest
	r := tag.NewReader(b)
	if r.IsContext(0) {
		d, err := r.ContextUnsigned(0)
		if err != nil {
			return req, err
		}
		if d > 0xFFFF {
			return req, fmt.Errorf("%w: duration %d", tag.ErrValueOutOfRange, d)
		}
		m := uint16(d)
		req.Duration = &m
	}
	state, err := r.ContextEnumerated(1)
	if err != nil {
		return req, err
	}
	req.State = CommunicationState(state)
	if r.IsContext(2) {
		pw, err := r.ContextCharString(2)
		if err != nil {
			return req, err
		}
		req.Password = pw.Value
	}
	return req, finish(r)
}

// ReinitializedState is the restart requested by ReinitializeDevice
type ReinitializedState uint8

const (
	ReinitColdstart       ReinitializedState = 0
	ReinitWarmstart       ReinitializedState = 1
	ReinitStartBackup     ReinitializedState = 2
	ReinitEndBackup       ReinitializedState = 3
	ReinitStartRestore    ReinitializedState = 4
	ReinitEndRestore      ReinitializedState = 5
	ReinitAbortRestore    ReinitializedState = 6
	ReinitActivateChanges ReinitializedState = 7
)

var reinitNames = map[ReinitializedState]string{
	ReinitColdstart:       "coldstart",
	ReinitWarmstart:       "warmstart",
	ReinitStartBackup:     "start-backup",
	ReinitEndBackup:       "end-backup",
	ReinitStartRestore:    "start-restore",
	ReinitEndRestore:      "end-restore",
	ReinitAbortRestore:    "abort-restore",
	ReinitActivateChanges: "activate-changes",
}

func (s ReinitializedState) String() string {
	if name, ok := reinitNames[s]; ok {
		return name
	}
	return fmt.Sprintf("reinitialized-state(%d)", uint8(s))
}

// ParseReinitializedState accepts the names printed by String.
func ParseReinitializedState(s string) (ReinitializedState, bool) {
	for st, name := range reinitNames {
		if name == s {
			return st, true
		}
	}
	return 0, false
}

// ReinitializeDeviceRequest asks a device to restart.
type ReinitializeDeviceRequest struct {
	State    ReinitializedState
	Password string
}

// Encode encodes the service parameters.
func (r ReinitializeDeviceRequest) Encode() []byte {
	w := tag.NewBuffer(32)
	w.ContextEnumerated(0, uint32(r.State))
	if r.Password != "" {
		w.ContextCharString(1, tag.UTF8(r.Password))
	}
	return w.Bytes()
}

// DecodeReinitializeDevice decodes ReinitializeDevice parameters.
func DecodeReinitializeDevice(b []byte) (ReinitializeDeviceRequest, error) {
	var req ReinitializeDeviceRequest
	r := tag.NewReader(b)
	state, err := r.ContextEnumerated(0)
	if err != nil {
		return req, err
	}
	req.State = ReinitializedState(state)
	if r.IsContext(1) {
		pw, err := r.ContextCharString(1)
		if err != nil {
			return req, err
		}
		req.Password = pw.Value
	}
	return req, finish(r)
}

// complexErrorServices answer failures with the error wrapped in context
// tag 0 followed by service specific parameters
var complexErrorServices = map[ConfirmedServiceChoice]bool{
	ServiceAddListElement:           true,
	ServiceRemoveListElement:        true,
	ServiceCreateObject:             true,
	ServiceWritePropertyMultiple:    true,
	ServiceConfirmedPrivateTransfer: true,
	ServiceVTClose:                  true,
}

// EncodeErrorPayload encodes the parameters of an Error PDU answering
// service.
func EncodeErrorPayload(service ConfirmedServiceChoice, e *BACnetError) []byte {
	w := tag.NewBuffer(8 + len(e.Detail))
	if !complexErrorServices[service] {
		w.Enumerated(uint32(e.Class))
		w.Enumerated(uint32(e.Code))
		return w.Bytes()
	}
	w.OpeningTag(0)
	w.Enumerated(uint32(e.Class))
	w.Enumerated(uint32(e.Code))
	w.ClosingTag(0)
	w.Raw(e.Detail)
	return w.Bytes()
}

// DecodeErrorPayload decodes the parameters of an Error PDU. Both the
// plain and the complex form are accepted for any service.
func DecodeErrorPayload(service ConfirmedServiceChoice, b []byte) (*BACnetError, error) {
	r := tag.NewReader(b)
	wrapped := r.IsOpening(0)
	if wrapped {
		if err := r.Opening(0); err != nil {
			return nil, err
		}
	}
	class, err := r.Enumerated()
	if err != nil {
		return nil, fmt.Errorf("%s error class: %w", service, err)
	}
	code, err := r.Enumerated()
	if err != nil {
		return nil, fmt.Errorf("%s error code: %w", service, err)
	}
	e := &BACnetError{Class: ErrorClass(class), Code: ErrorCode(code)}
	if wrapped {
		if err := r.Closing(0); err != nil {
			return nil, err
		}
		if !r.Empty() {
			e.Detail = r.Remaining()
		}
	}
	return e, nil
}

// finish rejects parameters left over after decoding
func finish(r *tag.Reader) error {
	if !r.Empty() {
		return fmt.Errorf("%w: %d octets", ErrTrailingData, r.Len())
	}
	return nil
}
