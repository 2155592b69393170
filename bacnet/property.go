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

	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

// ArrayAll is the array index meaning the whole array
const ArrayAll = 0xFFFFFFFF

// PropertyValue represents a property value with metadata
type PropertyValue struct {
	ObjectID   ObjectIdentifier
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
	Value      interface{}
	Priority   *uint8

	// Err is set instead of Value when a ReadPropertyMultiple could not
	// read this property.
	Err *BACnetError
}

// ReadPropertyRequest represents a ReadProperty request
type ReadPropertyRequest struct {
	ObjectID   ObjectIdentifier
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
}

// Encode encodes the service parameters.
func (r ReadPropertyRequest) Encode() []byte {
	w := tag.NewBuffer(16)
	w.ContextObjectID(0, r.ObjectID.Wire())
	w.ContextEnumerated(1, uint32(r.PropertyID))
	if r.ArrayIndex != nil {
		w.ContextUnsigned(2, *r.ArrayIndex)
	}
	return w.Bytes()
}

// DecodeReadProperty decodes ReadProperty parameters.
func DecodeReadProperty(b []byte) (ReadPropertyRequest, error) {
	var req ReadPropertyRequest
	r := tag.NewReader(b)
	if err := decodeReference(r, 0, &req.ObjectID, &req.PropertyID, &req.ArrayIndex); err != nil {
		return req, err
	}
	return req, finish(r)
}

// decodeReference reads an object identifier, a property identifier and
// an optional array index from consecutive context tags starting at n
func decodeReference(r *tag.Reader, n uint8, oid *ObjectIdentifier, prop *PropertyIdentifier, index **uint32) error {
	o, err := r.ContextObjectID(n)
	if err != nil {
		return err
	}
	p, err := r.ContextEnumerated(n + 1)
	if err != nil {
		return err
	}
	*oid, *prop = ObjectIdentifierOf(o), PropertyIdentifier(p)
	*index, err = optionalUnsigned(r, n+2)
	return err
}

// ReadPropertyAck is the ComplexAck of a ReadProperty. Value holds the
// application encoded property value.
type ReadPropertyAck struct {
	ObjectID   ObjectIdentifier
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
	Value      []byte
}

// Encode encodes the ack parameters.
func (a ReadPropertyAck) Encode() []byte {
	w := tag.NewBuffer(16 + len(a.Value))
	w.ContextObjectID(0, a.ObjectID.Wire())
	w.ContextEnumerated(1, uint32(a.PropertyID))
	if a.ArrayIndex != nil {
		w.ContextUnsigned(2, *a.ArrayIndex)
	}
	w.OpeningTag(3)
	w.Raw(a.Value)
	w.ClosingTag(3)
	return w.Bytes()
}

// Values decodes the property value as application values.
func (a ReadPropertyAck) Values() ([]tag.Value, error) {
	return tag.DecodeApplicationValues(a.Value)
}

// DecodeReadPropertyAck decodes a ReadProperty ack.
func DecodeReadPropertyAck(b []byte) (ReadPropertyAck, error) {
	var ack ReadPropertyAck
	r := tag.NewReader(b)
	if err := decodeReference(r, 0, &ack.ObjectID, &ack.PropertyID, &ack.ArrayIndex); err != nil {
		return ack, err
	}
	v, err := r.Enclosed(3)
	if err != nil {
		return ack, err
	}
	ack.Value = v
	return ack, finish(r)
}

// WritePropertyRequest represents a WriteProperty request. Value holds
// the application encoded value.
type WritePropertyRequest struct {
	ObjectID   ObjectIdentifier
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
	Value      []byte
	Priority   *uint8
}

// Encode encodes the service parameters.
func (r WritePropertyRequest) Encode() []byte {
	w := tag.NewBuffer(20 + len(r.Value))
	w.ContextObjectID(0, r.ObjectID.Wire())
	w.ContextEnumerated(1, uint32(r.PropertyID))
	if r.ArrayIndex != nil {
		w.ContextUnsigned(2, *r.ArrayIndex)
	}
	w.OpeningTag(3)
	w.Raw(r.Value)
	w.ClosingTag(3)
	if r.Priority != nil {
		w.ContextUnsigned(4, uint32(*r.Priority))
	}
	return w.Bytes()
}

// DecodeWriteProperty decodes WriteProperty parameters.
func DecodeWriteProperty(b []byte) (WritePropertyRequest, error) {
	var req WritePropertyRequest
	r := tag.NewReader(b)
	if err := decodeReference(r, 0, &req.ObjectID, &req.PropertyID, &req.ArrayIndex); err != nil {
		return req, err
	}
	v, err := r.Enclosed(3)
	if err != nil {
		return req, err
	}
	req.Value = v
	prio, err := optionalUnsigned(r, 4)
	if err != nil {
		return req, err
	}
	if prio != nil {
		if *prio < 1 || *prio > 16 {
			return req, fmt.Errorf("%w: priority %d", tag.ErrValueOutOfRange, *prio)
		}
		p := uint8(*prio)
		req.Priority = &p
	}
	return req, finish(r)
}

// PropertyReference names one property of an object
type PropertyReference struct {
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
}

// ReadAccessSpec lists the properties to read from one object
type ReadAccessSpec struct {
	ObjectID   ObjectIdentifier
	Properties []PropertyReference
}

// EncodeReadPropertyMultiple encodes ReadPropertyMultiple parameters.
func EncodeReadPropertyMultiple(specs []ReadAccessSpec) []byte {
	w := tag.NewBuffer(64)
	for _, spec := range specs {
		w.ContextObjectID(0, spec.ObjectID.Wire())
		w.OpeningTag(1)
		for _, p := range spec.Properties {
			w.ContextEnumerated(0, uint32(p.PropertyID))
			if p.ArrayIndex != nil {
				w.ContextUnsigned(1, *p.ArrayIndex)
			}
		}
		w.ClosingTag(1)
	}
	return w.Bytes()
}

// DecodeReadPropertyMultiple decodes ReadPropertyMultiple parameters.
func DecodeReadPropertyMultiple(b []byte) ([]ReadAccessSpec, error) {
	r := tag.NewReader(b)
	var specs []ReadAccessSpec
	for {
		oid, err := r.ContextObjectID(0)
		if err != nil {
			return nil, err
		}
		spec := ReadAccessSpec{ObjectID: ObjectIdentifierOf(oid)}
		if err := r.Opening(1); err != nil {
			return nil, err
		}
		for !r.IsClosing(1) {
			prop, err := r.ContextEnumerated(0)
			if err != nil {
				return nil, err
			}
			idx, err := optionalUnsigned(r, 1)
			if err != nil {
				return nil, err
			}
			spec.Properties = append(spec.Properties, PropertyReference{PropertyID: PropertyIdentifier(prop), ArrayIndex: idx})
		}
		if err := r.Closing(1); err != nil {
			return nil, err
		}
		if len(spec.Properties) == 0 {
			return nil, fmt.Errorf("%w: empty property list for %s", ErrTruncated, spec.ObjectID)
		}
		specs = append(specs, spec)
		if r.Empty() {
			return specs, nil
		}
	}
}

// ReadResult is one property of a ReadPropertyMultiple ack: an encoded
// value or the error that prevented reading it.
type ReadResult struct {
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
	Value      []byte
	Err        *BACnetError
}

// ReadAccessResult holds the results for one object
type ReadAccessResult struct {
	ObjectID ObjectIdentifier
	Results  []ReadResult
}

// EncodeReadPropertyMultipleAck encodes a ReadPropertyMultiple ack.
func EncodeReadPropertyMultipleAck(results []ReadAccessResult) []byte {
	w := tag.NewBuffer(128)
	for _, res := range results {
		w.ContextObjectID(0, res.ObjectID.Wire())
		w.OpeningTag(1)
		for _, rr := range res.Results {
			w.ContextEnumerated(2, uint32(rr.PropertyID))
			if rr.ArrayIndex != nil {
				w.ContextUnsigned(3, *rr.ArrayIndex)
			}
			if rr.Err != nil {
				w.OpeningTag(5)
				w.Enumerated(uint32(rr.Err.Class))
				w.Enumerated(uint32(rr.Err.Code))
				w.ClosingTag(5)
				continue
			}
			w.OpeningTag(4)
			w.Raw(rr.Value)
			w.ClosingTag(4)
		}
		w.ClosingTag(1)
	}
	return w.Bytes()
}

// DecodeReadPropertyMultipleAck decodes a ReadPropertyMultiple ack.
func DecodeReadPropertyMultipleAck(b []byte) ([]ReadAccessResult, error) {
	r := tag.NewReader(b)
	var out []ReadAccessResult
	for !r.Empty() {
		oid, err := r.ContextObjectID(0)
		if err != nil {
			return nil, err
		}
		res := ReadAccessResult{ObjectID: ObjectIdentifierOf(oid)}
		if err := r.Opening(1); err != nil {
			return nil, err
		}
		for !r.IsClosing(1) {
			var rr ReadResult
			prop, err := r.ContextEnumerated(2)
			if err != nil {
				return nil, err
			}
			rr.PropertyID = PropertyIdentifier(prop)
			if rr.ArrayIndex, err = optionalUnsigned(r, 3); err != nil {
				return nil, err
			}
			switch {
			case r.IsOpening(4):
				if rr.Value, err = r.Enclosed(4); err != nil {
					return nil, err
				}
			case r.IsOpening(5):
				body, err := r.Enclosed(5)
				if err != nil {
					return nil, err
				}
				if rr.Err, err = DecodeErrorPayload(ServiceReadPropertyMultiple, body); err != nil {
					return nil, err
				}
			default:
				if r.Empty() {
					return nil, ErrTruncated
				}
				t, _ := r.Peek()
				return nil, fmt.Errorf("%w: read result, got %s", ErrStructureMismatch, t)
			}
			res.Results = append(res.Results, rr)
		}
		if err := r.Closing(1); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// SubscribeCOVRequest subscribes to, or with neither Confirmed nor
// Lifetime set cancels, change of value notifications for one object.
type SubscribeCOVRequest struct {
	ProcessID uint32
	ObjectID  ObjectIdentifier
	Confirmed *bool
	Lifetime  *uint32 // seconds, 0 = indefinite
}

// IsCancellation reports whether the request cancels a subscription.
func (r SubscribeCOVRequest) IsCancellation() bool {
	return r.Confirmed == nil && r.Lifetime == nil
}

// Encode encodes the service parameters.
func (r SubscribeCOVRequest) Encode() []byte {
	w := tag.NewBuffer(20)
	w.ContextUnsigned(0, r.ProcessID)
	w.ContextObjectID(1, r.ObjectID.Wire())
	if r.Confirmed != nil {
		w.ContextBoolean(2, *r.Confirmed)
	}
	if r.Lifetime != nil {
		w.ContextUnsigned(3, *r.Lifetime)
	}
	return w.Bytes()
}

// DecodeSubscribeCOV decodes SubscribeCOV parameters.
func DecodeSubscribeCOV(b []byte) (SubscribeCOVRequest, error) {
	var req SubscribeCOVRequest
	r := tag.NewReader(b)
	pid, err := r.ContextUnsigned(0)
	if err != nil {
		return req, err
	}
	oid, err := r.ContextObjectID(1)
	if err != nil {
		return req, err
	}
	req.ProcessID, req.ObjectID = pid, ObjectIdentifierOf(oid)
	if r.IsContext(2) {
		c, err := r.ContextBoolean(2)
		if err != nil {
			return req, err
		}
		req.Confirmed = &c
	}
	if req.Lifetime, err = optionalUnsigned(r, 3); err != nil {
		return req, err
	}
	return req, finish(r)
}

// COVValue is one property carried by a COV notification
type COVValue struct {
	PropertyID PropertyIdentifier
	ArrayIndex *uint32
	Value      []byte
	Priority   *uint8
}

// COVNotification is a confirmed or unconfirmed COV notification.
type COVNotification struct {
	ProcessID     uint32
	DeviceID      ObjectIdentifier
	ObjectID      ObjectIdentifier
	TimeRemaining uint32
	Values        []COVValue
}

// Encode encodes the service parameters.
func (n COVNotification) Encode() []byte {
	w := tag.NewBuffer(64)
	w.ContextUnsigned(0, n.ProcessID)
	w.ContextObjectID(1, n.DeviceID.Wire())
	w.ContextObjectID(2, n.ObjectID.Wire())
	w.ContextUnsigned(3, n.TimeRemaining)
	w.OpeningTag(4)
	for _, v := range n.Values {
		w.ContextEnumerated(0, uint32(v.PropertyID))
		if v.ArrayIndex != nil {
			w.ContextUnsigned(1, *v.ArrayIndex)
		}
		w.OpeningTag(2)
		w.Raw(v.Value)
		w.ClosingTag(2)
		if v.Priority != nil {
			w.ContextUnsigned(3, uint32(*v.Priority))
		}
	}
	w.ClosingTag(4)
	return w.Bytes()
}

// DecodeCOVNotification decodes COV notification parameters.
func DecodeCOVNotification(b []byte) (COVNotification, error) {
	var n COVNotification
	r := tag.NewReader(b)
	pid, err := r.ContextUnsigned(0)
	if err != nil {
		return n, err
	}
	dev, err := r.ContextObjectID(1)
	if err != nil {
		return n, err
	}
	obj, err := r.ContextObjectID(2)
	if err != nil {
		return n, err
	}
	remaining, err := r.ContextUnsigned(3)
	if err != nil {
		return n, err
	}
	n.ProcessID = pid
	n.DeviceID, n.ObjectID = ObjectIdentifierOf(dev), ObjectIdentifierOf(obj)
	n.TimeRemaining = remaining

	if err := r.Opening(4); err != nil {
		return n, err
	}
	for !r.IsClosing(4) {
		var v COVValue
		prop, err := r.ContextEnumerated(0)
		if err != nil {
			return n, err
		}
		v.PropertyID = PropertyIdentifier(prop)
		if v.ArrayIndex, err = optionalUnsigned(r, 1); err != nil {
			return n, err
		}
		if v.Value, err = r.Enclosed(2); err != nil {
			return n, err
		}
		prio, err := optionalUnsigned(r, 3)
		if err != nil {
			return n, err
		}
		if prio != nil {
			p := uint8(*prio)
			v.Priority = &p
		}
		n.Values = append(n.Values, v)
	}
	if err := r.Closing(4); err != nil {
		return n, err
	}
	return n, finish(r)
}

func optionalUnsigned(r *tag.Reader, n uint8) (*uint32, error) {
	if !r.IsContext(n) {
		return nil, nil
	}
	v, err := r.ContextUnsigned(n)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// EncodeValue encodes a Go value with its application tag.
func EncodeValue(value interface{}) ([]byte, error) {
	w := tag.NewBuffer(16)
	switch v := value.(type) {
	case nil:
		w.Null()
	case bool:
		w.Boolean(v)
	case int:
		if v >= 0 {
			w.Unsigned(uint32(v))
		} else {
			w.Signed(int32(v))
		}
	case int32:
		if v >= 0 {
			w.Unsigned(uint32(v))
		} else {
			w.Signed(v)
		}
	case uint:
		w.Unsigned(uint32(v))
	case uint8:
		w.Unsigned(uint32(v))
	case uint16:
		w.Unsigned(uint32(v))
	case uint32:
		w.Unsigned(v)
	case float32:
		w.Real(v)
	case float64:
		w.Double(v)
	case string:
		w.Text(v)
	case []byte:
		w.OctetString(v)
	case tag.BitString:
		w.BitString(v)
	case ObjectIdentifier:
		w.ObjectID(v.Wire())
	case []ObjectIdentifier:
		for _, oid := range v {
			w.ObjectID(oid.Wire())
		}
	case tag.ObjectID:
		w.ObjectID(v)
	case tag.Value:
		w.Value(v)
	case []tag.Value:
		for _, e := range v {
			w.Value(e)
		}
	default:
		return nil, fmt.Errorf("unsupported value type: %T", value)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeValue decodes application encoded property data into plain Go
// values: nil when empty, the value itself when there is one, and a
// []interface{} otherwise. Object identifiers come back as
// ObjectIdentifier.
func DecodeValue(b []byte) (interface{}, error) {
	values, err := tag.DecodeApplicationValues(b)
	if err != nil {
		return nil, err
	}
	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return plain(values[0]), nil
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = plain(v)
	}
	return out, nil
}

func plain(v tag.Value) interface{} {
	if v.Tag == tag.AppObjectID {
		return ObjectIdentifierOf(v.ObjectID)
	}
	return v.Interface()
}
