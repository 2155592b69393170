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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// DeviceInfo represents information about a BACnet device
type DeviceInfo struct {
	ObjectID            ObjectIdentifier
	Address             npdu.Address
	MaxAPDULength       uint32
	Segmentation        Segmentation
	VendorID            uint16
	VendorName          string
	ModelName           string
	FirmwareRevision    string
	ApplicationSoftware string
	Description         string
	Location            string
	ObjectList          []ObjectIdentifier
	LastSeen            time.Time
}

// COVHandler is called when a COV notification is received. It runs on
// the stack's dispatch goroutine and must not issue requests.
type COVHandler func(deviceID uint32, objectID ObjectIdentifier, values []PropertyValue)

// DeviceHandler is called for every I-Am received
type DeviceHandler func(dev *DeviceInfo)

type covSub struct {
	deviceID uint32
	objectID ObjectIdentifier
	handler  COVHandler
}

// Client issues confirmed requests through a Stack and blocks for the
// answer. The stack must be running (see Stack.Run).
type Client struct {
	stack   *Stack
	metrics *Metrics
	logger  *slog.Logger

	// Discovered devices
	devicesMu sync.RWMutex
	devices   map[uint32]*DeviceInfo
	watch     map[uint32]chan struct{}
	onDevice  DeviceHandler

	// COV subscriptions, by subscriber process ID
	covMu   sync.RWMutex
	covSubs map[uint32]*covSub
	nextSub atomic.Uint32
}

// NewClient creates a client on s and installs the I-Am and COV
// notification handlers.
func NewClient(s *Stack) *Client {
	c := &Client{
		stack:   s,
		metrics: s.Metrics(),
		logger:  s.logger,
		devices: make(map[uint32]*DeviceInfo),
		watch:   make(map[uint32]chan struct{}),
		covSubs: make(map[uint32]*covSub),
	}
	s.SetUnconfirmedHandler(ServiceIAm, c.handleIAm)
	s.SetUnconfirmedHandler(ServiceUnconfirmedCOVNotification, func(req *ServiceRequest) {
		if err := c.handleCOVNotification(req); err != nil {
			c.logger.Debug("invalid COV notification", slog.String("src", req.Source.String()), slog.Any("error", err))
		}
	})
	s.SetConfirmedHandler(ServiceConfirmedCOVNotification, func(req *ServiceRequest) ([]byte, error) {
		if err := c.handleCOVNotification(req); err != nil {
			return nil, rejectFor(err)
		}
		return nil, nil
	})
	return c
}

// Stack returns the stack the client sends through
func (c *Client) Stack() *Stack {
	return c.stack
}

// Metrics returns the stack metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// OnDevice sets a handler called for every I-Am received. It runs on the
// dispatch goroutine.
func (c *Client) OnDevice(h DeviceHandler) {
	c.devicesMu.Lock()
	c.onDevice = h
	c.devicesMu.Unlock()
}

func (c *Client) handleIAm(req *ServiceRequest) {
	iam, err := DecodeIAm(req.Payload)
	if err != nil {
		c.logger.Debug("invalid I-Am", slog.String("src", req.Source.String()), slog.Any("error", err))
		return
	}
	c.metrics.IAmReceived.Inc()
	req.stack.bind(req.Source, int(iam.MaxAPDU), iam.Segmentation)

	c.devicesMu.Lock()
	dev, known := c.devices[iam.DeviceID.Instance]
	if !known {
		dev = &DeviceInfo{ObjectID: iam.DeviceID}
		c.devices[iam.DeviceID.Instance] = dev
		c.metrics.DevicesDiscovered.Inc()
	}
	dev.Address = req.Source.Clone()
	dev.MaxAPDULength = iam.MaxAPDU
	dev.Segmentation = iam.Segmentation
	dev.VendorID = iam.VendorID
	dev.LastSeen = time.Now()
	if ch, ok := c.watch[iam.DeviceID.Instance]; ok {
		close(ch)
		delete(c.watch, iam.DeviceID.Instance)
	}
	onDevice := c.onDevice
	snapshot := *dev
	c.devicesMu.Unlock()

	if !known {
		c.logger.Info("device discovered",
			slog.Uint64("device", uint64(iam.DeviceID.Instance)),
			slog.String("address", req.Source.String()),
			slog.Uint64("vendor", uint64(iam.VendorID)))
	}
	if onDevice != nil {
		onDevice(&snapshot)
	}
}

func (c *Client) handleCOVNotification(req *ServiceRequest) error {
	n, err := DecodeCOVNotification(req.Payload)
	if err != nil {
		return err
	}
	c.metrics.COVNotifications.Inc()

	c.covMu.RLock()
	sub, ok := c.covSubs[n.ProcessID]
	c.covMu.RUnlock()
	if !ok {
		c.logger.Debug("COV notification for unknown subscription",
			slog.Uint64("process_id", uint64(n.ProcessID)),
			slog.String("object", n.ObjectID.String()))
		return nil
	}

	values := make([]PropertyValue, 0, len(n.Values))
	for _, v := range n.Values {
		pv := PropertyValue{
			ObjectID:   n.ObjectID,
			PropertyID: v.PropertyID,
			ArrayIndex: v.ArrayIndex,
			Priority:   v.Priority,
		}
		if pv.Value, err = DecodeValue(v.Value); err != nil {
			return err
		}
		values = append(values, pv)
	}
	sub.handler(n.DeviceID.Instance, n.ObjectID, values)
	return nil
}

// WhoIs sends a Who-Is request and collects the devices that answer
// until the discovery timeout.
func (c *Client) WhoIs(ctx context.Context, opts ...DiscoverOption) ([]*DeviceInfo, error) {
	options := defaultDiscoverOptions()
	for _, opt := range opts {
		opt(options)
	}
	who := WhoIsRequest{LowLimit: options.LowLimit, HighLimit: options.HighLimit}

	if err := c.stack.SendUnconfirmedRequest(discoveryAddress(options.Network), ServiceWhoIs, who.Encode()); err != nil {
		return nil, err
	}

	timer := time.NewTimer(options.Timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	c.devicesMu.RLock()
	devices := make([]*DeviceInfo, 0, len(c.devices))
	for _, dev := range c.devices {
		if who.Matches(dev.ObjectID.Instance) {
			d := *dev
			devices = append(devices, &d)
		}
	}
	c.devicesMu.RUnlock()

	return devices, nil
}

func discoveryAddress(network uint16) npdu.Address {
	switch network {
	case npdu.LocalNetwork:
		return npdu.LocalBroadcast()
	case npdu.GlobalBroadcast:
		return npdu.GlobalBroadcastAddress()
	}
	return npdu.Address{Net: network}
}

// GetDevice returns information about a discovered device
func (c *Client) GetDevice(deviceID uint32) (*DeviceInfo, bool) {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	dev, ok := c.devices[deviceID]
	if !ok {
		return nil, false
	}
	d := *dev
	return &d, true
}

// AddDevice records a device address without discovery, for devices that
// do not answer Who-Is.
func (c *Client) AddDevice(deviceID uint32, addr npdu.Address) {
	c.devicesMu.Lock()
	defer c.devicesMu.Unlock()
	c.devices[deviceID] = &DeviceInfo{
		ObjectID:      NewObjectIdentifier(ObjectTypeDevice, deviceID),
		Address:       addr.Clone(),
		MaxAPDULength: uint32(c.stack.MaxAPDU()),
		Segmentation:  SegmentationNone,
	}
}

// resolveDevice resolves a device ID to its address, sending a directed
// Who-Is when the device is not known yet
func (c *Client) resolveDevice(ctx context.Context, deviceID uint32) (npdu.Address, error) {
	c.devicesMu.Lock()
	if dev, ok := c.devices[deviceID]; ok {
		addr := dev.Address
		c.devicesMu.Unlock()
		return addr, nil
	}
	ch, ok := c.watch[deviceID]
	if !ok {
		ch = make(chan struct{})
		c.watch[deviceID] = ch
	}
	c.devicesMu.Unlock()

	who := WhoIsRequest{LowLimit: &deviceID, HighLimit: &deviceID}
	if err := c.stack.SendUnconfirmedRequest(npdu.GlobalBroadcastAddress(), ServiceWhoIs, who.Encode()); err != nil {
		return npdu.Address{}, err
	}

	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
		return npdu.Address{}, ctx.Err()
	}

	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	dev, ok := c.devices[deviceID]
	if !ok {
		return npdu.Address{}, fmt.Errorf("%w: %d", ErrDeviceNotFound, deviceID)
	}
	return dev.Address, nil
}

func (c *Client) request(ctx context.Context, deviceID uint32, service ConfirmedServiceChoice, payload []byte) ([]byte, error) {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	conf, err := c.stack.Request(ctx, addr, service, payload)
	if err != nil {
		return nil, err
	}
	return conf.Payload, nil
}

// ReadProperty reads a property from a BACnet object
func (c *Client) ReadProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, opts ...ReadOption) (interface{}, error) {
	options := &ReadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	req := ReadPropertyRequest{ObjectID: objectID, PropertyID: propertyID, ArrayIndex: options.ArrayIndex}
	resp, err := c.request(ctx, deviceID, ServiceReadProperty, req.Encode())
	if err != nil {
		return nil, err
	}

	ack, err := DecodeReadPropertyAck(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if ack.ObjectID != objectID || ack.PropertyID != propertyID {
		return nil, fmt.Errorf("%w: ack for %s %s", ErrInvalidResponse, ack.ObjectID, ack.PropertyID)
	}
	return DecodeValue(ack.Value)
}

// WriteProperty writes a property to a BACnet object
func (c *Client) WriteProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, value interface{}, opts ...WriteOption) error {
	options := &WriteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	encoded, err := EncodeValue(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	req := WritePropertyRequest{
		ObjectID:   objectID,
		PropertyID: propertyID,
		ArrayIndex: options.ArrayIndex,
		Value:      encoded,
		Priority:   options.Priority,
	}
	_, err = c.request(ctx, deviceID, ServiceWriteProperty, req.Encode())
	return err
}

// ReadPropertyMultiple reads multiple properties from one or more
// objects. Properties the device could not read come back with Err set.
func (c *Client) ReadPropertyMultiple(ctx context.Context, deviceID uint32, requests []ReadPropertyRequest) ([]PropertyValue, error) {
	// Group requests by object, keeping the order of first appearance
	var specs []ReadAccessSpec
	index := make(map[ObjectIdentifier]int)
	for _, req := range requests {
		i, ok := index[req.ObjectID]
		if !ok {
			i = len(specs)
			index[req.ObjectID] = i
			specs = append(specs, ReadAccessSpec{ObjectID: req.ObjectID})
		}
		specs[i].Properties = append(specs[i].Properties, PropertyReference{
			PropertyID: req.PropertyID,
			ArrayIndex: req.ArrayIndex,
		})
	}

	resp, err := c.request(ctx, deviceID, ServiceReadPropertyMultiple, EncodeReadPropertyMultiple(specs))
	if err != nil {
		return nil, err
	}

	results, err := DecodeReadPropertyMultipleAck(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	var values []PropertyValue
	for _, res := range results {
		for _, rr := range res.Results {
			pv := PropertyValue{
				ObjectID:   res.ObjectID,
				PropertyID: rr.PropertyID,
				ArrayIndex: rr.ArrayIndex,
				Err:        rr.Err,
			}
			if rr.Err == nil {
				if pv.Value, err = DecodeValue(rr.Value); err != nil {
					return nil, fmt.Errorf("%w: %s %s: %w", ErrInvalidResponse, res.ObjectID, rr.PropertyID, err)
				}
			}
			values = append(values, pv)
		}
	}
	return values, nil
}

// ReadDeviceInfo reads the descriptive properties of a device object
func (c *Client) ReadDeviceInfo(ctx context.Context, deviceID uint32) (*DeviceInfo, error) {
	oid := NewObjectIdentifier(ObjectTypeDevice, deviceID)
	props := []PropertyIdentifier{
		PropertyVendorName,
		PropertyModelName,
		PropertyFirmwareRevision,
		PropertyApplicationSoftwareVersion,
		PropertyDescription,
		PropertyLocation,
	}
	reqs := make([]ReadPropertyRequest, len(props))
	for i, p := range props {
		reqs[i] = ReadPropertyRequest{ObjectID: oid, PropertyID: p}
	}
	values, err := c.ReadPropertyMultiple(ctx, deviceID, reqs)
	if err != nil {
		return nil, err
	}

	c.devicesMu.Lock()
	defer c.devicesMu.Unlock()
	dev, ok := c.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDeviceNotFound, deviceID)
	}
	for _, v := range values {
		s, _ := v.Value.(string)
		switch v.PropertyID {
		case PropertyVendorName:
			dev.VendorName = s
		case PropertyModelName:
			dev.ModelName = s
		case PropertyFirmwareRevision:
			dev.FirmwareRevision = s
		case PropertyApplicationSoftwareVersion:
			dev.ApplicationSoftware = s
		case PropertyDescription:
			dev.Description = s
		case PropertyLocation:
			dev.Location = s
		}
	}
	d := *dev
	return &d, nil
}

// SubscribeCOV subscribes to COV (Change of Value) notifications and
// returns the subscriber process ID
func (c *Client) SubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, handler COVHandler, opts ...SubscribeOption) (uint32, error) {
	options := &SubscribeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	subID := c.nextSub.Add(1)
	confirmed := options.Confirmed
	lifetime := uint32(0)
	if options.Lifetime != nil {
		lifetime = *options.Lifetime
	}
	req := SubscribeCOVRequest{
		ProcessID: subID,
		ObjectID:  objectID,
		Confirmed: &confirmed,
		Lifetime:  &lifetime,
	}

	// Register first: the device may notify before the ack arrives.
	c.covMu.Lock()
	c.covSubs[subID] = &covSub{deviceID: deviceID, objectID: objectID, handler: handler}
	c.covMu.Unlock()

	if _, err := c.request(ctx, deviceID, ServiceSubscribeCOV, req.Encode()); err != nil {
		c.covMu.Lock()
		delete(c.covSubs, subID)
		c.covMu.Unlock()
		return 0, err
	}

	c.metrics.ActiveSubscriptions.Inc()
	return subID, nil
}

// UnsubscribeCOV unsubscribes from COV notifications
func (c *Client) UnsubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, subID uint32) error {
	req := SubscribeCOVRequest{ProcessID: subID, ObjectID: objectID}
	if _, err := c.request(ctx, deviceID, ServiceSubscribeCOV, req.Encode()); err != nil {
		return err
	}

	c.covMu.Lock()
	if _, ok := c.covSubs[subID]; ok {
		delete(c.covSubs, subID)
		c.metrics.ActiveSubscriptions.Dec()
	}
	c.covMu.Unlock()
	return nil
}

// DeviceCommunicationControl changes the communication state of a
// device. A zero duration means until changed again.
func (c *Client) DeviceCommunicationControl(ctx context.Context, deviceID uint32, state CommunicationState, duration time.Duration, password string) error {
	req := DeviceCommunicationControlRequest{State: state, Password: password}
	if duration > 0 {
		minutes := uint16(min((duration+time.Minute-1)/time.Minute, 0xFFFF))
		req.Duration = &minutes
	}
	_, err := c.request(ctx, deviceID, ServiceDeviceCommunicationControl, req.Encode())
	return err
}

// ReinitializeDevice asks a device to restart
func (c *Client) ReinitializeDevice(ctx context.Context, deviceID uint32, state ReinitializedState, password string) error {
	req := ReinitializeDeviceRequest{State: state, Password: password}
	_, err := c.request(ctx, deviceID, ServiceReinitializeDevice, req.Encode())
	return err
}

// GetObjectList retrieves the list of objects from a device. The whole
// array is read at once; devices that cannot return it in one response
// are read element by element.
func (c *Client) GetObjectList(ctx context.Context, deviceID uint32) ([]ObjectIdentifier, error) {
	device := NewObjectIdentifier(ObjectTypeDevice, deviceID)

	if all, err := c.ReadProperty(ctx, deviceID, device, PropertyObjectList); err == nil {
		return objectIdentifiers(all), nil
	} else if ctx.Err() != nil {
		return nil, err
	}

	// Read the object-list length, then each element
	lengthVal, err := c.ReadProperty(ctx, deviceID, device, PropertyObjectList, WithArrayIndex(0))
	if err != nil {
		return nil, err
	}
	length, ok := lengthVal.(uint32)
	if !ok {
		return nil, fmt.Errorf("unexpected object-list length type: %T", lengthVal)
	}

	objects := make([]ObjectIdentifier, 0, length)
	for i := uint32(1); i <= length; i++ {
		val, err := c.ReadProperty(ctx, deviceID, device, PropertyObjectList, WithArrayIndex(i))
		if err != nil {
			if ctx.Err() != nil {
				return objects, err
			}
			continue
		}
		if oid, ok := val.(ObjectIdentifier); ok {
			objects = append(objects, oid)
		}
	}
	return objects, nil
}

func objectIdentifiers(v interface{}) []ObjectIdentifier {
	switch v := v.(type) {
	case ObjectIdentifier:
		return []ObjectIdentifier{v}
	case []interface{}:
		out := make([]ObjectIdentifier, 0, len(v))
		for _, e := range v {
			if oid, ok := e.(ObjectIdentifier); ok {
				out = append(out, oid)
			}
		}
		return out
	}
	return nil
}
