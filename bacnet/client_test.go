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
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// pipeLink is one end of an in-memory segment shared by two stations
type pipeLink struct {
	mac    []byte
	peer   *pipeLink
	in     chan Frame
	closed chan struct{}
	once   sync.Once
}

func newPipe() (*pipeLink, *pipeLink) {
	a := &pipeLink{mac: []byte{0x0A}, in: make(chan Frame, 32), closed: make(chan struct{})}
	b := &pipeLink{mac: []byte{0x0B}, in: make(chan Frame, 32), closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (l *pipeLink) SendPDU(dest npdu.Address, pdu []byte) (int, error) {
	if len(dest.MAC) != 0 && !bytes.Equal(dest.MAC, l.peer.mac) {
		return len(pdu), nil
	}
	select {
	case l.peer.in <- Frame{Source: npdu.Address{MAC: bytes.Clone(l.mac)}, Data: bytes.Clone(pdu)}:
	case <-l.peer.closed:
	}
	return len(pdu), nil
}

func (l *pipeLink) ReceivePDU(timeout time.Duration) (Frame, bool, error) {
	select {
	case f := <-l.in:
		return f, true, nil
	case <-l.closed:
		return Frame{}, false, io.EOF
	case <-time.After(timeout):
		return Frame{}, false, nil
	}
}

func (l *pipeLink) BroadcastAddress() npdu.Address { return npdu.LocalBroadcast() }
func (l *pipeLink) MyAddress() npdu.Address        { return npdu.Address{MAC: l.mac} }

func (l *pipeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

const serverID = 1234

type testBench struct {
	client *Client
	server *Stack
	store  *memStore
	addr   npdu.Address // client station, as seen by the server
}

// newBench runs a device stack and a client stack on a shared pipe
func newBench(t *testing.T, opts ...DeviceOption) *testBench {
	t.Helper()
	cl, sl := newPipe()
	server := NewStack(sl, WithDeviceID(serverID), WithLogger(quiet), WithTickInterval(10*time.Millisecond))
	store := newMemStore(serverID)
	NewDevice(server, store, opts...)
	cs := NewStack(cl, WithDeviceID(99), WithLogger(quiet), WithTickInterval(10*time.Millisecond), WithAPDUTimeout(time.Second))
	client := NewClient(cs)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, s := range []*Stack{server, cs} {
		wg.Add(1)
		go func(s *Stack) {
			defer wg.Done()
			s.Run(ctx)
		}(s)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
		server.Close()
		cs.Close()
	})
	return &testBench{client: client, server: server, store: store, addr: npdu.Address{MAC: cl.mac}}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientWhoIs(t *testing.T) {
	b := newBench(t)
	ctx := testContext(t)

	var seen []uint32
	var mu sync.Mutex
	b.client.OnDevice(func(dev *DeviceInfo) {
		mu.Lock()
		seen = append(seen, dev.ObjectID.Instance)
		mu.Unlock()
	})

	devices, err := b.client.WhoIs(ctx, WithDiscoveryTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatalf("WhoIs: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("found %d devices, want 1", len(devices))
	}
	dev := devices[0]
	if dev.ObjectID != NewObjectIdentifier(ObjectTypeDevice, serverID) {
		t.Errorf("device = %s", dev.ObjectID)
	}
	if !dev.Address.Equal(npdu.Address{MAC: []byte{0x0B}}) {
		t.Errorf("address = %s, want 0b", dev.Address)
	}
	if dev.MaxAPDULength != 1476 {
		t.Errorf("max APDU = %d, want 1476", dev.MaxAPDULength)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]uint32{serverID}, seen); diff != "" {
		t.Errorf("OnDevice calls (-want +got):\n%s", diff)
	}
	if got := b.client.Metrics().DevicesDiscovered.Value(); got != 1 {
		t.Errorf("DevicesDiscovered = %d, want 1", got)
	}

	none, err := b.client.WhoIs(ctx, WithDeviceRange(1, 10), WithDiscoveryTimeout(100*time.Millisecond))
	if err != nil {
		t.Fatalf("WhoIs: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ranged WhoIs found %d devices, want 0", len(none))
	}
}

func TestClientReadWriteProperty(t *testing.T) {
	b := newBench(t)
	ctx := testContext(t)
	av2 := NewObjectIdentifier(ObjectTypeAnalogValue, 2)

	// The first request resolves the device with a directed Who-Is
	v, err := b.client.ReadProperty(ctx, serverID, av2, PropertyPresentValue)
	if err != nil {
		t.Fatalf("ReadProperty: %v", err)
	}
	if v != float32(68) {
		t.Errorf("present value = %v, want 68", v)
	}
	if _, ok := b.client.GetDevice(serverID); !ok {
		t.Error("device not cached after resolution")
	}

	if err := b.client.WriteProperty(ctx, serverID, av2, PropertyPresentValue, float32(71.5), WithWritePriority(8)); err != nil {
		t.Fatalf("WriteProperty: %v", err)
	}
	if v, _ = b.client.ReadProperty(ctx, serverID, av2, PropertyPresentValue); v != float32(71.5) {
		t.Errorf("present value after write = %v, want 71.5", v)
	}

	err = b.client.WriteProperty(ctx, serverID, av2, PropertyObjectName, "renamed")
	if !IsAccessDenied(err) {
		t.Errorf("write object-name: err = %v, want write-access-denied", err)
	}

	_, err = b.client.ReadProperty(ctx, serverID, NewObjectIdentifier(ObjectTypeBinaryValue, 3), PropertyPresentValue)
	if !IsDeviceNotFound(err) {
		t.Errorf("read unknown object: err = %v, want unknown-object", err)
	}
}

func TestClientReadPropertyMultiple(t *testing.T) {
	b := newBench(t)
	ctx := testContext(t)
	ai1 := NewObjectIdentifier(ObjectTypeAnalogInput, 1)
	av2 := NewObjectIdentifier(ObjectTypeAnalogValue, 2)

	got, err := b.client.ReadPropertyMultiple(ctx, serverID, []ReadPropertyRequest{
		{ObjectID: ai1, PropertyID: PropertyPresentValue},
		{ObjectID: av2, PropertyID: PropertyObjectName},
		{ObjectID: ai1, PropertyID: PropertyUnits},
		{ObjectID: ai1, PropertyID: PropertyCOVIncrement},
	})
	if err != nil {
		t.Fatalf("ReadPropertyMultiple: %v", err)
	}
	want := []PropertyValue{
		{ObjectID: ai1, PropertyID: PropertyPresentValue, Value: float32(72.5)},
		{ObjectID: ai1, PropertyID: PropertyUnits, Value: uint32(UnitsDegreesFahrenheit)},
		{ObjectID: ai1, PropertyID: PropertyCOVIncrement, Err: NewBACnetError(ErrorClassProperty, ErrorCodeUnknownProperty)},
		{ObjectID: av2, PropertyID: PropertyObjectName, Value: "setpoint"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestClientReadDeviceInfo(t *testing.T) {
	b := newBench(t)
	ctx := testContext(t)

	info, err := b.client.ReadDeviceInfo(ctx, serverID)
	if err != nil {
		t.Fatalf("ReadDeviceInfo: %v", err)
	}
	if info.VendorName != "Edgeo" || info.ModelName != "BX-1" {
		t.Errorf("vendor=%q model=%q, want Edgeo and BX-1", info.VendorName, info.ModelName)
	}
	if info.Location != "" {
		t.Errorf("location = %q, want empty", info.Location)
	}
}

func TestClientDeviceManagement(t *testing.T) {
	var restarts []ReinitializedState
	b := newBench(t, WithPassword("filister"), WithReinitializeFunc(func(state ReinitializedState) error {
		restarts = append(restarts, state)
		return nil
	}))
	ctx := testContext(t)

	err := b.client.DeviceCommunicationControl(ctx, serverID, CommunicationDisabledInitiation, 90*time.Second, "wrong")
	var bacnetErr *BACnetError
	if !errors.As(err, &bacnetErr) || bacnetErr.Code != ErrorCodePasswordFailure {
		t.Fatalf("DCC with wrong password: err = %v", err)
	}

	if err := b.client.DeviceCommunicationControl(ctx, serverID, CommunicationDisabledInitiation, 90*time.Second, "filister"); err != nil {
		t.Fatalf("DeviceCommunicationControl: %v", err)
	}
	if got := b.server.CommunicationState(); got != CommunicationDisabledInitiation {
		t.Errorf("state = %s, want disable-initiation", got)
	}

	// Reads still work while only initiation is disabled
	if _, err := b.client.ReadProperty(ctx, serverID, NewObjectIdentifier(ObjectTypeAnalogInput, 1), PropertyPresentValue); err != nil {
		t.Errorf("ReadProperty: %v", err)
	}

	if err := b.client.ReinitializeDevice(ctx, serverID, ReinitWarmstart, "filister"); err != nil {
		t.Fatalf("ReinitializeDevice: %v", err)
	}
	if diff := cmp.Diff([]ReinitializedState{ReinitWarmstart}, restarts); diff != "" {
		t.Errorf("restarts (-want +got):\n%s", diff)
	}
}

func TestClientUnknownDevice(t *testing.T) {
	b := newBench(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := b.client.ReadProperty(ctx, 77, NewObjectIdentifier(ObjectTypeDevice, 77), PropertyObjectName)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClientCOV(t *testing.T) {
	b := newBench(t)
	ctx := testContext(t)
	ai1 := NewObjectIdentifier(ObjectTypeAnalogInput, 1)

	subs := make(chan SubscribeCOVRequest, 4)
	b.server.SetConfirmedHandler(ServiceSubscribeCOV, func(req *ServiceRequest) ([]byte, error) {
		sub, err := DecodeSubscribeCOV(req.Payload)
		if err != nil {
			return nil, rejectFor(err)
		}
		subs <- sub
		return nil, nil
	})

	type note struct {
		device uint32
		object ObjectIdentifier
		values []PropertyValue
	}
	notes := make(chan note, 4)
	id, err := b.client.SubscribeCOV(ctx, serverID, ai1, func(device uint32, object ObjectIdentifier, values []PropertyValue) {
		notes <- note{device, object, values}
	}, WithSubscriptionLifetime(300), WithConfirmedNotifications(true))
	if err != nil {
		t.Fatalf("SubscribeCOV: %v", err)
	}

	sub := <-subs
	confirmed, lifetime := true, uint32(300)
	want := SubscribeCOVRequest{ProcessID: id, ObjectID: ai1, Confirmed: &confirmed, Lifetime: &lifetime}
	if diff := cmp.Diff(want, sub); diff != "" {
		t.Errorf("subscription (-want +got):\n%s", diff)
	}
	if got := b.client.Metrics().ActiveSubscriptions.Value(); got != 1 {
		t.Errorf("ActiveSubscriptions = %d, want 1", got)
	}

	value, _ := EncodeValue(float32(73))
	n := COVNotification{
		ProcessID:     id,
		DeviceID:      NewObjectIdentifier(ObjectTypeDevice, serverID),
		ObjectID:      ai1,
		TimeRemaining: 299,
		Values:        []COVValue{{PropertyID: PropertyPresentValue, Value: value}},
	}
	conf, err := b.server.Request(ctx, b.addr, ServiceConfirmedCOVNotification, n.Encode())
	if err != nil {
		t.Fatalf("confirmed notification: %v", err)
	}
	if conf.Payload != nil {
		t.Errorf("notification answered with a complex ack")
	}

	select {
	case got := <-notes:
		if got.device != serverID || got.object != ai1 {
			t.Errorf("notification for %d %s", got.device, got.object)
		}
		wantValues := []PropertyValue{{ObjectID: ai1, PropertyID: PropertyPresentValue, Value: float32(73)}}
		if diff := cmp.Diff(wantValues, got.values); diff != "" {
			t.Errorf("values (-want +got):\n%s", diff)
		}
	case <-ctx.Done():
		t.Fatal("no notification delivered")
	}

	if err := b.client.UnsubscribeCOV(ctx, serverID, ai1, id); err != nil {
		t.Fatalf("UnsubscribeCOV: %v", err)
	}
	if cancel := <-subs; !cancel.IsCancellation() {
		t.Errorf("unsubscribe sent %+v, want a cancellation", cancel)
	}
	if got := b.client.Metrics().ActiveSubscriptions.Value(); got != 0 {
		t.Errorf("ActiveSubscriptions = %d, want 0", got)
	}
}

func TestClientGetObjectList(t *testing.T) {
	list := []ObjectIdentifier{
		NewObjectIdentifier(ObjectTypeDevice, serverID),
		NewObjectIdentifier(ObjectTypeAnalogInput, 1),
		NewObjectIdentifier(ObjectTypeAnalogValue, 2),
	}
	tests := []struct {
		name string
		// whole reports whether the device returns the array in one read
		whole bool
	}{
		{"whole array", true},
		{"element by element", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t)
			ctx := testContext(t)
			b.server.SetConfirmedHandler(ServiceReadProperty, func(req *ServiceRequest) ([]byte, error) {
				rp, err := DecodeReadProperty(req.Payload)
				if err != nil {
					return nil, rejectFor(err)
				}
				if rp.PropertyID != PropertyObjectList {
					return nil, NewBACnetError(ErrorClassProperty, ErrorCodeUnknownProperty)
				}
				var value []byte
				switch {
				case rp.ArrayIndex == nil && tt.whole:
					value, _ = EncodeValue(list)
				case rp.ArrayIndex == nil:
					return nil, &AbortError{Reason: AbortReasonSegmentationNotSupported}
				case *rp.ArrayIndex == 0:
					value, _ = EncodeValue(uint32(len(list)))
				case int(*rp.ArrayIndex) <= len(list):
					value, _ = EncodeValue(list[*rp.ArrayIndex-1])
				default:
					return nil, NewBACnetError(ErrorClassProperty, ErrorCodeInvalidArrayIndex)
				}
				return ReadPropertyAck{ObjectID: rp.ObjectID, PropertyID: rp.PropertyID, ArrayIndex: rp.ArrayIndex, Value: value}.Encode(), nil
			})

			got, err := b.client.GetObjectList(ctx, serverID)
			if err != nil {
				t.Fatalf("GetObjectList: %v", err)
			}
			if diff := cmp.Diff(list, got); diff != "" {
				t.Errorf("object list (-want +got):\n%s", diff)
			}
		})
	}
}
