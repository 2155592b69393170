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
	"net"
	"testing"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/internal/transport"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

func openBIP(t *testing.T, opts ...BIPOption) *BIP {
	t.Helper()
	b, err := NewBIP("127.0.0.1:0", append([]BIPOption{WithBIPLogger(quiet)}, opts...)...)
	if err != nil {
		t.Fatalf("NewBIP: %v", err)
	}
	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// receiveFrame polls until a frame carrying an NPDU arrives
func receiveFrame(t *testing.T, b *BIP) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, ok, err := b.ReceivePDU(100 * time.Millisecond)
		if err != nil {
			t.Fatalf("ReceivePDU: %v", err)
		}
		if ok {
			return f
		}
	}
	t.Fatal("no frame received")
	return Frame{}
}

func TestBIPUnicast(t *testing.T) {
	a, b := openBIP(t), openBIP(t)
	pdu := []byte{0x01, 0x04, 0x10, 0x08}

	if _, err := a.SendPDU(b.MyAddress(), pdu); err != nil {
		t.Fatalf("SendPDU: %v", err)
	}
	f := receiveFrame(t, b)
	if !bytes.Equal(f.Data, pdu) {
		t.Errorf("NPDU = % X, want % X", f.Data, pdu)
	}
	if !f.Source.Equal(a.MyAddress()) {
		t.Errorf("source = %s, want %s", f.Source, a.MyAddress())
	}

	if _, err := a.SendPDU(npdu.Address{MAC: []byte{1, 2, 3}}, pdu); err == nil {
		t.Error("SendPDU accepted a 3-octet MAC")
	}
}

func TestBIPForeignDevice(t *testing.T) {
	bbmd, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer bbmd.Close()
	bbmd.SetDeadline(time.Now().Add(5 * time.Second))

	b := openBIP(t, WithForeignDevice(bbmd.LocalAddr().String(), 60*time.Second))

	buf := make([]byte, 1500)
	n, from, err := bbmd.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("BBMD read: %v", err)
	}
	m, err := transport.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode registration: %v", err)
	}
	if m.Function != transport.FunctionRegisterForeignDevice || m.TTL != 60 {
		t.Fatalf("got %s ttl=%d, want a registration for 60s", m.Function, m.TTL)
	}
	if b.Registered() {
		t.Error("registered before the BBMD answered")
	}

	// The result is consumed by the datalink and carries no NPDU
	bbmd.WriteToUDP(transport.EncodeResult(transport.ResultSuccessful), from)
	deadline := time.Now().Add(2 * time.Second)
	for !b.Registered() && time.Now().Before(deadline) {
		if _, ok, err := b.ReceivePDU(50 * time.Millisecond); err != nil || ok {
			t.Fatalf("ReceivePDU = ok %v, err %v; want nothing", ok, err)
		}
	}
	if !b.Registered() {
		t.Fatal("registration not acknowledged")
	}

	// Broadcasts go through the BBMD
	pdu := []byte{0x01, 0x20, 0xFF, 0xFF, 0x00, 0xFF, 0x10, 0x08}
	if _, err := b.SendPDU(npdu.Address{}, pdu); err != nil {
		t.Fatalf("SendPDU: %v", err)
	}
	n, _, err = bbmd.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("BBMD read: %v", err)
	}
	m, err = transport.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if m.Function != transport.FunctionDistributeBroadcastToNetwork || !bytes.Equal(m.NPDU, pdu) {
		t.Errorf("got %s % X, want distribute-broadcast-to-network", m.Function, m.NPDU)
	}

	// Forwarded NPDUs are attributed to the original station
	origin := &net.UDPAddr{IP: net.IPv4(192, 168, 7, 9), Port: 47808}
	bbmd.WriteToUDP(transport.EncodeForwarded(origin, []byte{0x01, 0x00, 0x10, 0x08}), from)
	f := receiveFrame(t, b)
	if want := (npdu.Address{MAC: []byte{192, 168, 7, 9, 0xBA, 0xC0}}); !f.Source.Equal(want) {
		t.Errorf("source = %s, want %s", f.Source, want)
	}
}

func TestBIPOptions(t *testing.T) {
	if _, err := NewBIP("", WithBroadcastIP("not-an-ip")); err == nil {
		t.Error("WithBroadcastIP accepted an invalid address")
	}
	if _, err := NewBIP("", WithForeignDevice("127.0.0.1:47808", 0)); err == nil {
		t.Error("WithForeignDevice accepted a zero TTL")
	}
	mac, err := MACOf("10.1.2.3:47809")
	if err != nil {
		t.Fatalf("MACOf: %v", err)
	}
	if want := []byte{10, 1, 2, 3, 0xBA, 0xC1}; !bytes.Equal(mac, want) {
		t.Errorf("MACOf = % X, want % X", mac, want)
	}
}

func TestStackOverBIP(t *testing.T) {
	a, b := openBIP(t), openBIP(t)
	server := NewStack(b, WithDeviceID(serverID), WithLogger(quiet))
	NewDevice(server, newMemStore(serverID))
	cs := NewStack(a, WithDeviceID(7), WithLogger(quiet))
	client := NewClient(cs)
	client.AddDevice(serverID, b.MyAddress())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{}, 2)
	for _, s := range []*Stack{server, cs} {
		go func(s *Stack) {
			s.Run(ctx)
			done <- struct{}{}
		}(s)
	}

	v, err := client.ReadProperty(ctx, serverID, NewObjectIdentifier(ObjectTypeAnalogInput, 1), PropertyPresentValue)
	if err != nil {
		t.Fatalf("ReadProperty: %v", err)
	}
	if v != float32(72.5) {
		t.Errorf("present value = %v, want 72.5", v)
	}
	cancel()
	<-done
	<-done
}
