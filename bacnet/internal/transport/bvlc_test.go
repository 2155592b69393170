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

package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	npdu := []byte{0x01, 0x00, 0x10, 0x08}
	tests := []struct {
		name     string
		data     []byte
		function Function
		npdu     []byte
		origin   string
		result   uint16
		ttl      uint16
		wantErr  bool
	}{
		{
			name:     "original unicast",
			data:     Encode(FunctionOriginalUnicastNPDU, npdu),
			function: FunctionOriginalUnicastNPDU,
			npdu:     npdu,
		},
		{
			name:     "original broadcast",
			data:     Encode(FunctionOriginalBroadcastNPDU, npdu),
			function: FunctionOriginalBroadcastNPDU,
			npdu:     npdu,
		},
		{
			name:     "forwarded",
			data:     EncodeForwarded(&net.UDPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 47809}, npdu),
			function: FunctionForwardedNPDU,
			npdu:     npdu,
			origin:   "10.1.2.3:47809",
		},
		{
			name:     "result",
			data:     EncodeResult(ResultRegisterForeignDeviceNAK),
			function: FunctionResult,
			result:   ResultRegisterForeignDeviceNAK,
		},
		{
			name:     "register foreign device",
			data:     EncodeRegisterForeignDevice(300),
			function: FunctionRegisterForeignDevice,
			ttl:      300,
		},
		{name: "short header", data: []byte{0x81, 0x0A}, wantErr: true},
		{name: "wrong type", data: []byte{0x82, 0x0A, 0x00, 0x04}, wantErr: true},
		{name: "length mismatch", data: []byte{0x81, 0x0A, 0x00, 0x09, 0x01}, wantErr: true},
		{name: "short forwarded", data: []byte{0x81, 0x04, 0x00, 0x07, 10, 1, 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBVLC) {
					t.Fatalf("err = %v, want ErrInvalidBVLC", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if m.Function != tt.function {
				t.Errorf("Function = %s, want %s", m.Function, tt.function)
			}
			if !bytes.Equal(m.NPDU, tt.npdu) {
				t.Errorf("NPDU = % X, want % X", m.NPDU, tt.npdu)
			}
			if m.HasNPDU() != (tt.npdu != nil) {
				t.Errorf("HasNPDU = %v", m.HasNPDU())
			}
			if tt.origin != "" && m.Origin.String() != tt.origin {
				t.Errorf("Origin = %s, want %s", m.Origin, tt.origin)
			}
			if m.Result != tt.result || m.TTL != tt.ttl {
				t.Errorf("Result, TTL = %d, %d, want %d, %d", m.Result, m.TTL, tt.result, tt.ttl)
			}
		})
	}
}

func TestMAC(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 47808}
	mac := AddrToMAC(addr)
	if want := []byte{192, 168, 1, 20, 0xBA, 0xC0}; !bytes.Equal(mac, want) {
		t.Fatalf("AddrToMAC = % X, want % X", mac, want)
	}
	back, err := MACToAddr(mac)
	if err != nil {
		t.Fatal(err)
	}
	if back.String() != addr.String() {
		t.Errorf("MACToAddr = %s, want %s", back, addr)
	}
	if _, err := MACToAddr([]byte{1, 2, 3}); err == nil {
		t.Error("MACToAddr accepted a 3-octet MAC")
	}
}

func TestUDPLoopback(t *testing.T) {
	tr := NewUDPTransport("127.0.0.1:0")
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	frame := Encode(FunctionOriginalUnicastNPDU, []byte{0x01, 0x00})
	if err := tr.Send(tr.LocalAddr(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	data, from, err := tr.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(data, frame) {
		t.Errorf("received % X, want % X", data, frame)
	}
	if !tr.IsLocal(from) {
		t.Errorf("IsLocal(%s) = false for our own datagram", from)
	}
	if tr.IsLocal(&net.UDPAddr{IP: net.IPv4(10, 9, 9, 9), Port: 47808}) {
		t.Error("IsLocal reported a foreign address")
	}

	_, _, err = tr.Receive(10 * time.Millisecond)
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("idle Receive err = %v, want a timeout", err)
	}

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if !tr.IsClosed() {
		t.Error("IsClosed = false after Close")
	}
}
