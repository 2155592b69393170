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

package capture

import (
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/edgeo/drivers/bacstack/bacnet/internal/transport"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

type datagram struct {
	src, dst string
	payload  []byte
}

var (
	workstation = "192.168.1.10:47808"
	controller  = "192.168.1.20:47808"
	broadcast   = "192.168.1.255:47808"

	epoch = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
)

// session is a read of ai:1 that the controller does not know, wrapped
// in discovery traffic and one unrelated datagram
var session = []datagram{
	{workstation, broadcast, transport.Encode(transport.FunctionOriginalBroadcastNPDU,
		[]byte{0x01, 0x20, 0xFF, 0xFF, 0x00, 0xFF, 0x10, 0x08})},
	{"192.168.1.10:5353", "224.0.0.251:5353", []byte("not bacnet")},
	{workstation, controller, transport.Encode(transport.FunctionOriginalUnicastNPDU,
		[]byte{0x01, 0x04, 0x00, 0x05, 0x01, 0x0C, 0x0C, 0x00, 0x00, 0x00, 0x01, 0x19, 0x55})},
	{controller, workstation, transport.Encode(transport.FunctionOriginalUnicastNPDU,
		[]byte{0x01, 0x00, 0x50, 0x01, 0x0C, 0x91, 0x01, 0x91, 0x1F})},
	{controller, workstation, transport.Encode(transport.FunctionOriginalUnicastNPDU,
		[]byte{0x01, 0x00, 0x60, 0x02, 0x09})},
	{controller, workstation, transport.EncodeResult(transport.ResultSuccessful)},
	{controller, broadcast, transport.Encode(transport.FunctionOriginalBroadcastNPDU,
		[]byte{0x01, 0x80, 0x00})},
}

var sessionSummaries = []string{
	"Original-Broadcast-NPDU dnet=65535 unconfirmed-request Who-Is",
	"Original-Unicast-NPDU confirmed-request id=1 ReadProperty",
	"Original-Unicast-NPDU error id=1 ReadProperty object/unknown-object",
	"Original-Unicast-NPDU reject id=2 unrecognized-service",
	"BVLC-Result 0x0000",
	"Original-Broadcast-NPDU Who-Is-Router-To-Network",
}

// frame wraps a datagram in Ethernet, IPv4 and UDP headers
func frame(t *testing.T, d datagram) []byte {
	t.Helper()
	src, dst := netip.MustParseAddrPort(d.src), netip.MustParseAddrPort(d.dst)

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x1B, 0x44, 0x11, 0x3A, 0xB7},
		DstMAC:       net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(src.Addr().AsSlice()),
		DstIP:    net.IP(dst.Addr().AsSlice()),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatal(err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(d.payload)); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func capturedAt(i int, data []byte) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     epoch.Add(time.Duration(i) * time.Millisecond),
		CaptureLength: len(data),
		Length:        len(data),
	}
}

func writePcap(t *testing.T, datagrams []datagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for i, d := range datagrams {
		data := frame(t, d)
		if err := w.WritePacket(capturedAt(i, data), data); err != nil {
			t.Fatalf("write packet %d: %v", i, err)
		}
	}
	return path
}

func writePcapng(t *testing.T, datagrams []datagram) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.pcapng")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range datagrams {
		data := frame(t, d)
		if err := w.WritePacket(capturedAt(i, data), data); err != nil {
			t.Fatalf("write packet %d: %v", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return path
}

func summaries(packets []Packet) []string {
	var out []string
	for _, p := range packets {
		out = append(out, p.Summary())
	}
	return out
}

func TestReadFile(t *testing.T) {
	tests := []struct {
		name  string
		write func(*testing.T, []datagram) string
	}{
		{"pcap", writePcap},
		{"pcapng", writePcapng},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets, err := ReadFile(tt.write(t, session), 0)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if diff := cmp.Diff(sessionSummaries, summaries(packets)); diff != "" {
				t.Fatalf("summaries mismatch (-want +got):\n%s", diff)
			}

			first := packets[0]
			if first.Src != netip.MustParseAddrPort(workstation) || first.Dst != netip.MustParseAddrPort(broadcast) {
				t.Errorf("first packet %s -> %s", first.Src, first.Dst)
			}
			if !first.Timestamp.Equal(epoch) {
				t.Errorf("first timestamp = %v, want %v", first.Timestamp, epoch)
			}
			// The mDNS datagram at index 1 was skipped
			if want := epoch.Add(2 * time.Millisecond); !packets[1].Timestamp.Equal(want) {
				t.Errorf("second timestamp = %v, want %v", packets[1].Timestamp, want)
			}
			for i, p := range packets {
				if p.Err != nil {
					t.Errorf("packet %d: %v", i, p.Err)
				}
			}
		})
	}
}

func TestReadFilePort(t *testing.T) {
	custom := []datagram{
		{"10.0.0.1:47809", "10.0.0.2:47809", transport.Encode(transport.FunctionOriginalUnicastNPDU,
			[]byte{0x01, 0x00, 0x20, 0x07, 0x0F})},
		{workstation, broadcast, transport.Encode(transport.FunctionOriginalBroadcastNPDU,
			[]byte{0x01, 0x20, 0xFF, 0xFF, 0x00, 0xFF, 0x10, 0x08})},
	}
	path := writePcap(t, custom)

	packets, err := ReadFile(path, 47809)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := []string{"Original-Unicast-NPDU simple-ack id=7 WriteProperty"}
	if diff := cmp.Diff(want, summaries(packets)); diff != "" {
		t.Errorf("summaries mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "short bvlc",
			data:    []byte{0x81, 0x0A, 0x00},
			wantErr: transport.ErrInvalidBVLC,
		},
		{
			name:    "npdu without apdu",
			data:    transport.Encode(transport.FunctionOriginalUnicastNPDU, []byte{0x01, 0x00}),
			wantErr: npdu.ErrNoAPDU,
		},
		{
			name:    "truncated npdu",
			data:    transport.Encode(transport.FunctionOriginalUnicastNPDU, []byte{0x01}),
			wantErr: npdu.ErrTruncated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decode(tt.data)
			if !errors.Is(p.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", p.Err, tt.wantErr)
			}
			if p.APDU != nil {
				t.Errorf("APDU = %#v, want nil", p.APDU)
			}
		})
	}
}

func TestDecodeForwarded(t *testing.T) {
	origin := &net.UDPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 47808}
	p := Decode(transport.EncodeForwarded(origin, []byte{0x01, 0x00, 0x10, 0x08}))
	if p.Err != nil {
		t.Fatalf("Decode: %v", p.Err)
	}
	want := "Forwarded-NPDU from 10.1.2.3:47808 unconfirmed-request Who-Is"
	if got := p.Summary(); got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("this is not a capture file"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path, 0); err == nil {
		t.Error("ReadFile accepted a file that is not a capture")
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.pcap"), 0); err == nil {
		t.Error("ReadFile accepted a missing file")
	}
}
