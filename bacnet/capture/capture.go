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

// Package capture decodes BACnet/IP traffic from pcap and pcapng files.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/internal/transport"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// DefaultPort is the BACnet/IP UDP port 0xBAC0
const DefaultPort = 47808

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// Packet is one BACnet/IP datagram decoded as far as it would go
type Packet struct {
	Timestamp time.Time
	Src       netip.AddrPort
	Dst       netip.AddrPort

	Function transport.Function
	Origin   string // original source of a Forwarded-NPDU
	Result   uint16
	TTL      uint16

	NPDU *npdu.Header
	APDU apdu.PDU

	// Err is the first decoding failure; the layers above it are empty
	Err error
}

// Decode decodes a BVLL datagram
func Decode(b []byte) Packet {
	var p Packet
	m, err := transport.Decode(b)
	if err != nil {
		p.Err = fmt.Errorf("bvlc: %w", err)
		return p
	}
	p.Function, p.Result, p.TTL = m.Function, m.Result, m.TTL
	if m.Origin != nil {
		p.Origin = m.Origin.String()
	}
	if !m.HasNPDU() {
		return p
	}

	h, off, err := npdu.Decode(m.NPDU)
	if err != nil {
		p.Err = fmt.Errorf("npdu: %w", err)
		return p
	}
	p.NPDU = &h
	if h.NetworkMessage {
		return p
	}
	if off >= len(m.NPDU) {
		p.Err = npdu.ErrNoAPDU
		return p
	}
	if p.APDU, err = apdu.Decode(m.NPDU[off:]); err != nil {
		p.Err = fmt.Errorf("apdu: %w", err)
	}
	return p
}

// Summary describes the packet in one line
func (p Packet) Summary() string {
	if errors.Is(p.Err, transport.ErrInvalidBVLC) {
		return fmt.Sprintf("invalid BVLL [%v]", p.Err)
	}
	var sb strings.Builder
	sb.WriteString(p.Function.String())
	switch p.Function {
	case transport.FunctionResult:
		fmt.Fprintf(&sb, " 0x%04X", p.Result)
	case transport.FunctionRegisterForeignDevice:
		fmt.Fprintf(&sb, " ttl=%d", p.TTL)
	case transport.FunctionForwardedNPDU:
		fmt.Fprintf(&sb, " from %s", p.Origin)
	}
	if p.NPDU != nil {
		if p.NPDU.Dest != nil {
			fmt.Fprintf(&sb, " dnet=%d", p.NPDU.Dest.Net)
		}
		if p.NPDU.Src != nil {
			fmt.Fprintf(&sb, " snet=%d", p.NPDU.Src.Net)
		}
		if p.NPDU.NetworkMessage {
			fmt.Fprintf(&sb, " %s", p.NPDU.MessageType)
		}
	}
	if p.APDU != nil {
		sb.WriteByte(' ')
		sb.WriteString(describe(p.APDU))
	}
	if p.Err != nil {
		fmt.Fprintf(&sb, " [%v]", p.Err)
	}
	return sb.String()
}

func describe(pdu apdu.PDU) string {
	switch p := pdu.(type) {
	case *apdu.ConfirmedRequest:
		s := fmt.Sprintf("confirmed-request id=%d %s", p.InvokeID, bacnet.ConfirmedServiceChoice(p.Service))
		if p.Segmented {
			s += fmt.Sprintf(" seq=%d", p.SequenceNumber)
		}
		return s
	case *apdu.UnconfirmedRequest:
		return fmt.Sprintf("unconfirmed-request %s", bacnet.UnconfirmedServiceChoice(p.Service))
	case *apdu.SimpleAck:
		return fmt.Sprintf("simple-ack id=%d %s", p.InvokeID, bacnet.ConfirmedServiceChoice(p.Service))
	case *apdu.ComplexAck:
		s := fmt.Sprintf("complex-ack id=%d %s", p.InvokeID, bacnet.ConfirmedServiceChoice(p.Service))
		if p.Segmented {
			s += fmt.Sprintf(" seq=%d", p.SequenceNumber)
		}
		return s
	case *apdu.SegmentAck:
		kind := "segment-ack"
		if p.NegativeAck {
			kind = "segment-nak"
		}
		return fmt.Sprintf("%s id=%d seq=%d window=%d", kind, p.InvokeID, p.SequenceNumber, p.ActualWindowSize)
	case *apdu.Error:
		service := bacnet.ConfirmedServiceChoice(p.Service)
		if e, err := bacnet.DecodeErrorPayload(service, p.Payload); err == nil {
			return fmt.Sprintf("error id=%d %s %s/%s", p.InvokeID, service, e.Class, e.Code)
		}
		return fmt.Sprintf("error id=%d %s", p.InvokeID, service)
	case *apdu.Reject:
		return fmt.Sprintf("reject id=%d %s", p.InvokeID, bacnet.RejectReason(p.Reason))
	case *apdu.Abort:
		return fmt.Sprintf("abort id=%d %s", p.InvokeID, bacnet.AbortReason(p.Reason))
	}
	return pdu.Type().String()
}

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Reader yields the BACnet/IP packets of a capture
type Reader struct {
	src  *gopacket.PacketSource
	port layers.UDPPort
}

// NewReader reads a pcap or pcapng stream, keeping UDP datagrams to or
// from port (DefaultPort when 0).
func NewReader(r io.Reader, port uint16) (*Reader, error) {
	if port == 0 {
		port = DefaultPort
	}
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("capture: read header: %w", err)
	}

	var ps packetSource
	if bytes.Equal(magic, pcapngMagic) {
		ps, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		ps, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	src := gopacket.NewPacketSource(ps, ps.LinkType())
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true}
	return &Reader{src: src, port: layers.UDPPort(port)}, nil
}

// Next returns the next BACnet/IP packet, or io.EOF
func (r *Reader) Next() (Packet, error) {
	for {
		pkt, err := r.src.NextPacket()
		if err != nil {
			return Packet{}, err
		}
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if udp.SrcPort != r.port && udp.DstPort != r.port {
			continue
		}

		p := Decode(udp.Payload)
		p.Timestamp = pkt.Metadata().Timestamp
		if nl := pkt.NetworkLayer(); nl != nil {
			flow := nl.NetworkFlow()
			if src, ok := netip.AddrFromSlice(flow.Src().Raw()); ok {
				p.Src = netip.AddrPortFrom(src.Unmap(), uint16(udp.SrcPort))
			}
			if dst, ok := netip.AddrFromSlice(flow.Dst().Raw()); ok {
				p.Dst = netip.AddrPortFrom(dst.Unmap(), uint16(udp.DstPort))
			}
		}
		return p, nil
	}
}

// ReadFile decodes every BACnet/IP packet in the capture at path
func ReadFile(path string, port uint16) ([]Packet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer f.Close()

	r, err := NewReader(f, port)
	if err != nil {
		return nil, err
	}
	var packets []Packet
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return packets, nil
		}
		if err != nil {
			return packets, fmt.Errorf("capture: %s: %w", path, err)
		}
		packets = append(packets, p)
	}
}
