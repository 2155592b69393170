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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/internal/transport"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// DefaultPort is the standard BACnet/IP UDP port
const DefaultPort = transport.DefaultPort

// BIP is the BACnet/IP datalink: NPDUs carried in BVLC frames over UDP.
// Station MACs are the 6-octet IPv4 address and port.
type BIP struct {
	t      *transport.UDPTransport
	logger *slog.Logger

	// Foreign device registration
	bbmd   *net.UDPAddr
	ttl    time.Duration
	mu     sync.Mutex
	lastFD time.Time
	fdOK   bool
}

// BIPOption configures a BIP datalink
type BIPOption func(*BIP) error

// WithBroadcastIP sets the directed broadcast address of the local subnet
func WithBroadcastIP(ip string) BIPOption {
	return func(b *BIP) error {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			return fmt.Errorf("invalid broadcast address %q", ip)
		}
		b.t.SetBroadcastIP(parsed)
		return nil
	}
}

// WithForeignDevice registers with the BBMD at addr ("host:port") and
// renews the registration every ttl/2. Broadcasts are then sent through
// the BBMD as Distribute-Broadcast-To-Network.
func WithForeignDevice(addr string, ttl time.Duration) BIPOption {
	return func(b *BIP) error {
		udp, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return fmt.Errorf("resolve BBMD address: %w", err)
		}
		if ttl < time.Second || ttl > 0xFFFF*time.Second {
			return fmt.Errorf("foreign device TTL %s out of range", ttl)
		}
		b.bbmd, b.ttl = udp, ttl
		return nil
	}
}

// WithBIPLogger sets the datalink logger
func WithBIPLogger(logger *slog.Logger) BIPOption {
	return func(b *BIP) error {
		b.logger = logger
		return nil
	}
}

// NewBIP creates a BACnet/IP datalink bound to localAddr ("host:port",
// empty for every interface on DefaultPort). Open must be called before
// use.
func NewBIP(localAddr string, opts ...BIPOption) (*BIP, error) {
	b := &BIP{
		t:      transport.NewUDPTransport(localAddr),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Open binds the socket and, when configured, sends the first foreign
// device registration.
func (b *BIP) Open(ctx context.Context) error {
	if err := b.t.Open(ctx); err != nil {
		return err
	}
	b.logger.Info("BACnet/IP datalink open", slog.String("local", b.t.LocalAddr().String()))
	if b.bbmd != nil {
		return b.register()
	}
	return nil
}

func (b *BIP) register() error {
	b.mu.Lock()
	b.lastFD = time.Now()
	b.mu.Unlock()
	if err := b.t.Send(b.bbmd, transport.EncodeRegisterForeignDevice(uint16(b.ttl/time.Second))); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}
	b.logger.Debug("foreign device registration sent",
		slog.String("bbmd", b.bbmd.String()),
		slog.Duration("ttl", b.ttl))
	return nil
}

// Registered reports whether the BBMD accepted the last registration
func (b *BIP) Registered() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fdOK
}

// SendPDU sends an NPDU to dest.MAC, or broadcasts it when the MAC is
// empty.
func (b *BIP) SendPDU(dest npdu.Address, pdu []byte) (int, error) {
	if len(dest.MAC) == 0 {
		return len(pdu), b.broadcast(pdu)
	}
	addr, err := transport.MACToAddr(dest.MAC)
	if err != nil {
		return 0, err
	}
	if err := b.t.Send(addr, transport.Encode(transport.FunctionOriginalUnicastNPDU, pdu)); err != nil {
		return 0, err
	}
	return len(pdu), nil
}

func (b *BIP) broadcast(pdu []byte) error {
	if b.bbmd != nil {
		return b.t.Send(b.bbmd, transport.Encode(transport.FunctionDistributeBroadcastToNetwork, pdu))
	}
	port := DefaultPort
	if local := b.t.LocalAddr(); local != nil {
		port = local.Port
	}
	return b.t.Broadcast(port, transport.Encode(transport.FunctionOriginalBroadcastNPDU, pdu))
}

// ReceivePDU waits up to timeout for one NPDU. BVLL traffic that carries
// no NPDU, invalid frames and our own looped-back broadcasts are consumed
// and reported as ok=false.
func (b *BIP) ReceivePDU(timeout time.Duration) (Frame, bool, error) {
	b.renew()

	data, from, err := b.t.Receive(timeout)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Frame{}, false, nil
		}
		return Frame{}, false, err
	}
	if b.t.IsLocal(from) {
		return Frame{}, false, nil
	}

	m, err := transport.Decode(data)
	if err != nil {
		b.logger.Debug("invalid BVLL frame", slog.String("from", from.String()), slog.Any("error", err))
		return Frame{}, false, nil
	}

	switch m.Function {
	case transport.FunctionResult:
		b.result(from, m.Result)
		return Frame{}, false, nil
	case transport.FunctionForwardedNPDU:
		// The NPDU came from the original station, not the BBMD.
		from = m.Origin
		if b.t.IsLocal(from) {
			return Frame{}, false, nil
		}
	}
	if !m.HasNPDU() || len(m.NPDU) == 0 {
		return Frame{}, false, nil
	}
	return Frame{Source: npdu.Address{MAC: transport.AddrToMAC(from)}, Data: m.NPDU}, true, nil
}

func (b *BIP) result(from *net.UDPAddr, code uint16) {
	if b.bbmd == nil || !from.IP.Equal(b.bbmd.IP) || from.Port != b.bbmd.Port {
		return
	}
	b.mu.Lock()
	ok := code == transport.ResultSuccessful
	changed := ok != b.fdOK
	b.fdOK = ok
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("foreign device registration rejected",
			slog.String("bbmd", from.String()),
			slog.Uint64("result", uint64(code)))
	} else if changed {
		b.logger.Info("registered as foreign device", slog.String("bbmd", from.String()))
	}
}

func (b *BIP) renew() {
	if b.bbmd == nil {
		return
	}
	b.mu.Lock()
	due := time.Since(b.lastFD) >= b.ttl/2
	b.mu.Unlock()
	if !due {
		return
	}
	if err := b.register(); err != nil {
		b.logger.Warn("foreign device renewal failed", slog.Any("error", err))
	}
}

// BroadcastAddress returns the local broadcast address
func (b *BIP) BroadcastAddress() npdu.Address {
	return npdu.LocalBroadcast()
}

// MyAddress returns the MAC of the bound socket
func (b *BIP) MyAddress() npdu.Address {
	local := b.t.LocalAddr()
	if local == nil {
		return npdu.Address{}
	}
	return npdu.Address{MAC: transport.AddrToMAC(local)}
}

// Close closes the socket
func (b *BIP) Close() error {
	return b.t.Close()
}

// MACOf returns the BACnet/IP MAC of an "ip:port" string
func MACOf(addr string) ([]byte, error) {
	udp, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, err
	}
	return transport.AddrToMAC(udp), nil
}
