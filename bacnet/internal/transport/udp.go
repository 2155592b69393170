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

// Package transport provides the UDP socket and BVLC framing used by the
// BACnet/IP datalink
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// MaxDatagram bounds one BACnet/IP datagram
const MaxDatagram = 1500

// UDPTransport is a BACnet/IP socket
type UDPTransport struct {
	localAddr    string
	conn         *net.UDPConn
	mu           sync.RWMutex
	writeTimeout time.Duration
	broadcast    net.IP
	local        map[string]bool
	closed       bool
}

// NewUDPTransport creates a new UDP transport bound to localAddr
// ("host:port", empty for any address on DefaultPort)
func NewUDPTransport(localAddr string) *UDPTransport {
	if localAddr == "" {
		localAddr = fmt.Sprintf(":%d", DefaultPort)
	}
	return &UDPTransport{
		localAddr:    localAddr,
		writeTimeout: 3 * time.Second,
		broadcast:    net.IPv4bcast,
	}
}

// SetWriteTimeout sets the write timeout
func (t *UDPTransport) SetWriteTimeout(d time.Duration) {
	t.mu.Lock()
	t.writeTimeout = d
	t.mu.Unlock()
}

// SetBroadcastIP sets the directed broadcast address used by Broadcast
func (t *UDPTransport) SetBroadcastIP(ip net.IP) {
	t.mu.Lock()
	t.broadcast = ip.To4()
	t.mu.Unlock()
}

// Open opens the UDP socket
func (t *UDPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", t.localAddr)
	if err != nil {
		return fmt.Errorf("resolve local address: %w", err)
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", addr.String())
	if err != nil {
		return fmt.Errorf("listen UDP: %w", err)
	}

	t.conn = pc.(*net.UDPConn)
	t.local = localEndpoints(t.conn.LocalAddr().(*net.UDPAddr))
	t.closed = false
	return nil
}

// localEndpoints lists every address our own broadcasts can arrive from.
func localEndpoints(bound *net.UDPAddr) map[string]bool {
	local := make(map[string]bool)
	if !bound.IP.IsUnspecified() {
		local[bound.String()] = true
		return local
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return local
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.To4() == nil {
			continue
		}
		local[(&net.UDPAddr{IP: ipn.IP.To4(), Port: bound.Port}).String()] = true
	}
	return local
}

// Close closes the UDP socket
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}

	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the bound address
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// IsLocal reports whether addr is one of our own endpoints, so that
// looped-back broadcasts can be dropped
func (t *UDPTransport) IsLocal(addr *net.UDPAddr) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.local[addr.String()]
}

// Send sends data to a specific address
func (t *UDPTransport) Send(addr *net.UDPAddr, data []byte) error {
	t.mu.RLock()
	conn := t.conn
	writeTimeout := t.writeTimeout
	t.mu.RUnlock()

	if conn == nil {
		return ErrNotOpen
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	n, err := conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("write UDP: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("partial write: %d of %d bytes", n, len(data))
	}

	return nil
}

// Broadcast sends data to the broadcast address on port
func (t *UDPTransport) Broadcast(port int, data []byte) error {
	t.mu.RLock()
	ip := t.broadcast
	t.mu.RUnlock()
	return t.Send(&net.UDPAddr{IP: ip, Port: port}, data)
}

// Receive waits up to timeout for one datagram. A timeout is reported as
// a net.Error with Timeout() true.
func (t *UDPTransport) Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return nil, nil, ErrNotOpen
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, fmt.Errorf("set read deadline: %w", err)
	}

	buf := make([]byte, MaxDatagram)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}

	return buf[:n], addr, nil
}

// IsClosed returns true if the transport is closed
func (t *UDPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
