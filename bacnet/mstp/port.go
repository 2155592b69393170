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

package mstp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// ErrPortClosed is returned after Close
var ErrPortClosed = errors.New("mstp: port closed")

// Port is a bacnet.Datalink exchanging BACnet data frames over a serial
// stream. It does not take part in token passing; the line must be
// point to point or driven by an adapter that holds the token.
type Port struct {
	rw     io.ReadWriter
	mac    uint8
	logger *slog.Logger

	wmu    sync.Mutex
	frames chan bacnet.Frame
	errc   chan error
	done   chan struct{}
	once   sync.Once

	crcErrors atomic.Uint64
}

// Option configures a Port
type Option func(*Port)

// WithLogger sets the port logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Port) {
		p.logger = logger
	}
}

// NewPort starts reading frames from rw for station mac (0..254).
func NewPort(rw io.ReadWriter, mac uint8, opts ...Option) (*Port, error) {
	if mac == BroadcastMAC {
		return nil, fmt.Errorf("mstp: station address %d is the broadcast address", mac)
	}
	p := &Port{
		rw:     rw,
		mac:    mac,
		logger: slog.Default(),
		frames: make(chan bacnet.Frame, 16),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.readLoop()
	return p, nil
}

func (p *Port) readLoop() {
	r := NewReader(p.rw)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrHeaderCRC) || errors.Is(err, ErrDataCRC) || errors.Is(err, ErrFrameTooLong) {
				p.crcErrors.Add(1)
				p.logger.Debug("invalid MS/TP frame", slog.Any("error", err))
				continue
			}
			p.errc <- err
			return
		}
		if f.Src == p.mac || (f.Dest != p.mac && f.Dest != BroadcastMAC) {
			continue
		}

		switch {
		case f.Type.IsData():
			select {
			case p.frames <- bacnet.Frame{Source: npdu.Address{MAC: []byte{f.Src}}, Data: f.Data}:
			case <-p.done:
				return
			}
		case f.Type == FrameTestRequest && f.Dest == p.mac:
			if err := p.write(Frame{Type: FrameTestResponse, Dest: f.Src, Src: p.mac, Data: f.Data}); err != nil {
				p.logger.Warn("test response not sent", slog.Any("error", err))
			}
		default:
			p.logger.Debug("MS/TP frame ignored",
				slog.String("type", f.Type.String()),
				slog.Uint64("src", uint64(f.Src)))
		}
	}
}

func (p *Port) write(f Frame) error {
	b, err := f.Encode()
	if err != nil {
		return err
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err = p.rw.Write(b)
	return err
}

// SendPDU sends an NPDU in a BACnet data frame. An empty MAC broadcasts.
func (p *Port) SendPDU(dest npdu.Address, pdu []byte) (int, error) {
	select {
	case <-p.done:
		return 0, ErrPortClosed
	default:
	}

	to := uint8(BroadcastMAC)
	switch len(dest.MAC) {
	case 0:
	case 1:
		to = dest.MAC[0]
	default:
		return 0, fmt.Errorf("mstp: MAC must be 1 octet, got %d", len(dest.MAC))
	}

	ft := FrameDataNotExpectingReply
	if to != BroadcastMAC && len(pdu) > 1 && pdu[1]&0x04 != 0 {
		ft = FrameDataExpectingReply
	}
	if err := p.write(Frame{Type: ft, Dest: to, Src: p.mac, Data: pdu}); err != nil {
		return 0, err
	}
	return len(pdu), nil
}

// ReceivePDU waits up to timeout for a data frame addressed to this
// station.
func (p *Port) ReceivePDU(timeout time.Duration) (bacnet.Frame, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-p.frames:
		return f, true, nil
	case err := <-p.errc:
		return bacnet.Frame{}, false, err
	case <-p.done:
		return bacnet.Frame{}, false, ErrPortClosed
	case <-timer.C:
		return bacnet.Frame{}, false, nil
	}
}

// BroadcastAddress returns the local broadcast address
func (p *Port) BroadcastAddress() npdu.Address {
	return npdu.LocalBroadcast()
}

// MyAddress returns the station MAC
func (p *Port) MyAddress() npdu.Address {
	return npdu.Address{MAC: []byte{p.mac}}
}

// CRCErrors returns the number of frames dropped for a bad CRC or length
func (p *Port) CRCErrors() uint64 {
	return p.crcErrors.Load()
}

// Close stops the port and closes the underlying stream when it is an
// io.Closer.
func (p *Port) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		if c, ok := p.rw.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
