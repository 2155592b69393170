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
	"time"
)

// Run drives the stack until ctx ends or the datalink fails. One goroutine
// reads frames into a fixed-depth queue; frames arriving while the queue
// is full are dropped and counted. The calling goroutine dispatches queued
// frames and ticks the timers every tick interval.
func (s *Stack) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan Frame, s.opts.queueDepth)
	errc := make(chan error, 1)
	go s.receiveLoop(ctx, frames, errc)

	s.logger.Info("stack running",
		slog.Uint64("device", uint64(s.opts.deviceID)),
		slog.String("address", s.link.MyAddress().String()))

	ticker := time.NewTicker(s.opts.tickInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stack stopped")
			return ctx.Err()
		case err := <-errc:
			return fmt.Errorf("datalink: %w", err)
		case f := <-frames:
			s.Receive(f.Source, f.Data)
		case now := <-ticker.C:
			s.Tick(now.Sub(last))
			last = now
		}
	}
}

func (s *Stack) receiveLoop(ctx context.Context, frames chan<- Frame, errc chan<- error) {
	for ctx.Err() == nil {
		f, ok, err := s.link.ReceivePDU(s.opts.receiveTimeout)
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return
			}
			errc <- err
			return
		}
		if !ok {
			continue
		}
		select {
		case frames <- f:
		default:
			s.metrics.QueueDropped.Inc()
			s.logger.Debug("receive queue full, frame dropped",
				slog.String("src", f.Source.String()))
		}
	}
}
