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
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// Request sends a confirmed request and blocks until it is acknowledged,
// fails, or ctx ends. On failure the returned Confirmation is still set
// when the peer answered, and the error is the same as its Err.
//
// Request must not be called from a handler.
func (s *Stack) Request(ctx context.Context, dest npdu.Address, service ConfirmedServiceChoice, payload []byte) (*Confirmation, error) {
	s.mu.Lock()
	id, err := s.sendConfirmed(dest, service, payload)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	w := &waiter{
		ch:      make(chan *Confirmation, 1),
		service: service,
		start:   time.Now(),
	}
	s.waiters[id] = w
	s.mu.Unlock()

	select {
	case c := <-w.ch:
		return c, c.Err
	case <-ctx.Done():
	}

	s.mu.Lock()
	if s.waiters[id] == w {
		delete(s.waiters, id)
		s.tsm.FreeInvokeID(id)
		s.metrics.RequestsTimedOut.Inc()
		s.metrics.ActiveTransactions.Set(int64(s.tsm.Active()))
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s to %s (invoke %d): %w", ErrTimeout, service, dest, id, ctx.Err())
	}
	s.mu.Unlock()

	// Delivered while we were taking the lock.
	c := <-w.ch
	return c, c.Err
}

// deliver hands c to the Request waiting on id and reports whether there
// was one
func (s *Stack) deliver(id uint8, c *Confirmation) bool {
	w, ok := s.waiters[id]
	if !ok {
		return false
	}
	delete(s.waiters, id)
	c.Service = w.service
	s.metrics.RequestLatency.Record(time.Since(w.start))
	select {
	case w.ch <- c:
	default:
	}
	return true
}

// serviceOf returns the service of the pending Request on id, if any
func (s *Stack) serviceOf(id uint8) ConfirmedServiceChoice {
	if w, ok := s.waiters[id]; ok {
		return w.service
	}
	return 0
}
