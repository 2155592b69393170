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

package tsm

import (
	"log/slog"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/npdu"
)

// Defaults
const (
	DefaultSlots          = 32
	DefaultAPDUTimeout    = 3000 * time.Millisecond
	DefaultRetries        = 3
	DefaultSegmentTimeout = 2000 * time.Millisecond
	DefaultWindowSize     = 4
	DefaultMaxSegments    = 16
)

// TimeoutFunc is called once when a client transaction exhausts its
// retries. service is the confirmed service choice of the request.
type TimeoutFunc func(invokeID, service uint8, dest npdu.Address)

// machineOptions holds configuration for the transaction state machine
type machineOptions struct {
	slots          int
	apduTimeout    time.Duration
	retries        int
	segmentTimeout time.Duration

	// Segmentation
	segmentation bool
	windowSize   uint8
	maxSegments  int

	onTimeout TimeoutFunc
	logger    *slog.Logger
}

func defaultOptions() *machineOptions {
	return &machineOptions{
		slots:          DefaultSlots,
		apduTimeout:    DefaultAPDUTimeout,
		retries:        DefaultRetries,
		segmentTimeout: DefaultSegmentTimeout,
		windowSize:     DefaultWindowSize,
		maxSegments:    DefaultMaxSegments,
		logger:         slog.Default(),
	}
}

// Option is a functional option for configuring the machine
type Option func(*machineOptions)

// WithSlots sets the size of the client transaction pool
func WithSlots(n int) Option {
	return func(o *machineOptions) {
		if n > 0 && n <= 256 {
			o.slots = n
		}
	}
}

// WithAPDUTimeout sets the time to wait for a confirmation
func WithAPDUTimeout(d time.Duration) Option {
	return func(o *machineOptions) {
		if d > 0 {
			o.apduTimeout = d
		}
	}
}

// WithRetries sets how many times a confirmed request is retransmitted
func WithRetries(n int) Option {
	return func(o *machineOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithSegmentTimeout sets the time to wait for a segment or segment ack
func WithSegmentTimeout(d time.Duration) Option {
	return func(o *machineOptions) {
		if d > 0 {
			o.segmentTimeout = d
		}
	}
}

// WithSegmentation enables segmented transfers in both directions. window
// is the proposed window size (1-127) and maxSegments the number of
// segments accepted when reassembling.
func WithSegmentation(window uint8, maxSegments int) Option {
	return func(o *machineOptions) {
		o.segmentation = true
		if window >= 1 && window <= 127 {
			o.windowSize = window
		}
		if maxSegments > 0 {
			o.maxSegments = maxSegments
		}
	}
}

// WithTimeoutFunc sets the callback for exhausted transactions
func WithTimeoutFunc(fn TimeoutFunc) Option {
	return func(o *machineOptions) {
		o.onTimeout = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *machineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
