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
	"log/slog"
	"time"

	"github.com/edgeo/drivers/bacstack/bacnet/apdu"
	"github.com/edgeo/drivers/bacstack/bacnet/tsm"
)

// UnconfiguredDeviceID is the device instance of a device that has not
// been given one
const UnconfiguredDeviceID = 0x3FFFFF

// stackOptions holds configuration for a protocol stack instance
type stackOptions struct {
	// Device identity
	deviceID uint32
	vendorID uint16

	// Network layer
	networkNumber uint16
	networkFixed  bool
	priority      uint8

	// Transactions
	slots          int
	apduTimeout    time.Duration
	retries        int
	segmentTimeout time.Duration

	// APDU configuration
	maxAPDU      int
	segmentation Segmentation
	windowSize   uint8
	maxSegments  int

	// Run loop
	queueDepth     int
	tickInterval   time.Duration
	receiveTimeout time.Duration

	metrics *Metrics
	logger  *slog.Logger
}

// defaultOptions returns the default stack options
func defaultOptions() *stackOptions {
	return &stackOptions{
		deviceID:       UnconfiguredDeviceID,
		slots:          tsm.DefaultSlots,
		apduTimeout:    tsm.DefaultAPDUTimeout,
		retries:        tsm.DefaultRetries,
		segmentTimeout: tsm.DefaultSegmentTimeout,
		maxAPDU:        apdu.MaxAPDU,
		segmentation:   SegmentationNone,
		windowSize:     tsm.DefaultWindowSize,
		maxSegments:    tsm.DefaultMaxSegments,
		queueDepth:     64,
		tickInterval:   100 * time.Millisecond,
		receiveTimeout: 100 * time.Millisecond,
		logger:         slog.Default(),
	}
}

// machineOptions translates the stack options for the transaction state
// machine.
func (o *stackOptions) machineOptions() []tsm.Option {
	opts := []tsm.Option{
		tsm.WithSlots(o.slots),
		tsm.WithAPDUTimeout(o.apduTimeout),
		tsm.WithRetries(o.retries),
		tsm.WithSegmentTimeout(o.segmentTimeout),
		tsm.WithLogger(o.logger),
	}
	if o.segmentation != SegmentationNone {
		opts = append(opts, tsm.WithSegmentation(o.windowSize, o.maxSegments))
	}
	return opts
}

// Option is a functional option for configuring the stack
type Option func(*stackOptions)

// WithDeviceID sets the local device instance
func WithDeviceID(id uint32) Option {
	return func(o *stackOptions) {
		o.deviceID = id
	}
}

// WithVendorID sets the vendor identifier announced in I-Am
func WithVendorID(id uint16) Option {
	return func(o *stackOptions) {
		o.vendorID = id
	}
}

// WithNetworkNumber configures the local network number. A configured
// number is never replaced by one learned from Network-Number-Is.
func WithNetworkNumber(net uint16) Option {
	return func(o *stackOptions) {
		o.networkNumber = net
		o.networkFixed = true
	}
}

// WithPriority sets the network priority of outgoing messages (0-3)
func WithPriority(p uint8) Option {
	return func(o *stackOptions) {
		if p <= 3 {
			o.priority = p
		}
	}
}

// WithTransactionSlots sets the number of concurrent client transactions
func WithTransactionSlots(n int) Option {
	return func(o *stackOptions) {
		o.slots = n
	}
}

// WithAPDUTimeout sets the confirmed request timeout
func WithAPDUTimeout(d time.Duration) Option {
	return func(o *stackOptions) {
		o.apduTimeout = d
	}
}

// WithRetries sets the number of retransmissions before a request times out
func WithRetries(n int) Option {
	return func(o *stackOptions) {
		o.retries = n
	}
}

// WithSegmentTimeout sets the segment timeout
func WithSegmentTimeout(d time.Duration) Option {
	return func(o *stackOptions) {
		o.segmentTimeout = d
	}
}

// WithMaxAPDULength sets the maximum APDU length accepted
func WithMaxAPDULength(length int) Option {
	return func(o *stackOptions) {
		if length >= 50 && length <= apdu.MaxAPDU {
			o.maxAPDU = length
		}
	}
}

// WithSegmentation sets the segmentation capability
func WithSegmentation(seg Segmentation) Option {
	return func(o *stackOptions) {
		o.segmentation = seg
	}
}

// WithProposedWindowSize sets the proposed window size for segmentation
func WithProposedWindowSize(size uint8) Option {
	return func(o *stackOptions) {
		o.windowSize = size
	}
}

// WithMaxSegments sets the number of segments accepted when reassembling
func WithMaxSegments(n int) Option {
	return func(o *stackOptions) {
		o.maxSegments = n
	}
}

// WithQueueDepth sets the depth of the receive queue used by Run
func WithQueueDepth(n int) Option {
	return func(o *stackOptions) {
		if n > 0 {
			o.queueDepth = n
		}
	}
}

// WithTickInterval sets how often Run advances the transaction timers
func WithTickInterval(d time.Duration) Option {
	return func(o *stackOptions) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithMetrics shares a metrics instance with the stack
func WithMetrics(m *Metrics) Option {
	return func(o *stackOptions) {
		o.metrics = m
	}
}

// WithLogger sets the logger for the stack
func WithLogger(logger *slog.Logger) Option {
	return func(o *stackOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// DiscoverOptions holds configuration for device discovery
type DiscoverOptions struct {
	// Range limits for WhoIs
	LowLimit  *uint32
	HighLimit *uint32

	// Timeout for discovery
	Timeout time.Duration

	// Network to search (0 = local, 0xFFFF = global)
	Network uint16
}

// DiscoverOption is a functional option for discovery
type DiscoverOption func(*DiscoverOptions)

func defaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{
		Timeout: 3 * time.Second,
	}
}

// WithDeviceRange sets the device ID range for discovery
func WithDeviceRange(low, high uint32) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.LowLimit = &low
		o.HighLimit = &high
	}
}

// WithDiscoveryTimeout sets the discovery timeout
func WithDiscoveryTimeout(d time.Duration) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Timeout = d
	}
}

// WithTargetNetwork sets the target network for discovery
func WithTargetNetwork(net uint16) DiscoverOption {
	return func(o *DiscoverOptions) {
		o.Network = net
	}
}

// ReadOptions holds configuration for read operations
type ReadOptions struct {
	ArrayIndex *uint32
}

// ReadOption is a functional option for read operations
type ReadOption func(*ReadOptions)

// WithArrayIndex sets the array index for reading array properties
func WithArrayIndex(index uint32) ReadOption {
	return func(o *ReadOptions) {
		o.ArrayIndex = &index
	}
}

// WriteOptions holds configuration for write operations
type WriteOptions struct {
	ArrayIndex *uint32
	Priority   *uint8
}

// WriteOption is a functional option for write operations
type WriteOption func(*WriteOptions)

// WithWriteArrayIndex sets the array index for writing array properties
func WithWriteArrayIndex(index uint32) WriteOption {
	return func(o *WriteOptions) {
		o.ArrayIndex = &index
	}
}

// WithWritePriority sets the priority for writing (1-16, where 1 is highest)
func WithWritePriority(priority uint8) WriteOption {
	return func(o *WriteOptions) {
		if priority >= 1 && priority <= 16 {
			o.Priority = &priority
		}
	}
}

// SubscribeOptions holds configuration for COV subscriptions
type SubscribeOptions struct {
	Lifetime  *uint32
	Confirmed bool
}

// SubscribeOption is a functional option for COV subscriptions
type SubscribeOption func(*SubscribeOptions)

// WithSubscriptionLifetime sets the subscription lifetime in seconds
func WithSubscriptionLifetime(seconds uint32) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Lifetime = &seconds
	}
}

// WithConfirmedNotifications requests confirmed COV notifications
func WithConfirmedNotifications(confirmed bool) SubscribeOption {
	return func(o *SubscribeOptions) {
		o.Confirmed = confirmed
	}
}
