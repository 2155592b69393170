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
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing count
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Add(delta int64) { c.v.Add(delta) }
func (c *Counter) Inc()            { c.v.Add(1) }
func (c *Counter) Value() int64    { return c.v.Load() }
func (c *Counter) Reset()          { c.v.Store(0) }

// Gauge holds a level that moves both ways
type Gauge struct {
	v atomic.Int64
}

func (g *Gauge) Set(value int64) { g.v.Store(value) }
func (g *Gauge) Add(delta int64) { g.v.Add(delta) }
func (g *Gauge) Inc()            { g.v.Add(1) }
func (g *Gauge) Dec()            { g.v.Add(-1) }
func (g *Gauge) Value() int64    { return g.v.Load() }

// LatencyBounds are the upper bounds of the request latency buckets.
// A final bucket counts everything at or above the last bound.
var LatencyBounds = []time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// LatencyHistogram records confirmed request round trips
type LatencyHistogram struct {
	mu       sync.Mutex
	count    int64
	sum      time.Duration
	min, max time.Duration
	buckets  [10]int64
}

// NewLatencyHistogram returns an empty histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{}
}

// Record adds one round trip
func (h *LatencyHistogram) Record(d time.Duration) {
	i := sort.Search(len(LatencyBounds), func(i int) bool { return d < LatencyBounds[i] })

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || d < h.min {
		h.min = d
	}
	h.max = max(h.max, d)
	h.count++
	h.sum += d
	h.buckets[i]++
}

// Stats returns a copy of the histogram
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := LatencyStats{
		Count:   h.count,
		Buckets: append([]int64(nil), h.buckets[:]...),
	}
	if h.count > 0 {
		stats.Min, stats.Max = h.min, h.max
		stats.Avg = h.sum / time.Duration(h.count)
	}
	return stats
}

// Reset empties the histogram
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count, h.sum, h.min, h.max = 0, 0, 0, 0
	h.buckets = [10]int64{}
}

// LatencyStats summarizes a LatencyHistogram. Buckets follows
// LatencyBounds with one extra overflow bucket.
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets []int64
}
// Metrics counts stack activity. All fields are safe for concurrent use.
type Metrics struct {
	// Traffic
	PDUsReceived  Counter
	PDUsSent      Counter
	BytesReceived Counter
	BytesSent     Counter

	// Dropped input
	NPDUsDiscarded     Counter
	APDUsMalformed     Counter
	DCCDropped         Counter
	QueueDropped       Counter
	UnmatchedResponses Counter

	// Inbound requests
	ConfirmedReceived   Counter
	UnconfirmedReceived Counter

	// Responses sent
	AcksSent    Counter
	ErrorsSent  Counter
	RejectsSent Counter
	AbortsSent  Counter

	// Client requests
	RequestsSent      Counter
	RequestsSucceeded Counter
	RequestsFailed    Counter
	RequestsTimedOut  Counter

	// Responses received
	ErrorsReceived  Counter
	RejectsReceived Counter
	AbortsReceived  Counter

	// Transaction state machine
	Retransmissions  Counter
	Timeouts         Counter
	SegmentsSent     Counter
	SegmentsReceived Counter

	// Discovery metrics
	WhoIsSent         Counter
	IAmReceived       Counter
	DevicesDiscovered Counter

	// COV metrics
	COVNotifications Counter

	// Latency
	RequestLatency *LatencyHistogram

	// Current state
	ActiveTransactions  Gauge
	ActiveSubscriptions Gauge

	// Timestamps
	startTime    time.Time
	lastActivity atomic.Int64
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		RequestLatency: NewLatencyHistogram(),
		startTime:      time.Now(),
	}
}

// RecordActivity records the last activity time
func (m *Metrics) RecordActivity() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the last activity time
func (m *Metrics) LastActivity() time.Time {
	ns := m.lastActivity.Load()
	if ns == 0 {
		return m.startTime
	}
	return time.Unix(0, ns)
}

// Uptime returns the time since metrics started
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

func (m *Metrics) counters() []*Counter {
	return []*Counter{
		&m.PDUsReceived, &m.PDUsSent, &m.BytesReceived, &m.BytesSent,
		&m.NPDUsDiscarded, &m.APDUsMalformed, &m.DCCDropped, &m.QueueDropped, &m.UnmatchedResponses,
		&m.ConfirmedReceived, &m.UnconfirmedReceived,
		&m.AcksSent, &m.ErrorsSent, &m.RejectsSent, &m.AbortsSent,
		&m.RequestsSent, &m.RequestsSucceeded, &m.RequestsFailed, &m.RequestsTimedOut,
		&m.ErrorsReceived, &m.RejectsReceived, &m.AbortsReceived,
		&m.Retransmissions, &m.Timeouts, &m.SegmentsSent, &m.SegmentsReceived,
		&m.WhoIsSent, &m.IAmReceived, &m.DevicesDiscovered,
		&m.COVNotifications,
	}
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	for _, c := range m.counters() {
		c.Reset()
	}
	m.RequestLatency.Reset()
	m.ActiveTransactions.Set(0)
	m.ActiveSubscriptions.Set(0)
	m.startTime = time.Now()
	m.lastActivity.Store(0)
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime: m.Uptime(),

		PDUsReceived:  m.PDUsReceived.Value(),
		PDUsSent:      m.PDUsSent.Value(),
		BytesReceived: m.BytesReceived.Value(),
		BytesSent:     m.BytesSent.Value(),

		NPDUsDiscarded:     m.NPDUsDiscarded.Value(),
		APDUsMalformed:     m.APDUsMalformed.Value(),
		DCCDropped:         m.DCCDropped.Value(),
		QueueDropped:       m.QueueDropped.Value(),
		UnmatchedResponses: m.UnmatchedResponses.Value(),

		ConfirmedReceived:   m.ConfirmedReceived.Value(),
		UnconfirmedReceived: m.UnconfirmedReceived.Value(),

		AcksSent:    m.AcksSent.Value(),
		ErrorsSent:  m.ErrorsSent.Value(),
		RejectsSent: m.RejectsSent.Value(),
		AbortsSent:  m.AbortsSent.Value(),

		RequestsSent:      m.RequestsSent.Value(),
		RequestsSucceeded: m.RequestsSucceeded.Value(),
		RequestsFailed:    m.RequestsFailed.Value(),
		RequestsTimedOut:  m.RequestsTimedOut.Value(),

		ErrorsReceived:  m.ErrorsReceived.Value(),
		RejectsReceived: m.RejectsReceived.Value(),
		AbortsReceived:  m.AbortsReceived.Value(),

		Retransmissions:  m.Retransmissions.Value(),
		Timeouts:         m.Timeouts.Value(),
		SegmentsSent:     m.SegmentsSent.Value(),
		SegmentsReceived: m.SegmentsReceived.Value(),

		WhoIsSent:         m.WhoIsSent.Value(),
		IAmReceived:       m.IAmReceived.Value(),
		DevicesDiscovered: m.DevicesDiscovered.Value(),

		COVNotifications: m.COVNotifications.Value(),

		LatencyStats: m.RequestLatency.Stats(),

		ActiveTransactions:  m.ActiveTransactions.Value(),
		ActiveSubscriptions: m.ActiveSubscriptions.Value(),

		LastActivity: m.LastActivity(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Uptime time.Duration

	PDUsReceived  int64
	PDUsSent      int64
	BytesReceived int64
	BytesSent     int64

	NPDUsDiscarded     int64
	APDUsMalformed     int64
	DCCDropped         int64
	QueueDropped       int64
	UnmatchedResponses int64

	ConfirmedReceived   int64
	UnconfirmedReceived int64

	AcksSent    int64
	ErrorsSent  int64
	RejectsSent int64
	AbortsSent  int64

	RequestsSent      int64
	RequestsSucceeded int64
	RequestsFailed    int64
	RequestsTimedOut  int64

	ErrorsReceived  int64
	RejectsReceived int64
	AbortsReceived  int64

	Retransmissions  int64
	Timeouts         int64
	SegmentsSent     int64
	SegmentsReceived int64

	WhoIsSent         int64
	IAmReceived       int64
	DevicesDiscovered int64

	COVNotifications int64

	LatencyStats LatencyStats

	ActiveTransactions  int64
	ActiveSubscriptions int64

	LastActivity time.Time
}
