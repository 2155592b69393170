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

// Package promexport exposes stack metrics and object values to
// Prometheus.
package promexport

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgeo/drivers/bacstack/bacnet"
	"github.com/edgeo/drivers/bacstack/bacnet/tag"
)

const namespace = "bacstack"

// Source supplies metric snapshots; *bacnet.Metrics implements it
type Source interface {
	Snapshot() bacnet.MetricsSnapshot
}

type counter struct {
	desc  *prometheus.Desc
	value func(s *bacnet.MetricsSnapshot) int64
}


// Collector is a prometheus.Collector reading a Source on every scrape
type Collector struct {
	src      Source
	counters []counter

	activeTransactions  *prometheus.Desc
	activeSubscriptions *prometheus.Desc
	uptime              *prometheus.Desc
	latency             *prometheus.Desc
}

// NewCollector returns a collector labelled with the device instance
func NewCollector(src Source, deviceID uint32) *Collector {
	labels := prometheus.Labels{"device": strconv.FormatUint(uint64(deviceID), 10)}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}
	c := &Collector{
		src:                 src,
		activeTransactions:  desc("active_transactions", "Transaction state machine slots in use"),
		activeSubscriptions: desc("active_subscriptions", "COV subscriptions held by the client"),
		uptime:              desc("uptime_seconds", "Seconds since the stack started"),
		latency:             desc("request_latency_seconds", "Confirmed request round trip time"),
	}
	add := func(name, help string, value func(s *bacnet.MetricsSnapshot) int64) {
		c.counters = append(c.counters, counter{desc: desc(name, help), value: value})
	}

	add("pdus_received_total", "NPDUs received from the datalink", func(s *bacnet.MetricsSnapshot) int64 { return s.PDUsReceived })
	add("pdus_sent_total", "NPDUs sent to the datalink", func(s *bacnet.MetricsSnapshot) int64 { return s.PDUsSent })
	add("bytes_received_total", "Octets received", func(s *bacnet.MetricsSnapshot) int64 { return s.BytesReceived })
	add("bytes_sent_total", "Octets sent", func(s *bacnet.MetricsSnapshot) int64 { return s.BytesSent })
	add("npdus_discarded_total", "NPDUs discarded by the network layer", func(s *bacnet.MetricsSnapshot) int64 { return s.NPDUsDiscarded })
	add("apdus_malformed_total", "APDUs that failed to decode", func(s *bacnet.MetricsSnapshot) int64 { return s.APDUsMalformed })
	add("dcc_dropped_total", "Requests dropped by communication control", func(s *bacnet.MetricsSnapshot) int64 { return s.DCCDropped })
	add("queue_dropped_total", "Frames dropped on a full receive queue", func(s *bacnet.MetricsSnapshot) int64 { return s.QueueDropped })
	add("unmatched_responses_total", "Responses without a pending transaction", func(s *bacnet.MetricsSnapshot) int64 { return s.UnmatchedResponses })
	add("confirmed_received_total", "Confirmed requests received", func(s *bacnet.MetricsSnapshot) int64 { return s.ConfirmedReceived })
	add("unconfirmed_received_total", "Unconfirmed requests received", func(s *bacnet.MetricsSnapshot) int64 { return s.UnconfirmedReceived })
	add("acks_sent_total", "Simple and complex acks sent", func(s *bacnet.MetricsSnapshot) int64 { return s.AcksSent })
	add("errors_sent_total", "Error PDUs sent", func(s *bacnet.MetricsSnapshot) int64 { return s.ErrorsSent })
	add("rejects_sent_total", "Reject PDUs sent", func(s *bacnet.MetricsSnapshot) int64 { return s.RejectsSent })
	add("aborts_sent_total", "Abort PDUs sent", func(s *bacnet.MetricsSnapshot) int64 { return s.AbortsSent })
	add("requests_sent_total", "Confirmed requests sent", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsSent })
	add("requests_succeeded_total", "Confirmed requests acknowledged", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsSucceeded })
	add("requests_failed_total", "Confirmed requests answered with an error, reject or abort", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsFailed })
	add("requests_timed_out_total", "Confirmed requests that timed out", func(s *bacnet.MetricsSnapshot) int64 { return s.RequestsTimedOut })
	add("errors_received_total", "Error PDUs received", func(s *bacnet.MetricsSnapshot) int64 { return s.ErrorsReceived })
	add("rejects_received_total", "Reject PDUs received", func(s *bacnet.MetricsSnapshot) int64 { return s.RejectsReceived })
	add("aborts_received_total", "Abort PDUs received", func(s *bacnet.MetricsSnapshot) int64 { return s.AbortsReceived })
	add("retransmissions_total", "Confirmed request retransmissions", func(s *bacnet.MetricsSnapshot) int64 { return s.Retransmissions })
	add("timeouts_total", "Transaction timeouts", func(s *bacnet.MetricsSnapshot) int64 { return s.Timeouts })
	add("segments_sent_total", "Segments sent", func(s *bacnet.MetricsSnapshot) int64 { return s.SegmentsSent })
	add("segments_received_total", "Segments received", func(s *bacnet.MetricsSnapshot) int64 { return s.SegmentsReceived })
	add("who_is_sent_total", "Who-Is requests sent", func(s *bacnet.MetricsSnapshot) int64 { return s.WhoIsSent })
	add("i_am_received_total", "I-Am announcements received", func(s *bacnet.MetricsSnapshot) int64 { return s.IAmReceived })
	add("devices_discovered_total", "Distinct devices discovered", func(s *bacnet.MetricsSnapshot) int64 { return s.DevicesDiscovered })
	add("cov_notifications_total", "COV notifications received", func(s *bacnet.MetricsSnapshot) int64 { return s.COVNotifications })
	return c
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, ctr := range c.counters {
		ch <- ctr.desc
	}
	ch <- c.activeTransactions
	ch <- c.activeSubscriptions
	ch <- c.uptime
	ch <- c.latency
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Snapshot()
	for _, ctr := range c.counters {
		ch <- prometheus.MustNewConstMetric(ctr.desc, prometheus.CounterValue, float64(ctr.value(&s)))
	}
	ch <- prometheus.MustNewConstMetric(c.activeTransactions, prometheus.GaugeValue, float64(s.ActiveTransactions))
	ch <- prometheus.MustNewConstMetric(c.activeSubscriptions, prometheus.GaugeValue, float64(s.ActiveSubscriptions))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime.Seconds())

	buckets := make(map[float64]uint64, len(bacnet.LatencyBounds))
	var cumulative uint64
	for i, bound := range bacnet.LatencyBounds {
		if i < len(s.LatencyStats.Buckets) {
			cumulative += uint64(s.LatencyStats.Buckets[i])
		}
		buckets[bound.Seconds()] = cumulative
	}
	sum := s.LatencyStats.Avg.Seconds() * float64(s.LatencyStats.Count)
	ch <- prometheus.MustNewConstHistogram(c.latency, uint64(s.LatencyStats.Count), sum, buckets)
}

// Values tracks numeric property values as a gauge
type Values struct {
	gauge *prometheus.GaugeVec
}

// NewValues returns an unregistered object value gauge
func NewValues() *Values {
	return &Values{
		gauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "property_value",
				Help:      "Last numeric value of a BACnet object property",
			},
			[]string{"object", "property"}),
	}
}

// Describe implements prometheus.Collector
func (v *Values) Describe(ch chan<- *prometheus.Desc) {
	v.gauge.Describe(ch)
}

// Collect implements prometheus.Collector
func (v *Values) Collect(ch chan<- prometheus.Metric) {
	v.gauge.Collect(ch)
}

// Observe records the first value of a property when it is numeric. Its
// signature matches objectdb.ChangeFunc.
func (v *Values) Observe(oid bacnet.ObjectIdentifier, prop bacnet.PropertyIdentifier, values []tag.Value) {
	if len(values) == 0 {
		return
	}
	f, ok := numeric(values[0])
	if !ok {
		return
	}
	v.gauge.WithLabelValues(oid.String(), prop.String()).Set(f)
}

func numeric(v tag.Value) (float64, bool) {
	switch v.Tag {
	case tag.AppBoolean:
		if v.Boolean {
			return 1, true
		}
		return 0, true
	case tag.AppUnsigned:
		return float64(v.Unsigned), true
	case tag.AppSigned:
		return float64(v.Signed), true
	case tag.AppReal:
		return float64(v.Real), true
	case tag.AppDouble:
		return v.Double, true
	case tag.AppEnumerated:
		return float64(v.Enumerated), true
	}
	return 0, false
}

// Handler serves the collectors, plus the Go runtime and process
// collectors, in the Prometheus text format
func Handler(cs ...prometheus.Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}), nil
}
