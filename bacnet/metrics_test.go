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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLatencyHistogram(t *testing.T) {
	h := NewLatencyHistogram()
	if got := h.Stats(); got.Count != 0 || got.Min != 0 || got.Avg != 0 {
		t.Errorf("empty histogram = %+v", got)
	}

	for _, d := range []time.Duration{
		500 * time.Microsecond,
		time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		2 * time.Second,
	} {
		h.Record(d)
	}
	want := LatencyStats{
		Count:   5,
		Min:     500 * time.Microsecond,
		Max:     2 * time.Second,
		Avg:     2051500 * time.Microsecond / 5,
		Buckets: []int64{1, 1, 0, 1, 1, 0, 0, 0, 0, 1},
	}
	if diff := cmp.Diff(want, h.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	h.Reset()
	if diff := cmp.Diff(LatencyStats{Buckets: make([]int64, 10)}, h.Stats()); diff != "" {
		t.Errorf("after Reset (-want +got):\n%s", diff)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RequestsSent.Add(3)
	m.RequestsSucceeded.Inc()
	m.ActiveTransactions.Set(2)
	m.ActiveTransactions.Dec()
	m.RequestLatency.Record(3 * time.Millisecond)

	s := m.Snapshot()
	if s.RequestsSent != 3 || s.RequestsSucceeded != 1 || s.ActiveTransactions != 1 {
		t.Errorf("snapshot = sent %d ok %d active %d", s.RequestsSent, s.RequestsSucceeded, s.ActiveTransactions)
	}
	if s.LatencyStats.Count != 1 {
		t.Errorf("latency count = %d, want 1", s.LatencyStats.Count)
	}

	m.Reset()
	s = m.Snapshot()
	if s.RequestsSent != 0 || s.ActiveTransactions != 0 || s.LatencyStats.Count != 0 {
		t.Errorf("after Reset: %+v", s)
	}
}
