// Copyright 2024 The Cockroach Authors
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

package cutil

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// AllocatorMetrics is the set of collectors a MetricsAllocator reports to.
type AllocatorMetrics struct {
	AllocateBytes   prometheus.Counter
	InuseBytes      prometheus.Gauge
	AllocateObjects prometheus.Counter
	InuseObjects    prometheus.Gauge
}

// NewAllocatorMetrics creates the allocator collectors under namespace and
// registers them with reg. A nil reg leaves them unregistered.
func NewAllocatorMetrics(namespace string, reg prometheus.Registerer) (*AllocatorMetrics, error) {
	m := &AllocatorMetrics{
		AllocateBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "allocate_bytes_total",
			Help:      "Bytes allocated for container storage.",
		}),
		InuseBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "inuse_bytes",
			Help:      "Bytes of container storage not yet released.",
		}),
		AllocateObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "allocate_objects_total",
			Help:      "Container storage allocations.",
		}),
		InuseObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "allocator",
			Name:      "inuse_objects",
			Help:      "Container storage allocations not yet released.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.AllocateBytes, m.InuseBytes, m.AllocateObjects, m.InuseObjects} {
			if err := reg.Register(c); err != nil {
				return nil, errors.Wrap(err, "registering allocator metrics")
			}
		}
	}
	return m, nil
}

// MetricsAllocator wraps another Allocator and reports allocated and in-use
// bytes and objects to prometheus.
type MetricsAllocator[W Width] struct {
	upstream Allocator[W]
	metrics  *AllocatorMetrics
}

var _ Allocator[uint64] = (*MetricsAllocator[uint64])(nil)

// NewMetricsAllocator returns a MetricsAllocator forwarding to upstream, or
// to the default allocator if upstream is nil.
func NewMetricsAllocator[W Width](upstream Allocator[W], metrics *AllocatorMetrics) *MetricsAllocator[W] {
	if upstream == nil {
		upstream = defaultAllocator[W]{}
	}
	return &MetricsAllocator[W]{
		upstream: upstream,
		metrics:  metrics,
	}
}

// AllocCells implements Allocator.
func (m *MetricsAllocator[W]) AllocCells(n int) ([]Cell[W], error) {
	cells, err := m.upstream.AllocCells(n)
	if err == nil {
		m.allocated(n * int(unsafe.Sizeof(Cell[W]{})))
	}
	return cells, err
}

// FreeCells implements Allocator.
func (m *MetricsAllocator[W]) FreeCells(c []Cell[W]) {
	m.freed(len(c) * int(unsafe.Sizeof(Cell[W]{})))
	m.upstream.FreeCells(c)
}

// AllocValues implements Allocator.
func (m *MetricsAllocator[W]) AllocValues(n int) ([]Value, error) {
	items, err := m.upstream.AllocValues(n)
	if err == nil {
		m.allocated(n * int(unsafe.Sizeof(Value{})))
	}
	return items, err
}

// FreeValues implements Allocator.
func (m *MetricsAllocator[W]) FreeValues(v []Value) {
	m.freed(len(v) * int(unsafe.Sizeof(Value{})))
	m.upstream.FreeValues(v)
}

func (m *MetricsAllocator[W]) allocated(bytes int) {
	m.metrics.AllocateBytes.Add(float64(bytes))
	m.metrics.InuseBytes.Add(float64(bytes))
	m.metrics.AllocateObjects.Inc()
	m.metrics.InuseObjects.Inc()
}

func (m *MetricsAllocator[W]) freed(bytes int) {
	m.metrics.InuseBytes.Sub(float64(bytes))
	m.metrics.InuseObjects.Dec()
}
