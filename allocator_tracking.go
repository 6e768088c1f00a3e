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
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"
)

// TrackingAllocator wraps another Allocator and records every allocation and
// release. While capturing (the initial state) each call is logged at Info
// level together with the file and line of the code that asked a container
// for the memory and the container function it went through, which makes
// leaks visible as allocations without a matching free. The
// counters are maintained whether or not the allocator is capturing.
//
// A TrackingAllocator may be shared by containers on different goroutines.
type TrackingAllocator[W Width] struct {
	upstream Allocator[W]
	logger   *zap.Logger
	capture  atomic.Bool
	allocs   atomic.Int64
	frees    atomic.Int64
	failures atomic.Int64
}

var _ Allocator[uint64] = (*TrackingAllocator[uint64])(nil)

// NewTrackingAllocator returns a TrackingAllocator that forwards to upstream,
// or to the default allocator if upstream is nil, and logs to logger.
func NewTrackingAllocator[W Width](upstream Allocator[W], logger *zap.Logger) *TrackingAllocator[W] {
	if upstream == nil {
		upstream = defaultAllocator[W]{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &TrackingAllocator[W]{
		upstream: upstream,
		logger:   logger,
	}
	a.capture.Store(true)
	return a
}

// Start resumes logging of allocation calls.
func (a *TrackingAllocator[W]) Start() { a.capture.Store(true) }

// Stop suspends logging of allocation calls. Counting continues.
func (a *TrackingAllocator[W]) Stop() { a.capture.Store(false) }

// AllocCount returns the number of successful allocations.
func (a *TrackingAllocator[W]) AllocCount() int64 { return a.allocs.Load() }

// FreeCount returns the number of releases.
func (a *TrackingAllocator[W]) FreeCount() int64 { return a.frees.Load() }

// FailureCount returns the number of allocations the upstream refused.
func (a *TrackingAllocator[W]) FailureCount() int64 { return a.failures.Load() }

// Outstanding returns the number of allocations not yet released.
func (a *TrackingAllocator[W]) Outstanding() int64 { return a.allocs.Load() - a.frees.Load() }

// AllocCells implements Allocator.
func (a *TrackingAllocator[W]) AllocCells(n int) ([]Cell[W], error) {
	cells, err := a.upstream.AllocCells(n)
	a.record("alloc", "cells", n, int(unsafe.Sizeof(Cell[W]{})), unsafe.SliceData(cells), err)
	return cells, err
}

// FreeCells implements Allocator.
func (a *TrackingAllocator[W]) FreeCells(c []Cell[W]) {
	a.record("free", "cells", len(c), int(unsafe.Sizeof(Cell[W]{})), unsafe.SliceData(c), nil)
	a.upstream.FreeCells(c)
}

// AllocValues implements Allocator.
func (a *TrackingAllocator[W]) AllocValues(n int) ([]Value, error) {
	items, err := a.upstream.AllocValues(n)
	a.record("alloc", "values", n, int(unsafe.Sizeof(Value{})), unsafe.SliceData(items), err)
	return items, err
}

// FreeValues implements Allocator.
func (a *TrackingAllocator[W]) FreeValues(v []Value) {
	a.record("free", "values", len(v), int(unsafe.Sizeof(Value{})), unsafe.SliceData(v), nil)
	a.upstream.FreeValues(v)
}

func (a *TrackingAllocator[W]) record(op, what string, n, size int, ptr any, err error) {
	switch {
	case err != nil:
		a.failures.Add(1)
	case op == "alloc":
		a.allocs.Add(1)
	default:
		a.frees.Add(1)
	}
	if !a.capture.Load() {
		return
	}

	caller, via := callSite()
	fields := []zap.Field{
		zap.String("kind", what),
		zap.Int("n", n),
		zap.Uint64("bytes", uint64(n)*uint64(size)),
		zap.String("addr", fmt.Sprintf("%p", ptr)),
		zap.String("caller", caller),
		zap.String("via", via),
	}
	if err != nil {
		a.logger.Warn(op, append(fields, zap.Error(err))...)
		return
	}
	a.logger.Info(op, fields...)
}

// pkgDir is the directory holding this package's sources.
var pkgDir = func() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}()

// callSite walks up from the allocator to the first frame outside this
// package's non-test sources and returns its file:line, together with the
// last package function on the way, typically the container method that
// needed the memory (Set, Reserve, NewTable and so on).
func callSite() (caller, via string) {
	var pcs [32]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(2, pcs[:])])
	caller, via = "unknown", "unknown"
	for {
		f, more := frames.Next()
		if f.File != "" && (filepath.Dir(f.File) != pkgDir || strings.HasSuffix(f.File, "_test.go")) {
			return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line), via
		}
		if f.Function != "" {
			via = f.Function[strings.LastIndexByte(f.Function, '/')+1:]
		}
		if !more {
			return caller, via
		}
	}
}
