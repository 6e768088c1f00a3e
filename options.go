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
	"math"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultMaxLoadFactor = 0.75

// Option configures a Table or Vector while it is being created.
type Option[W Width] interface {
	apply(o *options[W])
}

type options[W Width] struct {
	allocator     Allocator[W]
	logger        *zap.Logger
	logLevel      string
	maxLoadFactor float64
	tableCleanup  func(t *Table[W])
	vectorCleanup func(v *Vector[W])
}

func buildOptions[W Width](opts []Option[W]) (options[W], error) {
	o := options[W]{
		allocator:     defaultAllocator[W]{},
		maxLoadFactor: defaultMaxLoadFactor,
	}
	for _, op := range opts {
		op.apply(&o)
	}
	if o.allocator == nil {
		return o, errors.Wrap(ErrInvalidOption, "nil allocator")
	}
	if !(o.maxLoadFactor > 0 && o.maxLoadFactor < 1) {
		return o, errors.Wrapf(ErrInvalidOption, "max load factor %v not in (0, 1)", o.maxLoadFactor)
	}
	if o.logger == nil {
		if o.logLevel == "" {
			o.logger = zap.NewNop()
		} else {
			l, err := newLogger(o.logLevel)
			if err != nil {
				return o, err
			}
			o.logger = l
		}
	}
	return o, nil
}

// configLoggers holds the loggers built for Config.LogLevel, one per level,
// shared by every container configured with that level.
var configLoggers struct {
	sync.Mutex
	byLevel map[zapcore.Level]*zap.Logger
}

// newLogger returns the production logger for level, building it on first
// use.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "log level %q", level), ErrInvalidOption)
	}

	configLoggers.Lock()
	defer configLoggers.Unlock()
	if l, ok := configLoggers.byLevel[lvl]; ok {
		return l, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	l = l.Named("cutil")
	if configLoggers.byLevel == nil {
		configLoggers.byLevel = make(map[zapcore.Level]*zap.Logger)
	}
	configLoggers.byLevel[lvl] = l
	return l, nil
}

// Allocator specifies an interface for allocating and releasing the memory
// used by a Table or Vector. The default allocator utilizes Go's builtin
// make() and allows the GC to reclaim memory.
//
// Unlike make(), an allocator may fail. A failed allocation is surfaced to the
// caller as ErrAllocation and leaves the container unchanged.
//
// If the allocator is manually managing memory and requires that cells and
// values be freed then Close must be called on every container in order to
// ensure FreeCells and FreeValues are called.
type Allocator[W Width] interface {
	// AllocCells should return a slice equivalent to make([]Cell[W], n).
	AllocCells(n int) ([]Cell[W], error)

	// FreeCells can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by AllocCells.
	FreeCells(c []Cell[W])

	// AllocValues should return a slice equivalent to make([]Value, n).
	AllocValues(n int) ([]Value, error)

	// FreeValues can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocValues.
	FreeValues(v []Value)
}

// maxAllocBytes bounds a single request to the default allocator. It stays
// below the runtime's largest allocation so that oversized requests fail with
// an error instead of a makeslice panic.
var maxAllocBytes = func() uint64 {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return 1 << 47
	}
	return math.MaxInt32
}()

// checkAllocSize fails if n elements of elemSize bytes exceed maxAllocBytes.
func checkAllocSize(n int, elemSize uintptr, what string) error {
	if n < 0 || uint64(n) > maxAllocBytes/uint64(elemSize) {
		return errors.Newf("cutil: %d %s exceed the %d byte allocation limit", n, what, maxAllocBytes)
	}
	return nil
}

type defaultAllocator[W Width] struct{}

func (defaultAllocator[W]) AllocCells(n int) ([]Cell[W], error) {
	if err := checkAllocSize(n, unsafe.Sizeof(Cell[W]{}), "cells"); err != nil {
		return nil, err
	}
	return make([]Cell[W], n), nil
}

func (defaultAllocator[W]) FreeCells(c []Cell[W]) {
}

func (defaultAllocator[W]) AllocValues(n int) ([]Value, error) {
	if err := checkAllocSize(n, unsafe.Sizeof(Value{}), "values"); err != nil {
		return nil, err
	}
	return make([]Value, n), nil
}

func (defaultAllocator[W]) FreeValues(v []Value) {
}

type allocatorOption[W Width] struct {
	allocator Allocator[W]
}

func (op allocatorOption[W]) apply(o *options[W]) {
	o.allocator = op.allocator
}

// WithAllocator is an option to specify the Allocator to use for a container.
func WithAllocator[W Width](allocator Allocator[W]) Option[W] {
	return allocatorOption[W]{allocator}
}

type loggerOption[W Width] struct {
	logger *zap.Logger
}

func (op loggerOption[W]) apply(o *options[W]) {
	o.logger = op.logger
}

// WithLogger is an option to specify the logger a container reports growth
// and lifecycle events to. The default discards everything.
func WithLogger[W Width](logger *zap.Logger) Option[W] {
	return loggerOption[W]{logger}
}

type maxLoadFactorOption[W Width] struct {
	factor float64
}

func (op maxLoadFactorOption[W]) apply(o *options[W]) {
	o.maxLoadFactor = op.factor
}

// WithMaxLoadFactor is an option to specify the ratio of occupied cells to
// capacity above which a Table grows. It must lie in (0, 1); the default is
// 0.75. Vectors ignore it.
func WithMaxLoadFactor[W Width](factor float64) Option[W] {
	return maxLoadFactorOption[W]{factor}
}

type tableCleanupOption[W Width] struct {
	fn func(t *Table[W])
}

func (op tableCleanupOption[W]) apply(o *options[W]) {
	o.tableCleanup = op.fn
}

// WithTableCleanup registers fn to be called by Table.Close before the cell
// array is released. It is the place to release whatever the table's pointer
// values refer to. Vectors ignore it.
func WithTableCleanup[W Width](fn func(t *Table[W])) Option[W] {
	return tableCleanupOption[W]{fn}
}

type vectorCleanupOption[W Width] struct {
	fn func(v *Vector[W])
}

func (op vectorCleanupOption[W]) apply(o *options[W]) {
	o.vectorCleanup = op.fn
}

// WithVectorCleanup registers fn to be called by Vector.Close before the
// backing buffer is released. Tables ignore it.
func WithVectorCleanup[W Width](fn func(v *Vector[W])) Option[W] {
	return vectorCleanupOption[W]{fn}
}

type configOption[W Width] struct {
	cfg Config
}

func (op configOption[W]) apply(o *options[W]) {
	if op.cfg.MaxLoadFactor != 0 {
		o.maxLoadFactor = op.cfg.MaxLoadFactor
	}
	o.logLevel = op.cfg.LogLevel
}

// WithConfig is an option to apply a Config, typically one read by
// LoadConfig. An explicit WithLogger takes precedence over Config.LogLevel.
func WithConfig[W Width](cfg Config) Option[W] {
	return configOption[W]{cfg}
}
