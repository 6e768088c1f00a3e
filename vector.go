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
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// A vector that must grow gets at least minVectorGrowth slots, doubles
	// while it is smaller than vectorDoublingLimit, and grows by
	// vectorGrowthFactor after that.
	minVectorGrowth     = 32
	vectorDoublingLimit = 1024
	vectorGrowthFactor  = 1.3
)

// Vector is a growable, contiguous sequence of Values whose payloads fit in
// W bits. The backing buffer grows geometrically and is never shrunk
// implicitly.
//
// A Vector is NOT goroutine-safe.
type Vector[W Width] struct {
	// items is the backing buffer. Its length is the vector's capacity; only
	// items[:length] are meaningful.
	items  []Value
	length int

	allocator Allocator[W]
	logger    *zap.Logger
	cleanup   func(v *Vector[W])
	closed    bool
}

// NewVector constructs an empty vector with room for initialCapacity values.
// An initialCapacity of 0 allocates nothing until the first Push.
func NewVector[W Width](initialCapacity int, options ...Option[W]) (*Vector[W], error) {
	if initialCapacity < 0 {
		return nil, errors.Wrapf(ErrInvalidOption, "negative initial capacity %d", initialCapacity)
	}
	o, err := buildOptions(options)
	if err != nil {
		return nil, err
	}
	v := &Vector[W]{
		allocator: o.allocator,
		logger:    o.logger,
		cleanup:   o.vectorCleanup,
	}
	if initialCapacity > 0 {
		items, err := v.allocValues(initialCapacity)
		if err != nil {
			return nil, err
		}
		v.items = items
	}
	return v, nil
}

// Close runs the cleanup function registered with WithVectorCleanup and then
// releases the backing buffer. Close is idempotent; mutations after Close
// return ErrClosed.
func (v *Vector[W]) Close() {
	if v.closed {
		return
	}
	if v.cleanup != nil {
		v.cleanup(v)
	}
	v.logger.Debug("vector closed", zap.Int("capacity", len(v.items)), zap.Int("length", v.length))
	if v.items != nil {
		v.allocator.FreeValues(v.items)
	}
	v.items = nil
	v.length = 0
	v.closed = true
}

// Push appends x, growing the backing buffer when it is full. On error the
// vector is unchanged.
func (v *Vector[W]) Push(x Value) error {
	if v.closed {
		return errors.Wrap(ErrClosed, "push")
	}
	if err := checkValue[W](x); err != nil {
		return err
	}
	if v.length == len(v.items) {
		if err := v.grow(nextVectorCapacity(v.length)); err != nil {
			return err
		}
	}
	v.items[v.length] = x
	v.length++
	return nil
}

// Get returns the value at index i.
func (v *Vector[W]) Get(i int) (Value, error) {
	if i < 0 || i >= v.length {
		return Value{}, errors.Wrapf(ErrIndexOutOfRange, "get %d of %d", i, v.length)
	}
	return v.items[i], nil
}

// Set replaces the value at index i.
func (v *Vector[W]) Set(i int, x Value) error {
	if i < 0 || i >= v.length {
		return errors.Wrapf(ErrIndexOutOfRange, "set %d of %d", i, v.length)
	}
	if err := checkValue[W](x); err != nil {
		return err
	}
	v.items[i] = x
	return nil
}

// Pop removes and returns the last value. The capacity is unchanged.
func (v *Vector[W]) Pop() (Value, error) {
	if v.length == 0 {
		return Value{}, errors.Wrap(ErrIndexOutOfRange, "pop from empty vector")
	}
	v.length--
	x := v.items[v.length]
	v.items[v.length] = Value{}
	return x, nil
}

// Truncate shortens the vector to n values. The capacity is unchanged.
func (v *Vector[W]) Truncate(n int) error {
	if n < 0 || n > v.length {
		return errors.Wrapf(ErrIndexOutOfRange, "truncate to %d of %d", n, v.length)
	}
	// Drop references held by pointer values past the new end.
	clear(v.items[n:v.length])
	v.length = n
	return nil
}

// Len returns the number of values in the vector.
func (v *Vector[W]) Len() int {
	return v.length
}

// Cap returns the number of values the vector holds before it must grow.
func (v *Vector[W]) Cap() int {
	return len(v.items)
}

// Reserve grows the backing buffer, if needed, to hold at least n values.
func (v *Vector[W]) Reserve(n int) error {
	if v.closed {
		return errors.Wrap(ErrClosed, "reserve")
	}
	if n <= len(v.items) {
		return nil
	}
	return v.grow(n)
}

// Clone returns an independent copy of the vector with the same capacity.
// The cleanup function is not carried over.
func (v *Vector[W]) Clone() (*Vector[W], error) {
	if v.closed {
		return nil, errors.Wrap(ErrClosed, "clone")
	}
	c := &Vector[W]{
		length:    v.length,
		allocator: v.allocator,
		logger:    v.logger,
	}
	if len(v.items) > 0 {
		items, err := c.allocValues(len(v.items))
		if err != nil {
			return nil, err
		}
		copy(items, v.items[:v.length])
		c.items = items
	}
	return c, nil
}

// All calls yield sequentially for each index and value in the vector. If
// yield returns false, iteration stops.
func (v *Vector[W]) All(yield func(i int, x Value) bool) {
	for i := 0; i < v.length; i++ {
		if !yield(i, v.items[i]) {
			return
		}
	}
}

// nextVectorCapacity returns the capacity a full vector of length n grows to.
func nextVectorCapacity(n int) int {
	switch {
	case n < minVectorGrowth:
		return minVectorGrowth
	case n < vectorDoublingLimit:
		return n * 2
	default:
		return int(float64(n) * vectorGrowthFactor)
	}
}

func (v *Vector[W]) allocValues(n int) ([]Value, error) {
	items, err := v.allocator.AllocValues(n)
	if err != nil {
		return nil, allocationError(err, "allocating %d values", n)
	}
	if len(items) != n {
		return nil, errors.Wrapf(ErrAllocation, "allocator returned %d values, requested %d", len(items), n)
	}
	clear(items)
	return items, nil
}

// grow replaces the backing buffer with one of newCapacity values. Like
// Table.resize, the allocation happens before anything is modified.
func (v *Vector[W]) grow(newCapacity int) error {
	items, err := v.allocValues(newCapacity)
	if err != nil {
		return errors.Wrapf(err, "growing vector from %d to %d values", len(v.items), newCapacity)
	}
	copy(items, v.items[:v.length])
	old := v.items
	v.items = items
	if old != nil {
		v.allocator.FreeValues(old)
	}
	v.logger.Debug("vector resized",
		zap.Int("from", len(old)), zap.Int("to", newCapacity), zap.Int("length", v.length))
	return nil
}
