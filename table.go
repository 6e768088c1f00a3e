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

// Package cutil provides hash tables, growable vectors and tagged values,
// each generic over one of four integer widths (8, 16, 32 and 64 bits).
//
// # Tables
//
// A Table maps caller-computed hashes to Values. The table never hashes
// anything itself: the hash is the key, and two logical keys whose hashes
// are equal are the same entry. The hashkey subpackage turns byte strings
// into hashes of the right width.
//
// Tables use open addressing over a single array of cells. The home of a
// hash is hash%capacity and collisions are resolved by linear probing,
// wrapping at the end of the array, so a probe visits every cell before
// repeating. Because the load factor is strictly below 1 there is always an
// unoccupied cell, which terminates every probe:
//
//   - Get and Remove stop at the first occupied cell holding the hash (a
//     hit) or the first unoccupied cell (a miss).
//   - Set stops at the matching cell (an update) or at the first unoccupied
//     cell, which becomes the new entry.
//
// Deletion uses backward shifting rather than tombstones. After a cell is
// cleared, the entries that follow it in the same run are moved back into the
// hole whenever doing so does not place them before their home, so the runs
// that lookups walk never contain a gap. See deleteAt.
//
// Growth happens before an insertion that would push the count above
// capacity*maxLoadFactor. The capacity doubles until the new count fits and
// every entry is re-placed into the new array. Growth is all-or-nothing: the
// new array is obtained from the Allocator before anything is touched, so a
// failed allocation leaves the table exactly as it was.
//
// # Vectors and values
//
// A Vector is a growable contiguous sequence of Values. A Value is a tagged
// union of the fixed-width integer kinds, floats, bools, chars and a raw
// pointer. A container of width W accepts only values whose payload fits in
// W bits.
//
// None of the containers are goroutine-safe.
package cutil

import (
	"fmt"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const minTableCapacity = 1

// Cell is one slot of a Table's backing array. The hash and value of an
// unoccupied cell carry no meaning.
type Cell[W Width] struct {
	hash     W
	value    Value
	occupied bool
}

// Table is an unordered associative store from hashes of width W to Values.
// The zero value is not usable; construct tables with NewTable or one of the
// NewHashN functions.
//
// A Table is NOT goroutine-safe.
type Table[W Width] struct {
	// cells is the backing array. Its length is the table's capacity.
	cells []Cell[W]
	// The number of occupied cells.
	count int
	// The largest count the current capacity admits without growing. Always
	// strictly less than len(cells) so that probing terminates.
	growthLimit int

	maxLoadFactor float64
	allocator     Allocator[W]
	logger        *zap.Logger
	cleanup       func(t *Table[W])
	closed        bool
}

// NewTable constructs a table with room for at least initialCapacity cells,
// all unoccupied. An initialCapacity of 0 yields a single-cell table that
// grows on the first insert.
func NewTable[W Width](initialCapacity int, options ...Option[W]) (*Table[W], error) {
	if initialCapacity < 0 {
		return nil, errors.Wrapf(ErrInvalidOption, "negative initial capacity %d", initialCapacity)
	}
	o, err := buildOptions(options)
	if err != nil {
		return nil, err
	}

	t := &Table[W]{
		maxLoadFactor: o.maxLoadFactor,
		allocator:     o.allocator,
		logger:        o.logger,
		cleanup:       o.tableCleanup,
	}
	cells, err := t.allocCells(max(initialCapacity, minTableCapacity))
	if err != nil {
		return nil, err
	}
	t.cells = cells
	t.growthLimit = t.limitFor(len(cells))
	t.checkInvariants()
	return t, nil
}

// Close runs the cleanup function registered with WithTableCleanup and then
// releases the cell array back to the configured allocator. Close is
// idempotent. After Close the table is empty and every mutation returns
// ErrClosed.
func (t *Table[W]) Close() {
	if t.closed {
		return
	}
	if t.cleanup != nil {
		t.cleanup(t)
	}
	t.logger.Debug("table closed", zap.Int("capacity", len(t.cells)), zap.Int("count", t.count))
	t.allocator.FreeCells(t.cells)
	t.cells = nil
	t.count = 0
	t.growthLimit = 0
	t.closed = true
}

// Set associates value with hash, overwriting the value of an existing entry
// for hash. Inserting a new entry may grow the table. On error the table is
// unchanged.
func (t *Table[W]) Set(hash W, value Value) error {
	if t.closed {
		return errors.Wrap(ErrClosed, "set")
	}
	if err := checkValue[W](value); err != nil {
		return err
	}

	i, found := t.find(hash)
	if found {
		t.cells[i].value = value
		t.checkInvariants()
		return nil
	}

	// Before performing the insertion we may decide the table is getting
	// overcrowded. Growing moves every entry, so the insertion point must be
	// found again afterwards.
	if t.count+1 > t.growthLimit {
		if err := t.growFor(t.count + 1); err != nil {
			return err
		}
		i, _ = t.find(hash)
	}

	t.cells[i] = Cell[W]{hash: hash, value: value, occupied: true}
	t.count++
	t.checkInvariants()
	return nil
}

// Get retrieves the value for the specified hash, returning ok=false if the
// hash is not present.
func (t *Table[W]) Get(hash W) (value Value, ok bool) {
	i, found := t.find(hash)
	if !found {
		return Value{}, false
	}
	return t.cells[i].value, true
}

// Contains reports whether the table holds an entry for hash.
func (t *Table[W]) Contains(hash W) bool {
	_, found := t.find(hash)
	return found
}

// Remove deletes the entry for hash and returns the value it held. It returns
// ok=false, and changes nothing, if the hash is not present. The capacity is
// never reduced.
func (t *Table[W]) Remove(hash W) (value Value, ok bool) {
	i, found := t.find(hash)
	if !found {
		return Value{}, false
	}
	value = t.cells[i].value
	t.deleteAt(i)
	t.count--
	t.checkInvariants()
	return value, true
}

// Len returns the number of entries in the table.
func (t *Table[W]) Len() int {
	return t.count
}

// Cap returns the number of cells in the backing array.
func (t *Table[W]) Cap() int {
	return len(t.cells)
}

// Clear removes every entry while keeping the current capacity.
func (t *Table[W]) Clear() {
	clear(t.cells)
	t.count = 0
	t.checkInvariants()
}

// Reserve grows the table, if needed, so that n entries fit without further
// growth. On error the table is unchanged.
func (t *Table[W]) Reserve(n int) error {
	if t.closed {
		return errors.Wrap(ErrClosed, "reserve")
	}
	if n <= t.growthLimit {
		return nil
	}
	return t.growFor(n)
}

// Clone returns an independent copy of the table with the same capacity,
// allocator, logger and load factor. The cleanup function is not carried
// over: the clone shares whatever pointer values the original holds and
// only one of them should release them.
func (t *Table[W]) Clone() (*Table[W], error) {
	if t.closed {
		return nil, errors.Wrap(ErrClosed, "clone")
	}
	c := &Table[W]{
		count:         t.count,
		growthLimit:   t.growthLimit,
		maxLoadFactor: t.maxLoadFactor,
		allocator:     t.allocator,
		logger:        t.logger,
	}
	cells, err := c.allocCells(len(t.cells))
	if err != nil {
		return nil, err
	}
	copy(cells, t.cells)
	c.cells = cells
	t.logger.Debug("table cloned", zap.Int("capacity", len(cells)), zap.Int("count", c.count))
	c.checkInvariants()
	return c, nil
}

// All calls yield sequentially for each hash and value present in the table,
// in array order. If yield returns false, iteration stops. The table must not
// be mutated during iteration.
//
// All has the shape of a range-over-func iterator:
//
//	for h, v := range t.All {
//	  fmt.Printf("%d: %s\n", h, v)
//	}
func (t *Table[W]) All(yield func(hash W, value Value) bool) {
	for i := range t.cells {
		c := &t.cells[i]
		if c.occupied && !yield(c.hash, c.value) {
			return
		}
	}
}

// home returns the index at which probing for hash starts.
func (t *Table[W]) home(hash W) int {
	return int(uint64(hash) % uint64(len(t.cells)))
}

// find probes for hash. It returns the index of the occupied cell holding
// hash and found=true, or the index of the first unoccupied cell on the probe
// sequence (the insertion point) and found=false. It returns -1 if the table
// has no cells.
func (t *Table[W]) find(hash W) (index int, found bool) {
	n := len(t.cells)
	if n == 0 {
		return -1, false
	}
	i := t.home(hash)
	// The probe visits every cell at most once. The load factor guarantees
	// an unoccupied cell, so the loop always returns before the bound.
	for probes := 0; probes < n; probes++ {
		c := &t.cells[i]
		if !c.occupied {
			return i, false
		}
		if c.hash == hash {
			return i, true
		}
		if i++; i == n {
			i = 0
		}
	}
	panic(errors.AssertionFailedf("no unoccupied cell in table\n%s", t.debugString()))
}

// deleteAt clears the occupied cell i, then walks the run that follows it
// and shifts back every entry that may legally occupy the hole. An entry at
// j may move to the hole at i only if its home does not lie cyclically in
// (i, j]; otherwise moving it would put it before its home and lookups
// starting there would miss it. The walk ends at the first unoccupied cell.
func (t *Table[W]) deleteAt(i int) {
	n := len(t.cells)
	for j := i; ; {
		if j++; j == n {
			j = 0
		}
		c := &t.cells[j]
		if !c.occupied {
			break
		}
		h := t.home(c.hash)
		var movable bool
		if i <= j {
			movable = h <= i || h > j
		} else {
			movable = h <= i && h > j
		}
		if movable {
			t.cells[i] = *c
			i = j
		}
	}
	t.cells[i] = Cell[W]{}
}

// limitFor returns the largest count a table with the given capacity holds
// before growing.
func (t *Table[W]) limitFor(capacity int) int {
	limit := int(float64(capacity) * t.maxLoadFactor)
	if limit >= capacity {
		limit = capacity - 1
	}
	return limit
}

// capacityFor returns the capacity the table grows to in order to hold n
// entries: the current capacity doubled until n fits under the load factor.
// It fails with ErrAllocation once doubling would overflow an int.
func (t *Table[W]) capacityFor(n int) (int, error) {
	capacity := max(len(t.cells), minTableCapacity)
	for t.limitFor(capacity) < n {
		if capacity > math.MaxInt/2 {
			return 0, errors.Wrapf(ErrAllocation, "no capacity holds %d entries", n)
		}
		capacity *= 2
	}
	return capacity, nil
}

// growFor resizes the table so that n entries fit without further growth.
func (t *Table[W]) growFor(n int) error {
	capacity, err := t.capacityFor(n)
	if err != nil {
		return err
	}
	return t.resize(capacity)
}

func (t *Table[W]) allocCells(n int) ([]Cell[W], error) {
	cells, err := t.allocator.AllocCells(n)
	if err != nil {
		return nil, allocationError(err, "allocating %d cells", n)
	}
	if len(cells) != n {
		return nil, errors.Wrapf(ErrAllocation, "allocator returned %d cells, requested %d", len(cells), n)
	}
	// Allocators may hand back recycled memory.
	clear(cells)
	return cells, nil
}

// resize replaces the cell array with one of newCapacity cells and re-places
// every entry into it. The only fallible step is the allocation, which
// happens before the table is modified.
func (t *Table[W]) resize(newCapacity int) error {
	cells, err := t.allocCells(newCapacity)
	if err != nil {
		return errors.Wrapf(err, "growing table from %d to %d cells", len(t.cells), newCapacity)
	}

	old := t.cells
	t.cells = cells
	t.growthLimit = t.limitFor(newCapacity)
	for i := range old {
		if old[i].occupied {
			j, _ := t.find(old[i].hash)
			t.cells[j] = old[i]
		}
	}
	t.allocator.FreeCells(old)

	t.logger.Debug("table resized",
		zap.Int("from", len(old)), zap.Int("to", newCapacity), zap.Int("count", t.count))
	t.checkInvariants()
	return nil
}

func (t *Table[W]) checkInvariants() {
	if invariants {
		if t.closed {
			if t.cells != nil || t.count != 0 {
				panic(errors.AssertionFailedf("invariant failed: closed table holds %d cells, count %d",
					len(t.cells), t.count))
			}
			return
		}
		if len(t.cells) < minTableCapacity {
			panic(errors.AssertionFailedf("invariant failed: capacity %d", len(t.cells)))
		}
		if t.growthLimit >= len(t.cells) || t.growthLimit != t.limitFor(len(t.cells)) {
			panic(errors.AssertionFailedf("invariant failed: growth limit %d for capacity %d\n%s",
				t.growthLimit, len(t.cells), t.debugString()))
		}
		if t.count > t.growthLimit {
			panic(errors.AssertionFailedf("invariant failed: count %d exceeds growth limit %d\n%s",
				t.count, t.growthLimit, t.debugString()))
		}

		// For every occupied cell, verify that probing for its hash lands on
		// it. This also verifies that no hash is stored twice.
		var used int
		for i := range t.cells {
			c := &t.cells[i]
			if !c.occupied {
				continue
			}
			used++
			if j, found := t.find(c.hash); !found || j != i {
				panic(errors.AssertionFailedf("invariant failed: cell(%d): hash %d found at %d (found=%t)\n%s",
					i, c.hash, j, found, t.debugString()))
			}
		}
		if used != t.count {
			panic(errors.AssertionFailedf("invariant failed: found %d used cells, but count is %d\n%s",
				used, t.count, t.debugString()))
		}
	}
}

func (t *Table[W]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  count=%d  growth-limit=%d\n", len(t.cells), t.count, t.growthLimit)
	for i := range t.cells {
		c := &t.cells[i]
		if !c.occupied {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		fmt.Fprintf(&buf, "  %4d: %d -> %s [home=%d]\n", i, c.hash, c.value, t.home(c.hash))
	}
	return buf.String()
}
