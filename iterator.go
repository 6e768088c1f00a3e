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

// Iterator is a cursor over the occupied cells of a Table, in array order.
// Array order is not insertion order and changes when the table grows.
//
// An Iterator borrows its table. Any Set that inserts, any Remove, and Clear
// or Close invalidate it; continuing to use an invalidated iterator may skip
// or repeat entries.
//
//	it := t.Iterator()
//	for it.Next() {
//	  fmt.Println(it.Hash(), it.Value())
//	}
type Iterator[W Width] struct {
	table *Table[W]
	// pos is the index of the next cell to examine.
	pos  int
	cur  Cell[W]
	done bool
}

// Iterator returns an iterator positioned before the first occupied cell. An
// iterator over an empty table is exhausted from the start.
func (t *Table[W]) Iterator() *Iterator[W] {
	return &Iterator[W]{
		table: t,
		done:  t.count == 0,
	}
}

// Next advances to the next occupied cell and reports whether there was one.
// Once Next returns false the iterator is exhausted and stays exhausted; it
// never wraps around.
func (it *Iterator[W]) Next() bool {
	if it.done {
		return false
	}
	cells := it.table.cells
	for ; it.pos < len(cells); it.pos++ {
		if cells[it.pos].occupied {
			it.cur = cells[it.pos]
			it.pos++
			return true
		}
	}
	it.done = true
	it.cur = Cell[W]{}
	return false
}

// Exhausted reports whether Next has run past the last occupied cell.
func (it *Iterator[W]) Exhausted() bool {
	return it.done
}

// Hash returns the hash at the iterator's current position. This is only
// valid after a call to Next that returned true.
func (it *Iterator[W]) Hash() W {
	return it.cur.hash
}

// Value returns the value at the iterator's current position. This is only
// valid after a call to Next that returned true.
func (it *Iterator[W]) Value() Value {
	return it.cur.value
}
