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

import "unsafe"

// Width is the set of unsigned integer types a container can be keyed by. The
// width of W bounds both the stored hash and the values a container accepts.
type Width interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

func widthBits[W Width]() int {
	var w W
	return int(unsafe.Sizeof(w)) * 8
}

// The four width variants share a single generic implementation.
type (
	Hash8Table  = Table[uint8]
	Hash16Table = Table[uint16]
	Hash32Table = Table[uint32]
	Hash64Table = Table[uint64]

	Hash8Cell  = Cell[uint8]
	Hash16Cell = Cell[uint16]
	Hash32Cell = Cell[uint32]
	Hash64Cell = Cell[uint64]

	Hash8Iterator  = Iterator[uint8]
	Hash16Iterator = Iterator[uint16]
	Hash32Iterator = Iterator[uint32]
	Hash64Iterator = Iterator[uint64]

	Vector8  = Vector[uint8]
	Vector16 = Vector[uint16]
	Vector32 = Vector[uint32]
	Vector64 = Vector[uint64]
)

// NewHash8 constructs a table keyed by 8-bit hashes holding 8-bit values.
func NewHash8(initialCapacity int, options ...Option[uint8]) (*Hash8Table, error) {
	return NewTable[uint8](initialCapacity, options...)
}

// NewHash16 constructs a table keyed by 16-bit hashes holding values of at
// most 16 bits.
func NewHash16(initialCapacity int, options ...Option[uint16]) (*Hash16Table, error) {
	return NewTable[uint16](initialCapacity, options...)
}

// NewHash32 constructs a table keyed by 32-bit hashes holding values of at
// most 32 bits.
func NewHash32(initialCapacity int, options ...Option[uint32]) (*Hash32Table, error) {
	return NewTable[uint32](initialCapacity, options...)
}

// NewHash64 constructs a table keyed by 64-bit hashes holding any Value.
func NewHash64(initialCapacity int, options ...Option[uint64]) (*Hash64Table, error) {
	return NewTable[uint64](initialCapacity, options...)
}

// NewVector8 constructs a vector of values that fit in 8 bits.
func NewVector8(initialCapacity int, options ...Option[uint8]) (*Vector8, error) {
	return NewVector[uint8](initialCapacity, options...)
}

// NewVector16 constructs a vector of values that fit in 16 bits.
func NewVector16(initialCapacity int, options ...Option[uint16]) (*Vector16, error) {
	return NewVector[uint16](initialCapacity, options...)
}

// NewVector32 constructs a vector of values that fit in 32 bits.
func NewVector32(initialCapacity int, options ...Option[uint32]) (*Vector32, error) {
	return NewVector[uint32](initialCapacity, options...)
}

// NewVector64 constructs a vector of values that fit in 64 bits.
func NewVector64(initialCapacity int, options ...Option[uint64]) (*Vector64, error) {
	return NewVector[uint64](initialCapacity, options...)
}
