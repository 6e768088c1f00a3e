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

// Package hashkey turns caller keys into hashes of the widths accepted by
// cutil tables. Keys are hashed with xxhash64 and the result is xor-folded
// down to the target width, so every input bit influences every output bit.
package hashkey

import (
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/ghotiio/cutil"
)

// Sum returns the hash of b folded to W.
func Sum[W cutil.Width](b []byte) W {
	return Fold[W](xxhash.Sum64(b))
}

// SumString returns the hash of s folded to W. It does not copy s.
func SumString[W cutil.Width](s string) W {
	return Fold[W](xxhash.Sum64String(s))
}

// SumUint64 returns the hash of the little-endian encoding of x folded to W.
// Use it for integer keys that are not already well distributed.
func SumUint64[W cutil.Width](x uint64) W {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	return Fold[W](xxhash.Sum64(buf[:]))
}

// Fold reduces a 64-bit hash to W by repeatedly xoring the upper half into
// the lower half.
func Fold[W cutil.Width](h uint64) W {
	var w W
	switch unsafe.Sizeof(w) {
	case 1:
		h ^= h >> 32
		h ^= h >> 16
		h ^= h >> 8
	case 2:
		h ^= h >> 32
		h ^= h >> 16
	case 4:
		h ^= h >> 32
	}
	return W(h)
}

// Combine mixes two hashes into one, for keys made of several parts. It is
// not commutative: Combine(a, b) and Combine(b, a) generally differ.
func Combine[W cutil.Width](a, b W) W {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(a))
	binary.LittleEndian.PutUint64(buf[8:], uint64(b))
	return Fold[W](xxhash.Sum64(buf[:]))
}
