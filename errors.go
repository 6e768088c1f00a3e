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

import "github.com/cockroachdb/errors"

var (
	// ErrAllocation is returned when the configured Allocator cannot supply
	// storage. The receiver is left exactly as it was before the call.
	ErrAllocation = errors.New("cutil: allocation failed")
	// ErrIndexOutOfRange is returned by Vector accessors for an index outside
	// [0, Len()).
	ErrIndexOutOfRange = errors.New("cutil: index out of range")
	// ErrValueTooWide is returned when a Value's payload does not fit the
	// width of the container it is stored into.
	ErrValueTooWide = errors.New("cutil: value too wide for container")
	// ErrInvalidValue is returned when storing the zero Value or decoding raw
	// bits that do not form a valid Value.
	ErrInvalidValue = errors.New("cutil: invalid value")
	// ErrClosed is returned when mutating a container after Close.
	ErrClosed = errors.New("cutil: container closed")
	// ErrInvalidOption is returned when options or a Config are out of range.
	ErrInvalidOption = errors.New("cutil: invalid option")
)

// allocationError marks err as an ErrAllocation so that callers can test for
// it with errors.Is regardless of what the allocator returned.
func allocationError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrAllocation)
}
