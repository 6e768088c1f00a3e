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
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Kind identifies which variant of a Value is live.
type Kind uint8

const (
	// KindInvalid is the kind of the zero Value. It is never stored in a
	// container.
	KindInvalid Kind = iota
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindPointer
	KindBool
	KindChar
	KindFloat32
	KindFloat64
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindPointer: "pointer",
	KindBool:    "bool",
	KindChar:    "char",
	KindFloat32: "float32",
	KindFloat64: "float64",
}

// String returns the lower-case name of k.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Bits returns the number of payload bits a value of kind k occupies. A
// container of width W only accepts values with Bits() <= W.
func (k Kind) Bits() int {
	switch k {
	case KindInt8, KindUint8, KindBool, KindChar:
		return 8
	case KindInt16, KindUint16:
		return 16
	case KindInt32, KindUint32, KindFloat32:
		return 32
	case KindInt64, KindUint64, KindFloat64:
		return 64
	case KindPointer:
		return int(unsafe.Sizeof(uintptr(0))) * 8
	}
	return 0
}

// Value is a tagged union over the fixed-width primitive kinds and a raw
// pointer. Values are immutable and are copied into containers by value.
//
// The integer and float variants share the bits field; the pointer variant
// uses ptr so that the garbage collector keeps the pointee reachable while it
// sits in a container. Containers never dereference or free a pointer.
type Value struct {
	kind Kind
	bits uint64
	ptr  unsafe.Pointer
}

// Int8 returns a Value holding an int8.
func Int8(x int8) Value { return Value{kind: KindInt8, bits: uint64(int64(x))} }

// Uint8 returns a Value holding a uint8.
func Uint8(x uint8) Value { return Value{kind: KindUint8, bits: uint64(x)} }

// Int16 returns a Value holding an int16.
func Int16(x int16) Value { return Value{kind: KindInt16, bits: uint64(int64(x))} }

// Uint16 returns a Value holding a uint16.
func Uint16(x uint16) Value { return Value{kind: KindUint16, bits: uint64(x)} }

// Int32 returns a Value holding an int32.
func Int32(x int32) Value { return Value{kind: KindInt32, bits: uint64(int64(x))} }

// Uint32 returns a Value holding a uint32.
func Uint32(x uint32) Value { return Value{kind: KindUint32, bits: uint64(x)} }

// Int64 returns a Value holding an int64.
func Int64(x int64) Value { return Value{kind: KindInt64, bits: uint64(x)} }

// Uint64 returns a Value holding a uint64.
func Uint64(x uint64) Value { return Value{kind: KindUint64, bits: x} }

// Pointer returns a Value holding a raw pointer. The lifetime of the pointee
// is the caller's responsibility.
func Pointer(p unsafe.Pointer) Value { return Value{kind: KindPointer, ptr: p} }

// Bool returns a Value holding a bool.
func Bool(x bool) Value {
	v := Value{kind: KindBool}
	if x {
		v.bits = 1
	}
	return v
}

// Char returns a Value holding a single byte character.
func Char(c byte) Value { return Value{kind: KindChar, bits: uint64(c)} }

// Float32 returns a Value holding a float32.
func Float32(x float32) Value { return Value{kind: KindFloat32, bits: uint64(math.Float32bits(x))} }

// Float64 returns a Value holding a float64.
func Float64(x float64) Value { return Value{kind: KindFloat64, bits: math.Float64bits(x)} }

// Kind returns the live variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsInt8 returns the int8 held by v; ok is false if v is not an int8.
func (v Value) AsInt8() (int8, bool) { return int8(v.bits), v.kind == KindInt8 }

// AsUint8 returns the uint8 held by v; ok is false if v is not a uint8.
func (v Value) AsUint8() (uint8, bool) { return uint8(v.bits), v.kind == KindUint8 }

// AsInt16 returns the int16 held by v; ok is false if v is not an int16.
func (v Value) AsInt16() (int16, bool) { return int16(v.bits), v.kind == KindInt16 }

// AsUint16 returns the uint16 held by v; ok is false if v is not a uint16.
func (v Value) AsUint16() (uint16, bool) { return uint16(v.bits), v.kind == KindUint16 }

// AsInt32 returns the int32 held by v; ok is false if v is not an int32.
func (v Value) AsInt32() (int32, bool) { return int32(v.bits), v.kind == KindInt32 }

// AsUint32 returns the uint32 held by v; ok is false if v is not a uint32.
func (v Value) AsUint32() (uint32, bool) { return uint32(v.bits), v.kind == KindUint32 }

// AsInt64 returns the int64 held by v; ok is false if v is not an int64.
func (v Value) AsInt64() (int64, bool) { return int64(v.bits), v.kind == KindInt64 }

// AsUint64 returns the uint64 held by v; ok is false if v is not a uint64.
func (v Value) AsUint64() (uint64, bool) { return v.bits, v.kind == KindUint64 }

// AsBool returns the bool held by v; ok is false if v is not a bool.
func (v Value) AsBool() (bool, bool) { return v.bits != 0, v.kind == KindBool }

// AsChar returns the char held by v; ok is false if v is not a char.
func (v Value) AsChar() (byte, bool) { return byte(v.bits), v.kind == KindChar }

// AsPointer returns the pointer held by v; ok is false if v is not a
// pointer.
func (v Value) AsPointer() (unsafe.Pointer, bool) {
	return v.ptr, v.kind == KindPointer
}

// AsFloat32 returns the float32 held by v; ok is false if v is not a
// float32.
func (v Value) AsFloat32() (float32, bool) {
	return math.Float32frombits(uint32(v.bits)), v.kind == KindFloat32
}

// AsFloat64 returns the float64 held by v; ok is false if v is not a
// float64.
func (v Value) AsFloat64() (float64, bool) {
	return math.Float64frombits(v.bits), v.kind == KindFloat64
}

// Equal reports whether v and o hold the same variant with the same payload.
// Floats compare by bit pattern, so a NaN equals an identical NaN.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.bits == o.bits && v.ptr == o.ptr
}

// RawBits returns the canonical payload bits of a non-pointer value: signed
// integers are sign extended and floats are their IEEE 754 encoding. It is
// intended for codecs; see ValueFromBits.
func (v Value) RawBits() uint64 { return v.bits }

// ValueFromBits rebuilds a non-pointer Value from its kind and RawBits. Bits
// that are not the canonical encoding for kind are rejected.
func ValueFromBits(kind Kind, bits uint64) (Value, error) {
	var v Value
	switch kind {
	case KindInt8:
		v = Int8(int8(bits))
	case KindUint8:
		v = Uint8(uint8(bits))
	case KindInt16:
		v = Int16(int16(bits))
	case KindUint16:
		v = Uint16(uint16(bits))
	case KindInt32:
		v = Int32(int32(bits))
	case KindUint32:
		v = Uint32(uint32(bits))
	case KindInt64:
		v = Int64(int64(bits))
	case KindUint64:
		v = Uint64(bits)
	case KindBool:
		v = Bool(bits != 0)
	case KindChar:
		v = Char(byte(bits))
	case KindFloat32:
		v = Float32(math.Float32frombits(uint32(bits)))
	case KindFloat64:
		v = Float64(math.Float64frombits(bits))
	default:
		return Value{}, errors.Wrapf(ErrInvalidValue, "kind %s has no raw encoding", kind)
	}
	if v.bits != bits {
		return Value{}, errors.Wrapf(ErrInvalidValue, "bits %#x are not a canonical %s", bits, kind)
	}
	return v, nil
}

// String formats v as kind(payload), for logs and test failures.
func (v Value) String() string {
	switch v.kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%s(%d)", v.kind, int64(v.bits))
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%s(%d)", v.kind, v.bits)
	case KindPointer:
		return fmt.Sprintf("pointer(%p)", v.ptr)
	case KindBool:
		return fmt.Sprintf("bool(%t)", v.bits != 0)
	case KindChar:
		return fmt.Sprintf("char(%q)", byte(v.bits))
	case KindFloat32:
		return fmt.Sprintf("float32(%g)", math.Float32frombits(uint32(v.bits)))
	case KindFloat64:
		return fmt.Sprintf("float64(%g)", math.Float64frombits(v.bits))
	}
	return "invalid"
}

// checkValue verifies that v may be stored in a container of width W.
func checkValue[W Width](v Value) error {
	if !v.IsValid() {
		return ErrInvalidValue
	}
	if bits := widthBits[W](); v.kind.Bits() > bits {
		return errors.Wrapf(ErrValueTooWide, "%s in a %d-bit container", v.kind, bits)
	}
	return nil
}
