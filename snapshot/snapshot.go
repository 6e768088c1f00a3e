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

// Package snapshot encodes cutil tables and vectors to a compact binary form
// and decodes them back.
//
// A snapshot starts with an eight byte header that is never compressed:
//
//	"GCUS" | version | container kind | width in bits | compression
//
// The body follows, optionally compressed with LZ4 or zstd. It holds the
// number of entries as a uvarint followed by the entries themselves. A table
// entry is the uvarint hash followed by a value; a vector entry is a value. A
// value is its kind byte followed by its raw bits as a uvarint.
//
// Pointer values have no meaning outside the process that stored them and
// cannot be encoded.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/ghotiio/cutil"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	magic   = "GCUS"
	version = 1

	headerLen = 8

	// Decoding reserves room for at most this many entries up front. Larger
	// snapshots grow as entries arrive, so a corrupt count cannot force a huge
	// allocation.
	maxReserve = 1 << 16
)

type containerKind uint8

const (
	kindTable containerKind = iota + 1
	kindVector
)

func (k containerKind) String() string {
	switch k {
	case kindTable:
		return "table"
	case kindVector:
		return "vector"
	}
	return "unknown"
}

// Compression selects how the body of a snapshot is compressed.
type Compression uint8

const (
	// None stores the body as is.
	None Compression = iota
	// LZ4 compresses the body with an LZ4 frame.
	LZ4
	// Zstd compresses the body with a zstd frame.
	Zstd
)

// String returns the lower-case name of c.
func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	}
	return "unknown"
}

var (
	// ErrPointerValue is returned when encoding a container holding a pointer
	// value.
	ErrPointerValue = errors.New("snapshot: pointer values cannot be encoded")
	// ErrFormat is returned when the input is not a well-formed snapshot of
	// the requested container.
	ErrFormat = errors.New("snapshot: malformed snapshot")
	// ErrWidthMismatch is returned when decoding a snapshot into a container
	// of a different width.
	ErrWidthMismatch = errors.New("snapshot: width mismatch")
)

func widthBits[W cutil.Width]() int {
	var w W
	return int(unsafe.Sizeof(w)) * 8
}

// WriteTable encodes t to w.
func WriteTable[W cutil.Width](w io.Writer, t *cutil.Table[W], c Compression) error {
	for h, v := range t.All {
		if v.Kind() == cutil.KindPointer {
			return errors.Wrapf(ErrPointerValue, "hash %d", h)
		}
	}
	e, err := newEncoder(w, kindTable, widthBits[W](), c)
	if err != nil {
		return err
	}
	e.uvarint(uint64(t.Len()))
	for h, v := range t.All {
		e.uvarint(uint64(h))
		e.value(v)
	}
	return e.close()
}

// WriteVector encodes v to w.
func WriteVector[W cutil.Width](w io.Writer, v *cutil.Vector[W], c Compression) error {
	for i, x := range v.All {
		if x.Kind() == cutil.KindPointer {
			return errors.Wrapf(ErrPointerValue, "index %d", i)
		}
	}
	e, err := newEncoder(w, kindVector, widthBits[W](), c)
	if err != nil {
		return err
	}
	e.uvarint(uint64(v.Len()))
	for _, x := range v.All {
		e.value(x)
	}
	return e.close()
}

// ReadTable decodes a table snapshot from r into a new table constructed
// with opts.
func ReadTable[W cutil.Width](r io.Reader, opts ...cutil.Option[W]) (*cutil.Table[W], error) {
	d, err := newDecoder(r, kindTable, widthBits[W]())
	if err != nil {
		return nil, err
	}
	defer d.close()

	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	t, err := cutil.NewTable[W](0, opts...)
	if err != nil {
		return nil, err
	}
	if err := t.Reserve(int(min(count, maxReserve))); err != nil {
		t.Close()
		return nil, err
	}
	maxHash := uint64(^W(0))
	for i := uint64(0); i < count; i++ {
		h, err := d.uvarint()
		if err == nil && h > maxHash {
			err = errors.Wrapf(ErrFormat, "hash %#x exceeds %d bits", h, widthBits[W]())
		}
		var v cutil.Value
		if err == nil {
			v, err = d.value()
		}
		if err == nil {
			err = t.Set(W(h), v)
		}
		if err != nil {
			t.Close()
			return nil, errors.Wrapf(err, "entry %d of %d", i, count)
		}
	}
	if uint64(t.Len()) != count {
		n := t.Len()
		t.Close()
		return nil, errors.Wrapf(ErrFormat, "%d entries hold %d distinct hashes", count, n)
	}
	return t, nil
}

// ReadVector decodes a vector snapshot from r into a new vector constructed
// with opts.
func ReadVector[W cutil.Width](r io.Reader, opts ...cutil.Option[W]) (*cutil.Vector[W], error) {
	d, err := newDecoder(r, kindVector, widthBits[W]())
	if err != nil {
		return nil, err
	}
	defer d.close()

	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	v, err := cutil.NewVector[W](0, opts...)
	if err != nil {
		return nil, err
	}
	if err := v.Reserve(int(min(count, maxReserve))); err != nil {
		v.Close()
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		x, err := d.value()
		if err == nil {
			err = v.Push(x)
		}
		if err != nil {
			v.Close()
			return nil, errors.Wrapf(err, "entry %d of %d", i, count)
		}
	}
	return v, nil
}

// encoder buffers the body of a snapshot. The first write error is retained
// and reported by close.
type encoder struct {
	bw         *bufio.Writer
	compressor io.WriteCloser
	scratch    [binary.MaxVarintLen64]byte
	err        error
}

func newEncoder(w io.Writer, kind containerKind, width int, c Compression) (*encoder, error) {
	header := [headerLen]byte{magic[0], magic[1], magic[2], magic[3], version, byte(kind), byte(width), byte(c)}

	e := &encoder{}
	switch c {
	case None:
	case LZ4:
		e.compressor = lz4.NewWriter(w)
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd encoder")
		}
		e.compressor = enc
	default:
		return nil, errors.Newf("snapshot: unknown compression %d", c)
	}

	if _, err := w.Write(header[:]); err != nil {
		if e.compressor != nil {
			_ = e.compressor.Close()
		}
		return nil, errors.Wrap(err, "writing snapshot header")
	}
	if e.compressor != nil {
		e.bw = bufio.NewWriter(e.compressor)
	} else {
		e.bw = bufio.NewWriter(w)
	}
	return e, nil
}

func (e *encoder) uvarint(x uint64) {
	if e.err != nil {
		return
	}
	n := binary.PutUvarint(e.scratch[:], x)
	_, e.err = e.bw.Write(e.scratch[:n])
}

func (e *encoder) value(v cutil.Value) {
	if e.err != nil {
		return
	}
	if e.err = e.bw.WriteByte(byte(v.Kind())); e.err != nil {
		return
	}
	e.uvarint(v.RawBits())
}

func (e *encoder) close() error {
	if e.err == nil {
		e.err = e.bw.Flush()
	}
	if e.compressor != nil {
		if err := e.compressor.Close(); e.err == nil {
			e.err = err
		}
	}
	return errors.Wrap(e.err, "writing snapshot")
}

type decoder struct {
	br      *bufio.Reader
	release func()
}

func newDecoder(r io.Reader, kind containerKind, width int) (*decoder, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "reading snapshot header"), ErrFormat)
	}
	if string(header[:4]) != magic {
		return nil, errors.Wrapf(ErrFormat, "bad magic %q", header[:4])
	}
	if header[4] != version {
		return nil, errors.Wrapf(ErrFormat, "unsupported version %d", header[4])
	}
	if k := containerKind(header[5]); k != kind {
		return nil, errors.Wrapf(ErrFormat, "snapshot holds a %s, not a %s", k, kind)
	}
	if int(header[6]) != width {
		return nil, errors.Wrapf(ErrWidthMismatch, "snapshot is %d bits wide, container is %d", header[6], width)
	}

	d := &decoder{release: func() {}}
	switch c := Compression(header[7]); c {
	case None:
		d.br = bufio.NewReader(r)
	case LZ4:
		d.br = bufio.NewReader(lz4.NewReader(r))
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "creating zstd decoder")
		}
		d.br = bufio.NewReader(dec)
		d.release = dec.Close
	default:
		return nil, errors.Wrapf(ErrFormat, "unknown compression %d", c)
	}
	return d, nil
}

func (d *decoder) uvarint() (uint64, error) {
	x, err := binary.ReadUvarint(d.br)
	if err != nil {
		return 0, errors.Mark(errors.Wrap(err, "reading snapshot"), ErrFormat)
	}
	return x, nil
}

func (d *decoder) value() (cutil.Value, error) {
	k, err := d.br.ReadByte()
	if err != nil {
		return cutil.Value{}, errors.Mark(errors.Wrap(err, "reading snapshot"), ErrFormat)
	}
	bits, err := d.uvarint()
	if err != nil {
		return cutil.Value{}, err
	}
	v, err := cutil.ValueFromBits(cutil.Kind(k), bits)
	if err != nil {
		return cutil.Value{}, errors.Mark(err, ErrFormat)
	}
	return v, nil
}

func (d *decoder) close() {
	d.release()
}
