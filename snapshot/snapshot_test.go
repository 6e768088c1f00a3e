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

package snapshot

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/ghotiio/cutil"
	"github.com/stretchr/testify/require"
)

func toBuiltinMap[W cutil.Width](t *cutil.Table[W]) map[W]cutil.Value {
	r := make(map[W]cutil.Value)
	for h, v := range t.All {
		r[h] = v
	}
	return r
}

func TestTable(t *testing.T) {
	m, err := cutil.NewHash32(0)
	require.NoError(t, err)
	values := []cutil.Value{
		cutil.Int8(-1), cutil.Uint16(65535), cutil.Int32(-1 << 31),
		cutil.Float32(3.5), cutil.Bool(true), cutil.Char('x'),
	}
	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Set(uint32(i)*2654435761, values[i%len(values)]))
	}

	for _, c := range []Compression{None, LZ4, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteTable(&buf, m, c))
			require.Equal(t, []byte("GCUS"), buf.Bytes()[:4])
			require.EqualValues(t, c, buf.Bytes()[7])

			got, err := ReadTable[uint32](&buf)
			require.NoError(t, err)
			require.Equal(t, toBuiltinMap(m), toBuiltinMap(got))
		})
	}

	// Compression pays off on a repetitive body.
	var plain, compressed bytes.Buffer
	require.NoError(t, WriteTable(&plain, m, None))
	require.NoError(t, WriteTable(&compressed, m, Zstd))
	require.Less(t, compressed.Len(), plain.Len())
}

func TestEmpty(t *testing.T) {
	m, err := cutil.NewHash8(0)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, m, LZ4))
	got, err := ReadTable[uint8](&buf)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.Len())

	v, err := cutil.NewVector64(0)
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, WriteVector(&buf, v, None))
	require.Equal(t, headerLen+1, buf.Len())
	gotv, err := ReadVector[uint64](&buf)
	require.NoError(t, err)
	require.EqualValues(t, 0, gotv.Len())
}

func TestVector(t *testing.T) {
	v, err := cutil.NewVector64(0)
	require.NoError(t, err)
	for i := 0; i < 5000; i++ {
		require.NoError(t, v.Push(cutil.Int64(int64(i)-2500)))
	}
	require.NoError(t, v.Push(cutil.Float64(1e300)))

	for _, c := range []Compression{None, LZ4, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteVector(&buf, v, c))
			got, err := ReadVector[uint64](&buf)
			require.NoError(t, err)
			require.Equal(t, v.Len(), got.Len())
			for i, x := range v.All {
				y, err := got.Get(i)
				require.NoError(t, err)
				require.True(t, x.Equal(y), "%d: %s != %s", i, x, y)
			}
		})
	}
}

func TestReadOptions(t *testing.T) {
	v, err := cutil.NewVector16(0)
	require.NoError(t, err)
	require.NoError(t, v.Push(cutil.Uint8(1)))
	var buf bytes.Buffer
	require.NoError(t, WriteVector(&buf, v, None))

	var cleanups int
	got, err := ReadVector(&buf, cutil.WithVectorCleanup(func(*cutil.Vector[uint16]) { cleanups++ }))
	require.NoError(t, err)
	got.Close()
	require.Equal(t, 1, cleanups)
}

func TestPointerValue(t *testing.T) {
	x := 1
	m, err := cutil.NewHash64(0)
	require.NoError(t, err)
	require.NoError(t, m.Set(1, cutil.Pointer(unsafe.Pointer(&x))))
	var buf bytes.Buffer
	require.True(t, errors.Is(WriteTable(&buf, m, None), ErrPointerValue))
	require.Equal(t, 0, buf.Len())

	v, err := cutil.NewVector64(0)
	require.NoError(t, err)
	require.NoError(t, v.Push(cutil.Pointer(unsafe.Pointer(&x))))
	require.True(t, errors.Is(WriteVector(&buf, v, Zstd), ErrPointerValue))
}

func TestUnknownCompression(t *testing.T) {
	m, err := cutil.NewHash64(0)
	require.NoError(t, err)
	require.Error(t, WriteTable(&bytes.Buffer{}, m, Compression(9)))
}

// rawSnapshot builds an uncompressed snapshot by hand.
func rawSnapshot(kind containerKind, width int, body ...uint64) []byte {
	b := []byte{'G', 'C', 'U', 'S', version, byte(kind), byte(width), byte(None)}
	for _, x := range body {
		b = binary.AppendUvarint(b, x)
	}
	return b
}

func TestMalformed(t *testing.T) {
	good := rawSnapshot(kindTable, 16, 1, 7, uint64(cutil.KindUint8), 3)
	m, err := ReadTable[uint16](bytes.NewReader(good))
	require.NoError(t, err)
	v, ok := m.Get(7)
	require.True(t, ok)
	require.Equal(t, cutil.Uint8(3), v)

	testCases := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrFormat},
		{"short-header", good[:5], ErrFormat},
		{"magic", append([]byte("XCUS"), good[4:]...), ErrFormat},
		{"version", append(append([]byte{}, good[:4]...), append([]byte{9}, good[5:]...)...), ErrFormat},
		{"kind", rawSnapshot(kindVector, 16, 0), ErrFormat},
		{"width", rawSnapshot(kindTable, 32, 0), ErrWidthMismatch},
		{"compression", append(append([]byte{}, good[:7]...), 7), ErrFormat},
		{"truncated", good[:len(good)-1], ErrFormat},
		{"hash-too-wide", rawSnapshot(kindTable, 16, 1, 1<<16, uint64(cutil.KindUint8), 3), ErrFormat},
		{"duplicate", rawSnapshot(kindTable, 16, 2,
			7, uint64(cutil.KindUint8), 3,
			7, uint64(cutil.KindUint8), 4), ErrFormat},
		{"pointer", rawSnapshot(kindTable, 16, 1, 7, uint64(cutil.KindPointer), 0), ErrFormat},
		{"non-canonical", rawSnapshot(kindTable, 16, 1, 7, uint64(cutil.KindUint8), 256), ErrFormat},
		{"too-wide-value", rawSnapshot(kindTable, 16, 1, 7, uint64(cutil.KindInt32), 1), cutil.ErrValueTooWide},
	}
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ReadTable[uint16](bytes.NewReader(c.data))
			require.True(t, errors.Is(err, c.err), "%+v", err)
		})
	}

	// A corrupt count does not allocate up front beyond the reserve limit.
	_, err = ReadVector[uint64](bytes.NewReader(rawSnapshot(kindVector, 64, 1<<62)))
	require.True(t, errors.Is(err, ErrFormat), err)
}
