package cutil

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkTableIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkRuntimeMapIter[uint64]))
	})
	b.Run("impl=table", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkTableIter[uint64]))
	})
}

func BenchmarkTableGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkRuntimeMapGetHit[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkRuntimeMapGetHit[uint32]))
	})
	b.Run("impl=table", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkTableGetHit[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkTableGetHit[uint32]))
	})
}

func BenchmarkTableGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkRuntimeMapGetMiss[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkRuntimeMapGetMiss[uint32]))
	})
	b.Run("impl=table", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkTableGetMiss[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkTableGetMiss[uint32]))
	})
}

func BenchmarkTableSetGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkRuntimeMapSetGrow[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkRuntimeMapSetGrow[uint32]))
	})
	b.Run("impl=table", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkTableSetGrow[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkTableSetGrow[uint32]))
	})
}

func BenchmarkTableSetPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkRuntimeMapSetPreAllocate[uint64]))
	})
	b.Run("impl=table", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkTableSetPreAllocate[uint64]))
	})
}

func BenchmarkTableSetRemove(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkRuntimeMapSetRemove[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkRuntimeMapSetRemove[uint32]))
	})
	b.Run("impl=table", func(b *testing.B) {
		b.Run("t=Hash64", benchSizes(benchmarkTableSetRemove[uint64]))
		b.Run("t=Hash32", benchSizes(benchmarkTableSetRemove[uint32]))
	})
}

func BenchmarkVectorPush(b *testing.B) {
	b.Run("impl=slice", benchSizes(benchmarkSliceAppend[uint64]))
	b.Run("impl=vector", benchSizes(benchmarkVectorPush[uint64]))
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

// genHashes returns hashes for the integers in [start, end), spread over the
// width with a multiplicative mix so that they are not laid out in probe
// order.
func genHashes[W Width](start, end int) []W {
	hashes := make([]W, end-start)
	for i := range hashes {
		hashes[i] = W(uint64(start+i) * 0x9e3779b97f4a7c15)
	}
	return hashes
}

func benchmarkRuntimeMapIter[W Width](b *testing.B, n int) {
	m := make(map[W]Value, n)
	for _, h := range genHashes[W](0, n) {
		m[h] = Uint8(1)
	}
	b.ResetTimer()
	var tmp W
	for i := 0; i < b.N; i++ {
		for h := range m {
			tmp += h
		}
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkTableIter[W Width](b *testing.B, n int) {
	m, _ := NewTable[W](n)
	for _, h := range genHashes[W](0, n) {
		_ = m.Set(h, Uint8(1))
	}
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	var tmp W
	for i := 0; i < b.N; i++ {
		m.All(func(h W, _ Value) bool {
			tmp += h
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkRuntimeMapGetMiss[W Width](b *testing.B, n int) {
	m := make(map[W]Value)
	miss := genHashes[W](-n, 0)
	for _, h := range genHashes[W](0, n) {
		m[h] = Uint8(1)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[miss[i%len(miss)]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTableGetMiss[W Width](b *testing.B, n int) {
	m, _ := NewTable[W](0)
	miss := genHashes[W](-n, 0)
	for _, h := range genHashes[W](0, n) {
		_ = m.Set(h, Uint8(1))
	}
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[W Width](b *testing.B, n int) {
	m := make(map[W]Value, n)
	hashes := genHashes[W](0, n)
	for _, h := range hashes {
		m[h] = Uint8(1)
	}
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[hashes[i%n]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTableGetHit[W Width](b *testing.B, n int) {
	m, _ := NewTable[W](n)
	hashes := genHashes[W](0, n)
	for _, h := range hashes {
		_ = m.Set(h, Uint8(1))
	}
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(hashes[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapSetGrow[W Width](b *testing.B, n int) {
	hashes := genHashes[W](0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[W]Value)
		for _, h := range hashes {
			m[h] = Uint8(1)
		}
	}
}

func benchmarkTableSetGrow[W Width](b *testing.B, n int) {
	hashes := genHashes[W](0, n)
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m, _ := NewTable[W](0)
		for _, h := range hashes {
			_ = m.Set(h, Uint8(1))
		}
		m.Close()
	}
}

func benchmarkRuntimeMapSetPreAllocate[W Width](b *testing.B, n int) {
	hashes := genHashes[W](0, n)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[W]Value, n)
		for _, h := range hashes {
			m[h] = Uint8(1)
		}
	}
}

func benchmarkTableSetPreAllocate[W Width](b *testing.B, n int) {
	hashes := genHashes[W](0, n)
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m, _ := NewTable[W](0)
		_ = m.Reserve(n)
		for _, h := range hashes {
			_ = m.Set(h, Uint8(1))
		}
		m.Close()
	}
}

func benchmarkRuntimeMapSetRemove[W Width](b *testing.B, n int) {
	m := make(map[W]Value, n)
	hashes := genHashes[W](0, n)
	for _, h := range hashes {
		m[h] = Uint8(1)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, hashes[j])
		m[hashes[j]] = Uint8(1)
	}
}

func benchmarkTableSetRemove[W Width](b *testing.B, n int) {
	m, _ := NewTable[W](n)
	hashes := genHashes[W](0, n)
	for _, h := range hashes {
		_ = m.Set(h, Uint8(1))
	}
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Remove(hashes[j])
		_ = m.Set(hashes[j], Uint8(1))
	}
}

func benchmarkSliceAppend[W Width](b *testing.B, n int) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var s []Value
		for j := 0; j < n; j++ {
			s = append(s, Uint8(1))
		}
		fmt.Fprint(io.Discard, len(s))
	}
}

func benchmarkVectorPush[W Width](b *testing.B, n int) {
	defer perfbench.Open(b).Stop()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v, _ := NewVector[W](0)
		for j := 0; j < n; j++ {
			_ = v.Push(Uint8(1))
		}
		v.Close()
	}
}
