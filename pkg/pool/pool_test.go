package pool

import (
	"strings"
	"sync"
	"testing"
)

func TestPoolGetPut(t *testing.T) {
	type scratch struct {
		rows [][]string
	}

	resets := 0
	p := New(
		func() *scratch {
			return &scratch{rows: make([][]string, 0, 8)}
		},
		func(s *scratch) {
			s.rows = s.rows[:0]
			resets++
		},
	)

	s := p.Get()
	if s == nil {
		t.Fatal("expected non-nil object from pool")
	}
	s.rows = append(s.rows, []string{"1298509", "2012-01-01 00:03:40", "Cool"})

	p.Put(s)
	if resets != 1 {
		t.Errorf("reset count = %d, expected 1", resets)
	}

	s2 := p.Get()
	if len(s2.rows) != 0 {
		t.Errorf("reused object has %d rows, expected 0 after reset", len(s2.rows))
	}
	p.Put(s2)
}

func TestPoolPutNil(t *testing.T) {
	p := New(
		func() *int { v := 0; return &v },
		nil,
	)

	// Put(nil) must be a no-op, not a panic.
	p.Put(nil)

	v := p.Get()
	if v == nil {
		t.Fatal("expected non-nil value after Put(nil)")
	}
}

func TestPoolStats(t *testing.T) {
	p := New(
		func() *int { v := 0; return &v },
		nil,
	)

	v1 := p.Get()
	v2 := p.Get()
	p.Put(v1)
	p.Put(v2)

	gets, puts, _, _ := p.Stats()
	if gets != 2 {
		t.Errorf("gets = %d, expected 2", gets)
	}
	if puts != 2 {
		t.Errorf("puts = %d, expected 2", puts)
	}
}

func TestGetFieldSlice(t *testing.T) {
	fields := GetFieldSlice()
	if len(fields) != 0 {
		t.Errorf("GetFieldSlice() len = %d, expected 0", len(fields))
	}
	if cap(fields) == 0 {
		t.Error("GetFieldSlice() returned slice with zero capacity")
	}

	fields = append(fields, "1298509", "2012-01-01 00:03:40", "2012-01-01 00:15:20")
	PutFieldSlice(fields)

	// A second Get must come back empty even after a dirty Put.
	again := GetFieldSlice()
	if len(again) != 0 {
		t.Errorf("reused field slice len = %d, expected 0", len(again))
	}
	PutFieldSlice(again)
}

func TestGetRowBatch(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{"small", 10},
		{"sample window", 1000},
		{"zero", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := GetRowBatch(tt.capacity)
			if len(batch) != 0 {
				t.Errorf("GetRowBatch(%d) len = %d, expected 0", tt.capacity, len(batch))
			}
			if cap(batch) < tt.capacity {
				t.Errorf("GetRowBatch(%d) cap = %d, expected at least %d", tt.capacity, cap(batch), tt.capacity)
			}
			PutRowBatch(batch)
		})
	}
}

func TestGetByteSlice(t *testing.T) {
	buf := GetByteSlice()
	if len(buf) != 0 {
		t.Errorf("GetByteSlice() len = %d, expected 0", len(buf))
	}

	buf = append(buf, []byte("310 Cool 2012-01-01")...)
	PutByteSlice(buf)
}

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool()

	tests := []struct {
		name string
		size int
	}{
		{"tiny", 100},
		{"exact bucket", 4096},
		{"between buckets", 5000},
		{"large", 1 << 20},
		{"oversize", 32 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bp.Get(tt.size)
			if len(buf) < tt.size {
				t.Errorf("Get(%d) len = %d, expected at least %d", tt.size, len(buf), tt.size)
			}
			bp.Put(buf)
		})
	}
}

func TestBufferPoolReuse(t *testing.T) {
	bp := NewBufferPool()

	buf := bp.Get(1024)
	// Shrink the visible window, as a reader filling a partial buffer would.
	bp.Put(buf[:10])

	again := bp.Get(1024)
	if len(again) < 1024 {
		t.Errorf("reused buffer len = %d, expected at least 1024", len(again))
	}
	bp.Put(again)
}

func TestGenerateID(t *testing.T) {
	id1 := GenerateID("job")
	id2 := GenerateID("job")

	if !strings.HasPrefix(id1, "job-") {
		t.Errorf("GenerateID(%q) = %q, expected job- prefix", "job", id1)
	}
	if id1 == id2 {
		t.Errorf("GenerateID returned duplicate ID %q", id1)
	}
}

func TestGenerateIDConcurrent(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, goroutines*perGoroutine)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				id := GenerateID("row")
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Errorf("got %d unique IDs, expected %d", len(seen), goroutines*perGoroutine)
	}
}

func TestFieldSlicePoolConcurrent(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				fields := GetFieldSlice()
				fields = append(fields, "1298509", "2012-01-01 00:03:40", "Cool")
				PutFieldSlice(fields)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkFieldSlicePool(b *testing.B) {
	b.Run("Pooled", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			fields := GetFieldSlice()
			fields = append(fields, "1298509", "2012-01-01 00:03:40", "Cool")
			PutFieldSlice(fields)
		}
	})

	b.Run("Fresh", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			fields := make([]string, 0, 16)
			fields = append(fields, "1298509", "2012-01-01 00:03:40", "Cool")
			_ = fields
		}
	})
}

func BenchmarkBufferPool(b *testing.B) {
	bp := NewBufferPool()

	b.Run("Get4KB", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			buf := bp.Get(4096)
			bp.Put(buf)
		}
	})

	b.Run("Get1MB", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			buf := bp.Get(1 << 20)
			bp.Put(buf)
		}
	})
}

func BenchmarkGenerateID(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = GenerateID("job")
	}
}
