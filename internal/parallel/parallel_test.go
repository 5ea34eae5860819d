package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), WithWorkers(1), WithWorkers(3)} {
		n := 1000
		seen := make([]int32, n)
		For(n, func(i int) {
			atomic.AddInt32(&seen[i], 1)
		}, cfg)
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("%+v: index %d visited %d times", cfg, i, c)
			}
		}
	}
}

func TestForRows(t *testing.T) {
	rows, cols := 4, 8
	results := make([][]bool, rows)
	for r := range results {
		results[r] = make([]bool, cols)
	}

	ForRows(rows, cols, func(r, i int) {
		results[r][i] = true
	}, DefaultConfig())

	for r := range rows {
		for i := range cols {
			if !results[r][i] {
				t.Errorf("missing result at [%d][%d]", r, i)
			}
		}
	}

	ForRows(3, 0, func(int, int) { t.Error("called with no columns") }, DefaultConfig())
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		n    int
		want int
	}{
		{"empty", WithWorkers(4), 0, 0},
		{"disabled", WithWorkers(1), 1000, 1},
		{"below min chunk", WithWorkers(4), 63, 1},
		{"four workers", WithWorkers(4), 1000, 4},
		{"min chunk caps count", WithWorkers(16), 200, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := tt.cfg.Split(tt.n)
			if len(chunks) != tt.want {
				t.Fatalf("Split(%d) gave %d chunks, want %d", tt.n, len(chunks), tt.want)
			}
			next := 0
			for _, c := range chunks {
				if c.Lo != next || c.Hi <= c.Lo {
					t.Fatalf("chunks %v are not contiguous", chunks)
				}
				next = c.Hi
			}
			if next != tt.n {
				t.Errorf("chunks end at %d, want %d", next, tt.n)
			}
		})
	}
}

func TestWithWorkers(t *testing.T) {
	tests := []struct {
		n       int
		workers int
		enabled bool
	}{
		{0, 1, false},
		{1, 1, false},
		{4, 4, true},
	}
	for _, tt := range tests {
		cfg := WithWorkers(tt.n)
		if cfg.NumWorkers != tt.workers || cfg.Enabled != tt.enabled {
			t.Errorf("WithWorkers(%d) = %+v, want workers=%d enabled=%v", tt.n, cfg, tt.workers, tt.enabled)
		}
	}
}

func BenchmarkFor(b *testing.B) {
	n := 10000
	for _, bc := range []struct {
		name string
		cfg  Config
	}{{"parallel", DefaultConfig()}, {"sequential", WithWorkers(1)}} {
		b.Run(bc.name, func(b *testing.B) {
			for b.Loop() {
				var sum int64
				For(n, func(i int) {
					atomic.AddInt64(&sum, int64(i))
				}, bc.cfg)
			}
		})
	}
}
