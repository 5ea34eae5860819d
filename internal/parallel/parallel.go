// Package parallel splits element loops of the cpu kernels across goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls how loops are split.
type Config struct {
	Enabled      bool // Run chunks concurrently.
	NumWorkers   int  // Upper bound on concurrent chunks.
	MinChunkSize int  // Loops shorter than this run inline.
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return WithWorkers(runtime.NumCPU())
}

// WithWorkers returns a config with n workers. n <= 1 runs every loop inline.
func WithWorkers(n int) Config {
	return Config{
		Enabled:      n > 1,
		NumWorkers:   max(n, 1),
		MinChunkSize: 64,
	}
}

// Chunk is the half-open index range [Lo, Hi).
type Chunk struct {
	Lo, Hi int
}

// Split divides [0, n) into at most NumWorkers contiguous chunks of at least
// MinChunkSize elements. It returns a single chunk when cfg is disabled.
func (cfg Config) Split(n int) []Chunk {
	if n <= 0 {
		return nil
	}
	if !cfg.Enabled || n < cfg.MinChunkSize {
		return []Chunk{{0, n}}
	}
	size := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	chunks := make([]Chunk, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		chunks = append(chunks, Chunk{lo, min(lo+size, n)})
	}
	return chunks
}

// For calls f(i) for every i in [0, n). Chunks run concurrently when cfg
// allows it; f must only write to locations owned by i.
func For(n int, f func(i int), cfg Config) {
	chunks := cfg.Split(n)
	if len(chunks) <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for _, c := range chunks {
		g.Go(func() error {
			for i := c.Lo; i < c.Hi; i++ {
				f(i)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ForRows calls f(r, i) for every row r < rows and i < cols. It is used for
// loops over a batch of matrix rows.
func ForRows(rows, cols int, f func(r, i int), cfg Config) {
	if cols == 0 {
		return
	}
	For(rows*cols, func(k int) {
		f(k/cols, k%cols)
	}, cfg)
}
