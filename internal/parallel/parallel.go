// Package parallel provides bounded fan-out helpers for independent per-node work.
package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool `yaml:"enabled"`        // Whether parallel execution is enabled.
	NumWorkers   int  `yaml:"num_workers"`    // Number of worker goroutines to use.
	MinChunkSize int  `yaml:"min_chunk_size"` // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 16, // Node buckets are coarse work items.
	}
}

// Sequential returns a configuration that never spawns goroutines.
func Sequential() Config {
	return Config{Enabled: false}
}

func (cfg Config) sequential(n int) bool {
	return !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize
}

func (cfg Config) chunkSize(n int) int {
	return max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if cfg.sequential(n) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := cfg.chunkSize(n)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForErr executes f(i) for i in [0, n) and returns the error of the lowest
// index that failed. Each f must only write state owned by index i, so the
// results do not depend on scheduling.
func ForErr(n int, f func(i int) error, cfg Config) error {
	if cfg.sequential(n) {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	chunkSize := cfg.chunkSize(n)
	for start := 0; start < n; start += chunkSize {
		s, e := start, min(start+chunkSize, n)
		g.Go(func() error {
			for i := s; i < e; i++ {
				if errs[i] = f(i); errs[i] != nil {
					return errs[i]
				}
			}
			return nil
		})
	}
	if g.Wait() == nil {
		return nil
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
