// Package parallel splits index ranges across goroutines.
package parallel

import (
	"fmt"
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Upper bound on goroutines per call.
	MinChunkSize int  // Minimum indices per goroutine.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// String describes the configuration for logs.
func (c Config) String() string {
	if !c.Enabled {
		return "sequential"
	}
	return fmt.Sprintf("%d workers, chunks of at least %d", c.NumWorkers, c.MinChunkSize)
}

// chunk returns the number of indices each goroutine handles for n items,
// or 0 when the work should stay on the calling goroutine.
func (c Config) chunk(n int) int {
	if !c.Enabled || c.NumWorkers < 2 || n < 2 || n < c.MinChunkSize {
		return 0
	}
	return max((n+c.NumWorkers-1)/c.NumWorkers, c.MinChunkSize, 1)
}

// For executes f(i) for i in [0, n) and returns once every call finished.
// Each index is visited exactly once; calls for different indices may run
// concurrently, so f must only write state owned by its index.
func For(n int, f func(i int), cfg Config) {
	size := cfg.chunk(n)
	if size == 0 || size >= n {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				f(i)
			}
		}()
	}
	wg.Wait()
}

// ForBatch executes f(r, c) over a rows×cols grid, flattened row-major.
// The CTC gradient step uses it for its (example, timestep) grid.
func ForBatch(rows, cols int, f func(r, c int), cfg Config) {
	if cols == 0 {
		return
	}
	For(rows*cols, func(k int) {
		f(k/cols, k%cols)
	}, cfg)
}
