package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor_VisitsEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	n := 37
	hits := make([]int32, n)
	For(n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		assert.Equal(t, int32(1), h, "index %d", i)
	}
}

func TestFor_Sequential(t *testing.T) {
	var order []int
	For(5, func(i int) {
		order = append(order, i)
	}, Config{Enabled: false})

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_SmallInputStaysSequential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	var order []int
	For(cfg.MinChunkSize-1, func(i int) {
		order = append(order, i)
	}, cfg)

	assert.Len(t, order, cfg.MinChunkSize-1)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1}

	rows, cols := 4, 8
	var seen [4][8]int32
	ForBatch(rows, cols, func(r, c int) {
		atomic.AddInt32(&seen[r][c], 1)
	}, cfg)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			assert.Equal(t, int32(1), seen[r][c], "cell [%d][%d]", r, c)
		}
	}
}

func TestConfig_String(t *testing.T) {
	assert.Equal(t, "sequential", Config{}.String())
	assert.Equal(t, "4 workers, chunks of at least 1", Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}.String())
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		seq := cfg
		seq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, seq)
		}
	})
}
