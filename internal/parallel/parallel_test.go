package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestFor_SmallChunk(t *testing.T) {
	// Test that small work units fall back to sequential.
	cfg := DefaultConfig()

	var counter int64
	n := cfg.MinChunkSize - 1

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestForErr(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 2}

	out := make([]int, 100)
	err := ForErr(len(out), func(i int) error {
		out[i] = i * i
		return nil
	}, cfg)
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*i, v)
	}
}

func TestForErr_LowestIndexWins(t *testing.T) {
	errLow := errors.New("low")
	errHigh := errors.New("high")

	for _, cfg := range []Config{Sequential(), {Enabled: true, NumWorkers: 8, MinChunkSize: 1}} {
		err := ForErr(64, func(i int) error {
			switch i {
			case 10:
				return errLow
			case 50:
				return errHigh
			}
			return nil
		}, cfg)
		assert.ErrorIs(t, err, errLow)
	}
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
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			}, cfgSeq)
		}
	})
}
