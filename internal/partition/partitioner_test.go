package partition

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/alexshuang/poplibs-sub002/internal/parallel"
	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// testConfig partitions a 32x48 matrix over 4x2 tiles and two Z groups.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Shape = Dims{X: 32, Y: 48, Z: 8}
	cfg.Splits = Splits{X: []int{0, 8, 16, 24}, Y: []int{0, 24}, Z: []int{0, 4}}
	cfg.MetaInfoBucketElements = 512
	cfg.MetaInfoBucketElementsGradA = 512
	cfg.NzBucketElements = 256
	return cfg
}

func randomMatrix[T sparse.Scalar](t *testing.T, seed int64, rows, cols int, density float64) *sparse.CSR[T] {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var entries []sparse.Entry[T]
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if rng.Float64() < density {
				v := float64(rng.Intn(2000)-1000) / 8
				entries = append(entries, sparse.Entry[T]{Row: r, Column: c, Value: sparse.FromFloat64[T](v)})
			}
		}
	}
	csr, err := sparse.NewCOOFromEntries(rows, cols, entries).ToCSR()
	require.NoError(t, err)
	return csr
}

// requireRoundTrip encodes the buckets and checks that decoding yields m.
func requireRoundTrip[T sparse.Scalar](t *testing.T, p *Partitioner[T], buckets []PNBucket[T], m sparse.Matrix[T]) {
	t.Helper()
	metaInfo, nz, err := p.EncodeAll(buckets)
	require.NoError(t, err)
	cfg := p.Config()
	assert.Len(t, metaInfo, cfg.metaInfoPrefixElements()+p.NumBuckets()*cfg.metaInfoElementsPerNode())
	assert.Len(t, nz, p.NumBuckets()*cfg.NzBucketElements)

	got, err := p.DecodeCSR(metaInfo, nz)
	require.NoError(t, err)
	want, err := m.ToCSR()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func gridConfig() Config {
	cfg := DefaultConfig()
	cfg.Shape = Dims{X: 4, Y: 4, Z: 4}
	cfg.Splits = Splits{X: []int{0, 2}, Y: []int{0, 2}, Z: []int{0}}
	cfg.MetaInfoBucketElements = 64
	cfg.NzBucketElements = 8
	return cfg
}

func gridMatrix() *sparse.COO[float32] {
	return sparse.NewCOOFromEntries(4, 4, []sparse.Entry[float32]{
		{Row: 3, Column: 3, Value: 2.5},
		{Row: 0, Column: 0, Value: 1.5},
	})
}

func TestPartitioner_TwoByTwoGrid(t *testing.T) {
	p, err := New[float32](gridConfig())
	require.NoError(t, err)
	require.Equal(t, 4, p.NumBuckets())

	buckets, err := p.CreateBuckets(gridMatrix())
	require.NoError(t, err)

	require.Len(t, buckets[0].SubGroups, 1)
	assert.Equal(t, sparse.TilePartition[float32]{
		Index: sparse.TileIndex{},
		Tile:  sparse.NewTile(iv(0, 2), iv(0, 2)),
		Rows:  []sparse.Row[float32]{{Number: 0, Positions: []sparse.Position[float32]{{Column: 0, Value: 1.5}}}},
	}, buckets[0].SubGroups[0])
	require.Len(t, buckets[3].SubGroups, 1)
	assert.Equal(t, sparse.TilePartition[float32]{
		Index: sparse.TileIndex{Row: 1, Column: 1},
		Tile:  sparse.NewTile(iv(2, 4), iv(2, 4)),
		Rows:  []sparse.Row[float32]{{Number: 1, Positions: []sparse.Position[float32]{{Column: 1, Value: 2.5}}}},
	}, buckets[3].SubGroups[0])
	assert.True(t, buckets[1].Empty())
	assert.True(t, buckets[2].Empty())

	metaInfo, nz, err := p.EncodeAll(buckets)
	require.NoError(t, err)
	require.Len(t, metaInfo, 3+4*64)
	require.Len(t, nz, 4*8)
	assert.Equal(t, []MetaInfoType{1, 1, 1}, metaInfo[:3])
	assert.Equal(t, float32(1.5), nz[0])
	assert.Equal(t, float32(2.5), nz[3*8])

	coo, err := p.Decode(metaInfo, nz)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, coo.RowIndices)
	assert.Equal(t, []int{0, 3}, coo.ColumnIndices)
	assert.Equal(t, []float32{1.5, 2.5}, coo.NzValues)

	csc, err := p.DecodeCSC(metaInfo, nz)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 1, 2}, csc.ColumnIndices)
	assert.Equal(t, []int{0, 3}, csc.RowIndices)
}

func TestPartitioner_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"default", func(*Config) {}},
		{"buckets per z", func(c *Config) { c.BucketsPerZ = 2 }},
		{"z grains", func(c *Config) { c.Grains.Z = 3 }},
		{"exact costs with gradient passes", func(c *Config) {
			c.UseActualWorkerSplitCosts = true
			c.DoGradAPass = true
			c.DoGradWPass = true
		}},
		{"shared buckets", func(c *Config) {
			c.DoGradAPass = true
			c.SharedBuckets = true
			c.MetaInfoBucketElementsGradA = 0
		}},
		{"least occupied first", func(c *Config) { c.OptimiseForSpeed = false }},
		{"force spills", func(c *Config) { c.ForceBucketSpills = true }},
		{"tight buckets", func(c *Config) {
			c.MetaInfoBucketElements = 96
			c.NzBucketElements = 40
		}},
		{"parallel encoding", func(c *Config) {
			c.Parallel = parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			p, err := New[float32](cfg)
			require.NoError(t, err)

			m := randomMatrix[float32](t, 42, 32, 48, 0.2)
			buckets, err := p.CreateBuckets(m)
			require.NoError(t, err)

			total := 0
			for b := range buckets {
				bucket := &buckets[b]
				assert.LessOrEqual(t, bucket.MetaInfoElements, cfg.MetaInfoBucketElements-1, "pn %d", b)
				assert.LessOrEqual(t, bucket.NumNzElements, cfg.NzBucketElements, "pn %d", b)
				assert.Equal(t, bucket.NumNonZeros(), bucket.NumNzElements, "pn %d", b)
				total += bucket.NumNzElements
			}
			assert.Equal(t, m.NumNonZeros(), total)

			requireRoundTrip(t, p, buckets, m)
		})
	}
}

func TestPartitioner_ScalarTypes(t *testing.T) {
	t.Run("half", func(t *testing.T) {
		p, err := New[float16.Float16](testConfig())
		require.NoError(t, err)
		assert.Equal(t, sparse.Half, p.DataType())
		m := randomMatrix[float16.Float16](t, 3, 32, 48, 0.3)
		buckets, err := p.CreateBuckets(m)
		require.NoError(t, err)
		requireRoundTrip(t, p, buckets, m)
	})
	t.Run("double", func(t *testing.T) {
		p, err := New[float64](testConfig())
		require.NoError(t, err)
		m := randomMatrix[float64](t, 4, 32, 48, 0.3)
		buckets, err := p.CreateBuckets(m.ToCSC())
		require.NoError(t, err)
		requireRoundTrip(t, p, buckets, m)
	})
}

func TestPartitioner_TilePartitionsComplete(t *testing.T) {
	cfg := testConfig()
	cfg.BucketsPerZ = 3
	p, err := New[float32](cfg)
	require.NoError(t, err)
	m := randomMatrix[float32](t, 11, 32, 48, 0.25)

	for _, transposed := range []bool{false, true} {
		t.Run(fmt.Sprintf("transposed=%t", transposed), func(t *testing.T) {
			tps, err := p.TilePartitions(m, transposed)
			require.NoError(t, err)
			require.Len(t, tps, p.NumBuckets())

			seen := make(map[[2]int]float32)
			for pn, tp := range tps {
				index := p.cfg.tileIndexFromPN(pn)
				if transposed {
					index = index.Transpose()
				}
				assert.Equal(t, index, tp.Index)
				for _, row := range tp.Rows {
					require.NotEmpty(t, row.Positions)
					for _, pos := range row.Positions {
						r, c := tp.Tile.Rows.Begin+row.Number, tp.Tile.Columns.Begin+pos.Column
						if transposed {
							r, c = c, r
						}
						key := [2]int{r, c}
						_, dup := seen[key]
						require.False(t, dup, "entry %v assigned twice", key)
						seen[key] = pos.Value
					}
				}
			}

			require.Len(t, seen, m.NumNonZeros())
			for r := 0; r < m.NumRows; r++ {
				for i := m.RowIndices[r]; i < m.RowIndices[r+1]; i++ {
					assert.Equal(t, m.NzValues[i], seen[[2]int{r, m.ColumnIndices[i]}])
				}
			}
		})
	}
}

func TestPartitioner_TransposedBuckets(t *testing.T) {
	cfg := testConfig()
	cfg.DoGradWPass = true
	p, err := New[float32](cfg)
	require.NoError(t, err)
	m := randomMatrix[float32](t, 5, 32, 48, 0.2)

	buckets, err := p.CreateBuckets(m)
	require.NoError(t, err)
	transposed, err := p.TransposedBuckets(buckets)
	require.NoError(t, err)

	tp := p.Transposed()
	assert.Equal(t, Dims{X: 48, Y: 32, Z: 8}, tp.Config().Shape)
	assert.Equal(t, cfg.Splits.Y, tp.Config().Splits.X)
	requireRoundTrip(t, tp, transposed, m.Transpose())

	// Nothing spilled, so no node reaches past its own tile in either
	// orientation even though there are more row groups than column groups.
	fwdInfo, err := p.OverflowInfoForFwd(buckets)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2}, fwdInfo)
	tInfo, err := tp.OverflowInfoForFwd(transposed)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2}, tInfo)
	tInfo, err = tp.OverflowInfoForGradW(transposed)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1}, tInfo)
	metaInfo, _, err := tp.EncodeAll(transposed)
	require.NoError(t, err)
	assert.Equal(t, []MetaInfoType{1, 1, 2, 1, 2, 1}, metaInfo[:6])

	parCfg := cfg
	parCfg.Parallel = parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}
	pp, err := New[float32](parCfg)
	require.NoError(t, err)
	parTransposed, err := pp.TransposedBuckets(buckets)
	require.NoError(t, err)
	assert.Equal(t, transposed, parTransposed)

	// Transposing back restores the original sub-groups up to row order.
	back, err := tp.TransposedBuckets(transposed)
	require.NoError(t, err)
	for b := range buckets {
		require.Len(t, back[b].SubGroups, len(buckets[b].SubGroups))
		for i := range buckets[b].SubGroups {
			want := buckets[b].SubGroups[i].ToCSR()
			assert.Equal(t, want, back[b].SubGroups[i].ToCSR())
		}
	}
}

func TestPartitioner_Deterministic(t *testing.T) {
	cfg := testConfig()
	cfg.MetaInfoBucketElements = 160
	cfg.NzBucketElements = 48
	cfg.DoGradAPass = true
	cfg.DoGradWPass = true
	m := randomMatrix[float32](t, 9, 32, 48, 0.2)

	run := func(cfg Config) ([]PNBucket[float32], []MetaInfoType, []float32) {
		p, err := New[float32](cfg)
		require.NoError(t, err)
		buckets, err := p.CreateBuckets(m)
		require.NoError(t, err)
		metaInfo, nz, err := p.EncodeAll(buckets)
		require.NoError(t, err)

		// Encoding does not touch the buckets.
		again, nzAgain, err := p.EncodeAll(buckets)
		require.NoError(t, err)
		assert.Equal(t, metaInfo, again)
		assert.Equal(t, nz, nzAgain)
		return buckets, metaInfo, nz
	}

	b1, mi1, nz1 := run(cfg)
	cfg.Parallel = parallel.Config{Enabled: true, NumWorkers: 8, MinChunkSize: 1}
	b2, mi2, nz2 := run(cfg)

	assert.Empty(t, cmp.Diff(b1, b2))
	assert.Equal(t, mi1, mi2)
	assert.Equal(t, nz1, nz2)
}

func TestPartitioner_SizerMatchesEncoder(t *testing.T) {
	for _, gradW := range []bool{false, true} {
		t.Run(fmt.Sprintf("gradW=%t", gradW), func(t *testing.T) {
			cfg := testConfig()
			cfg.UseActualWorkerSplitCosts = true
			cfg.DoGradWPass = gradW
			cfg.MetaInfoBucketElements = 128
			cfg.NzBucketElements = 48
			p, err := New[float32](cfg)
			require.NoError(t, err)

			buckets, err := p.CreateBuckets(randomMatrix[float32](t, 13, 32, 48, 0.2))
			require.NoError(t, err)
			for b := range buckets {
				metaInfo, _, err := p.BucketForForward(&buckets[b])
				require.NoError(t, err)
				idx := 0
				for metaInfo[idx] != endSubGroupID {
					idx += int(metaInfo[idx+2])
				}
				assert.Equal(t, buckets[b].MetaInfoElements, idx, "pn %d", b)
			}
		})
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines map[Level]int
	last  string
}

func (l *recordingLogger) Enabled(Level) bool { return true }

func (l *recordingLogger) Logf(level Level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lines == nil {
		l.lines = make(map[Level]int)
	}
	l.lines[level]++
	l.last = fmt.Sprintf(format, args...)
}

func TestPartitioner_LoggingDoesNotChangeResults(t *testing.T) {
	m := randomMatrix[float32](t, 21, 32, 48, 0.2)
	cfg := testConfig()
	cfg.MetaInfoBucketElements = 96
	cfg.NzBucketElements = 40

	quiet, err := New[float32](cfg)
	require.NoError(t, err)
	want, err := quiet.CreateBuckets(m)
	require.NoError(t, err)

	log := &recordingLogger{}
	cfg.Logger = log
	loud, err := New[float32](cfg)
	require.NoError(t, err)
	got, err := loud.CreateBuckets(m)
	require.NoError(t, err)
	_, _, err = loud.EncodeAll(got)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(want, got))
	assert.Positive(t, log.lines[LevelTrace])
	assert.Positive(t, log.lines[LevelInfo])
	assert.Contains(t, log.last, "encoded 16 buckets")
}

func TestPartitioner_InvalidInput(t *testing.T) {
	p, err := New[float32](gridConfig())
	require.NoError(t, err)

	_, err = p.CreateBuckets(sparse.NewCOOFromEntries[float32](3, 4, nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	dup := sparse.NewCOO[float32](4, 4, []float32{1, 2}, []int{1, 1}, []int{2, 2})
	_, err = p.CreateBuckets(dup)
	assert.ErrorIs(t, err, sparse.ErrInvalidMatrix)

	_, _, err = p.EncodeAll(make([]PNBucket[float32], 3))
	assert.ErrorIs(t, err, ErrBucketMismatch)
}

func TestPartitioner_EncodingBounds(t *testing.T) {
	p, err := New[float32](gridConfig())
	require.NoError(t, err)
	buckets, err := p.CreateBuckets(gridMatrix())
	require.NoError(t, err)

	// A bucket assembled by hand can exceed what the balancer allows.
	full := PNBucket[float32]{SubGroups: []sparse.TilePartition[float32]{
		buckets[0].SubGroups[0], buckets[0].SubGroups[0], buckets[0].SubGroups[0],
	}}
	_, _, err = p.BucketForForward(&full)
	assert.ErrorIs(t, err, ErrEncoding)
}
