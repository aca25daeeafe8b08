package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// singleTileConfig places a 4x4 matrix on one node with one worker.
func singleTileConfig() Config {
	cfg := DefaultConfig()
	cfg.Shape = Dims{X: 4, Y: 4, Z: 1}
	cfg.Splits = Splits{X: []int{0}, Y: []int{0}, Z: []int{0}}
	cfg.NumWorkerContexts = 1
	cfg.MetaInfoBucketElements = 32
	cfg.MetaInfoBucketElementsGradA = 32
	cfg.NzBucketElements = 4
	return cfg
}

//	[0 a 0 0]
//	[b c 0 0]
func singleTileMatrix() *sparse.COO[float32] {
	return sparse.NewCOOFromEntries(4, 4, []sparse.Entry[float32]{
		{Row: 0, Column: 1, Value: 10},
		{Row: 1, Column: 0, Value: 20},
		{Row: 1, Column: 1, Value: 30},
	})
}

func singleTileBucket(t *testing.T, cfg Config) (*Partitioner[float32], *PNBucket[float32]) {
	t.Helper()
	p, err := New[float32](cfg)
	require.NoError(t, err)
	buckets, err := p.CreateBuckets(singleTileMatrix())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	return p, &buckets[0]
}

func TestBucketForForward_Layout(t *testing.T) {
	p, bucket := singleTileBucket(t, singleTileConfig())

	metaInfo, nz, err := p.BucketForForward(bucket)
	require.NoError(t, err)
	require.Len(t, metaInfo, 32)
	assert.Equal(t, []MetaInfoType{
		1, 3, 19, 1, 1, 12, 1, // sub-group
		0, 1, 0, 1, 5, // worker
		0, 1, 4, // row 0: offset in Q, one column
		4, 2, 0, 4, // row 1: two columns
		0, // end
	}, metaInfo[:20])
	assert.Equal(t, make([]MetaInfoType, 12), metaInfo[20:])
	assert.Equal(t, []float32{10, 20, 30, 0}, nz)
}

func TestBucketForForward_GradWLayout(t *testing.T) {
	cfg := singleTileConfig()
	cfg.DoGradWPass = true
	p, bucket := singleTileBucket(t, cfg)

	metaInfo, _, err := p.BucketForForward(bucket)
	require.NoError(t, err)
	assert.Equal(t, []MetaInfoType{
		1, 3, 24, 1, 1, 17, 1,
		0, 1, 0, 1, 10,
		1, 0, 4, 0, 3, // GradW workers
		0, 1, 4,
		4, 2, 0, 4,
		0,
	}, metaInfo[:25])
}

func TestBucketForGradA_Layout(t *testing.T) {
	cfg := singleTileConfig()
	cfg.DoGradAPass = true
	p, bucket := singleTileBucket(t, cfg)

	metaInfo, err := p.BucketForGradA(bucket)
	require.NoError(t, err)
	require.Len(t, metaInfo, 32)
	// Rows are the columns of the matrix; each non-zero is preceded by its
	// position in the forward values.
	assert.Equal(t, []MetaInfoType{
		1, 3, 22, 1, 1, 12, 1,
		0, 1, 0, 1, 5,
		0, 1, 4, 4, // column 0 holds value 1 at row 1
		4, 2, 0, 0, 8, 4, // column 1 holds values 0 and 2
		0,
	}, metaInfo[:23])

	all, err := p.BucketsForGradA([]PNBucket[float32]{*bucket})
	require.NoError(t, err)
	assert.Equal(t, [][]MetaInfoType{metaInfo}, all)
}

func TestEncodeAll_SeparateGradABuckets(t *testing.T) {
	cfg := singleTileConfig()
	cfg.DoGradAPass = true
	cfg.DoGradWPass = true
	p, bucket := singleTileBucket(t, cfg)
	buckets := []PNBucket[float32]{*bucket}

	metaInfo, nz, err := p.EncodeAll(buckets)
	require.NoError(t, err)
	require.Len(t, metaInfo, 9+32+32)
	assert.Equal(t, []MetaInfoType{1, 1, 1, 1, 1, 1, 1, 1, 1}, metaInfo[:9])

	fwd, _, err := p.BucketForForward(bucket)
	require.NoError(t, err)
	gradA, err := p.BucketForGradA(bucket)
	require.NoError(t, err)
	assert.Equal(t, fwd, metaInfo[9:41])
	assert.Equal(t, gradA, metaInfo[41:])
	assert.Equal(t, []float32{10, 20, 30, 0}, nz)

	coo, err := p.Decode(metaInfo, nz)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1}, coo.RowIndices)
	assert.Equal(t, []int{1, 0, 1}, coo.ColumnIndices)
}

func TestDecode_CorruptMetaInfo(t *testing.T) {
	p, err := New[float32](gridConfig())
	require.NoError(t, err)
	buckets, err := p.CreateBuckets(gridMatrix())
	require.NoError(t, err)
	metaInfo, nz, err := p.EncodeAll(buckets)
	require.NoError(t, err)

	// Node 0 starts after the forward overflow triplet.
	const node0 = 3
	tests := []struct {
		name    string
		corrupt func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32)
	}{
		{"zero offset to next", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+2] = 0
			return mi, nz
		}},
		{"offset past bucket", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+2] = 64
			return mi, nz
		}},
		{"sub-group id out of range", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0] = 9
			return mi, nz
		}},
		{"too many rows", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+4] = 10
			return mi, nz
		}},
		{"zero z scale", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+3] = 0
			return mi, nz
		}},
		{"too many columns", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+27+1] = 5
			return mi, nz
		}},
		{"row out of range", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+27] = 4 * 4 * 4
			return mi, nz
		}},
		{"row outside sub-group tile", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+27] = 3 * 4 * 4
			return mi, nz
		}},
		{"non-zero count disagrees with rows", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			mi[node0+1] = 999
			return mi, nz
		}},
		{"short meta-info", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			return mi[:len(mi)-1], nz
		}},
		{"short non-zeros", func(mi []MetaInfoType, nz []float32) ([]MetaInfoType, []float32) {
			return mi, nz[:len(nz)-1]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mi, values := tt.corrupt(append([]MetaInfoType(nil), metaInfo...), append([]float32(nil), nz...))
			_, err := p.Decode(mi, values)
			assert.ErrorIs(t, err, ErrCorruptMetaInfo)
		})
	}
}
