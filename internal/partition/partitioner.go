package partition

import (
	"github.com/pkg/errors"

	"github.com/alexshuang/poplibs-sub002/internal/parallel"
	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// Partitioner distributes the non-zeros of a sparse matrix R over the nodes
// computing Q[X,Z] = R[X,Y] * S[Y,Z] and encodes each node's share into
// fixed-size buckets.
//
// A Partitioner is immutable after New and safe for concurrent use.
type Partitioner[T sparse.Scalar] struct {
	cfg      Config
	dataType sparse.DataType
	factors  offsetFactors
	sizer    sizer[T]
	log      Logger

	// Set on partitioners from Transposed, whose buckets keep the node
	// numbering of the forward problem.
	transposed bool
}

// New validates the configuration and creates a partitioner for non-zero
// values of type T.
func New[T sparse.Scalar](cfg Config) (*Partitioner[T], error) {
	normalized, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	return newPartitioner[T](normalized), nil
}

func newPartitioner[T sparse.Scalar](cfg Config) *Partitioner[T] {
	dt := sparse.DataTypeOf[T]()
	p := &Partitioner[T]{
		cfg:      cfg,
		dataType: dt,
		factors:  offsetFactorsFor(dt),
		log:      cfg.Logger,
	}
	p.sizer = sizer[T]{cfg: &p.cfg}
	return p
}

// Config returns the normalized configuration.
func (p *Partitioner[T]) Config() Config {
	return p.cfg
}

// DataType returns the type of the non-zero values.
func (p *Partitioner[T]) DataType() sparse.DataType {
	return p.dataType
}

// NumBuckets returns the number of nodes, and so of buckets.
func (p *Partitioner[T]) NumBuckets() int {
	return p.cfg.numBuckets()
}

// Transposed returns the partitioner of the transposed problem, with the
// X and Y dimensions swapped. Buckets from TransposedBuckets are encoded and
// decoded with it.
func (p *Partitioner[T]) Transposed() *Partitioner[T] {
	out := newPartitioner[T](p.cfg.transposed())
	out.transposed = !p.transposed
	return out
}

// homeTile is the tile a node holds before balancing.
func (p *Partitioner[T]) homeTile(pn int) sparse.TileIndex {
	if !p.transposed {
		return p.cfg.tileIndexFromPN(pn)
	}
	forward := p.cfg.transposed()
	return forward.tileIndexFromPN(pn).Transpose()
}

func (p *Partitioner[T]) canonicalCSR(m sparse.Matrix[T]) (*sparse.CSR[T], error) {
	rows, cols := m.Dims()
	if rows != p.cfg.Shape.X || cols != p.cfg.Shape.Y {
		return nil, configErrorf("matrix is %dx%d, partitioner expects %dx%d",
			rows, cols, p.cfg.Shape.X, p.cfg.Shape.Y)
	}
	csr, err := m.ToCSR()
	if err != nil {
		return nil, errors.WithMessagef(err, "converting %s matrix", m.Format())
	}
	return csr, nil
}

// TilePartitions splits the matrix into one tile partition per node. In
// transposed mode the tiles describe the transpose of the matrix while the
// node numbering of the untransposed problem is kept.
func (p *Partitioner[T]) TilePartitions(m sparse.Matrix[T], transposed bool) ([]sparse.TilePartition[T], error) {
	csr, err := p.canonicalCSR(m)
	if err != nil {
		return nil, err
	}
	if transposed {
		csr = csr.Transpose()
	}
	return tilePartitions(&p.cfg, csr, transposed), nil
}

// CreateBuckets partitions the matrix and balances the result so that every
// bucket fits its capacities. It returns an *OverflowError when balancing
// cannot place every row.
func (p *Partitioner[T]) CreateBuckets(m sparse.Matrix[T]) ([]PNBucket[T], error) {
	tps, err := p.TilePartitions(m, false)
	if err != nil {
		return nil, err
	}
	buckets := make([]PNBucket[T], len(tps))
	for i := range tps {
		if tps[i].Empty() {
			continue
		}
		buckets[i].SubGroups = []sparse.TilePartition[T]{tps[i]}
		p.sizer.fill(&buckets[i])
	}

	bl := balancer[T]{cfg: &p.cfg, sizer: p.sizer, log: p.log}
	if err := bl.balance(buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (p *Partitioner[T]) checkBuckets(buckets []PNBucket[T]) error {
	if len(buckets) != p.NumBuckets() {
		return errors.Wrapf(ErrBucketMismatch, "%d buckets, partitioner has %d nodes", len(buckets), p.NumBuckets())
	}
	return nil
}

// TransposedBuckets transposes every sub-group of balanced buckets in place
// of rebalancing. Node assignment is unchanged.
func (p *Partitioner[T]) TransposedBuckets(buckets []PNBucket[T]) ([]PNBucket[T], error) {
	if err := p.checkBuckets(buckets); err != nil {
		return nil, err
	}
	transposed := p.Transposed()
	out := make([]PNBucket[T], len(buckets))
	parallel.For(len(buckets), func(b int) {
		for _, sg := range buckets[b].SubGroups {
			out[b].SubGroups = append(out[b].SubGroups, sg.Transpose())
		}
		transposed.sizer.fill(&out[b])
	}, p.cfg.Parallel)
	return out, nil
}

func (p *Partitioner[T]) forwardParams() encodeParams {
	return encodeParams{
		factors:          p.factors,
		metaInfoElements: p.cfg.MetaInfoBucketElements,
		nzElements:       p.cfg.NzBucketElements,
		gradW:            p.cfg.DoGradWPass,
	}
}

func (p *Partitioner[T]) gradAParams() encodeParams {
	capacity := p.cfg.MetaInfoBucketElementsGradA
	if capacity <= 0 {
		capacity = p.cfg.MetaInfoBucketElements
	}
	return encodeParams{factors: p.factors, metaInfoElements: capacity}
}

// BucketForForward encodes one bucket for the forward pass. Both results are
// padded to the bucket capacities.
func (p *Partitioner[T]) BucketForForward(b *PNBucket[T]) ([]MetaInfoType, []T, error) {
	return encodeBucket[T](&p.cfg, b, p.forwardParams(), nil)
}

// BucketsForForward encodes every bucket for the forward pass.
func (p *Partitioner[T]) BucketsForForward(buckets []PNBucket[T]) ([][]MetaInfoType, [][]T, error) {
	metaInfo := make([][]MetaInfoType, len(buckets))
	nzValues := make([][]T, len(buckets))
	err := parallel.ForErr(len(buckets), func(b int) error {
		var err error
		metaInfo[b], nzValues[b], err = p.BucketForForward(&buckets[b])
		return errors.WithMessagef(err, "pn %d", b)
	}, p.cfg.Parallel)
	if err != nil {
		return nil, nil, err
	}
	return metaInfo, nzValues, nil
}

// BucketForGradA encodes the meta-info of one bucket for the GradA pass.
// Non-zero values are shared with the forward encoding and referenced by
// position.
func (p *Partitioner[T]) BucketForGradA(b *PNBucket[T]) ([]MetaInfoType, error) {
	indices := gradABucket(b)
	metaInfo, _, err := encodeBucket[int](&p.cfg, &indices, p.gradAParams(), func(i int) int { return i })
	return metaInfo, err
}

// BucketsForGradA encodes the GradA meta-info of every bucket.
func (p *Partitioner[T]) BucketsForGradA(buckets []PNBucket[T]) ([][]MetaInfoType, error) {
	metaInfo := make([][]MetaInfoType, len(buckets))
	err := parallel.ForErr(len(buckets), func(b int) error {
		var err error
		metaInfo[b], err = p.BucketForGradA(&buckets[b])
		return errors.WithMessagef(err, "pn %d", b)
	}, p.cfg.Parallel)
	if err != nil {
		return nil, err
	}
	return metaInfo, nil
}

// OverflowInfoForFwd returns the overflow distance triplet of the forward
// pass.
func (p *Partitioner[T]) OverflowInfoForFwd(buckets []PNBucket[T]) ([]int, error) {
	return p.overflowInfo(buckets, passForward)
}

// OverflowInfoForGradA returns the overflow distance triplet of the GradA
// pass.
func (p *Partitioner[T]) OverflowInfoForGradA(buckets []PNBucket[T]) ([]int, error) {
	return p.overflowInfo(buckets, passGradA)
}

// OverflowInfoForGradW returns the overflow distance triplet of the GradW
// pass.
func (p *Partitioner[T]) OverflowInfoForGradW(buckets []PNBucket[T]) ([]int, error) {
	return p.overflowInfo(buckets, passGradW)
}

func (p *Partitioner[T]) overflowInfo(buckets []PNBucket[T], pass overflowPass) ([]int, error) {
	if err := p.checkBuckets(buckets); err != nil {
		return nil, err
	}
	return overflowDistance(&p.cfg, buckets, p.homeTile, pass, p.log), nil
}

// EncodeAll produces the flat meta-info and non-zeros of every enabled pass:
// the overflow triplets, then per node the forward bucket followed by the
// GradA bucket when GradA does not share the forward one.
func (p *Partitioner[T]) EncodeAll(buckets []PNBucket[T]) ([]MetaInfoType, []T, error) {
	if err := p.checkBuckets(buckets); err != nil {
		return nil, nil, err
	}

	passes := []overflowPass{passForward}
	if p.cfg.DoGradAPass {
		passes = append(passes, passGradA)
	}
	if p.cfg.DoGradWPass {
		passes = append(passes, passGradW)
	}
	metaInfo := make([]MetaInfoType, 0, p.cfg.metaInfoPrefixElements()+len(buckets)*p.cfg.metaInfoElementsPerNode())
	for _, pass := range passes {
		for _, v := range overflowDistance(&p.cfg, buckets, p.homeTile, pass, p.log) {
			if v > maxMetaInfoValue {
				return nil, nil, encodingErrorf("overflow distance %d out of range", v)
			}
			metaInfo = append(metaInfo, MetaInfoType(v))
		}
	}

	fwd, nz, err := p.BucketsForForward(buckets)
	if err != nil {
		return nil, nil, err
	}
	var gradA [][]MetaInfoType
	if p.cfg.DoGradAPass && !p.cfg.SharedBuckets {
		if gradA, err = p.BucketsForGradA(buckets); err != nil {
			return nil, nil, err
		}
	}

	nzValues := make([]T, 0, len(buckets)*p.cfg.NzBucketElements)
	for b := range buckets {
		metaInfo = append(metaInfo, fwd[b]...)
		if gradA != nil {
			metaInfo = append(metaInfo, gradA[b]...)
		}
		nzValues = append(nzValues, nz[b]...)
	}
	if p.log.Enabled(LevelDebug) {
		p.log.Logf(LevelDebug, "encoded %d buckets: %d meta-info elements, %d non-zeros",
			len(buckets), len(metaInfo), len(nzValues))
	}
	return metaInfo, nzValues, nil
}

// Decode reconstructs the matrix from the output of EncodeAll. Entries are
// ordered by row, then column.
func (p *Partitioner[T]) Decode(metaInfo []MetaInfoType, nzValues []T) (*sparse.COO[T], error) {
	return decodeBuckets(&p.cfg, p.factors, metaInfo, nzValues)
}

// DecodeCSR is Decode followed by conversion to CSR.
func (p *Partitioner[T]) DecodeCSR(metaInfo []MetaInfoType, nzValues []T) (*sparse.CSR[T], error) {
	coo, err := p.Decode(metaInfo, nzValues)
	if err != nil {
		return nil, err
	}
	return coo.ToCSR()
}

// DecodeCSC is Decode followed by conversion to CSC.
func (p *Partitioner[T]) DecodeCSC(metaInfo []MetaInfoType, nzValues []T) (*sparse.CSC[T], error) {
	csr, err := p.DecodeCSR(metaInfo, nzValues)
	if err != nil {
		return nil, err
	}
	return csr.ToCSC(), nil
}

// Stats reports the occupancy of every bucket.
func (p *Partitioner[T]) Stats(buckets []PNBucket[T]) []BucketStats {
	return statsOf(buckets)
}
