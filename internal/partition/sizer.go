package partition

import (
	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// sizer computes bucket occupancy. It is the only code that writes the
// element counts of a PNBucket.
type sizer[V any] struct {
	cfg *Config
}

// sizeOf returns the meta-info and non-zero elements a tile partition takes
// once encoded as a sub-group.
func (s sizer[V]) sizeOf(tp *sparse.TilePartition[V]) (metaInfo, nz int) {
	if tp.Empty() {
		return 0, 0
	}
	numWorkers := s.cfg.NumWorkerContexts
	gradW := s.cfg.DoGradWPass
	nz = tp.NumNonZeros()

	if s.cfg.UseActualWorkerSplitCosts {
		workers := splitTileBetweenWorkers(len(tp.Rows), s.cfg.numZGrains(tp.Index), numWorkers, nil)
		metaInfo = workerEntryElements * len(workers)
		if gradW {
			metaInfo += 1 + gradWWorkerEntryElements*min(nz, numWorkers)
		}
	} else {
		metaInfo = workerEntryElements * numWorkers
		if gradW {
			metaInfo += gradWWorkerEntryElements*numWorkers + 1
		}
	}

	metaInfo += outputEntryElements*len(tp.Rows) + nz + subGroupEntryElements
	return metaInfo, nz
}

// fill recomputes the element counts of a bucket from its sub-groups.
func (s sizer[V]) fill(b *PNBucket[V]) {
	b.MetaInfoElements, b.NumNzElements = 0, 0
	for i := range b.SubGroups {
		mi, nz := s.sizeOf(&b.SubGroups[i])
		b.MetaInfoElements += mi
		b.NumNzElements += nz
	}
}
