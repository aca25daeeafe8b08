package partition

import (
	"github.com/samber/lo"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// PNBucket is everything one node holds: its own tile partition, if any,
// followed by sub-groups relocated from other nodes. The element counts are
// maintained by the sizer only.
type PNBucket[V any] struct {
	SubGroups        []sparse.TilePartition[V]
	MetaInfoElements int
	NumNzElements    int
}

// Empty reports whether no sub-group holds any row.
func (b *PNBucket[V]) Empty() bool {
	return lo.EveryBy(b.SubGroups, func(sg sparse.TilePartition[V]) bool { return sg.Empty() })
}

// NumSubGroups returns the number of non-empty sub-groups.
func (b *PNBucket[V]) NumSubGroups() int {
	return lo.CountBy(b.SubGroups, func(sg sparse.TilePartition[V]) bool { return !sg.Empty() })
}

// NumNonZeros counts the non-zeros of every sub-group.
func (b *PNBucket[V]) NumNonZeros() int {
	return lo.SumBy(b.SubGroups, func(sg sparse.TilePartition[V]) int { return sg.NumNonZeros() })
}

// moveFrom appends every sub-group of other and leaves it empty.
func (b *PNBucket[V]) moveFrom(other *PNBucket[V]) {
	b.SubGroups = append(b.SubGroups, other.SubGroups...)
	other.SubGroups = nil
}

// less orders buckets by meta-info size, then by non-zero count.
func (b *PNBucket[V]) less(other *PNBucket[V]) bool {
	if b.MetaInfoElements != other.MetaInfoElements {
		return b.MetaInfoElements < other.MetaInfoElements
	}
	return b.NumNzElements < other.NumNzElements
}

// fits reports whether the bucket lies within the given element budgets.
func (b *PNBucket[V]) fits(metaInfoElements, nzElements int) bool {
	return b.MetaInfoElements <= metaInfoElements && b.NumNzElements <= nzElements
}

// BucketStats is the occupancy of one node.
type BucketStats struct {
	Node             int
	SubGroups        int
	MetaInfoElements int
	NzElements       int
}

func statsOf[V any](buckets []PNBucket[V]) []BucketStats {
	return lo.Map(buckets, func(b PNBucket[V], i int) BucketStats {
		return BucketStats{
			Node:             i,
			SubGroups:        b.NumSubGroups(),
			MetaInfoElements: b.MetaInfoElements,
			NzElements:       b.NumNzElements,
		}
	})
}
