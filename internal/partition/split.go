package partition

import (
	"github.com/samber/lo"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// regionSlice is the part of region Region covered by Interval.
type regionSlice struct {
	Region   int
	Interval sparse.Interval
}

// splitRegions divides regions of the given weights into at most
// maxPartitions contiguous partitions of equal total weight. A region may
// straddle two partitions. Zero-weight regions are skipped.
func splitRegions(weights []int, maxPartitions int) [][]regionSlice {
	total := lo.Sum(weights)
	if total == 0 || maxPartitions <= 0 {
		return nil
	}
	perPartition := (total + maxPartitions - 1) / maxPartitions

	var (
		out     [][]regionSlice
		current []regionSlice
		used    int
	)
	for r, w := range weights {
		for offset := 0; offset < w; {
			take := min(w-offset, perPartition-used)
			current = append(current, regionSlice{Region: r, Interval: sparse.NewInterval(offset, offset+take)})
			offset += take
			used += take
			if used == perPartition {
				out = append(out, current)
				current, used = nil, 0
			}
		}
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

// splitTileBetweenWorkers assigns rows and Z grains of a tile to at most
// numWorkers workers. Rows are split first, balanced by rowWeights when it
// has one weight per row; the Z grains are split uniformly among the
// workers left per row range. The number of tiles returned depends only on
// numRows, numColumns and numWorkers.
func splitTileBetweenWorkers(numRows, numColumns, numWorkers int, rowWeights []int) []sparse.Tile {
	if numRows == 0 || numColumns == 0 || numWorkers == 0 {
		return nil
	}
	rowSplits := min(numRows, numWorkers)
	columnSplits := min(numColumns, max(1, numWorkers/rowSplits))

	var rowRanges []sparse.Interval
	if len(rowWeights) == numRows {
		rowRanges = balancedRanges(rowWeights, rowSplits)
	} else {
		rowRanges = uniformRanges(numRows, rowSplits)
	}
	columnRanges := uniformRanges(numColumns, columnSplits)

	tiles := make([]sparse.Tile, 0, len(rowRanges)*len(columnRanges))
	for _, rows := range rowRanges {
		for _, columns := range columnRanges {
			tiles = append(tiles, sparse.NewTile(rows, columns))
		}
	}
	return tiles
}

// uniformRanges splits n elements into parts contiguous ranges whose sizes
// differ by at most one.
func uniformRanges(n, parts int) []sparse.Interval {
	ranges := make([]sparse.Interval, 0, parts)
	base, extra := n/parts, n%parts
	begin := 0
	for p := 0; p < parts; p++ {
		size := base
		if p < extra {
			size++
		}
		ranges = append(ranges, sparse.NewInterval(begin, begin+size))
		begin += size
	}
	return ranges
}

// balancedRanges splits the weights into parts non-empty contiguous ranges,
// closing each range once it reaches its share of the running total.
func balancedRanges(weights []int, parts int) []sparse.Interval {
	n := len(weights)
	total := lo.Sum(weights)
	ranges := make([]sparse.Interval, 0, parts)
	begin, acc := 0, 0
	for p := 0; p < parts; p++ {
		if p == parts-1 {
			ranges = append(ranges, sparse.NewInterval(begin, n))
			break
		}
		target := (total*(p+1) + parts - 1) / parts
		end := begin + 1
		acc += weights[begin]
		// Leave at least one row for each remaining range.
		for end < n-(parts-p-1) && acc < target {
			acc += weights[end]
			end++
		}
		ranges = append(ranges, sparse.NewInterval(begin, end))
		begin = end
	}
	return ranges
}
