package partition

import (
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// balancer moves rows out of overflowing buckets into nodes with spare
// capacity.
type balancer[V any] struct {
	cfg   *Config
	sizer sizer[V]
	log   Logger
}

// rowTake selects the last Count positions of row Row of a tile partition.
type rowTake struct {
	Row   int
	Count int
}

// balance establishes the capacity invariant on every bucket or returns an
// *OverflowError. Buckets are modified in place.
func (bl *balancer[V]) balance(buckets []PNBucket[V]) error {
	cfg := bl.cfg
	miTarget, nzTarget := cfg.MetaInfoBucketElements-1, cfg.NzBucketElements

	bl.dump("before rebalancing", buckets, nil)

	overflow := make([]PNBucket[V], len(buckets))
	for p := range buckets {
		b := &buckets[p]
		if b.Empty() || (b.fits(miTarget, nzTarget) && !cfg.ForceBucketSpills) {
			continue
		}
		mt, nt := miTarget, nzTarget
		if cfg.ForceBucketSpills {
			mt, nt = 0, 0
		}
		if bl.log.Enabled(LevelTrace) {
			bl.log.Logf(LevelTrace, "removing rows from pn %d: sizes %d %d", p, b.MetaInfoElements, b.NumNzElements)
		}
		overflow[p].SubGroups = []sparse.TilePartition[V]{bl.removeRows(b, mt, nt)}
		bl.sizer.fill(&overflow[p])
	}

	bl.dump("after stripping overflow", buckets, overflow)

	for _, pnRange := range cfg.hierarchyRanges() {
		for _, splitColumns := range []bool{false, true} {
			bl.log.Logf(LevelInfo, "rebalance: range %d, split columns %t, non-empty overflow %d",
				pnRange, splitColumns, countNonEmpty(overflow))
			bl.rebalance(buckets, overflow, pnRange, splitColumns)
		}
	}
	bl.log.Logf(LevelInfo, "after rebalancing: non-empty overflow %d", countNonEmpty(overflow))

	if bl.log.Enabled(LevelDebug) {
		for p := range buckets {
			bl.log.Logf(LevelDebug, "bucket size for pn %d: mi %d nz %d",
				p, buckets[p].MetaInfoElements, buckets[p].NumNzElements)
		}
	}
	bl.dump("final", buckets, overflow)

	if n := countNonEmpty(overflow); n > 0 {
		err := &OverflowError{
			NumOverflowing:         n,
			MetaInfoBucketElements: cfg.MetaInfoBucketElements,
			NzBucketElements:       cfg.NzBucketElements,
		}
		for _, b := range overflow {
			err.MaxMetaInfoElements = max(err.MaxMetaInfoElements, b.MetaInfoElements)
			err.MaxNzElements = max(err.MaxNzElements, b.NumNzElements)
		}
		bl.log.Logf(LevelWarn, "overflow meta-info %d/%d, nz values %d/%d",
			err.MaxMetaInfoElements, err.MetaInfoBucketElements, err.MaxNzElements, err.NzBucketElements)
		return err
	}
	return nil
}

// removeRows strips rows from the end of the bucket's own sub-group until
// the bucket fits the targets and returns them in removal order.
func (bl *balancer[V]) removeRows(b *PNBucket[V], metaInfoTarget, nzTarget int) sparse.TilePartition[V] {
	sg := &b.SubGroups[0]
	removed := sparse.TilePartition[V]{Index: sg.Index, Tile: sg.Tile}
	for len(sg.Rows) > 0 {
		last := len(sg.Rows) - 1
		removed.Rows = append(removed.Rows, sg.Rows[last])
		sg.Rows = sg.Rows[:last:last]
		bl.sizer.fill(b)
		if b.fits(metaInfoTarget, nzTarget) {
			break
		}
	}
	return removed
}

// rebalance places overflow into the main buckets of nodes within blocks of
// pnRange consecutive node ids.
func (bl *balancer[V]) rebalance(buckets, overflow []PNBucket[V], pnRange int, splitColumns bool) {
	if countNonEmpty(overflow) == 0 {
		return
	}
	cfg := bl.cfg
	miTarget, nzTarget := cfg.MetaInfoBucketElements-1, cfg.NzBucketElements

	// Within each block the largest overflow is placed first.
	order := make([]int, len(buckets))
	for i := range order {
		order[i] = i
	}
	for start := 0; start < len(order); start += pnRange {
		block := order[start : start+pnRange]
		sort.SliceStable(block, func(a, b int) bool {
			return overflow[block[b]].less(&overflow[block[a]])
		})
	}

	for ovfPN := range order {
		pnStart := ovfPN / pnRange * pnRange
		thisPN := order[ovfPN]
		ovf := &overflow[thisPN]
		if ovf.Empty() {
			continue
		}
		if bl.log.Enabled(LevelTrace) {
			bl.log.Logf(LevelTrace, "overflow for pn %d: sizes %d %d, range [%d %d)",
				thisPN, ovf.MetaInfoElements, ovf.NumNzElements, pnStart, pnStart+pnRange)
		}

		for _, pn := range bl.candidates(buckets, thisPN, pnStart, pnRange) {
			b := &buckets[pn]
			if b.MetaInfoElements+ovf.MetaInfoElements <= miTarget &&
				b.NumNzElements+ovf.NumNzElements <= nzTarget {
				b.moveFrom(ovf)
				bl.sizer.fill(b)
				bl.sizer.fill(ovf)
				if bl.log.Enabled(LevelTrace) {
					bl.log.Logf(LevelTrace, "moved overflow %d -> %d", thisPN, pn)
				}
				break
			}

			src := &ovf.SubGroups[0]
			takes := findPartitionsToRemove(src.RowWeights(),
				miTarget-b.MetaInfoElements, nzTarget-b.NumNzElements,
				cfg.NumWorkerContexts, cfg.DoGradWPass, splitColumns)
			if len(takes) == 0 {
				continue
			}
			b.SubGroups = append(b.SubGroups, removeIntervals(src, takes))
			bl.sizer.fill(b)
			bl.sizer.fill(ovf)
			if bl.log.Enabled(LevelTrace) {
				bl.log.Logf(LevelTrace, "moved %d rows %d -> %d, pn sizes %d %d",
					len(takes), thisPN, pn, b.MetaInfoElements, b.NumNzElements)
			}
			if ovf.Empty() {
				break
			}
		}
	}
}

// candidates returns the destination nodes to try for the overflow of
// thisPN, in order.
func (bl *balancer[V]) candidates(buckets []PNBucket[V], thisPN, pnStart, pnRange int) []int {
	out := make([]int, 0, pnRange)
	switch {
	case bl.cfg.ForceBucketSpills:
		for i := 0; i < pnRange; i++ {
			pn := pnStart + (thisPN-pnStart+i)%pnRange
			if pn != thisPN {
				out = append(out, pn)
			}
		}
	case bl.cfg.OptimiseForSpeed:
		for i := 0; i < pnRange; i++ {
			out = append(out, pnStart+(thisPN-pnStart+pnRange-i)%pnRange)
		}
	default:
		for i := 0; i < pnRange; i++ {
			out = append(out, pnStart+i)
		}
		sort.SliceStable(out, func(a, b int) bool {
			return buckets[out[a]].less(&buckets[out[b]])
		})
	}
	return out
}

// findPartitionsToRemove greedily selects leading rows whose cost as a new
// sub-group fits the available meta-info and non-zero elements. With
// splitColumns, the first row that does not fit whole contributes its
// trailing columns and ends the selection.
func findPartitionsToRemove(rowWeights []int, availMetaInfo, availNz, numWorkers int, gradW, splitColumns bool) []rowTake {
	miCost := fixedMetaInfoCost(numWorkers, gradW)
	nz := 0
	var takes []rowTake
	for i, w := range rowWeights {
		remaining := min(availMetaInfo-miCost-outputEntryElements, availNz-nz)
		if remaining <= 0 {
			break
		}
		take := w
		if w > remaining && splitColumns {
			take = remaining
		}
		if miCost+take+outputEntryElements > availMetaInfo || nz+take > availNz {
			break
		}
		miCost += take + outputEntryElements
		nz += take
		takes = append(takes, rowTake{Row: i, Count: take})
	}
	return takes
}

// removeIntervals moves the selected row tails out of tp into a new
// partition of the same tile. Whole rows are deleted from tp.
func removeIntervals[V any](tp *sparse.TilePartition[V], takes []rowTake) sparse.TilePartition[V] {
	sorted := slices.Clone(takes)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Row > sorted[b].Row })

	moved := sparse.TilePartition[V]{Index: tp.Index, Tile: tp.Tile}
	for _, t := range sorted {
		row := &tp.Rows[t.Row]
		n := len(row.Positions)
		if t.Count == n {
			moved.Rows = append(moved.Rows, *row)
			tp.Rows = slices.Delete(tp.Rows, t.Row, t.Row+1)
			continue
		}
		keep := n - t.Count
		moved.Rows = append(moved.Rows, sparse.Row[V]{
			Number:    row.Number,
			Positions: slices.Clone(row.Positions[keep:]),
		})
		row.Positions = row.Positions[:keep:keep]
	}
	return moved
}

func countNonEmpty[V any](buckets []PNBucket[V]) int {
	return lo.CountBy(buckets, func(b PNBucket[V]) bool { return !b.Empty() })
}

func (bl *balancer[V]) dump(stage string, buckets, overflow []PNBucket[V]) {
	if !bl.log.Enabled(LevelTrace) {
		return
	}
	bl.log.Logf(LevelTrace, "bucket status %s", stage)
	for p := range buckets {
		b := &buckets[p]
		if overflow != nil {
			o := &overflow[p]
			bl.log.Logf(LevelTrace, "  pn %d: mi %d nz %d | overflow mi %d nz %d",
				p, b.MetaInfoElements, b.NumNzElements, o.MetaInfoElements, o.NumNzElements)
		} else {
			bl.log.Logf(LevelTrace, "  pn %d: mi %d nz %d", p, b.MetaInfoElements, b.NumNzElements)
		}
		for _, sg := range b.SubGroups {
			bl.log.Logf(LevelTrace, "    sub-group %v: %v, %d rows", sg.Index, sg.Tile, len(sg.Rows))
		}
	}
}
