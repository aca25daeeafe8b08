package partition

import (
	"sort"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// encodeParams selects the pass a bucket is encoded for.
type encodeParams struct {
	factors          offsetFactors
	metaInfoElements int // Bucket capacity; the output is padded to it
	nzElements       int // Zero for GradA, which carries no values
	gradW            bool
}

// encodeBucket emits the meta-info and the non-zero values of a bucket.
// With a non-nil backRef the bucket holds transposed sub-groups whose values
// index the forward non-zeros; the GradA layout is emitted and no values are
// returned.
func encodeBucket[V any](cfg *Config, b *PNBucket[V], p encodeParams, backRef func(V) int) ([]MetaInfoType, []V, error) {
	gradA := backRef != nil
	gradW := p.gradW && !gradA
	entriesPerNz := 1
	if gradA {
		entriesPerNz = 2
	}
	gradWCount := 0
	if gradW {
		gradWCount = 1
	}
	numColumnGroups := len(cfg.Splits.Y)

	group := make([]int, 0, p.metaInfoElements)
	var nzValues []V
	if !gradA {
		nzValues = make([]V, 0, p.nzElements)
	}

	for i := range b.SubGroups {
		sg := &b.SubGroups[i]
		numRows := len(sg.Rows)
		if numRows == 0 {
			continue
		}

		id := subGroupID(sg.Index.Row, sg.Index.Column, numColumnGroups)
		if gradA {
			id = subGroupID(sg.Index.Column, sg.Index.Row, numColumnGroups)
		}
		numGrains := cfg.numZGrains(sg.Index)
		zScale := numGrains * cfg.Grains.Z

		var rowWeights []int
		if numRows != 1 {
			rowWeights = sg.RowWeights()
		}
		workers := splitTileBetweenWorkers(numRows, numGrains, cfg.NumWorkerContexts, rowWeights)

		sparseOffset := make([]int, numRows+1)
		for r, row := range sg.Rows {
			sparseOffset[r+1] = sparseOffset[r] + len(row.Positions)
		}
		nz := sparseOffset[numRows]

		var gradWWorkers []sparse.Tile
		if gradW {
			gradWWorkers = splitTileBetweenWorkers(1, nz, cfg.NumWorkerContexts, nil)
		}
		numWorkers, numGradWWorkers := len(workers), len(gradWWorkers)

		offsetToNext := subGroupEntryElements + workerEntryElements*numWorkers +
			gradWWorkerEntryElements*numGradWWorkers + outputEntryElements*numRows +
			gradWCount + nz*entriesPerNz
		offsetToFirstOutput := offsetToNext - nz*entriesPerNz - outputEntryElements*numRows
		group = append(group, id, nz, offsetToNext, zScale, numRows-1, offsetToFirstOutput, numWorkers)

		for w, worker := range workers {
			remaining := numWorkers - w
			offset := sparseOffset[worker.Rows.Begin]
			entryOffset := offset
			if gradA {
				entryOffset = 0
			}
			metaInfoOffset := outputEntryElements*worker.Rows.Begin + workerEntryElements*remaining +
				gradWWorkerEntryElements*numGradWWorkers + gradWCount + offset*entriesPerNz
			group = append(group,
				entryOffset,
				worker.Columns.Size()*cfg.Grains.Z,
				worker.Columns.Begin*cfg.Grains.Z,
				worker.Rows.Size()-1,
				metaInfoOffset)
		}

		if gradW {
			group = append(group, numGradWWorkers)
			for w, worker := range gradWWorkers {
				remaining := numGradWWorkers - w
				begin := worker.Columns.Begin
				// Last row starting at or before begin.
				rowOffset := sort.SearchInts(sparseOffset, begin+1) - 1
				inRow := begin - sparseOffset[rowOffset]
				group = append(group,
					begin,
					begin-inRow+gradWWorkerEntryElements*remaining+outputEntryElements*rowOffset,
					inRow,
					worker.Columns.Size())
			}
		}

		for _, row := range sg.Rows {
			group = append(group, row.Number*zScale*p.factors.x, len(row.Positions))
			for _, pos := range row.Positions {
				if gradA {
					group = append(group, backRef(pos.Value)*p.factors.y)
				}
				group = append(group, pos.Column*p.factors.y*zScale)
				if !gradA {
					nzValues = append(nzValues, pos.Value)
				}
			}
		}
	}
	group = append(group, endSubGroupID)

	if len(group) > p.metaInfoElements {
		return nil, nil, encodingErrorf("meta-info takes %d elements, bucket holds %d", len(group), p.metaInfoElements)
	}
	if len(nzValues) > p.nzElements {
		return nil, nil, encodingErrorf("%d non-zeros, bucket holds %d", len(nzValues), p.nzElements)
	}
	metaInfo := make([]MetaInfoType, p.metaInfoElements)
	for i, v := range group {
		if v < 0 || v > maxMetaInfoValue {
			return nil, nil, encodingErrorf("meta-info element %d is %d, outside [0, %d]", i, v, maxMetaInfoValue)
		}
		metaInfo[i] = MetaInfoType(v)
	}
	if !gradA {
		nzValues = append(nzValues, make([]V, p.nzElements-len(nzValues))...)
	}
	return metaInfo, nzValues, nil
}

// gradABucket re-expresses a bucket for the GradA pass: every sub-group is
// transposed and its values replaced by the position of each non-zero in the
// forward encoding of the sub-group.
func gradABucket[V any](b *PNBucket[V]) PNBucket[int] {
	out := PNBucket[int]{
		SubGroups:        make([]sparse.TilePartition[int], 0, len(b.SubGroups)),
		MetaInfoElements: b.MetaInfoElements,
		NumNzElements:    b.NumNzElements,
	}
	for _, sg := range b.SubGroups {
		indices := sparse.TilePartition[int]{Index: sg.Index, Tile: sg.Tile}
		index := 0
		for _, row := range sg.Rows {
			positions := make([]sparse.Position[int], len(row.Positions))
			for i, pos := range row.Positions {
				positions[i] = sparse.Position[int]{Column: pos.Column, Value: index}
				index++
			}
			indices.Rows = append(indices.Rows, sparse.Row[int]{Number: row.Number, Positions: positions})
		}
		out.SubGroups = append(out.SubGroups, indices.Transpose())
	}
	return out
}
