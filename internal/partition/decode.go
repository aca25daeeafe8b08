package partition

import (
	"sort"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// metaInfoPrefixElements is the length of the overflow distance triplets
// that lead the flat meta-info.
func (c *Config) metaInfoPrefixElements() int {
	n := overflowInfoElements
	if c.DoGradAPass {
		n += overflowInfoElements
	}
	if c.DoGradWPass {
		n += overflowInfoElements
	}
	return n
}

// metaInfoElementsPerNode is the stride of one node in the flat meta-info.
func (c *Config) metaInfoElementsPerNode() int {
	n := c.MetaInfoBucketElements
	if c.DoGradAPass && !c.SharedBuckets {
		n += c.MetaInfoBucketElementsGradA
	}
	return n
}

// decodeBuckets reconstructs the matrix from the flat forward encoding of
// every node. Entries are ordered by row, then column.
func decodeBuckets[T any](cfg *Config, factors offsetFactors, metaInfo []MetaInfoType, nzValues []T) (*sparse.COO[T], error) {
	numBuckets := cfg.numBuckets()
	stride := cfg.metaInfoElementsPerNode()
	prefix := cfg.metaInfoPrefixElements()
	if want := prefix + numBuckets*stride; len(metaInfo) != want {
		return nil, corruptf("flat meta-info has %d elements, partitioner expects %d", len(metaInfo), want)
	}
	if want := numBuckets * cfg.NzBucketElements; len(nzValues) != want {
		return nil, corruptf("flat non-zeros have %d elements, partitioner expects %d", len(nzValues), want)
	}

	numRowGroups, numColumnGroups := len(cfg.Splits.X), len(cfg.Splits.Y)
	zExtent := cfg.zExtent()
	var entries []sparse.Entry[T]

	for b := 0; b < numBuckets; b++ {
		begin := prefix + b*stride
		end := begin + cfg.MetaInfoBucketElements
		nzIndex, nzEnd := b*cfg.NzBucketElements, (b+1)*cfg.NzBucketElements

		for idx := begin; ; {
			if idx >= end {
				return nil, corruptf("pn %d: no end marker", b)
			}
			id := int(metaInfo[idx])
			if id == endSubGroupID {
				break
			}
			if idx+subGroupEntryElements > end {
				return nil, corruptf("pn %d: truncated sub-group header at %d", b, idx)
			}
			header := metaInfo[idx : idx+subGroupEntryElements]
			rowGroup, columnGroup := groupIndices(id, numColumnGroups)
			if rowGroup >= numRowGroups || columnGroup >= numColumnGroups {
				return nil, corruptf("pn %d: sub-group id %d out of range", b, id)
			}
			numSparse := int(header[1])
			offsetToNext := int(header[2])
			zScale := int(header[3])
			numRows := int(header[4]) + 1
			offsetToFirstOutput := int(header[5])
			if numRows > cfg.Shape.X || zScale == 0 || zScale > zExtent {
				return nil, corruptf("pn %d: sub-group %d has %d rows and Z scale %d", b, id, numRows, zScale)
			}

			rows := interval(cfg.Splits.X, rowGroup, cfg.Shape.X)
			columns := interval(cfg.Splits.Y, columnGroup, cfg.Shape.Y)
			pos := idx + offsetToFirstOutput
			sgBegin := nzIndex
			for r := 0; r < numRows; r++ {
				if pos+outputEntryElements > end {
					return nil, corruptf("pn %d: output entry beyond bucket", b)
				}
				row := rows.Begin + int(metaInfo[pos])/(factors.x*zScale)
				numY := int(metaInfo[pos+1])
				pos += outputEntryElements
				if numY > columns.Size() || !rows.Contains(row) {
					return nil, corruptf("pn %d: row %d with %d columns outside tile rows %v", b, row, numY, rows)
				}
				if pos+numY > end || nzIndex+numY > nzEnd {
					return nil, corruptf("pn %d: column offsets beyond bucket", b)
				}
				for c := 0; c < numY; c++ {
					column := columns.Begin + int(metaInfo[pos+c])/(factors.y*zScale)
					if !columns.Contains(column) {
						return nil, corruptf("pn %d: column %d outside tile columns %v", b, column, columns)
					}
					entries = append(entries, sparse.Entry[T]{Row: row, Column: column, Value: nzValues[nzIndex]})
					nzIndex++
				}
				pos += numY
			}
			if nzIndex-sgBegin != numSparse {
				return nil, corruptf("pn %d: sub-group %d holds %d non-zeros, header says %d", b, id, nzIndex-sgBegin, numSparse)
			}

			if offsetToNext == 0 || idx+offsetToNext >= end {
				return nil, corruptf("pn %d: offset to next sub-group %d at %d", b, offsetToNext, idx)
			}
			idx += offsetToNext
		}
	}

	numColumns := cfg.Shape.Y
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Row*numColumns+entries[a].Column < entries[b].Row*numColumns+entries[b].Column
	})
	return sparse.NewCOOFromEntries(cfg.Shape.X, cfg.Shape.Y, entries), nil
}
