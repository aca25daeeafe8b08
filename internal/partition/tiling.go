package partition

import (
	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// tilePartitions splits a canonical CSR matrix into one TilePartition per
// node. In transposed mode the matrix must already be the transpose of the
// problem matrix; tiles are formed with row and column splits swapped so the
// node numbering of the forward problem is kept.
func tilePartitions[T any](cfg *Config, csr *sparse.CSR[T], transposed bool) []sparse.TilePartition[T] {
	zParts := cfg.zPartitions()
	out := make([]sparse.TilePartition[T], cfg.numBuckets())
	log := cfg.Logger

	for row := range cfg.Splits.X {
		for column := range cfg.Splits.Y {
			rowInterval := interval(cfg.Splits.X, row, cfg.Shape.X)
			columnInterval := interval(cfg.Splits.Y, column, cfg.Shape.Y)
			rowIndex, columnIndex := row, column
			if transposed {
				rowInterval, columnInterval = columnInterval, rowInterval
				rowIndex, columnIndex = columnIndex, rowIndex
			}

			tile := sparse.NewTile(rowInterval, columnInterval)
			rows := sparse.RowsInTile(csr, tile)
			if log.Enabled(LevelTrace) {
				log.Logf(LevelTrace, "tile %v: %d non-empty rows", tile, len(rows))
			}

			weights := make([]int, len(rows))
			for i, r := range rows {
				weights[i] = len(r.Positions)
			}
			splits := splitRegions(weights, zParts)

			for z := 0; z < zParts; z++ {
				tp := sparse.TilePartition[T]{
					Index: sparse.TileIndex{Row: rowIndex, Column: columnIndex, Z: z},
					Tile:  tile,
				}
				if z < len(splits) {
					for _, s := range splits[z] {
						src := rows[s.Region]
						b, e := s.Interval.Begin, s.Interval.End
						tp.Rows = append(tp.Rows, sparse.Row[T]{
							Number:    src.Number,
							Positions: src.Positions[b:e:e],
						})
					}
				}
				out[cfg.pnID(row, column, z)] = tp
			}
		}
	}
	return out
}
