package partition

import "github.com/alexshuang/poplibs-sub002/internal/sparse"

// overflowPass selects how the distance triplet is permuted.
type overflowPass int

const (
	passForward overflowPass = iota
	passGradA
	passGradW
)

// overflowDistance finds how far, in row groups and then column groups,
// balancing moved data away from the node that holds it, and returns the
// triplet the device needs to reach every sub-group of that pass. home maps a
// node to the tile it was assigned before balancing.
func overflowDistance[V any](cfg *Config, buckets []PNBucket[V], home func(pn int) sparse.TileIndex, pass overflowPass, log Logger) []int {
	numRowGroups, numColumnGroups := len(cfg.Splits.X), len(cfg.Splits.Y)
	maxRows, maxColumns := 0, 0

	for b := range buckets {
		h := home(b)
		homeID := subGroupID(h.Row, h.Column, numColumnGroups)
		for _, sg := range buckets[b].SubGroups {
			if sg.Empty() {
				continue
			}
			id := subGroupID(sg.Index.Row, sg.Index.Column, numColumnGroups)
			rows, columns := distanceToSubGroup(homeID, id, numRowGroups, numColumnGroups)
			if rows > maxRows || (rows == maxRows && columns > maxColumns) {
				maxRows, maxColumns = rows, columns
			}
		}
	}

	x := maxRows + 1
	y := numColumnGroups
	if x == 1 {
		y = maxColumns + 1
	}
	z := len(cfg.Splits.Z)
	if log.Enabled(LevelTrace) {
		log.Logf(LevelTrace, "selected distance triplet: %d %d %d", x, y, z)
	}

	switch pass {
	case passGradA:
		return []int{y, x, z}
	case passGradW:
		return []int{x, z, y}
	default:
		return []int{x, y, z}
	}
}
