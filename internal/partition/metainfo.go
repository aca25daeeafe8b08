package partition

import (
	"math"

	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// MetaInfoType is the fixed-width element of every meta-info bucket.
type MetaInfoType = uint16

const maxMetaInfoValue = math.MaxUint16

// Record sizes in meta-info elements.
const (
	subGroupEntryElements    = 7 // id, numSparse, offsetToNext, numZ, numXm1, offsetToFirstOutput, numWorkers
	workerEntryElements      = 5 // sparseOffset, numZ, offsetZ, numXm1, metaInfoOffset
	gradWWorkerEntryElements = 4 // sparseOffset, metaInfoOffsetOutputEntry, offsetToOffsetsYInSFirst, totalNumY
	outputEntryElements      = 2 // offsetXInQ, numY

	// endSubGroupID terminates the sub-groups of a bucket.
	endSubGroupID = 0

	// overflowInfoElements is the size of one overflow distance triplet.
	overflowInfoElements = 3
)

// subGroupID identifies the tile a sub-group originates from. Zero is
// reserved for the end marker.
func subGroupID(rowGroup, columnGroup, numColumnGroups int) int {
	return rowGroup*numColumnGroups + columnGroup + 1
}

// groupIndices is the inverse of subGroupID.
func groupIndices(id, numColumnGroups int) (rowGroup, columnGroup int) {
	return (id - 1) / numColumnGroups, (id - 1) % numColumnGroups
}

// distanceToSubGroup is the cyclic distance from the home tile of a node to
// the tile of a sub-group it holds, per axis.
func distanceToSubGroup(srcID, dstID, numRowGroups, numColumnGroups int) (rows, columns int) {
	srcRow, srcCol := groupIndices(srcID, numColumnGroups)
	dstRow, dstCol := groupIndices(dstID, numColumnGroups)
	rows = (srcRow - dstRow + numRowGroups) % numRowGroups
	columns = (srcCol - dstCol + numColumnGroups) % numColumnGroups
	return rows, columns
}

// fixedMetaInfoCost is the meta-info cost of a sub-group excluding its rows
// and non-zeros, assuming every worker is used.
func fixedMetaInfoCost(numWorkers int, gradW bool) int {
	cost := subGroupEntryElements + workerEntryElements*numWorkers
	if gradW {
		cost += gradWWorkerEntryElements*numWorkers + 1
	}
	return cost
}

// offsetFactors scale row and column offsets so the device can use them
// directly as byte offsets into Q and S.
type offsetFactors struct {
	x int
	y int
}

func offsetFactorsFor(dt sparse.DataType) offsetFactors {
	return offsetFactors{x: dt.Size(), y: dt.Size()}
}
