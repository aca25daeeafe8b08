package partition

import (
	"sort"

	"github.com/alexshuang/poplibs-sub002/internal/parallel"
	"github.com/alexshuang/poplibs-sub002/internal/sparse"
)

// Dims holds a size per dimension of the product Q[X,Z] = R[X,Y] * S[Y,Z],
// where R is the sparse matrix.
type Dims struct {
	X int `yaml:"x"` // Rows of the sparse matrix
	Y int `yaml:"y"` // Columns of the sparse matrix
	Z int `yaml:"z"` // Batch or output features
}

// Splits holds the starting offset of every partition per dimension.
type Splits struct {
	X []int `yaml:"x"`
	Y []int `yaml:"y"`
	Z []int `yaml:"z"`
}

// Config configures a Partitioner.
type Config struct {
	Shape  Dims   `yaml:"shape"`
	Grains Dims   `yaml:"grains"`
	Splits Splits `yaml:"splits"`

	// Bucket capacities in elements.
	MetaInfoBucketElements      int `yaml:"meta_info_bucket_elements"`
	MetaInfoBucketElementsGradA int `yaml:"meta_info_bucket_elements_grad_a"` // Only used with separate GradA buckets
	NzBucketElements            int `yaml:"nz_bucket_elements"`

	NumWorkerContexts int `yaml:"num_worker_contexts"` // Worker threads per node
	BucketsPerZ       int `yaml:"buckets_per_z"`       // Buckets per Z split

	DoGradAPass   bool `yaml:"do_grad_a_pass"`  // Emit transposed meta-info for the GradA pass
	DoGradWPass   bool `yaml:"do_grad_w_pass"`  // Emit a GradW worker table in every sub-group
	SharedBuckets bool `yaml:"shared_buckets"` // GradA shares the forward meta-info bucket

	// UseActualWorkerSplitCosts sizes sub-groups with the real worker split
	// instead of assuming every worker is used.
	UseActualWorkerSplitCosts bool `yaml:"use_actual_worker_split_costs"`

	// ForceBucketSpills strips every row into overflow buckets (test mode).
	ForceBucketSpills bool `yaml:"force_bucket_spills"`

	// OptimiseForSpeed places overflow on the closest node in cyclic order
	// rather than on the least occupied node.
	OptimiseForSpeed bool `yaml:"optimise_for_speed"`

	// Parallel controls concurrent encoding of node buckets.
	Parallel parallel.Config `yaml:"parallel"`

	Logger Logger `yaml:"-"`
}

// DefaultConfig returns defaults for everything but the problem shape,
// splits and bucket capacities.
func DefaultConfig() Config {
	return Config{
		Grains:            Dims{X: 1, Y: 1, Z: 1},
		NumWorkerContexts: 6,
		BucketsPerZ:       1,
		OptimiseForSpeed:  true,
		Parallel:          parallel.Sequential(),
		Logger:            NopLogger{},
	}
}

// UniformSplits returns the starting offsets of at most `partitions`
// partitions of a dimension of `size` elements, each a whole number of grains.
func UniformSplits(size, partitions, grain int) []int {
	if size <= 0 || partitions <= 0 || grain <= 0 {
		return nil
	}
	grains := (size + grain - 1) / grain
	grainsPerPartition := (grains + partitions - 1) / partitions
	splits := make([]int, 0, partitions)
	for i := 0; i < partitions; i++ {
		begin := i * grainsPerPartition * grain
		if begin >= size {
			break
		}
		splits = append(splits, begin)
	}
	return splits
}

// normalized validates the configuration and returns a copy with sorted
// splits and defaults filled in.
func (c Config) normalized() (Config, error) {
	out := c
	dims := []struct {
		name  string
		size  int
		grain int
		split []int
		dst   *[]int
	}{
		{"X", c.Shape.X, c.Grains.X, c.Splits.X, &out.Splits.X},
		{"Y", c.Shape.Y, c.Grains.Y, c.Splits.Y, &out.Splits.Y},
		{"Z", c.Shape.Z, c.Grains.Z, c.Splits.Z, &out.Splits.Z},
	}
	for _, d := range dims {
		if d.size <= 0 {
			return Config{}, configErrorf("dimension %s is %d, must be > 0", d.name, d.size)
		}
		if d.grain <= 0 {
			return Config{}, configErrorf("grain size of %s is %d, must be > 0", d.name, d.grain)
		}
		split, err := verifySplit(d.size, d.split, d.name)
		if err != nil {
			return Config{}, err
		}
		*d.dst = split
	}

	switch {
	case c.MetaInfoBucketElements <= 0:
		return Config{}, configErrorf("meta-info bucket elements %d must be > 0", c.MetaInfoBucketElements)
	case c.NzBucketElements <= 0:
		return Config{}, configErrorf("nz bucket elements %d must be > 0", c.NzBucketElements)
	case c.NumWorkerContexts <= 0:
		return Config{}, configErrorf("number of worker contexts %d must be > 0", c.NumWorkerContexts)
	case c.BucketsPerZ <= 0:
		return Config{}, configErrorf("buckets per Z %d must be > 0", c.BucketsPerZ)
	case c.DoGradAPass && !c.SharedBuckets && c.MetaInfoBucketElementsGradA <= 0:
		return Config{}, configErrorf("GradA meta-info bucket elements must be > 0 without shared buckets")
	}

	if out.Logger == nil {
		out.Logger = NopLogger{}
	}
	return out, nil
}

func verifySplit(size int, split []int, name string) ([]int, error) {
	if len(split) == 0 {
		return nil, configErrorf("split of %s is empty", name)
	}
	if len(split) > size {
		return nil, configErrorf("there must be at most as many splits as the dimension %s (%d > %d)",
			name, len(split), size)
	}
	sorted := append([]int(nil), split...)
	sort.Ints(sorted)
	if sorted[0] != 0 {
		return nil, configErrorf("split of %s must start at 0, got %d", name, sorted[0])
	}
	for i, s := range sorted {
		if s >= size {
			return nil, configErrorf("an element in a split must be less than the dimension %s (%d >= %d)",
				name, s, size)
		}
		if i > 0 && s == sorted[i-1] {
			return nil, configErrorf("split of %s repeats offset %d", name, s)
		}
	}
	return sorted, nil
}

// zPartitions is the number of node groups along Z.
func (c *Config) zPartitions() int {
	return len(c.Splits.Z) * c.BucketsPerZ
}

// numBuckets is the number of nodes, one bucket each.
func (c *Config) numBuckets() int {
	return len(c.Splits.X) * len(c.Splits.Y) * c.zPartitions()
}

// pnID maps a tile coordinate to its node in row-major order.
func (c *Config) pnID(x, y, z int) int {
	zp := c.zPartitions()
	return x*len(c.Splits.Y)*zp + y*zp + z
}

// tileIndexFromPN is the inverse of pnID.
func (c *Config) tileIndexFromPN(pn int) sparse.TileIndex {
	zp := c.zPartitions()
	return sparse.TileIndex{
		Row:    pn / (len(c.Splits.Y) * zp),
		Column: (pn / zp) % len(c.Splits.Y),
		Z:      pn % zp,
	}
}

// interval returns the extent of partition i of a split over size elements.
func interval(split []int, i, size int) sparse.Interval {
	end := size
	if i+1 < len(split) {
		end = split[i+1]
	}
	return sparse.NewInterval(split[i], end)
}

// numZGrains is the number of Z grains the tile's Z split covers.
func (c *Config) numZGrains(index sparse.TileIndex) int {
	z := interval(c.Splits.Z, index.Z/c.BucketsPerZ, c.Shape.Z)
	return (z.Size() + c.Grains.Z - 1) / c.Grains.Z
}

// zExtent bounds the Z scale stored in any sub-group header.
func (c *Config) zExtent() int {
	return (c.Shape.Z + c.Grains.Z - 1) / c.Grains.Z * c.Grains.Z
}

// hierarchyRanges are the node range sizes the balancer searches in turn:
// within a Z group, within a column group, and across all nodes.
func (c *Config) hierarchyRanges() []int {
	zp := c.zPartitions()
	ranges := []int{zp, zp * len(c.Splits.Y), zp * len(c.Splits.Y) * len(c.Splits.X)}
	if c.ForceBucketSpills {
		ranges[1], ranges[2] = ranges[2], ranges[1]
	}
	return ranges
}

// transposed returns the configuration of the transposed problem.
func (c Config) transposed() Config {
	out := c
	out.Shape.X, out.Shape.Y = c.Shape.Y, c.Shape.X
	out.Grains.X, out.Grains.Y = c.Grains.Y, c.Grains.X
	out.Splits.X, out.Splits.Y = c.Splits.Y, c.Splits.X
	return out
}
