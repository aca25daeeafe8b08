package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/alexshuang/poplibs-sub002/internal/bucketfile"
	"github.com/alexshuang/poplibs-sub002/popsparse"
)

type partitionOptions struct {
	configPath string
	dataType   string
	output     string

	rows, cols, batch         int
	xSplits, ySplits, zSplits int
	density                   float64
	seed                      int64

	metaInfo, metaInfoGradA, nz int
	workers                     int

	gradA, gradW, shared bool
	forceSpills, speed   bool
	parallel             bool
}

func newPartitionCommand() *cobra.Command {
	o := &partitionOptions{}
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Partition a random sparse matrix and verify the encoding",
		Long: `Generates a seeded random sparse matrix, partitions it over the nodes,
prints the occupancy of every node bucket and decodes the encoded buckets to
check that they reproduce the matrix.

With --config the problem is read from a YAML file and only the flags given
on the command line override it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config(cmd.Flags())
			if err != nil {
				return err
			}
			switch o.dataType {
			case "half":
				return runPartition[float16.Float16](cmd.OutOrStdout(), cfg, o)
			case "float":
				return runPartition[float32](cmd.OutOrStdout(), cfg, o)
			case "double":
				return runPartition[float64](cmd.OutOrStdout(), cfg, o)
			default:
				return errors.Errorf("unknown data type %q (half, float, double)", o.dataType)
			}
		},
	}

	o.addFlags(cmd.Flags())
	return cmd
}

func (o *partitionOptions) addFlags(f *pflag.FlagSet) {
	f.StringVar(&o.configPath, "config", "", "YAML file with the partitioner configuration")
	f.StringVar(&o.dataType, "type", "float", "Non-zero value type: half, float or double")
	f.StringVarP(&o.output, "output", "o", "", "Write the encoded buckets to a SafeTensors file")
	f.IntVar(&o.rows, "rows", 256, "Rows of the sparse matrix (X)")
	f.IntVar(&o.cols, "cols", 256, "Columns of the sparse matrix (Y)")
	f.IntVar(&o.batch, "batch", 16, "Columns of the dense operand (Z)")
	f.IntVar(&o.xSplits, "x-splits", 4, "Number of row partitions")
	f.IntVar(&o.ySplits, "y-splits", 4, "Number of column partitions")
	f.IntVar(&o.zSplits, "z-splits", 1, "Number of Z partitions")
	f.Float64Var(&o.density, "density", 0.05, "Fraction of non-zero elements")
	f.Int64Var(&o.seed, "seed", 1, "Random seed for the matrix")
	f.IntVar(&o.metaInfo, "meta-info", 2048, "Meta-info bucket elements per node")
	f.IntVar(&o.metaInfoGradA, "meta-info-grad-a", 2048, "GradA meta-info bucket elements per node")
	f.IntVar(&o.nz, "nz", 1024, "Non-zero bucket elements per node")
	f.IntVar(&o.workers, "workers", 6, "Worker contexts per node")
	f.BoolVar(&o.gradA, "grad-a", false, "Encode the GradA pass")
	f.BoolVar(&o.gradW, "grad-w", false, "Encode the GradW worker tables")
	f.BoolVar(&o.shared, "shared", false, "GradA shares the forward meta-info bucket")
	f.BoolVar(&o.forceSpills, "force-spills", false, "Move every row out of its home bucket")
	f.BoolVar(&o.speed, "speed", true, "Place overflow on the closest node rather than the least occupied")
	f.BoolVar(&o.parallel, "parallel", false, "Encode node buckets concurrently")
}

// config builds the partitioner configuration. Without a config file every
// flag applies; with one, only flags set on the command line override it.
func (o *partitionOptions) config(flags *pflag.FlagSet) (popsparse.Config, error) {
	cfg := popsparse.DefaultConfig()
	fromFile := o.configPath != ""
	if fromFile {
		data, err := os.ReadFile(o.configPath)
		if err != nil {
			return cfg, errors.Wrap(err, "reading config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing %s", o.configPath)
		}
	}
	apply := func(name string) bool { return !fromFile || flags.Changed(name) }

	if apply("rows") {
		cfg.Shape.X = o.rows
	}
	if apply("cols") {
		cfg.Shape.Y = o.cols
	}
	if apply("batch") {
		cfg.Shape.Z = o.batch
	}
	if apply("x-splits") {
		cfg.Splits.X = popsparse.UniformSplits(cfg.Shape.X, o.xSplits, cfg.Grains.X)
	}
	if apply("y-splits") {
		cfg.Splits.Y = popsparse.UniformSplits(cfg.Shape.Y, o.ySplits, cfg.Grains.Y)
	}
	if apply("z-splits") {
		cfg.Splits.Z = popsparse.UniformSplits(cfg.Shape.Z, o.zSplits, cfg.Grains.Z)
	}
	if apply("meta-info") {
		cfg.MetaInfoBucketElements = o.metaInfo
	}
	if apply("meta-info-grad-a") {
		cfg.MetaInfoBucketElementsGradA = o.metaInfoGradA
	}
	if apply("nz") {
		cfg.NzBucketElements = o.nz
	}
	if apply("workers") {
		cfg.NumWorkerContexts = o.workers
	}
	if apply("grad-a") {
		cfg.DoGradAPass = o.gradA
	}
	if apply("grad-w") {
		cfg.DoGradWPass = o.gradW
	}
	if apply("shared") {
		cfg.SharedBuckets = o.shared
	}
	if apply("force-spills") {
		cfg.ForceBucketSpills = o.forceSpills
	}
	if apply("speed") {
		cfg.OptimiseForSpeed = o.speed
	}
	if o.parallel {
		cfg.Parallel = popsparse.DefaultParallelConfig()
	}
	cfg.Logger = popsparse.NewKlogLogger()
	return cfg, nil
}

// randomMatrix draws values on a 1/8 grid in [-128, 128) so that every type,
// half included, represents them exactly.
func randomMatrix[T popsparse.Scalar](rows, cols int, density float64, seed int64) *popsparse.COO[T] {
	rng := rand.New(rand.NewSource(seed))
	var entries []popsparse.Entry[T]
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if rng.Float64() >= density {
				continue
			}
			v := float64(rng.Intn(2048)-1024) / 8
			entries = append(entries, popsparse.Entry[T]{Row: r, Column: c, Value: popsparse.FromFloat64[T](v)})
		}
	}
	return popsparse.NewCOOFromEntries(rows, cols, entries)
}

func runPartition[T popsparse.Scalar](out io.Writer, cfg popsparse.Config, o *partitionOptions) error {
	p, err := popsparse.New[T](cfg)
	if err != nil {
		return err
	}
	cfg = p.Config()
	m := randomMatrix[T](cfg.Shape.X, cfg.Shape.Y, o.density, o.seed)
	fmt.Fprintf(out, "%dx%d matrix, %d non-zeros, %d nodes, %s\n",
		cfg.Shape.X, cfg.Shape.Y, m.NumNonZeros(), p.NumBuckets(), p.DataType())

	buckets, err := p.CreateBuckets(m)
	if err != nil {
		return errors.WithMessage(err, "creating buckets")
	}
	printStats(out, p.Stats(buckets), cfg)

	fwd, err := p.OverflowInfoForFwd(buckets)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "overflow fwd %v\n", fwd)
	if cfg.DoGradAPass {
		gradA, err := p.OverflowInfoForGradA(buckets)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "overflow grad-a %v\n", gradA)
	}
	if cfg.DoGradWPass {
		gradW, err := p.OverflowInfoForGradW(buckets)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "overflow grad-w %v\n", gradW)
	}

	metaInfo, nz, err := p.EncodeAll(buckets)
	if err != nil {
		return errors.WithMessage(err, "encoding buckets")
	}
	fmt.Fprintf(out, "encoded %d meta-info elements, %d non-zero elements\n", len(metaInfo), len(nz))

	decoded, err := p.DecodeCSR(metaInfo, nz)
	if err != nil {
		return errors.WithMessage(err, "decoding buckets")
	}
	want, err := popsparse.Dense[T](m)
	if err != nil {
		return err
	}
	got, err := popsparse.Dense[T](decoded)
	if err != nil {
		return err
	}
	if !mat.EqualApprox(got, want, 0) {
		return errors.New("decoded matrix differs from the input")
	}
	fmt.Fprintln(out, "round trip verified")

	if o.output != "" {
		if err := bucketfile.WriteFile(o.output, bucketfile.New(cfg, metaInfo, nz)); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", o.output)
	}
	return nil
}

func printStats(out io.Writer, stats []popsparse.BucketStats, cfg popsparse.Config) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tSUB-GROUPS\tMETA-INFO\tNZ")
	for _, s := range stats {
		fmt.Fprintf(w, "%d\t%d\t%d/%d\t%d/%d\n", s.Node, s.SubGroups,
			s.MetaInfoElements, cfg.MetaInfoBucketElements, s.NzElements, cfg.NzBucketElements)
	}
	w.Flush()
}
