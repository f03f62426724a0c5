// Package forest composes the sampler+tree ensemble into the library's
// public surface: update, score and its generic/attribution/density/impute
// variants, and extrapolation, fanning work out across trees sequentially
// or via a worker pool depending on ParallelEnabled.
package forest

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/rcforest/pkg/rcf/pointstore"
	"github.com/hed1ad/rcforest/pkg/rcf/rcferrors"
	"github.com/hed1ad/rcforest/pkg/rcf/rngstream"
	"github.com/hed1ad/rcforest/pkg/rcf/sampler"
	"github.com/hed1ad/rcforest/pkg/rcf/samplertree"
	"github.com/hed1ad/rcforest/pkg/rcf/tree"
	"github.com/hed1ad/rcforest/pkg/rcf/visitor"
)

// Config bundles the parameters of create_forest. There is a single Go
// representation of the tree/node arena regardless of dimensions, capacity
// or number of trees — the Rust Tiny/Small/Medium/Large specializations
// trade array-element width for capacity, a micro-optimization Go's slice
// types don't need; NodeStore and PointStore already size their arenas from
// Config at construction, so one Forest type serves every scale.
type Config struct {
	Dimensions               int
	ShingleSize              int
	Capacity                 int
	NumberOfTrees            int
	RandomSeed               uint64
	ParallelEnabled          bool
	InternalShingling        bool
	InternalRotation         bool
	TimeDecay                float64
	InitialAcceptFraction    float64
	BoundingBoxCacheFraction float64

	// OutputAfter gates Score/GenericScore: a forest with fewer than
	// OutputAfter entries returns 0 rather than a score built from too few
	// samples to be meaningful. Zero selects the reference default of
	// 1 + Capacity/4.
	OutputAfter int

	// Logger receives construction and periodic size diagnostics. Nil (the
	// zero value) falls back to zerolog.Nop(), so an uninstrumented caller
	// gets silent discard rather than a nil-writer panic.
	Logger *zerolog.Logger
}

// Forest is the ensemble: one shared, reference-counted point store and
// NumberOfTrees independent sampler+tree units, each with its own ChaCha20
// stream derived from Config.RandomSeed so a fixed seed and a fixed,
// sequential (ParallelEnabled=false) update sequence reproduce bit-identical
// scores.
type Forest struct {
	cfg         Config
	points      *pointstore.PointStore
	units       []*samplertree.SamplerTree
	entriesSeen uint64
	lastPoint   []float64 // most recently ingested full (shingled) point, for Extrapolate
	log         zerolog.Logger
}

// logger returns cfg.Logger, or zerolog's no-op logger if the caller left
// it unset.
func (cfg Config) logger() zerolog.Logger {
	if cfg.Logger != nil {
		return *cfg.Logger
	}
	return zerolog.Nop()
}

// New builds an empty forest per cfg.
func New(cfg Config) (*Forest, error) {
	if cfg.Dimensions <= 0 || cfg.Capacity <= 0 || cfg.NumberOfTrees <= 0 {
		return nil, rcferrors.InvalidArgumentf("forest.New: dimensions=%d capacity=%d numberOfTrees=%d must be positive", cfg.Dimensions, cfg.Capacity, cfg.NumberOfTrees)
	}
	if cfg.ShingleSize <= 0 || cfg.Dimensions%cfg.ShingleSize != 0 {
		return nil, rcferrors.InvalidArgumentf("forest.New: shingleSize %d must divide dimensions %d", cfg.ShingleSize, cfg.Dimensions)
	}
	if cfg.InternalRotation && !cfg.InternalShingling {
		return nil, rcferrors.InvalidArgumentf("forest.New: internal rotation requires internal shingling")
	}
	if cfg.OutputAfter <= 0 {
		cfg.OutputAfter = 1 + cfg.Capacity/4
	}

	var psOpts []pointstore.Option
	if cfg.InternalShingling {
		psOpts = append(psOpts, pointstore.WithInternalShingling(cfg.Dimensions/cfg.ShingleSize))
		if cfg.InternalRotation {
			psOpts = append(psOpts, pointstore.WithInternalRotation())
		}
	}
	pointStoreCapacity := cfg.Capacity*cfg.NumberOfTrees + 1
	if pointStoreCapacity < 2*cfg.Capacity {
		pointStoreCapacity = 2 * cfg.Capacity
	}
	points, err := pointstore.New(cfg.Dimensions, cfg.ShingleSize, pointStoreCapacity, psOpts...)
	if err != nil {
		return nil, err
	}

	root := rngstream.New(cfg.RandomSeed)
	units := make([]*samplertree.SamplerTree, cfg.NumberOfTrees)
	for i := 0; i < cfg.NumberOfTrees; i++ {
		seed := root.NextUint64()
		s, err := sampler.New(cfg.Capacity, cfg.TimeDecay, cfg.InitialAcceptFraction, seed)
		if err != nil {
			return nil, err
		}
		t, err := tree.New(cfg.Capacity, cfg.Dimensions, cfg.BoundingBoxCacheFraction, seed, points.GetCopy)
		if err != nil {
			return nil, err
		}
		units[i] = samplertree.New(s, t)
	}

	log := cfg.logger()
	log.Info().
		Int("dimensions", cfg.Dimensions).
		Int("shingle_size", cfg.ShingleSize).
		Int("capacity", cfg.Capacity).
		Int("number_of_trees", cfg.NumberOfTrees).
		Bool("parallel_enabled", cfg.ParallelEnabled).
		Msg("forest constructed")

	return &Forest{cfg: cfg, points: points, units: units, log: log}, nil
}

// Dimensions, ShingleSize, EntriesSeen and IsInternalShinglingEnabled expose
// the forest's static configuration and running state.
func (f *Forest) Dimensions() int                     { return f.cfg.Dimensions }
func (f *Forest) ShingleSize() int                     { return f.cfg.ShingleSize }
func (f *Forest) EntriesSeen() uint64                  { return f.entriesSeen }
func (f *Forest) IsInternalShinglingEnabled() bool     { return f.cfg.InternalShingling }
func (f *Forest) NumberOfTrees() int                   { return f.cfg.NumberOfTrees }

// Size approximates the forest's resident memory footprint in point-value
// units: the point store's live points plus each tree's resident node slots.
func (f *Forest) Size() int {
	total := f.points.Size() * f.cfg.Dimensions
	for _, u := range f.units {
		total += u.Tree.Size()
	}
	return total
}

func (f *Forest) validatePoint(point []float64) error {
	expected := f.cfg.Dimensions
	if f.cfg.InternalShingling {
		expected = f.cfg.Dimensions / f.cfg.ShingleSize
	}
	if len(point) != expected {
		return rcferrors.InvalidArgumentf("forest: point must have %d coordinates, got %d", expected, len(point))
	}
	for _, v := range point {
		if v != v || v > 1e300 || v < -1e300 {
			return rcferrors.InvalidArgumentf("forest: non-finite coordinate")
		}
	}
	return nil
}

// Update ingests one point (timestamp is accepted for interface parity with
// the external contract but the engine's only notion of time is arrival
// order). It returns false while an internal-shingling window is still
// warming up and no tree has been touched.
func (f *Forest) Update(point []float64, _ timestamp) (bool, error) {
	if err := f.validatePoint(point); err != nil {
		return false, err
	}
	ref, err := f.points.Add(point)
	if err != nil {
		return false, err
	}
	if ref == pointstore.NoneRef {
		return false, nil
	}

	// Each tree's own Update only touches its own sampler/node store, so the
	// fan-out itself can run in parallel; the shared point store's reference
	// counts are only ever adjusted afterward, on this single goroutine, the
	// same separation Rust draws between the parallel per-tree pass and the
	// sequential adjust_count.
	results := make([]samplertree.UpdateResult, len(f.units))
	if f.cfg.ParallelEnabled {
		var g errgroup.Group
		for i, u := range f.units {
			i, u := i, u
			g.Go(func() error {
				res, err := u.Update(ref)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return false, err
		}
	} else {
		for i, u := range f.units {
			res, err := u.Update(ref)
			if err != nil {
				return false, err
			}
			results[i] = res
		}
	}

	for _, res := range results {
		if res.AddedRef != samplertree.NoRef {
			if err := f.points.Inc(res.AddedRef); err != nil {
				return false, err
			}
		}
		if res.DeletedRef != samplertree.NoRef {
			if err := f.points.Dec(res.DeletedRef); err != nil {
				return false, err
			}
		}
	}

	full, err := f.points.GetCopy(ref)
	if err != nil {
		return false, err
	}
	f.lastPoint = full

	if err := f.points.Dec(ref); err != nil {
		return false, err
	}
	f.entriesSeen++
	if f.entriesSeen%10000 == 0 {
		f.log.Debug().
			Uint64("entries_seen", f.entriesSeen).
			Int("resident_size", f.Size()).
			Msg("forest checkpoint")
	}
	return true, nil
}

// timestamp is an arrival-order marker, accepted but not interpreted: the
// engine orders purely by call sequence, matching the update contract's
// "timestamp is accepted for external systems' bookkeeping, not consulted."
type timestamp = uint64

// perTree runs fn across every sampler+tree unit, honoring ParallelEnabled,
// and returns the per-unit results in tree order.
func perTree[R any](f *Forest, fn func(u *samplertree.SamplerTree) (R, error)) ([]R, error) {
	out := make([]R, len(f.units))
	if !f.cfg.ParallelEnabled {
		for i, u := range f.units {
			r, err := fn(u)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	g, _ := errgroup.WithContext(context.Background())
	for i, u := range f.units {
		i, u := i, u
		g.Go(func() error {
			r, err := fn(u)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Score returns the ensemble-averaged anomaly score, using the standard
// score_seen/score_unseen/damp/normalize building blocks. Returns 0 while
// the forest holds fewer than Config.OutputAfter entries.
func (f *Forest) Score(point []float64) (float64, error) {
	return f.GenericScore(point, nil)
}

// ScoreBuildingBlocks lets a caller substitute alternative score_seen,
// score_unseen, damp and normalizer functions, matching generic_score's
// external contract. A nil field falls back to the standard function.
type ScoreBuildingBlocks = visitor.GenericScoreBuildingBlocks

// GenericScore runs Score with caller-supplied building blocks; a nil
// blocks argument uses the standard ones.
func (f *Forest) GenericScore(point []float64, blocks *ScoreBuildingBlocks) (float64, error) {
	if err := f.validatePoint(point); err != nil {
		return 0, err
	}
	if f.entriesSeen < uint64(f.cfg.OutputAfter) {
		return 0, nil
	}
	scores, err := perTree(f, func(u *samplertree.SamplerTree) (float64, error) {
		v := visitor.NewGenericAnomalyScore(u.Tree.Mass(), blocks)
		if err := u.Tree.Traverse(point, v); err != nil {
			return 0, err
		}
		return v.Result(), nil
	})
	if err != nil {
		return 0, err
	}
	return average(scores), nil
}

// Attribution returns the ensemble-averaged DiVector whose Total equals
// Score(point) to within floating-point rounding once at least
// Config.OutputAfter entries have been seen. Attribution is not gated by
// OutputAfter, so before that point it still traverses the trees while Score
// returns 0.
func (f *Forest) Attribution(point []float64) (*visitor.DiVector, error) {
	if err := f.validatePoint(point); err != nil {
		return nil, err
	}
	vecs, err := perTree(f, func(u *samplertree.SamplerTree) (*visitor.DiVector, error) {
		v := visitor.NewAttribution(f.cfg.Dimensions, u.Tree.Mass())
		if err := u.Tree.Traverse(point, v); err != nil {
			return nil, err
		}
		return v.Result(), nil
	})
	if err != nil {
		return nil, err
	}
	sum := visitor.NewDiVector(f.cfg.Dimensions)
	for _, v := range vecs {
		if err := sum.Add(v); err != nil {
			return nil, err
		}
	}
	sum.ScaleMut(1 / float64(len(vecs)))
	return sum, nil
}

// Density returns the ensemble-averaged local density at point.
func (f *Forest) Density(point []float64) (float64, error) {
	if err := f.validatePoint(point); err != nil {
		return 0, err
	}
	vals, err := perTree(f, func(u *samplertree.SamplerTree) (float64, error) {
		v := visitor.NewDensity(f.cfg.Dimensions, u.Tree.Mass())
		if err := u.Tree.Traverse(point, v); err != nil {
			return 0, err
		}
		return v.DensityResult(), nil
	})
	if err != nil {
		return 0, err
	}
	return average(vals), nil
}

// DirectionalDensity returns the ensemble-averaged per-dimension DiVector
// of mass imbalance around point.
func (f *Forest) DirectionalDensity(point []float64) (*visitor.DiVector, error) {
	if err := f.validatePoint(point); err != nil {
		return nil, err
	}
	vecs, err := perTree(f, func(u *samplertree.SamplerTree) (*visitor.DiVector, error) {
		v := visitor.NewDensity(f.cfg.Dimensions, u.Tree.Mass())
		if err := u.Tree.Traverse(point, v); err != nil {
			return nil, err
		}
		return v.DirectionalDensity(), nil
	})
	if err != nil {
		return nil, err
	}
	sum := visitor.NewDiVector(f.cfg.Dimensions)
	for _, v := range vecs {
		if err := sum.Add(v); err != nil {
			return nil, err
		}
	}
	sum.ScaleMut(1 / float64(len(vecs)))
	return sum, nil
}

// DisplacementScore returns the ensemble-averaged mass-only displacement.
func (f *Forest) DisplacementScore(point []float64) (float64, error) {
	if err := f.validatePoint(point); err != nil {
		return 0, err
	}
	vals, err := perTree(f, func(u *samplertree.SamplerTree) (float64, error) {
		v := visitor.NewDensity(f.cfg.Dimensions, u.Tree.Mass())
		if err := u.Tree.Traverse(point, v); err != nil {
			return 0, err
		}
		return v.DisplacementResult(), nil
	})
	if err != nil {
		return 0, err
	}
	return average(vals), nil
}

// ConditionalField returns one completion point per tree for the missing
// positions, each drawn by that tree's own impute descent.
func (f *Forest) ConditionalField(positions []int, point []float64, centrality float64) ([][]float64, error) {
	results, err := perTree(f, func(u *samplertree.SamplerTree) ([]float64, error) {
		filled, _, _, err := visitor.ImputeMissingValues(u.Tree, positions, point, centrality)
		return filled, err
	})
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// ImputeMissingValues fills positions in point with the coordinate-wise
// median across the ensemble's conditional-field proposals, the
// centrality=1 (deterministic nearest-neighbor) case.
func (f *Forest) ImputeMissingValues(positions []int, point []float64) ([]float64, error) {
	proposals, err := f.ConditionalField(positions, point, 1.0)
	if err != nil {
		return nil, err
	}
	if len(proposals) == 0 {
		return nil, rcferrors.InvalidStatef("forest.ImputeMissingValues: no tree produced a proposal")
	}
	answer := make([]float64, len(point))
	copy(answer, point)
	column := make([]float64, len(proposals))
	for _, pos := range positions {
		for i, p := range proposals {
			column[i] = p[pos]
		}
		answer[pos] = median(column)
	}
	return answer, nil
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

// Extrapolate synthesizes look_ahead further shingle blocks beyond the most
// recently ingested point, one base-dimension block at a time: each block
// is imputed as if it were the newest (currently missing) slot of a
// fictitious shingled point built from the trailing history.
func (f *Forest) Extrapolate(lookAhead int) ([]float64, error) {
	if !f.cfg.InternalShingling || f.cfg.ShingleSize <= 1 {
		return nil, rcferrors.InvalidStatef("forest.Extrapolate: requires internal shingling with shingle size > 1")
	}
	if f.entriesSeen == 0 {
		return nil, rcferrors.InvalidStatef("forest.Extrapolate: forest has not ingested any points")
	}

	baseDim := f.cfg.Dimensions / f.cfg.ShingleSize
	out := make([]float64, 0, lookAhead*baseDim)
	current := append([]float64(nil), f.lastPoint...)
	for step := 0; step < lookAhead; step++ {
		missing := make([]int, baseDim)
		for i := range missing {
			missing[i] = (f.cfg.ShingleSize-1)*baseDim + i
		}
		query := append([]float64(nil), current[baseDim:]...)
		query = append(query, make([]float64, baseDim)...)
		filled, err := f.ImputeMissingValues(missing, query)
		if err != nil {
			return nil, err
		}
		block := filled[missing[0] : missing[0]+baseDim]
		out = append(out, block...)
		current = filled
	}
	return out, nil
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
