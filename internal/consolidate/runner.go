package consolidate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/dedup"
	"github.com/modullar/violations-tracker-backend/internal/text"
)

// Safety-gate violations abort the run before any mutation.
var (
	ErrCorpusTooSmall      = errors.New("corpus below minimum size, aborting consolidation")
	ErrDeletionCapExceeded = errors.New("planned deletions exceed per-run cap, aborting consolidation")
)

// Store is the persistence surface of the offline consolidation pass.
type Store interface {
	CountActive(ctx context.Context) (int64, error)
	ListCorpus(ctx context.Context, filter db.CorpusFilter) ([]db.Violation, error)
	ApplyMerge(ctx context.Context, app db.MergeApplication) error
}

// Options parameterizes one consolidation run.
type Options struct {
	DryRun              bool
	MinCorpusSize       int
	MaxDeletionsPerRun  int
	SimilarityThreshold float64
	// LocationRadiusMeters overrides the batch location agreement radius.
	LocationRadiusMeters float64
	// Weights overrides the criterion weighting when its sum is positive.
	Weights   dedup.Weights
	PreferNew bool
	Filter    db.CorpusFilter
}

// DefaultOptions returns conservative run parameters.
func DefaultOptions() Options {
	return Options{
		MinCorpusSize:       10,
		MaxDeletionsPerRun:  50,
		SimilarityThreshold: dedup.DefaultThresholds().BatchTotal,
	}
}

// Runner is the offline consolidation engine. It retrieves the corpus,
// buckets and clusters it, picks a representative per cluster, and applies
// the merges.
type Runner struct {
	store  Store
	logger zerolog.Logger
	opts   Options
}

func NewRunner(store Store, logger zerolog.Logger, opts Options) *Runner {
	defaults := DefaultOptions()
	if opts.MinCorpusSize <= 0 {
		opts.MinCorpusSize = defaults.MinCorpusSize
	}
	if opts.MaxDeletionsPerRun <= 0 {
		opts.MaxDeletionsPerRun = defaults.MaxDeletionsPerRun
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = defaults.SimilarityThreshold
	}
	return &Runner{
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

// Run executes one consolidation pass. In dry-run mode all scoring,
// clustering and selection happens but the apply phase is skipped. Clusters
// are disjoint by construction, so applying them sequentially (as done here)
// or in parallel touches each record at most once.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("consolidation runner is not initialized")
	}

	activeCount, err := r.store.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count corpus: %w", err)
	}
	if activeCount < int64(r.opts.MinCorpusSize) {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrCorpusTooSmall, activeCount, r.opts.MinCorpusSize)
	}

	corpus, err := r.store.ListCorpus(ctx, r.opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("list corpus: %w", err)
	}

	thresholds := dedup.DefaultThresholds()
	thresholds.BatchTotal = r.opts.SimilarityThreshold
	scorerCfg := dedup.BatchScorerConfig()
	if r.opts.LocationRadiusMeters > 0 {
		scorerCfg.LocationRadiusMeters = r.opts.LocationRadiusMeters
	}
	if r.opts.Weights.Sum() > 0 {
		scorerCfg.Weights = r.opts.Weights
	}
	scorer := dedup.NewScorer(scorerCfg)
	classifier := dedup.NewClassifier(thresholds)

	clusters := r.clusterBuckets(corpus, scorer, classifier)

	report := &Report{
		StartedAt:  time.Now().UTC(),
		DryRun:     r.opts.DryRun,
		CorpusSize: len(corpus),
		Threshold:  r.opts.SimilarityThreshold,
	}

	plannedDeletions := 0
	for _, cluster := range clusters {
		plannedDeletions += len(cluster.Members) - 1
	}
	if plannedDeletions > r.opts.MaxDeletionsPerRun {
		return nil, fmt.Errorf("%w: planned %d, cap %d", ErrDeletionCapExceeded, plannedDeletions, r.opts.MaxDeletionsPerRun)
	}

	for _, cluster := range clusters {
		canonical := dedup.SelectRepresentative(cluster.Members)
		absorbed := make([]*db.Violation, 0, len(cluster.Members)-1)
		for _, member := range cluster.Members {
			if member.ViolationID != canonical.ViolationID {
				absorbed = append(absorbed, member)
			}
		}

		clusterReport := ClusterReport{
			Size:          len(cluster.Members),
			CanonicalUUID: canonical.ViolationUUID,
			Breakdowns:    map[string]dedup.SimilarityResult{},
		}
		for _, member := range absorbed {
			clusterReport.AbsorbedUUIDs = append(clusterReport.AbsorbedUUIDs, member.ViolationUUID)
			if evidence, ok := cluster.Evidence[member.ViolationUUID]; ok {
				clusterReport.Breakdowns[member.ViolationUUID] = evidence
			}
		}

		// Every planned action is logged before it is executed.
		r.logger.Info().
			Bool("dry_run", r.opts.DryRun).
			Str("canonical_uuid", canonical.ViolationUUID).
			Strs("absorbed_uuids", clusterReport.AbsorbedUUIDs).
			Int("cluster_size", len(cluster.Members)).
			Msg("planned cluster merge")

		if !r.opts.DryRun {
			if err := r.applyCluster(ctx, canonical, absorbed, cluster.Evidence); err != nil {
				return report, fmt.Errorf("apply cluster for %s: %w", canonical.ViolationUUID, err)
			}
			report.MergedClusters++
			report.DeletedRecords += len(absorbed)
		}

		report.Clusters = append(report.Clusters, clusterReport)
	}

	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// applyCluster merges the absorbed members into the canonical record and
// applies the whole unit (update + audit rows + deletions) in one
// transaction: a failed apply never leaves duplicates deleted.
func (r *Runner) applyCluster(
	ctx context.Context,
	canonical *db.Violation,
	absorbed []*db.Violation,
	evidence map[string]dedup.SimilarityResult,
) error {
	duplicates := make([]db.Violation, 0, len(absorbed))
	for _, member := range absorbed {
		duplicates = append(duplicates, *member)
	}

	dedup.Merge(canonical, duplicates, dedup.MergePolicy{PreferNew: r.opts.PreferNew}, time.Now().UTC(), "consolidation")
	canonical.ContentHash = dedup.ContentHash(canonical)

	app := db.MergeApplication{
		Canonical: canonical,
		MergedBy:  "consolidation",
	}
	for _, member := range absorbed {
		absorption := db.MergeAbsorption{Violation: member}
		if result, ok := evidence[member.ViolationUUID]; ok {
			absorption.CompositeScore = result.Total
			absorption.Breakdown = result.BreakdownJSON()
		}
		app.Absorbed = append(app.Absorbed, absorption)
	}
	return r.store.ApplyMerge(ctx, app)
}

// clusterBuckets groups the corpus by a cheap composite key before pairwise
// scoring, bounding the work well below O(n²) over the whole dataset. Records
// that differ in their bucketing key are never compared.
func (r *Runner) clusterBuckets(corpus []db.Violation, scorer *dedup.Scorer, classifier *dedup.Classifier) []dedup.Cluster {
	buckets := make(map[string][]db.Violation)
	for _, violation := range corpus {
		key := bucketKey(&violation)
		buckets[key] = append(buckets[key], violation)
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var clusters []dedup.Cluster
	for _, key := range keys {
		records := buckets[key]
		if len(records) < 2 {
			continue
		}
		clusters = append(clusters, dedup.BuildClusters(records, scorer, classifier)...)
	}
	return clusters
}

const bucketDescriptionPrefix = 24

// bucketKey is the composite grouping key: type, day, perpetrator, coarse
// coordinates, normalized description prefix.
func bucketKey(v *db.Violation) string {
	location := "noloc"
	if v.HasCoordinates() {
		// One decimal is an ~11km cell; generous enough that the 5km radius
		// test still decides, tight enough to keep buckets small.
		location = fmt.Sprintf("%.1f,%.1f", *v.Latitude, *v.Longitude)
	}

	prefix := text.Normalize(v.Description.EN)
	if prefix == "" {
		prefix = text.Normalize(v.Description.AR)
	}
	runes := []rune(prefix)
	if len(runes) > bucketDescriptionPrefix {
		runes = runes[:bucketDescriptionPrefix]
	}

	return fmt.Sprintf("%s|%s|%s|%s|%s",
		v.Type,
		v.OccurredAt.UTC().Format("2006-01-02"),
		v.Perpetrator,
		location,
		string(runes),
	)
}
