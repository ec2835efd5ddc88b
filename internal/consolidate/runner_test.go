package consolidate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/db"
)

type stubStore struct {
	corpus  []db.Violation
	applied []db.MergeApplication
	listErr error
}

func (s *stubStore) CountActive(_ context.Context) (int64, error) {
	return int64(len(s.corpus)), nil
}

func (s *stubStore) ListCorpus(_ context.Context, _ db.CorpusFilter) ([]db.Violation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.corpus, nil
}

func (s *stubStore) ApplyMerge(_ context.Context, app db.MergeApplication) error {
	s.applied = append(s.applied, app)
	return nil
}

func corpusTime() time.Time {
	return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
}

func corpusViolation(id int64, mutate func(*db.Violation)) db.Violation {
	lat, lon := 36.2021, 37.1343
	v := db.Violation{
		ViolationID:   id,
		ViolationUUID: fmt.Sprintf("uuid-%02d", id),
		Type:          db.TypeAirstrike,
		OccurredAt:    corpusTime(),
		Latitude:      &lat,
		Longitude:     &lon,
		LocationName:  db.LocalizedText{EN: "Aleppo", AR: "حلب"},
		Description: db.LocalizedText{
			EN: "An airstrike hit a residential building in the Salaheddine district of Aleppo killing several civilians",
		},
		Perpetrator:    db.PerpGovernment,
		CertaintyLevel: db.CertaintyProbable,
		CreatedAt:      corpusTime(),
		UpdatedAt:      corpusTime(),
	}
	v.SetCounts(db.CasualtyCounts{Deaths: 5, Injured: 12})
	if mutate != nil {
		mutate(&v)
	}
	return v
}

func TestRun_CorpusTooSmallAborts(t *testing.T) {
	t.Parallel()

	store := &stubStore{corpus: []db.Violation{corpusViolation(1, nil), corpusViolation(2, nil)}}
	runner := NewRunner(store, zerolog.Nop(), Options{MinCorpusSize: 10})

	_, err := runner.Run(context.Background())
	if !errors.Is(err, ErrCorpusTooSmall) {
		t.Fatalf("expected ErrCorpusTooSmall, got %v", err)
	}
	if len(store.applied) != 0 {
		t.Fatalf("aborted run must not mutate, applied %d merges", len(store.applied))
	}
}

func TestRun_DeletionCapAbortsBeforeMutation(t *testing.T) {
	t.Parallel()

	var corpus []db.Violation
	for i := int64(1); i <= 12; i++ {
		corpus = append(corpus, corpusViolation(i, nil))
	}
	store := &stubStore{corpus: corpus}
	runner := NewRunner(store, zerolog.Nop(), Options{MinCorpusSize: 2, MaxDeletionsPerRun: 3})

	_, err := runner.Run(context.Background())
	if !errors.Is(err, ErrDeletionCapExceeded) {
		t.Fatalf("expected ErrDeletionCapExceeded, got %v", err)
	}
	if len(store.applied) != 0 {
		t.Fatalf("aborted run must not mutate, applied %d merges", len(store.applied))
	}
}

func TestRun_DryRunPlansWithoutMutating(t *testing.T) {
	t.Parallel()

	store := &stubStore{corpus: []db.Violation{
		corpusViolation(1, nil),
		corpusViolation(2, nil),
		corpusViolation(3, func(v *db.Violation) {
			v.Type = db.TypeShelling
			v.Description = db.LocalizedText{EN: "Artillery shelling struck a market in the old city of Homs"}
		}),
	}}
	runner := NewRunner(store, zerolog.Nop(), Options{DryRun: true, MinCorpusSize: 2})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.applied) != 0 {
		t.Fatalf("dry run must not mutate, applied %d merges", len(store.applied))
	}
	if len(report.Clusters) != 1 {
		t.Fatalf("expected 1 planned cluster, got %d", len(report.Clusters))
	}
	if report.Clusters[0].Size != 2 {
		t.Fatalf("expected cluster of 2, got %d", report.Clusters[0].Size)
	}
	if report.DeletedRecords != 0 {
		t.Fatalf("dry run reported %d deletions", report.DeletedRecords)
	}
}

func TestRun_AppliesMergeWithVerifiedCanonical(t *testing.T) {
	t.Parallel()

	store := &stubStore{corpus: []db.Violation{
		corpusViolation(1, nil),
		corpusViolation(2, func(v *db.Violation) {
			v.Verified = true
		}),
	}}
	runner := NewRunner(store, zerolog.Nop(), Options{MinCorpusSize: 2})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected 1 applied merge, got %d", len(store.applied))
	}

	app := store.applied[0]
	if app.Canonical.ViolationID != 2 {
		t.Fatalf("verified record must be canonical, got id %d", app.Canonical.ViolationID)
	}
	if !app.Canonical.Verified {
		t.Fatal("canonical lost verified flag")
	}
	if len(app.Absorbed) != 1 || app.Absorbed[0].Violation.ViolationID != 1 {
		t.Fatalf("unexpected absorbed set: %+v", app.Absorbed)
	}
	if app.Absorbed[0].CompositeScore <= 0 {
		t.Fatal("absorbed record carries no similarity evidence")
	}
	if report.DeletedRecords != 1 {
		t.Fatalf("expected 1 deletion, got %d", report.DeletedRecords)
	}
}

func TestRun_BucketingSeparatesTypeAndDay(t *testing.T) {
	t.Parallel()

	store := &stubStore{corpus: []db.Violation{
		corpusViolation(1, nil),
		corpusViolation(2, func(v *db.Violation) {
			// Same text, same place, different day: never compared.
			v.OccurredAt = corpusTime().Add(72 * time.Hour)
		}),
	}}
	runner := NewRunner(store, zerolog.Nop(), Options{MinCorpusSize: 2})

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Clusters) != 0 {
		t.Fatalf("expected no clusters across bucket boundaries, got %d", len(report.Clusters))
	}
}

func TestReport_RenderTable(t *testing.T) {
	t.Parallel()

	report := &Report{
		DryRun:     true,
		CorpusSize: 4,
		Threshold:  0.85,
		Clusters: []ClusterReport{
			{Size: 2, CanonicalUUID: "uuid-01", AbsorbedUUIDs: []string{"uuid-02"}},
		},
	}

	rendered := report.RenderTable()
	if !strings.Contains(rendered, "uuid-01") {
		t.Fatalf("rendered table missing canonical uuid:\n%s", rendered)
	}
	if !strings.Contains(rendered, "dry run") {
		t.Fatalf("rendered table missing run mode:\n%s", rendered)
	}
}
