package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/db"
)

type stubStore struct {
	candidates   []db.Violation
	candidateErr error
	byHash       map[string]*db.Violation
}

func (s *stubStore) FindCandidates(_ context.Context, _ db.CandidateWindow) ([]db.Violation, error) {
	if s.candidateErr != nil {
		return nil, s.candidateErr
	}
	return s.candidates, nil
}

func (s *stubStore) FindByContentHash(_ context.Context, hash string) (*db.Violation, error) {
	if v, ok := s.byHash[hash]; ok {
		return v, nil
	}
	return nil, db.ErrNoRows
}

func TestCheck_NoCandidates(t *testing.T) {
	t.Parallel()

	service := NewService(&stubStore{}, DefaultCheckConfig(), zerolog.Nop())
	incoming := testViolation(10, nil)

	result, err := service.Check(context.Background(), &incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != MatchNone {
		t.Fatalf("expected no match against an empty corpus, got %v", result.Kind)
	}
}

func TestCheck_ContentHashFastPath(t *testing.T) {
	t.Parallel()

	existing := testViolation(1, nil)
	incoming := testViolation(0, nil) // unsaved record, same key fields
	store := &stubStore{byHash: map[string]*db.Violation{
		ContentHash(&incoming): &existing,
	}}

	service := NewService(store, DefaultCheckConfig(), zerolog.Nop())
	result, err := service.Check(context.Background(), &incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != MatchExact {
		t.Fatalf("identical fingerprint must classify as exact, got %v", result.Kind)
	}
	if result.Match == nil || result.Match.ViolationID != existing.ViolationID {
		t.Fatalf("expected the fingerprinted record as the match")
	}
}

func TestCheck_RetrievalErrorPropagates(t *testing.T) {
	t.Parallel()

	store := &stubStore{candidateErr: errors.New("connection refused")}
	service := NewService(store, DefaultCheckConfig(), zerolog.Nop())
	incoming := testViolation(10, func(v *db.Violation) {
		v.Description.EN = "Totally unrelated text so the hash misses"
	})

	if _, err := service.Check(context.Background(), &incoming); err == nil {
		t.Fatalf("retrieval failure must propagate, never degrade to 'no duplicates'")
	}
}

func TestCheck_PrefersExactOverSimilarity(t *testing.T) {
	t.Parallel()

	similar := testViolation(1, func(v *db.Violation) {
		v.ViolationUUID = "00000000-0000-0000-0000-0000000000s1"
		v.Deaths = 8
	})
	exact := testViolation(2, func(v *db.Violation) {
		v.ViolationUUID = "00000000-0000-0000-0000-0000000000e2"
	})
	store := &stubStore{candidates: []db.Violation{similar, exact}}

	service := NewService(store, DefaultCheckConfig(), zerolog.Nop())
	incoming := testViolation(0, nil)

	result, err := service.Check(context.Background(), &incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != MatchExact {
		t.Fatalf("expected exact match to win, got %v", result.Kind)
	}
	if result.Match.ViolationID != exact.ViolationID {
		t.Fatalf("expected the exact candidate selected, got id=%d", result.Match.ViolationID)
	}
}
