package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/modullar/violations-tracker-backend/internal/db"
)

// ErrAmbiguousDuplicates is returned when the creation path finds a
// similarity-class duplicate but the caller's policy forbids automatic
// merging. The record needs human review before it can be created.
var ErrAmbiguousDuplicates = errors.New("ambiguous duplicates found, needs review")

// Store is the persistence surface the creation-time check needs.
type Store interface {
	FindCandidates(ctx context.Context, window db.CandidateWindow) ([]db.Violation, error)
	FindByContentHash(ctx context.Context, contentHash string) (*db.Violation, error)
}

// CheckConfig tunes the synchronous creation-path check.
type CheckConfig struct {
	Scorer     ScorerConfig
	Thresholds Thresholds
	// WindowSpan is the candidate retrieval half-window around occurredAt.
	WindowSpan time.Duration
	// CandidateLimit bounds the number of records scored per check.
	CandidateLimit int
}

// DefaultCheckConfig returns the creation operating point: tight 100 m
// radius, ±12h retrieval window.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		Scorer:         CreationScorerConfig(),
		Thresholds:     DefaultThresholds(),
		WindowSpan:     12 * time.Hour,
		CandidateLimit: 50,
	}
}

// CheckResult is the creation-path verdict against the existing corpus.
type CheckResult struct {
	Kind   MatchKind
	Match  *db.Violation
	Result SimilarityResult
}

// Service runs the blocking duplicate check inside the record-creation
// request. The check must complete before the create-or-merge decision; a
// retrieval error is propagated, never downgraded to "assume no duplicates".
type Service struct {
	store      Store
	scorer     *Scorer
	classifier *Classifier
	cfg        CheckConfig
	logger     zerolog.Logger
}

func NewService(store Store, cfg CheckConfig, logger zerolog.Logger) *Service {
	if cfg.WindowSpan <= 0 {
		cfg.WindowSpan = 12 * time.Hour
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	return &Service{
		store:      store,
		scorer:     NewScorer(cfg.Scorer),
		classifier: NewClassifier(cfg.Thresholds),
		cfg:        cfg,
		logger:     logger,
	}
}

// Check scores the incoming record against a bounded candidate set and
// returns the strongest match. Exact matches outrank similarity matches;
// among equals the higher composite total wins.
func (s *Service) Check(ctx context.Context, incoming *db.Violation) (CheckResult, error) {
	if s == nil || s.store == nil {
		return CheckResult{}, fmt.Errorf("dedup service is not initialized")
	}
	if incoming == nil {
		return CheckResult{}, fmt.Errorf("incoming violation is nil")
	}

	// Fingerprint fast path: an identical-content record already exists.
	if hash := ContentHash(incoming); hash != "" {
		existing, err := s.store.FindByContentHash(ctx, hash)
		switch {
		case err == nil && existing != nil && existing.ViolationID != incoming.ViolationID:
			result := s.scorer.Score(existing, incoming)
			s.logDecision(incoming, existing, MatchExact, result, "content_hash")
			return CheckResult{Kind: MatchExact, Match: existing, Result: result}, nil
		case err != nil && !db.IsNoRows(err):
			return CheckResult{}, fmt.Errorf("content hash lookup: %w", err)
		}
	}

	candidates, err := s.store.FindCandidates(ctx, db.CandidateWindow{
		Type:   incoming.Type,
		Center: incoming.OccurredAt,
		Span:   s.cfg.WindowSpan,
		Limit:  s.cfg.CandidateLimit,
	})
	if err != nil {
		return CheckResult{}, fmt.Errorf("candidate retrieval: %w", err)
	}

	best := CheckResult{Kind: MatchNone}
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.ViolationID == incoming.ViolationID {
			continue
		}

		result := s.scorer.Score(candidate, incoming)
		kind := s.classifier.ClassifyCreation(result, candidate, incoming)
		if kind == MatchNone {
			continue
		}

		if kind > best.Kind || (kind == best.Kind && result.Total > best.Result.Total) {
			best = CheckResult{Kind: kind, Match: candidate, Result: result}
		}
	}

	if best.Kind != MatchNone {
		s.logDecision(incoming, best.Match, best.Kind, best.Result, "scored")
	}
	return best, nil
}

func (s *Service) logDecision(incoming, match *db.Violation, kind MatchKind, result SimilarityResult, signal string) {
	s.logger.Info().
		Str("incoming_uuid", incoming.ViolationUUID).
		Str("match_uuid", match.ViolationUUID).
		Str("match_kind", kind.String()).
		Str("signal", signal).
		Float64("total", result.Total).
		Float64("description_similarity", result.DescriptionSimilarity).
		Bool("location_match", result.LocationMatch).
		Msg("creation-time duplicate detected")
}
