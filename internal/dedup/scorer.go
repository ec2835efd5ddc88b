package dedup

import (
	"encoding/json"
	"math"
	"time"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/geo"
	"github.com/modullar/violations-tracker-backend/internal/text"
)

// Weights distributes the composite score across criteria. They must sum to 1.
type Weights struct {
	Type        float64
	Time        float64
	Location    float64
	Perpetrator float64
	Casualties  float64
	Description float64
}

// DefaultWeights returns the standard criterion weighting.
func DefaultWeights() Weights {
	return Weights{
		Type:        0.30,
		Time:        0.20,
		Location:    0.20,
		Perpetrator: 0.10,
		Casualties:  0.10,
		Description: 0.10,
	}
}

// Sum adds all weights; a valid configuration sums to 1.0.
func (w Weights) Sum() float64 {
	return w.Type + w.Time + w.Location + w.Perpetrator + w.Casualties + w.Description
}

// ScorerConfig is one operating point of the similarity scorer. The batch
// pass and the synchronous creation pass run with different radii and
// windows.
type ScorerConfig struct {
	Weights              Weights
	TimeWindow           time.Duration
	LocationRadiusMeters float64
	NameSimilarityFloor  float64
	CrossLanguagePenalty float64
}

// BatchScorerConfig is the offline consolidation operating point.
func BatchScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights:              DefaultWeights(),
		TimeWindow:           24 * time.Hour,
		LocationRadiusMeters: 5000,
		NameSimilarityFloor:  0.8,
		CrossLanguagePenalty: 0.7,
	}
}

// CreationScorerConfig is the synchronous exact-match operating point used
// during record creation.
func CreationScorerConfig() ScorerConfig {
	cfg := BatchScorerConfig()
	cfg.LocationRadiusMeters = 100
	return cfg
}

// SimilarityResult is the per-criterion breakdown plus the weighted total.
// It is ephemeral: computed, used for a decision, optionally serialized into
// the merge audit trail, never stored on the record itself.
type SimilarityResult struct {
	SameType              bool     `json:"same_type"`
	WithinTimeWindow      bool     `json:"within_time_window"`
	LocationMatch         bool     `json:"location_match"`
	LocationDistanceKnown bool     `json:"location_distance_known"`
	LocationDistanceM     float64  `json:"location_distance_m,omitempty"`
	SamePerpetrator       bool     `json:"same_perpetrator"`
	CasualtySimilarity    float64  `json:"casualty_similarity"`
	DescriptionSimilarity float64  `json:"description_similarity"`
	Total                 float64  `json:"total"`
}

// BreakdownJSON serializes the result for audit rows and API responses.
func (r SimilarityResult) BreakdownJSON() []byte {
	out, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return out
}

// EssentialMatch is the minimal agreement (type, time, location) required
// before description similarity is even considered.
func (r SimilarityResult) EssentialMatch() bool {
	return r.SameType && r.WithinTimeWindow && r.LocationMatch
}

// Scorer computes multi-criteria similarity between two violation records.
type Scorer struct {
	cfg ScorerConfig
}

func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.Weights.Sum() == 0 {
		cfg.Weights = DefaultWeights()
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = 24 * time.Hour
	}
	if cfg.LocationRadiusMeters <= 0 {
		cfg.LocationRadiusMeters = 5000
	}
	if cfg.NameSimilarityFloor <= 0 {
		cfg.NameSimilarityFloor = 0.8
	}
	if cfg.CrossLanguagePenalty <= 0 || cfg.CrossLanguagePenalty > 1 {
		cfg.CrossLanguagePenalty = 0.7
	}
	return &Scorer{cfg: cfg}
}

// Score computes the weighted composite similarity of two records.
func (s *Scorer) Score(a, b *db.Violation) SimilarityResult {
	result := SimilarityResult{
		SameType:        a.Type == b.Type,
		SamePerpetrator: a.Perpetrator == b.Perpetrator,
	}

	delta := a.OccurredAt.Sub(b.OccurredAt)
	if delta < 0 {
		delta = -delta
	}
	result.WithinTimeWindow = delta <= s.cfg.TimeWindow

	s.scoreLocation(a, b, &result)
	result.CasualtySimilarity = casualtySimilarity(a.Counts(), b.Counts())
	result.DescriptionSimilarity = s.descriptionSimilarity(a, b)

	w := s.cfg.Weights
	total := w.Type*boolScore(result.SameType) +
		w.Time*boolScore(result.WithinTimeWindow) +
		w.Location*boolScore(result.LocationMatch) +
		w.Perpetrator*boolScore(result.SamePerpetrator) +
		w.Casualties*result.CasualtySimilarity +
		w.Description*result.DescriptionSimilarity
	result.Total = clamp01(total / w.Sum())

	return result
}

func (s *Scorer) scoreLocation(a, b *db.Violation, result *SimilarityResult) {
	if a.HasCoordinates() && b.HasCoordinates() {
		distance := geo.DistanceMeters(
			geo.Point{Lat: *a.Latitude, Lon: *a.Longitude},
			geo.Point{Lat: *b.Latitude, Lon: *b.Longitude},
		)
		result.LocationDistanceKnown = true
		result.LocationDistanceM = distance
		result.LocationMatch = distance <= s.cfg.LocationRadiusMeters
		return
	}

	// Coordinates missing on at least one side: fall back to comparing
	// location names. A strong name match counts as distance zero for
	// downstream logic; anything else counts as unknown distance.
	nameScore := bestLocalizedSimilarity(a.LocationName, b.LocationName, s.cfg.CrossLanguagePenalty)
	if nameScore >= s.cfg.NameSimilarityFloor {
		result.LocationMatch = true
		result.LocationDistanceKnown = true
		result.LocationDistanceM = 0
	}
}

func (s *Scorer) descriptionSimilarity(a, b *db.Violation) float64 {
	return bestLocalizedSimilarity(a.Description, b.Description, s.cfg.CrossLanguagePenalty)
}

// bestLocalizedSimilarity compares bilingual text pairs, preferring
// same-language comparisons. Cross-language pairs are discounted to reflect
// lower confidence in a raw string comparison across scripts.
func bestLocalizedSimilarity(a, b db.LocalizedText, crossPenalty float64) float64 {
	best := 0.0
	sameLanguage := false

	if a.EN != "" && b.EN != "" {
		sameLanguage = true
		if score := text.Similarity(a.EN, b.EN); score > best {
			best = score
		}
	}
	if a.AR != "" && b.AR != "" {
		sameLanguage = true
		if score := text.Similarity(a.AR, b.AR); score > best {
			best = score
		}
	}
	if sameLanguage {
		return best
	}

	if a.EN != "" && b.AR != "" {
		if score := text.Similarity(a.EN, b.AR) * crossPenalty; score > best {
			best = score
		}
	}
	if a.AR != "" && b.EN != "" {
		if score := text.Similarity(a.AR, b.EN) * crossPenalty; score > best {
			best = score
		}
	}
	return best
}

// casualtySimilarity compares total counts. Both zero is agreement; exactly
// one zero is ambiguous (presence vs. absence of data), so it earns partial
// credit rather than a hard mismatch.
func casualtySimilarity(a, b db.CasualtyCounts) float64 {
	totalA := a.Total()
	totalB := b.Total()
	switch {
	case totalA == 0 && totalB == 0:
		return 1
	case totalA == 0 || totalB == 0:
		return 0.5
	}

	larger := math.Max(float64(totalA), float64(totalB))
	diff := math.Abs(float64(totalA - totalB))
	return math.Max(0, 1-diff/larger)
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
