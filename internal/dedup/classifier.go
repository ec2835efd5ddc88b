package dedup

import "github.com/modullar/violations-tracker-backend/internal/db"

// Thresholds gate binary duplicate decisions. The creation and batch paths
// run different operating points, so all of them are tunable here.
type Thresholds struct {
	// BatchTotal is the composite floor for the offline consolidation pass.
	BatchTotal float64
	// CreationTotal is the looser secondary floor used by the synchronous
	// creation path for "similarity match" flags.
	CreationTotal float64
	// DescriptionStrong applies when type, time, location and perpetrator
	// all agree.
	DescriptionStrong float64
	// DescriptionDefault applies otherwise.
	DescriptionDefault float64
}

// DefaultThresholds returns the standard gate configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BatchTotal:         0.85,
		CreationTotal:      0.75,
		DescriptionStrong:  0.4,
		DescriptionDefault: 0.5,
	}
}

// MatchKind distinguishes the creation path's two duplicate classes. Callers
// apply different policies to each (auto-merge vs. flag for review).
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchSimilarity
	MatchExact
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSimilarity:
		return "similarity"
	default:
		return "none"
	}
}

// Classifier turns a SimilarityResult into a duplicate verdict.
type Classifier struct {
	thresholds Thresholds
}

func NewClassifier(thresholds Thresholds) *Classifier {
	defaults := DefaultThresholds()
	if thresholds.BatchTotal <= 0 {
		thresholds.BatchTotal = defaults.BatchTotal
	}
	if thresholds.CreationTotal <= 0 {
		thresholds.CreationTotal = defaults.CreationTotal
	}
	if thresholds.DescriptionStrong <= 0 {
		thresholds.DescriptionStrong = defaults.DescriptionStrong
	}
	if thresholds.DescriptionDefault <= 0 {
		thresholds.DescriptionDefault = defaults.DescriptionDefault
	}
	return &Classifier{thresholds: thresholds}
}

// descriptionOK applies the asymmetric description gate: a full essential +
// perpetrator agreement earns the lenient floor, anything weaker the strict
// one. Missing descriptions on both sides score 0 and therefore resolve to
// "not duplicate": insufficient data never raises.
func (c *Classifier) descriptionOK(result SimilarityResult) bool {
	if result.EssentialMatch() && result.SamePerpetrator {
		return result.DescriptionSimilarity >= c.thresholds.DescriptionStrong
	}
	return result.DescriptionSimilarity >= c.thresholds.DescriptionDefault
}

// IsDuplicate is the offline-pass verdict: essential match, description gate,
// and the batch composite floor must all hold.
func (c *Classifier) IsDuplicate(result SimilarityResult) bool {
	return result.EssentialMatch() &&
		c.descriptionOK(result) &&
		result.Total >= c.thresholds.BatchTotal
}

// ClassifyCreation is the synchronous creation-path verdict. An exact match
// requires type, time and location agreement (at the tight creation radius)
// plus identical casualty counts. Failing that, a pair whose composite score
// clears the looser secondary floor is flagged as a similarity match.
func (c *Classifier) ClassifyCreation(result SimilarityResult, a, b *db.Violation) MatchKind {
	if result.EssentialMatch() && a.Counts() == b.Counts() {
		return MatchExact
	}
	if result.EssentialMatch() &&
		c.descriptionOK(result) &&
		result.Total >= c.thresholds.CreationTotal {
		return MatchSimilarity
	}
	return MatchNone
}
