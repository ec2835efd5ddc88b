package text

const (
	summaryLengthRatio     = 0.7
	summaryContainmentMin  = 0.8
	summaryBoost           = 0.2
)

// Similarity scores how likely two free-text strings describe the same thing,
// in [0,1]. It takes the maximum of a character-bigram Dice baseline, token
// Jaccard, and a containment score boosted when one string reads as a summary
// of the other. Two empty strings score 0: absence of data is never treated
// as agreement.
func Similarity(left, right string) float64 {
	normLeft := Normalize(left)
	normRight := Normalize(right)
	if normLeft == "" || normRight == "" {
		return 0
	}
	if normLeft == normRight {
		return 1
	}

	score := diceBigram(normLeft, normRight)

	leftTokens := TokenSet(normLeft)
	rightTokens := TokenSet(normRight)
	if len(leftTokens) == 0 || len(rightTokens) == 0 {
		return clamp01(score)
	}

	overlap := intersectionSize(leftTokens, rightTokens)
	union := len(leftTokens) + len(rightTokens) - overlap
	if union > 0 {
		if jaccard := float64(overlap) / float64(union); jaccard > score {
			score = jaccard
		}
	}

	containLeft := float64(overlap) / float64(len(leftTokens))
	containRight := float64(overlap) / float64(len(rightTokens))

	if boosted, ok := summaryScore(normLeft, normRight, containLeft, containRight); ok && boosted > score {
		score = boosted
	}

	return clamp01(score)
}

// summaryScore detects the "shorter paraphrase" relationship: one side is
// materially shorter and almost all of its tokens appear in the longer side.
func summaryScore(normLeft, normRight string, containLeft, containRight float64) (float64, bool) {
	leftLen := float64(len([]rune(normLeft)))
	rightLen := float64(len([]rune(normRight)))
	if leftLen == 0 || rightLen == 0 {
		return 0, false
	}

	var shortContainment float64
	switch {
	case leftLen/rightLen < summaryLengthRatio:
		shortContainment = containLeft
	case rightLen/leftLen < summaryLengthRatio:
		shortContainment = containRight
	default:
		return 0, false
	}

	if shortContainment <= summaryContainmentMin {
		return 0, false
	}
	return clamp01(shortContainment + summaryBoost), true
}

func diceBigram(normLeft, normRight string) float64 {
	leftSet := bigramSet(normLeft)
	rightSet := bigramSet(normRight)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	overlap := intersectionSize(leftSet, rightSet)
	return 2 * float64(overlap) / float64(len(leftSet)+len(rightSet))
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
