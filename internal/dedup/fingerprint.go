package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/text"
)

const descriptionPrefixRunes = 120

// ContentHash fingerprints the normalized key fields of a record. It is a
// cheap, order-independent backstop against exact duplicates created by
// racing requests: the persistence layer enforces uniqueness on it,
// independent of the full scorer.
func ContentHash(v *db.Violation) string {
	parts := []string{
		string(v.Type),
		v.OccurredAt.UTC().Format("2006-01-02"),
		locationKey(v),
		strings.ToLower(string(v.Perpetrator)),
		descriptionPrefix(v.Description),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func locationKey(v *db.Violation) string {
	if v.HasCoordinates() {
		// Three decimals is roughly a 110m cell: tight enough to separate
		// neighborhoods, loose enough to absorb geocoder jitter.
		return fmt.Sprintf("%.3f,%.3f", *v.Latitude, *v.Longitude)
	}
	if name := text.Normalize(v.LocationName.EN); name != "" {
		return name
	}
	return text.Normalize(v.LocationName.AR)
}

func descriptionPrefix(description db.LocalizedText) string {
	normalized := text.Normalize(description.EN)
	if normalized == "" {
		normalized = text.Normalize(description.AR)
	}
	runes := []rune(normalized)
	if len(runes) > descriptionPrefixRunes {
		runes = runes[:descriptionPrefixRunes]
	}
	return string(runes)
}
