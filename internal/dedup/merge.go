package dedup

import (
	"strconv"
	"strings"
	"time"

	"github.com/modullar/violations-tracker-backend/internal/db"
	"github.com/modullar/violations-tracker-backend/internal/text"
)

const localizedJoinDelimiter = "; "

// MergePolicy controls which side wins on unresolvable ties for generic
// scalar fields not covered by an explicit rule.
type MergePolicy struct {
	PreferNew bool
}

// Merge folds a list of absorbed duplicates into the canonical record,
// mutating it in place. Every rule is a total function with defined behavior
// for missing input, and the operation is idempotent: merging a record with a
// copy of itself changes nothing that matters.
//
// The field rules, applied per duplicate in order:
//   - localized text: per-language keep canonical's non-empty value, fill
//     gaps from the duplicate; on conflict, source/source_url concatenate
//     distinct values, description keeps the longer text
//   - location: canonical coordinates are never overwritten once set; only
//     name/admin-division text may be refreshed
//   - victims/media/tags: union with de-duplication
//   - counts: per-field maximum
//   - verified: monotonic upgrade only
//   - certainty: maximum of the inputs
//   - deaths: raised to the number of merged victims with a death date,
//     never lowered
func Merge(canonical *db.Violation, duplicates []db.Violation, policy MergePolicy, now time.Time, mergedBy string) {
	for i := range duplicates {
		mergeOne(canonical, &duplicates[i], policy)
	}

	if victimDeaths := countVictimDeaths(canonical.Victims); victimDeaths > canonical.Deaths {
		canonical.Deaths = victimDeaths
	}

	canonical.UpdatedAt = now.UTC()
	if mergedBy != "" {
		canonical.UpdatedBy = mergedBy
	}
}

func mergeOne(canonical *db.Violation, dup *db.Violation, policy MergePolicy) {
	canonical.Description = mergeLocalizedLonger(canonical.Description, dup.Description)
	canonical.Source = mergeLocalizedConcat(canonical.Source, dup.Source)
	canonical.SourceURL = mergeLocalizedConcat(canonical.SourceURL, dup.SourceURL)
	canonical.VerificationMethod = mergeLocalizedPolicy(canonical.VerificationMethod, dup.VerificationMethod, policy)

	mergeLocation(canonical, dup)

	canonical.Victims = unionVictims(canonical.Victims, dup.Victims)
	canonical.MediaLinks = unionStrings(canonical.MediaLinks, dup.MediaLinks)
	canonical.Tags = unionTags(canonical.Tags, dup.Tags)
	canonical.RelatedUUIDs = unionStrings(canonical.RelatedUUIDs, dup.RelatedUUIDs)

	canonical.SetCounts(maxCounts(canonical.Counts(), dup.Counts()))

	canonical.Verified = canonical.Verified || dup.Verified
	canonical.CertaintyLevel = db.MaxCertainty(canonical.CertaintyLevel, dup.CertaintyLevel)

	if canonical.Perpetrator == db.PerpUnknown && dup.Perpetrator != db.PerpUnknown {
		canonical.Perpetrator = dup.Perpetrator
	} else if policy.PreferNew && dup.Perpetrator != db.PerpUnknown {
		canonical.Perpetrator = dup.Perpetrator
	}

	if canonical.ReportedAt == nil && dup.ReportedAt != nil {
		reported := *dup.ReportedAt
		canonical.ReportedAt = &reported
	}
}

// mergeLocation preserves canonical coordinates unconditionally when present.
// Only the bilingual name and admin-division text gets refreshed.
func mergeLocation(canonical *db.Violation, dup *db.Violation) {
	if !canonical.HasCoordinates() && dup.HasCoordinates() {
		lat := *dup.Latitude
		lon := *dup.Longitude
		canonical.Latitude = &lat
		canonical.Longitude = &lon
	}
	canonical.LocationName = mergeLocalizedFill(canonical.LocationName, dup.LocationName)
	canonical.AdminDivision = mergeLocalizedFill(canonical.AdminDivision, dup.AdminDivision)
}

// mergeLocalizedFill keeps the canonical value per language, filling gaps only.
func mergeLocalizedFill(canonical, dup db.LocalizedText) db.LocalizedText {
	if canonical.EN == "" {
		canonical.EN = dup.EN
	}
	if canonical.AR == "" {
		canonical.AR = dup.AR
	}
	return canonical
}

// mergeLocalizedLonger fills gaps and, on conflict, keeps the longer text.
func mergeLocalizedLonger(canonical, dup db.LocalizedText) db.LocalizedText {
	canonical.EN = longerOf(canonical.EN, dup.EN)
	canonical.AR = longerOf(canonical.AR, dup.AR)
	return canonical
}

func longerOf(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if len([]rune(b)) > len([]rune(a)) {
		return b
	}
	return a
}

// mergeLocalizedConcat fills gaps and, on conflict, concatenates distinct
// values so that no source attribution is lost.
func mergeLocalizedConcat(canonical, dup db.LocalizedText) db.LocalizedText {
	canonical.EN = concatDistinct(canonical.EN, dup.EN)
	canonical.AR = concatDistinct(canonical.AR, dup.AR)
	return canonical
}

func concatDistinct(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a == b {
		return a
	}
	for _, existing := range strings.Split(a, localizedJoinDelimiter) {
		if strings.TrimSpace(existing) == strings.TrimSpace(b) {
			return a
		}
	}
	return a + localizedJoinDelimiter + b
}

func mergeLocalizedPolicy(canonical, dup db.LocalizedText, policy MergePolicy) db.LocalizedText {
	if canonical.EN == "" {
		canonical.EN = dup.EN
	} else if policy.PreferNew && dup.EN != "" {
		canonical.EN = dup.EN
	}
	if canonical.AR == "" {
		canonical.AR = dup.AR
	} else if policy.PreferNew && dup.AR != "" {
		canonical.AR = dup.AR
	}
	return canonical
}

// victimKey is the identity tuple for victim de-duplication: two victims
// matching on it are the same person.
func victimKey(v db.Victim) string {
	age := "-"
	if v.Age != nil {
		age = strconv.Itoa(*v.Age)
	}
	return strings.Join([]string{
		age,
		text.Normalize(v.Gender),
		text.Normalize(v.Status),
		text.Normalize(v.GroupAffiliation.EN),
		text.Normalize(v.SectarianIdentity.EN),
	}, "|")
}

func unionVictims(canonical, dup []db.Victim) []db.Victim {
	seen := make(map[string]int, len(canonical))
	for i, victim := range canonical {
		seen[victimKey(victim)] = i
	}
	for _, victim := range dup {
		key := victimKey(victim)
		if idx, exists := seen[key]; exists {
			// Same person reported twice; keep the death date if only one
			// side carries it.
			if canonical[idx].DeathDate == nil && victim.DeathDate != nil {
				deathDate := *victim.DeathDate
				canonical[idx].DeathDate = &deathDate
			}
			continue
		}
		seen[key] = len(canonical)
		canonical = append(canonical, victim)
	}
	return canonical
}

func unionStrings(canonical, dup []string) []string {
	seen := make(map[string]struct{}, len(canonical))
	for _, value := range canonical {
		seen[value] = struct{}{}
	}
	for _, value := range dup {
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		canonical = append(canonical, value)
	}
	return canonical
}

func unionTags(canonical, dup []db.Tag) []db.Tag {
	seen := make(map[string]struct{}, len(canonical))
	for _, tag := range canonical {
		seen[text.Normalize(tag.EN)] = struct{}{}
	}
	for _, tag := range dup {
		key := text.Normalize(tag.EN)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		canonical = append(canonical, tag)
	}
	return canonical
}

func maxCounts(a, b db.CasualtyCounts) db.CasualtyCounts {
	return db.CasualtyCounts{
		Deaths:    maxInt(a.Deaths, b.Deaths),
		Kidnapped: maxInt(a.Kidnapped, b.Kidnapped),
		Detained:  maxInt(a.Detained, b.Detained),
		Injured:   maxInt(a.Injured, b.Injured),
		Displaced: maxInt(a.Displaced, b.Displaced),
	}
}

func countVictimDeaths(victims []db.Victim) int {
	count := 0
	for _, victim := range victims {
		if victim.DeathDate != nil {
			count++
		}
	}
	return count
}

func maxInt(a, b int) int {
	if b > a {
		return b
	}
	return a
}
