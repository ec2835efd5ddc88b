package text

import (
	"strings"
	"unicode"
)

const tatweel = 'ـ'

// foldArabic maps the alef variants onto bare alef and alef maqsura onto
// yaa, so vocalization and orthographic style do not defeat matching.
func foldArabic(r rune) rune {
	switch r {
	case 'آ', 'أ', 'إ', 'ٱ': // آ أ إ ٱ
		return 'ا' // ا
	case 'ى': // ى
		return 'ي' // ي
	default:
		return r
	}
}

// Normalize lowercases, strips punctuation, control characters, Arabic
// diacritics and tatweel, folds alef/yaa variants, and collapses runs of
// whitespace to a single space.
func Normalize(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		switch {
		case unicode.Is(unicode.Mn, r) || r == tatweel:
			// Harakat and elongation carry no lexical content.
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsControl(r):
			// Arabic punctuation (U+060C comma, U+061F question mark,
			// U+061B semicolon) falls under IsPunct as well.
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(foldArabic(r))
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// stop words for the two working languages of report descriptions.
var stopWords = map[string]struct{}{
	// English
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "with": {}, "this": {}, "these": {}, "those": {},
	// Arabic, stored in folded form since tokens are folded before lookup
	"في": {}, "من": {}, "علي": {}, "الي": {}, "عن": {}, "مع": {}, "هذا": {},
	"هذه": {}, "ذلك": {}, "تلك": {}, "التي": {}, "الذي": {}, "كان": {},
	"كانت": {}, "قد": {}, "لقد": {}, "ثم": {}, "او": {}, "و": {}, "ب": {},
	"ل": {}, "ك": {}, "حيث": {}, "بعد": {}, "قبل": {}, "بين": {},
}

// Tokenize splits normalized text into lowercase tokens, discarding stop
// words in both working languages.
func Tokenize(input string) []string {
	normalized := Normalize(input)
	if normalized == "" {
		return nil
	}

	parts := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		if _, skip := stopWords[part]; skip {
			continue
		}
		tokens = append(tokens, part)
	}
	return tokens
}

// TokenSet returns the distinct tokens of the input.
func TokenSet(input string) map[string]struct{} {
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func bigramSet(input string) map[string]struct{} {
	normalized := Normalize(input)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	if len(runes) < 2 {
		return map[string]struct{}{string(runes): {}}
	}

	set := make(map[string]struct{}, len(runes)-1)
	for i := 0; i <= len(runes)-2; i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}

func intersectionSize(left, right map[string]struct{}) int {
	if len(left) > len(right) {
		left, right = right, left
	}
	count := 0
	for key := range left {
		if _, ok := right[key]; ok {
			count++
		}
	}
	return count
}
