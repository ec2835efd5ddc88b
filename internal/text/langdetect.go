package text

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectLanguage classifies free text as "en", "ar", or "" when undecidable.
// Reports often arrive with a single description field; the result routes the
// text into the matching description slot.
func DetectLanguage(input string) string {
	sample := strings.TrimSpace(input)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	switch language {
	case lingua.Arabic:
		return "ar"
	case lingua.English:
		return "en"
	default:
		return ""
	}
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.Arabic, lingua.English).
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
