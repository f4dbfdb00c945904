package extract

import (
	"regexp"
	"strings"
)

// Each evidence field gets at most one supporting quote: the sentence
// around the first signal match.
var evidenceSignals = []struct {
	Field string
	Re    *regexp.Regexp
}{
	{"cause_primary", regexp.MustCompile(`(?i)\b(avalanche|rockfall|rock fall|crevasse|hypothermia|drowned|drowning|lightning|tree well|fell|plunged)\b`)},
	{"date_of_death", regexp.MustCompile(`(?i)\b(died|killed|perished|deceased|last seen|disappeared|went missing|failed to return)\b`)},
	{"search", regexp.MustCompile(`(?i)\bsearch\b.{0,80}?\b(began|begun|launched|started|resumed|suspended|called off)\b|\b(began|launched|resumed)\b.{0,40}?\bsearch`)},
	{"recovery", regexp.MustCompile(`(?i)\b(recovered|recovery|bodies were located|body was found|remains were found)\b`)},
}

const maxQuoteLen = 300

// Quotes returns sentence-bounded supporting quotes keyed by field name.
func Quotes(text string) map[string]string {
	out := make(map[string]string)
	for _, sig := range evidenceSignals {
		loc := sig.Re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if q := sentenceAround(text, loc[0]); q != "" {
			out[sig.Field] = q
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sentenceAround expands from idx to the surrounding sentence boundaries
// (period or newline), clamped to a sane quote length.
func sentenceAround(text string, idx int) string {
	start := idx
	for start > 0 {
		c := text[start-1]
		if c == '.' || c == '\n' || c == '!' || c == '?' {
			break
		}
		start--
	}
	end := idx
	for end < len(text) {
		c := text[end]
		end++
		if c == '.' || c == '\n' || c == '!' || c == '?' {
			break
		}
	}
	q := strings.TrimSpace(text[start:end])
	if len(q) > maxQuoteLen {
		q = q[:maxQuoteLen]
	}
	return q
}
