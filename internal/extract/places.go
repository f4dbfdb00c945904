package extract

import (
	"regexp"
	"strings"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

var (
	reMountPrefix  = regexp.MustCompile(`\b(?:Mount|Mt\.?)\s+[A-Z][A-Za-z'-]*(?:\s+[A-Z][A-Za-z'-]*)?`)
	reFeatureNoun  = regexp.MustCompile(`\b[A-Z][A-Za-z'-]*(?:\s+[A-Z][A-Za-z'-]*)?\s+(?:Peak|Mountain|Glacier|Pass|Ridge|Couloir|Buttress|Icefield)\b`)
	reProtectedSet = regexp.MustCompile(`\b[A-Z][A-Za-z'-]*(?:\s+[A-Z][A-Za-z'-]*){0,3}\s+(?:Provincial|National|State|Wilderness)\s+(?:Park|Area)\b`)
	reNearPlace    = regexp.MustCompile(`\bnear\s+([A-Z][a-z'-]+(?:\s+[A-Z][a-z'-]+)?)`)
)

// nearDenylist drops "near X" captures that are boilerplate rather than
// geography (social links, wire-service credits).
var nearDenylist = map[string]bool{
	"Facebook":  true,
	"Twitter":   true,
	"Instagram": true,
	"TikTok":    true,
	"YouTube":   true,
	"Reddit":    true,
	"Getty":     true,
	"Reuters":   true,
	"You":       true,
	"The":       true,
}

// regionTokens are case-insensitive markers counted toward each jurisdiction.
var regionTokens = map[string][]string{
	model.JurisdictionBC: {
		"british columbia", "b.c.", "bc parks", "squamish", "whistler",
		"garibaldi", "pemberton", "tantalus", "bugaboos", "revelstoke",
		"golden ears", "coast mountains",
	},
	model.JurisdictionAB: {
		"alberta", "banff", "jasper", "canmore", "kananaskis", "lake louise",
		"icefields parkway", "rockies", "yamnuska",
	},
	model.JurisdictionWA: {
		"washington", "rainier", "north cascades", "cascade", "snohomish",
		"okanogan", "olympic national", "baker", "stuart",
	},
}

// Spatial is the location portion of an extraction: names plus the
// jurisdiction inferred from regional token frequency.
type Spatial struct {
	PeakName     string
	LocationName string
	Jurisdiction string
}

// ClassifyPlace pulls peak, protected-area, and nearby-place names out of
// text and votes on a jurisdiction. Token counts tie, or nothing matches:
// jurisdiction stays empty rather than guessing.
func ClassifyPlace(text string) Spatial {
	var s Spatial

	peak := firstMatch(text, reMountPrefix)
	if alt := firstMatch(text, reFeatureNoun); peak == "" || (alt != "" && strings.Index(text, alt) < strings.Index(text, peak)) {
		if alt != "" {
			peak = alt
		}
	}
	s.PeakName = strings.TrimSpace(peak)

	var parts []string
	if s.PeakName != "" {
		parts = append(parts, s.PeakName)
	}
	if park := firstMatch(text, reProtectedSet); park != "" {
		parts = append(parts, park)
	}
	if m := reNearPlace.FindStringSubmatch(text); m != nil {
		first := strings.Fields(m[1])[0]
		if !nearDenylist[first] {
			parts = append(parts, "near "+m[1])
		}
	}
	s.LocationName = strings.Join(parts, ", ")

	s.Jurisdiction = classifyJurisdiction(strings.ToLower(text))
	return s
}

func classifyJurisdiction(lower string) string {
	bestCode, bestCount := "", 0
	tied := false
	for _, code := range []string{model.JurisdictionBC, model.JurisdictionAB, model.JurisdictionWA} {
		count := 0
		for _, tok := range regionTokens[code] {
			count += strings.Count(lower, tok)
		}
		switch {
		case count > bestCount:
			bestCode, bestCount, tied = code, count, false
		case count == bestCount && count > 0:
			tied = true
		}
	}
	if tied || bestCount == 0 {
		return ""
	}
	return bestCode
}

func firstMatch(text string, re *regexp.Regexp) string {
	return re.FindString(text)
}
