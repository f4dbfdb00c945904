// Package extract implements the deterministic extraction pass: regex and
// windowed keyword heuristics that turn cleaned article text into typed
// incident fields. Everything here is pure (no I/O, no shared state) so
// documents can be processed in parallel freely.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

const monthNames = `January|February|March|April|May|June|July|August|September|October|November|December`

var (
	reISODate  = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	reLongDate = regexp.MustCompile(`(?i)\b(` + monthNames + `)\s+(\d{1,2})(?:,\s*(20\d{2}))?\b`)
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// DateMention is one calendar date found in text, with its character span.
type DateMention struct {
	Date  model.Date
	Start int
	End   int
}

// FindDates returns every resolvable calendar date in text, ordered by
// position. Long-form dates missing a year resolve against the reference
// date's year when present; failing that, against the year of the nearest
// explicitly-dated mention in the same text; failing that, the candidate is
// discarded.
func FindDates(text string, ref *model.Date) []DateMention {
	type pending struct {
		month      time.Month
		day        int
		start, end int
	}

	var mentions []DateMention
	var unresolved []pending

	for _, m := range reISODate.FindAllStringSubmatchIndex(text, -1) {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		if dt, ok := validDate(y, time.Month(mo), d); ok {
			mentions = append(mentions, DateMention{Date: dt, Start: m[0], End: m[1]})
		}
	}

	for _, m := range reLongDate.FindAllStringSubmatchIndex(text, -1) {
		month := monthsByName[strings.ToLower(text[m[2]:m[3]])]
		day, _ := strconv.Atoi(text[m[4]:m[5]])
		if m[6] >= 0 {
			year, _ := strconv.Atoi(text[m[6]:m[7]])
			if dt, ok := validDate(year, month, day); ok {
				mentions = append(mentions, DateMention{Date: dt, Start: m[0], End: m[1]})
			}
			continue
		}
		if ref != nil {
			if dt, ok := validDate(ref.Year(), month, day); ok {
				mentions = append(mentions, DateMention{Date: dt, Start: m[0], End: m[1]})
			}
			continue
		}
		unresolved = append(unresolved, pending{month: month, day: day, start: m[0], end: m[1]})
	}

	// Year-less mentions with no reference date borrow the year of the
	// nearest explicitly-dated mention.
	for _, p := range unresolved {
		year, found := 0, false
		bestDist := 1 << 30
		for _, dm := range mentions {
			dist := p.start - dm.Start
			if dist < 0 {
				dist = -dist
			}
			if dist < bestDist {
				bestDist = dist
				year = dm.Date.Year()
				found = true
			}
		}
		if !found {
			continue
		}
		if dt, ok := validDate(year, p.month, p.day); ok {
			mentions = append(mentions, DateMention{Date: dt, Start: p.start, End: p.end})
		}
	}

	sort.Slice(mentions, func(i, j int) bool { return mentions[i].Start < mentions[j].Start })
	return mentions
}

func validDate(year int, month time.Month, day int) (model.Date, bool) {
	if day < 1 || day > 31 || month < time.January || month > time.December {
		return model.Date{}, false
	}
	dt := model.NewDate(year, month, day)
	// time.Date normalizes overflow (June 31 → July 1); reject those.
	if dt.Day() != day || dt.Month() != month {
		return model.Date{}, false
	}
	return dt, true
}

// Scoring weights for windowed date selection. Preserved exactly; the
// reconciliation logic and tests assume this behavior.
const (
	dateWindow       = 150
	keywordWeight    = 3
	actionWeight     = 1
	publishedPenalty = -4
)

var incidentKeywords = []string{"avalanche", "disappeared", "descent", "missing", "failed to return", "last seen"}

var recoveryKeywords = []string{"recovered", "recovery", "bodies", "located", "found"}

var actionWords = []string{
	"avalanche", "descent", "missing", "disappeared", "failed to return",
	"search", "rescue", "recovered", "recovery", "bodies",
}

var publishedWords = []string{"published", "updated", "posted"}

// scoreNearest picks the best-scoring date by windowed keyword proximity:
// +3 per keyword in the 150-char window either side, +1 for any nearby
// action word, -4 when the window looks like a byline. Ties break to the
// chronologically earliest date. Returns nil when no candidate scores
// above zero.
func scoreNearest(text string, mentions []DateMention, keywords []string) *model.Date {
	var best *DateMention
	bestScore := 0
	for i := range mentions {
		dm := mentions[i]
		center := (dm.Start + dm.End) / 2
		lo, hi := center-dateWindow, center+dateWindow
		if lo < 0 {
			lo = 0
		}
		if hi > len(text) {
			hi = len(text)
		}
		window := strings.ToLower(text[lo:hi])

		score := 0
		for _, kw := range keywords {
			if strings.Contains(window, kw) {
				score += keywordWeight
			}
		}
		for _, w := range actionWords {
			if strings.Contains(window, w) {
				score += actionWeight
				break
			}
		}
		for _, w := range publishedWords {
			if strings.Contains(window, w) {
				score += publishedPenalty
				break
			}
		}

		if score <= 0 {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && dm.Date.Before(best.Date.Time)) {
			best = &mentions[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	d := best.Date
	return &d
}

// EventDate selects the date the incident most plausibly happened on. Falls
// back to the first date mentioned anywhere when no candidate scores.
func EventDate(text string, ref *model.Date) *model.Date {
	mentions := FindDates(text, ref)
	if len(mentions) == 0 {
		return nil
	}
	if d := scoreNearest(text, mentions, incidentKeywords); d != nil {
		return d
	}
	first := mentions[0].Date
	return &first
}

// RecoveryDate selects the date remains were recovered or located. Tightly
// keyword-bound patterns win; the windowed scorer is the fallback. Unlike
// EventDate there is no first-date fallback, since a recovery date with no
// recovery language nearby is noise.
func RecoveryDate(text string, ref *model.Date) *model.Date {
	if d := explicitKeywordDate(text, recoveryKeywords, ref); d != nil {
		return d
	}
	return scoreNearest(text, FindDates(text, ref), recoveryKeywords)
}

// explicitKeywordDate finds "keyword ... Month Day[, Year]" within 60 chars,
// or the reverse order within 40 chars. The forward form is tried for every
// keyword before any reverse match is accepted: in "disappeared June 2.
// Recovered June 10" the reverse pattern would otherwise bind June 2.
func explicitKeywordDate(text string, keywords []string, ref *model.Date) *model.Date {
	mentions := FindDates(text, ref)
	lower := strings.ToLower(text)

	for pass := 0; pass < 2; pass++ {
		for _, kw := range keywords {
			from := 0
			for {
				idx := strings.Index(lower[from:], kw)
				if idx < 0 {
					break
				}
				idx += from
				kwEnd := idx + len(kw)
				for i := range mentions {
					dm := mentions[i]
					if pass == 0 && dm.Start >= kwEnd && dm.Start-kwEnd <= 60 {
						d := dm.Date
						return &d
					}
					if pass == 1 && idx >= dm.End && idx-dm.End <= 40 {
						d := dm.Date
						return &d
					}
				}
				from = kwEnd
			}
		}
	}
	return nil
}
