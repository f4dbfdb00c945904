package extract

import (
	"regexp"
	"strings"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

var (
	reSearchVerb   = regexp.MustCompile(`\b(began|begun|launched|started|mounted|resumed|continued|suspended|paused|called off|scaled back)\b`)
	reRescueSignal = regexp.MustCompile(`\b(rescued|airlifted|evacuated|hoisted)\b`)
)

const (
	searchVerbWindow = 110
	searchDateWindow = 220
	rescueDateGap    = 60
)

// SARSegments derives discrete search, rescue, and recovery operations from
// text. Agencies are intentionally left unattributed: mapping "RCMP" or
// "North Shore Rescue" to a segment reliably needs the refinement pass.
func SARSegments(text string, ref *model.Date) []model.SARSegment {
	lower := strings.ToLower(text)
	mentions := FindDates(text, ref)
	var segs []model.SARSegment

	if seg, ok := searchSegment(lower, mentions); ok {
		segs = append(segs, seg)
	}

	for _, m := range reRescueSignal.FindAllStringIndex(lower, -1) {
		if d := nearestDate(mentions, m[0], rescueDateGap); d != nil {
			segs = append(segs, model.SARSegment{OpType: model.OpRescue, StartedAt: d, EndedAt: d, Outcome: "rescued"})
			break
		}
	}

	if rd := RecoveryDate(text, ref); rd != nil {
		segs = append(segs, model.SARSegment{OpType: model.OpRecovery, StartedAt: rd, EndedAt: rd, Outcome: "recovered"})
	}

	return segs
}

// searchSegment pairs the first "search" mention that has a state verb
// nearby with a date. The date anchors on the verb, not on "search": in
// "Search and Rescue teams began searching June 3" the verb sits next to
// the operative date while "search" may sit next to the event date.
func searchSegment(lower string, mentions []DateMention) (model.SARSegment, bool) {
	from := 0
	for {
		idx := strings.Index(lower[from:], "search")
		if idx < 0 {
			return model.SARSegment{}, false
		}
		idx += from

		lo, hi := idx-searchVerbWindow, idx+searchVerbWindow
		if lo < 0 {
			lo = 0
		}
		if hi > len(lower) {
			hi = len(lower)
		}
		verbLoc := reSearchVerb.FindStringIndex(lower[lo:hi])
		if verbLoc == nil {
			from = idx + len("search")
			continue
		}
		verb := lower[lo+verbLoc[0] : lo+verbLoc[1]]

		seg := model.SARSegment{OpType: model.OpSearch, Outcome: searchOutcome(verb)}
		if d := nearestDate(mentions, lo+verbLoc[1], searchDateWindow); d != nil {
			seg.StartedAt = d
			if seg.Outcome == "suspended" {
				seg.EndedAt = d
			}
		}
		return seg, true
	}
}

func searchOutcome(verb string) string {
	switch verb {
	case "suspended", "paused", "called off", "scaled back":
		return "suspended"
	case "resumed", "continued":
		return "resumed"
	default:
		return ""
	}
}

func nearestDate(mentions []DateMention, pos, maxDist int) *model.Date {
	var best *model.Date
	bestDist := maxDist + 1
	for i := range mentions {
		center := (mentions[i].Start + mentions[i].End) / 2
		dist := center - pos
		if dist < 0 {
			dist = -dist
		}
		if dist < bestDist {
			bestDist = dist
			d := mentions[i].Date
			best = &d
		}
	}
	return best
}
