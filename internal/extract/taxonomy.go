package extract

import (
	"strings"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// Rule pairs a label with the keywords that imply it. Rule tables are
// evaluated in order and the first rule with any keyword present wins, so
// table order encodes priority.
type Rule struct {
	Label    string
	Keywords []string
}

// FirstMatch returns the label of the first matching rule, or "" when
// nothing matches. Callers pass pre-lowercased text.
func FirstMatch(lower string, rules []Rule) string {
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Label
			}
		}
	}
	return ""
}

var activityRules = []Rule{
	{model.ActivityAlpinism, []string{"mountaineer", "alpinist", "alpinism", "expedition"}},
	{model.ActivitySkiMoun, []string{"ski mountaineer", "ski-mountaineer", "ski tour", "backcountry ski", "heli-ski", "splitboard", "skier", "snowboarder"}},
	{model.ActivityClimbing, []string{"climber", "climbing", "rope team", "belay", "rappel"}},
	{model.ActivityScramble, []string{"scrambl"}},
	{model.ActivityHiking, []string{"hiker", "hiking", "backpacker", "snowshoe"}},
}

// causeRules order matters twice over: "rockfall" must precede the bare
// "fall" keywords, and avalanche outranks everything because avalanche
// articles routinely also mention falls.
var causeRules = []Rule{
	{"avalanche", []string{"avalanche", "slab release", "cornice collapse", "snow slide"}},
	{"rockfall", []string{"rockfall", "rock fall", "falling rock", "rock slide"}},
	{"crevasse", []string{"crevasse"}},
	{"tree-well", []string{"tree well", "tree-well"}},
	{"hypothermia", []string{"hypothermia", "exposure to the cold"}},
	{"drowning", []string{"drowned", "drowning"}},
	{"lightning", []string{"lightning"}},
	{"fall", []string{"fell ", "fell.", "fell,", "fall from", "fatal fall", "plunged"}},
}

var phaseRules = []Rule{
	{"descent", []string{"descent", "descending", "on the way down", "coming down", "skiing down"}},
	{"ascent", []string{"ascent", "ascending", "on the way up", "climbing up"}},
	{"summit", []string{"summit"}},
}

// factorRules are additive: every matching rule contributes, unlike the
// first-match tables above.
var factorRules = []Rule{
	{"cornices", []string{"cornice"}},
	{"spring snowmelt/warming", []string{"snowmelt", "warming temperatures", "spring conditions", "freezing level"}},
	{"steep terrain", []string{"steep", "technical terrain", "exposed terrain"}},
	{"whiteout/poor visibility", []string{"whiteout", "poor visibility", "low visibility"}},
	{"storm", []string{"storm", "high winds"}},
}

// Classify runs the first-match vocabularies over lowercased text.
func Classify(lower string) (activity, cause, phase string) {
	return FirstMatch(lower, activityRules), FirstMatch(lower, causeRules), FirstMatch(lower, phaseRules)
}

// Factors returns every contributing factor whose keywords appear, in
// table order, deduplicated by construction.
func Factors(lower string) []string {
	var out []string
	for _, r := range factorRules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				out = append(out, r.Label)
				break
			}
		}
	}
	return out
}
