package extract

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// agencySignals identify responding organizations by name or role. Two or
// more distinct hits flips the multi-agency flag.
var agencySignals = []Rule{
	{"Search and Rescue", []string{"search and rescue", "rescue team", " sar "}},
	{"RCMP", []string{"rcmp", "royal canadian mounted police"}},
	{"Police", []string{"police", "sheriff", "state patrol"}},
	{"Parks Canada", []string{"parks canada", "visitor safety"}},
	{"BC Coroners Service", []string{"coroner"}},
	{"National Park Service", []string{"national park service", "park rangers", "climbing rangers"}},
	{"Avalanche Canada", []string{"avalanche canada"}},
}

// Run executes the full deterministic pass over one cleaned document.
// It never fails: a panic in any heuristic is swallowed and whatever was
// extracted so far is returned, so one pathological article cannot take
// down a batch.
func Run(text string, published *model.Date) (res model.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("extraction heuristic panicked, returning partial result", zap.Any("panic", r))
		}
	}()

	lower := strings.ToLower(text)

	spatial := ClassifyPlace(text)
	res.Jurisdiction = spatial.Jurisdiction
	res.LocationName = spatial.LocationName
	res.PeakName = spatial.PeakName
	if info, ok := model.Jurisdictions[spatial.Jurisdiction]; ok {
		res.ISOCountry = info.ISOCountry
		res.AdminArea = info.AdminArea
		res.TZLocal = info.Timezone
	}

	res.Activity, res.CausePrimary, res.Phase = Classify(lower)
	res.ContributingFactors = Factors(lower)
	res.NFatalities = FatalityCount(lower)

	if d := EventDate(text, published); d != nil {
		res.DateEventStart = d
		res.DateEventEnd = d
		res.DateOfDeath = d
	}
	res.DateRecovery = RecoveryDate(text, published)
	if res.DateOfDeath != nil && res.DateRecovery != nil {
		if days := res.DateOfDeath.DaysUntil(*res.DateRecovery); days >= 0 {
			res.TimeToRecoveryDays = &days
		}
	}

	res.AgenciesFound = agencies(lower)
	res.MultiAgency = len(res.AgenciesFound) >= 2

	res.EventType = eventType(lower, res.NFatalities)
	res.SAR = SARSegments(text, published)
	res.Evidence = Quotes(text)
	res.SummaryBullets = bullets(res)
	return res
}

func agencies(lower string) []string {
	var found []string
	for _, sig := range agencySignals {
		for _, kw := range sig.Keywords {
			if strings.Contains(lower, kw) {
				found = append(found, sig.Label)
				break
			}
		}
	}
	return found
}

// eventType is "fatality" when a death toll was stated or recovery-of-remains
// language appears; otherwise empty and left to refinement.
func eventType(lower string, nFatalities *int) string {
	if nFatalities != nil && *nFatalities > 0 {
		return "fatality"
	}
	for _, kw := range []string{"died", "dead", "killed", "fatal", "bodies", "body was recovered", "remains"} {
		if strings.Contains(lower, kw) {
			return "fatality"
		}
	}
	return ""
}

func bullets(res model.ExtractionResult) []string {
	var b []string
	if res.NFatalities != nil {
		b = append(b, fmt.Sprintf("fatalities: %d", *res.NFatalities))
	}
	if res.CausePrimary != "" {
		b = append(b, "cause: "+res.CausePrimary)
	}
	if res.Activity != "" {
		b = append(b, "activity: "+res.Activity)
	}
	if res.LocationName != "" {
		b = append(b, "location: "+res.LocationName)
	}
	if res.DateEventStart != nil {
		b = append(b, "event date: "+res.DateEventStart.String())
	}
	if res.DateRecovery != nil {
		b = append(b, "recovery date: "+res.DateRecovery.String())
	}
	if res.MultiAgency {
		b = append(b, "multi-agency response: "+strings.Join(res.AgenciesFound, ", "))
	}
	return b
}
