// Package merge reconciles extraction output, LLM refinement output, and
// previously persisted fields into partial update sets. The governing rule
// is non-destructiveness: an empty refined value never erases existing data.
package merge

import (
	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// evidenceFields is the fixed set of per-field quote slots persisted on a
// source document.
var evidenceFields = []string{"cause_primary", "date_of_death", "n_fatalities", "location_name"}

// Result is the outcome of reconciling one refinement payload.
type Result struct {
	// Fields holds only the keys that should change; absent keys leave
	// the persisted value untouched.
	Fields model.FieldUpdate

	// SAR, when non-nil, replaces the record's segment set wholesale.
	SAR []model.SARSegment

	// Quotes and Bullets are source-document annotations, not incident
	// fields.
	Quotes  map[string]string
	Bullets []string

	// Source carries metadata proposals applied to the source document
	// only, never to the incident record.
	Source SourceMeta

	Confidence float64
}

// SourceMeta is the refiner's proposed correction of source-level metadata.
type SourceMeta struct {
	Publisher     string
	ArticleTitle  string
	DatePublished *model.Date
}

// Refined turns a refinement payload into an update set under the
// non-destructive rules: scalars override only when non-empty, lists
// replace wholesale when non-empty, jurisdiction is clamped to the closed
// code set, and activity is normalized through the synonym table.
func Refined(p *model.RefinementPayload) Result {
	r := Result{Fields: model.FieldUpdate{}, Confidence: p.ExtractionConf}

	if code := model.NormalizeJurisdiction(p.Jurisdiction); code != "" {
		r.Fields["jurisdiction"] = code
		info := model.Jurisdictions[code]
		r.Fields["iso_country"] = info.ISOCountry
		r.Fields["admin_area"] = info.AdminArea
		r.Fields["tz_local"] = info.Timezone
	}
	if act := model.NormalizeActivity(p.Activity); act != "" {
		r.Fields["activity"] = act
	}

	setString(r.Fields, "location_name", p.LocationName)
	setString(r.Fields, "peak_name", p.PeakName)
	setString(r.Fields, "route_name", p.RouteName)
	setString(r.Fields, "cause_primary", p.CausePrimary)
	setString(r.Fields, "phase", p.Phase)

	setCount(r.Fields, "n_fatalities", p.NFatalities)
	setCount(r.Fields, "n_injured", p.NInjured)
	setCount(r.Fields, "party_size", p.PartySize)

	setDate(r.Fields, "date_event_start", p.DateEventStart)
	setDate(r.Fields, "date_event_end", p.DateEventEnd)
	setDate(r.Fields, "date_of_death", p.DateOfDeath)
	enforceDateOrder(r.Fields)

	if p.Lat != nil && p.Lon != nil {
		r.Fields["lat"] = *p.Lat
		r.Fields["lon"] = *p.Lon
	}

	setList(r.Fields, "contributing_factors", p.ContributingFactors)
	setList(r.Fields, "names_all", p.NamesAll)
	setList(r.Fields, "names_deceased", p.NamesDeceased)
	setList(r.Fields, "names_relatives", p.NamesRelatives)
	setList(r.Fields, "names_responders", p.NamesResponders)
	setList(r.Fields, "names_spokespersons", p.NamesSpokespersons)
	setList(r.Fields, "names_medics", p.NamesMedics)

	r.Bullets = p.SummaryBullets

	if len(p.SAR) > 0 {
		r.SAR = normalizeSegments(p.SAR)
	}
	r.Quotes = quoteMap(p.Evidence)
	r.Source = SourceMeta{
		Publisher:     p.Publisher,
		ArticleTitle:  p.ArticleTitle,
		DatePublished: p.DatePublished,
	}
	return r
}

// FromExtraction turns a deterministic extraction into the update set
// applied at persist time. Same emptiness rules as Refined so a barren
// document leaves an existing record alone.
func FromExtraction(res model.ExtractionResult) model.FieldUpdate {
	f := model.FieldUpdate{}

	if code := model.NormalizeJurisdiction(res.Jurisdiction); code != "" {
		f["jurisdiction"] = code
		info := model.Jurisdictions[code]
		f["iso_country"] = info.ISOCountry
		f["admin_area"] = info.AdminArea
		f["tz_local"] = info.Timezone
	}
	if act := model.NormalizeActivity(res.Activity); act != "" {
		f["activity"] = act
	}
	setString(f, "location_name", res.LocationName)
	setString(f, "peak_name", res.PeakName)
	setString(f, "event_type", res.EventType)
	setString(f, "cause_primary", res.CausePrimary)
	setString(f, "phase", res.Phase)
	setCount(f, "n_fatalities", res.NFatalities)
	setDate(f, "date_event_start", res.DateEventStart)
	setDate(f, "date_event_end", res.DateEventEnd)
	setDate(f, "date_of_death", res.DateOfDeath)
	setDate(f, "date_recovery", res.DateRecovery)
	enforceDateOrder(f)
	setCount(f, "time_to_recovery_days", res.TimeToRecoveryDays)
	setList(f, "contributing_factors", res.ContributingFactors)
	if res.MultiAgency {
		f["multi_agency"] = true
	}
	return f
}

func setString(f model.FieldUpdate, key, val string) {
	if val != "" {
		f[key] = val
	}
}

func setCount(f model.FieldUpdate, key string, val *int) {
	if val != nil && *val >= 0 {
		f[key] = *val
	}
}

func setDate(f model.FieldUpdate, key string, val *model.Date) {
	if val != nil && !val.IsZero() {
		f[key] = *val
	}
}

func setList(f model.FieldUpdate, key string, val []string) {
	if len(val) > 0 {
		f[key] = val
	}
}

// enforceDateOrder drops an event-end date that precedes the event start.
func enforceDateOrder(f model.FieldUpdate) {
	start, okS := f["date_event_start"].(model.Date)
	end, okE := f["date_event_end"].(model.Date)
	if okS && okE && end.Before(start.Time) {
		delete(f, "date_event_end")
	}
}

// normalizeSegments clamps op types and drops segments without a
// recognized op. Identity fields are cleared; the store assigns them.
func normalizeSegments(segs []model.SARSegment) []model.SARSegment {
	out := make([]model.SARSegment, 0, len(segs))
	for _, s := range segs {
		switch s.OpType {
		case model.OpSearch, model.OpRecovery, model.OpRescue:
		default:
			continue
		}
		s.ID = ""
		s.IncidentID = ""
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// quoteMap scans the refined evidence list for the first quote tagged with
// each fixed field name.
func quoteMap(evidence []model.Evidence) map[string]string {
	if len(evidence) == 0 {
		return nil
	}
	out := make(map[string]string)
	for _, field := range evidenceFields {
		for _, ev := range evidence {
			if ev.Field == field && ev.Quote != "" {
				out[field] = ev.Quote
				break
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
