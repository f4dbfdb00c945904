package model

import (
	"strings"
	"time"
)

// Recognized jurisdiction codes. Anything else is coerced to empty.
const (
	JurisdictionBC = "BC"
	JurisdictionAB = "AB"
	JurisdictionWA = "WA"
)

// JurisdictionInfo carries the fixed metadata derived from a jurisdiction code.
type JurisdictionInfo struct {
	Code       string
	ISOCountry string
	AdminArea  string
	Timezone   string
}

// Jurisdictions maps each recognized code to its derived metadata.
var Jurisdictions = map[string]JurisdictionInfo{
	JurisdictionBC: {Code: JurisdictionBC, ISOCountry: "CA", AdminArea: "British Columbia", Timezone: "America/Vancouver"},
	JurisdictionAB: {Code: JurisdictionAB, ISOCountry: "CA", AdminArea: "Alberta", Timezone: "America/Edmonton"},
	JurisdictionWA: {Code: JurisdictionWA, ISOCountry: "US", AdminArea: "Washington", Timezone: "America/Vancouver"},
}

// NormalizeJurisdiction uppercases and validates a jurisdiction code,
// returning "" for anything outside the closed set.
func NormalizeJurisdiction(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := Jurisdictions[c]; ok {
		return c
	}
	return ""
}

// Closed activity vocabulary.
const (
	ActivityAlpinism  = "alpinism"
	ActivityClimbing  = "climbing"
	ActivitySkiMoun   = "ski-mountaineering"
	ActivityHiking    = "hiking"
	ActivityScramble  = "scrambling"
	ActivityUnknown   = "unknown"
)

var activityVocab = map[string]bool{
	ActivityAlpinism: true,
	ActivityClimbing: true,
	ActivitySkiMoun:  true,
	ActivityHiking:   true,
	ActivityScramble: true,
	ActivityUnknown:  true,
}

// activitySynonyms folds common free-text variants into the closed vocabulary.
var activitySynonyms = map[string]string{
	"mountaineering":      ActivityAlpinism,
	"alpinist":            ActivityAlpinism,
	"alpine climbing":     ActivityAlpinism,
	"rock climbing":       ActivityClimbing,
	"ice climbing":        ActivityClimbing,
	"heli-skiing":         ActivitySkiMoun,
	"heliskiing":          ActivitySkiMoun,
	"skiing":              ActivitySkiMoun,
	"ski touring":         ActivitySkiMoun,
	"backcountry skiing":  ActivitySkiMoun,
	"splitboarding":       ActivitySkiMoun,
	"snowshoeing":         ActivityHiking,
	"trekking":            ActivityHiking,
	"backpacking":         ActivityHiking,
	"trail running":       ActivityHiking,
}

// NormalizeActivity clamps an activity string to the closed vocabulary,
// applying the synonym table first. Unrecognized values become "unknown";
// empty input stays empty so the merger can treat it as absent.
func NormalizeActivity(s string) string {
	a := strings.ToLower(strings.TrimSpace(s))
	if a == "" {
		return ""
	}
	if mapped, ok := activitySynonyms[a]; ok {
		return mapped
	}
	if activityVocab[a] {
		return a
	}
	return ActivityUnknown
}

// Incident is one mountain-fatality event assembled from one or more sources.
type Incident struct {
	ID                  string   `json:"event_id"`
	Jurisdiction        string   `json:"jurisdiction,omitempty"`
	LocationName        string   `json:"location_name,omitempty"`
	PeakName            string   `json:"peak_name,omitempty"`
	RouteName           string   `json:"route_name,omitempty"`
	Activity            string   `json:"activity,omitempty"`
	EventType           string   `json:"event_type,omitempty"`
	CausePrimary        string   `json:"cause_primary,omitempty"`
	ContributingFactors []string `json:"contributing_factors,omitempty"`
	Phase               string   `json:"phase,omitempty"`

	NFatalities *int `json:"n_fatalities,omitempty"`
	NInjured    *int `json:"n_injured,omitempty"`
	PartySize   *int `json:"party_size,omitempty"`

	DateEventStart     *Date `json:"date_event_start,omitempty"`
	DateEventEnd       *Date `json:"date_event_end,omitempty"`
	DateOfDeath        *Date `json:"date_of_death,omitempty"`
	DateRecovery       *Date `json:"date_recovery,omitempty"`
	TimeToRecoveryDays *int  `json:"time_to_recovery_days,omitempty"`

	ISOCountry string   `json:"iso_country,omitempty"`
	AdminArea  string   `json:"admin_area,omitempty"`
	TZLocal    string   `json:"tz_local,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`

	MultiAgency bool `json:"multi_agency,omitempty"`

	NamesAll           []string `json:"names_all,omitempty"`
	NamesDeceased      []string `json:"names_deceased,omitempty"`
	NamesRelatives     []string `json:"names_relatives,omitempty"`
	NamesResponders    []string `json:"names_responders,omitempty"`
	NamesSpokespersons []string `json:"names_spokespersons,omitempty"`
	NamesMedics        []string `json:"names_medics,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SAR op types.
const (
	OpSearch   = "search"
	OpRecovery = "recovery"
	OpRescue   = "rescue"
)

// SARSegment is one discrete search, rescue, or recovery operational phase.
// The persisted set for an incident is always replaced wholesale, never
// appended to, so re-extraction cannot accumulate duplicates.
type SARSegment struct {
	ID         string `json:"id,omitempty"`
	IncidentID string `json:"event_id,omitempty"`
	OpType     string `json:"op_type"`
	Agency     string `json:"agency,omitempty"`
	StartedAt  *Date  `json:"started_at,omitempty"`
	EndedAt    *Date  `json:"ended_at,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
}
