package model

// Evidence ties a classified field to the sentence that supports it.
type Evidence struct {
	Field        string `json:"field"`
	Quote        string `json:"quote"`
	SourceOffset *int   `json:"source_offset,omitempty"`
}

// ExtractionResult is the deterministic pass's output for one document.
// It is ephemeral: produced per document, folded into the incident record
// and source annotations, never persisted as-is.
type ExtractionResult struct {
	Jurisdiction string
	ISOCountry   string
	AdminArea    string
	TZLocal      string

	LocationName string
	PeakName     string

	EventType           string
	Activity            string
	CausePrimary        string
	ContributingFactors []string
	Phase               string

	NFatalities *int

	DateEventStart     *Date
	DateEventEnd       *Date
	DateOfDeath        *Date
	DateRecovery       *Date
	TimeToRecoveryDays *int

	AgenciesFound []string
	MultiAgency   bool

	SAR            []SARSegment
	SummaryBullets []string
	Evidence       map[string]string
}

// RefinementPayload is the LLM refiner's structured output: the mutable
// incident fields plus source-level metadata proposals and a confidence
// scalar. Decoded tolerantly; see refine.DecodePayload.
type RefinementPayload struct {
	Jurisdiction        string   `json:"jurisdiction"`
	LocationName        string   `json:"location_name"`
	PeakName            string   `json:"peak_name"`
	RouteName           string   `json:"route_name"`
	Lat                 *float64 `json:"lat"`
	Lon                 *float64 `json:"lon"`
	Activity            string   `json:"activity"`
	CausePrimary        string   `json:"cause_primary"`
	ContributingFactors []string `json:"contributing_factors"`
	Phase               string   `json:"phase"`

	NFatalities *int `json:"n_fatalities"`
	NInjured    *int `json:"n_injured"`
	PartySize   *int `json:"party_size"`

	DateEventStart *Date `json:"date_event_start"`
	DateEventEnd   *Date `json:"date_event_end"`
	DateOfDeath    *Date `json:"date_of_death"`

	SAR            []SARSegment `json:"sar"`
	SummaryBullets []string     `json:"summary_bullets"`
	Evidence       []Evidence   `json:"evidence"`

	ExtractionConf float64 `json:"extraction_conf"`

	NamesAll           []string `json:"names_all"`
	NamesDeceased      []string `json:"names_deceased"`
	NamesRelatives     []string `json:"names_relatives"`
	NamesResponders    []string `json:"names_responders"`
	NamesSpokespersons []string `json:"names_spokespersons"`
	NamesMedics        []string `json:"names_medics"`

	// Source-level proposals, applied to the source document only.
	Publisher     string `json:"publisher"`
	ArticleTitle  string `json:"article_title"`
	DatePublished *Date  `json:"date_published"`
}

// FieldUpdate is a partial update set for an incident record. Absent keys
// leave the persisted value untouched; the store maps keys to columns.
type FieldUpdate map[string]any
