package model

import "time"

// Source is one fetched and cleaned article, keyed by canonical URL.
// Immutable once persisted except for metadata corrections and annotations.
type Source struct {
	ID             string            `json:"source_id"`
	IncidentID     string            `json:"event_id"`
	URL            string            `json:"url"`
	Publisher      string            `json:"publisher,omitempty"`
	ArticleTitle   string            `json:"article_title,omitempty"`
	DatePublished  *Date             `json:"date_published,omitempty"`
	CleanedText    string            `json:"cleaned_text,omitempty"`
	QuotedEvidence map[string]string `json:"quoted_evidence,omitempty"`
	SummaryBullets []string          `json:"summary_bullets,omitempty"`
	DateScraped    time.Time         `json:"date_scraped"`
}
