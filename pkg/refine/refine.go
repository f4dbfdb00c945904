// Package refine asks a language model to fill the gaps the deterministic
// extractor leaves: names, routes, coordinates, and corrections to the
// heuristic classifications. Providers return a RefinementPayload; what of
// it survives is decided by the merge layer, not here.
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// Request carries one source document plus the incident state already on
// record, so the model refines rather than re-extracts from scratch.
type Request struct {
	Text      string
	Publisher string
	Title     string
	Published string
	Current   *model.Incident
}

// Refiner produces a structured refinement for one source document.
type Refiner interface {
	Refine(ctx context.Context, req Request) (*model.RefinementPayload, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string // "anthropic", "openai", or "none"
	APIKey    string
	Model     string
	MaxTokens int64
}

// New builds a Refiner for the configured provider. Provider "none" (or
// empty) returns a disabled refiner whose Refine is a no-op.
func New(cfg Config) (Refiner, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, eris.New("refine: anthropic provider requires an api key")
		}
		return newAnthropic(cfg), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, eris.New("refine: openai provider requires an api key")
		}
		return newOpenAI(cfg), nil
	case "", "none":
		return Disabled{}, nil
	default:
		return nil, eris.Errorf("refine: unknown provider %q", cfg.Provider)
	}
}

// Disabled is a Refiner that refines nothing.
type Disabled struct{}

// Refine returns nil payload without calling anything.
func (Disabled) Refine(context.Context, Request) (*model.RefinementPayload, error) {
	return nil, nil
}

const systemPrompt = `You are a data extraction assistant for a ledger of mountain fatality incidents in British Columbia, Alberta, and Washington State. Given a news article, return a single JSON object with these fields (omit or null anything the article does not support):

jurisdiction (BC|AB|WA), location_name, peak_name, route_name, lat, lon,
activity (hiking|scrambling|climbing|alpinism|ski-mountaineering|unknown),
cause_primary (fall|avalanche|rockfall|crevasse|hypothermia|drowning|lightning|tree-well|unknown),
contributing_factors (array), phase (ascent|descent|summit),
n_fatalities, n_injured, party_size,
date_event_start, date_event_end, date_of_death (YYYY-MM-DD),
sar (array of {op_type: search|rescue|recovery, agency, started_at, ended_at, outcome}),
summary_bullets (array of short factual strings),
evidence (array of {field, quote} with verbatim quotes from the article),
names_all, names_deceased, names_relatives, names_responders, names_spokespersons, names_medics (arrays),
publisher, article_title, date_published,
extraction_conf (0.0-1.0).

Only state what the article states. Never invent names, dates, or coordinates. Respond with JSON only, no prose.`

// buildUserPrompt assembles the article plus the current incident record.
func buildUserPrompt(req Request) string {
	var sb strings.Builder
	if req.Publisher != "" {
		fmt.Fprintf(&sb, "Publisher: %s\n", req.Publisher)
	}
	if req.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", req.Title)
	}
	if req.Published != "" {
		fmt.Fprintf(&sb, "Published: %s\n", req.Published)
	}
	if req.Current != nil {
		if cur, err := json.Marshal(req.Current); err == nil {
			fmt.Fprintf(&sb, "\nCurrent incident record (correct or extend, do not blindly repeat):\n%s\n", cur)
		}
	}
	sb.WriteString("\nArticle text:\n")
	sb.WriteString(req.Text)
	return sb.String()
}

// DecodePayload parses model output into a RefinementPayload. Models wrap
// JSON in markdown fences or chatter despite instructions, so the decoder
// trims to the outermost object before parsing. Output with no object at
// all yields an empty payload, not an error: a useless refinement is a
// skip, not a pipeline failure.
func DecodePayload(raw string) *model.RefinementPayload {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		zap.L().Warn("refine: no JSON object in model output", zap.Int("len", len(raw)))
		return &model.RefinementPayload{}
	}

	var payload model.RefinementPayload
	if err := json.Unmarshal([]byte(s[start:end+1]), &payload); err != nil {
		zap.L().Warn("refine: malformed refinement JSON", zap.Error(err))
		return &model.RefinementPayload{}
	}
	return &payload
}
