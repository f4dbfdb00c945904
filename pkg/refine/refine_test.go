package refine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

func TestDecodePayloadPlainJSON(t *testing.T) {
	p := DecodePayload(`{"jurisdiction": "BC", "n_fatalities": 2, "extraction_conf": 0.9}`)
	require.NotNil(t, p)
	assert.Equal(t, "BC", p.Jurisdiction)
	require.NotNil(t, p.NFatalities)
	assert.Equal(t, 2, *p.NFatalities)
	assert.InDelta(t, 0.9, p.ExtractionConf, 1e-9)
}

func TestDecodePayloadMarkdownFenced(t *testing.T) {
	raw := "```json\n{\"activity\": \"alpinism\", \"peak_name\": \"Atwell Peak\"}\n```"
	p := DecodePayload(raw)
	assert.Equal(t, "alpinism", p.Activity)
	assert.Equal(t, "Atwell Peak", p.PeakName)
}

func TestDecodePayloadSurroundingChatter(t *testing.T) {
	raw := "Here is the extraction you asked for:\n{\"cause_primary\": \"avalanche\"}\nLet me know if you need anything else."
	p := DecodePayload(raw)
	assert.Equal(t, "avalanche", p.CausePrimary)
}

func TestDecodePayloadMalformedYieldsEmpty(t *testing.T) {
	p := DecodePayload(`{"jurisdiction": "BC",`)
	require.NotNil(t, p)
	assert.Empty(t, p.Jurisdiction)
}

func TestDecodePayloadNoObjectYieldsEmpty(t *testing.T) {
	p := DecodePayload("I could not find any incident details in this article.")
	require.NotNil(t, p)
	assert.Empty(t, p.Jurisdiction)
	assert.Nil(t, p.NFatalities)
}

func TestDecodePayloadDates(t *testing.T) {
	p := DecodePayload(`{"date_of_death": "2023-06-02", "date_event_start": null}`)
	require.NotNil(t, p.DateOfDeath)
	assert.Equal(t, "2023-06-02", p.DateOfDeath.String())
	assert.Nil(t, p.DateEventStart)
}

func TestBuildUserPromptIncludesCurrentRecord(t *testing.T) {
	n := 2
	prompt := buildUserPrompt(Request{
		Text:      "Two hikers were found dead.",
		Publisher: "Example News",
		Title:     "Two hikers dead",
		Published: "2023-06-11",
		Current:   &model.Incident{ID: "inc-1", Jurisdiction: "BC", NFatalities: &n},
	})
	assert.Contains(t, prompt, "Publisher: Example News")
	assert.Contains(t, prompt, "Two hikers were found dead.")
	assert.Contains(t, prompt, `"BC"`)
	assert.True(t, strings.Index(prompt, "Article text:") > strings.Index(prompt, "Current incident record"))
}

func TestNewDisabledProvider(t *testing.T) {
	r, err := New(Config{Provider: "none"})
	require.NoError(t, err)
	p, err := r.Refine(context.Background(), Request{Text: "anything"})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "cohere"})
	require.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{Provider: "anthropic"})
	require.Error(t, err)
	_, err = New(Config{Provider: "openai"})
	require.Error(t, err)
}
