package main

import (
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

func TestEventRowCSVRoundTrip(t *testing.T) {
	n := 2
	lat := 49.75
	lon := -123.0
	start := model.NewDate(2023, time.June, 2)
	inc := model.Incident{
		ID:                  "inc-1",
		Jurisdiction:        "BC",
		PeakName:            "Atwell Peak",
		Activity:            "alpinism",
		CausePrimary:        "avalanche",
		ContributingFactors: []string{"cornices", "steep terrain"},
		NFatalities:         &n,
		DateEventStart:      &start,
		Lat:                 &lat,
		Lon:                 &lon,
		MultiAgency:         true,
		NamesDeceased:       []string{"A. Climber", "B. Climber"},
	}

	out, err := csvutil.Marshal([]eventRow{toRow(inc)})
	require.NoError(t, err)

	var back []eventRow
	require.NoError(t, csvutil.Unmarshal(out, &back))
	require.Len(t, back, 1)

	r := back[0]
	assert.Equal(t, "inc-1", r.ID)
	assert.Equal(t, "BC", r.Jurisdiction)
	assert.Equal(t, "cornices; steep terrain", r.ContributingFactors)
	require.NotNil(t, r.NFatalities)
	assert.Equal(t, 2, *r.NFatalities)
	assert.Equal(t, "2023-06-02", r.DateEventStart)
	require.NotNil(t, r.Lat)
	assert.InDelta(t, 49.75, *r.Lat, 1e-9)
	assert.True(t, r.MultiAgency)
}

func TestRowValuesTypes(t *testing.T) {
	n := 1
	row := eventRow{
		ID:             "inc-2",
		Jurisdiction:   "WA",
		NFatalities:    &n,
		DateEventStart: "2022-09-10",
		NamesDeceased:  "C. Hiker",
	}

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	vals := rowValues(row, now)
	require.Len(t, vals, len(importColumns))

	assert.Equal(t, "inc-2", vals[0])
	// Empty strings become NULLs, not empty text.
	assert.Nil(t, vals[2])
	d, ok := vals[13].(*time.Time)
	require.True(t, ok)
	assert.Equal(t, "2022-09-10", d.Format("2006-01-02"))
	// Unparseable dates become NULLs.
	row.DateEventStart = "sometime"
	vals = rowValues(row, now)
	assert.Nil(t, vals[13])
	assert.Equal(t, []string{"C. Hiker"}, vals[24])
	assert.Equal(t, now, vals[25])
}
