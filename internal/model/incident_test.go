package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJurisdiction(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BC", "BC"},
		{"bc", "BC"},
		{" ab ", "AB"},
		{"WA", "WA"},
		{"CA", ""},
		{"Unknown", ""},
		{"British Columbia", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeJurisdiction(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeActivity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"climbing", ActivityClimbing},
		{"mountaineering", ActivityAlpinism},
		{"heli-skiing", ActivitySkiMoun},
		{"backcountry skiing", ActivitySkiMoun},
		{"Hiking", ActivityHiking},
		{"base jumping", ActivityUnknown},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeActivity(tt.in), "input %q", tt.in)
	}
}

func TestJurisdictionMetadata(t *testing.T) {
	info, ok := Jurisdictions[JurisdictionAB]
	require.True(t, ok)
	assert.Equal(t, "CA", info.ISOCountry)
	assert.Equal(t, "Alberta", info.AdminArea)
	assert.Equal(t, "America/Edmonton", info.Timezone)
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2023, time.June, 10)
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2023-06-10"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, d.Equal(back.Time))
}

func TestDateUnmarshalTolerant(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2023-06-10T08:30:00Z"`), &d))
	assert.Equal(t, "2023-06-10", d.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`"not a date"`), &d))
	assert.True(t, d.IsZero())
}

func TestDateDaysUntil(t *testing.T) {
	start := NewDate(2023, time.June, 2)
	end := NewDate(2023, time.June, 10)
	assert.Equal(t, 8, start.DaysUntil(end))
	assert.Equal(t, -8, end.DaysUntil(start))
}
