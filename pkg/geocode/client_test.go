package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient wires the client to a fake Nominatim that answers per-query.
func newTestClient(t *testing.T, answers map[string][]nominatimPlace) (Client, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		queries = append(queries, q)
		places := answers[q]
		if places == nil {
			places = []nominatimPlace{}
		}
		require.NoError(t, json.NewEncoder(w).Encode(places))
	}))
	t.Cleanup(srv.Close)

	c := New(WithBaseURL(srv.URL), WithRateLimit(1000))
	return c, &queries
}

func place(lat, lon, state, cc string) nominatimPlace {
	var p nominatimPlace
	p.Lat = lat
	p.Lon = lon
	p.Address.State = state
	p.Address.CountryCode = cc
	return p
}

func TestGeocodeMatch(t *testing.T) {
	c, _ := newTestClient(t, map[string][]nominatimPlace{
		"Atwell Peak": {place("49.7546", "-123.0054", "British Columbia", "ca")},
	})

	res, err := c.Geocode(context.Background(), "Atwell Peak", "BC")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.InDelta(t, 49.7546, res.Lat, 1e-4)
	assert.InDelta(t, -123.0054, res.Lon, 1e-4)
	assert.Equal(t, "CA", res.ISOCountry)
	assert.Equal(t, "British Columbia", res.AdminArea)
}

func TestGeocodeMultiPartFallback(t *testing.T) {
	c, queries := newTestClient(t, map[string][]nominatimPlace{
		"Garibaldi Provincial Park": {place("49.93", "-123.01", "British Columbia", "ca")},
	})

	res, err := c.Geocode(context.Background(), "Siberian Express, Atwell Peak, Garibaldi Provincial Park", "BC")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.Len(t, *queries, 3)
	assert.Equal(t, "Siberian Express, Atwell Peak, Garibaldi Provincial Park", (*queries)[0])
	assert.Equal(t, "Atwell Peak, Garibaldi Provincial Park", (*queries)[1])
	assert.Equal(t, "Garibaldi Provincial Park", (*queries)[2])
}

func TestGeocodeAlias(t *testing.T) {
	c, queries := newTestClient(t, map[string][]nominatimPlace{
		"Kananaskis Country": {place("50.84", "-115.14", "Alberta", "ca")},
	})

	res, err := c.Geocode(context.Background(), "Kananaskis", "AB")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"Kananaskis Country"}, *queries)
}

func TestGeocodeCentroidFallback(t *testing.T) {
	c, _ := newTestClient(t, nil)

	res, err := c.Geocode(context.Background(), "Nonexistent Spire", "WA")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.True(t, Contains("WA", res.Lon, res.Lat))
}

func TestGeocodeUnknownJurisdictionNoCoords(t *testing.T) {
	c, _ := newTestClient(t, nil)

	res, err := c.Geocode(context.Background(), "Somewhere", "ON")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Zero(t, res.Lat)
	assert.Zero(t, res.Lon)
}

func TestGeocodeCaches(t *testing.T) {
	c, queries := newTestClient(t, map[string][]nominatimPlace{
		"Mount Baker": {place("48.77", "-121.81", "Washington", "us")},
	})

	ctx := context.Background()
	_, err := c.Geocode(ctx, "Mount Baker", "WA")
	require.NoError(t, err)
	_, err = c.Geocode(ctx, "Mount Baker", "WA")
	require.NoError(t, err)
	assert.Len(t, *queries, 1)
}

func TestGeocodeFoldsDiacritics(t *testing.T) {
	c, queries := newTestClient(t, map[string][]nominatimPlace{
		"Mont Celeste": {place("49.5", "-122.5", "British Columbia", "ca")},
	})

	res, err := c.Geocode(context.Background(), "Mont Céleste", "BC")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"Mont Celeste"}, *queries)
}

func TestGeocodeBoundedQuery(t *testing.T) {
	var viewbox, bounded []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewbox = append(viewbox, r.URL.Query().Get("viewbox"))
		bounded = append(bounded, r.URL.Query().Get("bounded"))
		w.Write([]byte("[]")) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	c := New(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Geocode(context.Background(), "Black Tusk", "BC")
	require.NoError(t, err)
	require.Len(t, bounded, 2)
	assert.Equal(t, "1", bounded[0])
	assert.Equal(t, Viewbox(jurisdictionBounds["BC"]), viewbox[0])
	assert.Empty(t, bounded[1])
	assert.Empty(t, viewbox[1])
}

func TestGeocodeUnboundedRetry(t *testing.T) {
	var queries, bounded []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("q"))
		b := r.URL.Query().Get("bounded")
		bounded = append(bounded, b)
		if b == "1" {
			w.Write([]byte("[]")) //nolint:errcheck
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode([]nominatimPlace{
			place("49.3860", "-121.2410", "British Columbia", "ca"),
		}))
	}))
	t.Cleanup(srv.Close)

	c := New(WithBaseURL(srv.URL), WithRateLimit(1000))
	res, err := c.Geocode(context.Background(), "Hope Slide", "BC")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"1", ""}, bounded)
	assert.Equal(t, []string{"Hope Slide", "Hope Slide"}, queries)
}

func TestGeocodeAlbertaKananaskisRetry(t *testing.T) {
	c, queries := newTestClient(t, map[string][]nominatimPlace{
		"Mount Lorette, Kananaskis": {place("50.9650", "-115.1270", "Alberta", "ca")},
	})

	res, err := c.Geocode(context.Background(), "Mount Lorette", "AB")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, "Alberta", res.AdminArea)
	assert.Equal(t, []string{"Mount Lorette", "Mount Lorette, Kananaskis"}, *queries)
}

func TestViewboxOrdering(t *testing.T) {
	assert.Equal(t, "-124.9,49.1,-116.9,45.5", Viewbox(jurisdictionBounds["WA"]))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("BC", -123.1, 49.7))
	assert.False(t, Contains("BC", -79.4, 43.7)) // Toronto
	assert.False(t, Contains("ON", -79.4, 43.7))
}
