// Package geocode resolves mountain place names to coordinates via the
// Nominatim API, constrained to the jurisdictions the ledger covers so a
// query like "Black Tusk" cannot match a bar in Texas.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "alpine-ledger/1.0 (+https://github.com/ridgeline-data/alpine-ledger)"
	cacheTTL         = 24 * time.Hour
)

// Result is a resolved place.
type Result struct {
	Lat        float64
	Lon        float64
	ISOCountry string
	AdminArea  string
	Display    string
	Matched    bool
}

// Client resolves place names to coordinates.
type Client interface {
	Geocode(ctx context.Context, query, jurisdiction string) (*Result, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(base string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithUserAgent overrides the user agent. Nominatim's usage policy
// requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(c *client) { c.userAgent = ua }
}

// WithRateLimit sets requests per second. Public Nominatim allows 1 rps.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

type client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

// New creates a Nominatim geocoding client.
func New(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(1, 1),
		cache:      gocache.New(cacheTTL, cacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// nominatimPlace is one element of the Nominatim search response.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		State       string `json:"state"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Geocode resolves a place name within a jurisdiction. The query is tried
// whole first, then progressively trimmed from the front at comma
// boundaries ("Siberian Express, Atwell Peak, Garibaldi Park" falls back
// to "Atwell Peak, Garibaldi Park" and so on), each attempt bounded to
// the jurisdiction viewbox. When every bounded attempt misses, an Alberta
// query without "Kananaskis" in it retries bounded with a ", Kananaskis"
// suffix, then the query retries without the viewbox. A query with no
// match at all falls back to the jurisdiction centroid, marked unmatched.
func (c *client) Geocode(ctx context.Context, query, jurisdiction string) (*Result, error) {
	query = fold(strings.TrimSpace(query))
	if query == "" {
		return &Result{Matched: false}, nil
	}

	box, boxOK := jurisdictionBounds[jurisdiction]
	key := jurisdiction + "|" + strings.ToLower(query)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*Result), nil
	}

	parts := strings.Split(query, ",")
	for i := 0; i < len(parts); i++ {
		attempt := strings.TrimSpace(strings.Join(parts[i:], ","))
		if attempt == "" {
			continue
		}
		if alias, ok := placeAliases[strings.ToLower(attempt)]; ok {
			attempt = alias
		}
		res, err := c.search(ctx, attempt, jurisdiction, true)
		if err != nil {
			return nil, err
		}
		if res != nil {
			c.cache.Set(key, res, gocache.DefaultExpiration)
			return res, nil
		}
	}

	base := query
	if alias, ok := placeAliases[strings.ToLower(base)]; ok {
		base = alias
	}
	if jurisdiction == "AB" && !strings.Contains(strings.ToLower(base), "kananaskis") {
		res, err := c.search(ctx, base+", Kananaskis", jurisdiction, true)
		if err != nil {
			return nil, err
		}
		if res != nil {
			c.cache.Set(key, res, gocache.DefaultExpiration)
			return res, nil
		}
	}

	// Retry without the viewbox before settling for a centroid.
	res, err := c.search(ctx, base, jurisdiction, false)
	if err != nil {
		return nil, err
	}
	if res != nil {
		c.cache.Set(key, res, gocache.DefaultExpiration)
		return res, nil
	}

	if boxOK {
		lon, lat := Centroid(box)
		res := &Result{Lat: lat, Lon: lon, Matched: false}
		zap.L().Debug("geocode: centroid fallback",
			zap.String("query", query),
			zap.String("jurisdiction", jurisdiction),
		)
		c.cache.Set(key, res, gocache.DefaultExpiration)
		return res, nil
	}
	return &Result{Matched: false}, nil
}

// search runs one Nominatim query, bounded to the jurisdiction viewbox
// when asked. Returns nil result on no match.
func (c *client) search(ctx context.Context, query, jurisdiction string, bounded bool) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit wait")
	}

	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	if box, ok := jurisdictionBounds[jurisdiction]; ok && bounded {
		params.Set("viewbox", Viewbox(box))
		params.Set("bounded", "1")
	}

	reqURL := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: query %q", query)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(places) == 0 {
		return nil, nil
	}

	p := places[0]
	lat, latErr := strconv.ParseFloat(p.Lat, 64)
	lon, lonErr := strconv.ParseFloat(p.Lon, 64)
	if latErr != nil || lonErr != nil {
		return nil, eris.Errorf("geocode: bad coordinates %q,%q", p.Lat, p.Lon)
	}

	return &Result{
		Lat:        lat,
		Lon:        lon,
		ISOCountry: strings.ToUpper(p.Address.CountryCode),
		AdminArea:  p.Address.State,
		Display:    p.DisplayName,
		Matched:    true,
	}, nil
}

// placeAliases maps colloquial names news articles use to the names
// OpenStreetMap knows them by.
var placeAliases = map[string]string{
	"kananaskis":         "Kananaskis Country",
	"the chief":          "Stawamus Chief",
	"rainier":            "Mount Rainier",
	"mt. rainier":        "Mount Rainier",
	"garibaldi park":     "Garibaldi Provincial Park",
	"the bugaboos":       "Bugaboo Provincial Park",
	"rogers pass area":   "Rogers Pass",
	"the north cascades": "North Cascades National Park",
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// fold strips diacritics so "Mont Céleste" and "Mont Celeste" hit the
// same cache entry and query form.
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		return s
	}
	return out
}

func init() {
	// Nominatim wants lon ordering left,top,right,bottom; sanity-check the
	// tables agree at package load rather than per query.
	for j, b := range jurisdictionBounds {
		if b.Min(0) >= b.Max(0) || b.Min(1) >= b.Max(1) {
			panic(fmt.Sprintf("geocode: degenerate bounds for %s", j))
		}
	}
}
