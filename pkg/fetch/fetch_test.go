package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, robots string, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if robots == "" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(robots)) //nolint:errcheck
			return
		}
		if body, ok := pages[r.URL.Path]; ok {
			w.Write([]byte(body)) //nolint:errcheck
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAllowed(t *testing.T) {
	srv := newTestServer(t, "", map[string]string{"/article": "<html><body>hello</body></html>"})

	f := New(WithRateLimit(1000))
	page, err := f.Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "hello")
	assert.Equal(t, srv.URL+"/article", page.FinalURL)
}

func TestFetchRobotsBlocked(t *testing.T) {
	robots := "User-agent: *\nDisallow: /private/\n"
	srv := newTestServer(t, robots, map[string]string{"/private/story": "secret"})

	f := New(WithRateLimit(1000))
	_, err := f.Fetch(context.Background(), srv.URL+"/private/story")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrRobotsBlocked))
}

func TestFetchRobotsMissingAllows(t *testing.T) {
	srv := newTestServer(t, "", map[string]string{"/open": "content"})

	f := New(WithRateLimit(1000))
	_, err := f.Fetch(context.Background(), srv.URL+"/open")
	require.NoError(t, err)
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	srv := newTestServer(t, "", nil)

	f := New(WithRateLimit(1000))
	_, err := f.Fetch(context.Background(), srv.URL+"/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.False(t, eris.Is(err, ErrRobotsBlocked))
}

func TestFetchFollowsRedirects(t *testing.T) {
	var base string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/moved":
			http.Redirect(w, r, base+"/final", http.StatusMovedPermanently)
		case "/final":
			w.Write([]byte("arrived")) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	base = srv.URL

	f := New(WithRateLimit(1000))
	page, err := f.Fetch(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/final", page.FinalURL)
	assert.Contains(t, page.HTML, "arrived")
}

func TestFetchBodyCap(t *testing.T) {
	big := strings.Repeat("x", 1024)
	srv := newTestServer(t, "", map[string]string{"/big": big})

	f := New(WithRateLimit(1000), WithMaxBody(100))
	page, err := f.Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	assert.Len(t, page.HTML, 100)
}
