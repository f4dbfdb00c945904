package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	var gotAuth string
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.NoError(t, json.NewEncoder(w).Encode(Response{
			Query: gotReq.Query,
			Results: []Result{
				{Title: "Two hikers dead on Atwell Peak", URL: "https://news.example/atwell", Score: 0.91, PublishedDate: "2023-06-11"},
			},
		}))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("tvly-key", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), Request{Query: "hiker killed British Columbia", MaxResults: 5, Days: 30})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tvly-key", gotAuth)
	assert.Equal(t, 5, gotReq.MaxResults)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "https://news.example/atwell", resp.Results[0].URL)
}

func TestSearchEmptyQuery(t *testing.T) {
	c := NewClient("tvly-key")
	_, err := c.Search(context.Background(), Request{})
	require.Error(t, err)
}

func TestSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid api key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), Request{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestIncidentQueriesCoverJurisdictions(t *testing.T) {
	qs := IncidentQueries()
	require.NotEmpty(t, qs)
	joined := ""
	for _, q := range qs {
		joined += q + "\n"
	}
	assert.Contains(t, joined, "British Columbia")
	assert.Contains(t, joined, "Alberta")
	assert.Contains(t, joined, "Washington")
}
