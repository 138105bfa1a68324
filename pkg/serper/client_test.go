package serper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme funding round", req.Query)
		assert.Equal(t, "us", req.Country)
		assert.Equal(t, 10, req.NumResults)

		json.NewEncoder(w).Encode(SearchResponse{
			Organic: []OrganicResult{
				{Title: "Acme raises Series A", Link: "https://a.com/x", Snippet: "Acme closed...", Position: 1},
				{Title: "Acme funding", Link: "https://b.com/y", Snippet: "More on Acme", Source: "b news", Position: 2},
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := c.Search(context.Background(), SearchRequest{
		Query:      "acme funding round",
		Country:    "us",
		Language:   "en",
		NumResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Organic, 2)
	assert.Equal(t, "Acme raises Series A", resp.Organic[0].Title)
	assert.Equal(t, "https://b.com/y", resp.Organic[1].Link)
}

func TestSearch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "anything"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestSearch_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), SearchRequest{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestSearch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Search(ctx, SearchRequest{Query: "anything"})
	require.Error(t, err)
}
