package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/ratelimit"
)

func TestSearchUsesLiteralConcatenatedQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotQuery = req.Query
		require.Equal(t, "CA", req.Region)
		json.NewEncoder(w).Encode(searchResponse{Organic: []Result{
			{Title: "Wander CPA", Link: "https://wandercpa.example", Snippet: "Tax prep"},
		}})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "test-key", ratelimit.New())
	results, err := c.Search(context.Background(), "Wander CPA", "Los Angeles", "CA")
	require.NoError(t, err)
	require.Equal(t, "Wander CPA Los Angeles", gotQuery)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Position)
}

func TestSearchCapsAtTenResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		organic := make([]Result, 15)
		for i := range organic {
			organic[i] = Result{Title: "result", Link: "https://example.com"}
		}
		json.NewEncoder(w).Encode(searchResponse{Organic: organic})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "test-key", ratelimit.New())
	results, err := c.Search(context.Background(), "Acme", "Denver", "CO")
	require.NoError(t, err)
	require.Len(t, results, maxResults)
}

func TestSearchClassifiesServerErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "test-key", ratelimit.New())
	_, err := c.Search(context.Background(), "Acme", "Denver", "CO")
	require.Error(t, err)
	var searchErr *SearchError
	require.ErrorAs(t, err, &searchErr)
	require.Equal(t, http.StatusServiceUnavailable, searchErr.StatusCode)
	require.Equal(t, errclass.KindTransient, errclass.ClassOf(err))
}

func TestSearchClassifiesBadRequestAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "test-key", ratelimit.New())
	_, err := c.Search(context.Background(), "Acme", "Denver", "CO")
	require.Error(t, err)
	require.Equal(t, errclass.KindPermanent, errclass.ClassOf(err))
}
