package prescreen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrescreenInvalidScheme(t *testing.T) {
	s := New(nil)
	r := s.Prescreen(context.Background(), "mailto:someone@example.com")
	require.False(t, r.Pass)
	require.Equal(t, ReasonInvalidScheme, r.Reason)
}

func TestPrescreenBadSuffix(t *testing.T) {
	s := New(nil)
	r := s.Prescreen(context.Background(), "https://example.com/brochure.pdf")
	require.False(t, r.Pass)
	require.Equal(t, ReasonBadSuffix, r.Reason)
}

func TestPrescreenBlockedHost(t *testing.T) {
	s := New([]string{"yelp.com"})
	r := s.Prescreen(context.Background(), "https://www.yelp.com/biz/wander-cpa-los-angeles")
	require.False(t, r.Pass)
	require.Equal(t, ReasonBlockedHost, r.Reason)
}

func TestPrescreenDNSFailure(t *testing.T) {
	s := New(nil)
	r := s.Prescreen(context.Background(), "https://this-domain-does-not-exist-ingestion-test.invalid/")
	require.False(t, r.Pass)
	require.Equal(t, ReasonDNSFailure, r.Reason)
}

func TestPrescreenHTTPPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(nil)
	r := s.Prescreen(context.Background(), srv.URL)
	require.True(t, r.Pass)
}

func TestPrescreenHTTPFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(nil)
	r := s.Prescreen(context.Background(), srv.URL)
	require.False(t, r.Pass)
	require.Equal(t, ReasonHTTPFailure, r.Reason)
}

func TestPrescreenFallsBackToGETWhenHEADNotAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(nil)
	r := s.Prescreen(context.Background(), srv.URL)
	require.True(t, r.Pass)
}
