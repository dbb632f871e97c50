package listing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePrefersWebsiteFieldOrder(t *testing.T) {
	raw := json.RawMessage(`{"id":"abc123","name":"Mollaei Law","site":"https://site.example","domain":"domain.example"}`)
	rb, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "abc123", rb.ExternalListingID)
	require.Equal(t, "Mollaei Law", rb.Name)
	require.Equal(t, "https://site.example", rb.CandidateWebsite)
	require.JSONEq(t, string(raw), string(rb.Raw))
}

func TestNormalizeNoWebsite(t *testing.T) {
	raw := json.RawMessage(`{"id":"abc124","name":"Proby's Tax"}`)
	rb, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "", rb.CandidateWebsite)
}

func TestNormalizeDoesNotDropAggregatorURL(t *testing.T) {
	// Normalization must not apply content heuristics ; an
	// aggregator URL passes through untouched.
	raw := json.RawMessage(`{"id":"abc125","name":"Wander CPA","website":"https://www.yelp.com/biz/wander-cpa-los-angeles"}`)
	rb, err := Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, "https://www.yelp.com/biz/wander-cpa-los-angeles", rb.CandidateWebsite)
}

func TestQueryStringFormat(t *testing.T) {
	got := queryString("plumbers", "Los Angeles", "CA", "United States")
	require.Equal(t, "plumbers, Los Angeles, CA, United States", got)
}
