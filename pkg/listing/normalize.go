package listing

import (
	"encoding/json"
	"fmt"
)

// websiteFieldOrder is the precedence used to pick a candidate website
// field: the first non-empty of {website, site, url, domain, web, homepage}.
var websiteFieldOrder = []string{"website", "site", "url", "domain", "web", "homepage"}

// Normalize flattens one raw provider record into a RawBusiness, preserving
// the full payload under Raw and extracting the candidate website without
// any content-based filtering: normalization must not discard the
// candidate URL based on content heuristics — that's the Disposition
// Engine's job, via the Prescreener.
func Normalize(raw json.RawMessage) (RawBusiness, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RawBusiness{}, fmt.Errorf("listing: normalize: %w", err)
	}

	rb := RawBusiness{
		ExternalListingID: str(fields, "id", "place_id", "listing_id"),
		Name:               str(fields, "name", "business_name", "title"),
		Category:           str(fields, "category", "type", "categories"),
		Address:            str(fields, "address", "full_address", "formatted_address"),
		City:               str(fields, "city"),
		Region:             str(fields, "region", "state"),
		Country:            str(fields, "country"),
		Phone:              str(fields, "phone", "phone_number", "telephone"),
		Latitude:           num(fields, "latitude", "lat"),
		Longitude:          num(fields, "longitude", "lon", "lng"),
		Rating:             num(fields, "rating", "stars"),
		ReviewCount:        int(num(fields, "review_count", "reviews", "user_ratings_total")),
		Raw:                raw,
	}

	for _, key := range websiteFieldOrder {
		if v := str(fields, key); v != "" {
			rb.CandidateWebsite = v
			break
		}
	}

	return rb, nil
}

func str(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func num(fields map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}
