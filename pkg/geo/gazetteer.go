package geo

import (
	"context"
	"fmt"
	"strings"
)

// Gazetteer is a CityLookup backed by a small in-process table, in the
// same static-list spirit as config.DefaultBlockedHosts: enough seed
// data to drive real campaigns against the country/region/city names the
// Campaign Coordinator is actually given, without depending on an
// external geocoding service.
type Gazetteer struct {
	entries map[string]CityInfo
}

// NewGazetteer builds a Gazetteer from the given entries, keyed
// case-insensitively on "country/region/city".
func NewGazetteer(entries map[string]CityInfo) *Gazetteer {
	g := &Gazetteer{entries: make(map[string]CityInfo, len(entries))}
	for k, v := range entries {
		g.entries[strings.ToLower(k)] = v
	}
	return g
}

// DefaultGazetteer seeds the handful of metros the coordinator command
// plans against (cmd/coordinator) and local development.
var DefaultGazetteer = NewGazetteer(map[string]CityInfo{
	"us/tx/austin":        {CenterLat: 30.2672, CenterLon: -97.7431, Population: 965000},
	"us/tx/houston":       {CenterLat: 29.7604, CenterLon: -95.3698, Population: 2304000},
	"us/ca/los angeles":   {CenterLat: 34.0522, CenterLon: -118.2437, Population: 3899000},
	"us/ny/new york":      {CenterLat: 40.7128, CenterLon: -74.0060, Population: 8336000},
	"us/il/chicago":       {CenterLat: 41.8781, CenterLon: -87.6298, Population: 2746000},
	"us/wa/seattle":       {CenterLat: 47.6062, CenterLon: -122.3321, Population: 737000},
	"us/co/denver":        {CenterLat: 39.7392, CenterLon: -104.9903, Population: 715000},
	"us/fl/miami":         {CenterLat: 25.7617, CenterLon: -80.1918, Population: 467000},
})

// Lookup implements CityLookup.
func (g *Gazetteer) Lookup(_ context.Context, country, region, city string) (*CityInfo, error) {
	key := strings.ToLower(country + "/" + region + "/" + city)
	info, ok := g.entries[key]
	if !ok {
		return nil, &PlannerError{City: city, Region: region, Reason: fmt.Sprintf("no gazetteer entry for %q", key)}
	}
	cp := info
	return &cp, nil
}
