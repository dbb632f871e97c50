// Package geo implements the Geo Planner: partitioning a (country,
// region, city, category) campaign into a ranked list of search zones,
// either by a uniform population-sized grid or by an LLM-driven adaptive
// district plan.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/webleads/ingestion/pkg/model"
)

// PlannerError is returned when no coordinates can be resolved for the
// requested geography.
type PlannerError struct {
	City   string
	Region string
	Reason string
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("geo planner: cannot resolve %s, %s: %s", e.City, e.Region, e.Reason)
}

// CityLookup resolves a (country, region, city) to its center coordinates
// and population. A real deployment backs this by a geocoding service or
// static gazetteer; it is injected so the Planner stays pure of that
// concern.
type CityLookup interface {
	Lookup(ctx context.Context, country, region, city string) (*CityInfo, error)
}

// CityInfo is what the Planner needs to know about a city to grid it.
type CityInfo struct {
	CenterLat  float64
	CenterLon  float64
	Population int64
}

// DistrictPlanner produces the adaptive, LLM-driven district list.
// Implemented by pkg/llm using the Anthropic client.
type DistrictPlanner interface {
	PlanDistricts(ctx context.Context, country, region, city, category string) (*DistrictPlan, error)
}

// District is one LLM-suggested sub-area of a city.
type District struct {
	Name      string  `json:"name"`
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	RadiusKM  float64 `json:"radius_km"`
	Density   string  `json:"density"` // high | medium | low
}

// DistrictPlan is the LLM's raw response, persisted verbatim on the
// Campaign record.
type DistrictPlan struct {
	Districts []District      `json:"districts"`
	Raw       json.RawMessage `json:"-"`
}

// Planner implements both planning modes.
type Planner struct {
	cities    CityLookup
	districts DistrictPlanner // nil disables adaptive mode
}

// New builds a Planner. districts may be nil, in which case Plan always
// falls back to uniform mode.
func New(cities CityLookup, districts DistrictPlanner) *Planner {
	return &Planner{cities: cities, districts: districts}
}

// densityPriority maps DistrictPlan density labels to zone priority:
// high/medium/low density districts become priority 9/6/3.
func densityPriority(density string) int {
	switch density {
	case "high":
		return 9
	case "medium":
		return 6
	default:
		return 3
	}
}

// Plan produces an ordered list of zones for campaign c, plus the raw LLM
// response when adaptive mode produced them (nil in uniform mode), for
// the caller to persist on the Campaign record. It prefers adaptive mode
// (requires a DistrictPlanner); on LLM failure, or when no DistrictPlanner
// is configured, it falls back to the uniform grid. Deterministic given
// the same inputs and LLM response.
func (p *Planner) Plan(ctx context.Context, c model.Campaign) ([]model.Zone, json.RawMessage, error) {
	if p.districts != nil {
		zones, raw, err := p.planAdaptive(ctx, c)
		if err == nil {
			return zones, raw, nil
		}
		// Adaptive failed: fall through to uniform.
	}
	zones, err := p.planUniform(ctx, c)
	return zones, nil, err
}

func (p *Planner) planAdaptive(ctx context.Context, c model.Campaign) ([]model.Zone, json.RawMessage, error) {
	plan, err := p.districts.PlanDistricts(ctx, c.Country, c.Region, c.City, c.Category)
	if err != nil {
		return nil, nil, fmt.Errorf("adaptive plan: %w", err)
	}
	if len(plan.Districts) == 0 {
		return nil, nil, fmt.Errorf("adaptive plan: empty district list")
	}

	zones := make([]model.Zone, 0, len(plan.Districts))
	for _, d := range plan.Districts {
		zones = append(zones, model.Zone{
			ID:         uuid.New(),
			CampaignID: c.ID,
			ZoneID:     zoneSlug(d.Name),
			CenterLat:  d.CenterLat,
			CenterLon:  d.CenterLon,
			RadiusKM:   d.RadiusKM,
			Priority:   densityPriority(d.Density),
			Status:     model.ZonePending,
		})
	}
	raw := plan.Raw
	if len(raw) == 0 {
		if raw, err = json.Marshal(plan); err != nil {
			return nil, nil, fmt.Errorf("adaptive plan: encode raw plan: %w", err)
		}
	}
	return zones, raw, nil
}

// gridDimension maps city population to a grid size.
func gridDimension(population int64) int {
	switch {
	case population >= 1_000_000:
		return 5
	case population >= 500_000:
		return 4
	case population >= 250_000:
		return 3
	case population >= 100_000:
		return 2
	default:
		return 1
	}
}

// earthRadiusKM is used for the equirectangular approximation below; at
// city scale (grid cells a few km to tens of km across) this is accurate
// enough for zone radii, which themselves carry a 1.1x safety margin.
const earthRadiusKM = 6371.0

// citySpanKM is the assumed full span (edge to edge) of a city's
// metro area used to lay the uniform grid over, scaled mildly by
// population since larger cities sprawl further. This is the Planner's
// only free parameter in uniform mode; adaptive mode has none.
func citySpanKM(population int64) float64 {
	switch {
	case population >= 1_000_000:
		return 40
	case population >= 500_000:
		return 30
	case population >= 250_000:
		return 22
	case population >= 100_000:
		return 15
	default:
		return 10
	}
}

func (p *Planner) planUniform(ctx context.Context, c model.Campaign) ([]model.Zone, error) {
	info, err := p.cities.Lookup(ctx, c.Country, c.Region, c.City)
	if err != nil || info == nil {
		return nil, &PlannerError{City: c.City, Region: c.Region, Reason: "city coordinates unavailable"}
	}

	n := gridDimension(info.Population)
	span := citySpanKM(info.Population)
	cellSide := span / float64(n)
	// Diagonal of a square cell with side cellSide, radius = diagonal/2 * 1.1.
	radius := (cellSide * math.Sqrt2 / 2) * 1.1

	latPerKM := 1.0 / (earthRadiusKM * math.Pi / 180.0)
	lonPerKM := 1.0 / (earthRadiusKM * math.Pi / 180.0 * math.Cos(info.CenterLat*math.Pi/180.0))

	zones := make([]model.Zone, 0, n*n)
	half := span / 2
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			// Cell center offset from the city center, in km, then
			// converted to degrees.
			offsetXKM := -half + cellSide*(float64(col)+0.5)
			offsetYKM := -half + cellSide*(float64(row)+0.5)

			lat := info.CenterLat + offsetYKM*latPerKM
			lon := info.CenterLon + offsetXKM*lonPerKM

			zones = append(zones, model.Zone{
				ID:         uuid.New(),
				CampaignID: c.ID,
				ZoneID:     fmt.Sprintf("grid-%d-%d", row, col),
				CenterLat:  lat,
				CenterLon:  lon,
				RadiusKM:   radius,
				Priority:   5, // uniform priority: no density signal to rank by
				Status:     model.ZonePending,
			})
		}
	}
	return zones, nil
}

func zoneSlug(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '_' || r == '-':
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	s := string(out)
	for len(s) > 0 && s[len(s)-1] == '-' {
		s = s[:len(s)-1]
	}
	if s == "" {
		return "district"
	}
	return s
}
