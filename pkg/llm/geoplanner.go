package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/getsentry/sentry-go"

	"github.com/webleads/ingestion/pkg/geo"
)

// DistrictPlanner implements geo.DistrictPlanner using the Anthropic API.
// It uses a separate system prompt from the Verifier's — this call asks
// for neighborhood-level geographic judgment, not evidence verification,
// and the two should not share a prompt.
type DistrictPlanner struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewDistrictPlanner builds a district planner backed by the same
// Anthropic client configuration style as the Verifier.
func NewDistrictPlanner(model anthropic.Model, maxTokens int64) *DistrictPlanner {
	return &DistrictPlanner{client: anthropic.NewClient(), model: model, maxTokens: maxTokens}
}

const districtSystemPrompt = `You produce a neighborhood-level canvassing plan for local-business discovery.
Respond with a single JSON object matching exactly this shape, and nothing else:
{"districts":[{"name":"...","center_lat":0.0,"center_lon":0.0,"radius_km":0.0,"density":"high|medium|low"}]}
Cover the full metro area of the requested city with non-overlapping, named districts (neighborhoods, downtown cores, commercial corridors, suburbs). density reflects the expected concentration of the requested business category in that district: high for commercial cores, low for primarily residential areas.`

// PlanDistricts implements geo.DistrictPlanner.
func (d *DistrictPlanner) PlanDistricts(ctx context.Context, country, region, city, category string) (*geo.DistrictPlan, error) {
	span := sentry.StartSpan(ctx, "gen_ai.chat", sentry.WithDescription(fmt.Sprintf("chat %s", d.model)))
	span.SetData("gen_ai.operation.name", "chat")
	span.SetData("gen_ai.request.model", string(d.model))
	ctx = span.Context()
	defer span.Finish()

	prompt := fmt.Sprintf("City: %s\nRegion: %s\nCountry: %s\nBusiness category: %s\n", city, region, country, category)

	msg, err := d.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: districtSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return nil, fmt.Errorf("geo district planner: anthropic call: %w", err)
	}
	span.Status = sentry.SpanStatusOK

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("geo district planner: no text content in response")
	}

	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var plan geo.DistrictPlan
	if err := json.Unmarshal([]byte(trimmed), &plan); err != nil {
		return nil, fmt.Errorf("geo district planner: decode response: %w", err)
	}
	plan.Raw = json.RawMessage(trimmed)
	return &plan, nil
}
