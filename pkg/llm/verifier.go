// Package llm implements the LLM Verifier: a stateless decision function
// over a business and one form of website evidence, returning a
// schema-constrained Verdict. Adapted from agent/pkg/workflow/anthropic.go's
// client wrapper — same sentry span + structured-logging pattern around
// the Anthropic Messages API, narrowed here to a single non-streaming,
// non-tool completion call.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/getsentry/sentry-go"

	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/render"
	"github.com/webleads/ingestion/pkg/search"
)

// BusinessContext is the subject of verification.
type BusinessContext struct {
	Name            string
	Phones          []string
	Emails          []string
	AddressFragments []string
	City            string
	Region          string
}

// Evidence is exactly one of RenderedPage or SearchResults — the two
// forms of evidence the Verifier can be asked to judge.
type Evidence struct {
	RenderedPage  *render.RenderedPage
	SearchResults []search.Result
}

const schemaFailureReasoning = "verifier schema failure"

// Verifier wraps an Anthropic client configured for verification calls.
type Verifier struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// New builds a Verifier. model/maxTokens are configured per call-site
// rather than hardcoded.
func New(model anthropic.Model, maxTokens int64) *Verifier {
	return &Verifier{
		client:    anthropic.NewClient(),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Verify runs verify(context, evidence) -> Verdict. Retries once on
// schema-invalid output; on persistent malformed output returns the
// documented fallback Verdict rather than an error, so the caller always
// has a usable (if low-confidence) result.
func (v *Verifier) Verify(ctx context.Context, bc BusinessContext, ev Evidence) model.Verdict {
	prompt := buildPrompt(bc, ev)

	for attempt := 0; attempt < 2; attempt++ {
		raw, err := v.complete(ctx, prompt)
		if err != nil {
			slog.Error("llm verifier: completion failed", "attempt", attempt, "error", err)
			continue
		}
		verdict, err := parseVerdict(raw)
		if err == nil {
			return verdict
		}
		slog.Warn("llm verifier: schema-invalid output", "attempt", attempt, "error", err)
	}

	return model.Verdict{
		Verdict:        model.VerdictMissing,
		Confidence:     0,
		Reasoning:      schemaFailureReasoning,
		Recommendation: model.RecommendClearURLMarkMissing,
	}
}

func (v *Verifier) complete(ctx context.Context, prompt string) (string, error) {
	span := sentry.StartSpan(ctx, "gen_ai.chat", sentry.WithDescription(fmt.Sprintf("chat %s", v.model)))
	span.SetData("gen_ai.operation.name", "chat")
	span.SetData("gen_ai.request.model", string(v.model))
	span.SetData("gen_ai.system", "anthropic")
	ctx = span.Context()
	defer span.Finish()

	start := time.Now()
	msg, err := v.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	duration := time.Since(start)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		return "", fmt.Errorf("llm verifier: anthropic call: %w", err)
	}
	slog.Info("llm verifier: completion", "duration", duration, "inputTokens", msg.Usage.InputTokens, "outputTokens", msg.Usage.OutputTokens)
	span.Status = sentry.SpanStatusOK

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("llm verifier: no text content in response")
}

const systemPrompt = `You determine whether a URL is a local business's own website.
Respond with a single JSON object matching exactly this shape, and nothing else:
{"verdict":"valid|invalid|missing","confidence":0.0,"reasoning":"...","recommendation":"keep_url|clear_url_and_mark_missing|mark_invalid_keep_url|use_url","recommended_url":"","match_signals":{"phone_match":false,"address_match":false,"name_match":false,"is_directory":false,"is_aggregator":false}}
valid: the evidence establishes the URL is the business's own site, even if low quality.
invalid: the URL is theirs but broken or a placeholder; retain it but mark technically invalid.
missing: the URL is not theirs (directory, aggregator, unrelated business, social profile); it should be cleared.
Strong-match signals that should drive valid: phone match (exact or same area code + exchange), the business name appearing in the title or main heading, a matching street name or zip, two or more independent contact methods aligning.
Mismatch signals that should drive missing: a different phone number, the name absent from the page, the wrong city or region prominently displayed, an obvious directory/aggregator structure.`

func buildPrompt(bc BusinessContext, ev Evidence) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Business: %s\n", bc.Name)
	fmt.Fprintf(&b, "City: %s  Region: %s\n", bc.City, bc.Region)
	if len(bc.Phones) > 0 {
		fmt.Fprintf(&b, "Known phones: %s\n", strings.Join(bc.Phones, ", "))
	}
	if len(bc.Emails) > 0 {
		fmt.Fprintf(&b, "Known emails: %s\n", strings.Join(bc.Emails, ", "))
	}
	if len(bc.AddressFragments) > 0 {
		fmt.Fprintf(&b, "Known address fragments: %s\n", strings.Join(bc.AddressFragments, ", "))
	}

	switch {
	case ev.RenderedPage != nil:
		p := ev.RenderedPage
		fmt.Fprintf(&b, "\nEvidence: rendered page at %s\n", p.FinalURL)
		fmt.Fprintf(&b, "Title: %s\nMeta description: %s\n", p.Title, p.MetaDescription)
		fmt.Fprintf(&b, "Phones found: %s\nEmails found: %s\n", strings.Join(p.Phones, ", "), strings.Join(p.Emails, ", "))
		fmt.Fprintf(&b, "Has address block: %v  Has hours block: %v\n", p.HasAddress, p.HasHours)
		fmt.Fprintf(&b, "Content preview: %s\n", p.ContentPreview)
	case len(ev.SearchResults) > 0:
		fmt.Fprintf(&b, "\nEvidence: %d search results\n", len(ev.SearchResults))
		for _, r := range ev.SearchResults {
			fmt.Fprintf(&b, "%d. %s - %s\n   %s\n", r.Position, r.Title, r.Link, r.Snippet)
		}
	default:
		b.WriteString("\nEvidence: none available.\n")
	}
	return b.String()
}

// parseVerdict decodes the model's JSON response, tolerating a fenced code
// block (some models wrap JSON in ```json ... ``` despite instructions).
func parseVerdict(raw string) (model.Verdict, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var v model.Verdict
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return model.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	if err := validateVerdict(v); err != nil {
		return model.Verdict{}, err
	}
	return v, nil
}

func validateVerdict(v model.Verdict) error {
	switch v.Verdict {
	case model.VerdictValid, model.VerdictInvalid, model.VerdictMissing:
	default:
		return fmt.Errorf("unrecognized verdict label %q", v.Verdict)
	}
	switch v.Recommendation {
	case model.RecommendKeepURL, model.RecommendClearURLMarkMissing, model.RecommendMarkInvalidKeepURL, model.RecommendUseURL:
	default:
		return fmt.Errorf("unrecognized recommendation %q", v.Recommendation)
	}
	if v.Recommendation == model.RecommendUseURL && v.RecommendedURL == "" {
		return fmt.Errorf("recommendation use_url requires recommended_url")
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", v.Confidence)
	}
	return nil
}
