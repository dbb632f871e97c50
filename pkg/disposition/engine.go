// Package disposition implements the Disposition Engine: the central
// state machine driving every Business from its initial state to a
// terminal disposition. It orchestrates the Prescreener, Renderer,
// Search Client, and LLM Verifier, and records every transition onto the
// Business's append-only WebsiteMetadata history.
package disposition

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/llm"
	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/prescreen"
	"github.com/webleads/ingestion/pkg/render"
	"github.com/webleads/ingestion/pkg/search"
	"github.com/webleads/ingestion/pkg/urlnorm"
)

// FollowUp is the single work item, if any, that must be enqueued in the
// same transaction as a business transition — a business must never be
// left in a state with no scheduled next action.
type FollowUp struct {
	Kind      model.WorkKind
	DedupKey  string
	Payload   any
	Priority  int
	NotBefore time.Time
}

// Store is the persistence seam the engine needs: load a business and
// commit a transition — status, metadata, URL fields, and the follow-up
// work item enqueue (if any) — as one atomic unit. Implemented by
// pkg/store, which runs this inside a single SQL transaction.
type Store interface {
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	CommitTransition(ctx context.Context, b *model.Business, followUp *FollowUp) error
}

// Prescreener is the cheap-check seam. Implemented by *prescreen.Screener.
type Prescreener interface {
	Prescreen(ctx context.Context, rawURL string) prescreen.Result
}

// Renderer is the full-browser-fetch seam. Implemented by *render.Renderer.
type Renderer interface {
	Render(ctx context.Context, businessID, rawURL string) (*render.RenderedPage, error)
}

// Searcher is the web-search seam. Implemented by *search.Client.
type Searcher interface {
	Search(ctx context.Context, businessName, city, regionHint string) ([]search.Result, error)
}

// Verifier is the LLM decision seam. Implemented by *llm.Verifier.
type Verifier interface {
	Verify(ctx context.Context, bc llm.BusinessContext, ev llm.Evidence) model.Verdict
}

// Engine wires every evidence-gathering component behind the disposition
// state machine.
type Engine struct {
	store     Store
	prescreen Prescreener
	renderer  Renderer
	searcher  Searcher
	verifier  Verifier
	clock     clockwork.Clock
}

// New builds an Engine. clock is injectable so the timestamps the engine
// records are deterministic under test.
func New(store Store, prescreener Prescreener, renderer Renderer, searcher Searcher, verifier Verifier, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:     store,
		prescreen: prescreener,
		renderer:  renderer,
		searcher:  searcher,
		verifier:  verifier,
		clock:     clock,
	}
}

// EvaluateCandidate resolves one business's current candidate URL (if
// any) through prescreen -> render -> verify, and commits the resulting
// transition.
func (e *Engine) EvaluateCandidate(ctx context.Context, businessID string) error {
	b, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return fmt.Errorf("disposition: load business: %w", err)
	}
	if b.ValidationStatus.Terminal() {
		return fmt.Errorf("disposition: %w", errInvariant("business %s is already terminal (%s)", b.ID, b.ValidationStatus))
	}

	candidate := b.WebsiteURL

	// Step 1: no candidate URL at all.
	if candidate == "" {
		e.toNeedsDiscovery(b)
		return e.store.CommitTransition(ctx, b, e.discoverFollowUp(b))
	}

	// Step 2: prescreen.
	result := e.prescreen.Prescreen(ctx, candidate)
	if !result.Pass {
		switch result.Reason {
		case prescreen.ReasonBadSuffix, prescreen.ReasonBlockedHost:
			e.recordVerdict(b, candidate, model.VerdictMissing, 0, "prescreen: "+string(result.Reason), model.RecommendClearURLMarkMissing)
			b.WebsiteURL = ""
			e.toNeedsDiscovery(b)
			return e.store.CommitTransition(ctx, b, e.discoverFollowUp(b))
		default: // dns-failure, transport-failure, http-failure, invalid-scheme
			e.recordVerdict(b, candidate, model.VerdictInvalid, 0, "prescreen: "+string(result.Reason), model.RecommendMarkInvalidKeepURL)
			b.ValidationStatus = model.StatusInvalidTechnical
			return e.store.CommitTransition(ctx, b, nil)
		}
	}

	// Step 3: render.
	page, err := e.renderer.Render(ctx, b.ID.String(), candidate)
	var evidence llm.Evidence
	if err != nil {
		var rerr *render.RenderError
		if asRenderError(err, &rerr) && rerr.Kind == render.ErrorBlockedByBotWall {
			// Proceed to verify with URL/listing metadata only.
			evidence = llm.Evidence{}
		} else {
			e.recordVerdict(b, candidate, model.VerdictInvalid, 0, fmt.Sprintf("render failed: %v", err), model.RecommendMarkInvalidKeepURL)
			b.ValidationStatus = model.StatusInvalidTechnical
			return e.store.CommitTransition(ctx, b, nil)
		}
	} else {
		evidence = llm.Evidence{RenderedPage: page}
		b.QualityScore = page.QualityScore
	}

	// Step 4: verify.
	bc := businessContext(b)
	verdict := e.verifier.Verify(ctx, bc, evidence)

	// Step 5: apply the verdict.
	e.recordVerdict(b, candidate, verdict.Verdict, verdict.Confidence, verdict.Reasoning, verdict.Recommendation)
	switch verdict.Verdict {
	case model.VerdictValid:
		if b.Metadata.Source == model.SourceSearch {
			b.ValidationStatus = model.StatusValidFromSearch
		} else {
			b.ValidationStatus = model.StatusValidFromProvider
		}
		return e.store.CommitTransition(ctx, b, nil)
	case model.VerdictInvalid:
		b.ValidationStatus = model.StatusInvalidTechnical
		return e.store.CommitTransition(ctx, b, nil)
	default: // missing
		b.WebsiteURL = ""
		if b.Metadata.Source == "" {
			b.Metadata.Source = model.SourceNone
		}
		e.toNeedsDiscovery(b)
		return e.store.CommitTransition(ctx, b, e.discoverFollowUp(b))
	}
}

// DiscoverWebsite searches for the business, verifies the top results,
// and either transitions to validating with a fresh candidate or
// concludes confirmed_no_website.
func (e *Engine) DiscoverWebsite(ctx context.Context, businessID string) error {
	b, err := e.store.GetBusiness(ctx, businessID)
	if err != nil {
		return fmt.Errorf("disposition: load business: %w", err)
	}
	b.ValidationStatus = model.StatusDiscoveryInProgress

	results, err := e.searcher.Search(ctx, b.Name, b.City, b.Region)
	if err != nil {
		if errclass.Retryable(err) {
			return err // caller (worker) handles retry/backoff/dead-letter
		}
		b.ValidationStatus = model.StatusError
		return e.store.CommitTransition(ctx, b, nil)
	}

	bc := businessContext(b)
	verdict := e.verifier.Verify(ctx, bc, llm.Evidence{SearchResults: results})

	seen := b.Metadata.SeenURLs(urlnorm.Normalize)

	if verdict.Verdict == model.VerdictValid && verdict.Recommendation == model.RecommendUseURL && verdict.RecommendedURL != "" {
		if !seen[urlnorm.Normalize(verdict.RecommendedURL)] {
			b.WebsiteURL = verdict.RecommendedURL
			b.Metadata.Source = model.SourceSearch
			b.Metadata.SourceTimestamp = e.clock.Now()
			b.ValidationStatus = model.StatusValidating
			e.recordDiscoveryAttempt(b, string(model.SourceSearch), verdict.RecommendedURL, model.VerdictValid)
			return e.store.CommitTransition(ctx, b, e.validateFollowUp(b))
		}
		// Loop prevention: this URL already appears in history.
	}

	e.recordDiscoveryAttempt(b, string(model.SourceSearch), verdict.RecommendedURL, verdict.Verdict)
	b.ValidationStatus = model.StatusConfirmedNoWebsite
	return e.store.CommitTransition(ctx, b, e.generationFollowUp(b))
}

func (e *Engine) toNeedsDiscovery(b *model.Business) {
	b.ValidationStatus = model.StatusNeedsDiscovery
}

func (e *Engine) recordVerdict(b *model.Business, url string, label model.VerdictLabel, confidence float64, reasoning string, rec model.Recommendation) {
	b.Metadata.AppendHistory(model.ValidationHistoryEntry{
		Timestamp:      e.clock.Now(),
		URLEvaluated:   url,
		Verdict:        label,
		Confidence:     confidence,
		Reasoning:      reasoning,
		Recommendation: rec,
	})
}

func (e *Engine) recordDiscoveryAttempt(b *model.Business, method string, foundURL string, verdict model.VerdictLabel) {
	if b.Metadata.DiscoveryAttempts == nil {
		b.Metadata.DiscoveryAttempts = make(map[string]model.DiscoveryAttempt)
	}
	b.Metadata.DiscoveryAttempts[method] = model.DiscoveryAttempt{
		Attempted: true,
		Timestamp: e.clock.Now(),
		FoundURL:  foundURL,
		Verdict:   verdict,
	}
}

func (e *Engine) discoverFollowUp(b *model.Business) *FollowUp {
	return &FollowUp{
		Kind:      model.KindDiscoverWebsite,
		DedupKey:  discoverDedupKey(b.ID.String()),
		Payload:   map[string]string{"business_id": b.ID.String()},
		Priority:  5,
		NotBefore: e.clock.Now(),
	}
}

func (e *Engine) validateFollowUp(b *model.Business) *FollowUp {
	return &FollowUp{
		Kind:      model.KindValidateBusiness,
		DedupKey:  validateDedupKey(b.ID.String()),
		Payload:   map[string]string{"business_id": b.ID.String()},
		Priority:  5,
		NotBefore: e.clock.Now(),
	}
}

func (e *Engine) generationFollowUp(b *model.Business) *FollowUp {
	return &FollowUp{
		Kind:      model.KindSubmitGeneration,
		DedupKey:  "submit-generation:" + b.ID.String(),
		Payload:   map[string]string{"business_id": b.ID.String()},
		Priority:  5,
		NotBefore: e.clock.Now(),
	}
}

func discoverDedupKey(businessID string) string { return "discover:" + businessID }
func validateDedupKey(businessID string) string { return "validate:" + businessID }

func businessContext(b *model.Business) llm.BusinessContext {
	return llm.BusinessContext{
		Name:             b.Name,
		Phones:           []string{b.Phone},
		AddressFragments: []string{b.Address},
		City:             b.City,
		Region:           b.Region,
	}
}

func asRenderError(err error, target **render.RenderError) bool {
	for err != nil {
		if r, ok := err.(*render.RenderError); ok {
			*target = r
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type invariantError struct{ msg string }

func (e *invariantError) Error() string { return e.msg }

func errInvariant(format string, args ...any) error {
	return errclass.Internal(&invariantError{msg: fmt.Sprintf(format, args...)})
}
