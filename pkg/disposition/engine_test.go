package disposition

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/llm"
	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/prescreen"
	"github.com/webleads/ingestion/pkg/render"
	"github.com/webleads/ingestion/pkg/search"
)

type fakeStore struct {
	businesses map[string]*model.Business
	followUps  []*FollowUp
}

func newFakeStore(b *model.Business) *fakeStore {
	return &fakeStore{businesses: map[string]*model.Business{b.ID.String(): b}}
}

func (f *fakeStore) GetBusiness(_ context.Context, id string) (*model.Business, error) {
	b, ok := f.businesses[id]
	if !ok {
		return nil, &notFoundErr{}
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) CommitTransition(_ context.Context, b *model.Business, followUp *FollowUp) error {
	f.businesses[b.ID.String()] = b
	f.followUps = append(f.followUps, followUp)
	return nil
}

func (f *fakeStore) followUpKinds() []model.WorkKind {
	var kinds []model.WorkKind
	for _, fu := range f.followUps {
		if fu != nil {
			kinds = append(kinds, fu.Kind)
		}
	}
	return kinds
}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "business not found" }

type fakePrescreen struct{ result prescreen.Result }

func (f *fakePrescreen) Prescreen(context.Context, string) prescreen.Result { return f.result }

type fakeRenderer struct {
	page *render.RenderedPage
	err  error
}

func (f *fakeRenderer) Render(context.Context, string, string) (*render.RenderedPage, error) {
	return f.page, f.err
}

type fakeSearcher struct {
	results []search.Result
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, string, string) ([]search.Result, error) {
	return f.results, f.err
}

type fakeVerifier struct{ verdict model.Verdict }

func (f *fakeVerifier) Verify(context.Context, llm.BusinessContext, llm.Evidence) model.Verdict {
	return f.verdict
}

func newTestBusiness(status model.WebsiteValidationStatus, websiteURL string) *model.Business {
	return &model.Business{
		ID:               uuid.New(),
		Name:             "Wander CPA",
		City:             "Los Angeles",
		Region:           "CA",
		WebsiteURL:       websiteURL,
		ValidationStatus: status,
	}
}

func TestEvaluateCandidateNoURLGoesToNeedsDiscovery(t *testing.T) {
	b := newTestBusiness(model.StatusPending, "")
	store := newFakeStore(b)
	eng := New(store, &fakePrescreen{}, &fakeRenderer{}, &fakeSearcher{}, &fakeVerifier{}, clockwork.NewFakeClock())

	err := eng.EvaluateCandidate(context.Background(), b.ID.String())
	require.NoError(t, err)
	require.Equal(t, model.StatusNeedsDiscovery, store.businesses[b.ID.String()].ValidationStatus)
	require.Equal(t, []model.WorkKind{model.KindDiscoverWebsite}, store.followUpKinds())
}

func TestEvaluateCandidateBlockedHostClearsURLAndRediscovers(t *testing.T) {
	b := newTestBusiness(model.StatusValidating, "https://www.yelp.com/biz/wander-cpa")
	store := newFakeStore(b)
	eng := New(store,
		&fakePrescreen{result: prescreen.Result{Pass: false, Reason: prescreen.ReasonBlockedHost}},
		&fakeRenderer{}, &fakeSearcher{}, &fakeVerifier{}, clockwork.NewFakeClock())

	err := eng.EvaluateCandidate(context.Background(), b.ID.String())
	require.NoError(t, err)
	got := store.businesses[b.ID.String()]
	require.Equal(t, model.StatusNeedsDiscovery, got.ValidationStatus)
	require.Equal(t, "", got.WebsiteURL)
	require.Len(t, got.Metadata.ValidationHistory, 1)
	require.Equal(t, model.VerdictMissing, got.Metadata.ValidationHistory[0].Verdict)
	require.NotNil(t, store.followUps[0])
}

func TestEvaluateCandidateTransportFailureGoesInvalidTechnicalWithNoFollowUp(t *testing.T) {
	b := newTestBusiness(model.StatusValidating, "https://dead-site.example")
	store := newFakeStore(b)
	eng := New(store,
		&fakePrescreen{result: prescreen.Result{Pass: false, Reason: prescreen.ReasonTransportFailure}},
		&fakeRenderer{}, &fakeSearcher{}, &fakeVerifier{}, clockwork.NewFakeClock())

	err := eng.EvaluateCandidate(context.Background(), b.ID.String())
	require.NoError(t, err)
	got := store.businesses[b.ID.String()]
	require.Equal(t, model.StatusInvalidTechnical, got.ValidationStatus)
	require.Equal(t, "https://dead-site.example", got.WebsiteURL)
	require.Nil(t, store.followUps[0])
}

func TestEvaluateCandidateBotWallStillVerifiesOnMetadataOnly(t *testing.T) {
	b := newTestBusiness(model.StatusValidating, "https://walled.example")
	store := newFakeStore(b)
	eng := New(store,
		&fakePrescreen{result: prescreen.Result{Pass: true}},
		&fakeRenderer{err: &render.RenderError{Kind: render.ErrorBlockedByBotWall}},
		&fakeSearcher{},
		&fakeVerifier{verdict: model.Verdict{Verdict: model.VerdictValid, Recommendation: model.RecommendKeepURL}},
		clockwork.NewFakeClock())

	err := eng.EvaluateCandidate(context.Background(), b.ID.String())
	require.NoError(t, err)
	require.Equal(t, model.StatusValidFromProvider, store.businesses[b.ID.String()].ValidationStatus)
}

func TestEvaluateCandidateVerdictMissingClearsAndRediscovers(t *testing.T) {
	b := newTestBusiness(model.StatusValidating, "https://aggregator.example/listing")
	store := newFakeStore(b)
	eng := New(store,
		&fakePrescreen{result: prescreen.Result{Pass: true}},
		&fakeRenderer{page: &render.RenderedPage{FinalURL: "https://aggregator.example/listing"}},
		&fakeSearcher{},
		&fakeVerifier{verdict: model.Verdict{Verdict: model.VerdictMissing, Recommendation: model.RecommendClearURLMarkMissing}},
		clockwork.NewFakeClock())

	err := eng.EvaluateCandidate(context.Background(), b.ID.String())
	require.NoError(t, err)
	got := store.businesses[b.ID.String()]
	require.Equal(t, model.StatusNeedsDiscovery, got.ValidationStatus)
	require.Equal(t, "", got.WebsiteURL)
	require.Equal(t, []model.WorkKind{model.KindDiscoverWebsite}, store.followUpKinds())
}

func TestDiscoverWebsiteLoopPreventionForcesConfirmedNoWebsite(t *testing.T) {
	b := newTestBusiness(model.StatusDiscoveryInProgress, "")
	b.Metadata.AppendHistory(model.ValidationHistoryEntry{URLEvaluated: "https://seen-before.example"})
	store := newFakeStore(b)
	eng := New(store, &fakePrescreen{}, &fakeRenderer{},
		&fakeSearcher{results: []search.Result{{Title: "Wander CPA", Link: "https://seen-before.example"}}},
		&fakeVerifier{verdict: model.Verdict{
			Verdict:        model.VerdictValid,
			Recommendation: model.RecommendUseURL,
			RecommendedURL: "https://seen-before.example",
		}},
		clockwork.NewFakeClock())

	err := eng.DiscoverWebsite(context.Background(), b.ID.String())
	require.NoError(t, err)
	got := store.businesses[b.ID.String()]
	require.Equal(t, model.StatusConfirmedNoWebsite, got.ValidationStatus)
	require.Equal(t, []model.WorkKind{model.KindSubmitGeneration}, store.followUpKinds())
	attempt, ok := got.Metadata.DiscoveryAttempts[string(model.SourceSearch)]
	require.True(t, ok)
	require.True(t, attempt.Attempted)
}

func TestDiscoverWebsiteFreshURLGoesToValidating(t *testing.T) {
	b := newTestBusiness(model.StatusDiscoveryInProgress, "")
	store := newFakeStore(b)
	eng := New(store, &fakePrescreen{}, &fakeRenderer{},
		&fakeSearcher{results: []search.Result{{Title: "Wander CPA", Link: "https://wandercpa.example"}}},
		&fakeVerifier{verdict: model.Verdict{
			Verdict:        model.VerdictValid,
			Recommendation: model.RecommendUseURL,
			RecommendedURL: "https://wandercpa.example",
		}},
		clockwork.NewFakeClock())

	err := eng.DiscoverWebsite(context.Background(), b.ID.String())
	require.NoError(t, err)
	got := store.businesses[b.ID.String()]
	require.Equal(t, model.StatusValidating, got.ValidationStatus)
	require.Equal(t, "https://wandercpa.example", got.WebsiteURL)
	require.Equal(t, model.SourceSearch, got.Metadata.Source)
	require.Equal(t, []model.WorkKind{model.KindValidateBusiness}, store.followUpKinds())
	attempt, ok := got.Metadata.DiscoveryAttempts[string(model.SourceSearch)]
	require.True(t, ok)
	require.Equal(t, "https://wandercpa.example", attempt.FoundURL)
}

func TestDiscoverWebsiteNoMatchGoesConfirmedNoWebsite(t *testing.T) {
	b := newTestBusiness(model.StatusDiscoveryInProgress, "")
	store := newFakeStore(b)
	eng := New(store, &fakePrescreen{}, &fakeRenderer{},
		&fakeSearcher{results: nil},
		&fakeVerifier{verdict: model.Verdict{Verdict: model.VerdictMissing, Recommendation: model.RecommendClearURLMarkMissing}},
		clockwork.NewFakeClock())

	err := eng.DiscoverWebsite(context.Background(), b.ID.String())
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmedNoWebsite, store.businesses[b.ID.String()].ValidationStatus)
	require.Equal(t, []model.WorkKind{model.KindSubmitGeneration}, store.followUpKinds())
}

func TestEvaluateCandidateRejectsTerminalBusiness(t *testing.T) {
	b := newTestBusiness(model.StatusValidFromProvider, "https://wandercpa.example")
	store := newFakeStore(b)
	eng := New(store, &fakePrescreen{}, &fakeRenderer{}, &fakeSearcher{}, &fakeVerifier{}, clockwork.NewFakeClock())

	err := eng.EvaluateCandidate(context.Background(), b.ID.String())
	require.Error(t, err)
}
