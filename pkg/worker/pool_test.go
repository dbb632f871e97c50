package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/retry"
)

type fakeQueueStore struct {
	mu        sync.Mutex
	items     []*model.WorkItem
	completed []uuid.UUID
	failed    []uuid.UUID
	deadLetterOnFail bool
}

func (f *fakeQueueStore) Lease(_ context.Context, _ []model.WorkKind, _ string, _ time.Duration) (*model.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return nil, nil
	}
	item := f.items[0]
	f.items = f.items[1:]
	item.Attempts++
	return item, nil
}

func (f *fakeQueueStore) Complete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeQueueStore) Fail(_ context.Context, id uuid.UUID, _ error, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return f.deadLetterOnFail, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	alerted []model.DeadLetterItem
}

func (n *fakeNotifier) DeadLetter(_ context.Context, item model.DeadLetterItem) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerted = append(n.alerted, item)
}

func runOneItem(t *testing.T, store *fakeQueueStore, handler Handler, notifier DeadLetterNotifier) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	p := &Pool{
		Kind:        model.KindValidateBusiness,
		Concurrency: 1,
		Store:       store,
		Handler:     handler,
		RetryConfig: retry.Config{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: time.Minute},
		Clock:       clock,
		Notifier:    notifier,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.completed)+len(store.failed) > 0
	}, 2*time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestProcessCompletesOnSuccess(t *testing.T) {
	item := &model.WorkItem{ID: uuid.New(), Kind: model.KindValidateBusiness}
	store := &fakeQueueStore{items: []*model.WorkItem{item}}

	runOneItem(t, store, func(_ context.Context, _ *model.WorkItem) error { return nil }, nil)

	require.Equal(t, []uuid.UUID{item.ID}, store.completed)
	require.Empty(t, store.failed)
}

func TestProcessCompletesOnSemanticError(t *testing.T) {
	item := &model.WorkItem{ID: uuid.New(), Kind: model.KindValidateBusiness}
	store := &fakeQueueStore{items: []*model.WorkItem{item}}

	runOneItem(t, store, func(_ context.Context, _ *model.WorkItem) error {
		return errclass.Wrap(errclass.KindSemantic, errors.New("not a website"))
	}, nil)

	require.Equal(t, []uuid.UUID{item.ID}, store.completed)
	require.Empty(t, store.failed)
}

func TestProcessFailsAndSkipsNotifyWhenNotDeadLettered(t *testing.T) {
	item := &model.WorkItem{ID: uuid.New(), Kind: model.KindValidateBusiness, MaxAttempts: 3}
	store := &fakeQueueStore{items: []*model.WorkItem{item}, deadLetterOnFail: false}
	notifier := &fakeNotifier{}

	runOneItem(t, store, func(_ context.Context, _ *model.WorkItem) error {
		return errclass.Transient(errors.New("timeout"))
	}, notifier)

	require.Equal(t, []uuid.UUID{item.ID}, store.failed)
	require.Empty(t, notifier.alerted)
}

func TestProcessNotifiesOnDeadLetter(t *testing.T) {
	item := &model.WorkItem{ID: uuid.New(), Kind: model.KindValidateBusiness, MaxAttempts: 3}
	store := &fakeQueueStore{items: []*model.WorkItem{item}, deadLetterOnFail: true}
	notifier := &fakeNotifier{}

	runOneItem(t, store, func(_ context.Context, _ *model.WorkItem) error {
		return errclass.Permanent(errors.New("rejected"))
	}, notifier)

	require.Equal(t, []uuid.UUID{item.ID}, store.failed)
	require.Len(t, notifier.alerted, 1)
	require.Equal(t, item.ID, notifier.alerted[0].ID)
}
