package notify

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/webleads/ingestion/pkg/model"
)

func TestNoTokenIsANoOp(t *testing.T) {
	n := New("", "C123", nil)

	require.NotPanics(t, func() {
		n.DeadLetter(context.Background(), model.DeadLetterItem{
			WorkItem: model.WorkItem{ID: uuid.New(), Kind: model.KindValidateBusiness, MaxAttempts: 3},
			LastError: "boom",
		})
		n.BusinessError(context.Background(), &model.Business{ID: uuid.New(), Name: "Acme"}, "rendered page had no content")
		n.CampaignComplete(context.Background(), &model.Campaign{ID: uuid.New(), City: "Austin"}, model.ResultCounts{Saved: 10})
	})
}
