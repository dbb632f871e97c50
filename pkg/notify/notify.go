// Package notify implements the Notifier: best-effort delivery of
// operator-facing alerts to a Slack channel for dead-letter arrivals,
// businesses entering state error, and campaign completion. Delivery
// failure is logged and never escalated into a pipeline failure.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	slackmdgo "github.com/snormore/slackmd/slackgo"

	"github.com/webleads/ingestion/pkg/model"
)

// Notifier sends operator alerts to a single configured Slack channel.
// A Notifier built by New with an empty token is a valid no-op target,
// so callers never need a feature flag to disable it.
type Notifier struct {
	client    *slack.Client
	channelID string
	log       *slog.Logger
}

// New builds a Notifier. If token is empty, Notify* calls become no-ops
// (logged at debug level) rather than erroring, so development and test
// environments need no Slack credentials.
func New(token, channelID string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	var client *slack.Client
	if token != "" {
		client = slack.New(token)
	}
	return &Notifier{client: client, channelID: channelID, log: log}
}

// DeadLetter alerts that a work item exhausted its retries.
func (n *Notifier) DeadLetter(ctx context.Context, item model.DeadLetterItem) {
	text := fmt.Sprintf("**Work item dead-lettered: %s**\ndedup key: %s\nattempts: %d/%d\nlast error: %s",
		item.Kind, item.DedupKey, item.Attempts, item.MaxAttempts, item.LastError)
	n.send(ctx, "dead-letter", text)
}

// BusinessError alerts that a business entered the terminal error state.
func (n *Notifier) BusinessError(ctx context.Context, b *model.Business, reason string) {
	text := fmt.Sprintf("**Business %s entered error state**\nid: %s  listing: %s\n%s, %s\n%s",
		b.Name, b.ID, b.ExternalListingID, b.City, b.Region, reason)
	n.send(ctx, "business-error", text)
}

// CampaignComplete alerts that every zone in a campaign reached a
// terminal status.
func (n *Notifier) CampaignComplete(ctx context.Context, c *model.Campaign, counts model.ResultCounts) {
	text := fmt.Sprintf("**Campaign complete: %s, %s (%s)**\nsaved %d, with website %d, without website %d, queued for generation %d",
		c.City, c.Region, c.Category, counts.Saved, counts.WithWebsite, counts.WithoutWebsite, counts.QueuedGeneration)
	n.send(ctx, "campaign-complete", text)
}

func (n *Notifier) send(ctx context.Context, kind, text string) {
	if n.client == nil {
		n.log.Debug("notify: skipped, no slack token configured", "kind", kind)
		return
	}
	if _, err := slackmdgo.Post(ctx, n.client, n.channelID, text, slackmdgo.WithRetry(nil)); err != nil {
		n.log.Error("notify: slack delivery failed", "kind", kind, "error", err)
	}
}
