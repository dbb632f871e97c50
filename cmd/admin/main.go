// Command admin is the operator CLI for the ingestion engine: running
// Postgres migrations, inspecting and requeuing dead-lettered work
// items, cancelling a campaign outside the normal HTTP ingress, and
// forcing a re-probe of a business stuck in a terminal validation status.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/google/uuid"

	"github.com/webleads/ingestion/pkg/config"
	"github.com/webleads/ingestion/pkg/logger"
	"github.com/webleads/ingestion/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	migrateFlag := flag.Bool("migrate", false, "run pending Postgres migrations")
	migrateStatusFlag := flag.Bool("migrate-status", false, "show Postgres migration status")

	deadLetterListFlag := flag.Bool("dead-letter-list", false, "list recent dead-lettered work items")
	deadLetterLimitFlag := flag.Int("dead-letter-limit", 20, "max dead-letter rows to list")
	deadLetterRequeueFlag := flag.String("dead-letter-requeue", "", "work item ID to reset for one more attempt")

	campaignCancelFlag := flag.String("campaign-cancel", "", "campaign ID to cancel")
	requeueValidationFlag := flag.String("requeue-validation", "", "business ID stuck in a terminal validation status to re-probe")
	yesFlag := flag.Bool("yes", false, "skip confirmation prompts")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(*verboseFlag || cfg.Verbose)

	ctx := context.Background()

	switch {
	case *migrateFlag:
		db, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		log.Info("running migrations")
		return db.Migrate(cfg.PostgresDSN())

	case *migrateStatusFlag:
		db, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		return db.MigrationStatus(ctx, cfg.PostgresDSN())

	case *deadLetterListFlag:
		db, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		return listDeadLetter(ctx, db, *deadLetterLimitFlag)

	case *deadLetterRequeueFlag != "":
		itemID, err := uuid.Parse(*deadLetterRequeueFlag)
		if err != nil {
			return fmt.Errorf("invalid --dead-letter-requeue ID: %w", err)
		}
		if !*yesFlag && !confirm(fmt.Sprintf("Requeue work item %s for one more attempt?", itemID)) {
			fmt.Println("aborted")
			return nil
		}
		db, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		if err := db.RequeueDeadLetter(ctx, itemID); err != nil {
			return fmt.Errorf("requeue %s: %w", itemID, err)
		}
		log.Info("requeued work item", "item", itemID)
		return nil

	case *campaignCancelFlag != "":
		campaignID, err := uuid.Parse(*campaignCancelFlag)
		if err != nil {
			return fmt.Errorf("invalid --campaign-cancel ID: %w", err)
		}
		if !*yesFlag && !confirm(fmt.Sprintf("Cancel campaign %s?", campaignID)) {
			fmt.Println("aborted")
			return nil
		}
		db, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		if err := db.CancelCampaign(ctx, campaignID); err != nil {
			return fmt.Errorf("cancel campaign %s: %w", campaignID, err)
		}
		log.Info("cancelled campaign", "campaign", campaignID)
		return nil

	case *requeueValidationFlag != "":
		businessID, err := uuid.Parse(*requeueValidationFlag)
		if err != nil {
			return fmt.Errorf("invalid --requeue-validation ID: %w", err)
		}
		if !*yesFlag && !confirm(fmt.Sprintf("Re-probe business %s (resets its validation status to pending)?", businessID)) {
			fmt.Println("aborted")
			return nil
		}
		db, err := store.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		if err := db.RequeueValidation(ctx, businessID); err != nil {
			return fmt.Errorf("requeue validation for %s: %w", businessID, err)
		}
		log.Info("requeued validation", "business", businessID)
		return nil
	}

	flag.Usage()
	return nil
}

func listDeadLetter(ctx context.Context, db *store.Store, limit int) error {
	items, err := db.ListDeadLetter(ctx, limit)
	if err != nil {
		return fmt.Errorf("list dead letter: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("no dead-lettered work items")
		return nil
	}
	for _, d := range items {
		fmt.Printf("%s  kind=%-20s attempts=%d  failed_at=%s\n  dedup_key=%s\n  last_error=%s\n\n",
			d.ID, d.Kind, d.Attempts, d.FailedAt.Format("2006-01-02T15:04:05Z07:00"), d.DedupKey, d.LastError)
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(answer)) == "y"
}
