package main

import (
	"fmt"
	"time"

	"github.com/fairguard/backend/internal/jobs/cleanup"
	"github.com/fairguard/backend/internal/validation"
	"github.com/urfave/cli/v2"
)

var ledgerCmd = &cli.Command{
	Name:  "ledger",
	Usage: "inspect and maintain the warning ledger",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "print a user's active warnings",
			ArgsUsage: "<user-id>",
			Action:    run(runLedgerShow),
		},
		{
			Name:   "cleanup",
			Usage:  "drop expired warnings and old tracked messages once",
			Action: run(runLedgerCleanup),
		},
	},
}

func runLedgerShow(cctx *cli.Context, e *env) error {
	userID := cctx.Args().First()
	if err := validation.UserID("user_id", userID); err != nil {
		return err
	}

	count, err := e.ledger.GetActiveWarningCount(cctx.Context, userID)
	if err != nil {
		return err
	}
	records, err := e.ledger.ActiveWarnings(cctx.Context, userID)
	if err != nil {
		return err
	}

	out := cctx.App.Writer
	fmt.Fprintf(out, "user %s: %d active warning(s), threshold %d\n", userID, count, e.cfg.Moderation.WarnThreshold)
	for _, r := range records {
		fmt.Fprintf(out, "  %s  expires %s  by %s  %s\n",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.ExpiresAt.UTC().Format(time.RFC3339),
			r.ModeratorID,
			r.Reason,
		)
	}
	return nil
}

func runLedgerCleanup(cctx *cli.Context, e *env) error {
	job := cleanup.NewJob(e.db, e.ledger, e.cfg.Moderation.TrackingRetention)
	report, err := job.RunOnce(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "expired warnings removed: %d\ntracked messages pruned: %d\n",
		report.ExpiredWarnings, report.PrunedMessages)
	return nil
}
