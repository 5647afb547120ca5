package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairguard/backend/internal/repository"
	"github.com/urfave/cli/v2"
)

var analyticsCmd = &cli.Command{
	Name:  "analytics",
	Usage: "summarize the moderation log over recent days",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "days", Usage: "reporting window, 1 to 365", Value: 30},
	},
	Action: run(runAnalytics),
}

func runAnalytics(cctx *cli.Context, e *env) error {
	days := cctx.Int("days")
	if days < 1 || days > 365 {
		return fmt.Errorf("--days must be between 1 and 365, got %d", days)
	}

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := repository.NewModerationRepository(e.db).Stats(cctx.Context, since)
	if err != nil {
		return err
	}

	out := cctx.App.Writer
	fmt.Fprintf(out, "last %d day(s): %d log entries\n", days, stats.Total)
	fmt.Fprintln(out, "top types:")
	for _, kc := range stats.TopTypes {
		fmt.Fprintf(out, "  %s\t%d\n", kc.Key, kc.Count)
	}
	fmt.Fprintln(out, "top users:")
	for _, kc := range stats.TopUsers {
		fmt.Fprintf(out, "  %s\t%d\n", kc.Key, kc.Count)
	}
	fmt.Fprintln(out, "word hits:")
	for _, kc := range stats.WordHits {
		fmt.Fprintf(out, "  %s\t%d\n", kc.Key, kc.Count)
	}

	hours := make([]string, 0, len(stats.Hourly))
	for _, h := range stats.Hourly {
		hours = append(hours, fmt.Sprintf("%02d:00=%d", h.Hour, h.Count))
	}
	fmt.Fprintf(out, "by hour (UTC): %s\n", strings.Join(hours, " "))
	return nil
}
