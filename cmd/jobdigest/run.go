package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/orchestrator"
)

var (
	runUser   string
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one digest batch now",
	Long:  "Runs a single manual batch for every active user (or one user with --user). Manual runs ignore alert_frequency. With --dry-run, digests are printed instead of sent and nothing is recorded.",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runUser, "user", "", "run only this user id")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print digests, send nothing, write nothing")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger, runDryRun)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	orch, err := a.buildOrchestrator(ctx, runDryRun)
	if err != nil {
		logger.Error("failed to wire pipeline", "error", err)
		return err
	}

	sum, err := orch.RunBatch(ctx, model.RunManual, runUser)
	if runDryRun {
		printDryRun(sum)
	}
	if err != nil {
		logger.Error("run failed", "run_id", sum.RunID, "error", err)
		return err
	}

	logger.Info("run complete",
		"run_id", sum.RunID,
		"success", sum.Count(model.RunSuccess),
		"skipped", sum.Count(model.RunSkipped),
		"error", sum.Count(model.RunError),
	)
	if n := sum.Count(model.RunError); n > 0 {
		return fmt.Errorf("%d user run(s) failed", n)
	}
	return nil
}

func printDryRun(sum orchestrator.Summary) {
	for _, u := range sum.Users {
		o := u.Outcome
		fmt.Printf("\n=== %s: %s", o.UserID, o.Status)
		if o.Detail != "" {
			fmt.Printf(" (%s)", o.Detail)
		}
		fmt.Printf(" fetched=%d matched=%d ===\n", o.Fetched, o.KeywordMatched)
		if u.Message == nil {
			continue
		}
		fmt.Printf("To: %s\nSubject: %s\n\n%s\n", u.Message.To, u.Message.Subject, u.Message.Body)
	}
}
