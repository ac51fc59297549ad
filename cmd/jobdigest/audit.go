package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobdigest/internal/audit"
	"github.com/amishk599/jobdigest/internal/fetchcache"
	"github.com/amishk599/jobdigest/internal/filter"
	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/orchestrator"
)

const auditHistory = 20

var auditUser string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse one user's candidates against the ledger (TUI)",
	Long:  "Shows the user picker TUI, then a split-pane view of fetched postings, what the filter kept, and each posting's dedup status. Nothing is written.",
	RunE:  runAuditCmd,
}

func init() {
	auditCmd.Flags().StringVar(&auditUser, "user", "", "open this user directly")
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	// Any log output before the alt-screen starts corrupts the display.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(cmd.Context(), silentLogger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	users, err := a.accounts.ActiveUsers(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No active users.")
		return nil
	}

	if auditUser != "" {
		for _, u := range users {
			if u.ID == auditUser {
				_, err := auditOne(a, u)
				return err
			}
		}
		return fmt.Errorf("user %q is not an active user", auditUser)
	}

	for {
		entries, err := pickerEntries(cmd.Context(), a, users)
		if err != nil {
			return err
		}
		choice, err := audit.RunUserPicker(entries)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return nil
		}
		if choice < 0 {
			return nil
		}
		wantQuit, err := auditOne(a, users[choice])
		if err != nil {
			fmt.Printf("Audit error: %v\n", err)
		}
		if wantQuit {
			return nil
		}
		// else: loop → back to picker
	}
}

func auditOne(a *app, user model.User) (bool, error) {
	timeout := a.cfg.Fetch.Timeout + a.cfg.Validation.ProbeTimeout + time.Minute
	snap, err := audit.RunLoader(user.ID, timeout, func(ctx context.Context, progress audit.Progress) (audit.Snapshot, error) {
		return loadSnapshot(ctx, a, user, progress)
	})
	if err != nil {
		return false, err
	}
	return audit.RunAuditTUI(snap)
}

// pickerEntries pairs each user with their most recent run outcome.
func pickerEntries(ctx context.Context, a *app, users []model.User) ([]audit.UserEntry, error) {
	entries := make([]audit.UserEntry, 0, len(users))
	for _, u := range users {
		e := audit.UserEntry{User: u}
		last, err := a.store.RecentOutcomes(ctx, u.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("recent outcomes for %s: %w", u.ID, err)
		}
		if len(last) > 0 {
			e.Last = &last[0]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func loadSnapshot(ctx context.Context, a *app, user model.User, progress audit.Progress) (audit.Snapshot, error) {
	progress("loading preference")
	pref, err := a.accounts.Preference(ctx, user.ID)
	if err != nil {
		return audit.Snapshot{}, err
	}
	progress("resolving sources")
	active, err := a.sources.Resolve(ctx)
	if err != nil {
		return audit.Snapshot{}, err
	}
	sources := orchestrator.SourcesFor(active, pref.Sources)

	progress(fmt.Sprintf("fetching %d sources", len(sources)))
	cache := fetchcache.New(a.adapters, a.cfg.Fetch.MaxConnections, a.cfg.Fetch.Timeout, a.logger)
	res, err := cache.Get(ctx, sources)
	if err != nil {
		return audit.Snapshot{}, err
	}
	progress(fmt.Sprintf("reading ledger (%d postings, %d sources failed)", len(res.Postings), len(res.Failed())))
	records, err := a.store.SentRecords(ctx, user.ID)
	if err != nil {
		return audit.Snapshot{}, err
	}
	outcomes, err := a.store.RecentOutcomes(ctx, user.ID, auditHistory)
	if err != nil {
		return audit.Snapshot{}, err
	}

	progress("ranking")
	ranked := filter.Rank(res.Postings, pref, orchestrator.Priorities(sources))
	snap := audit.BuildSnapshot(user, res.Postings, ranked, records, a.cfg.Digest.CarryoverTTL, time.Now())
	snap.Outcomes = outcomes
	for _, f := range res.Failed() {
		snap.Failed = append(snap.Failed, f.SourceID)
	}
	return snap, nil
}
