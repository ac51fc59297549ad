package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobdigest/internal/model"
	"github.com/amishk599/jobdigest/internal/registry"
)

var (
	validateForce bool
	pauseReason   string
	pauseYes      bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and manage configured job sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured sources with their onboarding state",
	RunE:  runSourcesList,
}

var sourcesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Probe candidate and stale sources",
	Long:  "Probes sources that are new, changed, or not validated within validation.max_age, and records the resulting state. --force probes every source that is not paused.",
	RunE:  runSourcesValidate,
}

var sourcesPauseCmd = &cobra.Command{
	Use:   "pause ID",
	Short: "Pause a source until resumed",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesPause,
}

var sourcesResumeCmd = &cobra.Command{
	Use:   "resume ID",
	Short: "Resume a paused source; it must pass validation again",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesResume,
}

var sourcesReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize source health by state",
	RunE:  runSourcesReport,
}

func init() {
	sourcesValidateCmd.Flags().BoolVar(&validateForce, "force", false, "probe every non-paused source")
	sourcesPauseCmd.Flags().StringVar(&pauseReason, "reason", "paused by operator", "note stored with the pause")
	sourcesPauseCmd.Flags().BoolVarP(&pauseYes, "yes", "y", false, "do not ask for confirmation")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesValidateCmd, sourcesPauseCmd, sourcesResumeCmd, sourcesReportCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func openSourcesApp(cmd *cobra.Command) *app {
	a, err := newApp(cmd.Context(), setupLogger(debug), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return a
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	a := openSourcesApp(cmd)
	defer a.Close()

	entries, err := a.sources.Entries(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("%-24s %-12s %-20s %-10s %-8s %s\n", "Source", "Provider", "Company", "State", "Jobs", "Last validated")
	fmt.Println(strings.Repeat("─", 96))

	active := 0
	for _, e := range entries {
		if e.Status.State == model.SourceActive {
			active++
		}
		fmt.Printf("%-24s %-12s %-20s %-10s %-8d %s\n",
			e.Config.ID, e.Config.Provider, e.Config.Company, e.Status.State, e.Status.PostingCount, lastValidated(e.Status))
	}

	fmt.Printf("\nTotal: %d sources (%d active)\n", len(entries), active)
	return nil
}

func lastValidated(st model.SourceStatus) string {
	if !st.Probed() {
		return "never"
	}
	return st.LastValidatedAt.Local().Format("2006-01-02 15:04")
}

func runSourcesValidate(cmd *cobra.Command, args []string) error {
	a := openSourcesApp(cmd)
	defer a.Close()

	results, err := a.sources.Validate(cmd.Context(), a.validateOptions(validateForce))
	if err != nil {
		return err
	}

	probed, failed := 0, 0
	for _, r := range results {
		if r.Skipped {
			continue
		}
		probed++
		line := fmt.Sprintf("%-24s %s → %s (%d postings)", r.SourceID, r.From, r.To, r.Postings)
		if r.Err != nil {
			failed++
			line += "  " + r.Err.Error()
		}
		fmt.Println(line)
	}
	fmt.Printf("\nProbed %d of %d sources, %d failed\n", probed, len(results), failed)
	return nil
}

func runSourcesPause(cmd *cobra.Command, args []string) error {
	id := args[0]
	if !pauseYes {
		confirm := promptui.Prompt{
			Label:     fmt.Sprintf("Pause source %s", id),
			IsConfirm: true,
		}
		if _, err := confirm.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
	}

	a := openSourcesApp(cmd)
	defer a.Close()
	if err := a.sources.Pause(cmd.Context(), id, pauseReason); err != nil {
		return err
	}
	fmt.Printf("Source %s paused.\n", id)
	return nil
}

func runSourcesResume(cmd *cobra.Command, args []string) error {
	a := openSourcesApp(cmd)
	defer a.Close()
	if err := a.sources.Resume(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Source %s resumed as candidate; it joins runs after its next successful probe.\n", args[0])
	return nil
}

var (
	reportTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	reportDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	reportStateStyle = map[model.SourceState]lipgloss.Style{
		model.SourceActive:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		model.SourceCandidate: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		model.SourceNoJobs:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		model.SourceError:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		model.SourcePaused:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("240")),
	}
)

func runSourcesReport(cmd *cobra.Command, args []string) error {
	a := openSourcesApp(cmd)
	defer a.Close()

	entries, err := a.sources.Entries(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(renderReport(entries, time.Now()))
	return nil
}

// renderReport groups sources by state with counts.
func renderReport(entries []registry.Entry, now time.Time) string {
	groups := registry.Grouped(entries)

	var b strings.Builder
	b.WriteString(reportTitleStyle.Render(fmt.Sprintf("Source health (%d configured)", len(entries))))
	b.WriteString("\n")
	for _, state := range model.AllSourceStates {
		group := groups[state]
		if len(group) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(reportStateStyle[state].Render(fmt.Sprintf("%s (%d)", state, len(group))))
		b.WriteString("\n")
		for _, e := range group {
			line := fmt.Sprintf("  %-24s %-12s", e.Config.ID, e.Config.Provider)
			detail := e.Status.LastResult
			if e.Status.LastError != "" {
				detail = e.Status.LastError
			}
			if e.Status.ConsecutiveFailures > 0 {
				detail = fmt.Sprintf("%s (%d consecutive failures)", detail, e.Status.ConsecutiveFailures)
			}
			if e.Status.Probed() {
				detail += fmt.Sprintf(", probed %s ago", now.Sub(*e.Status.LastValidatedAt).Round(time.Minute))
			}
			b.WriteString(line + " " + reportDimStyle.Render(strings.TrimPrefix(detail, ", ")) + "\n")
		}
	}
	return b.String()
}
