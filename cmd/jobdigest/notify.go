package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobdigest/internal/notifier"
)

var notifyTo string

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test digest",
	Long:  "Sends a sample digest to --to using the configured mail driver.",
	RunE:  runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyTo, "to", "", "recipient address")
	_ = notifyTestCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	a, err := newApp(cmd.Context(), logger, true)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	mailer, err := a.setupMailer()
	if err != nil {
		logger.Error("failed to set up mailer", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Mail.Timeout)
	defer cancel()
	if err := notifier.SendTestMessage(ctx, mailer, notifyTo); err != nil {
		logger.Error("test notification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent successfully", "to", notifyTo, "driver", a.cfg.Mail.Driver)
	return nil
}
