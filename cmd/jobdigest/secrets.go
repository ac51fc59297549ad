package main

import (
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobdigest/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage credentials in the OS keychain",
	Long:  "Stores API keys and SMTP passwords in the OS keychain under the \"" + secrets.KeyringService + "\" service. Reference them from config with ai.keyring_account or mail.smtp.keyring_account.",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set ACCOUNT",
	Short: "Store a secret (prompted, masked)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsSet,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete ACCOUNT",
	Short: "Remove a stored secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretsDelete,
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd, secretsDeleteCmd)
	rootCmd.AddCommand(secretsCmd)
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Secret for %s", args[0]),
		Mask:  '*',
		Validate: func(s string) error {
			if s == "" {
				return errors.New("secret must not be empty")
			}
			return nil
		},
	}
	value, err := prompt.Run()
	if err != nil {
		return err
	}
	if err := secrets.Set(args[0], value); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	fmt.Printf("Stored %s in the keychain.\n", args[0])
	return nil
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	if err := secrets.Delete(args[0]); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	fmt.Printf("Deleted %s from the keychain.\n", args[0])
	return nil
}
