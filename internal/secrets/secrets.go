// Package secrets reads API keys and mail passwords from the OS keychain.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups jobdigest's secrets in the OS keychain.
const KeyringService = "jobdigest"

// ErrNotFound is returned when neither the inline value nor the keychain has
// the secret.
var ErrNotFound = errors.New("secret not found")

// Resolve returns inline when set (typically expanded from the environment),
// otherwise the keychain entry for account.
func Resolve(inline, account string) (string, error) {
	if v := strings.TrimSpace(inline); v != "" {
		return v, nil
	}
	if strings.TrimSpace(account) == "" {
		return "", ErrNotFound
	}
	v, err := keyring.Get(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: keychain account %q", ErrNotFound, account)
	}
	if err != nil {
		return "", fmt.Errorf("read keychain account %q: %w", account, err)
	}
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: keychain account %q is empty", ErrNotFound, account)
	}
	return v, nil
}

// Set stores secret under account.
func Set(account, secret string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(secret) == "" {
		return errors.New("secret is empty")
	}
	return keyring.Set(KeyringService, account, secret)
}

// Delete removes account from the keychain.
func Delete(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, account)
}
