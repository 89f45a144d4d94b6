package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name under which secrets are stored in the
// OS keychain.
const KeyringService = "auditingest"

const (
	// KeyringClientSecret is the keychain entry for the app client secret.
	KeyringClientSecret = "client-secret"
	// KeyringSharedKey is the keychain entry for the workspace shared key.
	KeyringSharedKey = "workspace-key"
)

// ResolveClientSecret returns the app registration client secret from the
// first configured source: inline value, named env var, file, OS keychain.
func (c *Config) ResolveClientSecret() (string, error) {
	return resolveSecret(secretSpec{
		inline:      c.Source.ClientSecret,
		envName:     c.Source.ClientSecretEnv,
		filePath:    c.Source.ClientSecretFile,
		useKeyring:  c.Source.ClientSecretKeyring,
		keyringUser: KeyringClientSecret,
		what:        "client secret",
	})
}

// ResolveSharedKey returns the Log Analytics workspace shared key from the
// first configured source.
func (c *Config) ResolveSharedKey() (string, error) {
	return resolveSecret(secretSpec{
		inline:      c.Collector.SharedKey,
		envName:     c.Collector.SharedKeyEnv,
		filePath:    c.Collector.SharedKeyFile,
		useKeyring:  c.Collector.SharedKeyKeyring,
		keyringUser: KeyringSharedKey,
		what:        "workspace shared key",
	})
}

// StoreSecret writes a secret into the OS keychain.
func StoreSecret(entry, value string) error {
	if err := keyring.Set(KeyringService, entry, value); err != nil {
		return fmt.Errorf("failed to store %s in keychain: %w", entry, err)
	}
	return nil
}

// DeleteSecret removes a secret from the OS keychain.
func DeleteSecret(entry string) error {
	if err := keyring.Delete(KeyringService, entry); err != nil {
		return fmt.Errorf("failed to delete %s from keychain: %w", entry, err)
	}
	return nil
}

type secretSpec struct {
	inline      string
	envName     string
	filePath    string
	useKeyring  bool
	keyringUser string
	what        string
}

func resolveSecret(spec secretSpec) (string, error) {
	if spec.inline != "" {
		return spec.inline, nil
	}
	if spec.envName != "" {
		v := os.Getenv(spec.envName)
		if v == "" {
			return "", fmt.Errorf("%s env var %s is empty", spec.what, spec.envName)
		}
		return v, nil
	}
	if spec.filePath != "" {
		content, err := os.ReadFile(spec.filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read %s file: %w", spec.what, err)
		}
		v := strings.TrimSpace(string(content))
		if v == "" {
			return "", fmt.Errorf("%s file %s is empty", spec.what, spec.filePath)
		}
		return v, nil
	}
	if spec.useKeyring {
		v, err := keyring.Get(KeyringService, spec.keyringUser)
		if err != nil {
			return "", fmt.Errorf("failed to read %s from keychain: %w", spec.what, err)
		}
		return v, nil
	}
	return "", fmt.Errorf("no %s configured", spec.what)
}
