package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/telekom/m365-audit-ingest/pkg/config"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage auditingest configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigSetSecretCommand(),
		newConfigDeleteSecretCommand(),
	)

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		tenantID    string
		clientID    string
		workspaceID string
		table       string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an auditingest config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			cfg := config.DefaultConfig()
			cfg.Source.TenantID = tenantID
			cfg.Source.ClientID = clientID
			cfg.Source.ClientSecretKeyring = true
			cfg.Collector.WorkspaceID = workspaceID
			cfg.Collector.Table = table
			cfg.Collector.SharedKeyKeyring = true
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			_, _ = fmt.Fprintf(rt.Writer(), "Store secrets with: auditingest config set-secret %s | %s\n",
				config.KeyringClientSecret, config.KeyringSharedKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "Tenant ID")
	cmd.Flags().StringVar(&clientID, "client-id", "", "App registration client ID")
	cmd.Flags().StringVar(&workspaceID, "workspace-id", "", "Log Analytics workspace ID")
	cmd.Flags().StringVar(&table, "table", "", "Destination table name")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")

	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("client-id")
	_ = cmd.MarkFlagRequired("workspace-id")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(rt.configPathValue())
			if err != nil {
				return err
			}
			redactSecrets(cfg)
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(rt.Writer(), string(data))
			return nil
		},
	}
}

func redactSecrets(cfg *config.Config) {
	if cfg.Source.ClientSecret != "" {
		cfg.Source.ClientSecret = "REDACTED"
	}
	if cfg.Collector.SharedKey != "" {
		cfg.Collector.SharedKey = "REDACTED"
	}
	if cfg.Mail != nil && cfg.Mail.Password != "" {
		cfg.Mail.Password = "REDACTED"
	}
	if cfg.Kafka != nil && cfg.Kafka.SASL != nil && cfg.Kafka.SASL.Password != "" {
		cfg.Kafka.SASL.Password = "REDACTED"
	}
}

func newConfigSetSecretCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("set-secret {%s|%s}", config.KeyringClientSecret, config.KeyringSharedKey),
		Short: "Store a secret in the OS keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			entry := args[0]
			if entry != config.KeyringClientSecret && entry != config.KeyringSharedKey {
				return fmt.Errorf("unknown secret entry: %s", entry)
			}
			value, err := readSecretValue(rt)
			if err != nil {
				return err
			}
			if err := config.StoreSecret(entry, value); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Stored %s in keychain\n", entry)
			return nil
		},
	}
	return cmd
}

func newConfigDeleteSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("delete-secret {%s|%s}", config.KeyringClientSecret, config.KeyringSharedKey),
		Short: "Remove a secret from the OS keychain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			entry := args[0]
			if entry != config.KeyringClientSecret && entry != config.KeyringSharedKey {
				return fmt.Errorf("unknown secret entry: %s", entry)
			}
			if err := config.DeleteSecret(entry); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Deleted %s from keychain\n", entry)
			return nil
		},
	}
}

// readSecretValue reads the secret from the terminal without echo, or from
// stdin when not attached to a terminal.
func readSecretValue(rt *runtimeState) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		_, _ = fmt.Fprint(rt.Writer(), "Secret value: ")
		raw, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(rt.Writer())
		if err != nil {
			return "", err
		}
		value := strings.TrimSpace(string(raw))
		if value == "" {
			return "", errors.New("secret value is empty")
		}
		return value, nil
	}
	var value string
	if _, err := fmt.Fscanln(os.Stdin, &value); err != nil {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return strings.TrimSpace(value), nil
}
