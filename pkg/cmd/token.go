package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"

	"github.com/telekom/m365-audit-ingest/pkg/auth"
)

func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect source API tokens",
	}
	cmd.AddCommand(newTokenShowCommand())
	return cmd
}

func newTokenShowCommand() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Acquire a token and show its claims",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg := rt.cfg
			clientSecret, err := cfg.ResolveClientSecret()
			if err != nil {
				return err
			}
			source, err := auth.NewSource(cmd.Context(), auth.Config{
				ClientID:     cfg.Source.ClientID,
				ClientSecret: clientSecret,
				Scope:        cfg.Scope(),
				Authority:    cfg.AuthorityURL(),
				TokenURL:     cfg.Source.TokenURL,
			}, rt.Logger())
			if err != nil {
				return err
			}
			token, expiry, err := source.Token(cmd.Context())
			if err != nil {
				return err
			}
			if raw {
				_, _ = fmt.Fprintln(rt.Writer(), token)
				return nil
			}

			parser := jwt.Parser{}
			claims := jwt.MapClaims{}
			if _, _, err := parser.ParseUnverified(token, claims); err != nil {
				return fmt.Errorf("token is not a parseable JWT: %w", err)
			}
			out := map[string]interface{}{
				"appId":       claims["appid"],
				"tenant":      claims["tid"],
				"audience":    claims["aud"],
				"issuer":      claims["iss"],
				"cacheExpiry": expiry.Format(time.RFC3339),
			}
			encoder := json.NewEncoder(rt.Writer())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw access token")

	return cmd
}
