package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/telekom/m365-audit-ingest/pkg/metrics"
)

// ExpiryMargin is subtracted from the token lifetime so a token is never
// used while racing its expiry.
const ExpiryMargin = 5 * time.Minute

// Config describes the client-credential exchange.
type Config struct {
	ClientID     string
	ClientSecret string

	// Scope is the audience scope, e.g. "https://manage.office.com/.default".
	Scope string

	// Authority is the issuer URL used to discover the token endpoint.
	// TokenURL bypasses discovery when set.
	Authority string
	TokenURL  string

	// HTTPClient overrides the client used for discovery and exchange.
	HTTPClient *http.Client

	// Now overrides the clock. Tests use this to force expiry.
	Now func() time.Time
}

// Source issues bearer tokens for the source API, caching the current token
// in memory and re-exchanging only when the safety margin is reached.
// A Source is scoped to one worker instance; tokens are never persisted.
type Source struct {
	cc     clientcredentials.Config
	client *http.Client
	now    func() time.Time
	logger *zap.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewSource builds a token source, discovering the token endpoint from the
// authority unless an explicit token URL is configured.
func NewSource(ctx context.Context, cfg Config, logger *zap.Logger) (*Source, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client-id and client secret are required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		if cfg.Authority == "" {
			return nil, errors.New("authority or token-url is required")
		}
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.Authority)
		if err != nil {
			return nil, fmt.Errorf("failed to discover token endpoint: %w", err)
		}
		tokenURL = provider.Endpoint().TokenURL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Source{
		cc: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{cfg.Scope},
		},
		client: httpClient,
		now:    now,
		logger: logger.Named("auth"),
	}, nil
}

// Token returns the cached bearer token while it is still inside the safety
// margin, otherwise performs one client-credential exchange. The exchange
// error propagates untouched; callers abort the invocation on it.
func (s *Source) Token(ctx context.Context) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry) {
		metrics.TokenCacheHits.Inc()
		s.logger.Debug("reusing cached token", zap.Time("expiry", s.expiry))
		return s.token, s.expiry, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.cc.Token(ctx)
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("error").Inc()
		s.logger.Error("client credentials exchange failed", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("client credentials token failed: %w", err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		// Token endpoints that omit expires_in get a conservative lifetime.
		expiry = s.now().Add(time.Hour)
	}
	s.token = tok.AccessToken
	s.expiry = expiry.Add(-ExpiryMargin)

	metrics.TokenExchanges.WithLabelValues("success").Inc()
	s.logger.Info("acquired access token", zap.Time("expiry", s.expiry))
	return s.token, s.expiry, nil
}

// Invalidate drops the cached token so the next Token call exchanges again.
func (s *Source) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiry = time.Time{}
}
