package activity

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/version"
)

// TimestampFormat is the listing window format: ISO-8601 with millisecond
// precision and a trailing Z.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// maxContentPages bounds NextPageUri following so a misbehaving listing
// endpoint cannot loop the worker forever.
const maxContentPages = 10

// Client talks to the Management Activity API feed for one tenant.
type Client struct {
	rest        *resty.Client
	tenantID    string
	contentType string
	logger      *zap.Logger
}

// ClientConfig configures an activity feed client.
type ClientConfig struct {
	// APIBase is the Management API base URL, e.g. https://manage.office.com.
	APIBase string

	TenantID    string
	ContentType string

	// Timeout applies per request. Default: 30s.
	Timeout time.Duration
}

// NewClient builds an activity feed client.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIBase == "" {
		return nil, errors.New("api base is required")
	}
	if cfg.TenantID == "" {
		return nil, errors.New("tenant-id is required")
	}
	if cfg.ContentType == "" {
		return nil, errors.New("content type is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rest := resty.New().
		SetBaseURL(cfg.APIBase).
		SetTimeout(timeout).
		SetHeader("User-Agent", version.UserAgent())

	return &Client{
		rest:        rest,
		tenantID:    cfg.TenantID,
		contentType: cfg.ContentType,
		logger:      logger.Named("activity"),
	}, nil
}

// feedPath returns the subscription operation path for this tenant.
func (c *Client) feedPath(op string) string {
	return fmt.Sprintf("/api/v1.0/%s/activity/feed/subscriptions/%s", c.tenantID, op)
}

// APIError is a non-success response from the Management API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("activity api request failed (%d): %s", e.StatusCode, e.Message)
}

func apiError(resp *resty.Response) *APIError {
	body := string(resp.Body())
	if len(body) > 512 {
		body = body[:512]
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: body}
}
