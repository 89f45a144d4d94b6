package activity

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// EnsureSubscription starts the content subscription for the configured
// content type. Starting an already-running subscription yields a 400 whose
// body says "already enabled"; that is treated as success so the call is
// idempotent across invocations.
func (c *Client) EnsureSubscription(ctx context.Context, token string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParam("contentType", c.contentType).
		Post(c.feedPath("start"))
	if err != nil {
		c.logger.Error("subscription start request failed", zap.Error(err))
		return err
	}

	if resp.IsSuccess() {
		c.logger.Info("subscription active", zap.String("contentType", c.contentType))
		return nil
	}
	if resp.StatusCode() == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(string(resp.Body())), "already enabled") {
		c.logger.Info("subscription already enabled", zap.String("contentType", c.contentType))
		return nil
	}

	err = apiError(resp)
	c.logger.Error("subscription start rejected",
		zap.Int("status", resp.StatusCode()),
		zap.String("contentType", c.contentType),
		zap.Error(err))
	return err
}
