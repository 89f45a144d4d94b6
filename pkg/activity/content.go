package activity

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/records"
)

// ContentBlob references one retrievable batch of raw audit records.
// Blobs are ephemeral: listed, fetched, discarded within one invocation.
type ContentBlob struct {
	ContentID         string `json:"contentId"`
	ContentURI        string `json:"contentUri"`
	ContentType       string `json:"contentType"`
	ContentCreated    string `json:"contentCreated,omitempty"`
	ContentExpiration string `json:"contentExpiration,omitempty"`
}

// ListContent returns the content blob references available in the
// inclusive [start, end] window, following NextPageUri pagination up to a
// bounded page count. The window is formatted in UTC with millisecond
// precision.
func (c *Client) ListContent(ctx context.Context, token string, start, end time.Time) ([]ContentBlob, error) {
	var blobs []ContentBlob
	next := ""

	for page := 0; page < maxContentPages; page++ {
		req := c.rest.R().
			SetContext(ctx).
			SetAuthToken(token)

		var url string
		if next == "" {
			req.SetQueryParams(map[string]string{
				"contentType": c.contentType,
				"startTime":   start.UTC().Format(TimestampFormat),
				"endTime":     end.UTC().Format(TimestampFormat),
			})
			url = c.feedPath("content")
		} else {
			url = next
		}

		resp, err := req.Get(url)
		if err != nil {
			c.logger.Error("content listing request failed", zap.Error(err))
			return nil, err
		}
		if !resp.IsSuccess() {
			err := apiError(resp)
			c.logger.Error("content listing rejected",
				zap.Int("status", resp.StatusCode()),
				zap.Error(err))
			return nil, err
		}

		var items []ContentBlob
		if err := json.Unmarshal(resp.Body(), &items); err != nil {
			c.logger.Error("content listing body unparseable", zap.Error(err))
			return nil, err
		}
		blobs = append(blobs, items...)

		next = resp.Header().Get("NextPageUri")
		if next == "" {
			break
		}
	}

	c.logger.Info("listed content blobs",
		zap.Int("count", len(blobs)),
		zap.Time("start", start),
		zap.Time("end", end))
	return blobs, nil
}

// FetchRecords retrieves one blob's records. The body is a JSON array of
// loosely structured audit records; ordering within the blob is preserved.
func (c *Client) FetchRecords(ctx context.Context, token string, blob ContentBlob) ([]records.Record, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(blob.ContentURI)
	if err != nil {
		c.logger.Error("blob fetch request failed",
			zap.String("contentId", blob.ContentID),
			zap.Error(err))
		return nil, err
	}
	if !resp.IsSuccess() {
		err := apiError(resp)
		c.logger.Error("blob fetch rejected",
			zap.String("contentId", blob.ContentID),
			zap.Int("status", resp.StatusCode()),
			zap.Error(err))
		return nil, err
	}

	var recs []records.Record
	if err := json.Unmarshal(resp.Body(), &recs); err != nil {
		c.logger.Error("blob body unparseable",
			zap.String("contentId", blob.ContentID),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("fetched blob records",
		zap.String("contentId", blob.ContentID),
		zap.Int("count", len(recs)))
	return recs, nil
}
