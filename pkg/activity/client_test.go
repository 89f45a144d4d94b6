package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		APIBase:     base,
		TenantID:    "tenant-1",
		ContentType: "Audit.General",
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestEnsureSubscription(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1.0/tenant-1/activity/feed/subscriptions/start", r.URL.Path)
			assert.Equal(t, "Audit.General", r.URL.Query().Get("contentType"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		err := newClient(t, server.URL).EnsureSubscription(context.Background(), "tok")
		assert.NoError(t, err)
	})

	t.Run("already enabled is idempotent", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"The subscription is already enabled."}}`)
		}))
		defer server.Close()

		c := newClient(t, server.URL)
		assert.NoError(t, c.EnsureSubscription(context.Background(), "tok"))
		assert.NoError(t, c.EnsureSubscription(context.Background(), "tok"))
		assert.Equal(t, 2, calls)
	})

	t.Run("other failures are reported", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "nope")
		}))
		defer server.Close()

		err := newClient(t, server.URL).EnsureSubscription(context.Background(), "tok")
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})
}

func TestListContent(t *testing.T) {
	t.Run("window formatting and decoding", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1.0/tenant-1/activity/feed/subscriptions/content", r.URL.Path)
			assert.Equal(t, "2026-08-30T10:00:00.000Z", r.URL.Query().Get("startTime"))
			assert.Equal(t, "2026-08-30T11:00:00.000Z", r.URL.Query().Get("endTime"))
			_ = json.NewEncoder(w).Encode([]ContentBlob{
				{ContentID: "a", ContentURI: "https://example.com/a"},
				{ContentID: "b", ContentURI: "https://example.com/b"},
			})
		}))
		defer server.Close()

		start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
		end := start.Add(time.Hour)
		blobs, err := newClient(t, server.URL).ListContent(context.Background(), "tok", start, end)
		require.NoError(t, err)
		require.Len(t, blobs, 2)
		assert.Equal(t, "a", blobs[0].ContentID)
	})

	t.Run("follows NextPageUri", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/page2" {
				_ = json.NewEncoder(w).Encode([]ContentBlob{{ContentID: "c"}})
				return
			}
			w.Header().Set("NextPageUri", server.URL+"/page2")
			_ = json.NewEncoder(w).Encode([]ContentBlob{{ContentID: "a"}, {ContentID: "b"}})
		}))
		defer server.Close()

		blobs, err := newClient(t, server.URL).ListContent(context.Background(), "tok", time.Now().Add(-time.Hour), time.Now())
		require.NoError(t, err)
		require.Len(t, blobs, 3)
		assert.Equal(t, "c", blobs[2].ContentID)
	})

	t.Run("server error surfaces as APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		blobs, err := newClient(t, server.URL).ListContent(context.Background(), "tok", time.Now().Add(-time.Hour), time.Now())
		require.Error(t, err)
		assert.Empty(t, blobs)
	})
}

func TestFetchRecords(t *testing.T) {
	t.Run("parses record array", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			fmt.Fprint(w, `[{"Id":"1","Operation":"CopilotInteraction"},{"Id":"2"}]`)
		}))
		defer server.Close()

		recs, err := newClient(t, server.URL).FetchRecords(context.Background(), "tok",
			ContentBlob{ContentID: "a", ContentURI: server.URL + "/blob/a"})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "1", recs[0].ID())
	})

	t.Run("failure returns error for the pipeline to degrade", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		recs, err := newClient(t, server.URL).FetchRecords(context.Background(), "tok",
			ContentBlob{ContentID: "a", ContentURI: server.URL + "/blob/a"})
		require.Error(t, err)
		assert.Empty(t, recs)
	})
}
