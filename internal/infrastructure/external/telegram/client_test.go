package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-academy/lifecycle-worker/internal/domain/shared"
	"github.com/darb-academy/lifecycle-worker/pkg/logger"
	"github.com/darb-academy/lifecycle-worker/pkg/retry"
)

func newTestClient(url string) *Client {
	cfg := DefaultClientConfig("TOKEN")
	cfg.BaseURL = url
	cfg.Logger = logger.Discard()
	cfg.Retrier = retry.New(retry.Policy{Attempts: 3, Base: time.Millisecond, Factor: 1})
	return NewClient(cfg)
}

func TestClient_SendMarkdown(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42,"date":1}}`))
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).SendMarkdown(context.Background(), "-100123", "**hi**")
	require.NoError(t, err)
	assert.Equal(t, int64(42), msg.MessageID)
	assert.Equal(t, "-100123", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SendMarkdown(context.Background(), "x", "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	}))
	defer srv.Close()

	msg, err := newTestClient(srv.URL).SendMarkdown(context.Background(), "x", "text")
	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.MessageID)
	assert.Equal(t, int32(3), calls.Load())
}
