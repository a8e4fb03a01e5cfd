package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/api"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/outbox"
)

func testConfig(t *testing.T) appConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := appConfig{
		Env:         "test",
		ServiceName: "notifyd",
		Store:       storeSQLite,
		SQLitePath:  filepath.Join(dir, "notify.db"),
		Dispatcher:  dispatcher.DefaultConfig(),
		Outbox:      outbox.Config{FallbackLocale: "en"},
		HTTP:        httpserver.Config{Addr: "127.0.0.1:0"},
	}
	cfg.Email.SenderEmail = "no-reply@example.com"
	cfg.Email.SupportEmail = "support@example.com"
	cfg.Email.DevDir = filepath.Join(dir, "emails")
	return cfg
}

func TestBuildWithEmbeddedCatalogs(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := build(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(a.close)

	require.NotNil(t, a.dispatcher)
	require.NotNil(t, a.server)
	require.NotNil(t, a.handler)

	t.Run("healthz reports the sqlite check", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		var health httpserver.Health
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
		assert.Equal(t, "ok", health.Status)
		assert.Contains(t, health.Checks, "sqlite")
	})

	t.Run("immediate email lands in the dev directory", func(t *testing.T) {
		body, err := json.Marshal(api.SendRequest{
			Type:      "account.welcome",
			Recipient: "ada@example.com",
			Payload:   json.RawMessage(`{"name":"Ada"}`),
			Options:   api.SendOptions{Locale: "de", ProcessImmediately: true},
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		var env struct {
			Data api.SendResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, notification.StatusSent, env.Data.Status)
		assert.Equal(t, "de", env.Data.Locale)

		htmlFiles, err := filepath.Glob(filepath.Join(cfg.Email.DevDir, "*.html"))
		require.NoError(t, err)
		require.Len(t, htmlFiles, 1)
		html, err := os.ReadFile(htmlFiles[0])
		require.NoError(t, err)
		assert.Contains(t, string(html), "<title>Willkommen, Ada</title>")
		assert.Contains(t, string(html), "<p>Hallo Ada, Ihr Konto ist bereit.</p>")
	})

	t.Run("unrouted channel is rejected at dispatch, not enqueue", func(t *testing.T) {
		body := `{"type":"digest.weekly","recipient":"device-token","payload":{"items":[]},"options":{"channel":"push","process_immediately":true}}`
		req := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

		var env struct {
			Data api.SendResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, notification.StatusDead, env.Data.Status)
	})
}

func TestBuildUnknownStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Store = "mysql"
	_, err := build(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")
}

func TestBuildExternalCatalogMissing(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := build(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

