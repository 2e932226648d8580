package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain runs before any tests and applies globally for all tests in the package.
func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func testConfig() *config.App {
	return &config.App{
		Env:       "test",
		Server:    &config.Server{Host: "localhost", Port: 0},
		Log:       &config.Log{Format: "text"},
		DB:        &config.DB{},
		Redis:     &config.Redis{},
		EventBus:  &config.EventBus{Driver: "memory-sync"},
		Auth:      &config.Auth{Jwt: &config.Jwt{Secret: "s", Expiry: time.Hour}},
		Scheduler: &config.Scheduler{TimeZone: "UTC", Interval: time.Hour},
		Evaluator: &config.Evaluator{Workers: 1},
		Retry:     &config.Retry{MaxAttempts: 1},
		RateLimit: &config.RateLimit{MaxRequests: 10, Window: time.Second},
	}
}

func TestNewServerWiresInMemoryStack(t *testing.T) {
	srv, err := newServer(testConfig())
	require.NoError(t, err)
	defer srv.deps.Close() //nolint: errcheck

	resp, err := srv.api.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.api.Test(httptest.NewRequest(http.MethodGet, "/rules", nil))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewServerRejectsUnknownBus(t *testing.T) {
	cfg := testConfig()
	cfg.EventBus.Driver = "carrier-pigeon"
	_, err := newServer(cfg)
	assert.Error(t, err)
}
