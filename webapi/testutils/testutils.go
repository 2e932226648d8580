// Package testutils builds a fully wired HTTP app for route tests.
package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	infra_eventbus "github.com/amirasaad/autotransfer/infra/eventbus"
	"github.com/amirasaad/autotransfer/infra/repository/memory"
	"github.com/amirasaad/autotransfer/pkg/app"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/middleware"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/webapi"
	"github.com/amirasaad/autotransfer/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret"

// E2ETestSuite runs requests against the real routes and services. The
// default unit of work is in memory; set NewUoW to run on another store.
type E2ETestSuite struct {
	suite.Suite
	App    *app.App
	API    *fiber.App
	Bus    *infra_eventbus.MemoryEventBus
	Cfg    *config.App
	UserID uuid.UUID
	Token  string

	NewUoW func() repository.UnitOfWork
}

// NewTestConfig returns a config with short retries and a generous rate limit.
func NewTestConfig() *config.App {
	return &config.App{
		Env:       "test",
		Auth:      &config.Auth{Jwt: &config.Jwt{Secret: testSecret, Expiry: time.Hour}},
		Retry:     &config.Retry{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Scheduler: &config.Scheduler{Enabled: false, Interval: time.Hour, TimeZone: "UTC", MaxMissed: 366},
		Evaluator: &config.Evaluator{Workers: 2},
		RateLimit: &config.RateLimit{MaxRequests: 1000, Window: time.Minute},
	}
}

// SetupTest wires a fresh app and signs a token for a new user.
func (s *E2ETestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.Cfg = NewTestConfig()
	s.Bus = infra_eventbus.NewWithMemory(logger)
	var uow repository.UnitOfWork = memory.NewUoW()
	if s.NewUoW != nil {
		uow = s.NewUoW()
	}
	s.App = app.New(&config.Deps{
		Uow:      uow,
		EventBus: s.Bus,
		Logger:   logger,
		Config:   s.Cfg,
	}, nil)
	s.API = webapi.NewApp(s.App, s.Cfg)
	s.UserID = uuid.New()
	s.Token = s.TokenFor(s.UserID)
}

// TokenFor signs a token carrying userID.
func (s *E2ETestSuite) TokenFor(userID uuid.UUID) string {
	token, err := middleware.SignToken(s.Cfg.Auth.Jwt.Secret, userID, time.Hour)
	s.Require().NoError(err)
	return token
}

// MakeRequest is a helper for making HTTP requests in tests
func (s *E2ETestSuite) MakeRequest(method, path, body, token string) *http.Response {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.API.Test(req, -1)
	s.Require().NoError(err)
	return resp
}

// Decode reads the standard envelope and unmarshals its data into out.
func (s *E2ETestSuite) Decode(resp *http.Response, out any) common.Response {
	defer resp.Body.Close() //nolint: errcheck
	var raw struct {
		Status  int             `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&raw))
	if out != nil && len(raw.Data) > 0 {
		s.Require().NoError(json.Unmarshal(raw.Data, out))
	}
	return common.Response{Status: raw.Status, Message: raw.Message}
}

// CreateAccount opens an account for the suite user through the API.
func (s *E2ETestSuite) CreateAccount(currency string, balance int64) uuid.UUID {
	body := fmt.Sprintf(`{"currency":%q,"opening_balance":%d}`, currency, balance)
	resp := s.MakeRequest(http.MethodPost, "/accounts", body, s.Token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	var acc struct {
		ID uuid.UUID `json:"id"`
	}
	s.Decode(resp, &acc)
	return acc.ID
}

// Balance reads an account balance through the API.
func (s *E2ETestSuite) Balance(accountID uuid.UUID) int64 {
	resp := s.MakeRequest(http.MethodGet, "/accounts/"+accountID.String(), "", s.Token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var acc struct {
		Balance int64 `json:"balance"`
	}
	s.Decode(resp, &acc)
	return acc.Balance
}

// CompletedSum adds up the completed entries of an account through the API.
func (s *E2ETestSuite) CompletedSum(accountID uuid.UUID) int64 {
	resp := s.MakeRequest(http.MethodGet, "/accounts/"+accountID.String()+"/transactions", "", s.Token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var txs []struct {
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	}
	s.Decode(resp, &txs)
	var sum int64
	for _, tx := range txs {
		if tx.Status == "completed" {
			sum += tx.Amount
		}
	}
	return sum
}
