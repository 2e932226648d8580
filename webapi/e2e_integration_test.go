//go:build integration

package webapi_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/amirasaad/autotransfer/infra"
	infrarepo "github.com/amirasaad/autotransfer/infra/repository"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/repository"
	"github.com/amirasaad/autotransfer/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// PostgresE2ETestSuite drives the HTTP routes against a migrated Postgres.
type PostgresE2ETestSuite struct {
	testutils.E2ETestSuite
	db *gorm.DB
}

func TestPostgresE2ETestSuite(t *testing.T) {
	suite.Run(t, new(PostgresE2ETestSuite))
}

func (s *PostgresE2ETestSuite) SetupSuite() {
	dsn := testutils.StartPostgres(s.T())
	db, err := infra.NewDBConnection(&config.DB{Url: dsn}, "test")
	s.Require().NoError(err)
	s.Require().NoError(infra.Migrate(db, testutils.MigrationsSource(), slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.db = db
	s.NewUoW = func() repository.UnitOfWork { return infrarepo.NewUoW(s.db) }
}

func (s *PostgresE2ETestSuite) TestIncomeMovesMoneyOnce() {
	src := s.CreateAccount("EUR", 10_000)
	dst := s.CreateAccount("EUR", 0)

	body := `{"name":"tithe","source_account_id":"` + src.String() +
		`","destination_account_id":"` + dst.String() +
		`","computation_kind":"percentage","value":"10","trigger_type":"on_income","max_amount":300}`
	resp := s.MakeRequest(http.MethodPost, "/rules", body, s.Token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close() //nolint: errcheck

	resp = s.MakeRequest(http.MethodPost, "/accounts/"+src.String()+"/transactions",
		`{"amount":5000,"kind":"income"}`, s.Token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	resp.Body.Close() //nolint: errcheck

	s.Assert().Equal(int64(14_700), s.Balance(src))
	s.Assert().Equal(int64(300), s.Balance(dst))
	s.Assert().Equal(s.Balance(src), s.CompletedSum(src))
	s.Assert().Equal(s.Balance(dst), s.CompletedSum(dst))
}
