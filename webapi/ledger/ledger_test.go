package ledger_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/amirasaad/autotransfer/webapi/ledger"
	"github.com/amirasaad/autotransfer/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	testutils.E2ETestSuite
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (s *LedgerTestSuite) TestAccounts() {
	id := s.CreateAccount("USD", 2_500)

	resp := s.MakeRequest(http.MethodGet, "/accounts", "", s.Token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var accs []ledger.AccountDTO
	s.Decode(resp, &accs)
	s.Require().Len(accs, 1)
	s.Assert().Equal(id, accs[0].ID)
	s.Assert().Equal(int64(2_500), accs[0].Balance)

	s.Run("rejects a bad currency", func() {
		resp := s.MakeRequest(http.MethodPost, "/accounts", `{"currency":"usd"}`, s.Token)
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusBadRequest, resp.StatusCode)
		s.Assert().Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))
	})

	s.Run("hides other users' accounts", func() {
		resp := s.MakeRequest(http.MethodGet, "/accounts/"+id.String(), "", s.TokenFor(uuid.New()))
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusForbidden, resp.StatusCode)
	})
}

func (s *LedgerTestSuite) TestPostTransaction() {
	id := s.CreateAccount("USD", 1_000)
	path := "/accounts/" + id.String() + "/transactions"

	resp := s.MakeRequest(http.MethodPost, path, `{"amount":300,"kind":"expense"}`, s.Token)
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
	var tx ledger.TransactionDTO
	s.Decode(resp, &tx)
	s.Assert().Equal(int64(-300), tx.Amount)
	s.Assert().Equal("completed", tx.Status)
	s.Assert().Equal(int64(700), s.Balance(id))

	s.Run("insufficient funds", func() {
		resp := s.MakeRequest(http.MethodPost, path, `{"amount":5000,"kind":"expense"}`, s.Token)
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
	})

	s.Run("transfer kinds cannot be posted", func() {
		resp := s.MakeRequest(http.MethodPost, path, `{"amount":10,"kind":"transfer_in"}`, s.Token)
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusBadRequest, resp.StatusCode)
	})

	resp = s.MakeRequest(http.MethodGet, path, "", s.Token)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var txs []ledger.TransactionDTO
	s.Decode(resp, &txs)
	s.Require().Len(txs, 2)
	s.Assert().Equal("opening", txs[1].Kind)
	s.Assert().Equal(int64(1_000), txs[1].Amount)
	s.Assert().Equal(s.Balance(id), s.CompletedSum(id))
}

func (s *LedgerTestSuite) ingestBody(txID, userID, accountID uuid.UUID, amount int64, kind string) string {
	return fmt.Sprintf(`{"transaction_id":%q,"user_id":%q,"account_id":%q,"amount":%d,"kind":%q}`,
		txID, userID, accountID, amount, kind)
}

func (s *LedgerTestSuite) TestIngest() {
	id := s.CreateAccount("USD", 0)
	s.Bus.ClearPublished()

	txID := uuid.New()
	resp := s.MakeRequest(http.MethodPost, "/events/transactions", s.ingestBody(txID, s.UserID, id, 800, "income"), s.Token)
	defer resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusAccepted, resp.StatusCode)

	published := s.Bus.Published()
	s.Require().Len(published, 1)
	evt, ok := published[0].(*events.TransactionCompleted)
	s.Require().True(ok)
	s.Assert().Equal(txID, evt.TransactionID)
	s.Assert().Equal("USD", evt.Currency)

	s.Run("user mismatch is forbidden", func() {
		resp := s.MakeRequest(http.MethodPost, "/events/transactions", s.ingestBody(uuid.New(), uuid.New(), id, 800, "income"), s.Token)
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusForbidden, resp.StatusCode)
	})

	s.Run("unknown account", func() {
		resp := s.MakeRequest(http.MethodPost, "/events/transactions", s.ingestBody(uuid.New(), s.UserID, uuid.New(), 800, "income"), s.Token)
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusNotFound, resp.StatusCode)
	})

	s.Run("unknown kind", func() {
		resp := s.MakeRequest(http.MethodPost, "/events/transactions", s.ingestBody(uuid.New(), s.UserID, id, 800, "refund"), s.Token)
		defer resp.Body.Close() //nolint: errcheck
		s.Assert().Equal(fiber.StatusBadRequest, resp.StatusCode)
	})
}
