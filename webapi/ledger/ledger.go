// Package ledger exposes the minimal account ledger the rule engine moves
// money through, plus the ingestion endpoint for transactions completed
// elsewhere.
package ledger

import (
	"errors"
	"log/slog"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/middleware"
	ledgersvc "github.com/amirasaad/autotransfer/pkg/service/ledger"
	"github.com/amirasaad/autotransfer/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the ledger endpoints. All of them require a bearer token.
//
//   - POST /accounts                   : Open an account.
//   - GET  /accounts                   : List the caller's accounts.
//   - GET  /accounts/:id               : Fetch one account.
//   - POST /accounts/:id/transactions  : Post an income or expense.
//   - GET  /accounts/:id/transactions  : List an account's entries.
//   - POST /events/transactions        : Ingest a completed transaction.
func Routes(app *fiber.App, svc *ledgersvc.Service, cfg *config.App, logger *slog.Logger) {
	protected := middleware.Protected(cfg.Auth.Jwt.Secret)
	h := &handlers{svc: svc, logger: logger.With("api", "ledger")}

	accounts := app.Group("/accounts", protected)
	accounts.Post("/", h.createAccount)
	accounts.Get("/", h.listAccounts)
	accounts.Get("/:id", h.getAccount)
	accounts.Post("/:id/transactions", h.postTransaction)
	accounts.Get("/:id/transactions", h.listTransactions)

	app.Post("/events/transactions", protected, h.ingest)
}

type handlers struct {
	svc    *ledgersvc.Service
	logger *slog.Logger
}

func unauthorized(c *fiber.Ctx, err error) error {
	return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
}

func accountID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid account id")
	}
	return id, nil
}

// @Summary Open an account
// @Description Opens an account for the caller. A non-zero opening balance is recorded as a completed opening entry.
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account details"
// @Success 201 {object} common.Response{data=AccountDTO} "Account created"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /accounts [post]
// @Security BearerAuth
func (h *handlers) createAccount(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	input, err := common.BindAndValidate[CreateAccountRequest](c)
	if input == nil {
		return err
	}
	acc, err := h.svc.CreateAccount(c.UserContext(), owner, input.Currency, input.OpeningBalance)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to create account", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusCreated, "Account created", toAccountDTO(acc))
}

// @Summary List accounts
// @Tags accounts
// @Produce json
// @Success 200 {object} common.Response{data=[]AccountDTO} "Accounts fetched"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /accounts [get]
// @Security BearerAuth
func (h *handlers) listAccounts(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	accs, err := h.svc.ListAccounts(c.UserContext(), owner)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to list accounts", err)
	}
	out := make([]AccountDTO, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountDTO(a))
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Accounts fetched", out)
}

// @Summary Get an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} common.Response{data=AccountDTO} "Account fetched"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /accounts/{id} [get]
// @Security BearerAuth
func (h *handlers) getAccount(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := accountID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid account ID", err)
	}
	acc, err := h.svc.GetAccount(c.UserContext(), owner, id)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to fetch account", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Account fetched", toAccountDTO(acc))
}

// @Summary Post a transaction
// @Description Posts a completed income or expense entry and announces it to the rule engine.
// @Tags transactions
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body PostTransactionRequest true "Transaction details"
// @Success 201 {object} common.Response{data=TransactionDTO} "Transaction posted"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 422 {object} common.ProblemDetails "Insufficient funds"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /accounts/{id}/transactions [post]
// @Security BearerAuth
func (h *handlers) postTransaction(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := accountID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid account ID", err)
	}
	input, err := common.BindAndValidate[PostTransactionRequest](c)
	if input == nil {
		return err
	}
	tx, err := h.svc.Post(c.UserContext(), owner, id, input.Amount, account.Kind(input.Kind), input.Description)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to post transaction", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusCreated, "Transaction posted", toTransactionDTO(tx))
}

// @Summary List transactions
// @Tags transactions
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} common.Response{data=[]TransactionDTO} "Transactions fetched"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /accounts/{id}/transactions [get]
// @Security BearerAuth
func (h *handlers) listTransactions(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := accountID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid account ID", err)
	}
	txs, err := h.svc.ListTransactions(c.UserContext(), owner, id)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to list transactions", err)
	}
	out := make([]TransactionDTO, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionDTO(t))
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Transactions fetched", out)
}

// ingest accepts a completed transaction from an external writer. The
// caller may only report entries of its own accounts.
// @Summary Ingest a completed transaction
// @Description Accepts a transaction completed by an external writer and hands it to the rule engine. Redelivery of the same transaction_id is harmless.
// @Tags events
// @Accept json
// @Produce json
// @Param request body TransactionEventRequest true "Completed transaction"
// @Success 202 {object} common.Response "Event accepted"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 403 {object} common.ProblemDetails "Account belongs to another user"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Failure 503 {object} common.ProblemDetails "Event could not be published"
// @Router /events/transactions [post]
// @Security BearerAuth
func (h *handlers) ingest(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	input, err := common.BindAndValidate[TransactionEventRequest](c)
	if input == nil {
		return err
	}
	evt := input.toEvent()
	if evt.UserID != owner {
		return common.ProblemDetailsJSON(c, "Forbidden", errors.New("user_id does not match the token"), fiber.StatusForbidden)
	}
	if _, err := h.svc.GetAccount(c.UserContext(), owner, evt.AccountID); err != nil {
		return common.ProblemDetailsJSON(c, "Unknown account", err)
	}
	if err := h.svc.Publish(c.UserContext(), evt); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return common.ProblemDetailsJSON(c, "Invalid event", err)
		}
		h.logger.Error("❌ [ERROR] Ingest failed", "transaction_id", evt.TransactionID, "error", err)
		return common.ProblemDetailsJSON(c, "Failed to publish event", err, fiber.StatusServiceUnavailable)
	}
	return common.SuccessResponseJSON(c, fiber.StatusAccepted, "Event accepted", fiber.Map{"transaction_id": evt.TransactionID})
}
