package common

import (
	"encoding/json"
	"errors"

	"github.com/amirasaad/autotransfer/pkg/domain"
	"github.com/amirasaad/autotransfer/pkg/domain/account"
	"github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ProblemContentType is the media type of RFC 9457 responses.
const ProblemContentType = "application/problem+json"

var validate = validator.New()

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

// SuccessResponseJSON writes data inside the standard envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// ProblemDetailsJSON writes err as a problem document. The status comes
// from ErrorToStatusCode unless overridden; rule field errors are listed
// under "errors".
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, status ...int) error {
	code := ErrorToStatusCode(err)
	if len(status) > 0 {
		code = status[0]
	}
	pd := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   code,
		Instance: c.OriginalURL(),
	}
	if err != nil {
		pd.Detail = err.Error()
		if fields := rule.FieldErrors(err); len(fields) > 0 {
			pd.Errors = fields
		}
	}
	return writeProblem(c, pd)
}

// writeProblem encodes pd with the problem+json media type. c.JSON would
// reset the content type to application/json.
func writeProblem(c *fiber.Ctx, pd ProblemDetails) error {
	raw, err := json.Marshal(pd)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, ProblemContentType)
	return c.Status(pd.Status).Send(raw)
}

// ErrorToStatusCode maps domain errors to HTTP status codes.
func ErrorToStatusCode(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusInternalServerError
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, account.ErrCurrencyMismatch),
		errors.Is(err, account.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, account.ErrInvalidStatusTransition):
		return fiber.StatusConflict
	case errors.Is(err, account.ErrInsufficientFunds),
		errors.Is(err, account.ErrInactiveAccount):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// BindAndValidate parses the request body and validates it using go-playground/validator.
// On failure the problem response is already written and the returned
// pointer is nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ProblemDetailsJSON(c, "Invalid request body", err, fiber.StatusBadRequest)
	}
	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return nil, writeProblem(c, ProblemDetails{
				Type:     "about:blank",
				Title:    "Validation failed",
				Status:   fiber.StatusBadRequest,
				Detail:   err.Error(),
				Instance: c.OriginalURL(),
				Errors:   fields,
			})
		}
		return nil, ProblemDetailsJSON(c, "Validation failed", err, fiber.StatusBadRequest)
	}
	return &input, nil
}
