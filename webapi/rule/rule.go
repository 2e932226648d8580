package rule

import (
	"log/slog"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	domainrule "github.com/amirasaad/autotransfer/pkg/domain/rule"
	"github.com/amirasaad/autotransfer/pkg/middleware"
	rulesvc "github.com/amirasaad/autotransfer/pkg/service/rule"
	"github.com/amirasaad/autotransfer/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the rule management endpoints. Every route requires a
// bearer token whose user_id claim owns the rules.
//
//   - POST   /rules                  : Create a rule.
//   - GET    /rules                  : List rules; ?active=true&trigger=on_income filters.
//   - GET    /rules/:id              : Fetch one rule.
//   - PUT    /rules/:id              : Replace a rule's editable fields.
//   - DELETE /rules/:id              : Deactivate a rule; history is kept.
//   - POST   /rules/:id/activate     : Reactivate a rule.
//   - POST   /rules/:id/deactivate   : Deactivate a rule.
//   - GET    /rules/:id/executions   : The rule's execution records.
func Routes(app *fiber.App, svc *rulesvc.Service, cfg *config.App, logger *slog.Logger) {
	protected := middleware.Protected(cfg.Auth.Jwt.Secret)
	loc := cfg.Scheduler.Location()
	h := &handlers{svc: svc, loc: loc, logger: logger.With("api", "rules")}

	g := app.Group("/rules", protected)
	g.Post("/", h.create)
	g.Get("/", h.list)
	g.Get("/:id", h.get)
	g.Put("/:id", h.update)
	g.Delete("/:id", h.delete)
	g.Post("/:id/activate", h.setActive(true))
	g.Post("/:id/deactivate", h.setActive(false))
	g.Get("/:id/executions", h.executions)
}

type handlers struct {
	svc    *rulesvc.Service
	loc    *time.Location
	logger *slog.Logger
}

func unauthorized(c *fiber.Ctx, err error) error {
	return common.ProblemDetailsJSON(c, "Unauthorized", err, fiber.StatusUnauthorized)
}

func ruleID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid rule id")
	}
	return id, nil
}

// @Summary Create a rule
// @Description Creates an automatic transfer rule between two of the caller's accounts. Scheduled rules get their first due instant from the configured anchor time.
// @Tags rules
// @Accept json
// @Produce json
// @Param request body RuleRequest true "Rule definition"
// @Success 201 {object} common.Response{data=RuleDTO} "Rule created"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 422 {object} common.ProblemDetails "Validation failed"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules [post]
// @Security BearerAuth
func (h *handlers) create(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	input, err := common.BindAndValidate[RuleRequest](c)
	if input == nil {
		return err
	}
	r, err := h.svc.CreateRule(c.UserContext(), input.toDraft(owner))
	if err != nil {
		h.logger.Warn("create rule rejected", "user_id", owner, "error", err)
		return common.ProblemDetailsJSON(c, "Failed to create rule", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusCreated, "Rule created", toRuleDTO(r, h.loc))
}

// @Summary List rules
// @Description Lists the caller's rules. With active=true only active rules are returned, optionally filtered by trigger.
// @Tags rules
// @Produce json
// @Param active query bool false "Only active rules"
// @Param trigger query string false "Trigger filter" Enums(on_income, on_expense, scheduled)
// @Success 200 {object} common.Response{data=[]RuleDTO} "Rules fetched"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules [get]
// @Security BearerAuth
func (h *handlers) list(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	var rules []*domainrule.AccountRule
	if c.QueryBool("active") {
		var trigger *domainrule.TriggerType
		if t := c.Query("trigger"); t != "" {
			tt := domainrule.TriggerType(t)
			trigger = &tt
		}
		rules, err = h.svc.ListActive(c.UserContext(), owner, trigger)
	} else {
		rules, err = h.svc.ListRules(c.UserContext(), owner)
	}
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to list rules", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Rules fetched", toRuleDTOs(rules, h.loc))
}

// @Summary Get a rule
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} common.Response{data=RuleDTO} "Rule fetched"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Rule not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules/{id} [get]
// @Security BearerAuth
func (h *handlers) get(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := ruleID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid rule ID", err)
	}
	r, err := h.svc.GetRule(c.UserContext(), owner, id)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to fetch rule", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Rule fetched", toRuleDTO(r, h.loc))
}

// @Summary Update a rule
// @Description Replaces the editable fields of a rule. Changing trigger or frequency resets the schedule cursor.
// @Tags rules
// @Accept json
// @Produce json
// @Param id path string true "Rule ID"
// @Param request body RuleRequest true "Rule definition"
// @Success 200 {object} common.Response{data=RuleDTO} "Rule updated"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Rule not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules/{id} [put]
// @Security BearerAuth
func (h *handlers) update(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := ruleID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid rule ID", err)
	}
	input, err := common.BindAndValidate[RuleRequest](c)
	if input == nil {
		return err
	}
	r, err := h.svc.UpdateRule(c.UserContext(), owner, id, input.toDraft(owner))
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to update rule", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Rule updated", toRuleDTO(r, h.loc))
}

// @Summary Delete a rule
// @Description Deactivates the rule. Its execution history is kept.
// @Tags rules
// @Param id path string true "Rule ID"
// @Success 204 "Rule deleted"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Rule not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules/{id} [delete]
// @Security BearerAuth
func (h *handlers) delete(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := ruleID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid rule ID", err)
	}
	if err := h.svc.DeleteRule(c.UserContext(), owner, id); err != nil {
		return common.ProblemDetailsJSON(c, "Failed to delete rule", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// @Summary Activate or deactivate a rule
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} common.Response{data=RuleDTO} "Rule updated"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Rule not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules/{id}/activate [post]
// @Router /rules/{id}/deactivate [post]
// @Security BearerAuth
func (h *handlers) setActive(active bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner, err := middleware.UserID(c)
		if err != nil {
			return unauthorized(c, err)
		}
		id, err := ruleID(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid rule ID", err)
		}
		if err := h.svc.SetActive(c.UserContext(), owner, id, active); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to change rule state", err)
		}
		r, err := h.svc.GetRule(c.UserContext(), owner, id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to fetch rule", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Rule updated", toRuleDTO(r, h.loc))
	}
}

// @Summary List rule executions
// @Description Returns the execution records of a rule, newest first: succeeded, failed, skipped and missed outcomes.
// @Tags rules
// @Produce json
// @Param id path string true "Rule ID"
// @Success 200 {object} common.Response{data=[]ExecutionDTO} "Executions fetched"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 404 {object} common.ProblemDetails "Rule not found"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /rules/{id}/executions [get]
// @Security BearerAuth
func (h *handlers) executions(c *fiber.Ctx) error {
	owner, err := middleware.UserID(c)
	if err != nil {
		return unauthorized(c, err)
	}
	id, err := ruleID(c)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Invalid rule ID", err)
	}
	recs, err := h.svc.ListExecutions(c.UserContext(), owner, id)
	if err != nil {
		return common.ProblemDetailsJSON(c, "Failed to list executions", err)
	}
	return common.SuccessResponseJSON(c, fiber.StatusOK, "Executions fetched", toExecutionDTOs(recs))
}
