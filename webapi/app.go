// Package webapi assembles the HTTP surface of the rule engine.
package webapi

import (
	"errors"
	"time"

	_ "github.com/amirasaad/autotransfer/cmd/server/swagger"
	"github.com/amirasaad/autotransfer/pkg/app"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/webapi/common"
	"github.com/amirasaad/autotransfer/webapi/ledger"
	"github.com/amirasaad/autotransfer/webapi/rule"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
)

func NewApp(a *app.App, cfg *config.App) *fiber.App {
	api := fiber.New(fiber.Config{
		AppName: "autotransfer",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Request failed", err)
		},
	})

	api.Get("/swagger/*", swagger.New(swagger.Config{
		TryItOutEnabled:      true,
		PersistAuthorization: true,
	}))

	maxRequests, window := 100, time.Minute
	if cfg.RateLimit != nil {
		if cfg.RateLimit.MaxRequests > 0 {
			maxRequests = cfg.RateLimit.MaxRequests
		}
		if cfg.RateLimit.Window > 0 {
			window = cfg.RateLimit.Window
		}
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(c, "Too Many Requests",
				errors.New("rate limit exceeded"), fiber.StatusTooManyRequests)
		},
	}))
	api.Use(recover.New())

	api.Get("/health", func(c *fiber.Ctx) error {
		return common.SuccessResponseJSON(c, fiber.StatusOK, "App is working! 🚀", nil)
	})

	rule.Routes(api, a.RuleService, cfg, a.Deps.Logger)
	ledger.Routes(api, a.LedgerService, cfg, a.Deps.Logger)

	return api
}
