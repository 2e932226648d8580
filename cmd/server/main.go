package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirasaad/autotransfer/infra/initializer"
	"github.com/amirasaad/autotransfer/pkg/app"
	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/webapi"
	log "github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

//go:generate swag init --dir ../../ --generalInfo cmd/server/main.go --output ./swagger --outputTypes go

// @title Autotransfer API
// @version 1.0.0
// @description Account linking rule engine: automatic transfers between a user's accounts, triggered by income, expenses or a schedule.
// @termsOfService http://swagger.io/terms/
// @contact.name API Support
// @contact.email support@autotransfer.local
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:3000
// @BasePath /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter your bearer token in the format: Bearer {token}
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

type server struct {
	app    *app.App
	api    *fiber.App
	deps   *initializer.Deps
	logger *slog.Logger
}

// newServer wires every dependency for cfg. The caller closes deps.
func newServer(cfg *config.App) (*server, error) {
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	a := app.New(&deps.Deps, deps.Lock)
	return &server{
		app:    a,
		api:    webapi.NewApp(a, cfg),
		deps:   deps,
		logger: deps.Logger,
	}, nil
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.deps.Close(); err != nil {
			srv.logger.Warn("closing dependencies", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv.logger.Info("Starting server",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
		"event_bus", cfg.EventBus.Driver,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.app.Start(ctx)
	})
	g.Go(func() error {
		if err := srv.api.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.logger.Info("Shutting down")
		return srv.api.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}
