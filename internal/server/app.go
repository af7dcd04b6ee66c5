// Package server initializes and runs the RBAC backend: it selects the
// credential store backend, wires the auth core and the HTTP endpoint, and
// handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/allenzhangsg/rbac/internal/logging"
	"github.com/allenzhangsg/rbac/internal/server/api"
	"github.com/allenzhangsg/rbac/internal/server/auth"
	"github.com/allenzhangsg/rbac/internal/server/config"
	"github.com/allenzhangsg/rbac/internal/server/store"
	"github.com/allenzhangsg/rbac/internal/server/users"
)

type App struct {
	config *config.Config
	logger logging.Logger
	server *api.Server
}

// NewStore constructs the credential store backend named in the config.
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemoryStore(), nil
	case "dynamo":
		return store.NewDynamoStore(ctx, store.DynamoConfig{
			Table:           cfg.UsersTable,
			Region:          cfg.AWSRegion,
			BaseEndpoint:    cfg.AWSBaseEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func NewApp(cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	mode := auth.Mode(cfg.AuthzMode)
	if mode != auth.ModeCapability && mode != auth.ModeRole {
		return nil, fmt.Errorf("unknown authorization mode: %s", cfg.AuthzMode)
	}

	st, err := NewStore(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	tokens := auth.NewTokenService([]byte(cfg.SecretKey), cfg.TokenValidityDuration)
	gate := auth.NewGate(mode)
	resolver := auth.NewResolver(tokens, st, logger)

	us := users.NewService(st, tokens, gate, logger)
	handler := api.NewHandler(us, resolver, tokens, logger)
	srv := api.NewServer(cfg.EndpointAddrHTTP, handler, logger)

	return &App{config: cfg, logger: logger, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()
}
