package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"popup-engine/internal/api"
	"popup-engine/internal/catalog"
	"popup-engine/internal/config"
	"popup-engine/internal/display"
	"popup-engine/internal/listener"
	"popup-engine/internal/storage"
	"popup-engine/internal/sweeper"
	"popup-engine/internal/trigger"
	"popup-engine/internal/visit"
)

// App is the assembled service.
type App struct {
	Handler  http.Handler
	Visits   *visit.Registry
	Catalog  *catalog.Catalog
	Sweeper  *sweeper.Sweeper
	backend  storage.Backend
	postgres *storage.Postgres
}

// Assemble opens storage, loads the catalog and wires the HTTP handler.
func Assemble(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Catalog: catalog.New(logger)}

	switch cfg.Storage.Driver {
	case "sqlite":
		st, err := storage.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		app.backend = st
	default:
		st, err := storage.NewPostgres(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		app.backend, app.postgres = st, st
	}

	if err := app.Catalog.Refresh(ctx, app.backend); err != nil {
		// visits see an empty list until the next refresh succeeds
		logger.Error().Err(err).Msg("initial catalog load")
	}

	app.Visits = visit.NewRegistry(visit.Deps{
		Source:   app.Catalog,
		Durable:  app.backend.Frequency,
		Sink:     buildSink(cfg, logger),
		Triggers: trigger.FactoryOptions{CompactWidth: cfg.Engine.CompactWidth, DisableCompactExit: !cfg.Engine.CompactExitIntent},
		Log:      logger,
	})

	app.Sweeper = sweeper.New(app.Visits, cfg.VisitTTL(), cfg.SessionTTL(), logger)
	if err := app.Sweeper.Register(cfg.Sweeper.Spec); err != nil {
		app.Close()
		return nil, err
	}
	if app.postgres == nil {
		// no LISTEN/NOTIFY without postgres; poll instead
		err := app.Sweeper.AddJob(cfg.Catalog.RefreshSpec, "catalog refresh", func() {
			if err := app.Catalog.Refresh(ctx, app.backend); err != nil {
				logger.Error().Err(err).Msg("refresh catalog error")
			}
		})
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Handler = api.Router(api.NewVisitHandler(app.Visits))
	return app, nil
}

func buildSink(cfg config.Config, logger zerolog.Logger) display.ActionSink {
	if cfg.Actions.SubscribeURL != "" {
		return display.NewWebhookSink(cfg.Actions.SubscribeURL, logger)
	}
	return display.LogSink{Log: logger}
}

func (a *App) Close() {
	if a.Visits != nil {
		a.Visits.EndAll()
	}
	if a.backend != nil {
		a.backend.Close()
	}
}

func Run(cfg config.Config) {
	logger := config.SetupLogging(cfg.Server.LogLevel)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := Assemble(rootCtx, cfg, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	defer app.Close()

	// Listener (LISTEN/NOTIFY)
	if app.postgres != nil {
		go listener.ListenAndRefresh(rootCtx, app.postgres, app.Catalog, cfg.Listener.Channel, cfg.Backoff())
	}
	app.Sweeper.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Server goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("storage", cfg.Storage.Driver).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server crashed")
		}
	}()

	// Wait for signal
	waitForSignal()
	log.Info().Msg("shutdown...")

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	_ = srv.Shutdown(shCtx)
	app.Sweeper.Stop()
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}
