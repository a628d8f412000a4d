package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"go.uber.org/fx"

	"pjc-registration/internal/backend"
	"pjc-registration/internal/config"
	"pjc-registration/internal/eligibility"
	"pjc-registration/internal/postgres"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/registration"
	"pjc-registration/internal/sheets"
)

func main() {
	_ = godotenv.Load()

	fx.New(
		fx.NopLogger,
		fx.Provide(
			loadConfig,
			newStore,
			newService,
			backend.NewHandler,
			backend.NewRouter,
			newHTTPServer,
		),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}

func loadConfig() (config.Backend, error) {
	cfg, err := config.BackendFromEnv()
	if err != nil {
		return config.Backend{}, err
	}
	log.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func newStore(lc fx.Lifecycle, cfg config.Backend) (backend.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.Storage {
	case config.StorageSheets:
		// the client keeps its context for token refresh
		client, err := sheets.New(context.Background(), cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureHeaders(ctx); err != nil {
			return nil, err
		}
		log.WithField("spreadsheet", client.SpreadsheetID()).Info("using sheets storage")
		return client, nil
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := postgres.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return db.Close() }})
		return store, nil
	}
	log.Warn("using in-memory storage, registrations are lost on restart")
	return backend.NewMemoryStore(), nil
}

func newService(cfg config.Backend, store backend.Store) *backend.Service {
	validator := registration.NewValidator(cfg.Catalog, eligibility.New(cfg.Catalog.Categories), nil)
	return backend.NewService(store, validator, pricing.New(cfg.Catalog.UnitFee), cfg.Catalog.Currency, cfg.PaymentKeySecret)
}

func newHTTPServer(lc fx.Lifecycle, cfg config.Backend, router *gin.Engine) *http.Server {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Infof("backend API listening on %s", srv.Addr)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("http server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
