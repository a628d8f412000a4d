package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/api"
	"pjc-registration/internal/config"
	"pjc-registration/internal/eligibility"
	"pjc-registration/internal/payments"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/registration"
	"pjc-registration/internal/server"
	"pjc-registration/internal/tgbot"
	"pjc-registration/internal/wizard"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	client := api.New(cfg.BackendURL, cfg.RequestTimeout)

	widget, err := payments.NewWidget(cfg)
	if err != nil {
		log.Fatalf("payments: %v", err)
	}
	adapter := payments.NewAdapter(client, widget, cfg.PaymentKeyID)

	validator := registration.NewValidator(cfg.Catalog, eligibility.New(cfg.Catalog.Categories), nil)
	calc := pricing.New(cfg.Catalog.UnitFee)
	newWizard := func() *wizard.Controller {
		return wizard.New(registration.NewForm(validator, calc, client), adapter)
	}

	botApp, err := tgbot.New(cfg, newWizard)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}

	httpSrv := server.New(cfg, widget)

	go func() {
		log.Infof("checkout HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := botApp.Run(ctx); err != nil {
			log.WithError(err).Error("bot stopped")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	cancel()
	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = httpSrv.Shutdown(ctxTimeout)

	log.Info("bye")
}
