package payments

import (
	"fmt"

	"pjc-registration/internal/config"
	"pjc-registration/internal/payments/stub"
)

func NewWidget(cfg config.Config) (Widget, error) {
	switch cfg.PaymentProvider {
	case "stub":
		return stub.New(cfg.PaymentKeySecret, cfg.PublicURL(), cfg.CheckoutTTL), nil
	default:
		return nil, fmt.Errorf("unknown payment provider: %s", cfg.PaymentProvider)
	}
}
