// Package payments adapts the hosted checkout widget and the backend order
// API into a single payment attempt with exactly one outcome.
package payments

import (
	"context"
	"net/http"

	"pjc-registration/internal/models"
)

// Backend is the order side of the registration backend.
type Backend interface {
	CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error)
	VerifyPayment(ctx context.Context, v models.Verification) error
}

// Widget opens a checkout for an order and reports back through the
// callbacks in the options.
type Widget interface {
	Name() string

	// Launch returns the URL the user follows to pay. Exactly one of
	// opts.OnSuccess or opts.OnDismiss fires later.
	Launch(ctx context.Context, opts models.CheckoutOptions) (checkoutURL string, err error)

	// Routes mounts the pages the widget serves itself, if any.
	Routes(mux *http.ServeMux)
}

// Outcome is the single result of a checkout.
type Outcome struct {
	OrderID   string
	Dismissed bool
	Assertion models.PaymentAssertion
}
