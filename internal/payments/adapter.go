package payments

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
)

var (
	ErrAlreadyResolved = errors.New("payment attempt already resolved")
	ErrOrderMismatch   = errors.New("outcome does not belong to this attempt")
)

// Attempt is one createOrder + launch cycle.
type Attempt struct {
	RegistrationID string
	Order          models.Order
	URL            string

	resolved bool
}

func (a *Attempt) Resolved() bool { return a.resolved }

type Adapter struct {
	backend Backend
	widget  Widget
	keyID   string
}

func NewAdapter(backend Backend, widget Widget, keyID string) *Adapter {
	return &Adapter{backend: backend, widget: widget, keyID: keyID}
}

// Start creates the order and, once it exists, launches the checkout.
// notify receives exactly one Outcome for the returned attempt, possibly
// from another goroutine.
func (a *Adapter) Start(ctx context.Context, regID string, amount int64, method models.PaymentMethod, prefill models.Prefill, notify func(Outcome)) (*Attempt, error) {
	order, err := a.backend.CreateOrder(ctx, models.OrderRequest{
		RegistrationID: regID,
		Amount:         amount,
		PaymentMethod:  method,
	})
	if err != nil {
		return nil, err
	}
	entry := log.WithFields(log.Fields{"registration_id": regID, "order_id": order.ID, "method": method})
	entry.Info("order created")

	var once sync.Once
	deliver := func(o Outcome) {
		once.Do(func() { notify(o) })
	}
	url, err := a.widget.Launch(ctx, models.CheckoutOptions{
		Key:      a.keyID,
		Amount:   order.Amount,
		Currency: order.Currency,
		OrderID:  order.ID,
		Prefill:  prefill,
		OnSuccess: func(pa models.PaymentAssertion) {
			if pa.OrderID == "" {
				pa.OrderID = order.ID
			}
			deliver(Outcome{OrderID: order.ID, Assertion: pa})
		},
		OnDismiss: func() {
			deliver(Outcome{OrderID: order.ID, Dismissed: true})
		},
	})
	if err != nil {
		entry.WithError(err).Error("checkout launch failed")
		return nil, apperr.Network(err)
	}
	return &Attempt{RegistrationID: regID, Order: order, URL: url}, nil
}

// Resolve settles an attempt with its outcome. A dismissed checkout is not
// an error and issues no call; a successful one is verified exactly once.
func (a *Adapter) Resolve(ctx context.Context, at *Attempt, o Outcome) error {
	if at.resolved {
		return ErrAlreadyResolved
	}
	if o.OrderID != at.Order.ID {
		return ErrOrderMismatch
	}
	at.resolved = true

	entry := log.WithFields(log.Fields{"registration_id": at.RegistrationID, "order_id": at.Order.ID})
	if o.Dismissed {
		entry.Info("checkout dismissed")
		return nil
	}
	err := a.backend.VerifyPayment(ctx, models.Verification{
		RegistrationID:   at.RegistrationID,
		GatewayOrderID:   at.Order.ID,
		GatewayPaymentID: o.Assertion.PaymentID,
		GatewaySignature: o.Assertion.Signature,
	})
	if err != nil {
		entry.WithError(err).Error("payment verification failed")
		return apperr.Verification(at.RegistrationID, err)
	}
	entry.WithField("payment_id", o.Assertion.PaymentID).Info("payment verified")
	return nil
}
