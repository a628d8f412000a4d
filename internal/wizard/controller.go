// Package wizard drives one registration through Form, Payment and
// Confirmation. A Controller is not safe for concurrent use; the owner
// (one conversation loop) serializes every call, including the delivery of
// payment outcomes.
package wizard

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/models"
	"pjc-registration/internal/payments"
	"pjc-registration/internal/registration"
)

var (
	ErrWrongStage      = errors.New("not allowed at this stage")
	ErrMethodRequired  = errors.New("choose a payment method first")
	ErrPaymentInFlight = errors.New("a payment is already in progress")
	ErrStaleOutcome    = errors.New("outcome does not match the current payment")
)

type Controller struct {
	form     *registration.Form
	payments *payments.Adapter

	state   State
	method  models.PaymentMethod
	attempt *payments.Attempt
}

func New(form *registration.Form, adapter *payments.Adapter) *Controller {
	return &Controller{form: form, payments: adapter, state: State{Stage: StageForm}}
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Stage() Stage { return c.state.Stage }

// Form is the draft being edited. It is only meant to be changed while the
// stage is Form.
func (c *Controller) Form() *registration.Form { return c.form }

func (c *Controller) Method() models.PaymentMethod { return c.method }

func (c *Controller) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"stage":           c.state.Stage,
		"registration_id": c.state.RegistrationID,
	})
}

func (c *Controller) moveTo(to Stage) error {
	if err := validateTransition(c.state.Stage, to); err != nil {
		return err
	}
	c.logger().WithField("to", to).Info("wizard transition")
	c.state.Stage = to
	return nil
}

func (c *Controller) fail(err error) error {
	c.state.LastError = err.Error()
	return err
}

// Submit sends the draft to the backend and, on success, opens the Payment
// stage with the server's registration id and amount.
func (c *Controller) Submit(ctx context.Context) error {
	if c.state.Stage != StageForm {
		return fmt.Errorf("submit: %w", ErrWrongStage)
	}
	c.state.LastError = ""
	receipt, err := c.form.Submit(ctx)
	if err != nil {
		return c.fail(err)
	}
	if err := c.moveTo(StagePayment); err != nil {
		return err
	}
	c.state.RegistrationID = receipt.RegistrationID
	c.state.PaymentAmount = receipt.PaymentAmount
	return nil
}

func (c *Controller) SelectMethod(m models.PaymentMethod) error {
	if c.state.Stage != StagePayment {
		return fmt.Errorf("select method: %w", ErrWrongStage)
	}
	if c.state.ProcessingPayment {
		return ErrPaymentInFlight
	}
	if _, err := models.ParsePaymentMethod(string(m)); err != nil {
		return err
	}
	c.method = m
	c.state.PaymentMethod = string(m)
	return nil
}

// Pay creates an order for the registration and launches the checkout. It
// returns the checkout URL; the outcome arrives later through notify and
// must be handed back to HandleOutcome.
func (c *Controller) Pay(ctx context.Context, prefill models.Prefill, notify func(payments.Outcome)) (string, error) {
	if c.state.Stage != StagePayment {
		return "", fmt.Errorf("pay: %w", ErrWrongStage)
	}
	if c.method == "" {
		c.logger().Debug("pay rejected: no method")
		return "", ErrMethodRequired
	}
	if c.state.ProcessingPayment {
		c.logger().Debug("pay rejected: payment in flight")
		return "", ErrPaymentInFlight
	}

	c.state.ProcessingPayment = true
	c.state.LastError = ""
	at, err := c.payments.Start(ctx, c.state.RegistrationID, c.state.PaymentAmount, c.method, prefill, notify)
	if err != nil {
		c.state.ProcessingPayment = false
		return "", c.fail(err)
	}
	c.attempt = at
	c.state.OrderID = at.Order.ID
	return at.URL, nil
}

// HandleOutcome settles the payment in flight. A dismissed checkout leaves
// the wizard in Payment ready for another attempt; a successful one is
// verified, and only a confirmed verification reaches Confirmation.
func (c *Controller) HandleOutcome(ctx context.Context, o payments.Outcome) error {
	if c.state.Stage != StagePayment || c.attempt == nil || o.OrderID != c.attempt.Order.ID {
		c.logger().WithFields(log.Fields{"order_id": o.OrderID, "dismissed": o.Dismissed}).Warn("ignoring stale payment outcome")
		return ErrStaleOutcome
	}
	at := c.attempt
	c.attempt = nil
	c.state.ProcessingPayment = false
	c.state.OrderID = ""

	if err := c.payments.Resolve(ctx, at, o); err != nil {
		return c.fail(err)
	}
	if o.Dismissed {
		return nil
	}
	return c.moveTo(StageConfirmation)
}

// GoBack returns to Form with the draft as it was. Any payment in progress
// is abandoned; its outcome will be reported as stale.
func (c *Controller) GoBack() error {
	if err := c.moveTo(StageForm); err != nil {
		return err
	}
	if c.attempt != nil {
		c.logger().WithField("order_id", c.attempt.Order.ID).Warn("abandoning payment in progress")
	}
	c.attempt = nil
	c.method = ""
	c.state = State{Stage: StageForm}
	return nil
}
