// Package backend is the reference registration and payment backend behind
// /api/registration/create, /api/payment/create-order and /api/payment/verify.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/registration"
	"pjc-registration/internal/util"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAlreadyPaid          = errors.New("registration is already paid")
	ErrAmountMismatch       = errors.New("amount does not match the registration")
	ErrOrderMismatch        = errors.New("order does not belong to this registration")
	ErrBadSignature         = errors.New("invalid payment signature")
	ErrBadRequest           = errors.New("invalid request")
)

type Service struct {
	store     Store
	validator *registration.Validator
	pricing   pricing.Calculator
	currency  string
	secret    string
}

func NewService(store Store, v *registration.Validator, calc pricing.Calculator, currency, secret string) *Service {
	return &Service{store: store, validator: v, pricing: calc, currency: currency, secret: secret}
}

func newID(prefix string) string {
	return prefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// CreateRegistration applies the form rules again and prices the
// registration from the categories alone.
func (s *Service) CreateRegistration(ctx context.Context, d models.Draft) (models.Registration, error) {
	d = registration.Normalize(d)
	if fields := s.validator.Validate(d); len(fields) > 0 {
		return models.Registration{}, apperr.Validation(fields)
	}
	reg := models.Registration{
		ID:            newID("REG-"),
		Draft:         d,
		PaymentAmount: s.pricing.Price(d.Categories),
		PayStatus:     models.PayStatusUnpaid,
		CreatedAt:     util.NowISO(),
	}
	if err := s.store.CreateRegistration(ctx, reg); err != nil {
		return models.Registration{}, fmt.Errorf("store registration: %w", err)
	}
	log.WithFields(log.Fields{
		"registration_id": reg.ID,
		"team":            d.TeamName,
		"categories":      d.Categories,
		"amount":          reg.PaymentAmount,
	}).Info("registration created")
	return reg, nil
}

func (s *Service) registration(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	return reg, nil
}

// CreateOrder opens a gateway order for the full registration amount.
func (s *Service) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	method, err := models.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return models.Order{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	reg, err := s.registration(ctx, req.RegistrationID)
	if err != nil {
		return models.Order{}, err
	}
	if reg.PayStatus == models.PayStatusPaid {
		return models.Order{}, ErrAlreadyPaid
	}
	if req.Amount != reg.PaymentAmount {
		return models.Order{}, ErrAmountMismatch
	}

	order := models.Order{
		ID:       newID("order_"),
		Amount:   pricing.ToMinorUnits(reg.PaymentAmount),
		Currency: s.currency,
	}
	err = s.store.SaveOrder(ctx, models.StoredOrder{
		Order:          order,
		RegistrationID: reg.ID,
		Method:         method,
		CreatedAt:      util.NowISO(),
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("store order: %w", err)
	}
	log.WithFields(log.Fields{"registration_id": reg.ID, "order_id": order.ID, "method": method}).Info("order created")
	return order, nil
}

// Verify checks the gateway signature over order and payment id and marks the
// registration paid. Repeating a successful verification is a no-op.
func (s *Service) Verify(ctx context.Context, v models.Verification) error {
	order, err := s.store.GetOrder(ctx, v.GatewayOrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.RegistrationID != v.RegistrationID {
		return ErrOrderMismatch
	}
	reg, err := s.registration(ctx, v.RegistrationID)
	if err != nil {
		return err
	}

	entry := log.WithFields(log.Fields{"registration_id": reg.ID, "order_id": order.ID, "payment_id": v.GatewayPaymentID})
	if reg.PayStatus == models.PayStatusPaid {
		return s.alreadyPaid(entry, reg, v.GatewayPaymentID)
	}
	if !util.ValidHMAC(s.secret, v.GatewayOrderID+"|"+v.GatewayPaymentID, v.GatewaySignature) {
		entry.Warn("payment signature mismatch")
		return ErrBadSignature
	}
	marked, err := s.store.MarkPaid(ctx, reg.ID, order.ID, v.GatewayPaymentID)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	if !marked {
		// another verification got there first
		reg, err = s.registration(ctx, v.RegistrationID)
		if err != nil {
			return err
		}
		return s.alreadyPaid(entry, reg, v.GatewayPaymentID)
	}
	entry.Info("payment verified")
	return nil
}

// alreadyPaid accepts a repeat of the payment that settled reg.
func (s *Service) alreadyPaid(entry *log.Entry, reg *models.Registration, paymentID string) error {
	if reg.PaymentID == paymentID {
		entry.Info("payment already verified")
		return nil
	}
	entry.WithField("paid_with", reg.PaymentID).Warn("second payment for a paid registration")
	return ErrAlreadyPaid
}
