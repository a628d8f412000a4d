package backend

import (
	"context"

	"pjc-registration/internal/models"
)

// Store persists registrations and their gateway orders. Getters return
// (nil, nil) when the record does not exist. MarkPaid only changes an unpaid
// registration and reports whether it did.
type Store interface {
	CreateRegistration(ctx context.Context, reg models.Registration) error
	GetRegistration(ctx context.Context, id string) (*models.Registration, error)
	SaveOrder(ctx context.Context, o models.StoredOrder) error
	GetOrder(ctx context.Context, id string) (*models.StoredOrder, error)
	MarkPaid(ctx context.Context, registrationID, orderID, paymentID string) (bool, error)
}
