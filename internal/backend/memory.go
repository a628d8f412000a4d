package backend

import (
	"context"
	"fmt"
	"sync"

	"pjc-registration/internal/models"
)

// MemoryStore keeps everything in process. Used in tests and with
// STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu            sync.Mutex
	registrations map[string]models.Registration
	orders        map[string]models.StoredOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registrations: map[string]models.Registration{},
		orders:        map[string]models.StoredOrder{},
	}
}

func (m *MemoryStore) CreateRegistration(_ context.Context, reg models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registrations[reg.ID]; ok {
		return fmt.Errorf("registration %s already exists", reg.ID)
	}
	reg.Draft = reg.Draft.Clone()
	m.registrations[reg.ID] = reg
	return nil
}

func (m *MemoryStore) GetRegistration(_ context.Context, id string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[id]
	if !ok {
		return nil, nil
	}
	reg.Draft = reg.Draft.Clone()
	return &reg, nil
}

func (m *MemoryStore) SaveOrder(_ context.Context, o models.StoredOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	reg, ok := m.registrations[o.RegistrationID]
	if ok {
		reg.OrderID = o.ID
		m.registrations[o.RegistrationID] = reg
	}
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*models.StoredOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *MemoryStore) MarkPaid(_ context.Context, registrationID, orderID, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.registrations[registrationID]
	if !ok {
		return false, fmt.Errorf("registration %s not found", registrationID)
	}
	if reg.PayStatus == models.PayStatusPaid {
		return false, nil
	}
	reg.PayStatus = models.PayStatusPaid
	reg.OrderID = orderID
	reg.PaymentID = paymentID
	m.registrations[registrationID] = reg
	return true, nil
}
