package models

import (
	"fmt"
	"strings"
	"time"
)

// Draft is the registration form as typed by the team representative.
// JSON names are the wire names of POST /api/registration/create.
type Draft struct {
	TeamRepName string `json:"teamRepName" validate:"required"`
	EmailID     string `json:"emailId" validate:"required,email"`
	PhoneNo     string `json:"phoneNo" validate:"required,phone"`
	Gender      string `json:"gender" validate:"required,gender"`
	City        string `json:"city" validate:"required,city"`

	DateOfBirth time.Time `json:"dateOfBirth"`
	Categories  []string  `json:"categories"`

	TeamName        string `json:"teamName" validate:"required"`
	AcademyName     string `json:"academyName" validate:"required"`
	AcademyLocation string `json:"academyLocation" validate:"required"`
	CoachName       string `json:"coachName" validate:"required"`
	CoachMobile     string `json:"coachMobile" validate:"required,phone"`
	CoachEmail      string `json:"coachEmail" validate:"required,email"`

	RulesAccepted bool `json:"rulesAccepted"`
	TermsAccepted bool `json:"termsAccepted"`
	AgreeTerms    bool `json:"agreeTerms"`
}

// Clone returns a copy that shares no slices with d.
func (d Draft) Clone() Draft {
	out := d
	out.Categories = append([]string(nil), d.Categories...)
	return out
}

// Receipt is what the backend returns for a created registration.
type Receipt struct {
	RegistrationID string
	PaymentAmount  int64
}

type PaymentMethod string

const (
	MethodUPI        PaymentMethod = "upi"
	MethodCard       PaymentMethod = "card"
	MethodNetBanking PaymentMethod = "netbanking"
)

// PaymentMethods lists the methods offered to the user, in display order.
var PaymentMethods = []PaymentMethod{MethodUPI, MethodCard, MethodNetBanking}

func (m PaymentMethod) Title() string {
	switch m {
	case MethodUPI:
		return "UPI"
	case MethodCard:
		return "Card"
	case MethodNetBanking:
		return "NetBanking"
	}
	return string(m)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PaymentMethods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// OrderRequest is the body of POST /api/payment/create-order.
type OrderRequest struct {
	RegistrationID string        `json:"registrationId"`
	Amount         int64         `json:"amount"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
}

// Order is the gateway order handle. Amount is in minor currency units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentAssertion is what the gateway widget hands back on success.
type PaymentAssertion struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Verification is the body of POST /api/payment/verify.
type Verification struct {
	RegistrationID   string `json:"registrationId"`
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	GatewaySignature string `json:"gatewaySignature"`
}

type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CheckoutOptions are handed to the payment widget. Exactly one of the
// callbacks is expected to fire per launch.
type CheckoutOptions struct {
	Key       string
	Amount    int64
	Currency  string
	OrderID   string
	Prefill   Prefill
	OnSuccess func(PaymentAssertion)
	OnDismiss func()
}

type PayStatus string

const (
	PayStatusUnpaid PayStatus = "unpaid"
	PayStatusPaid   PayStatus = "paid"
)

// Registration is the backend-owned record.
type Registration struct {
	ID            string
	Draft         Draft
	PaymentAmount int64
	PayStatus     PayStatus
	OrderID       string
	PaymentID     string
	CreatedAt     string
}

// StoredOrder links a gateway order to its registration.
type StoredOrder struct {
	Order
	RegistrationID string
	Method         PaymentMethod
	CreatedAt      string
}
