package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateRegistration(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != PathCreateRegistration {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{
			"registrationId": "REG-1",
			"data":           map[string]any{"paymentAmount": 2000},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	dob := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	receipt, err := c.CreateRegistration(context.Background(), models.Draft{
		TeamRepName: "Asha",
		DateOfBirth: dob,
		Categories:  []string{"Under 11 (U11)"},
	})
	if err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}
	if receipt.RegistrationID != "REG-1" || receipt.PaymentAmount != 2000 {
		t.Fatalf("receipt = %+v", receipt)
	}
	if got["dateOfBirth"] != "2015-06-01T00:00:00Z" {
		t.Fatalf("dateOfBirth on wire = %v", got["dateOfBirth"])
	}
	if got["teamRepName"] != "Asha" {
		t.Fatalf("teamRepName on wire = %v", got["teamRepName"])
	}
}

func TestServerMessageSurfacedVerbatim(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Team name already registered"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).CreateRegistration(context.Background(), models.Draft{})
	if !errors.Is(err, apperr.ErrRejected) {
		t.Fatalf("err = %v, want rejection", err)
	}
	if err.Error() != "Team name already registered" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRejectionWithoutMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).VerifyPayment(context.Background(), models.Verification{})
	if !errors.Is(err, apperr.ErrRejected) {
		t.Fatalf("err = %v, want rejection", err)
	}
	if err.Error() != "request failed: Bad Gateway" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestTimeoutIsRetryableNetworkError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).CreateOrder(context.Background(), models.OrderRequest{})
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want network", err)
	}
	if !apperr.Retryable(err) {
		t.Fatal("timeout should be retryable")
	}
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout(%v) = false", err)
	}
}

func TestCreateOrderAndVerify(t *testing.T) {
	t.Parallel()

	var verified models.Verification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathCreateOrder:
			var req models.OrderRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.RegistrationID != "REG-1" || req.Amount != 1000 || req.PaymentMethod != models.MethodUPI {
				t.Errorf("order request = %+v", req)
			}
			writeJSON(w, http.StatusOK, models.Order{ID: "order_1", Amount: 100000, Currency: "INR"})
		case PathVerifyPayment:
			_ = json.NewDecoder(r.Body).Decode(&verified)
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	order, err := c.CreateOrder(context.Background(), models.OrderRequest{RegistrationID: "REG-1", Amount: 1000, PaymentMethod: models.MethodUPI})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.ID != "order_1" || order.Amount != 100000 {
		t.Fatalf("order = %+v", order)
	}
	err = c.VerifyPayment(context.Background(), models.Verification{
		RegistrationID: "REG-1", GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", GatewaySignature: "sig",
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if verified.GatewayPaymentID != "pay_1" || verified.GatewaySignature != "sig" {
		t.Fatalf("verify body = %+v", verified)
	}
}

func TestIncompleteResponsesAreRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	if _, err := c.CreateRegistration(context.Background(), models.Draft{}); !errors.Is(err, apperr.ErrRejected) {
		t.Fatalf("CreateRegistration err = %v", err)
	}
	if _, err := c.CreateOrder(context.Background(), models.OrderRequest{}); !errors.Is(err, apperr.ErrRejected) {
		t.Fatalf("CreateOrder err = %v", err)
	}
}
