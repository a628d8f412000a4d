// Package api is the client for the registration/payment backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
)

const (
	PathCreateRegistration = "/api/registration/create"
	PathCreateOrder        = "/api/payment/create-order"
	PathVerifyPayment      = "/api/payment/verify"
)

// Client issues each call once; retries are left to the user.
type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0)
	return &Client{http: c}
}

type errorBody struct {
	Message string `json:"message"`
}

type createResponse struct {
	RegistrationID string `json:"registrationId"`
	Data           struct {
		PaymentAmount int64 `json:"paymentAmount"`
	} `json:"data"`
}

func (c *Client) CreateRegistration(ctx context.Context, d models.Draft) (models.Receipt, error) {
	var out createResponse
	if err := c.post(ctx, PathCreateRegistration, d, &out); err != nil {
		return models.Receipt{}, err
	}
	if out.RegistrationID == "" || out.Data.PaymentAmount <= 0 {
		return models.Receipt{}, apperr.Rejected("server returned an incomplete registration")
	}
	return models.Receipt{RegistrationID: out.RegistrationID, PaymentAmount: out.Data.PaymentAmount}, nil
}

func (c *Client) CreateOrder(ctx context.Context, req models.OrderRequest) (models.Order, error) {
	var out models.Order
	if err := c.post(ctx, PathCreateOrder, req, &out); err != nil {
		return models.Order{}, err
	}
	if out.ID == "" {
		return models.Order{}, apperr.Rejected("server returned no order")
	}
	return out, nil
}

func (c *Client) VerifyPayment(ctx context.Context, v models.Verification) error {
	return c.post(ctx, PathVerifyPayment, v, nil)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var failure errorBody
	req := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&failure)
	if result != nil {
		req.SetResult(result)
	}

	start := time.Now()
	resp, err := req.Post(path)
	entry := log.WithFields(log.Fields{"path": path, "took": time.Since(start).Round(time.Millisecond)})
	if err != nil {
		entry.WithError(err).Warn("backend unreachable")
		return apperr.Network(err)
	}
	entry = entry.WithField("status", resp.StatusCode())
	if !resp.IsSuccess() {
		entry.WithField("message", failure.Message).Info("backend rejected request")
		if failure.Message == "" {
			return apperr.Rejected(fmt.Sprintf("request failed: %s", http.StatusText(resp.StatusCode())))
		}
		return apperr.Rejected(failure.Message)
	}
	entry.Debug("backend ok")
	return nil
}

// IsTimeout reports whether err is a network error caused by the request
// deadline expiring.
func IsTimeout(err error) bool {
	if apperr.KindOf(err) != apperr.KindNetwork {
		return false
	}
	var ne interface{ Timeout() bool }
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}
