// Package stub is a self-hosted checkout used in development and tests.
//
// Launch registers the order and returns a link to /pay/stub. The page lets
// the payer either pay or cancel; paying produces a payment id signed with the
// key secret exactly as the real gateway would. A checkout left open longer
// than the TTL is dismissed.
package stub

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/zekroTJA/timedmap"

	"pjc-registration/internal/models"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/util"
)

const (
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

var ErrUnknownOrder = errors.New("unknown or expired checkout")

type Widget struct {
	secret  string
	baseURL string
	ttl     time.Duration

	mu      sync.Mutex
	pending *timedmap.TimedMap
}

func New(secret, baseURL string, ttl time.Duration) *Widget {
	tick := ttl / 2
	if tick > time.Minute {
		tick = time.Minute
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Widget{
		secret:  secret,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		pending: timedmap.New(tick),
	}
}

func (w *Widget) Name() string { return "stub" }

func (w *Widget) Launch(_ context.Context, opts models.CheckoutOptions) (string, error) {
	if opts.OrderID == "" {
		return "", errors.New("stub: order id required")
	}
	if opts.OnSuccess == nil || opts.OnDismiss == nil {
		return "", errors.New("stub: both callbacks are required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Contains(opts.OrderID) {
		return "", errors.New("stub: checkout already open for order " + opts.OrderID)
	}
	// the cleaner holds the map lock while running callbacks
	w.pending.Set(opts.OrderID, opts, w.ttl, func(v interface{}) {
		o := v.(models.CheckoutOptions)
		log.WithField("order_id", o.OrderID).Info("stub checkout expired")
		go o.OnDismiss()
	})

	link := "/pay/stub?order=" + url.QueryEscape(opts.OrderID)
	if w.baseURL != "" {
		link = w.baseURL + link
	}
	return link, nil
}

// Lookup returns the open checkout for orderID.
func (w *Widget) Lookup(orderID string) (models.CheckoutOptions, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	opts, ok := w.pending.GetValue(orderID).(models.CheckoutOptions)
	return opts, ok
}

// Complete closes the checkout for orderID. Any status other than paid
// dismisses it.
func (w *Widget) Complete(orderID, status string) error {
	w.mu.Lock()
	opts, ok := w.pending.GetValue(orderID).(models.CheckoutOptions)
	if ok {
		w.pending.Remove(orderID)
	}
	w.mu.Unlock()
	if !ok {
		return ErrUnknownOrder
	}

	entry := log.WithFields(log.Fields{"order_id": orderID, "status": status})
	if strings.TrimSpace(status) != StatusPaid {
		entry.Info("stub checkout dismissed")
		opts.OnDismiss()
		return nil
	}
	paymentID := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	entry.WithField("payment_id", paymentID).Info("stub checkout paid")
	opts.OnSuccess(models.PaymentAssertion{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: util.PaymentSignature(w.secret, orderID, paymentID),
	})
	return nil
}

var checkoutPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Checkout</title></head><body>
<h2>Team registration fee (test checkout)</h2>
<p>Order: {{.OrderID}}</p>
<p>Amount: {{.Amount}}</p>
{{if .Name}}<p>Payer: {{.Name}}{{if .Email}} &lt;{{.Email}}&gt;{{end}}</p>{{end}}
<form method="post" action="/pay/stub/complete">
<input type="hidden" name="order" value="{{.OrderID}}">
<button name="status" value="paid">Pay</button>
<button name="status" value="cancelled">Cancel</button>
</form>
</body></html>`))

var resultPage = template.Must(template.New("result").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Checkout</title></head><body>
<p>{{.}}</p>
<p>You can return to the chat now.</p>
</body></html>`))

func (w *Widget) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/pay/stub", w.servePage)
	mux.HandleFunc("/pay/stub/complete", w.serveComplete)
}

func (w *Widget) servePage(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	orderID := r.URL.Query().Get("order")
	if orderID == "" {
		http.Error(rw, "order required", http.StatusBadRequest)
		return
	}
	opts, ok := w.Lookup(orderID)
	if !ok {
		http.Error(rw, ErrUnknownOrder.Error(), http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = checkoutPage.Execute(rw, map[string]string{
		"OrderID": opts.OrderID,
		"Amount":  pricing.FormatMinor(opts.Amount, opts.Currency),
		"Name":    opts.Prefill.Name,
		"Email":   opts.Prefill.Email,
	})
}

func (w *Widget) serveComplete(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := r.FormValue("status")
	if err := w.Complete(r.FormValue("order"), status); err != nil {
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	}
	msg := "Payment cancelled."
	if status == StatusPaid {
		msg = "Payment received."
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = resultPage.Execute(rw, msg)
}
