package tgbot

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/config"
	"pjc-registration/internal/eligibility"
	"pjc-registration/internal/models"
	"pjc-registration/internal/payments"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/registration"
	"pjc-registration/internal/wizard"
)

const chat int64 = 42

type fakeBot struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (b *fakeBot) StopReceivingUpdates() {}

func (b *fakeBot) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	for i := len(b.sent) - 1; i >= 0; i-- {
		if msg, ok := b.sent[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	t.Fatal("no message sent")
	return tgbotapi.MessageConfig{}
}

func (b *fakeBot) lastText(t *testing.T) string {
	t.Helper()
	return b.last(t).Text
}

// button returns the callback data of the first button in the last message
// whose caption contains caption.
func (b *fakeBot) button(t *testing.T, caption string) string {
	t.Helper()
	kb, ok := b.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("last message has no inline keyboard: %q", b.lastText(t))
	}
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if strings.Contains(btn.Text, caption) && btn.CallbackData != nil {
				return *btn.CallbackData
			}
		}
	}
	t.Fatalf("no button %q in last message", caption)
	return ""
}

type fakeBackend struct {
	creates  int
	verifies int
	amount   int64
	// when set, CreateRegistration waits for it to be closed
	hold chan struct{}
	// returned by the next CreateRegistration
	createErr error
}

func (f *fakeBackend) CreateRegistration(_ context.Context, d models.Draft) (models.Receipt, error) {
	if f.hold != nil {
		<-f.hold
	}
	f.creates++
	if err := f.createErr; err != nil {
		f.createErr = nil
		return models.Receipt{}, err
	}
	return models.Receipt{RegistrationID: "REG-1", PaymentAmount: f.amount}, nil
}

func (f *fakeBackend) CreateOrder(_ context.Context, req models.OrderRequest) (models.Order, error) {
	return models.Order{ID: "order_1", Amount: req.Amount * 100, Currency: "INR"}, nil
}

func (f *fakeBackend) VerifyPayment(context.Context, models.Verification) error {
	f.verifies++
	return nil
}

type fakeWidget struct {
	last models.CheckoutOptions
}

func (w *fakeWidget) Name() string           { return "fake" }
func (w *fakeWidget) Routes(*http.ServeMux) {}
func (w *fakeWidget) Launch(_ context.Context, opts models.CheckoutOptions) (string, error) {
	w.last = opts
	return "https://pay.example/" + opts.OrderID, nil
}

type harness struct {
	app     *App
	bot     *fakeBot
	backend *fakeBackend
	widget  *fakeWidget
}

func newHarness() *harness {
	catalog := config.DefaultCatalog()
	clock := func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	v := registration.NewValidator(catalog, eligibility.New(catalog.Categories, eligibility.WithClock(clock)), clock)
	h := &harness{bot: &fakeBot{}, backend: &fakeBackend{amount: 2000}, widget: &fakeWidget{}}
	adapter := payments.NewAdapter(h.backend, h.widget, "key")
	factory := func() *wizard.Controller {
		return wizard.New(registration.NewForm(v, pricing.New(catalog.UnitFee), h.backend), adapter)
	}
	h.app = newApp(config.Config{Catalog: catalog, SessionTTL: time.Hour}, h.bot, factory)
	return h
}

func (h *harness) say(t *testing.T, text string) {
	t.Helper()
	h.sayAs(t, chat, text)
}

func (h *harness) sayAs(t *testing.T, chatID int64, text string) {
	t.Helper()
	h.app.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{ID: chatID},
	}})
}

// await delivers the next finished backend call the way Run does.
func (h *harness) await(t *testing.T) {
	t.Helper()
	select {
	case r := <-h.app.results:
		h.app.finish(context.Background(), r)
	case <-time.After(2 * time.Second):
		t.Fatal("backend call did not finish")
	}
}

func (h *harness) submit(t *testing.T) {
	t.Helper()
	h.pressCaption(t, "Submit")
	h.await(t)
}

func (h *harness) pay(t *testing.T) {
	t.Helper()
	h.press(t, "pay")
	h.await(t)
}

func (h *harness) deliver(t *testing.T) {
	t.Helper()
	if err := h.app.handleOutcome(context.Background(), h.nextOutcome(t)); err != nil {
		t.Fatalf("handleOutcome: %v", err)
	}
	h.await(t)
}

func (h *harness) press(t *testing.T, data string) {
	t.Helper()
	h.app.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chat},
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: chat}},
		Data:    data,
	}})
}

func (h *harness) pressCaption(t *testing.T, caption string) {
	t.Helper()
	h.press(t, h.bot.button(t, caption))
}

// fillForm walks the conversation up to the summary.
func (h *harness) fillForm(t *testing.T) {
	t.Helper()
	h.say(t, "/start")
	h.say(t, "Asha Rao")
	h.say(t, "asha@example.com")
	h.say(t, "9876543210")
	h.pressCaption(t, "Female")
	h.pressCaption(t, "Pune")
	h.say(t, "2015-06-01")
	h.pressCaption(t, "Under 11 (U11)")
	h.pressCaption(t, "Under 13 (U13)")
	h.press(t, "cat:done")
	for _, v := range []string{"Pune Strikers", "Deccan FC Academy", "Pune", "R. Kulkarni", "9123456780", "coach@example.com"} {
		h.say(t, v)
	}
	for i := 0; i < 3; i++ {
		h.pressCaption(t, "I accept")
	}
	if !strings.Contains(h.bot.lastText(t), "Please check the registration") {
		t.Fatalf("expected summary, got %q", h.bot.lastText(t))
	}
}

func (h *harness) nextOutcome(t *testing.T) outcomeEvent {
	t.Helper()
	select {
	case ev := <-h.app.outcomes:
		return ev
	default:
		t.Fatal("no payment outcome queued")
		return outcomeEvent{}
	}
}

func TestConversationToConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fillForm(t)
	summary := h.bot.lastText(t)
	for _, want := range []string{"Categories: Under 11 (U11), Under 13 (U13)", "Entry fee: 2000.00 INR", "Team: Pune Strikers"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}

	h.submit(t)
	if h.backend.creates != 1 {
		t.Fatalf("creates = %d, want 1", h.backend.creates)
	}
	if got := h.bot.lastText(t); !strings.Contains(got, "REG-1") || !strings.Contains(got, "2000.00 INR") {
		t.Fatalf("payment screen = %q", got)
	}

	h.pay(t)
	if !strings.Contains(h.bot.lastText(t), "Choose a payment method first") {
		t.Fatalf("pay without method = %q", h.bot.lastText(t))
	}
	h.pressCaption(t, "UPI")
	h.pay(t)
	if !strings.Contains(h.bot.lastText(t), "https://pay.example/order_1") {
		t.Fatalf("checkout link = %q", h.bot.lastText(t))
	}
	if h.widget.last.Prefill.Name != "Asha Rao" || h.widget.last.Prefill.Contact != "9876543210" {
		t.Fatalf("prefill = %+v", h.widget.last.Prefill)
	}

	h.widget.last.OnSuccess(models.PaymentAssertion{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	h.deliver(t)
	if h.backend.verifies != 1 {
		t.Fatalf("verifies = %d, want 1", h.backend.verifies)
	}
	if got := h.bot.lastText(t); !strings.Contains(got, "Registration confirmed") || !strings.Contains(got, "REG-1") {
		t.Fatalf("confirmation = %q", got)
	}
}

func TestDismissedCheckoutReturnsToPayment(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fillForm(t)
	h.submit(t)
	h.pressCaption(t, "Card")
	h.pay(t)

	h.widget.last.OnDismiss()
	h.deliver(t)
	if h.backend.verifies != 0 {
		t.Fatalf("verifies = %d, want 0", h.backend.verifies)
	}
	if got := h.bot.lastText(t); !strings.Contains(got, "Payment was cancelled") {
		t.Fatalf("after dismiss = %q", got)
	}
	s := h.app.session(chat)
	if st := s.wiz.State(); st.Stage != wizard.StagePayment || st.ProcessingPayment {
		t.Fatalf("state = %+v", st)
	}
}

func TestBackToFormKeepsAnswers(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fillForm(t)
	h.submit(t)
	h.pressCaption(t, "Back to the form")

	got := h.bot.lastText(t)
	if !strings.Contains(got, "Representative: Asha Rao") || !strings.Contains(got, "Coach: R. Kulkarni") {
		t.Fatalf("summary after back = %q", got)
	}
}

func TestInvalidInputIsRepromptedAndEditsReturnToSummary(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.say(t, "/start")
	h.say(t, "Asha Rao")
	h.say(t, "not-an-email")
	if got := h.bot.lastText(t); !strings.Contains(got, "enter a valid email address") {
		t.Fatalf("email reprompt = %q", got)
	}

	h.fillForm(t)
	h.pressCaption(t, "Date of birth")
	h.say(t, "2014-02-02")
	// U11 is dropped and U13 stays, so the edit goes straight back to the summary
	got := h.bot.lastText(t)
	if !strings.Contains(got, "Categories: Under 13 (U13)") || !strings.Contains(got, "Entry fee: 1000.00 INR") {
		t.Fatalf("summary after dob edit = %q", got)
	}

	h.pressCaption(t, "Date of birth")
	h.say(t, "2008-01-01")
	if got := h.bot.lastText(t); !strings.Contains(got, "no eligible category") {
		t.Fatalf("dob reprompt = %q", got)
	}
	h.say(t, "2013-03-03")
	if got := h.bot.lastText(t); !strings.Contains(got, "Choose the categories") {
		t.Fatalf("expected category prompt, got %q", got)
	}
	h.pressCaption(t, "Under 15 (U15)")
	h.press(t, "cat:done")
	if got := h.bot.lastText(t); !strings.Contains(got, "Categories: Under 15 (U15)") {
		t.Fatalf("summary after reselect = %q", got)
	}
}

func TestCategoryToggleEditsKeyboard(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.say(t, "/start")
	h.say(t, "Asha Rao")
	h.say(t, "asha@example.com")
	h.say(t, "9876543210")
	h.pressCaption(t, "Male")
	h.pressCaption(t, "Mumbai")
	h.say(t, "2012-05-05")

	h.press(t, "cat:done")
	if got := h.bot.lastText(t); got != "Select at least one category." {
		t.Fatalf("done without selection = %q", got)
	}
	before := len(h.bot.requests)
	h.press(t, "cat:0")
	var edited bool
	for _, r := range h.bot.requests[before:] {
		if _, ok := r.(tgbotapi.EditMessageReplyMarkupConfig); ok {
			edited = true
		}
	}
	if !edited {
		t.Fatal("category toggle did not edit the keyboard")
	}
}

func TestMessageWithoutSession(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.say(t, "hello")
	if got := h.bot.lastText(t); got != "Send /start to register a team." {
		t.Fatalf("reply = %q", got)
	}
}

func TestSlowBackendOnlyHoldsItsOwnChat(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.hold = make(chan struct{})
	h.fillForm(t)
	h.pressCaption(t, "Submit")

	const other int64 = 99
	h.sayAs(t, other, "/start")
	last := h.bot.last(t)
	if last.ChatID != other || !strings.Contains(last.Text, "team representative") {
		t.Fatalf("other chat got %+v", last)
	}

	h.say(t, "hello")
	if got := h.bot.last(t); got.ChatID != chat || got.Text != busyText {
		t.Fatalf("waiting chat got %+v", got)
	}

	close(h.backend.hold)
	h.await(t)
	if got := h.bot.lastText(t); !strings.Contains(got, "REG-1") {
		t.Fatalf("payment screen = %q", got)
	}
	if h.backend.creates != 1 {
		t.Fatalf("creates = %d, want 1", h.backend.creates)
	}
}

func TestOutcomeDuringBackendCallWaitsForIt(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.fillForm(t)
	h.submit(t)
	h.pressCaption(t, "UPI")
	h.pay(t)

	s := h.app.session(chat)
	s.busy = true
	h.widget.last.OnDismiss()
	if err := h.app.handleOutcome(context.Background(), h.nextOutcome(t)); err != nil {
		t.Fatalf("handleOutcome: %v", err)
	}
	if len(s.waiting) != 1 {
		t.Fatalf("waiting = %d, want 1", len(s.waiting))
	}

	// the running call finishes, then the queued outcome is settled
	h.app.finish(context.Background(), callResult{chatID: chat, s: s, render: func(error) error { return nil }})
	h.await(t)
	if got := h.bot.lastText(t); !strings.Contains(got, "Payment was cancelled") {
		t.Fatalf("after queued dismiss = %q", got)
	}
}

func TestNotifierReturnsAfterStop(t *testing.T) {
	t.Parallel()

	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.app.Run(ctx); err == nil {
		t.Fatal("Run returned nil after cancel")
	}
	for len(h.app.outcomes) < cap(h.app.outcomes) {
		h.app.outcomes <- outcomeEvent{}
	}

	returned := make(chan struct{})
	go func() {
		h.app.notifier(chat)(payments.Outcome{OrderID: "order_1", Dismissed: true})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier blocked after the bot stopped")
	}
}

func TestCleanupTickIsClamped(t *testing.T) {
	t.Parallel()

	for _, ttl := range []time.Duration{3 * time.Nanosecond, time.Second, 2 * time.Hour} {
		if tick := cleanupTick(ttl); tick < time.Second || tick > time.Minute {
			t.Fatalf("cleanupTick(%v) = %v", ttl, tick)
		}
	}
}

func TestSubmitFailureOffersRetry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", apperr.Network(context.DeadlineExceeded), "did not answer in time"},
		{"rejected", apperr.Rejected("Email already registered"), "Email already registered"},
	}
	for _, tc := range cases {
		h := newHarness()
		h.backend.createErr = tc.err
		h.fillForm(t)
		h.submit(t)
		if got := h.bot.lastText(t); !strings.Contains(got, tc.want) {
			t.Fatalf("%s: reply = %q, want %q", tc.name, got, tc.want)
		}

		h.pressCaption(t, "Try again")
		h.await(t)
		if h.backend.creates != 2 {
			t.Fatalf("%s: creates = %d, want 2", tc.name, h.backend.creates)
		}
		if got := h.bot.lastText(t); !strings.Contains(got, "REG-1") {
			t.Fatalf("%s: after retry = %q", tc.name, got)
		}
	}
}

func TestSubmitNonRetryableErrorOffersEdits(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.createErr = errors.New("boom")
	h.fillForm(t)
	h.submit(t)
	kb, ok := h.bot.last(t).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatal("no keyboard after failure")
	}
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if strings.Contains(btn.Text, "Try again") {
				t.Fatal("retry offered for a non-retryable error")
			}
		}
	}
}
