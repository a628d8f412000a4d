// Package tgbot runs the registration wizard as a Telegram conversation, one
// wizard per chat.
package tgbot

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"github.com/zekroTJA/timedmap"

	"pjc-registration/internal/config"
	"pjc-registration/internal/payments"
	"pjc-registration/internal/wizard"
)

// botAPI is the part of *tgbotapi.BotAPI the app uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// WizardFactory builds a fresh wizard for a new registration.
type WizardFactory func() *wizard.Controller

type App struct {
	cfg       config.Config
	bot       botAPI
	newWizard WizardFactory
	steps     []step

	// chat id -> *session, dropped after SessionTTL of inactivity
	sessions *timedmap.TimedMap
	outcomes chan outcomeEvent
	results  chan callResult
	// closed when Run returns
	done     chan struct{}
	stopOnce sync.Once
}

type session struct {
	wiz     *wizard.Controller
	step    int
	editing bool

	// a backend call owns the wizard until its result is back on the loop
	busy    bool
	waiting []payments.Outcome
}

type outcomeEvent struct {
	chatID  int64
	outcome payments.Outcome
}

type callResult struct {
	chatID int64
	s      *session
	err    error
	render func(error) error
}

func New(cfg config.Config, newWizard WizardFactory) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	log.WithField("username", b.Self.UserName).Info("telegram bot authorized")
	return newApp(cfg, b, newWizard), nil
}

func newApp(cfg config.Config, bot botAPI, newWizard WizardFactory) *App {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	return &App{
		cfg:       cfg,
		bot:       bot,
		newWizard: newWizard,
		steps:     buildSteps(cfg.Catalog),
		sessions:  timedmap.New(cleanupTick(cfg.SessionTTL)),
		outcomes:  make(chan outcomeEvent, 64),
		results:   make(chan callResult, 64),
		done:      make(chan struct{}),
	}
}

func cleanupTick(ttl time.Duration) time.Duration {
	tick := ttl / 4
	if tick > time.Minute {
		tick = time.Minute
	}
	if tick < time.Second {
		tick = time.Second
	}
	return tick
}

// Run serves updates, payment outcomes and finished backend calls until ctx
// is done. Backend calls run on their own goroutine while the chat is marked
// busy, so each wizard still sees one call at a time and a slow backend only
// holds up the chat that is waiting for it.
func (a *App) Run(ctx context.Context) error {
	defer a.stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			a.handleUpdate(ctx, upd)
		case ev := <-a.outcomes:
			if err := a.handleOutcome(ctx, ev); err != nil {
				log.WithError(err).WithField("chat_id", ev.chatID).Error("handle payment outcome")
			}
		case r := <-a.results:
			a.finish(ctx, r)
		}
	}
}

func (a *App) stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

// background runs call off the loop. render gets its error back on the loop.
// Until then the chat only gets a "please wait" reply.
func (a *App) background(ctx context.Context, chatID int64, s *session, call func(context.Context) error, render func(error) error) {
	s.busy = true
	go func() {
		r := callResult{chatID: chatID, s: s, render: render}
		r.err = call(ctx)
		select {
		case a.results <- r:
		case <-a.done:
		}
	}()
}

func (a *App) finish(ctx context.Context, r callResult) {
	r.s.busy = false
	if err := r.render(r.err); err != nil {
		log.WithError(err).WithField("chat_id", r.chatID).Error("send result")
	}
	// outcomes reported while the call was running
	for !r.s.busy && len(r.s.waiting) > 0 {
		o := r.s.waiting[0]
		r.s.waiting = r.s.waiting[1:]
		a.settle(ctx, r.chatID, r.s, o)
	}
}

func (a *App) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		if err := a.handleMessage(ctx, upd.Message); err != nil {
			log.WithError(err).WithField("chat_id", upd.Message.Chat.ID).Error("handle message")
		}
	case upd.CallbackQuery != nil:
		if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
			log.WithError(err).WithField("data", upd.CallbackQuery.Data).Error("handle callback")
		}
	}
}

// notifier hands a checkout outcome back to the Run loop.
func (a *App) notifier(chatID int64) func(payments.Outcome) {
	return func(o payments.Outcome) {
		select {
		case a.outcomes <- outcomeEvent{chatID: chatID, outcome: o}:
		case <-a.done:
			log.WithFields(log.Fields{"chat_id": chatID, "order_id": o.OrderID}).Warn("payment outcome after the bot stopped")
		}
	}
}

func (a *App) session(chatID int64) *session {
	s, _ := a.sessions.GetValue(chatID).(*session)
	if s != nil {
		a.sessions.Set(chatID, s, a.cfg.SessionTTL)
	}
	return s
}

func (a *App) startSession(chatID int64) *session {
	if old := a.session(chatID); old != nil && old.wiz.State().ProcessingPayment {
		log.WithFields(log.Fields{"chat_id": chatID, "order_id": old.wiz.State().OrderID}).
			Warn("restart abandons a payment in progress")
	}
	s := &session{wiz: a.newWizard()}
	a.sessions.Set(chatID, s, a.cfg.SessionTTL)
	log.WithField("chat_id", chatID).Info("registration session started")
	return s
}

func (a *App) SendText(chatID int64, text string) error {
	_, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (a *App) sendWithKeyboard(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err := a.bot.Send(msg)
	return err
}

// ---------- Message handling ----------

const busyText = "Still working on your last request, please wait a moment."

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	chatID := m.Chat.ID
	txt := strings.TrimSpace(m.Text)

	if s := a.session(chatID); s != nil && s.busy {
		return a.SendText(chatID, busyText)
	}

	switch {
	case strings.HasPrefix(txt, "/start"):
		s := a.startSession(chatID)
		if err := a.SendText(chatID, welcomeText(a.cfg.Catalog)); err != nil {
			return err
		}
		return a.prompt(chatID, s)
	case strings.HasPrefix(txt, "/status"):
		return a.showStatus(chatID)
	}

	s := a.session(chatID)
	if s == nil {
		return a.SendText(chatID, "Send /start to register a team.")
	}
	switch s.wiz.Stage() {
	case wizard.StageForm:
		return a.handleFormInput(ctx, chatID, s, txt)
	case wizard.StagePayment:
		return a.showPayment(chatID, s, "Use the buttons to choose a payment method and pay.")
	default:
		return a.showConfirmation(chatID, s)
	}
}

func (a *App) showStatus(chatID int64) error {
	s := a.session(chatID)
	if s == nil {
		return a.SendText(chatID, "No registration in progress. Send /start to begin.")
	}
	switch s.wiz.Stage() {
	case wizard.StageForm:
		return a.prompt(chatID, s)
	case wizard.StagePayment:
		return a.showPayment(chatID, s, "")
	default:
		return a.showConfirmation(chatID, s)
	}
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	// ack
	_, _ = a.bot.Request(tgbotapi.NewCallback(q.ID, ""))

	chatID := q.From.ID
	messageID := 0
	if q.Message != nil && q.Message.Chat != nil {
		chatID = q.Message.Chat.ID
		messageID = q.Message.MessageID
	}

	s := a.session(chatID)
	if s == nil {
		return a.SendText(chatID, "This session has expired. Send /start to begin again.")
	}
	if s.busy {
		return a.SendText(chatID, busyText)
	}
	switch s.wiz.Stage() {
	case wizard.StageForm:
		return a.handleFormCallback(ctx, chatID, messageID, s, q.Data)
	case wizard.StagePayment:
		return a.handlePaymentCallback(ctx, chatID, s, q.Data)
	default:
		return a.showConfirmation(chatID, s)
	}
}

func buttonRows(buttons []tgbotapi.InlineKeyboardButton, perRow int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for len(buttons) > 0 {
		n := perRow
		if n > len(buttons) {
			n = len(buttons)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons[:n]...))
		buttons = buttons[n:]
	}
	return rows
}
