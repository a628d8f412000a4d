package tgbot

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
	"pjc-registration/internal/payments"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/wizard"
)

func (a *App) paymentRows(s *session) [][]tgbotapi.InlineKeyboardButton {
	var methods []tgbotapi.InlineKeyboardButton
	for _, m := range models.PaymentMethods {
		title := m.Title()
		if s.wiz.Method() == m {
			title = "✅ " + title
		}
		methods = append(methods, tgbotapi.NewInlineKeyboardButtonData(title, "pm:"+string(m)))
	}
	return [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(methods...),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("💳 Pay", "pay")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Back to the form", "back")),
	}
}

func (a *App) showPayment(chatID int64, s *session, note string) error {
	st := s.wiz.State()
	var lines []string
	if note != "" {
		lines = append(lines, note)
	}
	lines = append(lines,
		"Registration ID: "+st.RegistrationID,
		"Amount due: "+pricing.Format(st.PaymentAmount, a.cfg.Catalog.Currency),
	)
	if st.ProcessingPayment {
		lines = append(lines, "A payment is in progress. Finish or cancel it on the checkout page.")
	} else {
		lines = append(lines, "Choose a payment method, then press Pay.")
	}
	return a.sendWithKeyboard(chatID, strings.Join(lines, "\n"), a.paymentRows(s))
}

func (a *App) handlePaymentCallback(ctx context.Context, chatID int64, s *session, data string) error {
	switch {
	case strings.HasPrefix(data, "pm:"):
		m, err := models.ParsePaymentMethod(strings.TrimPrefix(data, "pm:"))
		if err != nil {
			return nil
		}
		if err := s.wiz.SelectMethod(m); err != nil {
			return a.paymentError(chatID, s, err)
		}
		return a.showPayment(chatID, s, "Payment method: "+m.Title())

	case data == "pay":
		d := s.wiz.Form().Draft()
		prefill := models.Prefill{Name: d.TeamRepName, Email: d.EmailID, Contact: d.PhoneNo}
		notify := a.notifier(chatID)
		var url string
		a.background(ctx, chatID, s, func(ctx context.Context) error {
			var err error
			url, err = s.wiz.Pay(ctx, prefill, notify)
			return err
		}, func(err error) error {
			if err != nil {
				return a.paymentError(chatID, s, err)
			}
			return a.SendText(chatID, "Open the checkout to pay "+
				pricing.Format(s.wiz.State().PaymentAmount, a.cfg.Catalog.Currency)+":\n"+url+
				"\n\nThe bot confirms the registration as soon as the payment is verified.")
		})
		return nil

	case data == "back":
		if err := s.wiz.GoBack(); err != nil {
			return a.paymentError(chatID, s, err)
		}
		return a.showSummary(chatID, s)
	}
	return a.SendText(chatID, "That button is no longer active.")
}

func (a *App) paymentError(chatID int64, s *session, err error) error {
	switch {
	case errors.Is(err, wizard.ErrMethodRequired):
		return a.showPayment(chatID, s, "⚠️ Choose a payment method first.")
	case errors.Is(err, wizard.ErrPaymentInFlight):
		return a.showPayment(chatID, s, "")
	default:
		return a.showPayment(chatID, s, "⚠️ "+err.Error())
	}
}

// handleOutcome settles a checkout reported by the payment widget.
func (a *App) handleOutcome(ctx context.Context, ev outcomeEvent) error {
	entry := log.WithFields(log.Fields{"chat_id": ev.chatID, "order_id": ev.outcome.OrderID, "dismissed": ev.outcome.Dismissed})
	s := a.session(ev.chatID)
	if s == nil {
		entry.Warn("payment outcome for an expired session")
		if ev.outcome.Dismissed {
			return nil
		}
		return a.SendText(ev.chatID, "Your session expired before the payment could be confirmed. "+
			"If money was debited, contact support quoting order "+ev.outcome.OrderID+".")
	}

	if s.busy {
		s.waiting = append(s.waiting, ev.outcome)
		return nil
	}
	a.settle(ctx, ev.chatID, s, ev.outcome)
	return nil
}

// settle verifies a reported outcome off the loop.
func (a *App) settle(ctx context.Context, chatID int64, s *session, o payments.Outcome) {
	a.background(ctx, chatID, s, func(ctx context.Context) error {
		return s.wiz.HandleOutcome(ctx, o)
	}, func(err error) error {
		return a.settled(chatID, s, o, err)
	})
}

func (a *App) settled(chatID int64, s *session, o payments.Outcome, err error) error {
	switch {
	case errors.Is(err, wizard.ErrStaleOutcome):
		if o.Dismissed {
			return nil
		}
		return a.SendText(chatID, "A payment for an abandoned checkout was reported. "+
			"If money was debited, contact support quoting order "+o.OrderID+".")
	case errors.Is(err, apperr.ErrVerification):
		return a.sendWithKeyboard(chatID, "❗ "+err.Error(), a.paymentRows(s))
	case err != nil:
		return a.paymentError(chatID, s, err)
	case o.Dismissed:
		return a.showPayment(chatID, s, "Payment was cancelled. You can pay again whenever you are ready.")
	default:
		return a.showConfirmation(chatID, s)
	}
}

func (a *App) showConfirmation(chatID int64, s *session) error {
	st := s.wiz.State()
	return a.SendText(chatID, "🎉 Registration confirmed!\nRegistration ID: "+st.RegistrationID+
		"\nTeam: "+s.wiz.Form().Draft().TeamName+
		"\nKeep this ID for any correspondence. Send /start to register another team.")
}
