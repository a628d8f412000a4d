package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/api"
	"pjc-registration/internal/apperr"
	"pjc-registration/internal/config"
	"pjc-registration/internal/pricing"
	"pjc-registration/internal/registration"
)

type stepKind int

const (
	textStep stepKind = iota
	choiceStep
	dateStep
	categoryStep
	ackStep
)

type step struct {
	field   string
	label   string
	kind    stepKind
	prompt  string
	choices []string
}

const declarationText = "I declare that the details above are correct and that the player's date of birth " +
	"can be verified with an official document on request."

func buildSteps(c config.Catalog) []step {
	return []step{
		{field: registration.FieldTeamRepName, label: "Representative", kind: textStep, prompt: "Full name of the team representative:"},
		{field: registration.FieldEmailID, label: "Email", kind: textStep, prompt: "Email address:"},
		{field: registration.FieldPhoneNo, label: "Phone", kind: textStep, prompt: "10 digit phone number:"},
		{field: registration.FieldGender, label: "Gender", kind: choiceStep, prompt: "Gender:", choices: c.Genders},
		{field: registration.FieldCity, label: "City", kind: choiceStep, prompt: "City:", choices: c.Cities},
		{field: registration.FieldDateOfBirth, label: "Date of birth", kind: dateStep, prompt: "Player's date of birth (YYYY-MM-DD):"},
		{field: registration.FieldCategories, label: "Categories", kind: categoryStep,
			prompt: "Choose the categories to enter (" + pricing.Format(c.UnitFee, c.Currency) + " each), then press Done:"},
		{field: registration.FieldTeamName, label: "Team", kind: textStep, prompt: "Team name:"},
		{field: registration.FieldAcademyName, label: "Academy", kind: textStep, prompt: "Academy name:"},
		{field: registration.FieldAcademyLocation, label: "Academy location", kind: textStep, prompt: "Academy location:"},
		{field: registration.FieldCoachName, label: "Coach", kind: textStep, prompt: "Coach's full name:"},
		{field: registration.FieldCoachMobile, label: "Coach mobile", kind: textStep, prompt: "Coach's 10 digit mobile number:"},
		{field: registration.FieldCoachEmail, label: "Coach email", kind: textStep, prompt: "Coach's email address:"},
		{field: registration.FieldRulesAccepted, label: "Rules", kind: ackStep, prompt: c.RulesText},
		{field: registration.FieldTermsAccepted, label: "Terms", kind: ackStep, prompt: c.TermsText},
		{field: registration.FieldAgreeTerms, label: "Declaration", kind: ackStep, prompt: declarationText},
	}
}

func welcomeText(c config.Catalog) string {
	return fmt.Sprintf("Welcome to the team registration. Open categories: %s. Entry fee: %s per category.",
		strings.Join(lo.Map(c.Categories, func(cat config.Category, _ int) string { return cat.Label }), ", "),
		pricing.Format(c.UnitFee, c.Currency))
}

func (a *App) stepIndex(field string) int {
	for i, st := range a.steps {
		if st.field == field {
			return i
		}
	}
	return -1
}

func fieldError(f *registration.Form, field string) string {
	return apperr.FieldsOf(f.Validate())[field]
}

// prompt asks for the current step, or shows the summary once every step
// has been answered.
func (a *App) prompt(chatID int64, s *session) error {
	if s.step >= len(a.steps) {
		return a.showSummary(chatID, s)
	}
	st := a.steps[s.step]
	switch st.kind {
	case choiceStep:
		buttons := lo.Map(st.choices, func(c string, i int) tgbotapi.InlineKeyboardButton {
			return tgbotapi.NewInlineKeyboardButtonData(c, "c:"+strconv.Itoa(i))
		})
		return a.sendWithKeyboard(chatID, st.prompt, buttonRows(buttons, 3))
	case categoryStep:
		form := s.wiz.Form()
		if len(form.Eligible()) == 0 {
			s.step = a.stepIndex(registration.FieldDateOfBirth)
			return a.SendText(chatID, "Enter the date of birth first.\n"+a.steps[s.step].prompt)
		}
		return a.sendWithKeyboard(chatID, st.prompt, categoryRows(form, a.cfg.Catalog.Currency))
	case ackStep:
		return a.sendWithKeyboard(chatID, st.prompt, [][]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ I accept", "ack")),
		})
	default:
		return a.SendText(chatID, st.prompt)
	}
}

func categoryRows(f *registration.Form, currency string) [][]tgbotapi.InlineKeyboardButton {
	selected := f.Draft().Categories
	buttons := lo.Map(f.Eligible(), func(c string, i int) tgbotapi.InlineKeyboardButton {
		mark := "▫️ "
		if lo.Contains(selected, c) {
			mark = "✅ "
		}
		return tgbotapi.NewInlineKeyboardButtonData(mark+c, "cat:"+strconv.Itoa(i))
	})
	rows := buttonRows(buttons, 1)
	return append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Done (%s)", pricing.Format(f.Price(), currency)), "cat:done"),
	))
}

// advance moves past the current step. An edit started from the summary
// returns to the summary.
func (a *App) advance(chatID int64, s *session) error {
	if s.editing {
		s.editing = false
		s.step = len(a.steps)
	} else {
		s.step++
	}
	return a.prompt(chatID, s)
}

func (a *App) handleFormInput(ctx context.Context, chatID int64, s *session, txt string) error {
	if s.step >= len(a.steps) {
		return a.showSummary(chatID, s)
	}
	st := a.steps[s.step]
	form := s.wiz.Form()

	switch st.kind {
	case textStep:
		if err := form.SetField(st.field, txt); err != nil {
			return err
		}
		if msg := fieldError(form, st.field); msg != "" {
			return a.SendText(chatID, "⚠️ "+msg+"\n"+st.prompt)
		}
		return a.advance(chatID, s)

	case dateStep:
		dob, err := config.ParseDate(txt)
		if err != nil {
			return a.SendText(chatID, "⚠️ use the YYYY-MM-DD format, for example 2015-06-01.\n"+st.prompt)
		}
		dropped := form.SetDateOfBirth(dob)
		if msg := fieldError(form, registration.FieldDateOfBirth); msg != "" {
			return a.SendText(chatID, "⚠️ "+msg+"\n"+st.prompt)
		}
		if len(dropped) > 0 {
			if err := a.SendText(chatID, "Removed categories no longer open for this date of birth: "+strings.Join(dropped, ", ")); err != nil {
				return err
			}
		}
		if s.editing && len(form.Draft().Categories) > 0 {
			return a.advance(chatID, s)
		}
		// the categories step follows; an edit keeps going back to the summary
		s.step = a.stepIndex(registration.FieldCategories)
		return a.prompt(chatID, s)

	default:
		if err := a.SendText(chatID, "Please use the buttons."); err != nil {
			return err
		}
		return a.prompt(chatID, s)
	}
}

func (a *App) handleFormCallback(ctx context.Context, chatID int64, messageID int, s *session, data string) error {
	form := s.wiz.Form()
	var st step
	if s.step < len(a.steps) {
		st = a.steps[s.step]
	}

	switch {
	case data == "submit":
		return a.submit(ctx, chatID, s)

	case strings.HasPrefix(data, "edit:"):
		idx := a.stepIndex(strings.TrimPrefix(data, "edit:"))
		if idx < 0 {
			return nil
		}
		s.step = idx
		s.editing = true
		return a.prompt(chatID, s)

	case strings.HasPrefix(data, "c:") && st.kind == choiceStep:
		i, err := strconv.Atoi(strings.TrimPrefix(data, "c:"))
		if err != nil || i < 0 || i >= len(st.choices) {
			return nil
		}
		if err := form.SetField(st.field, st.choices[i]); err != nil {
			return err
		}
		return a.advance(chatID, s)

	case data == "cat:done" && st.kind == categoryStep:
		if len(form.Draft().Categories) == 0 {
			return a.SendText(chatID, "Select at least one category.")
		}
		return a.advance(chatID, s)

	case strings.HasPrefix(data, "cat:") && st.kind == categoryStep:
		i, err := strconv.Atoi(strings.TrimPrefix(data, "cat:"))
		eligible := form.Eligible()
		if err != nil || i < 0 || i >= len(eligible) {
			return nil
		}
		if _, err := form.ToggleCategory(eligible[i]); err != nil {
			return a.SendText(chatID, "⚠️ "+err.Error())
		}
		if messageID == 0 {
			return a.prompt(chatID, s)
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.NewInlineKeyboardMarkup(categoryRows(form, a.cfg.Catalog.Currency)...))
		_, err = a.bot.Request(edit)
		return err

	case data == "ack" && st.kind == ackStep:
		if err := form.SetAcknowledgement(st.field, true); err != nil {
			return err
		}
		return a.advance(chatID, s)
	}

	log.WithFields(log.Fields{"chat_id": chatID, "data": data, "step": st.field}).Debug("stale button")
	return a.SendText(chatID, "That button is no longer active.")
}

func (a *App) summaryText(f *registration.Form) string {
	d := f.Draft()
	yes := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}
	dob := ""
	if !d.DateOfBirth.IsZero() {
		dob = d.DateOfBirth.Format(config.DateLayout)
	}
	lines := []string{
		"Please check the registration:",
		"Representative: " + d.TeamRepName,
		"Email: " + d.EmailID,
		"Phone: " + d.PhoneNo,
		"Gender: " + d.Gender,
		"City: " + d.City,
		"Date of birth: " + dob,
		"Categories: " + strings.Join(d.Categories, ", "),
		"Team: " + d.TeamName,
		"Academy: " + d.AcademyName + " (" + d.AcademyLocation + ")",
		"Coach: " + d.CoachName + ", " + d.CoachMobile + ", " + d.CoachEmail,
		"Rules accepted: " + yes(d.RulesAccepted),
		"Terms accepted: " + yes(d.TermsAccepted),
		"Declaration: " + yes(d.AgreeTerms),
		"Entry fee: " + pricing.Format(f.Price(), a.cfg.Catalog.Currency),
	}
	return strings.Join(lines, "\n")
}

func (a *App) editButtons(fields []string) [][]tgbotapi.InlineKeyboardButton {
	var buttons []tgbotapi.InlineKeyboardButton
	for _, field := range fields {
		if idx := a.stepIndex(field); idx >= 0 {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("✏️ "+a.steps[idx].label, "edit:"+field))
		}
	}
	return buttonRows(buttons, 2)
}

func (a *App) showSummary(chatID int64, s *session) error {
	s.step = len(a.steps)
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Submit registration", "submit")),
	}
	rows = append(rows, a.editButtons(lo.Map(a.steps, func(st step, _ int) string { return st.field }))...)
	return a.sendWithKeyboard(chatID, a.summaryText(s.wiz.Form()), rows)
}

func (a *App) submit(ctx context.Context, chatID int64, s *session) error {
	a.background(ctx, chatID, s, s.wiz.Submit, func(err error) error {
		return a.submitted(chatID, s, err)
	})
	return nil
}

func (a *App) submitted(chatID int64, s *session, err error) error {
	switch {
	case err == nil:
		return a.showPayment(chatID, s, "✅ Registration saved.")
	case errors.Is(err, apperr.ErrValidation):
		fields := apperr.FieldsOf(err)
		lines := []string{"Please correct the following:"}
		for _, f := range fields.Fields() {
			label := f
			if idx := a.stepIndex(f); idx >= 0 {
				label = a.steps[idx].label
			}
			lines = append(lines, "• "+label+": "+fields[f])
		}
		return a.sendWithKeyboard(chatID, strings.Join(lines, "\n"), a.editButtons(fields.Fields()))
	case errors.Is(err, registration.ErrSubmitting):
		return a.SendText(chatID, "Your registration is being submitted, please wait.")
	case api.IsTimeout(err):
		return a.sendWithKeyboard(chatID, "⚠️ The registration server did not answer in time. Press Try again to resend.", retryRows())
	case apperr.Retryable(err):
		// the draft is kept
		return a.sendWithKeyboard(chatID, "⚠️ "+err.Error(), retryRows())
	default:
		return a.sendWithKeyboard(chatID, "⚠️ "+err.Error(), a.editButtons(lo.Map(a.steps, func(st step, _ int) string { return st.field })))
	}
}

func retryRows() [][]tgbotapi.InlineKeyboardButton {
	return [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔁 Try again", "submit")),
	}
}
