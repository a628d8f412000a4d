// Package registration holds the stage-one registration form: the draft being
// edited, the eligibility and price derived from it, and the single create
// call that turns it into a backend registration.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
	"pjc-registration/internal/pricing"
)

var (
	ErrSubmitting       = errors.New("registration is already being submitted")
	ErrUnknownField     = errors.New("unknown field")
	ErrNotEligible      = errors.New("category is not open for this date of birth")
	ErrDateOfBirthFirst = errors.New("enter the date of birth before choosing categories")
)

// Creator persists a validated draft. Implemented by the backend API client.
type Creator interface {
	CreateRegistration(ctx context.Context, d models.Draft) (models.Receipt, error)
}

// Form is not safe for concurrent use; the wizard owning it serializes calls.
type Form struct {
	draft     models.Draft
	validator *Validator
	pricing   pricing.Calculator
	creator   Creator

	eligible   []string
	errors     apperr.FieldErrors
	submitting bool
}

func NewForm(v *Validator, calc pricing.Calculator, creator Creator) *Form {
	return &Form{validator: v, pricing: calc, creator: creator}
}

// Draft returns a copy of the current draft.
func (f *Form) Draft() models.Draft { return f.draft.Clone() }

// Eligible returns the categories open for the current date of birth.
func (f *Form) Eligible() []string { return append([]string(nil), f.eligible...) }

// Price is the advisory fee for the current selection. The amount actually
// paid is the one returned by the backend.
func (f *Form) Price() int64 { return f.pricing.Price(f.draft.Categories) }

// Errors returns the field errors of the last validation.
func (f *Form) Errors() apperr.FieldErrors { return f.errors }

func (f *Form) Submitting() bool { return f.submitting }

// SetField sets one of the text fields of the draft.
func (f *Form) SetField(field, value string) error {
	var p *string
	switch field {
	case FieldTeamRepName:
		p = &f.draft.TeamRepName
	case FieldEmailID:
		p = &f.draft.EmailID
	case FieldPhoneNo:
		p = &f.draft.PhoneNo
	case FieldGender:
		p = &f.draft.Gender
	case FieldCity:
		p = &f.draft.City
	case FieldTeamName:
		p = &f.draft.TeamName
	case FieldAcademyName:
		p = &f.draft.AcademyName
	case FieldAcademyLocation:
		p = &f.draft.AcademyLocation
	case FieldCoachName:
		p = &f.draft.CoachName
	case FieldCoachMobile:
		p = &f.draft.CoachMobile
	case FieldCoachEmail:
		p = &f.draft.CoachEmail
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	*p = value
	delete(f.errors, field)
	return nil
}

// SetDateOfBirth recomputes the eligible set and drops any selected category
// that is no longer in it. The dropped labels are returned.
func (f *Form) SetDateOfBirth(dob time.Time) []string {
	f.draft.DateOfBirth = dob
	f.eligible = f.validator.Resolver().EligibleCategories(dob)
	kept, dropped := lo.FilterReject(f.draft.Categories, func(c string, _ int) bool {
		return lo.Contains(f.eligible, c)
	})
	f.draft.Categories = kept
	delete(f.errors, FieldDateOfBirth)
	if len(dropped) > 0 {
		log.WithFields(log.Fields{"dropped": dropped, "eligible": f.eligible}).Debug("pruned stale categories")
	}
	return dropped
}

// ToggleCategory selects label, or deselects it when already selected.
// It returns whether label is selected afterwards.
func (f *Form) ToggleCategory(label string) (bool, error) {
	if lo.Contains(f.draft.Categories, label) {
		f.draft.Categories = lo.Without(f.draft.Categories, label)
		return false, nil
	}
	if f.draft.DateOfBirth.IsZero() {
		return false, ErrDateOfBirthFirst
	}
	if !f.validator.Resolver().IsEligible(f.draft.DateOfBirth, label) {
		return false, fmt.Errorf("%w: %s", ErrNotEligible, label)
	}
	// keep selection in eligibility order
	f.draft.Categories = lo.Filter(f.eligible, func(c string, _ int) bool {
		return c == label || lo.Contains(f.draft.Categories, c)
	})
	delete(f.errors, FieldCategories)
	return true, nil
}

func (f *Form) SetAcknowledgement(field string, accepted bool) error {
	switch field {
	case FieldRulesAccepted:
		f.draft.RulesAccepted = accepted
	case FieldTermsAccepted:
		f.draft.TermsAccepted = accepted
	case FieldAgreeTerms:
		f.draft.AgreeTerms = accepted
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	delete(f.errors, field)
	return nil
}

// Validate runs every rule and records the field errors.
func (f *Form) Validate() error {
	f.errors = f.validator.Validate(f.draft)
	if len(f.errors) > 0 {
		return apperr.Validation(f.errors)
	}
	return nil
}

// Submit validates the draft and, when it passes, issues exactly one create
// call. Failures leave the draft untouched so the user can retry.
func (f *Form) Submit(ctx context.Context) (models.Receipt, error) {
	if f.submitting {
		return models.Receipt{}, ErrSubmitting
	}
	if err := f.Validate(); err != nil {
		log.WithField("fields", f.errors.Fields()).Debug("registration blocked by validation")
		return models.Receipt{}, err
	}

	f.submitting = true
	defer func() { f.submitting = false }()

	advisory := f.Price()
	receipt, err := f.creator.CreateRegistration(ctx, Normalize(f.draft))
	if err != nil {
		log.WithError(err).WithField("kind", apperr.KindOf(err)).Warn("create registration failed")
		return models.Receipt{}, err
	}
	fields := log.Fields{"registration_id": receipt.RegistrationID, "amount": receipt.PaymentAmount}
	if receipt.PaymentAmount != advisory {
		fields["advisory"] = advisory
		log.WithFields(fields).Warn("server amount differs from local price; using server amount")
	} else {
		log.WithFields(fields).Info("registration created")
	}
	return receipt, nil
}
