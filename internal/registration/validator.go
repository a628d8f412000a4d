package registration

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/config"
	"pjc-registration/internal/eligibility"
	"pjc-registration/internal/models"
)

// Draft field names, as sent on the wire and used as keys in FieldErrors.
const (
	FieldTeamRepName     = "teamRepName"
	FieldEmailID         = "emailId"
	FieldPhoneNo         = "phoneNo"
	FieldGender          = "gender"
	FieldCity            = "city"
	FieldDateOfBirth     = "dateOfBirth"
	FieldCategories      = "categories"
	FieldTeamName        = "teamName"
	FieldAcademyName     = "academyName"
	FieldAcademyLocation = "academyLocation"
	FieldCoachName       = "coachName"
	FieldCoachMobile     = "coachMobile"
	FieldCoachEmail      = "coachEmail"
	FieldRulesAccepted   = "rulesAccepted"
	FieldTermsAccepted   = "termsAccepted"
	FieldAgreeTerms      = "agreeTerms"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Validator applies the registration rules to a draft. The backend runs the
// same rules before accepting a registration.
type Validator struct {
	catalog  config.Catalog
	resolver *eligibility.Resolver
	now      func() time.Time
	v        *validator.Validate
}

func NewValidator(catalog config.Catalog, resolver *eligibility.Resolver, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "gender", oneOf(catalog.Genders))
	mustRegister(v, "city", oneOf(catalog.Cities))

	return &Validator{catalog: catalog, resolver: resolver, now: now, v: v}
}

// mustRegister panics when a rule cannot be registered, like template.Must.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q rule: %v", tag, err))
	}
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return lo.Contains(allowed, fl.Field().String())
	}
}

func (v *Validator) Resolver() *eligibility.Resolver { return v.resolver }

// Validate returns every field error of d, or nil when d can be submitted.
func (v *Validator) Validate(d models.Draft) apperr.FieldErrors {
	d = Normalize(d)
	errs := apperr.FieldErrors{}

	// required fields and patterns
	if err := v.v.Struct(d); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs.Add(fe.Field(), message(fe))
			}
		} else {
			errs.Add("draft", err.Error())
		}
	}

	// date of birth and the eligible set it implies
	var eligible []string
	switch {
	case d.DateOfBirth.IsZero():
		errs.Add(FieldDateOfBirth, "date of birth is required")
	case eligibility.Normalize(d.DateOfBirth).Before(v.catalog.DOBEarliest):
		errs.Add(FieldDateOfBirth, "date of birth must be on or after "+v.catalog.DOBEarliest.Format(config.DateLayout))
	case eligibility.Normalize(d.DateOfBirth).After(eligibility.Normalize(v.now())):
		errs.Add(FieldDateOfBirth, "date of birth cannot be in the future")
	default:
		eligible = v.resolver.EligibleCategories(d.DateOfBirth)
		if len(eligible) == 0 {
			errs.Add(FieldDateOfBirth, "no eligible category for this date of birth")
		}
	}

	// categories against the eligible set
	if len(d.Categories) == 0 {
		errs.Add(FieldCategories, "select at least one category")
	} else if stale, _ := lo.Difference(d.Categories, eligible); len(stale) > 0 {
		errs.Add(FieldCategories, fmt.Sprintf("not open for this date of birth: %s", strings.Join(stale, ", ")))
	}

	if !d.RulesAccepted {
		errs.Add(FieldRulesAccepted, "the tournament rules must be accepted")
	}
	if !d.TermsAccepted {
		errs.Add(FieldTermsAccepted, "the terms and conditions must be accepted")
	}
	if !d.AgreeTerms {
		errs.Add(FieldAgreeTerms, "the declaration must be confirmed")
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "phone":
		return "enter a 10 digit phone number"
	case "gender":
		return "choose one of the listed genders"
	case "city":
		return "choose one of the listed cities"
	}
	return "invalid value"
}

// Normalize trims the text fields of d and de-duplicates its categories.
func Normalize(d models.Draft) models.Draft {
	out := d.Clone()
	for _, p := range []*string{
		&out.TeamRepName, &out.EmailID, &out.PhoneNo, &out.Gender, &out.City,
		&out.TeamName, &out.AcademyName, &out.AcademyLocation,
		&out.CoachName, &out.CoachMobile, &out.CoachEmail,
	} {
		*p = strings.TrimSpace(*p)
	}
	out.Categories = lo.Uniq(lo.Compact(out.Categories))
	if !out.DateOfBirth.IsZero() {
		out.DateOfBirth = eligibility.Normalize(out.DateOfBirth)
	}
	return out
}
