package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pjc-registration/internal/config"
	"pjc-registration/internal/models"
	"pjc-registration/internal/util"
)

const (
	SheetRegistrations = "Registrations"
	SheetOrders        = "Orders"
)

var registrationHeader = []interface{}{
	"registration_id", "created_at", "team_rep_name", "email", "phone", "gender", "city",
	"date_of_birth", "categories", "team_name", "academy_name", "academy_location",
	"coach_name", "coach_mobile", "coach_email", "rules_accepted", "terms_accepted",
	"declaration", "payment_amount", "pay_status", "order_id", "payment_id",
}

var orderHeader = []interface{}{"order_id", "registration_id", "amount", "currency", "method", "created_at"}

// Registrations columns T..V hold pay_status, order_id and payment_id.
const (
	colPayStatus = "T"
	colOrderID   = "U"
	colPayment   = "V"
)

const categorySep = "; "

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func registrationRow(r models.Registration) []interface{} {
	d := r.Draft
	dob := ""
	if !d.DateOfBirth.IsZero() {
		dob = d.DateOfBirth.Format(config.DateLayout)
	}
	return []interface{}{
		r.ID, r.CreatedAt, d.TeamRepName, d.EmailID, d.PhoneNo, d.Gender, d.City,
		dob, strings.Join(d.Categories, categorySep), d.TeamName, d.AcademyName, d.AcademyLocation,
		d.CoachName, d.CoachMobile, d.CoachEmail, yesNo(d.RulesAccepted), yesNo(d.TermsAccepted),
		yesNo(d.AgreeTerms), r.PaymentAmount, string(r.PayStatus), r.OrderID, r.PaymentID,
	}
}

func parseRegistration(row []interface{}) models.Registration {
	d := models.Draft{
		TeamRepName:     get(row, 2),
		EmailID:         get(row, 3),
		PhoneNo:         get(row, 4),
		Gender:          get(row, 5),
		City:            get(row, 6),
		TeamName:        get(row, 9),
		AcademyName:     get(row, 10),
		AcademyLocation: get(row, 11),
		CoachName:       get(row, 12),
		CoachMobile:     get(row, 13),
		CoachEmail:      get(row, 14),
		RulesAccepted:   util.NormalizeBool(get(row, 15)),
		TermsAccepted:   util.NormalizeBool(get(row, 16)),
		AgreeTerms:      util.NormalizeBool(get(row, 17)),
	}
	if dob, err := config.ParseDate(get(row, 7)); err == nil {
		d.DateOfBirth = dob
	}
	if cats := strings.TrimSpace(get(row, 8)); cats != "" {
		for _, c := range strings.Split(cats, strings.TrimSpace(categorySep)) {
			if c = strings.TrimSpace(c); c != "" {
				d.Categories = append(d.Categories, c)
			}
		}
	}
	amount, _ := strconv.ParseInt(strings.TrimSpace(get(row, 18)), 10, 64)
	status := models.PayStatusUnpaid
	if util.NormalizeBool(get(row, 19)) {
		status = models.PayStatusPaid
	}
	return models.Registration{
		ID:            get(row, 0),
		CreatedAt:     get(row, 1),
		Draft:         d,
		PaymentAmount: amount,
		PayStatus:     status,
		OrderID:       get(row, 20),
		PaymentID:     get(row, 21),
	}
}

// findRow returns the 1-based sheet row whose first cell is id, or 0.
func findRow(values [][]interface{}, id string) int {
	// header row at index 0
	for i := 1; i < len(values); i++ {
		if get(values[i], 0) == id {
			return i + 1
		}
	}
	return 0
}

func (c *Client) CreateRegistration(ctx context.Context, r models.Registration) error {
	return c.appendRow(ctx, SheetRegistrations, registrationRow(r))
}

func (c *Client) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	values, err := c.readAll(ctx, SheetRegistrations)
	if err != nil {
		return nil, err
	}
	n := findRow(values, id)
	if n == 0 {
		return nil, nil
	}
	reg := parseRegistration(values[n-1])
	return &reg, nil
}

func (c *Client) SaveOrder(ctx context.Context, o models.StoredOrder) error {
	err := c.appendRow(ctx, SheetOrders, []interface{}{
		o.ID, o.RegistrationID, o.Amount, o.Currency, string(o.Method), o.CreatedAt,
	})
	if err != nil {
		return err
	}
	values, err := c.readAll(ctx, SheetRegistrations)
	if err != nil {
		return err
	}
	n := findRow(values, o.RegistrationID)
	if n == 0 {
		return fmt.Errorf("registration %s not found", o.RegistrationID)
	}
	return c.updateRange(ctx, SheetRegistrations, fmt.Sprintf("%s%d", colOrderID, n), []interface{}{o.ID})
}

func (c *Client) GetOrder(ctx context.Context, id string) (*models.StoredOrder, error) {
	values, err := c.readAll(ctx, SheetOrders)
	if err != nil {
		return nil, err
	}
	n := findRow(values, id)
	if n == 0 {
		return nil, nil
	}
	row := values[n-1]
	amount, _ := strconv.ParseInt(strings.TrimSpace(get(row, 2)), 10, 64)
	return &models.StoredOrder{
		Order:          models.Order{ID: get(row, 0), Amount: amount, Currency: get(row, 3)},
		RegistrationID: get(row, 1),
		Method:         models.PaymentMethod(get(row, 4)),
		CreatedAt:      get(row, 5),
	}, nil
}

// MarkPaid reads and updates under the client's lock. The sheet has no
// conditional write, so this only holds for a single backend process.
func (c *Client) MarkPaid(ctx context.Context, registrationID, orderID, paymentID string) (bool, error) {
	c.payMu.Lock()
	defer c.payMu.Unlock()

	values, err := c.readAll(ctx, SheetRegistrations)
	if err != nil {
		return false, err
	}
	n := findRow(values, registrationID)
	if n == 0 {
		return false, fmt.Errorf("registration %s not found", registrationID)
	}
	if parseRegistration(values[n-1]).PayStatus == models.PayStatusPaid {
		return false, nil
	}
	a1 := fmt.Sprintf("%s%d:%s%d", colPayStatus, n, colPayment, n)
	err = c.updateRange(ctx, SheetRegistrations, a1, []interface{}{string(models.PayStatusPaid), orderID, paymentID})
	return err == nil, err
}
