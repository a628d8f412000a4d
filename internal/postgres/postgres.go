// Package postgres is the sqlx-backed registration store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/config"
	"pjc-registration/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
	id               TEXT PRIMARY KEY,
	created_at       TEXT NOT NULL,
	team_rep_name    TEXT NOT NULL,
	email            TEXT NOT NULL,
	phone            TEXT NOT NULL,
	gender           TEXT NOT NULL,
	city             TEXT NOT NULL,
	date_of_birth    DATE NOT NULL,
	categories       TEXT[] NOT NULL,
	team_name        TEXT NOT NULL,
	academy_name     TEXT NOT NULL,
	academy_location TEXT NOT NULL,
	coach_name       TEXT NOT NULL,
	coach_mobile     TEXT NOT NULL,
	coach_email      TEXT NOT NULL,
	rules_accepted   BOOLEAN NOT NULL,
	terms_accepted   BOOLEAN NOT NULL,
	declaration      BOOLEAN NOT NULL,
	payment_amount   BIGINT NOT NULL,
	pay_status       TEXT NOT NULL DEFAULT 'unpaid',
	order_id         TEXT NOT NULL DEFAULT '',
	payment_id       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL REFERENCES registrations(id),
	amount          BIGINT NOT NULL,
	currency        TEXT NOT NULL,
	method          TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
`

func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	log.Infof("connected to PostgreSQL %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	return db, nil
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type registrationRow struct {
	ID              string         `db:"id"`
	CreatedAt       string         `db:"created_at"`
	TeamRepName     string         `db:"team_rep_name"`
	Email           string         `db:"email"`
	Phone           string         `db:"phone"`
	Gender          string         `db:"gender"`
	City            string         `db:"city"`
	DateOfBirth     time.Time      `db:"date_of_birth"`
	Categories      pq.StringArray `db:"categories"`
	TeamName        string         `db:"team_name"`
	AcademyName     string         `db:"academy_name"`
	AcademyLocation string         `db:"academy_location"`
	CoachName       string         `db:"coach_name"`
	CoachMobile     string         `db:"coach_mobile"`
	CoachEmail      string         `db:"coach_email"`
	RulesAccepted   bool           `db:"rules_accepted"`
	TermsAccepted   bool           `db:"terms_accepted"`
	Declaration     bool           `db:"declaration"`
	PaymentAmount   int64          `db:"payment_amount"`
	PayStatus       string         `db:"pay_status"`
	OrderID         string         `db:"order_id"`
	PaymentID       string         `db:"payment_id"`
}

func toRow(r models.Registration) registrationRow {
	d := r.Draft
	return registrationRow{
		ID:              r.ID,
		CreatedAt:       r.CreatedAt,
		TeamRepName:     d.TeamRepName,
		Email:           d.EmailID,
		Phone:           d.PhoneNo,
		Gender:          d.Gender,
		City:            d.City,
		DateOfBirth:     d.DateOfBirth.UTC(),
		Categories:      pq.StringArray(append([]string(nil), d.Categories...)),
		TeamName:        d.TeamName,
		AcademyName:     d.AcademyName,
		AcademyLocation: d.AcademyLocation,
		CoachName:       d.CoachName,
		CoachMobile:     d.CoachMobile,
		CoachEmail:      d.CoachEmail,
		RulesAccepted:   d.RulesAccepted,
		TermsAccepted:   d.TermsAccepted,
		Declaration:     d.AgreeTerms,
		PaymentAmount:   r.PaymentAmount,
		PayStatus:       string(r.PayStatus),
		OrderID:         r.OrderID,
		PaymentID:       r.PaymentID,
	}
}

func (row registrationRow) model() models.Registration {
	dob := row.DateOfBirth
	if !dob.IsZero() {
		dob = time.Date(dob.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)
	}
	return models.Registration{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		Draft: models.Draft{
			TeamRepName:     row.TeamRepName,
			EmailID:         row.Email,
			PhoneNo:         row.Phone,
			Gender:          row.Gender,
			City:            row.City,
			DateOfBirth:     dob,
			Categories:      []string(row.Categories),
			TeamName:        row.TeamName,
			AcademyName:     row.AcademyName,
			AcademyLocation: row.AcademyLocation,
			CoachName:       row.CoachName,
			CoachMobile:     row.CoachMobile,
			CoachEmail:      row.CoachEmail,
			RulesAccepted:   row.RulesAccepted,
			TermsAccepted:   row.TermsAccepted,
			AgreeTerms:      row.Declaration,
		},
		PaymentAmount: row.PaymentAmount,
		PayStatus:     models.PayStatus(row.PayStatus),
		OrderID:       row.OrderID,
		PaymentID:     row.PaymentID,
	}
}

func (s *Store) CreateRegistration(ctx context.Context, r models.Registration) error {
	query := `
		INSERT INTO registrations (
			id, created_at, team_rep_name, email, phone, gender, city, date_of_birth,
			categories, team_name, academy_name, academy_location, coach_name,
			coach_mobile, coach_email, rules_accepted, terms_accepted, declaration,
			payment_amount, pay_status, order_id, payment_id
		) VALUES (
			:id, :created_at, :team_rep_name, :email, :phone, :gender, :city, :date_of_birth,
			:categories, :team_name, :academy_name, :academy_location, :coach_name,
			:coach_mobile, :coach_email, :rules_accepted, :terms_accepted, :declaration,
			:payment_amount, :pay_status, :order_id, :payment_id
		)
	`
	_, err := s.db.NamedExecContext(ctx, query, toRow(r))
	return err
}

func (s *Store) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	var row registrationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM registrations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	reg := row.model()
	return &reg, nil
}

type orderRow struct {
	ID             string `db:"id"`
	RegistrationID string `db:"registration_id"`
	Amount         int64  `db:"amount"`
	Currency       string `db:"currency"`
	Method         string `db:"method"`
	CreatedAt      string `db:"created_at"`
}

func (s *Store) SaveOrder(ctx context.Context, o models.StoredOrder) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO orders (id, registration_id, amount, currency, method, created_at)
		VALUES (:id, :registration_id, :amount, :currency, :method, :created_at)
	`, orderRow{
		ID:             o.ID,
		RegistrationID: o.RegistrationID,
		Amount:         o.Amount,
		Currency:       o.Currency,
		Method:         string(o.Method),
		CreatedAt:      o.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE registrations SET order_id = $1 WHERE id = $2`, o.ID, o.RegistrationID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.StoredOrder, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.StoredOrder{
		Order:          models.Order{ID: row.ID, Amount: row.Amount, Currency: row.Currency},
		RegistrationID: row.RegistrationID,
		Method:         models.PaymentMethod(row.Method),
		CreatedAt:      row.CreatedAt,
	}, nil
}

func (s *Store) MarkPaid(ctx context.Context, registrationID, orderID, paymentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registrations
		SET pay_status = $1, order_id = $2, payment_id = $3
		WHERE id = $4 AND pay_status <> $1
	`, string(models.PayStatusPaid), orderID, paymentID, registrationID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
