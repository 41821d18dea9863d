// Package store is the typed access layer over the four booking tables
// plus the notifier's email log. It holds no business logic; all writes
// are upserts keyed by the external natural id so that webhook
// redelivery converges instead of duplicating rows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"sendconsult/internal/domain"
	"sendconsult/internal/faults"
)

const queryTimeout = 5 * time.Second

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// UpsertPurchase inserts or overwrites a purchase keyed by its checkout
// session id and returns the stored row.
func (s *Postgres) UpsertPurchase(ctx context.Context, p domain.Purchase) (domain.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return domain.Purchase{}, &faults.PersistenceError{Op: "upsert purchase", Err: err}
	}

	const query = `
        INSERT INTO package_purchases (
            id, stripe_session_id, stripe_customer_id, stripe_payment_intent_id,
            booking_option_id, email, name, amount_paid, currency, status,
            sessions_remaining, metadata, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
        ON CONFLICT (stripe_session_id) DO UPDATE SET
            stripe_customer_id = EXCLUDED.stripe_customer_id,
            stripe_payment_intent_id = EXCLUDED.stripe_payment_intent_id,
            booking_option_id = EXCLUDED.booking_option_id,
            email = EXCLUDED.email,
            name = EXCLUDED.name,
            amount_paid = EXCLUDED.amount_paid,
            currency = EXCLUDED.currency,
            status = EXCLUDED.status,
            sessions_remaining = EXCLUDED.sessions_remaining,
            metadata = EXCLUDED.metadata,
            updated_at = now()
        RETURNING id, created_at, updated_at;
    `

	row := s.db.QueryRowContext(ctx, query,
		p.ID, p.StripeSessionID, p.StripeCustomerID, p.StripePaymentIntentID,
		p.BookingOptionID, p.Email, p.Name, p.AmountPaid, p.Currency, string(p.Status),
		p.SessionsRemaining, meta,
	)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Purchase{}, &faults.PersistenceError{Op: "upsert purchase", Err: err}
	}
	return p, nil
}

const purchaseColumns = `
    id, stripe_session_id, stripe_customer_id, stripe_payment_intent_id,
    booking_option_id, email, name, amount_paid, currency, status,
    sessions_remaining, metadata, created_at, updated_at
`

// GetPurchase returns (nil, nil) when no purchase has that id.
func (s *Postgres) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM package_purchases WHERE id = $1;`
	return s.onePurchase(ctx, "get purchase", query, id)
}

// GetPurchaseBySessionID returns (nil, nil) when the payment webhook for
// that session has not landed yet.
func (s *Postgres) GetPurchaseBySessionID(ctx context.Context, sessionID string) (*domain.Purchase, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM package_purchases WHERE stripe_session_id = $1;`
	return s.onePurchase(ctx, "get purchase by session", query, sessionID)
}

// FindLinkablePurchase is the fallback linking path: the most recently
// created paid purchase for the email that still has sessions remaining.
// Returns (nil, nil) when none is eligible.
func (s *Postgres) FindLinkablePurchase(ctx context.Context, email string) (*domain.Purchase, error) {
	const query = `
        SELECT ` + purchaseColumns + `
        FROM package_purchases
        WHERE email = $1 AND status = 'paid' AND sessions_remaining > 0
        ORDER BY created_at DESC
        LIMIT 1;
    `
	return s.onePurchase(ctx, "find linkable purchase", query, email)
}

// ListPaidPurchasesByEmail returns paid purchases newest first.
func (s *Postgres) ListPaidPurchasesByEmail(ctx context.Context, email string) ([]domain.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT ` + purchaseColumns + `
        FROM package_purchases
        WHERE email = $1 AND status = 'paid'
        ORDER BY created_at DESC;
    `
	rows, err := s.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, &faults.PersistenceError{Op: "list purchases", Err: err}
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, &faults.PersistenceError{Op: "list purchases", Err: err}
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &faults.PersistenceError{Op: "list purchases", Err: err}
	}
	return purchases, nil
}

// SetSessionsRemaining updates the entitlement counter, floored at zero.
func (s *Postgres) SetSessionsRemaining(ctx context.Context, purchaseID string, remaining int) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        UPDATE package_purchases
        SET sessions_remaining = GREATEST(0, $2), updated_at = now()
        WHERE id = $1;
    `
	if _, err := s.db.ExecContext(ctx, query, purchaseID, remaining); err != nil {
		return &faults.PersistenceError{Op: "set sessions remaining", Err: err}
	}
	return nil
}

// UpsertBooking inserts or overwrites a booking keyed by its invitee URI.
func (s *Postgres) UpsertBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}

	const query = `
        INSERT INTO bookings (
            id, calendly_invitee_uri, event_type_uri, email, name,
            starts_at, ends_at, audience, notes, status, raw, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
        ON CONFLICT (calendly_invitee_uri) DO UPDATE SET
            event_type_uri = EXCLUDED.event_type_uri,
            email = EXCLUDED.email,
            name = EXCLUDED.name,
            starts_at = EXCLUDED.starts_at,
            ends_at = EXCLUDED.ends_at,
            audience = EXCLUDED.audience,
            notes = EXCLUDED.notes,
            status = EXCLUDED.status,
            raw = EXCLUDED.raw,
            updated_at = now()
        RETURNING id, created_at, updated_at;
    `

	row := s.db.QueryRowContext(ctx, query,
		b.ID, b.CalendlyInviteeURI, b.EventTypeURI, b.Email, b.Name,
		b.StartsAt, b.EndsAt, string(b.Audience), b.Notes, string(b.Status), []byte(b.Raw),
	)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return domain.Booking{}, &faults.PersistenceError{Op: "upsert booking", Err: err}
	}
	return b, nil
}

// GetPackageSessionByInviteeURI is the idempotency guard for linking:
// returns (nil, nil) when no package session exists for the invitee.
func (s *Postgres) GetPackageSessionByInviteeURI(ctx context.Context, inviteeURI string) (*domain.PackageSession, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT id, package_purchase_id, booking_id, calendly_invitee_uri, session_date, status, created_at
        FROM package_sessions
        WHERE calendly_invitee_uri = $1;
    `
	var ps domain.PackageSession
	var status string
	err := s.db.QueryRowContext(ctx, query, inviteeURI).Scan(
		&ps.ID, &ps.PackagePurchaseID, &ps.BookingID, &ps.CalendlyInviteeURI,
		&ps.SessionDate, &status, &ps.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &faults.PersistenceError{Op: "get package session", Err: err}
	}
	ps.Status = domain.SessionStatus(status)
	return &ps, nil
}

func (s *Postgres) CreatePackageSession(ctx context.Context, ps domain.PackageSession) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if ps.ID == "" {
		ps.ID = uuid.NewString()
	}

	const query = `
        INSERT INTO package_sessions (
            id, package_purchase_id, booking_id, calendly_invitee_uri, session_date, status, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, now())
        ON CONFLICT (calendly_invitee_uri) DO NOTHING;
    `
	if _, err := s.db.ExecContext(ctx, query,
		ps.ID, ps.PackagePurchaseID, ps.BookingID, ps.CalendlyInviteeURI,
		ps.SessionDate, string(ps.Status),
	); err != nil {
		return &faults.PersistenceError{Op: "create package session", Err: err}
	}
	return nil
}

// SetPackageSessionStatus flips the session linked to an invitee, if any.
func (s *Postgres) SetPackageSessionStatus(ctx context.Context, inviteeURI string, status domain.SessionStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `UPDATE package_sessions SET status = $2 WHERE calendly_invitee_uri = $1;`
	if _, err := s.db.ExecContext(ctx, query, inviteeURI, string(status)); err != nil {
		return &faults.PersistenceError{Op: "set package session status", Err: err}
	}
	return nil
}

// ListPackageSessions returns a purchase's sessions ordered by date.
func (s *Postgres) ListPackageSessions(ctx context.Context, purchaseID string) ([]domain.PackageSession, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        SELECT id, package_purchase_id, booking_id, calendly_invitee_uri, session_date, status, created_at
        FROM package_sessions
        WHERE package_purchase_id = $1
        ORDER BY session_date ASC;
    `
	rows, err := s.db.QueryContext(ctx, query, purchaseID)
	if err != nil {
		return nil, &faults.PersistenceError{Op: "list package sessions", Err: err}
	}
	defer rows.Close()

	var sessions []domain.PackageSession
	for rows.Next() {
		var ps domain.PackageSession
		var status string
		if err := rows.Scan(
			&ps.ID, &ps.PackagePurchaseID, &ps.BookingID, &ps.CalendlyInviteeURI,
			&ps.SessionDate, &status, &ps.CreatedAt,
		); err != nil {
			return nil, &faults.PersistenceError{Op: "list package sessions", Err: err}
		}
		ps.Status = domain.SessionStatus(status)
		sessions = append(sessions, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, &faults.PersistenceError{Op: "list package sessions", Err: err}
	}
	return sessions, nil
}

func (s *Postgres) InsertContact(ctx context.Context, c domain.Contact) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	const query = `
        INSERT INTO contacts (id, name, email, organisation, audience, message, source, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, now());
    `
	if _, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.Organisation, string(c.Audience), c.Message, c.Source,
	); err != nil {
		return &faults.PersistenceError{Op: "insert contact", Err: err}
	}
	return nil
}

// SubscribeNewsletter records an email address, reporting false when it
// was already on the list. Re-subscribing is not an error.
func (s *Postgres) SubscribeNewsletter(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        INSERT INTO newsletter_subscribers (id, email, created_at)
        VALUES ($1, $2, now())
        ON CONFLICT (email) DO NOTHING;
    `
	res, err := s.db.ExecContext(ctx, query, uuid.NewString(), email)
	if err != nil {
		return false, &faults.PersistenceError{Op: "subscribe newsletter", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &faults.PersistenceError{Op: "subscribe newsletter", Err: err}
	}
	return affected > 0, nil
}

func (s *Postgres) SaveEmailLog(ctx context.Context, l domain.EmailLog) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const query = `
        INSERT INTO email_logs (reference_id, recipient_email, subject, status, error_message)
        VALUES ($1, $2, $3, $4, $5);
    `
	if _, err := s.db.ExecContext(ctx, query,
		l.ReferenceID, l.RecipientEmail, l.Subject, string(l.Status), l.ErrorMessage,
	); err != nil {
		return &faults.PersistenceError{Op: "save email log", Err: err}
	}
	return nil
}

func (s *Postgres) onePurchase(ctx context.Context, op, query string, arg any) (*domain.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, query, arg)
	p, err := scanPurchase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &faults.PersistenceError{Op: op, Err: err}
	}
	return &p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row scanner) (domain.Purchase, error) {
	var p domain.Purchase
	var status string
	var meta []byte
	if err := row.Scan(
		&p.ID, &p.StripeSessionID, &p.StripeCustomerID, &p.StripePaymentIntentID,
		&p.BookingOptionID, &p.Email, &p.Name, &p.AmountPaid, &p.Currency, &status,
		&p.SessionsRemaining, &meta, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Purchase{}, err
	}
	p.Status = domain.PurchaseStatus(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.Metadata); err != nil {
			return domain.Purchase{}, err
		}
	}
	return p, nil
}
