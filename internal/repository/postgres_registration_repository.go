package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PostgresRegistrationRepository implements RegistrationRepository using pgxpool
type PostgresRegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistrationRepository creates a new PostgresRegistrationRepository
func NewPostgresRegistrationRepository(pool *pgxpool.Pool) *PostgresRegistrationRepository {
	return &PostgresRegistrationRepository{pool: pool}
}

const registrationColumns = `
	id, event_id, user_id, tier_name, quantity, total_amount_cents, status,
	payment_reference, payment_proof, rejection_reason, reviewed_by,
	verified_at, rejected_at, cancelled_at, created_at, updated_at
`

// Reserve atomically reserves seats and inserts the pending registration.
// Everything runs in one transaction so a capacity failure rolls back the
// tier decrement.
func (r *PostgresRegistrationRepository) Reserve(ctx context.Context, reg *domain.Registration) (*ReserveResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("registration_id", reg.ID),
		attribute.String("event_id", reg.EventID),
		attribute.String("tier_name", reg.TierName),
		attribute.Int("quantity", reg.Quantity),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin reserve transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Duplicate payment reference check. The unique index on
	// payment_reference catches the race between two identical submissions;
	// this read gives the common case a clean error without burning the
	// transaction on a constraint violation.
	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM registrations WHERE payment_reference = $1)",
		reg.PaymentReference,
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to check payment reference: %w", err)
	}
	if exists {
		span.SetStatus(codes.Error, "duplicate payment reference")
		return nil, domain.ErrDuplicateReference
	}

	// Lock the event row so concurrent reserves serialize the derived
	// capacity sum below.
	var capacity int
	err = tx.QueryRow(ctx,
		"SELECT capacity FROM events WHERE id = $1 FOR UPDATE",
		reg.EventID,
	).Scan(&capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "event not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}

	// Conditional tier decrement. Zero rows means the tier is missing or
	// short on seats; a diagnostic read tells which.
	var unitPriceCents int64
	var remaining int
	err = tx.QueryRow(ctx, `
		UPDATE ticket_tiers SET
			quantity_available = quantity_available - $3,
			version = version + 1
		WHERE event_id = $1 AND name = $2 AND quantity_available >= $3
		RETURNING unit_price_cents, quantity_available
	`, reg.EventID, reg.TierName, reg.Quantity).Scan(&unitPriceCents, &remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var available int
			diagErr := tx.QueryRow(ctx,
				"SELECT quantity_available FROM ticket_tiers WHERE event_id = $1 AND name = $2",
				reg.EventID, reg.TierName,
			).Scan(&available)
			if diagErr != nil {
				if errors.Is(diagErr, pgx.ErrNoRows) {
					span.SetStatus(codes.Error, "tier not found")
					return nil, domain.ErrTierNotFound
				}
				span.RecordError(diagErr)
				span.SetStatus(codes.Error, diagErr.Error())
				return nil, fmt.Errorf("failed to check tier availability: %w", diagErr)
			}
			span.SetStatus(codes.Error, "insufficient tier availability")
			return nil, &domain.CapacityError{Remaining: available}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decrement tier availability: %w", err)
	}

	// Event-wide admission check over registrations that still hold
	// inventory. The count is derived, never an independently mutated
	// aggregate.
	var held int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM registrations
		WHERE event_id = $1 AND status IN ('pending', 'verified')
	`, reg.EventID).Scan(&held)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to sum held registrations: %w", err)
	}
	if held+reg.Quantity > capacity {
		eventRemaining := capacity - held
		if eventRemaining < 0 {
			eventRemaining = 0
		}
		span.SetStatus(codes.Error, "event capacity exceeded")
		return nil, &domain.CapacityError{Remaining: eventRemaining}
	}

	reg.TotalAmountCents = unitPriceCents * int64(reg.Quantity)

	_, err = tx.Exec(ctx, `
		INSERT INTO registrations (
			id, event_id, user_id, tier_name, quantity, total_amount_cents,
			status, payment_reference, payment_proof, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		reg.ID,
		reg.EventID,
		reg.UserID,
		reg.TierName,
		reg.Quantity,
		reg.TotalAmountCents,
		reg.Status.String(),
		reg.PaymentReference,
		nullString(reg.PaymentProof),
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "duplicate payment reference")
			return nil, domain.ErrDuplicateReference
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to insert registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit reserve transaction: %w", err)
	}

	span.SetAttributes(attribute.Int("remaining", remaining))
	span.SetStatus(codes.Ok, "")
	return &ReserveResult{
		TotalAmountCents: reg.TotalAmountCents,
		Remaining:        remaining,
	}, nil
}

// Approve transitions pending -> verified, mints tickets and credits the
// referrer, all in one transaction. No inventory mutation: the seats were
// already held at reservation time.
func (r *PostgresRegistrationRepository) Approve(ctx context.Context, registrationID, adminID string) (*ApproveResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.approve")
	defer span.End()

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("admin_id", adminID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin approve transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	reg := &domain.Registration{}
	var status string
	err = tx.QueryRow(ctx, `
		UPDATE registrations SET
			status = 'verified',
			reviewed_by = $2,
			verified_at = $3,
			updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+registrationColumns,
		registrationID, adminID, now,
	).Scan(registrationScanTargets(reg, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.notPending(ctx, span, registrationID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to approve registration: %w", err)
	}
	reg.Status = domain.RegistrationStatus(status)

	// Mint one credential per seat
	tokens := make([]string, 0, reg.Quantity)
	for i := 0; i < reg.Quantity; i++ {
		token, err := domain.NewTicketToken()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO tickets (id, registration_id, event_id, user_id, token, status, created_at)
			VALUES ($1, $2, $3, $4, $5, 'active', $6)
		`, uuid.New().String(), reg.ID, reg.EventID, reg.UserID, token, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to mint ticket: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err := r.creditReferrer(ctx, tx, reg, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit approve transaction: %w", err)
	}

	span.SetAttributes(attribute.Int("tickets_minted", len(tokens)))
	span.SetStatus(codes.Ok, "")
	return &ApproveResult{Registration: reg, Tokens: tokens}, nil
}

// creditReferrer credits referral points at most once per registration.
// The referral_credits primary key is the idempotency guard.
func (r *PostgresRegistrationRepository) creditReferrer(ctx context.Context, tx pgx.Tx, reg *domain.Registration, now time.Time) error {
	var referrerID *string
	err := tx.QueryRow(ctx,
		"SELECT referred_by FROM users WHERE id = $1",
		reg.UserID,
	).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to look up referrer: %w", err)
	}
	if referrerID == nil || *referrerID == "" {
		return nil
	}

	points := int64(domain.ReferralPointsPerSeat) * int64(reg.Quantity)
	result, err := tx.Exec(ctx, `
		INSERT INTO referral_credits (registration_id, referrer_id, points, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (registration_id) DO NOTHING
	`, reg.ID, *referrerID, points, now)
	if err != nil {
		return fmt.Errorf("failed to insert referral credit: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Already credited by a previous approval attempt
		return nil
	}

	_, err = tx.Exec(ctx,
		"UPDATE users SET referral_points = referral_points + $2 WHERE id = $1",
		*referrerID, points,
	)
	if err != nil {
		return fmt.Errorf("failed to credit referral points: %w", err)
	}
	return nil
}

// Reject transitions pending -> rejected and restores the held seats.
func (r *PostgresRegistrationRepository) Reject(ctx context.Context, registrationID, adminID, reason string) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.reject")
	defer span.End()

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("admin_id", adminID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin reject transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	reg := &domain.Registration{}
	var status string
	err = tx.QueryRow(ctx, `
		UPDATE registrations SET
			status = 'rejected',
			reviewed_by = $2,
			rejection_reason = $3,
			rejected_at = $4,
			updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+registrationColumns,
		registrationID, adminID, reason, now,
	).Scan(registrationScanTargets(reg, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.notPending(ctx, span, registrationID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to reject registration: %w", err)
	}
	reg.Status = domain.RegistrationStatus(status)

	if err := restoreTierAvailability(ctx, tx, reg.EventID, reg.TierName, reg.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit reject transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return reg, nil
}

// Cancel transitions verified -> cancelled, restores the seats and voids
// the registration's still-active tickets.
func (r *PostgresRegistrationRepository) Cancel(ctx context.Context, registrationID string) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("registration_id", registrationID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin cancel transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	reg := &domain.Registration{}
	var status string
	err = tx.QueryRow(ctx, `
		UPDATE registrations SET
			status = 'cancelled',
			cancelled_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'verified'
		RETURNING `+registrationColumns,
		registrationID, now,
	).Scan(registrationScanTargets(reg, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Diagnostic read: missing or wrong state
			var current string
			diagErr := r.pool.QueryRow(ctx,
				"SELECT status FROM registrations WHERE id = $1", registrationID,
			).Scan(&current)
			if diagErr != nil {
				if errors.Is(diagErr, pgx.ErrNoRows) {
					span.SetStatus(codes.Error, "not found")
					return nil, domain.ErrRegistrationNotFound
				}
				span.RecordError(diagErr)
				span.SetStatus(codes.Error, diagErr.Error())
				return nil, fmt.Errorf("failed to check registration status: %w", diagErr)
			}
			span.SetStatus(codes.Error, "not verified")
			return nil, domain.ErrNotVerified
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to cancel registration: %w", err)
	}
	reg.Status = domain.RegistrationStatus(status)

	if err := restoreTierAvailability(ctx, tx, reg.EventID, reg.TierName, reg.Quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets SET status = 'cancelled'
		WHERE registration_id = $1 AND status = 'active'
	`, registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to cancel tickets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit cancel transaction: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return reg, nil
}

// GetByID retrieves a registration by its ID
func (r *PostgresRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("registration_id", id))

	reg := &domain.Registration{}
	var status string
	err := r.pool.QueryRow(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE id = $1", id,
	).Scan(registrationScanTargets(reg, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrRegistrationNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	reg.Status = domain.RegistrationStatus(status)
	span.SetStatus(codes.Ok, "")
	return reg, nil
}

// GetByUserID retrieves all registrations of a user, newest first
func (r *PostgresRegistrationRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.get_by_user_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	rows, err := r.pool.Query(ctx,
		"SELECT "+registrationColumns+` FROM registrations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get registrations by user: %w", err)
	}
	defer rows.Close()

	regs, err := collectRegistrations(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(regs)))
	span.SetStatus(codes.Ok, "")
	return regs, nil
}

// GetByEventID retrieves all registrations of an event, newest first
func (r *PostgresRegistrationRepository) GetByEventID(ctx context.Context, eventID string, limit, offset int) ([]*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.get_by_event_id")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	rows, err := r.pool.Query(ctx,
		"SELECT "+registrationColumns+` FROM registrations
		WHERE event_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		eventID, limit, offset,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get registrations by event: %w", err)
	}
	defer rows.Close()

	regs, err := collectRegistrations(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("count", len(regs)))
	span.SetStatus(codes.Ok, "")
	return regs, nil
}

// notPending runs the diagnostic read after a guarded pending transition
// matched zero rows and maps the actual state to a typed error.
func (r *PostgresRegistrationRepository) notPending(ctx context.Context, span trace.Span, registrationID string) error {
	var status string
	err := r.pool.QueryRow(ctx,
		"SELECT status FROM registrations WHERE id = $1", registrationID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrRegistrationNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to check registration status: %w", err)
	}
	span.SetStatus(codes.Error, "not pending")
	return &domain.NotPendingError{Status: domain.RegistrationStatus(status)}
}

// restoreTierAvailability returns seats to the tier, clamped so
// quantity_available never exceeds quantity_total.
func restoreTierAvailability(ctx context.Context, tx pgx.Tx, eventID, tierName string, quantity int) error {
	result, err := tx.Exec(ctx, `
		UPDATE ticket_tiers SET
			quantity_available = LEAST(quantity_available + $3, quantity_total),
			version = version + 1
		WHERE event_id = $1 AND name = $2
	`, eventID, tierName, quantity)
	if err != nil {
		return fmt.Errorf("failed to restore tier availability: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTierNotFound
	}
	return nil
}

// registrationScanTargets returns scan destinations matching registrationColumns
func registrationScanTargets(reg *domain.Registration, status *string) []interface{} {
	return []interface{}{
		&reg.ID,
		&reg.EventID,
		&reg.UserID,
		&reg.TierName,
		&reg.Quantity,
		&reg.TotalAmountCents,
		status,
		&reg.PaymentReference,
		&nullStringScanner{&reg.PaymentProof},
		&nullStringScanner{&reg.RejectionReason},
		&nullStringScanner{&reg.ReviewedBy},
		&reg.VerifiedAt,
		&reg.RejectedAt,
		&reg.CancelledAt,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	}
}

func collectRegistrations(rows pgx.Rows) ([]*domain.Registration, error) {
	var regs []*domain.Registration
	for rows.Next() {
		reg := &domain.Registration{}
		var status string
		if err := rows.Scan(registrationScanTargets(reg, &status)...); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		reg.Status = domain.RegistrationStatus(status)
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrations: %w", err)
	}
	return regs, nil
}

// nullStringScanner maps SQL NULL to the empty string
type nullStringScanner struct {
	dest *string
}

func (s *nullStringScanner) Scan(src interface{}) error {
	if src == nil {
		*s.dest = ""
		return nil
	}
	switch v := src.(type) {
	case string:
		*s.dest = v
	case []byte:
		*s.dest = string(v)
	default:
		return fmt.Errorf("cannot scan %T into string", src)
	}
	return nil
}

// nullString converts an empty string to a nil pointer for nullable columns
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresRegistrationRepository implements RegistrationRepository
var _ RegistrationRepository = (*PostgresRegistrationRepository)(nil)
