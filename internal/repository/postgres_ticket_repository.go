package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PostgresTicketRepository implements TicketRepository using pgxpool
type PostgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository creates a new PostgresTicketRepository
func NewPostgresTicketRepository(pool *pgxpool.Pool) *PostgresTicketRepository {
	return &PostgresTicketRepository{pool: pool}
}

const ticketColumns = `
	id, registration_id, event_id, user_id, token, status, used_at, created_at
`

// CheckIn flips an active ticket of a verified registration to used in a
// single guarded update. Zero rows triggers a diagnostic read that maps
// the actual state to a typed error, so a replayed scan reports the
// original check-in time instead of silently succeeding twice.
func (r *PostgresTicketRepository) CheckIn(ctx context.Context, token string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.check_in")
	defer span.End()

	now := time.Now()
	ticket := &domain.Ticket{}
	var status string
	err := r.pool.QueryRow(ctx, `
		UPDATE tickets t SET status = 'used', used_at = $2
		FROM registrations reg
		WHERE t.token = $1 AND t.status = 'active'
		  AND reg.id = t.registration_id AND reg.status = 'verified'
		RETURNING t.id, t.registration_id, t.event_id, t.user_id, t.token, t.status, t.used_at, t.created_at
	`, token, now).Scan(ticketScanTargets(ticket, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.checkInConflict(ctx, span, token)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to check in ticket: %w", err)
	}

	ticket.Status = domain.TicketStatus(status)
	span.SetAttributes(attribute.String("ticket_id", ticket.ID))
	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

// checkInConflict inspects the ticket and its registration after a guarded
// check-in matched zero rows.
func (r *PostgresTicketRepository) checkInConflict(ctx context.Context, span trace.Span, token string) error {
	var status string
	var usedAt *time.Time
	var regStatus string
	err := r.pool.QueryRow(ctx, `
		SELECT t.status, t.used_at, reg.status
		FROM tickets t
		JOIN registrations reg ON reg.id = t.registration_id
		WHERE t.token = $1
	`, token).Scan(&status, &usedAt, &regStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrTicketNotFound
		}
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to check ticket status: %w", err)
	}

	switch domain.TicketStatus(status) {
	case domain.TicketStatusUsed:
		span.SetStatus(codes.Error, "already checked in")
		used := time.Time{}
		if usedAt != nil {
			used = *usedAt
		}
		return &domain.AlreadyCheckedInError{UsedAt: used}
	case domain.TicketStatusCancelled:
		span.SetStatus(codes.Error, "ticket cancelled")
		return domain.ErrTicketCancelled
	}
	if domain.RegistrationStatus(regStatus) != domain.RegistrationStatusVerified {
		span.SetStatus(codes.Error, "registration not verified")
		return domain.ErrRegistrationNotVerified
	}
	span.SetStatus(codes.Error, "check-in conflict")
	return domain.ErrTicketNotFound
}

// GetByToken retrieves a ticket by its credential token
func (r *PostgresTicketRepository) GetByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_token")
	defer span.End()

	ticket := &domain.Ticket{}
	var status string
	err := r.pool.QueryRow(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE token = $1", token,
	).Scan(ticketScanTargets(ticket, &status)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	ticket.Status = domain.TicketStatus(status)
	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

// EventAttendance aggregates check-in progress for an event. Cancelled
// tickets are excluded from the totals.
func (r *PostgresTicketRepository) EventAttendance(ctx context.Context, eventID string) (*AttendanceStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.event_attendance")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	stats := &AttendanceStats{}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'used'),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status IN ('used', 'active'))
		FROM tickets
		WHERE event_id = $1
	`, eventID).Scan(&stats.CheckedIn, &stats.Remaining, &stats.Total)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to aggregate attendance: %w", err)
	}

	span.SetAttributes(
		attribute.Int("checked_in", stats.CheckedIn),
		attribute.Int("total", stats.Total),
	)
	span.SetStatus(codes.Ok, "")
	return stats, nil
}

// ticketScanTargets returns scan destinations matching ticketColumns
func ticketScanTargets(ticket *domain.Ticket, status *string) []interface{} {
	return []interface{}{
		&ticket.ID,
		&ticket.RegistrationID,
		&ticket.EventID,
		&ticket.UserID,
		&ticket.Token,
		status,
		&ticket.UsedAt,
		&ticket.CreatedAt,
	}
}

// Ensure PostgresTicketRepository implements TicketRepository
var _ TicketRepository = (*PostgresTicketRepository)(nil)
