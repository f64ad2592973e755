package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresTierRepository implements TierRepository using pgxpool
type PostgresTierRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTierRepository creates a new PostgresTierRepository
func NewPostgresTierRepository(pool *pgxpool.Pool) *PostgresTierRepository {
	return &PostgresTierRepository{pool: pool}
}

// ListByEvent returns all tiers of an event ordered by name
func (r *PostgresTierRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketTier, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tier.list_by_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	rows, err := r.pool.Query(ctx, `
		SELECT event_id, name, unit_price_cents, quantity_total, quantity_available, version
		FROM ticket_tiers
		WHERE event_id = $1
		ORDER BY name
	`, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	defer rows.Close()

	var tiers []*domain.TicketTier
	for rows.Next() {
		tier := &domain.TicketTier{}
		if err := rows.Scan(
			&tier.EventID,
			&tier.Name,
			&tier.UnitPriceCents,
			&tier.QuantityTotal,
			&tier.QuantityAvailable,
			&tier.Version,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating tiers: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tiers)))
	span.SetStatus(codes.Ok, "")
	return tiers, nil
}

// HeldQuantities sums, per tier, the seats of registrations that still
// hold inventory. This is the ground truth reconciliation compares the
// stored availability against.
func (r *PostgresTierRepository) HeldQuantities(ctx context.Context, eventID string) (map[string]int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tier.held_quantities")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	rows, err := r.pool.Query(ctx, `
		SELECT tier_name, COALESCE(SUM(quantity), 0)
		FROM registrations
		WHERE event_id = $1 AND status IN ('pending', 'verified')
		GROUP BY tier_name
	`, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to sum held quantities: %w", err)
	}
	defer rows.Close()

	held := make(map[string]int)
	for rows.Next() {
		var tierName string
		var quantity int
		if err := rows.Scan(&tierName, &quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan held quantity: %w", err)
		}
		held[tierName] = quantity
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating held quantities: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return held, nil
}

// CompareAndSetAvailable applies a reconciliation correction only if the
// stored availability still equals old, so a concurrent reservation
// invalidates the stale correction instead of being overwritten by it.
func (r *PostgresTierRepository) CompareAndSetAvailable(ctx context.Context, eventID, tierName string, old, new int) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tier.compare_and_set_available")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("tier_name", tierName),
		attribute.Int("old", old),
		attribute.Int("new", new),
	)

	result, err := r.pool.Exec(ctx, `
		UPDATE ticket_tiers SET
			quantity_available = $4,
			version = version + 1
		WHERE event_id = $1 AND name = $2 AND quantity_available = $3
	`, eventID, tierName, old, new)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to apply tier correction: %w", err)
	}

	applied := result.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("applied", applied))
	span.SetStatus(codes.Ok, "")
	return applied, nil
}

// PostgresEventRepository implements EventRepository using pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// GetByID retrieves an event by its ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	event := &domain.Event{}
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, venue, starts_at, capacity, status, created_at, updated_at
		FROM events WHERE id = $1
	`, id).Scan(
		&event.ID,
		&event.Name,
		&event.Venue,
		&event.StartsAt,
		&event.Capacity,
		&status,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	event.Status = domain.EventStatus(status)
	span.SetStatus(codes.Ok, "")
	return event, nil
}

// ListIDs returns event IDs page by page for reconciliation sweeps
func (r *PostgresEventRepository) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_ids")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	rows, err := r.pool.Query(ctx,
		"SELECT id FROM events ORDER BY id LIMIT $1 OFFSET $2",
		limit, offset,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list event ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating event ids: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// Interface assertions
var (
	_ TierRepository  = (*PostgresTierRepository)(nil)
	_ EventRepository = (*PostgresEventRepository)(nil)
)
