package service

import (
	"context"

	"github.com/eventpass/eventpass/internal/metrics"
	"github.com/eventpass/eventpass/internal/repository"
	"github.com/eventpass/eventpass/pkg/logger"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ReconcileSummary reports what a reconciliation sweep found and fixed
type ReconcileSummary struct {
	EventsScanned      int
	TiersChecked       int
	CorrectionsApplied int
	CorrectionsSkipped int
}

// ReconcileService repairs drift between stored tier availability and the
// quantities actually held by live registrations.
type ReconcileService interface {
	// ReconcileAll sweeps every event, batchSize event IDs at a time
	ReconcileAll(ctx context.Context, batchSize int) (*ReconcileSummary, error)

	// ReconcileEvent repairs a single event's tiers
	ReconcileEvent(ctx context.Context, eventID string) (*ReconcileSummary, error)
}

// reconcileService implements ReconcileService
type reconcileService struct {
	eventRepo repository.EventRepository
	tierRepo  repository.TierRepository
	log       *logger.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(eventRepo repository.EventRepository, tierRepo repository.TierRepository) ReconcileService {
	return &reconcileService{
		eventRepo: eventRepo,
		tierRepo:  tierRepo,
		log:       logger.Get(),
	}
}

// ReconcileAll sweeps every event, batchSize event IDs at a time
func (s *reconcileService) ReconcileAll(ctx context.Context, batchSize int) (*ReconcileSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.all")
	defer span.End()

	if batchSize <= 0 {
		batchSize = 100
	}

	summary := &ReconcileSummary{}
	offset := 0
	for {
		ids, err := s.eventRepo.ListIDs(ctx, batchSize, offset)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return summary, err
		}
		if len(ids) == 0 {
			break
		}

		for _, eventID := range ids {
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "context canceled")
				return summary, ctx.Err()
			}
			eventSummary, err := s.ReconcileEvent(ctx, eventID)
			if err != nil {
				// Keep sweeping; a broken event must not starve the rest
				s.log.Error("failed to reconcile event",
					zap.String("event_id", eventID),
					zap.Error(err),
				)
				continue
			}
			summary.TiersChecked += eventSummary.TiersChecked
			summary.CorrectionsApplied += eventSummary.CorrectionsApplied
			summary.CorrectionsSkipped += eventSummary.CorrectionsSkipped
		}
		summary.EventsScanned += len(ids)

		if len(ids) < batchSize {
			break
		}
		offset += batchSize
	}

	span.SetAttributes(
		attribute.Int("events_scanned", summary.EventsScanned),
		attribute.Int("corrections_applied", summary.CorrectionsApplied),
	)
	span.SetStatus(codes.Ok, "")
	return summary, nil
}

// ReconcileEvent repairs a single event's tiers. Each correction is a
// compare-and-set against the availability observed in this sweep, so a
// reservation landing mid-sweep invalidates the stale correction.
func (s *reconcileService) ReconcileEvent(ctx context.Context, eventID string) (*ReconcileSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconcile.event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	tiers, err := s.tierRepo.ListByEvent(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	held, err := s.tierRepo.HeldQuantities(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	summary := &ReconcileSummary{EventsScanned: 1, TiersChecked: len(tiers)}
	for _, tier := range tiers {
		target := tier.QuantityTotal - held[tier.Name]
		if target < 0 {
			target = 0
		}
		if target > tier.QuantityTotal {
			target = tier.QuantityTotal
		}
		if tier.QuantityAvailable == target {
			continue
		}

		applied, err := s.tierRepo.CompareAndSetAvailable(ctx, eventID, tier.Name, tier.QuantityAvailable, target)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return summary, err
		}
		if !applied {
			// Availability moved since we read it, next sweep re-checks
			summary.CorrectionsSkipped++
			continue
		}

		summary.CorrectionsApplied++
		metrics.RecordReconcileCorrection(ctx, eventID, tier.Name, tier.QuantityAvailable-target)
		s.log.Warn("corrected tier availability drift",
			zap.String("event_id", eventID),
			zap.String("tier_name", tier.Name),
			zap.Int("old", tier.QuantityAvailable),
			zap.Int("new", target),
			zap.Int("held", held[tier.Name]),
		)
	}

	span.SetAttributes(attribute.Int("corrections_applied", summary.CorrectionsApplied))
	span.SetStatus(codes.Ok, "")
	return summary, nil
}
