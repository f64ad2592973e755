package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/internal/dto"
	"github.com/eventpass/eventpass/internal/metrics"
	"github.com/eventpass/eventpass/internal/repository"
	"github.com/eventpass/eventpass/pkg/logger"
	"github.com/eventpass/eventpass/pkg/redis"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// attendanceCacheTTL bounds how stale the attendance aggregate may be.
// Gate staff refresh dashboards constantly, so the cache absorbs most reads.
const attendanceCacheTTL = 5 * time.Second

// CheckInService defines the interface for venue check-in logic
type CheckInService interface {
	// CheckIn consumes a ticket credential. Repeated scans of the same
	// credential fail with the original check-in time.
	CheckIn(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error)

	// GetTicket retrieves a ticket by its credential token
	GetTicket(ctx context.Context, token string) (*dto.TicketResponse, error)

	// EventAttendance aggregates check-in progress for an event
	EventAttendance(ctx context.Context, eventID string) (*dto.AttendanceResponse, error)
}

// checkInService implements CheckInService
type checkInService struct {
	ticketRepo repository.TicketRepository
	notifier   Notifier
	cache      *redis.Client
	log        *logger.Logger
}

// NewCheckInService creates a new check-in service. The cache is optional.
func NewCheckInService(ticketRepo repository.TicketRepository, notifier Notifier, cache *redis.Client) CheckInService {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	return &checkInService{
		ticketRepo: ticketRepo,
		notifier:   notifier,
		cache:      cache,
		log:        logger.Get(),
	}
}

// CheckIn consumes a ticket credential
func (s *checkInService) CheckIn(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkin.check_in")
	defer span.End()

	if req == nil || req.Token == "" {
		span.SetStatus(codes.Error, "invalid token")
		return nil, domain.ErrInvalidToken
	}

	ticket, err := s.ticketRepo.CheckIn(ctx, req.Token)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyCheckedIn) {
			metrics.RecordCheckInReplay(ctx)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordCheckIn(ctx, ticket.EventID)
	s.invalidateAttendance(ctx, ticket.EventID)

	if err := s.notifier.PublishCheckIn(ctx, ticket); err != nil {
		s.log.Warn("failed to publish check-in event",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err),
		)
	}

	span.SetAttributes(
		attribute.String("ticket_id", ticket.ID),
		attribute.String("event_id", ticket.EventID),
	)
	span.SetStatus(codes.Ok, "")
	return dto.NewTicketResponse(ticket), nil
}

// GetTicket retrieves a ticket by its credential token
func (s *checkInService) GetTicket(ctx context.Context, token string) (*dto.TicketResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkin.get_ticket")
	defer span.End()

	if token == "" {
		span.SetStatus(codes.Error, "invalid token")
		return nil, domain.ErrInvalidToken
	}

	ticket, err := s.ticketRepo.GetByToken(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewTicketResponse(ticket), nil
}

// EventAttendance aggregates check-in progress for an event, served from
// a short-TTL cache when available
func (s *checkInService) EventAttendance(ctx context.Context, eventID string) (*dto.AttendanceResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkin.event_attendance")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(attribute.String("event_id", eventID))

	if cached := s.cachedAttendance(ctx, eventID); cached != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		span.SetStatus(codes.Ok, "")
		return cached, nil
	}

	stats, err := s.ticketRepo.EventAttendance(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &dto.AttendanceResponse{
		EventID:   eventID,
		CheckedIn: stats.CheckedIn,
		Remaining: stats.Remaining,
		Total:     stats.Total,
	}
	s.storeAttendance(ctx, eventID, resp)

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func attendanceCacheKey(eventID string) string {
	return fmt.Sprintf("attendance:%s", eventID)
}

// cachedAttendance returns the cached aggregate or nil. Cache failures
// fall through to the database.
func (s *checkInService) cachedAttendance(ctx context.Context, eventID string) *dto.AttendanceResponse {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, attendanceCacheKey(eventID)).Result()
	if err != nil || raw == "" {
		return nil
	}
	resp := &dto.AttendanceResponse{}
	if err := json.Unmarshal([]byte(raw), resp); err != nil {
		return nil
	}
	return resp
}

func (s *checkInService) storeAttendance(ctx context.Context, eventID string, resp *dto.AttendanceResponse) {
	if s.cache == nil {
		return
	}
	value, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, attendanceCacheKey(eventID), string(value), attendanceCacheTTL).Err(); err != nil {
		s.log.Debug("failed to cache attendance",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}

func (s *checkInService) invalidateAttendance(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, attendanceCacheKey(eventID)).Err(); err != nil {
		s.log.Debug("failed to invalidate attendance cache",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
	}
}
