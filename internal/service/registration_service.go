package service

import (
	"context"
	"errors"
	"time"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/internal/dto"
	"github.com/eventpass/eventpass/internal/metrics"
	"github.com/eventpass/eventpass/internal/repository"
	"github.com/eventpass/eventpass/pkg/logger"
	"github.com/eventpass/eventpass/pkg/retry"
	"github.com/eventpass/eventpass/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// RegistrationService defines the interface for registration business logic
type RegistrationService interface {
	// Reserve submits a registration, atomically holding the seats
	Reserve(ctx context.Context, userID string, req *dto.CreateRegistrationRequest) (*dto.CreateRegistrationResponse, error)

	// Approve verifies a pending registration and mints its tickets
	Approve(ctx context.Context, registrationID, adminID string) (*dto.ApproveRegistrationResponse, error)

	// Reject refuses a pending registration and restores the seats
	Reject(ctx context.Context, registrationID, adminID string, req *dto.RejectRegistrationRequest) (*dto.RegistrationResponse, error)

	// Cancel withdraws a verified registration, restoring seats and
	// voiding its tickets
	Cancel(ctx context.Context, registrationID, userID string) (*dto.RegistrationResponse, error)

	// GetRegistration retrieves a registration, enforcing ownership for
	// non-admin callers
	GetRegistration(ctx context.Context, registrationID, userID string, isAdmin bool) (*dto.RegistrationResponse, error)

	// GetUserRegistrations retrieves a user's registrations, newest first
	GetUserRegistrations(ctx context.Context, userID string, page, pageSize int) (*dto.RegistrationListResponse, error)

	// GetEventRegistrations retrieves an event's registrations, newest first
	GetEventRegistrations(ctx context.Context, eventID string, page, pageSize int) (*dto.RegistrationListResponse, error)
}

// registrationService implements RegistrationService
type registrationService struct {
	registrationRepo repository.RegistrationRepository
	notifier         Notifier
	retryConfig      *retry.Config
	log              *logger.Logger
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(registrationRepo repository.RegistrationRepository, notifier Notifier) RegistrationService {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	return &registrationService{
		registrationRepo: registrationRepo,
		notifier:         notifier,
		retryConfig: &retry.Config{
			MaxRetries:      2,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     500 * time.Millisecond,
			Multiplier:      2.0,
			JitterFactor:    0.2,
		},
		log: logger.Get(),
	}
}

// Reserve submits a registration, atomically holding the seats
func (s *registrationService) Reserve(ctx context.Context, userID string, req *dto.CreateRegistrationRequest) (*dto.CreateRegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.reserve")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.EventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if req.TierName == "" {
		span.SetStatus(codes.Error, "invalid tier_name")
		return nil, domain.ErrInvalidTierName
	}
	if req.Quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, domain.ErrInvalidQuantity
	}
	if req.PaymentReference == "" {
		span.SetStatus(codes.Error, "missing payment_reference")
		return nil, domain.ErrMissingPaymentReference
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.String("tier_name", req.TierName),
		attribute.Int("quantity", req.Quantity),
	)

	now := time.Now()
	reg := &domain.Registration{
		ID:               uuid.New().String(),
		EventID:          req.EventID,
		UserID:           userID,
		TierName:         req.TierName,
		Quantity:         req.Quantity,
		Status:           domain.RegistrationStatusPending,
		PaymentReference: req.PaymentReference,
		PaymentProof:     req.PaymentProof,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var result *repository.ReserveResult
	err := s.withTxRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.registrationRepo.Reserve(ctx, reg)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrCapacityExceeded) {
			metrics.RecordCapacityRejection(ctx, req.EventID, req.TierName)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordReservation(ctx, reg.EventID, reg.TierName, reg.Quantity)

	if err := s.notifier.PublishRegistrationEvent(ctx, domain.EventRegistrationSubmitted, reg); err != nil {
		s.log.Warn("failed to publish registration submitted event",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}

	span.SetAttributes(attribute.Int("remaining", result.Remaining))
	span.SetStatus(codes.Ok, "")
	return &dto.CreateRegistrationResponse{
		Registration: dto.NewRegistrationResponse(reg),
		Remaining:    result.Remaining,
	}, nil
}

// Approve verifies a pending registration and mints its tickets
func (s *registrationService) Approve(ctx context.Context, registrationID, adminID string) (*dto.ApproveRegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.approve")
	defer span.End()

	if registrationID == "" {
		span.SetStatus(codes.Error, "invalid registration_id")
		return nil, domain.ErrInvalidRegistrationID
	}
	if adminID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("admin_id", adminID),
	)

	var result *repository.ApproveResult
	err := s.withTxRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.registrationRepo.Approve(ctx, registrationID, adminID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reg := result.Registration
	metrics.RecordApproval(ctx, reg.EventID, time.Since(reg.CreatedAt).Seconds())

	if err := s.notifier.PublishRegistrationEvent(ctx, domain.EventRegistrationApproved, reg); err != nil {
		s.log.Warn("failed to publish registration approved event",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}

	span.SetAttributes(attribute.Int("tickets_minted", len(result.Tokens)))
	span.SetStatus(codes.Ok, "")
	return &dto.ApproveRegistrationResponse{
		Registration: dto.NewRegistrationResponse(reg),
		Tickets:      result.Tokens,
	}, nil
}

// Reject refuses a pending registration and restores the seats
func (s *registrationService) Reject(ctx context.Context, registrationID, adminID string, req *dto.RejectRegistrationRequest) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.reject")
	defer span.End()

	if registrationID == "" {
		span.SetStatus(codes.Error, "invalid registration_id")
		return nil, domain.ErrInvalidRegistrationID
	}
	if adminID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.Reason == "" {
		span.SetStatus(codes.Error, "missing reason")
		return nil, domain.ErrMissingReason
	}

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("admin_id", adminID),
	)

	var reg *domain.Registration
	err := s.withTxRetry(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.registrationRepo.Reject(ctx, registrationID, adminID, req.Reason)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordRejection(ctx, reg.EventID)

	if err := s.notifier.PublishRegistrationEvent(ctx, domain.EventRegistrationRejected, reg); err != nil {
		s.log.Warn("failed to publish registration rejected event",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// Cancel withdraws a verified registration
func (s *registrationService) Cancel(ctx context.Context, registrationID, userID string) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.cancel")
	defer span.End()

	if registrationID == "" {
		span.SetStatus(codes.Error, "invalid registration_id")
		return nil, domain.ErrInvalidRegistrationID
	}
	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	span.SetAttributes(
		attribute.String("registration_id", registrationID),
		attribute.String("user_id", userID),
	)

	existing, err := s.registrationRepo.GetByID(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !existing.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrNotOwner
	}

	var reg *domain.Registration
	err = s.withTxRetry(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.registrationRepo.Cancel(ctx, registrationID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordCancellation(ctx, reg.EventID)

	if err := s.notifier.PublishRegistrationEvent(ctx, domain.EventRegistrationCancelled, reg); err != nil {
		s.log.Warn("failed to publish registration cancelled event",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// GetRegistration retrieves a registration with ownership enforcement
func (s *registrationService) GetRegistration(ctx context.Context, registrationID, userID string, isAdmin bool) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.get")
	defer span.End()

	if registrationID == "" {
		span.SetStatus(codes.Error, "invalid registration_id")
		return nil, domain.ErrInvalidRegistrationID
	}

	span.SetAttributes(attribute.String("registration_id", registrationID))

	reg, err := s.registrationRepo.GetByID(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !isAdmin && !reg.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrNotOwner
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// GetUserRegistrations retrieves a user's registrations, newest first
func (s *registrationService) GetUserRegistrations(ctx context.Context, userID string, page, pageSize int) (*dto.RegistrationListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.get_user_registrations")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	page, pageSize = normalizePage(page, pageSize)

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("page", page),
	)

	regs, err := s.registrationRepo.GetByUserID(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationListResponse(regs, page, pageSize), nil
}

// GetEventRegistrations retrieves an event's registrations, newest first
func (s *registrationService) GetEventRegistrations(ctx context.Context, eventID string, page, pageSize int) (*dto.RegistrationListResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.get_event_registrations")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	page, pageSize = normalizePage(page, pageSize)

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("page", page),
	)

	regs, err := s.registrationRepo.GetByEventID(ctx, eventID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationListResponse(regs, page, pageSize), nil
}

// withTxRetry retries an operation only on serialization and deadlock
// failures. Domain errors are permanent and surface immediately.
func (s *registrationService) withTxRetry(ctx context.Context, op retry.Operation) error {
	result := retry.Do(ctx, s.retryConfig, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && !repository.IsRetryableTxError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if result.Err == nil {
		return nil
	}
	if errors.Is(result.Err, retry.ErrMaxRetriesExceeded) && result.LastError != nil {
		return result.LastError
	}
	return result.Err
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
