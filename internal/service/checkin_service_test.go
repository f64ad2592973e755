package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/internal/dto"
	"github.com/eventpass/eventpass/internal/repository"
)

// MockTicketRepository is a mock implementation of TicketRepository
type MockTicketRepository struct {
	CheckInFunc         func(ctx context.Context, token string) (*domain.Ticket, error)
	GetByTokenFunc      func(ctx context.Context, token string) (*domain.Ticket, error)
	EventAttendanceFunc func(ctx context.Context, eventID string) (*repository.AttendanceStats, error)
}

func (m *MockTicketRepository) CheckIn(ctx context.Context, token string) (*domain.Ticket, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, token)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketRepository) GetByToken(ctx context.Context, token string) (*domain.Ticket, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketRepository) EventAttendance(ctx context.Context, eventID string) (*repository.AttendanceStats, error) {
	if m.EventAttendanceFunc != nil {
		return m.EventAttendanceFunc(ctx, eventID)
	}
	return &repository.AttendanceStats{}, nil
}

func activeTicket(token string) *domain.Ticket {
	return &domain.Ticket{
		ID:             "ticket-001",
		RegistrationID: "reg-001",
		EventID:        "event-001",
		UserID:         "user-001",
		Token:          token,
		Status:         domain.TicketStatusActive,
		CreatedAt:      time.Now(),
	}
}

func TestCheckInService_CheckIn(t *testing.T) {
	usedAt := time.Now().Add(-time.Minute)

	tests := []struct {
		name       string
		token      string
		setupMocks func(*MockTicketRepository)
		wantErr    error
	}{
		{
			name:  "successful check-in",
			token: "tok-abc",
			setupMocks: func(tr *MockTicketRepository) {
				tr.CheckInFunc = func(ctx context.Context, token string) (*domain.Ticket, error) {
					ticket := activeTicket(token)
					now := time.Now()
					ticket.Status = domain.TicketStatusUsed
					ticket.UsedAt = &now
					return ticket, nil
				}
			},
		},
		{
			name:    "empty token",
			token:   "",
			wantErr: domain.ErrInvalidToken,
		},
		{
			name:  "unknown token",
			token: "tok-missing",
			setupMocks: func(tr *MockTicketRepository) {
				tr.CheckInFunc = func(ctx context.Context, token string) (*domain.Ticket, error) {
					return nil, domain.ErrTicketNotFound
				}
			},
			wantErr: domain.ErrTicketNotFound,
		},
		{
			name:  "replayed scan",
			token: "tok-used",
			setupMocks: func(tr *MockTicketRepository) {
				tr.CheckInFunc = func(ctx context.Context, token string) (*domain.Ticket, error) {
					return nil, &domain.AlreadyCheckedInError{UsedAt: usedAt}
				}
			},
			wantErr: domain.ErrAlreadyCheckedIn,
		},
		{
			name:  "cancelled ticket",
			token: "tok-cancelled",
			setupMocks: func(tr *MockTicketRepository) {
				tr.CheckInFunc = func(ctx context.Context, token string) (*domain.Ticket, error) {
					return nil, domain.ErrTicketCancelled
				}
			},
			wantErr: domain.ErrTicketCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockTicketRepository{}
			if tt.setupMocks != nil {
				tt.setupMocks(repo)
			}
			notifier := &MockNotifier{}
			svc := NewCheckInService(repo, notifier, nil)

			result, err := svc.CheckIn(context.Background(), &dto.CheckInRequest{Token: tt.token})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckIn() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if result.Status != "used" {
				t.Errorf("status = %s, want used", result.Status)
			}
			if result.UsedAt == nil {
				t.Error("used_at not set")
			}
			if notifier.CheckInCalls != 1 {
				t.Errorf("notifier calls = %d, want 1", notifier.CheckInCalls)
			}
		})
	}
}

func TestCheckInService_CheckIn_ReplayReportsOriginalTime(t *testing.T) {
	usedAt := time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)
	repo := &MockTicketRepository{
		CheckInFunc: func(ctx context.Context, token string) (*domain.Ticket, error) {
			return nil, &domain.AlreadyCheckedInError{UsedAt: usedAt}
		},
	}
	svc := NewCheckInService(repo, nil, nil)

	_, err := svc.CheckIn(context.Background(), &dto.CheckInRequest{Token: "tok-used"})
	var replay *domain.AlreadyCheckedInError
	if !errors.As(err, &replay) {
		t.Fatalf("error type = %T, want *AlreadyCheckedInError", err)
	}
	if !replay.UsedAt.Equal(usedAt) {
		t.Errorf("used_at = %v, want %v", replay.UsedAt, usedAt)
	}
}

// TestCheckInService_CheckIn_SingleSuccess races concurrent scans of the
// same token against a state-tracking fake and verifies exactly one wins.
func TestCheckInService_CheckIn_SingleSuccess(t *testing.T) {
	var mu sync.Mutex
	used := false
	usedAt := time.Time{}

	repo := &MockTicketRepository{
		CheckInFunc: func(ctx context.Context, token string) (*domain.Ticket, error) {
			mu.Lock()
			defer mu.Unlock()
			if used {
				return nil, &domain.AlreadyCheckedInError{UsedAt: usedAt}
			}
			used = true
			usedAt = time.Now()
			ticket := activeTicket(token)
			ticket.Status = domain.TicketStatusUsed
			ticket.UsedAt = &usedAt
			return ticket, nil
		},
	}
	svc := NewCheckInService(repo, nil, nil)

	const scanners = 20
	var wg sync.WaitGroup
	var successMu sync.Mutex
	successes := 0
	replays := 0

	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CheckIn(context.Background(), &dto.CheckInRequest{Token: "tok-abc"})
			successMu.Lock()
			defer successMu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, domain.ErrAlreadyCheckedIn) {
				replays++
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
	if replays != scanners-1 {
		t.Errorf("replays = %d, want %d", replays, scanners-1)
	}
}

func TestCheckInService_EventAttendance(t *testing.T) {
	repo := &MockTicketRepository{
		EventAttendanceFunc: func(ctx context.Context, eventID string) (*repository.AttendanceStats, error) {
			return &repository.AttendanceStats{CheckedIn: 7, Remaining: 3, Total: 10}, nil
		},
	}
	svc := NewCheckInService(repo, nil, nil)

	result, err := svc.EventAttendance(context.Background(), "event-001")
	if err != nil {
		t.Fatalf("EventAttendance() failed: %v", err)
	}
	if result.CheckedIn != 7 || result.Remaining != 3 || result.Total != 10 {
		t.Errorf("attendance = %+v", result)
	}
	if result.EventID != "event-001" {
		t.Errorf("event_id = %s", result.EventID)
	}

	if _, err := svc.EventAttendance(context.Background(), ""); !errors.Is(err, domain.ErrInvalidEventID) {
		t.Errorf("EventAttendance(\"\") error = %v, want ErrInvalidEventID", err)
	}
}

func TestCheckInService_GetTicket(t *testing.T) {
	repo := &MockTicketRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*domain.Ticket, error) {
			if token == "tok-abc" {
				return activeTicket(token), nil
			}
			return nil, domain.ErrTicketNotFound
		},
	}
	svc := NewCheckInService(repo, nil, nil)

	result, err := svc.GetTicket(context.Background(), "tok-abc")
	if err != nil {
		t.Fatalf("GetTicket() failed: %v", err)
	}
	if result.Status != "active" {
		t.Errorf("status = %s, want active", result.Status)
	}

	if _, err := svc.GetTicket(context.Background(), "tok-missing"); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Errorf("GetTicket(missing) error = %v, want ErrTicketNotFound", err)
	}
}
