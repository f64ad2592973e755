package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/eventpass/eventpass/internal/dto"
	"github.com/gin-gonic/gin"
)

// MockCheckInService is a mock implementation of CheckInService
type MockCheckInService struct {
	CheckInFunc         func(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error)
	GetTicketFunc       func(ctx context.Context, token string) (*dto.TicketResponse, error)
	EventAttendanceFunc func(ctx context.Context, eventID string) (*dto.AttendanceResponse, error)
}

func (m *MockCheckInService) CheckIn(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error) {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockCheckInService) GetTicket(ctx context.Context, token string) (*dto.TicketResponse, error) {
	if m.GetTicketFunc != nil {
		return m.GetTicketFunc(ctx, token)
	}
	return nil, nil
}

func (m *MockCheckInService) EventAttendance(ctx context.Context, eventID string) (*dto.AttendanceResponse, error) {
	if m.EventAttendanceFunc != nil {
		return m.EventAttendanceFunc(ctx, eventID)
	}
	return nil, nil
}

func setupCheckInRouter(svc *MockCheckInService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewCheckInHandler(svc)
	checkin := router.Group("/checkin")
	{
		checkin.POST("", h.CheckIn)
		checkin.GET("/:token", h.GetTicket)
	}
	router.GET("/events/:id/attendance", h.Attendance)
	return router
}

func TestCheckInHandler_CheckIn(t *testing.T) {
	usedAt := time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       interface{}
		setupMocks func(*MockCheckInService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "successful check-in",
			body: dto.CheckInRequest{Token: "tok-abc"},
			setupMocks: func(cs *MockCheckInService) {
				cs.CheckInFunc = func(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error) {
					now := time.Now()
					return &dto.TicketResponse{
						ID:      "ticket-001",
						EventID: "event-001",
						Status:  "used",
						UsedAt:  &now,
					}, nil
				}
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "replayed scan",
			body: dto.CheckInRequest{Token: "tok-used"},
			setupMocks: func(cs *MockCheckInService) {
				cs.CheckInFunc = func(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error) {
					return nil, &domain.AlreadyCheckedInError{UsedAt: usedAt}
				}
			},
			wantStatus: http.StatusConflict,
			wantCode:   "ALREADY_CHECKED_IN",
		},
		{
			name: "unknown token",
			body: dto.CheckInRequest{Token: "tok-missing"},
			setupMocks: func(cs *MockCheckInService) {
				cs.CheckInFunc = func(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error) {
					return nil, domain.ErrTicketNotFound
				}
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "TICKET_NOT_FOUND",
		},
		{
			name: "cancelled ticket",
			body: dto.CheckInRequest{Token: "tok-cancelled"},
			setupMocks: func(cs *MockCheckInService) {
				cs.CheckInFunc = func(ctx context.Context, req *dto.CheckInRequest) (*dto.TicketResponse, error) {
					return nil, domain.ErrTicketCancelled
				}
			},
			wantStatus: http.StatusConflict,
			wantCode:   "TICKET_CANCELLED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckInService{}
			if tt.setupMocks != nil {
				tt.setupMocks(svc)
			}
			router := setupCheckInRouter(svc)

			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/checkin", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				var errResp dto.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
					t.Fatalf("failed to decode error response: %v", err)
				}
				if errResp.Code != tt.wantCode {
					t.Errorf("code = %s, want %s", errResp.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestCheckInHandler_Attendance(t *testing.T) {
	svc := &MockCheckInService{
		EventAttendanceFunc: func(ctx context.Context, eventID string) (*dto.AttendanceResponse, error) {
			return &dto.AttendanceResponse{EventID: eventID, CheckedIn: 7, Remaining: 3, Total: 10}, nil
		},
	}
	router := setupCheckInRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/events/event-001/attendance", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	var resp dto.AttendanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CheckedIn != 7 || resp.Remaining != 3 || resp.Total != 10 {
		t.Errorf("attendance = %+v", resp)
	}
}

func TestCheckInHandler_GetTicket(t *testing.T) {
	svc := &MockCheckInService{
		GetTicketFunc: func(ctx context.Context, token string) (*dto.TicketResponse, error) {
			if token == "tok-abc" {
				return &dto.TicketResponse{ID: "ticket-001", Status: "active"}, nil
			}
			return nil, domain.ErrTicketNotFound
		},
	}
	router := setupCheckInRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/checkin/tok-abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/checkin/tok-missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body: %s)", w.Code, w.Body.String())
	}
}
