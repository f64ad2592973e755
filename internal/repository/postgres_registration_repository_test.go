package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eventpass/eventpass/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

// getPostgresPool creates a PostgreSQL connection pool for testing and
// applies the schema.
func getPostgresPool(t *testing.T) *pgxpool.Pool {
	skipIfNoIntegration(t)

	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}

	port := os.Getenv("TEST_POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("TEST_POSTGRES_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("TEST_POSTGRES_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("TEST_POSTGRES_DB")
	if dbname == "" {
		dbname = "eventpass_test"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Failed to ping PostgreSQL: %v", err)
	}

	applySchema(t, pool)

	return pool
}

// applySchema runs the migration file. Every statement is IF NOT EXISTS,
// so repeated runs are harmless.
func applySchema(t *testing.T, pool *pgxpool.Pool) {
	raw, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("Failed to read migration: %v", err)
	}

	ctx := context.Background()
	for _, stmt := range strings.Split(string(raw), ";") {
		if !strings.Contains(stmt, "CREATE") {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("Failed to apply schema statement: %v\n%s", err, stmt)
		}
	}
}

// testScenario holds the seeded rows a repository test runs against
type testScenario struct {
	eventID    string
	tierName   string
	userID     string
	referrerID string
}

// seedScenario inserts an open event with one tier and a user (optionally
// referred), and registers cleanup for everything the test may create.
func seedScenario(t *testing.T, pool *pgxpool.Pool, capacity, tierTotal int, priceCents int64, withReferrer bool) *testScenario {
	ctx := context.Background()

	s := &testScenario{
		eventID:  uuid.New().String(),
		tierName: "general",
		userID:   uuid.New().String(),
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO events (id, name, venue, starts_at, capacity, status)
		VALUES ($1, 'Test Event', 'Test Hall', $2, $3, 'open')
	`, s.eventID, time.Now().Add(24*time.Hour), capacity)
	if err != nil {
		t.Fatalf("Failed to seed event: %v", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO ticket_tiers (event_id, name, unit_price_cents, quantity_total, quantity_available)
		VALUES ($1, $2, $3, $4, $4)
	`, s.eventID, s.tierName, priceCents, tierTotal)
	if err != nil {
		t.Fatalf("Failed to seed tier: %v", err)
	}

	if withReferrer {
		s.referrerID = uuid.New().String()
		_, err = pool.Exec(ctx,
			"INSERT INTO users (id) VALUES ($1)", s.referrerID)
		if err != nil {
			t.Fatalf("Failed to seed referrer: %v", err)
		}
	}
	_, err = pool.Exec(ctx,
		"INSERT INTO users (id, referred_by) VALUES ($1, $2)",
		s.userID, nullString(s.referrerID))
	if err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		pool.Exec(ctx, "DELETE FROM referral_credits WHERE registration_id IN (SELECT id FROM registrations WHERE event_id = $1)", s.eventID)
		pool.Exec(ctx, "DELETE FROM tickets WHERE event_id = $1", s.eventID)
		pool.Exec(ctx, "DELETE FROM registrations WHERE event_id = $1", s.eventID)
		pool.Exec(ctx, "DELETE FROM ticket_tiers WHERE event_id = $1", s.eventID)
		pool.Exec(ctx, "DELETE FROM events WHERE id = $1", s.eventID)
		pool.Exec(ctx, "DELETE FROM users WHERE id = $1", s.userID)
		if s.referrerID != "" {
			pool.Exec(ctx, "DELETE FROM users WHERE id = $1", s.referrerID)
		}
	})

	return s
}

func (s *testScenario) newRegistration(quantity int, paymentRef string) *domain.Registration {
	now := time.Now()
	return &domain.Registration{
		ID:               uuid.New().String(),
		EventID:          s.eventID,
		UserID:           s.userID,
		TierName:         s.tierName,
		Quantity:         quantity,
		Status:           domain.RegistrationStatusPending,
		PaymentReference: paymentRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func tierAvailability(t *testing.T, pool *pgxpool.Pool, eventID, tierName string) int {
	var available int
	err := pool.QueryRow(context.Background(),
		"SELECT quantity_available FROM ticket_tiers WHERE event_id = $1 AND name = $2",
		eventID, tierName,
	).Scan(&available)
	if err != nil {
		t.Fatalf("Failed to read tier availability: %v", err)
	}
	return available
}

func referralPoints(t *testing.T, pool *pgxpool.Pool, userID string) int64 {
	var points int64
	err := pool.QueryRow(context.Background(),
		"SELECT referral_points FROM users WHERE id = $1", userID,
	).Scan(&points)
	if err != nil {
		t.Fatalf("Failed to read referral points: %v", err)
	}
	return points
}

func TestPostgresRegistrationRepository_Reserve(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ctx := context.Background()
	s := seedScenario(t, pool, 100, 10, 2500, false)

	result, err := repo.Reserve(ctx, s.newRegistration(3, "PAY-"+uuid.New().String()))
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if result.Remaining != 7 {
		t.Errorf("Remaining = %d, want 7", result.Remaining)
	}
	if result.TotalAmountCents != 7500 {
		t.Errorf("TotalAmountCents = %d, want 7500", result.TotalAmountCents)
	}
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 7 {
		t.Errorf("tier availability = %d, want 7", got)
	}

	// Asking for more than what is left fails and carries the remainder
	_, err = repo.Reserve(ctx, s.newRegistration(8, "PAY-"+uuid.New().String()))
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Reserve() over tier limit error = %v, want CapacityError", err)
	}
	if capErr.Remaining != 7 {
		t.Errorf("CapacityError.Remaining = %d, want 7", capErr.Remaining)
	}

	// A failed reserve must not leak a decrement
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 7 {
		t.Errorf("tier availability after failed reserve = %d, want 7", got)
	}

	// Unknown tier
	reg := s.newRegistration(1, "PAY-"+uuid.New().String())
	reg.TierName = "no-such-tier"
	if _, err := repo.Reserve(ctx, reg); !errors.Is(err, domain.ErrTierNotFound) {
		t.Errorf("Reserve() unknown tier error = %v, want ErrTierNotFound", err)
	}

	// Unknown event
	reg = s.newRegistration(1, "PAY-"+uuid.New().String())
	reg.EventID = uuid.New().String()
	if _, err := repo.Reserve(ctx, reg); !errors.Is(err, domain.ErrEventNotFound) {
		t.Errorf("Reserve() unknown event error = %v, want ErrEventNotFound", err)
	}
}

func TestPostgresRegistrationRepository_Reserve_EventCapacityGate(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ctx := context.Background()
	// Tier holds more seats than the event admits
	s := seedScenario(t, pool, 5, 10, 1000, false)

	if _, err := repo.Reserve(ctx, s.newRegistration(4, "PAY-"+uuid.New().String())); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	_, err := repo.Reserve(ctx, s.newRegistration(2, "PAY-"+uuid.New().String()))
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Reserve() over event capacity error = %v, want CapacityError", err)
	}
	if capErr.Remaining != 1 {
		t.Errorf("CapacityError.Remaining = %d, want 1", capErr.Remaining)
	}

	// The event gate rolls back the tier decrement it rode in on
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 6 {
		t.Errorf("tier availability = %d, want 6", got)
	}
}

func TestPostgresRegistrationRepository_DuplicateReferenceRace(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ctx := context.Background()
	s := seedScenario(t, pool, 100, 50, 1000, false)

	paymentRef := "PAY-" + uuid.New().String()

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	duplicates := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Reserve(ctx, s.newRegistration(1, paymentRef))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, domain.ErrDuplicateReference) {
				duplicates++
			} else {
				t.Errorf("Reserve() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
	if duplicates != racers-1 {
		t.Errorf("duplicates = %d, want %d", duplicates, racers-1)
	}
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 49 {
		t.Errorf("tier availability = %d, want 49", got)
	}
}

func TestPostgresRegistrationRepository_RejectRestoresAvailability(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ctx := context.Background()
	s := seedScenario(t, pool, 100, 10, 2000, false)

	reg := s.newRegistration(4, "PAY-"+uuid.New().String())
	if _, err := repo.Reserve(ctx, reg); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 6 {
		t.Fatalf("tier availability after reserve = %d, want 6", got)
	}

	adminID := uuid.New().String()
	rejected, err := repo.Reject(ctx, reg.ID, adminID, "amount mismatch")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != domain.RegistrationStatusRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectionReason != "amount mismatch" {
		t.Errorf("rejection_reason = %q, want %q", rejected.RejectionReason, "amount mismatch")
	}
	if rejected.ReviewedBy != adminID {
		t.Errorf("reviewed_by = %s, want %s", rejected.ReviewedBy, adminID)
	}

	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 10 {
		t.Errorf("tier availability after reject = %d, want 10", got)
	}

	// A second reject hits the status guard
	_, err = repo.Reject(ctx, reg.ID, adminID, "again")
	var notPending *domain.NotPendingError
	if !errors.As(err, &notPending) {
		t.Fatalf("second Reject() error = %v, want NotPendingError", err)
	}
	if notPending.Status != domain.RegistrationStatusRejected {
		t.Errorf("NotPendingError.Status = %s, want rejected", notPending.Status)
	}

	// And must not restore the seats twice
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 10 {
		t.Errorf("tier availability after double reject = %d, want 10", got)
	}
}

func TestPostgresRegistrationRepository_RestoreClampsToTotal(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ctx := context.Background()
	s := seedScenario(t, pool, 100, 10, 2000, false)

	reg := s.newRegistration(3, "PAY-"+uuid.New().String())
	if _, err := repo.Reserve(ctx, reg); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	// Induce upward drift so the restore would overshoot without the clamp
	if _, err := pool.Exec(ctx, `
		UPDATE ticket_tiers SET quantity_available = 9
		WHERE event_id = $1 AND name = $2
	`, s.eventID, s.tierName); err != nil {
		t.Fatalf("Failed to induce drift: %v", err)
	}

	if _, err := repo.Reject(ctx, reg.ID, uuid.New().String(), "drift case"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 10 {
		t.Errorf("tier availability = %d, want clamp at 10", got)
	}
}

func TestPostgresRegistrationRepository_ApproveCancelLifecycle(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ticketRepo := NewPostgresTicketRepository(pool)
	ctx := context.Background()
	s := seedScenario(t, pool, 100, 10, 3000, true)

	reg := s.newRegistration(2, "PAY-"+uuid.New().String())
	if _, err := repo.Reserve(ctx, reg); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	adminID := uuid.New().String()
	approved, err := repo.Approve(ctx, reg.ID, adminID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Registration.Status != domain.RegistrationStatusVerified {
		t.Errorf("status = %s, want verified", approved.Registration.Status)
	}
	if len(approved.Tokens) != 2 {
		t.Fatalf("tokens minted = %d, want 2", len(approved.Tokens))
	}

	// Approval holds inventory, it does not move it
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 8 {
		t.Errorf("tier availability after approve = %d, want 8", got)
	}

	// Referrer credited once, per seat
	if got := referralPoints(t, pool, s.referrerID); got != 2*domain.ReferralPointsPerSeat {
		t.Errorf("referral points = %d, want %d", got, 2*domain.ReferralPointsPerSeat)
	}

	// A replayed approval hits the status guard and must not mint or credit again
	_, err = repo.Approve(ctx, reg.ID, adminID)
	if !errors.Is(err, domain.ErrNotPending) {
		t.Fatalf("second Approve() error = %v, want ErrNotPending", err)
	}
	var ticketCount int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM tickets WHERE registration_id = $1", reg.ID,
	).Scan(&ticketCount); err != nil {
		t.Fatalf("Failed to count tickets: %v", err)
	}
	if ticketCount != 2 {
		t.Errorf("ticket count after double approve = %d, want 2", ticketCount)
	}
	if got := referralPoints(t, pool, s.referrerID); got != 2*domain.ReferralPointsPerSeat {
		t.Errorf("referral points after double approve = %d, want %d", got, 2*domain.ReferralPointsPerSeat)
	}

	cancelled, err := repo.Cancel(ctx, reg.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != domain.RegistrationStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 10 {
		t.Errorf("tier availability after cancel = %d, want 10", got)
	}

	// The credentials die with the registration
	for _, token := range approved.Tokens {
		ticket, err := ticketRepo.GetByToken(ctx, token)
		if err != nil {
			t.Fatalf("GetByToken() error = %v", err)
		}
		if ticket.Status != domain.TicketStatusCancelled {
			t.Errorf("ticket status = %s, want cancelled", ticket.Status)
		}
		if _, err := ticketRepo.CheckIn(ctx, token); !errors.Is(err, domain.ErrTicketCancelled) {
			t.Errorf("CheckIn() on voided ticket error = %v, want ErrTicketCancelled", err)
		}
	}

	// Cancelling twice hits the status guard without touching inventory
	if _, err := repo.Cancel(ctx, reg.ID); !errors.Is(err, domain.ErrNotVerified) {
		t.Errorf("second Cancel() error = %v, want ErrNotVerified", err)
	}
	if got := tierAvailability(t, pool, s.eventID, s.tierName); got != 10 {
		t.Errorf("tier availability after double cancel = %d, want 10", got)
	}
}

func TestPostgresTicketRepository_CheckInReplay(t *testing.T) {
	pool := getPostgresPool(t)
	defer pool.Close()

	repo := NewPostgresRegistrationRepository(pool)
	ticketRepo := NewPostgresTicketRepository(pool)
	ctx := context.Background()
	s := seedScenario(t, pool, 100, 10, 1500, false)

	reg := s.newRegistration(1, "PAY-"+uuid.New().String())
	if _, err := repo.Reserve(ctx, reg); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	approved, err := repo.Approve(ctx, reg.ID, uuid.New().String())
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	token := approved.Tokens[0]

	ticket, err := ticketRepo.CheckIn(ctx, token)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if ticket.Status != domain.TicketStatusUsed {
		t.Errorf("status = %s, want used", ticket.Status)
	}
	if ticket.UsedAt == nil {
		t.Fatal("used_at not set")
	}

	// The replay reports the original scan time
	_, err = ticketRepo.CheckIn(ctx, token)
	var replay *domain.AlreadyCheckedInError
	if !errors.As(err, &replay) {
		t.Fatalf("second CheckIn() error = %v, want AlreadyCheckedInError", err)
	}
	if !replay.UsedAt.Equal(*ticket.UsedAt) {
		t.Errorf("replay used_at = %v, want %v", replay.UsedAt, *ticket.UsedAt)
	}

	stats, err := ticketRepo.EventAttendance(ctx, s.eventID)
	if err != nil {
		t.Fatalf("EventAttendance() error = %v", err)
	}
	if stats.CheckedIn != 1 || stats.Remaining != 0 || stats.Total != 1 {
		t.Errorf("attendance = %+v, want 1/0/1", stats)
	}
}
