package metrics

import (
	"context"
	"sync"

	"github.com/eventpass/eventpass/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Registration counters
	RegistrationsReserved  *telemetry.Counter
	RegistrationsApproved  *telemetry.Counter
	RegistrationsRejected  *telemetry.Counter
	RegistrationsCancelled *telemetry.Counter
	CapacityRejections     *telemetry.Counter

	// Check-in counters
	CheckIns       *telemetry.Counter
	CheckInReplays *telemetry.Counter

	// Reconciliation counters
	ReconcileCorrections *telemetry.Counter

	// Error tracking counters
	ErrorsTotal *telemetry.Counter

	// Histograms
	ApprovalLatency *telemetry.Histogram
	RequestDuration *telemetry.Histogram
	ReconcileDrift  *telemetry.Histogram

	// Gauges
	PendingRegistrations *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all registration metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	// Registration counters
	RegistrationsReserved, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_reservations_total",
		Description: "Total number of seat reservations created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsApproved, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_approvals_total",
		Description: "Total number of registrations approved",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_rejections_total",
		Description: "Total number of registrations rejected",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RegistrationsCancelled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_cancellations_total",
		Description: "Total number of registrations cancelled",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	CapacityRejections, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_capacity_rejections_total",
		Description: "Total number of reservations refused for lack of seats",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Check-in counters
	CheckIns, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_total",
		Description: "Total number of tickets checked in",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	CheckInReplays, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_replays_total",
		Description: "Total number of check-in attempts on already used tickets",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Reconciliation
	ReconcileCorrections, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "reconcile_corrections_total",
		Description: "Total number of tier availability corrections applied",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ReconcileDrift, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "reconcile_drift_seats",
		Description: "Absolute seat drift per applied correction",
		Unit:        "1",
	}, []float64{1, 2, 5, 10, 25, 50, 100})
	if err != nil {
		return err
	}

	// Histograms with custom buckets for latency
	ApprovalLatency, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "registration_approval_latency_seconds",
		Description: "Duration from submission to admin decision",
		Unit:        "s",
	}, []float64{60, 300, 900, 1800, 3600, 7200, 21600, 86400}) // 1min to 1day
	if err != nil {
		return err
	}

	// Request duration histogram for latency tracking (p50, p90, p99)
	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "registration_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}) // 5ms to 10s
	if err != nil {
		return err
	}

	// Error tracking
	ErrorsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "registration_errors_total",
		Description: "Total number of errors by type",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Up-down counter for current state
	PendingRegistrations, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "registration_pending",
		Description: "Current number of registrations awaiting verification",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordReservation records a reservation metric
func RecordReservation(ctx context.Context, eventID, tierName string, quantity int) {
	if RegistrationsReserved != nil {
		RegistrationsReserved.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_name", tierName),
			attribute.Int("quantity", quantity),
		)
	}
	if PendingRegistrations != nil {
		PendingRegistrations.Inc(ctx)
	}
}

// RecordApproval records an approval metric
func RecordApproval(ctx context.Context, eventID string, latencySeconds float64) {
	if RegistrationsApproved != nil {
		RegistrationsApproved.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
	if ApprovalLatency != nil {
		ApprovalLatency.Record(ctx, latencySeconds,
			attribute.String("event_id", eventID),
		)
	}
	if PendingRegistrations != nil {
		PendingRegistrations.Dec(ctx)
	}
}

// RecordRejection records a rejection metric
func RecordRejection(ctx context.Context, eventID string) {
	if RegistrationsRejected != nil {
		RegistrationsRejected.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
	if PendingRegistrations != nil {
		PendingRegistrations.Dec(ctx)
	}
}

// RecordCancellation records a cancellation metric
func RecordCancellation(ctx context.Context, eventID string) {
	if RegistrationsCancelled != nil {
		RegistrationsCancelled.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
}

// RecordCapacityRejection records a reservation refused for lack of seats
func RecordCapacityRejection(ctx context.Context, eventID, tierName string) {
	if CapacityRejections != nil {
		CapacityRejections.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_name", tierName),
		)
	}
}

// RecordCheckIn records a successful ticket check-in
func RecordCheckIn(ctx context.Context, eventID string) {
	if CheckIns != nil {
		CheckIns.Inc(ctx,
			attribute.String("event_id", eventID),
		)
	}
}

// RecordCheckInReplay records a repeated scan of an already used ticket
func RecordCheckInReplay(ctx context.Context) {
	if CheckInReplays != nil {
		CheckInReplays.Inc(ctx)
	}
}

// RecordReconcileCorrection records an applied availability correction
func RecordReconcileCorrection(ctx context.Context, eventID, tierName string, drift int) {
	if ReconcileCorrections != nil {
		ReconcileCorrections.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.String("tier_name", tierName),
		)
	}
	if ReconcileDrift != nil {
		if drift < 0 {
			drift = -drift
		}
		ReconcileDrift.Record(ctx, float64(drift),
			attribute.String("event_id", eventID),
			attribute.String("tier_name", tierName),
		)
	}
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	if ErrorsTotal != nil {
		ErrorsTotal.Inc(ctx,
			attribute.String("error_type", errorType),
			attribute.String("operation", operation),
		)
	}
}

// RecordRequestDuration records HTTP request duration
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	if RequestDuration != nil {
		RequestDuration.Record(ctx, durationSeconds,
			attribute.String("operation", operation),
		)
	}
}
