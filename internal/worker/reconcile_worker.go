package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventpass/eventpass/internal/service"
	"github.com/eventpass/eventpass/pkg/logger"
)

// ReconcileWorkerConfig contains configuration for the reconcile worker
type ReconcileWorkerConfig struct {
	// ScanInterval is the interval between reconciliation sweeps
	ScanInterval time.Duration
	// BatchSize is the number of events to process per page
	BatchSize int
}

// DefaultReconcileWorkerConfig returns default configuration
func DefaultReconcileWorkerConfig() *ReconcileWorkerConfig {
	return &ReconcileWorkerConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    100,
	}
}

// ReconcileWorker periodically repairs tier availability drift
type ReconcileWorker struct {
	reconcileService service.ReconcileService
	config           *ReconcileWorkerConfig
	log              *logger.Logger
	stopCh           chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool

	// Stats
	totalSweeps      int64
	totalCorrections int64
	lastScanTime     time.Time
	lastCorrections  int
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(reconcileService service.ReconcileService, config *ReconcileWorkerConfig) *ReconcileWorker {
	if config == nil {
		config = DefaultReconcileWorkerConfig()
	}

	return &ReconcileWorker{
		reconcileService: reconcileService,
		config:           config,
		log:              logger.Get(),
		stopCh:           make(chan struct{}),
	}
}

// Start starts the reconcile worker
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("reconcile worker already running")
	}
	// A previous Stop closed the channel, make a fresh one for this run
	w.stopCh = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting reconcile worker")

	w.wg.Add(1)
	go w.sweepLoop(ctx)

	return nil
}

// Stop stops the reconcile worker
func (w *ReconcileWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping reconcile worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Reconcile worker stopped")
}

// sweepLoop runs reconciliation sweeps on the configured interval
func (w *ReconcileWorker) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs a single full reconciliation pass
func (w *ReconcileWorker) sweep(ctx context.Context) {
	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.mu.Unlock()

	summary, err := w.reconcileService.ReconcileAll(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Reconciliation sweep failed: %v", err))
		return
	}

	w.mu.Lock()
	w.totalSweeps++
	w.totalCorrections += int64(summary.CorrectionsApplied)
	w.lastCorrections = summary.CorrectionsApplied
	w.mu.Unlock()

	if summary.CorrectionsApplied > 0 || summary.CorrectionsSkipped > 0 {
		w.log.Info(fmt.Sprintf("Reconciliation sweep: %d events, %d tiers, %d corrections applied, %d skipped",
			summary.EventsScanned, summary.TiersChecked, summary.CorrectionsApplied, summary.CorrectionsSkipped))
	}
}

// GetStats returns worker statistics
func (w *ReconcileWorker) GetStats() *ReconcileWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ReconcileWorkerStats{
		IsRunning:        w.running,
		TotalSweeps:      w.totalSweeps,
		TotalCorrections: w.totalCorrections,
		LastScanTime:     w.lastScanTime,
		LastCorrections:  w.lastCorrections,
	}
}

// ReconcileWorkerStats contains worker statistics
type ReconcileWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalSweeps      int64     `json:"total_sweeps"`
	TotalCorrections int64     `json:"total_corrections"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastCorrections  int       `json:"last_corrections"`
}
