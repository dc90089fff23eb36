package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/withdrawal-engine/internal/observability"
	"github.com/ayo6706/withdrawal-engine/internal/service"
	"go.uber.org/zap"
)

// SweepWorker periodically refunds withdrawal reservations whose
// confirmation window lapsed without a confirmation.
type SweepWorker struct {
	svc       *service.WithdrawalService
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewSweepWorker constructs a worker with a default five minute interval.
func NewSweepWorker(svc *service.WithdrawalService) *SweepWorker {
	return &SweepWorker{
		svc:       svc,
		interval:  5 * time.Minute,
		batchSize: 50,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *SweepWorker) WithInterval(interval time.Duration) *SweepWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize updates how many expired rows one run claims.
func (w *SweepWorker) WithBatchSize(size int32) *SweepWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and runs the sweep at the configured interval.
func (w *SweepWorker) Start(ctx context.Context) {
	zap.L().Info("sweep worker starting",
		zap.Duration("interval", w.interval),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("sweep worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("sweep worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *SweepWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SweepWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *SweepWorker) runOnce(ctx context.Context) {
	if _, err := w.svc.SweepExpired(ctx, w.batchSize); err != nil {
		observability.IncrementWorkerRun("sweep", "failed")
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("sweep", "success")
}
