// internal/app/system/tasks/worker.go
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker triggers the daily job on an interval. One run happens right after
// Start so a freshly deployed instance does not wait a full day.
type Worker struct {
	job      *DailyJob
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(job *DailyJob, logger *zap.Logger, interval, timeout time.Duration) *Worker {
	return &Worker{
		job:      job,
		log:      logger,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("daily job worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("daily job worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	w.runOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runOnce()
		}
	}
}

func (w *Worker) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	failed := 0
	for _, res := range w.job.Run(ctx) {
		if !res.OK {
			failed++
		}
	}
	if failed > 0 {
		w.log.Warn("daily job finished with failures", zap.Int("failed_stages", failed))
		return
	}
	w.log.Info("daily job finished")
}
