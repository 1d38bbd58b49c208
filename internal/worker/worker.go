package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/cuongbtq/inventory-counting/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EscalationRunner runs batch escalations
type EscalationRunner interface {
	LaunchCountingForJobs(ctx context.Context, jobIDs []int64, teamID int64) (*service.BatchEscalationResult, error)
}

// DeliverySource is the queue the worker consumes from
type DeliverySource interface {
	SetQos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Runner        EscalationRunner
	Source        DeliverySource
	WorkerID      string
	QueueName     string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// Worker consumes escalation commands and runs them on a goroutine pool
type Worker struct {
	logger        *slog.Logger
	runner        EscalationRunner
	source        DeliverySource
	workerID      string
	queueName     string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	jobsChan      chan *domain.CommandMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Worker{
		logger:        cfg.Logger,
		runner:        cfg.Runner,
		source:        cfg.Source,
		workerID:      cfg.WorkerID,
		queueName:     cfg.QueueName,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		jobTimeout:    timeout,
		jobsChan:      make(chan *domain.CommandMessage, concurrency),
		stopChan:      make(chan struct{}),
	}
}

// Start consumes commands until ctx is canceled or the delivery channel
// closes, then waits for in-flight commands to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
	return nil
}

// Stop asks the pool goroutines to exit after their current command
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
}
