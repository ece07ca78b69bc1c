package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/basilakis/kai-delivery/internal/observability"
	"github.com/basilakis/kai-delivery/internal/provider"
	"github.com/basilakis/kai-delivery/internal/queue"
	"github.com/basilakis/kai-delivery/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250

	defaultMaxElapsed = 15 * time.Minute
)

// WorkerService consumes delivery messages, claims the rows, and drives each
// attempt through the dispatcher. Retry versus terminal failure is decided
// here from the error class, the attempt budget, and the elapsed-time cap.
type WorkerService struct {
	deliveries  repository.DeliveryRepository
	consumer    queue.Consumer
	dispatcher  DeliveryDispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	maxElapsed  time.Duration
	now         func() time.Time
	randIntn    func(n int) int
}

func NewWorkerService(
	deliveries repository.DeliveryRepository,
	consumer queue.Consumer,
	dispatcher DeliveryDispatcher,
	concurrency int,
	maxElapsed time.Duration,
	logger *zap.Logger,
) (*WorkerService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		deliveries:  deliveries,
		consumer:    consumer,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: concurrency,
		maxElapsed:  maxElapsed,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

// Start consumes channel queues and processes delivery messages until context
// cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	delivery, err := s.deliveries.LockForSending(ctx, msg.DeliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("delivery not found during lock, skipping",
				zap.String("deliveryId", msg.DeliveryID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock delivery for sending: %w", err)
	}

	// Nil means terminal/sending state; ack and skip.
	if delivery == nil {
		return nil
	}

	channelName := strings.ToLower(delivery.Channel.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(channelName)
		defer s.metrics.DecWorkerInFlight(channelName)
	}

	sendStart := s.now()
	result, sendErr := s.dispatcher.Dispatch(ctx, delivery)
	if s.metrics != nil {
		s.metrics.ObserveDeliverySendDuration(channelName, s.now().Sub(sendStart))
	}

	if sendErr == nil {
		if err := s.deliveries.MarkSucceeded(ctx, delivery.ID); err != nil {
			return fmt.Errorf("failed to mark delivery succeeded: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncDeliverySent(channelName)
		}
		return nil
	}

	if provider.Classify(sendErr) == domain.ErrorClassRateLimited && s.metrics != nil {
		s.metrics.IncRateLimited(channelName)
	}

	attemptNumber := delivery.AttemptCount + 1
	if result != nil {
		attemptNumber = result.AttemptNumber
	}
	maxAttempts := delivery.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	if s.shouldRetry(delivery, attemptNumber, maxAttempts, sendErr) {
		nextRetryAt := s.now().Add(s.computeRetryDelay(attemptNumber))
		if err := s.deliveries.ScheduleRetry(ctx, delivery.ID, nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule delivery retry: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	if err := s.deliveries.MarkFailed(ctx, delivery.ID); err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	if s.metrics != nil {
		reason := "permanent_error"
		if provider.IsRetryable(sendErr) {
			reason = "retry_exhausted"
		}
		s.metrics.IncDeliveryFailed(channelName, reason)
	}

	return nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// shouldRetry enforces both budgets: the attempt count and the wall-clock cap
// measured from the first attempt.
func (s *WorkerService) shouldRetry(delivery *domain.Delivery, attemptNumber, maxAttempts int, sendErr error) bool {
	if !provider.IsRetryable(sendErr) {
		return false
	}
	if attemptNumber >= maxAttempts {
		return false
	}
	if delivery.FirstAttemptAt != nil && s.now().Sub(*delivery.FirstAttemptAt) >= s.maxElapsed {
		return false
	}
	return true
}

func (s *WorkerService) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}
