package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"order-status-tracker/internal/client"
	"order-status-tracker/internal/metrics"
	"order-status-tracker/internal/model"
	"order-status-tracker/internal/repository"

	"golang.org/x/sync/errgroup"
)

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomePruned    Outcome = "pruned"
	OutcomeDropped   Outcome = "dropped"
)

type DeliveryResult struct {
	SubscriptionID string
	Outcome        Outcome
	Attempted      bool
	Err            error
}

// FanoutResult summarizes one fanout. Attempted counts calls to the push
// service; expired subscriptions are pruned without an attempt.
type FanoutResult struct {
	OrderID   uint
	Attempted int
	Delivered int
	Pruned    int
	Dropped   int
	Results   []DeliveryResult
}

func (r *FanoutResult) NoSubscribers() bool {
	return len(r.Results) == 0
}

type NotificationService interface {
	// Fanout delivers n to every subscription of the order and waits for all
	// attempts. Only a failure to load subscriptions is returned.
	Fanout(ctx context.Context, orderID uint, n model.Notification) (*FanoutResult, error)
	// Dispatch runs Fanout in the background, detached from ctx cancellation.
	Dispatch(ctx context.Context, orderID uint, n model.Notification)
	// Wait blocks until every dispatched fanout has finished.
	Wait()
}

type notificationServiceImpl struct {
	subRepo        repository.SubscriptionRepository
	pushClient     client.PushClient
	maxConcurrency int
	metrics        *metrics.Metrics
	log            *slog.Logger
	now            func() time.Time
	wg             sync.WaitGroup
}

func NewNotificationService(
	subRepo repository.SubscriptionRepository,
	pushClient client.PushClient,
	maxConcurrency int,
	m *metrics.Metrics,
	log *slog.Logger,
) NotificationService {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &notificationServiceImpl{
		subRepo:        subRepo,
		pushClient:     pushClient,
		maxConcurrency: maxConcurrency,
		metrics:        m,
		log:            log,
		now:            time.Now,
	}
}

func (s *notificationServiceImpl) Fanout(ctx context.Context, orderID uint, n model.Notification) (*FanoutResult, error) {
	subs, err := s.subRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions for order %d: %w", orderID, err)
	}

	result := &FanoutResult{OrderID: orderID}
	if len(subs) == 0 {
		s.log.Debug("no subscriptions to notify", "order_id", orderID)
		return result, nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}

	result.Results = make([]DeliveryResult, len(subs))

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for i, sub := range subs {
		i, sub := i, sub
		g.Go(func() error {
			result.Results[i] = s.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range result.Results {
		if r.Attempted {
			result.Attempted++
		}
		switch r.Outcome {
		case OutcomeDelivered:
			result.Delivered++
		case OutcomePruned:
			result.Pruned++
		case OutcomeDropped:
			result.Dropped++
		}
	}

	s.log.Info("push fanout finished",
		"order_id", orderID,
		"subscriptions", len(subs),
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"pruned", result.Pruned,
		"dropped", result.Dropped,
	)
	return result, nil
}

func (s *notificationServiceImpl) deliver(ctx context.Context, sub *model.PushSubscription, payload []byte) DeliveryResult {
	res := DeliveryResult{SubscriptionID: sub.ID}

	if sub.Expired(s.now()) {
		res.Outcome, res.Err = s.prune(ctx, sub, errors.New("subscription expired"))
		s.metrics.ObservePushDelivery(string(res.Outcome), 0)
		return res
	}

	res.Attempted = true
	start := time.Now()
	err := s.pushClient.Send(ctx, sub, payload)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		res.Outcome = OutcomeDelivered
	case errors.Is(err, client.ErrSubscriptionGone):
		res.Outcome, res.Err = s.prune(ctx, sub, err)
	default:
		res.Outcome, res.Err = OutcomeDropped, err
		s.log.Warn("push delivery failed",
			"order_id", sub.OrderID,
			"subscription_id", sub.ID,
			"error", err,
		)
	}

	s.metrics.ObservePushDelivery(string(res.Outcome), elapsed)
	return res
}

func (s *notificationServiceImpl) prune(ctx context.Context, sub *model.PushSubscription, cause error) (Outcome, error) {
	if err := s.subRepo.Delete(ctx, sub.ID); err != nil {
		s.log.Error("remove stale subscription",
			"order_id", sub.OrderID,
			"subscription_id", sub.ID,
			"error", err,
		)
		return OutcomeDropped, errors.Join(cause, err)
	}

	s.log.Info("removed stale subscription",
		"order_id", sub.OrderID,
		"subscription_id", sub.ID,
		"reason", cause.Error(),
	)
	return OutcomePruned, cause
}

func (s *notificationServiceImpl) Dispatch(ctx context.Context, orderID uint, n model.Notification) {
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("push fanout panicked", "order_id", orderID, "panic", r)
			}
		}()

		if _, err := s.Fanout(ctx, orderID, n); err != nil {
			s.log.Error("push fanout failed", "order_id", orderID, "error", err)
		}
	}()
}

func (s *notificationServiceImpl) Wait() {
	s.wg.Wait()
}
