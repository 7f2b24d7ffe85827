package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"order-status-tracker/internal/dto"
	"order-status-tracker/internal/model"
	"order-status-tracker/internal/repository"
)

type SubscriptionService interface {
	Register(ctx context.Context, orderID uint, req *dto.SubscriptionRequest) error
	VAPIDPublicKey() string
}

type subscriptionServiceImpl struct {
	orderRepo      repository.OrderRepository
	subRepo        repository.SubscriptionRepository
	vapidPublicKey string
	log            *slog.Logger
}

func NewSubscriptionService(
	orderRepo repository.OrderRepository,
	subRepo repository.SubscriptionRepository,
	vapidPublicKey string,
	log *slog.Logger,
) SubscriptionService {
	return &subscriptionServiceImpl{
		orderRepo:      orderRepo,
		subRepo:        subRepo,
		vapidPublicKey: vapidPublicKey,
		log:            log,
	}
}

// Register binds the endpoint to orderID. An endpoint that was registered for
// another order moves to this one.
func (s *subscriptionServiceImpl) Register(ctx context.Context, orderID uint, req *dto.SubscriptionRequest) error {
	sub, err := toSubscription(orderID, req)
	if err != nil {
		return err
	}

	ok, err := s.orderRepo.Exists(ctx, orderID)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !ok {
		return ErrOrderNotFound
	}

	if err := s.subRepo.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}

	s.log.Info("push subscription registered", "order_id", orderID)
	return nil
}

func (s *subscriptionServiceImpl) VAPIDPublicKey() string {
	return s.vapidPublicKey
}

func toSubscription(orderID uint, req *dto.SubscriptionRequest) (*model.PushSubscription, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidSubscription)
	}

	endpoint := strings.TrimSpace(req.Endpoint)
	u, err := url.Parse(endpoint)
	if endpoint == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: endpoint must be an absolute URL", ErrInvalidSubscription)
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: keys.p256dh and keys.auth are required", ErrInvalidSubscription)
	}

	sub := &model.PushSubscription{
		OrderID:  orderID,
		Endpoint: endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if req.ExpirationTime != nil {
		exp := time.UnixMilli(int64(*req.ExpirationTime)).UTC()
		sub.ExpirationTime = &exp
	}
	return sub, nil
}
