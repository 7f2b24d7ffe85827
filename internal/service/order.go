package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"order-status-tracker/internal/dto"
	"order-status-tracker/internal/metrics"
	"order-status-tracker/internal/model"
	"order-status-tracker/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StatusPublisher receives every persisted status change. Failures are
// logged by the caller and never undo the change.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event model.StatusEvent) error
}

type OrderService interface {
	CreateOrder(ctx context.Context, items []*dto.OrderItemRequest) (*model.Order, error)
	GetOrder(ctx context.Context, orderID uint) (*model.Order, error)
	GetStatus(ctx context.Context, orderID uint) (*dto.OrderStatusResponse, error)
	UpdateStatus(ctx context.Context, orderID uint, status string, changedBy string) (*model.Order, error)
	History(ctx context.Context, orderID uint) ([]*model.OrderStatusChange, error)
}

type OrderSettings struct {
	TaxRate            decimal.Decimal
	EnforceTransitions bool
}

type orderServiceImpl struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	historyRepo repository.StatusHistoryRepository
	notifier    NotificationService
	publishers  []StatusPublisher
	settings    OrderSettings
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewOrderService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	historyRepo repository.StatusHistoryRepository,
	notifier NotificationService,
	settings OrderSettings,
	m *metrics.Metrics,
	log *slog.Logger,
	publishers ...StatusPublisher,
) OrderService {
	return &orderServiceImpl{
		db:          db,
		orderRepo:   orderRepo,
		historyRepo: historyRepo,
		notifier:    notifier,
		publishers:  publishers,
		settings:    settings,
		metrics:     m,
		log:         log,
	}
}

func (s *orderServiceImpl) CreateOrder(ctx context.Context, items []*dto.OrderItemRequest) (*model.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}

	orderItems := make([]model.OrderItem, len(items))
	for i, item := range items {
		if item == nil || strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("%w: item %d has no name", ErrInvalidOrder, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item quantity must be positive", ErrInvalidOrder)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: item price must not be negative", ErrInvalidOrder)
		}

		orderItems[i] = model.OrderItem{
			Name:     strings.TrimSpace(item.Name),
			Price:    item.Price,
			Quantity: item.Quantity,
			ImgURL:   item.ImgURL,
		}
	}

	order := &model.Order{
		OrderStatus:   model.StatusNew,
		StatusVersion: 1,
		Items:         orderItems,
	}
	order.ApplyTotals(model.ComputeTotals(orderItems, s.settings.TaxRate))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}

		err := s.historyRepo.Append(ctx, tx, &model.OrderStatusChange{
			OrderID:   order.ID,
			ToStatus:  model.StatusNew,
			Version:   1,
			ChangedAt: order.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("store status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order created", "order_id", order.ID, "total", order.Total.String())
	return order, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID uint) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, translateNotFound(err, "find order")
	}
	return order, nil
}

func (s *orderServiceImpl) GetStatus(ctx context.Context, orderID uint) (*dto.OrderStatusResponse, error) {
	order, err := s.orderRepo.GetStatus(ctx, orderID)
	if err != nil {
		return nil, translateNotFound(err, "get order status")
	}
	return &dto.OrderStatusResponse{
		OrderStatus:   order.OrderStatus,
		StatusVersion: order.StatusVersion,
	}, nil
}

// UpdateStatus persists the new status and then notifies subscribers. The
// notification side never fails the update.
func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID uint, status string, changedBy string) (*model.Order, error) {
	next, ok := model.ParseOrderStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var guard repository.TransitionGuard
	if s.settings.EnforceTransitions {
		guard = model.CheckTransition
	}

	var (
		order    *model.Order
		previous model.OrderStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, previous, err = s.orderRepo.UpdateStatus(ctx, tx, orderID, next, guard)
		if err != nil {
			return err
		}

		return s.historyRepo.Append(ctx, tx, &model.OrderStatusChange{
			OrderID:    order.ID,
			FromStatus: previous,
			ToStatus:   order.OrderStatus,
			Version:    order.StatusVersion,
			ChangedBy:  changedBy,
			ChangedAt:  order.UpdatedAt,
		})
	})
	switch {
	case err == nil:
	case errors.Is(err, model.ErrInvalidTransition):
		return nil, err
	default:
		return nil, translateNotFound(err, "update order status")
	}

	s.metrics.ObserveStatusUpdate(string(order.OrderStatus))
	s.log.Info("order status updated",
		"order_id", order.ID,
		"from", previous,
		"to", order.OrderStatus,
		"version", order.StatusVersion,
		"changed_by", changedBy,
	)

	s.publish(ctx, model.StatusEvent{
		OrderID:    order.ID,
		OldStatus:  previous,
		NewStatus:  order.OrderStatus,
		Version:    order.StatusVersion,
		ChangedBy:  changedBy,
		OccurredAt: time.Now().UTC(),
	})
	s.notifier.Dispatch(ctx, order.ID, model.NewStatusNotification(order))

	return order, nil
}

func (s *orderServiceImpl) publish(ctx context.Context, event model.StatusEvent) {
	for _, p := range s.publishers {
		if err := p.PublishStatus(ctx, event); err != nil {
			s.log.Warn("publish status event",
				"order_id", event.OrderID,
				"version", event.Version,
				"error", err,
			)
		}
	}
}

func (s *orderServiceImpl) History(ctx context.Context, orderID uint) ([]*model.OrderStatusChange, error) {
	ok, err := s.orderRepo.Exists(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("check order: %w", err)
	}
	if !ok {
		return nil, ErrOrderNotFound
	}

	changes, err := s.historyRepo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return changes, nil
}

func translateNotFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
