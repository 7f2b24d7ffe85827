package repository

import (
	"context"

	"order-status-tracker/internal/model"

	"gorm.io/gorm"
)

type StatusHistoryRepository interface {
	Append(ctx context.Context, tx *gorm.DB, change *model.OrderStatusChange) error
	ListByOrderID(ctx context.Context, orderID uint) ([]*model.OrderStatusChange, error)
}

type statusHistoryRepoImpl struct {
	db *gorm.DB
}

func NewStatusHistoryRepository(db *gorm.DB) StatusHistoryRepository {
	return &statusHistoryRepoImpl{db: db}
}

func (r *statusHistoryRepoImpl) Append(ctx context.Context, tx *gorm.DB, change *model.OrderStatusChange) error {
	return tx.WithContext(ctx).Create(change).Error
}

func (r *statusHistoryRepoImpl) ListByOrderID(ctx context.Context, orderID uint) ([]*model.OrderStatusChange, error) {
	var changes []*model.OrderStatusChange
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("version ASC").
		Find(&changes).Error

	if err != nil {
		return nil, err
	}

	return changes, nil
}
