package repository

import (
	"context"
	"time"

	"order-status-tracker/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *model.PushSubscription) error
	FindByOrderID(ctx context.Context, orderID uint) ([]*model.PushSubscription, error)
	FindByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	Delete(ctx context.Context, id string) error
}

type subscriptionRepoImpl struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db: db,
	}
}

// Upsert inserts the subscription or, when the endpoint is already known,
// moves it to sub.OrderID and refreshes its keys in the same statement.
func (r *subscriptionRepoImpl) Upsert(ctx context.Context, sub *model.PushSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.UpdatedAt = time.Now()

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"order_id",
			"p256dh",
			"auth",
			"expiration_time",
			"updated_at",
		}),
	}).Create(sub).Error
}

func (r *subscriptionRepoImpl) FindByOrderID(ctx context.Context, orderID uint) ([]*model.PushSubscription, error) {
	var subs []*model.PushSubscription
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&subs).
		Error

	if err != nil {
		return nil, err
	}

	return subs, nil
}

func (r *subscriptionRepoImpl) FindByEndpoint(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := r.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		First(&sub).
		Error

	if err != nil {
		return nil, err
	}

	return &sub, nil
}

// Delete is idempotent: removing an already removed subscription is not an error.
func (r *subscriptionRepoImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.PushSubscription{}).
		Error
}
