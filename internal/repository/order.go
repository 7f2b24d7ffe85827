package repository

import (
	"context"
	"fmt"
	"time"

	"order-status-tracker/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransitionGuard may veto a status change before it is written.
type TransitionGuard func(from, to model.OrderStatus) error

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByID(ctx context.Context, orderID uint) (*model.Order, error)
	GetStatus(ctx context.Context, orderID uint) (*model.Order, error)
	Exists(ctx context.Context, orderID uint) (bool, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID uint, status model.OrderStatus, guard TransitionGuard) (*model.Order, model.OrderStatus, error)
	Seed(ctx context.Context, taxRate decimal.Decimal) error
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
}

// Create inserts the order and its items.
func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	err := preloadItems(r.db.WithContext(ctx)).
		First(&order, orderID).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

// GetStatus loads the order row without items.
func (r *orderRepoImpl) GetStatus(ctx context.Context, orderID uint) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Select("id", "order_status", "status_version").
		First(&order, orderID).Error

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) Exists(ctx context.Context, orderID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Count(&count).Error

	return count > 0, err
}

// UpdateStatus sets the status and bumps the version by one, then re-reads the
// order with its items. It returns the status the order had before.
func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID uint, status model.OrderStatus, guard TransitionGuard) (*model.Order, model.OrderStatus, error) {
	db := tx.WithContext(ctx)

	var current model.Order
	if err := db.Select("id", "order_status").First(&current, orderID).Error; err != nil {
		return nil, "", err
	}

	if guard != nil {
		if err := guard(current.OrderStatus, status); err != nil {
			return nil, current.OrderStatus, err
		}
	}

	result := db.Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"order_status":   status,
			"status_version": gorm.Expr("status_version + 1"),
			"updated_at":     time.Now(),
		})

	if result.Error != nil {
		return nil, current.OrderStatus, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, current.OrderStatus, gorm.ErrRecordNotFound
	}

	var updated model.Order
	if err := preloadItems(db).First(&updated, orderID).Error; err != nil {
		return nil, current.OrderStatus, err
	}

	return &updated, current.OrderStatus, nil
}

const SeedOrderID = 456

// Seed inserts the demo order once. Running it again is a no-op.
func (r *orderRepoImpl) Seed(ctx context.Context, taxRate decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Order{}).Where("id = ?", SeedOrderID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		order := &model.Order{
			ID:            SeedOrderID,
			OrderStatus:   model.StatusNew,
			StatusVersion: 1,
			Items: []model.OrderItem{
				{Name: "Pav bhaji", Price: decimal.NewFromInt(180), Quantity: 1, ImgURL: "/pav-bhaji.webp"},
				{Name: "Hakka Noodles", Price: decimal.NewFromInt(150), Quantity: 1, ImgURL: "/hakka-noodles.jpeg"},
				{Name: "Paneer Tikka", Price: decimal.NewFromInt(250), Quantity: 1, ImgURL: "/paneer-tikka.jpg"},
			},
		}
		order.ApplyTotals(model.ComputeTotals(order.Items, taxRate))

		if err := tx.Create(order).Error; err != nil {
			return err
		}

		// the explicit id does not advance a postgres serial
		if stmt := resyncIDSequenceSQL(tx.Dialector.Name(), "orders"); stmt != "" {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("resync orders id sequence: %w", err)
			}
		}

		return tx.Create(&model.OrderStatusChange{
			OrderID:   SeedOrderID,
			ToStatus:  model.StatusNew,
			Version:   1,
			ChangedAt: time.Now(),
		}).Error
	})
}

// resyncIDSequenceSQL returns the statement that moves the id sequence of
// table past its highest id, or "" when the driver tracks that itself.
func resyncIDSequenceSQL(dialect, table string) string {
	if dialect != "postgres" {
		return ""
	}
	return fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), (SELECT MAX(id) FROM %[1]s))",
		table,
	)
}
