package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderStatus   OrderStatus     `gorm:"size:16;index;not null;default:NEW" json:"orderStatus"`
	StatusVersion uint64          `gorm:"not null;default:1" json:"statusVersion"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Tax           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"tax"`
	Total         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type OrderItem struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	OrderID  uint            `gorm:"index;not null" json:"orderId"`
	Name     string          `gorm:"size:128;not null" json:"name"`
	Price    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"` // unit price
	Quantity int32           `gorm:"not null" json:"quantity"`
	ImgURL   string          `gorm:"size:255" json:"imgUrl,omitempty"`
}

// MarshalJSON renders money fields as JSON numbers, e.g. 626.4.
func (o Order) MarshalJSON() ([]byte, error) {
	type order Order
	return json.Marshal(struct {
		order
		Subtotal json.Number `json:"subtotal"`
		Tax      json.Number `json:"tax"`
		Total    json.Number `json:"total"`
	}{
		order:    order(o),
		Subtotal: json.Number(o.Subtotal.String()),
		Tax:      json.Number(o.Tax.String()),
		Total:    json.Number(o.Total.String()),
	})
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type item OrderItem
	return json.Marshal(struct {
		item
		Price json.Number `json:"price"`
	}{
		item:  item(i),
		Price: json.Number(i.Price.String()),
	})
}

// PushSubscription is a browser push endpoint registered for one order.
// Endpoint is unique across all orders.
type PushSubscription struct {
	ID             string     `gorm:"primaryKey;size:36"`
	OrderID        uint       `gorm:"index;not null"`
	Order          *Order     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Endpoint       string     `gorm:"size:512;uniqueIndex;not null"`
	P256dh         string     `gorm:"size:255;not null"`
	Auth           string     `gorm:"size:255;not null"`
	ExpirationTime *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *PushSubscription) Expired(now time.Time) bool {
	return s.ExpirationTime != nil && !s.ExpirationTime.After(now)
}

// OrderStatusChange is the append-only audit trail of status updates.
type OrderStatusChange struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"index;not null" json:"orderId"`
	FromStatus OrderStatus `gorm:"size:16;not null" json:"fromStatus"`
	ToStatus   OrderStatus `gorm:"size:16;not null" json:"toStatus"`
	Version    uint64      `gorm:"not null" json:"version"`
	ChangedBy  string      `gorm:"size:64" json:"changedBy,omitempty"`
	ChangedAt  time.Time   `gorm:"not null" json:"changedAt"`
}

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&Order{},
		&OrderItem{},
		&PushSubscription{},
		&OrderStatusChange{},
	}
}
