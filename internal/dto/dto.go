package dto

import (
	"order-status-tracker/internal/model"

	"github.com/shopspring/decimal"
)

type OrderItemRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int32           `json:"quantity"`
	ImgURL   string          `json:"imgUrl"`
}

type CreateOrderRequest struct {
	Items []*OrderItemRequest `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type OrderStatusResponse struct {
	OrderStatus   model.OrderStatus `json:"orderStatus"`
	StatusVersion uint64            `json:"statusVersion"`
}

type HistoryResponse struct {
	OrderID uint                       `json:"orderId"`
	Changes []*model.OrderStatusChange `json:"changes"`
}

type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscriptionRequest is the browser PushSubscription serialized by
// PushSubscription.toJSON(). ExpirationTime is epoch milliseconds or null.
type SubscriptionRequest struct {
	Endpoint       string           `json:"endpoint"`
	Keys           SubscriptionKeys `json:"keys"`
	ExpirationTime *float64         `json:"expirationTime"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type VAPIDKeyResponse struct {
	PublicKey      string `json:"publicKey"`
	VapidPublicKey string `json:"vapidPublicKey"`
}
