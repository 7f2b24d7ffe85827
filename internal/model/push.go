package model

import "time"

// Notification is the JSON body encrypted into a web push message.
type Notification struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  NotificationData `json:"data"`
}

type NotificationData struct {
	OrderID uint        `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Version uint64      `json:"version"`
}

func NewStatusNotification(o *Order) Notification {
	return Notification{
		Title: o.OrderStatus.Title(),
		Body:  o.OrderStatus.Description(),
		Data: NotificationData{
			OrderID: o.ID,
			Status:  o.OrderStatus,
			Version: o.StatusVersion,
		},
	}
}

// StatusEvent is published to live subscribers and the event exchange after
// a status change is persisted.
type StatusEvent struct {
	OrderID    uint        `json:"orderId"`
	OldStatus  OrderStatus `json:"oldStatus,omitempty"`
	NewStatus  OrderStatus `json:"status"`
	Version    uint64      `json:"version"`
	ChangedBy  string      `json:"changedBy,omitempty"`
	OccurredAt time.Time   `json:"timestamp"`
}
