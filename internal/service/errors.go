package service

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidStatus       = errors.New("invalid order status")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrInvalidSubscription = errors.New("invalid push subscription")
)
