package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"order-status-tracker/internal/config"
	"order-status-tracker/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrSubscriptionGone means the push service no longer knows the endpoint
// (HTTP 404 or 410). The subscription should be removed.
var ErrSubscriptionGone = errors.New("push subscription gone")

// DeliveryError is any other non-2xx answer from the push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("push service error %d: %s", e.StatusCode, e.Body)
}

type PushClient interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload []byte) error
}

type webPushClientImpl struct {
	httpClient *http.Client
	vapid      config.VAPID
	ttl        int
	urgency    webpush.Urgency
}

func NewWebPushClient(vapid config.VAPID, push config.Push) PushClient {
	return &webPushClientImpl{
		httpClient: &http.Client{
			Timeout: push.Timeout,
		},
		vapid:   vapid,
		ttl:     push.TTL,
		urgency: webpush.Urgency(push.Urgency),
	}
}

func (c *webPushClientImpl) Send(ctx context.Context, sub *model.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      c.httpClient,
		Subscriber:      c.vapid.Subject,
		VAPIDPublicKey:  c.vapid.PublicKey,
		VAPIDPrivateKey: c.vapid.PrivateKey,
		TTL:             c.ttl,
		Urgency:         c.urgency,
	})
	if err != nil {
		return fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrSubscriptionGone, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// GenerateVAPIDKeys returns a fresh base64url key pair for VAPID_* settings.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
