package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"order-status-tracker/internal/dto"
	"order-status-tracker/internal/model"

	"github.com/gorilla/websocket"
)

// HTTPStatusFetcher polls GET {baseURL}/orders/{id}/status.
type HTTPStatusFetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPStatusFetcher(baseURL string, timeout time.Duration) *HTTPStatusFetcher {
	return &HTTPStatusFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (f *HTTPStatusFetcher) FetchStatus(ctx context.Context, orderID string) (Update, error) {
	endpoint := fmt.Sprintf("%s/orders/%s/status", f.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Update{}, fmt.Errorf("create status request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Update{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Update{}, fmt.Errorf("status request: status=%d body=%s", resp.StatusCode, string(b))
	}

	var body dto.OrderStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Update{}, fmt.Errorf("decode status response: %w", err)
	}

	return Update{
		OrderID: orderID,
		Status:  body.OrderStatus,
		Version: body.StatusVersion,
		Source:  SourcePoll,
	}, nil
}

// WSPushChannel follows GET {baseURL}/orders/{id}/live over a WebSocket.
type WSPushChannel struct {
	baseURL string
	dialer  *websocket.Dialer
	log     *slog.Logger
}

func NewWSPushChannel(baseURL string, log *slog.Logger) *WSPushChannel {
	return &WSPushChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     log,
	}
}

func toWebSocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

func (p *WSPushChannel) Subscribe(ctx context.Context, orderID string) (<-chan Update, error) {
	endpoint := fmt.Sprintf("%s/orders/%s/live", toWebSocketURL(p.baseURL), url.PathEscape(orderID))

	conn, resp, err := p.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrPushUnsupported, resp.Status)
		}
		return nil, fmt.Errorf("dial live channel: %w", err)
	}

	updates := make(chan Update, 8)
	go func() {
		defer close(updates)
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()
		defer conn.Close()

		for {
			var event model.StatusEvent
			if err := conn.ReadJSON(&event); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					p.log.Warn("live channel read failed", "order_id", orderID, "error", err)
				}
				return
			}

			u := Update{
				OrderID: strconv.FormatUint(uint64(event.OrderID), 10),
				Status:  event.NewStatus,
				Version: event.Version,
				Source:  SourcePush,
			}
			select {
			case updates <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, nil
}
