package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"order-status-tracker/internal/client"
	"order-status-tracker/internal/dto"
	"order-status-tracker/internal/logger"
	"order-status-tracker/internal/metrics"
	"order-status-tracker/internal/model"
	"order-status-tracker/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentPush struct {
	Endpoint string
	Payload  model.Notification
}

// fakePushClient answers per endpoint; endpoints without an entry succeed.
type fakePushClient struct {
	mu        sync.Mutex
	responses map[string]error
	sent      []sentPush
	delay     time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakePushClient() *fakePushClient {
	return &fakePushClient{responses: map[string]error{}}
}

func (f *fakePushClient) Send(ctx context.Context, sub *model.PushSubscription, payload []byte) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	var msg model.Notification
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPush{Endpoint: sub.Endpoint, Payload: msg})
	return f.responses[sub.Endpoint]
}

func (f *fakePushClient) Sent() []sentPush {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPush(nil), f.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.StatusEvent
	err    error
}

func (p *recordingPublisher) PublishStatus(ctx context.Context, event model.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type failingSubRepo struct {
	repository.SubscriptionRepository
}

func (failingSubRepo) FindByOrderID(ctx context.Context, orderID uint) ([]*model.PushSubscription, error) {
	return nil, errors.New("connection reset")
}

type fixture struct {
	db        *gorm.DB
	orders    repository.OrderRepository
	subs      repository.SubscriptionRepository
	push      *fakePushClient
	publisher *recordingPublisher
	notifier  NotificationService
	orderSvc  OrderService
	subSvc    SubscriptionService
}

func newFixture(t *testing.T, settings OrderSettings) *fixture {
	t.Helper()

	db, err := client.InitDBClient("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, client.Migrate(db))
	t.Cleanup(func() { _ = client.CloseDB(db) })

	if settings.TaxRate.IsZero() {
		settings.TaxRate = decimal.RequireFromString("0.08")
	}

	log := logger.Discard()
	m := metrics.New()
	f := &fixture{
		db:        db,
		orders:    repository.NewOrderRepository(db),
		subs:      repository.NewSubscriptionRepository(db),
		push:      newFakePushClient(),
		publisher: &recordingPublisher{},
	}
	require.NoError(t, f.orders.Seed(context.Background(), settings.TaxRate))

	f.notifier = NewNotificationService(f.subs, f.push, 4, m, log)
	f.orderSvc = NewOrderService(db, f.orders, repository.NewStatusHistoryRepository(db), f.notifier, settings, m, log, f.publisher)
	f.subSvc = NewSubscriptionService(f.orders, f.subs, "BPublicKey", log)
	return f
}

func (f *fixture) subscribe(t *testing.T, orderID uint, endpoint string) {
	t.Helper()
	require.NoError(t, f.subSvc.Register(context.Background(), orderID, &dto.SubscriptionRequest{
		Endpoint: endpoint,
		Keys:     dto.SubscriptionKeys{P256dh: "p256dh", Auth: "auth"},
	}))
}

func (f *fixture) subscriptionCount(t *testing.T, orderID uint) int {
	t.Helper()
	subs, err := f.subs.FindByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return len(subs)
}

func TestFanoutWithoutSubscriptions(t *testing.T) {
	f := newFixture(t, OrderSettings{})

	res, err := f.notifier.Fanout(context.Background(), 456, model.Notification{Title: "x"})
	require.NoError(t, err)
	assert.True(t, res.NoSubscribers())
	assert.Zero(t, res.Attempted)
	assert.Empty(t, f.push.Sent())
}

func TestFanoutTagsEachOutcome(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	f.subscribe(t, 456, "https://push.example/ok")
	f.subscribe(t, 456, "https://push.example/gone")
	f.subscribe(t, 456, "https://push.example/flaky")
	f.push.responses["https://push.example/gone"] = fmt.Errorf("%w: status 410", client.ErrSubscriptionGone)
	f.push.responses["https://push.example/flaky"] = &client.DeliveryError{StatusCode: 503}

	res, err := f.notifier.Fanout(context.Background(), 456, model.Notification{Title: "Ready for Pickup"})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Pruned)
	assert.Equal(t, 1, res.Dropped)
	assert.Len(t, f.push.Sent(), 3)

	// only the permanently gone endpoint is removed
	_, err = f.subs.FindByEndpoint(context.Background(), "https://push.example/gone")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Equal(t, 2, f.subscriptionCount(t, 456))
}

func TestFanoutPrunesExpiredWithoutAttempt(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	past := float64(time.Now().Add(-time.Hour).UnixMilli())
	require.NoError(t, f.subSvc.Register(context.Background(), 456, &dto.SubscriptionRequest{
		Endpoint:       "https://push.example/old",
		Keys:           dto.SubscriptionKeys{P256dh: "p", Auth: "a"},
		ExpirationTime: &past,
	}))

	res, err := f.notifier.Fanout(context.Background(), 456, model.Notification{})
	require.NoError(t, err)

	assert.Zero(t, res.Attempted)
	assert.Equal(t, 1, res.Pruned)
	assert.Empty(t, f.push.Sent())
	assert.Zero(t, f.subscriptionCount(t, 456))
}

func TestFanoutBoundsConcurrency(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	for i := 0; i < 10; i++ {
		f.subscribe(t, 456, fmt.Sprintf("https://push.example/%d", i))
	}
	f.push.delay = 20 * time.Millisecond

	res, err := f.notifier.Fanout(context.Background(), 456, model.Notification{})
	require.NoError(t, err)

	assert.Equal(t, 10, res.Delivered)
	assert.LessOrEqual(t, f.push.maxInFlight.Load(), int32(4))
	assert.Greater(t, f.push.maxInFlight.Load(), int32(1))
}

func TestFanoutLoadFailure(t *testing.T) {
	n := NewNotificationService(failingSubRepo{}, newFakePushClient(), 2, nil, logger.Discard())

	_, err := n.Fanout(context.Background(), 456, model.Notification{})
	assert.Error(t, err)
}

func TestUpdateStatusNotifiesSubscribers(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	f.subscribe(t, 456, "https://push.example/a")
	f.subscribe(t, 456, "https://push.example/b")

	order, err := f.orderSvc.UpdateStatus(context.Background(), 456, "READY", "staff-1")
	require.NoError(t, err)
	f.notifier.Wait()

	assert.Equal(t, model.StatusReady, order.OrderStatus)
	assert.Equal(t, uint64(2), order.StatusVersion)
	assert.Len(t, order.Items, 3)

	sent := f.push.Sent()
	require.Len(t, sent, 2)
	for _, s := range sent {
		assert.Equal(t, "Ready for Pickup", s.Payload.Title)
		assert.Equal(t, uint(456), s.Payload.Data.OrderID)
		assert.Equal(t, model.StatusReady, s.Payload.Data.Status)
		assert.Equal(t, uint64(2), s.Payload.Data.Version)
	}

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, model.StatusNew, f.publisher.events[0].OldStatus)
	assert.Equal(t, model.StatusReady, f.publisher.events[0].NewStatus)
	assert.Equal(t, "staff-1", f.publisher.events[0].ChangedBy)

	history, err := f.orderSvc.History(context.Background(), 456)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.StatusReady, history[1].ToStatus)
	assert.Equal(t, "staff-1", history[1].ChangedBy)
}

func TestUpdateStatusMissingOrderSendsNothing(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	f.subscribe(t, 456, "https://push.example/a")

	_, err := f.orderSvc.UpdateStatus(context.Background(), 999, "READY", "")
	f.notifier.Wait()

	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.Empty(t, f.push.Sent())
	assert.Empty(t, f.publisher.events)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, OrderSettings{})

	_, err := f.orderSvc.UpdateStatus(context.Background(), 456, "DELIVERED", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatusSurvivesDeliveryFailures(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	f.subscribe(t, 456, "https://push.example/a")
	f.push.responses["https://push.example/a"] = errors.New("dial tcp: i/o timeout")
	f.publisher.err = errors.New("broker down")

	order, err := f.orderSvc.UpdateStatus(context.Background(), 456, "COOKING", "")
	f.notifier.Wait()

	require.NoError(t, err)
	assert.Equal(t, model.StatusCooking, order.OrderStatus)
	assert.Equal(t, 1, f.subscriptionCount(t, 456))
}

func TestUpdateStatusSurvivesSubscriptionLoadFailure(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	notifier := NewNotificationService(failingSubRepo{}, f.push, 2, nil, logger.Discard())
	svc := NewOrderService(f.db, f.orders, repository.NewStatusHistoryRepository(f.db), notifier,
		OrderSettings{TaxRate: decimal.RequireFromString("0.08")}, nil, logger.Discard())

	order, err := svc.UpdateStatus(context.Background(), 456, "COOKING", "")
	notifier.Wait()

	require.NoError(t, err)
	assert.Equal(t, model.StatusCooking, order.OrderStatus)
}

func TestUpdateStatusAnyTransitionByDefault(t *testing.T) {
	f := newFixture(t, OrderSettings{})

	_, err := f.orderSvc.UpdateStatus(context.Background(), 456, "COMPLETED", "")
	require.NoError(t, err)
	order, err := f.orderSvc.UpdateStatus(context.Background(), 456, "NEW", "")
	require.NoError(t, err)
	f.notifier.Wait()

	assert.Equal(t, model.StatusNew, order.OrderStatus)
	assert.Equal(t, uint64(3), order.StatusVersion)
}

func TestUpdateStatusEnforcedTransitions(t *testing.T) {
	f := newFixture(t, OrderSettings{EnforceTransitions: true})
	f.subscribe(t, 456, "https://push.example/a")

	_, err := f.orderSvc.UpdateStatus(context.Background(), 456, "COOKING", "")
	require.NoError(t, err)

	_, err = f.orderSvc.UpdateStatus(context.Background(), 456, "NEW", "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	f.notifier.Wait()

	status, err := f.orderSvc.GetStatus(context.Background(), 456)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCooking, status.OrderStatus)
	assert.Equal(t, uint64(2), status.StatusVersion)
	assert.Len(t, f.push.Sent(), 1)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t, OrderSettings{})

	order, err := f.orderSvc.CreateOrder(context.Background(), []*dto.OrderItemRequest{
		{Name: "Masala Dosa", Price: decimal.NewFromInt(120), Quantity: 2},
		{Name: "Lassi", Price: decimal.RequireFromString("60.50"), Quantity: 1},
	})
	require.NoError(t, err)

	assert.NotZero(t, order.ID)
	assert.Equal(t, model.StatusNew, order.OrderStatus)
	assert.Equal(t, "300.5", order.Subtotal.String())
	assert.Equal(t, "24.04", order.Tax.String())
	assert.Equal(t, "324.54", order.Total.String())

	loaded, err := f.orderSvc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Items, 2)

	history, err := f.orderSvc.History(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, OrderSettings{})

	cases := [][]*dto.OrderItemRequest{
		nil,
		{{Name: "", Price: decimal.NewFromInt(1), Quantity: 1}},
		{{Name: "Tea", Price: decimal.NewFromInt(1), Quantity: 0}},
		{{Name: "Tea", Price: decimal.NewFromInt(-1), Quantity: 1}},
	}
	for _, items := range cases {
		_, err := f.orderSvc.CreateOrder(context.Background(), items)
		assert.ErrorIs(t, err, ErrInvalidOrder)
	}
}

func TestGetOrderAndStatusNotFound(t *testing.T) {
	f := newFixture(t, OrderSettings{})

	_, err := f.orderSvc.GetOrder(context.Background(), 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.orderSvc.GetStatus(context.Background(), 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.orderSvc.History(context.Background(), 999)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRegisterRepointsEndpoint(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	other, err := f.orderSvc.CreateOrder(context.Background(), []*dto.OrderItemRequest{
		{Name: "Tea", Price: decimal.NewFromInt(20), Quantity: 1},
	})
	require.NoError(t, err)

	f.subscribe(t, 456, "https://push.example/a")
	f.subscribe(t, other.ID, "https://push.example/a")

	assert.Zero(t, f.subscriptionCount(t, 456))
	assert.Equal(t, 1, f.subscriptionCount(t, other.ID))

	_, err = f.orderSvc.UpdateStatus(context.Background(), 456, "READY", "")
	require.NoError(t, err)
	f.notifier.Wait()
	assert.Empty(t, f.push.Sent())
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, OrderSettings{})
	ctx := context.Background()

	err := f.subSvc.Register(ctx, 456, &dto.SubscriptionRequest{Endpoint: "not a url", Keys: dto.SubscriptionKeys{P256dh: "p", Auth: "a"}})
	assert.ErrorIs(t, err, ErrInvalidSubscription)

	err = f.subSvc.Register(ctx, 456, &dto.SubscriptionRequest{Endpoint: "https://push.example/a"})
	assert.ErrorIs(t, err, ErrInvalidSubscription)

	err = f.subSvc.Register(ctx, 999, &dto.SubscriptionRequest{Endpoint: "https://push.example/a", Keys: dto.SubscriptionKeys{P256dh: "p", Auth: "a"}})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	assert.Equal(t, "BPublicKey", f.subSvc.VAPIDPublicKey())
}
