// Package tracker keeps a customer's view of one order in sync with the
// server. It listens on a push channel when one can be set up and polls the
// status endpoint otherwise, applying only updates newer than what it shows.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"order-status-tracker/internal/model"
)

const (
	DefaultForegroundInterval = 30 * time.Second
	DefaultBackgroundInterval = 60 * time.Second
)

var (
	ErrPushUnsupported  = errors.New("push notifications are not supported")
	ErrPermissionDenied = errors.New("notification permission denied")
)

type Source string

const (
	SourcePoll Source = "poll"
	SourcePush Source = "push"
)

// Update is one observation of the order status. Version 0 means the sender
// did not carry a version.
type Update struct {
	OrderID string
	Status  model.OrderStatus
	Version uint64
	Source  Source
}

// State is what the customer currently sees. Known is false until the first
// successful sync.
type State struct {
	Status    model.OrderStatus
	Version   uint64
	Known     bool
	Source    Source
	UpdatedAt time.Time
}

type StatusFetcher interface {
	FetchStatus(ctx context.Context, orderID string) (Update, error)
}

// PushChannel delivers updates until ctx is done or the connection drops, at
// which point the returned channel is closed.
type PushChannel interface {
	Subscribe(ctx context.Context, orderID string) (<-chan Update, error)
}

type Options struct {
	ForegroundInterval time.Duration
	BackgroundInterval time.Duration
	OnChange           func(State)
	Logger             *slog.Logger
}

type Session struct {
	orderID string
	fetcher StatusFetcher
	push    PushChannel
	opts    Options
	log     *slog.Logger

	visibility chan struct{}

	mu         sync.Mutex
	state      State
	visible    bool
	pushActive bool
}

// NewSession creates a session for orderID. push may be nil, in which case
// the session only polls.
func NewSession(orderID string, fetcher StatusFetcher, push PushChannel, opts Options) *Session {
	if opts.ForegroundInterval <= 0 {
		opts.ForegroundInterval = DefaultForegroundInterval
	}
	if opts.BackgroundInterval <= 0 {
		opts.BackgroundInterval = DefaultBackgroundInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		orderID:    orderID,
		fetcher:    fetcher,
		push:       push,
		opts:       opts,
		log:        log.With("order_id", orderID),
		visibility: make(chan struct{}, 1),
		visible:    true,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PushActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushActive
}

// SetVisible switches between the foreground and background poll interval.
func (s *Session) SetVisible(visible bool) {
	s.mu.Lock()
	changed := s.visible != visible
	s.visible = visible
	s.mu.Unlock()

	if changed {
		select {
		case s.visibility <- struct{}{}:
		default:
		}
	}
}

func (s *Session) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible {
		return s.opts.ForegroundInterval
	}
	return s.opts.BackgroundInterval
}

func (s *Session) setPushActive(active bool) {
	s.mu.Lock()
	s.pushActive = active
	s.mu.Unlock()
}

// Apply merges u into the displayed state and reports whether it changed.
// Versioned updates older than or equal to the displayed version are
// dropped. Unversioned updates overwrite.
func (s *Session) Apply(u Update) bool {
	if u.OrderID != "" && u.OrderID != s.orderID {
		return false
	}
	if !u.Status.Valid() {
		return false
	}

	s.mu.Lock()
	cur := s.state
	switch {
	case !cur.Known:
	case u.Version != 0 && u.Version <= cur.Version:
		s.mu.Unlock()
		return false
	case u.Version == 0 && u.Status == cur.Status:
		s.mu.Unlock()
		return false
	}

	next := State{
		Status:    u.Status,
		Version:   cur.Version,
		Known:     true,
		Source:    u.Source,
		UpdatedAt: time.Now(),
	}
	if u.Version != 0 {
		next.Version = u.Version
	}
	s.state = next
	s.mu.Unlock()

	s.log.Debug("order status changed", "status", next.Status, "version", next.Version, "source", next.Source)
	if s.opts.OnChange != nil {
		s.opts.OnChange(next)
	}
	return true
}

func (s *Session) poll(ctx context.Context) {
	u, err := s.fetcher.FetchStatus(ctx, s.orderID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("poll order status", "error", err)
		}
		return
	}
	u.Source = SourcePoll
	s.Apply(u)
}

func (s *Session) subscribe(ctx context.Context) <-chan Update {
	if s.push == nil {
		return nil
	}

	updates, err := s.push.Subscribe(ctx, s.orderID)
	if err != nil {
		s.log.Info("push unavailable, polling instead", "error", err)
		return nil
	}

	s.setPushActive(true)
	s.log.Info("push active, polling suspended")
	return updates
}

// Run syncs once, tries to set up push, then either consumes push updates or
// polls until ctx is done. A second sync right after push is established
// picks up changes made while the subscription was being set up.
func (s *Session) Run(ctx context.Context) error {
	s.poll(ctx)
	updates := s.subscribe(ctx)
	if updates != nil {
		s.poll(ctx)
	}

	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		var tick <-chan time.Time
		if updates == nil {
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case u, ok := <-updates:
			if !ok {
				s.setPushActive(false)
				updates = nil
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Info("push channel closed, resuming polling")
				s.poll(ctx)
				timer.Reset(s.interval())
				continue
			}
			u.Source = SourcePush
			s.Apply(u)

		case <-tick:
			s.poll(ctx)
			timer.Reset(s.interval())

		case <-s.visibility:
			if updates == nil {
				timer.Reset(s.interval())
			}
		}
	}
}
