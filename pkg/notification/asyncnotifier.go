package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/shop-auth/pkg/account"
)

var (
	ErrQueueFull      = errors.New("notification queue is full")
	ErrNotifierClosed = errors.New("notifier is closed")
)

const (
	DefaultQueueSize       = 256
	DefaultDeliveryTimeout = 30 * time.Second
)

type delivery struct {
	ctx       context.Context
	typ       NotificationType
	recipient account.PublicAccount
	token     string
}

// AsyncNotifier queues events for a single background worker that forwards them to the wrapped
// notifier. Callers return as soon as the event is queued, so request latency does not depend on
// whether a message was sent.
type AsyncNotifier struct {
	next      AccountNotifier
	logger    *slog.Logger
	timeout   time.Duration
	ch        chan delivery
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

type AsyncOption func(*AsyncNotifier)

func WithQueueSize(size int) AsyncOption {
	return func(a *AsyncNotifier) {
		if size > 0 {
			a.ch = make(chan delivery, size)
		}
	}
}

func WithDeliveryTimeout(timeout time.Duration) AsyncOption {
	return func(a *AsyncNotifier) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

func WithAsyncLogger(logger *slog.Logger) AsyncOption {
	return func(a *AsyncNotifier) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAsyncNotifier(next AccountNotifier, opts ...AsyncOption) *AsyncNotifier {
	a := &AsyncNotifier{
		next:    next,
		logger:  slog.Default(),
		timeout: DefaultDeliveryTimeout,
		ch:      make(chan delivery, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "notification.async")

	a.wg.Add(1)
	go a.run()
	return a
}

func (a *AsyncNotifier) OnVerificationTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	return a.enqueue(ctx, VerifyEmailNotification, recipient, token)
}

func (a *AsyncNotifier) OnPasswordResetTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	return a.enqueue(ctx, PasswordResetNotification, recipient, token)
}

// Dropped returns how many events were discarded because the queue was full.
func (a *AsyncNotifier) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered, or for ctx to end.
func (a *AsyncNotifier) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.done)
	})

	finished := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncNotifier) enqueue(ctx context.Context, typ NotificationType, recipient account.PublicAccount, token string) error {
	if a.closed.Load() {
		return ErrNotifierClosed
	}

	// the request context is cancelled when the response is written
	d := delivery{ctx: context.WithoutCancel(ctx), typ: typ, recipient: recipient, token: token}
	select {
	case a.ch <- d:
		return nil
	case <-a.done:
		return ErrNotifierClosed
	default:
		a.dropped.Add(1)
		a.logger.Warn("Notification queue full, dropping event", "type", typ, "account_id", recipient.ID)
		return ErrQueueFull
	}
}

func (a *AsyncNotifier) run() {
	defer a.wg.Done()

	for {
		select {
		case d := <-a.ch:
			a.deliver(d)
		case <-a.done:
			for {
				select {
				case d := <-a.ch:
					a.deliver(d)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncNotifier) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(d.ctx, a.timeout)
	defer cancel()

	var err error
	switch d.typ {
	case VerifyEmailNotification:
		err = a.next.OnVerificationTokenIssued(ctx, d.recipient, d.token)
	case PasswordResetNotification:
		err = a.next.OnPasswordResetTokenIssued(ctx, d.recipient, d.token)
	}
	if err != nil {
		a.logger.Error("Failed to deliver notification", "type", d.typ, "account_id", d.recipient.ID, "err", err)
	}
}
