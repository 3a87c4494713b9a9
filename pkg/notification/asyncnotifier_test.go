package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/shop-auth/pkg/account"
)

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	MockNotifier
	started chan struct{}
	release chan struct{}
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blockingNotifier) OnPasswordResetTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	b.started <- struct{}{}
	<-b.release
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.MockNotifier.OnPasswordResetTokenIssued(ctx, recipient, token)
}

func waitStarted(t *testing.T, b *blockingNotifier) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery did not start")
	}
}

func TestAsyncNotifierReturnsBeforeDelivery(t *testing.T) {
	next := newBlockingNotifier()
	n := NewAsyncNotifier(next)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.OnPasswordResetTokenIssued(reqCtx, alice, "reset-token"))
	require.NoError(t, n.OnVerificationTokenIssued(reqCtx, alice, "verify-token"))
	cancel()

	waitStarted(t, next)
	assert.Equal(t, 0, next.Count(PasswordResetNotification))

	close(next.release)
	require.NoError(t, n.Close(context.Background()))

	token, ok := next.LastToken(PasswordResetNotification, alice.Email)
	require.True(t, ok, "delivery must outlive the request context")
	assert.Equal(t, "reset-token", token)
	assert.Equal(t, 1, next.Count(VerifyEmailNotification))
}

func TestAsyncNotifierQueueFull(t *testing.T) {
	next := newBlockingNotifier()
	n := NewAsyncNotifier(next, WithQueueSize(1))

	require.NoError(t, n.OnPasswordResetTokenIssued(context.Background(), alice, "first"))
	waitStarted(t, next)
	require.NoError(t, n.OnPasswordResetTokenIssued(context.Background(), alice, "second"))

	err := n.OnPasswordResetTokenIssued(context.Background(), alice, "third")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, uint64(1), n.Dropped())

	close(next.release)
	require.NoError(t, n.Close(context.Background()))
	assert.Equal(t, 2, next.Count(PasswordResetNotification))
}

func TestAsyncNotifierClose(t *testing.T) {
	t.Run("rejects events after close", func(t *testing.T) {
		n := NewAsyncNotifier(&MockNotifier{})
		require.NoError(t, n.Close(context.Background()))
		require.NoError(t, n.Close(context.Background()))

		err := n.OnVerificationTokenIssued(context.Background(), alice, "tok")
		assert.ErrorIs(t, err, ErrNotifierClosed)
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		next := newBlockingNotifier()
		n := NewAsyncNotifier(next)
		t.Cleanup(func() { close(next.release) })

		require.NoError(t, n.OnPasswordResetTokenIssued(context.Background(), alice, "tok"))
		waitStarted(t, next)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, n.Close(ctx), context.DeadlineExceeded)
	})

	t.Run("delivery errors are not returned to the caller", func(t *testing.T) {
		next := &MockNotifier{Err: errors.New("smtp down")}
		n := NewAsyncNotifier(next)

		require.NoError(t, n.OnPasswordResetTokenIssued(context.Background(), alice, "tok"))
		require.NoError(t, n.Close(context.Background()))
		assert.Equal(t, 1, next.Count(PasswordResetNotification))
	})
}

func TestAsyncNotifierDeliveryTimeout(t *testing.T) {
	next := newBlockingNotifier()
	n := NewAsyncNotifier(next, WithDeliveryTimeout(10*time.Millisecond))

	require.NoError(t, n.OnPasswordResetTokenIssued(context.Background(), alice, "tok"))
	waitStarted(t, next)
	time.Sleep(30 * time.Millisecond)
	close(next.release)

	require.NoError(t, n.Close(context.Background()))
	assert.Equal(t, 0, next.Count(PasswordResetNotification))
}
