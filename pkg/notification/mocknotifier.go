package notification

import (
	"context"
	"sync"

	"github.com/tendant/shop-auth/pkg/account"
)

// SentNotification is one event captured by MockNotifier
type SentNotification struct {
	Type      NotificationType
	AccountID string
	To        string
	Token     string
}

// MockNotifier keeps every event in memory. Err, when set, is returned from every call after recording.
type MockNotifier struct {
	mu                sync.Mutex
	SentNotifications []SentNotification
	Err               error
}

func (m *MockNotifier) OnVerificationTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	return m.record(VerifyEmailNotification, recipient, token)
}

func (m *MockNotifier) OnPasswordResetTokenIssued(ctx context.Context, recipient account.PublicAccount, token string) error {
	return m.record(PasswordResetNotification, recipient, token)
}

func (m *MockNotifier) record(t NotificationType, recipient account.PublicAccount, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentNotifications = append(m.SentNotifications, SentNotification{
		Type:      t,
		AccountID: recipient.ID,
		To:        recipient.Email,
		Token:     token,
	})
	return m.Err
}

// LastToken returns the most recent token of type t sent to email.
func (m *MockNotifier) LastToken(t NotificationType, email string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.SentNotifications) - 1; i >= 0; i-- {
		n := m.SentNotifications[i]
		if n.Type == t && n.To == email {
			return n.Token, true
		}
	}
	return "", false
}

// Count returns how many events of type t were recorded.
func (m *MockNotifier) Count(t NotificationType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.SentNotifications {
		if s.Type == t {
			n++
		}
	}
	return n
}
