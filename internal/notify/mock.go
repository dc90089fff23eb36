package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Recorded is one captured notification.
type Recorded struct {
	UserID  uuid.UUID
	Event   string
	Payload map[string]any
}

// MockNotifier records notifications for assertions in tests. It can be
// configured to fail every delivery to exercise the best-effort contract.
type MockNotifier struct {
	mu       sync.Mutex
	sent     []Recorded
	FailWith error
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	if m.FailWith != nil {
		return m.FailWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Recorded{UserID: userID, Event: event, Payload: payload})
	return nil
}

func (m *MockNotifier) Sent() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Recorded, len(m.sent))
	copy(out, m.sent)
	return out
}
