package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Publisher hands planner results to the negotiation workflow.
type Publisher interface {
	PublishResult(ctx context.Context, requestID string, result any) (string, error)
	WaitForAck(publishID string, timeout time.Duration) (bool, error)
	Disconnect()
}

var _ Publisher = (*PahoClient)(nil)

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Messages map[string]any
	Fail     bool
	mu       sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Messages: make(map[string]any)}
}

// PublishResult records the result or returns an error if configured to fail.
func (m *MockPublisher) PublishResult(_ context.Context, requestID string, result any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", fmt.Errorf("publish failed")
	}
	m.Messages[requestID] = result
	return "pub-" + requestID, nil
}

// WaitForAck acknowledges every recorded publish immediately.
func (m *MockPublisher) WaitForAck(publishID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.Messages {
		if "pub-"+id == publishID {
			return true, nil
		}
	}
	return false, fmt.Errorf("unknown publish %s", publishID)
}

// Disconnect is a no-op.
func (m *MockPublisher) Disconnect() {}
