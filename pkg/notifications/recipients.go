package notifications

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Recipient holds the contact details of a user.
type Recipient struct {
	Name  string
	Email string
	Phone string
}

// RecipientDirectory resolves contact details. It is owned by the user
// service; the delivery engine only reads from it.
type RecipientDirectory interface {
	Recipient(ctx context.Context, tenantID uuid.UUID, userID string) (*Recipient, error)
}

type recipientKey struct {
	tenantID uuid.UUID
	userID   string
}

// MemoryRecipients is a RecipientDirectory for tests and local runs.
type MemoryRecipients struct {
	mu    sync.RWMutex
	users map[recipientKey]Recipient
}

// NewMemoryRecipients creates an empty directory.
func NewMemoryRecipients() *MemoryRecipients {
	return &MemoryRecipients{users: make(map[recipientKey]Recipient)}
}

// Set stores contact data for a tenant user.
func (m *MemoryRecipients) Set(tenantID uuid.UUID, userID string, r Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[recipientKey{tenantID, userID}] = r
}

func (m *MemoryRecipients) Recipient(_ context.Context, tenantID uuid.UUID, userID string) (*Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.users[recipientKey{tenantID, userID}]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	return &r, nil
}
