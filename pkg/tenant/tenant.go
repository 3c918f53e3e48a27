package tenant

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tenant is the minimal tenant record the delivery engine needs.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserDirectory lists tenant members. It is owned by the membership service;
// the delivery engine only reads from it for tenant-wide fan-out.
type UserDirectory interface {
	ListUserIDs(ctx context.Context, tenantID uuid.UUID) ([]string, error)
}

// MemoryDirectory is an in-process UserDirectory for development and tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[uuid.UUID][]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{members: make(map[uuid.UUID][]string)}
}

// Add registers users as members of the tenant. Duplicates are ignored.
func (d *MemoryDirectory) Add(tenantID uuid.UUID, userIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range userIDs {
		if !slices.Contains(d.members[tenantID], id) {
			d.members[tenantID] = append(d.members[tenantID], id)
		}
	}
}

func (d *MemoryDirectory) ListUserIDs(_ context.Context, tenantID uuid.UUID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.members[tenantID]), nil
}
