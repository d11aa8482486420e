package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sigrelay/internal/core/domain"
	"sigrelay/internal/core/ports"
)

type MemoryEndpointRepository struct {
	endpoints map[domain.Identity]*domain.Endpoint
	mu        sync.RWMutex
}

func NewMemoryEndpointRepository() ports.EndpointRepository {
	return &MemoryEndpointRepository{
		endpoints: make(map[domain.Identity]*domain.Endpoint),
	}
}

func (r *MemoryEndpointRepository) Register(ctx context.Context, identity domain.Identity, conn domain.ConnID) (domain.ConnID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prev domain.ConnID
	replaced := false
	if existing, ok := r.endpoints[identity]; ok {
		prev = existing.Conn
		replaced = prev != conn
	}

	r.endpoints[identity] = &domain.Endpoint{
		Identity:     identity,
		Conn:         conn,
		RegisteredAt: time.Now(),
	}
	return prev, replaced, nil
}

func (r *MemoryEndpointRepository) Lookup(ctx context.Context, identity domain.Identity) (domain.ConnID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoint, ok := r.endpoints[identity]
	if !ok {
		return "", domain.ErrEndpointNotFound
	}
	return endpoint.Conn, nil
}

func (r *MemoryEndpointRepository) Unregister(ctx context.Context, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.endpoints, identity)
	return nil
}

func (r *MemoryEndpointRepository) ListIdentities(ctx context.Context) ([]domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]domain.Identity, 0, len(r.endpoints))
	for identity := range r.endpoints {
		identities = append(identities, identity)
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i] < identities[j] })
	return identities, nil
}

func (r *MemoryEndpointRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.endpoints), nil
}
