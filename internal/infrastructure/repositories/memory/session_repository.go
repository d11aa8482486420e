package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"sigrelay/internal/core/domain"
	"sigrelay/internal/core/ports"
)

type MemorySessionRepository struct {
	sessions map[domain.SessionID]*domain.CallSession
	mu       sync.RWMutex
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.CallSession),
	}
}

func (r *MemorySessionRepository) Open(ctx context.Context, caller, callee domain.Identity) (*domain.CallSession, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := domain.PairKey(caller, callee)
	if existing, ok := r.sessions[id]; ok {
		// At most one non-Ended session per pair; a repeated request
		// reuses it instead of creating a duplicate.
		return existing, false, nil
	}

	session := &domain.CallSession{
		ID:        id,
		PartyA:    caller,
		PartyB:    callee,
		State:     domain.SessionRequested,
		CreatedAt: time.Now(),
	}
	r.sessions[id] = session
	return session, true, nil
}

func (r *MemorySessionRepository) Accept(ctx context.Context, id domain.SessionID, accepter domain.Identity) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.State != domain.SessionRequested || !session.HasParty(accepter) {
		// Stale or spoofed accept is silently dropped.
		return false, nil
	}
	session.State = domain.SessionAccepted
	return true, nil
}

func (r *MemorySessionRepository) End(ctx context.Context, id domain.SessionID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false, nil
	}
	// Ended is terminal; the record is purged, not archived.
	delete(r.sessions, id)
	return true, nil
}

func (r *MemorySessionRepository) FindByParticipant(ctx context.Context, identity domain.Identity) ([]*domain.CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found []*domain.CallSession
	for _, session := range r.sessions {
		if session.HasParty(identity) {
			found = append(found, session)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (r *MemorySessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.CallSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *MemorySessionRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions), nil
}
