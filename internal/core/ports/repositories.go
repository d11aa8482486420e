package ports

import (
	"context"

	"sigrelay/internal/core/domain"
)

// EndpointRepository is the presence registry: a bidirectional mapping
// between a stable identity and its current live connection handle.
type EndpointRepository interface {
	// Register binds identity to conn, replacing any prior binding
	// (last-writer-wins). It returns the superseded connection handle, if
	// any, so the transport can decide to close it; the registry itself
	// never closes connections.
	Register(ctx context.Context, identity domain.Identity, conn domain.ConnID) (prev domain.ConnID, replaced bool, err error)
	// Lookup resolves an identity to its live connection. Returns
	// domain.ErrEndpointNotFound when the identity is not registered.
	Lookup(ctx context.Context, identity domain.Identity) (domain.ConnID, error)
	// Unregister removes the binding if present; absent is a no-op.
	Unregister(ctx context.Context, identity domain.Identity) error
	// ListIdentities returns a sorted snapshot of registered identities.
	ListIdentities(ctx context.Context) ([]domain.Identity, error)
	Count(ctx context.Context) (int, error)
}

// SessionRepository is the call session table, keyed by the canonical
// unordered pair of identities.
type SessionRepository interface {
	// Open creates a session in Requested state for {caller, callee}, or
	// returns the existing non-Ended session for that pair (idempotent
	// re-request). created reports whether a new session was made.
	Open(ctx context.Context, caller, callee domain.Identity) (session *domain.CallSession, created bool, err error)
	// Accept transitions Requested -> Accepted, but only when the session
	// exists, is in Requested and accepter is one of its parties. Any other
	// combination is a no-op; accepted reports whether the transition
	// happened.
	Accept(ctx context.Context, id domain.SessionID, accepter domain.Identity) (accepted bool, err error)
	// End removes the session. Ending an absent session is a no-op; ended
	// reports whether a live session was actually removed.
	End(ctx context.Context, id domain.SessionID) (ended bool, err error)
	// FindByParticipant returns all non-Ended sessions the identity is a
	// party of. Used by disconnect cleanup.
	FindByParticipant(ctx context.Context, identity domain.Identity) ([]*domain.CallSession, error)
	Get(ctx context.Context, id domain.SessionID) (*domain.CallSession, error)
	Count(ctx context.Context) (int, error)
}
