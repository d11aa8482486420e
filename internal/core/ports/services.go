package ports

import (
	"context"

	"sigrelay/internal/core/domain"
)

// SignalService is the message router and lifecycle manager. It is a pure
// dispatcher: inbound message plus sender in, effects out. All socket I/O
// stays in the transport.
type SignalService interface {
	// Register binds an identity to its connection and broadcasts the
	// updated presence set.
	Register(ctx context.Context, conn domain.ConnID, identity domain.Identity) (domain.Effects, error)
	// HandleMessage routes one inbound signaling message from sender.
	// An unreachable target resolves to empty effects, never an error.
	HandleMessage(ctx context.Context, sender domain.Identity, msg domain.Inbound) (domain.Effects, error)
	// Disconnect runs full cleanup for a departing identity: close its
	// sessions, notify counterparties, drop presence and broadcast the
	// departure. It is a no-op when the registry no longer maps identity to
	// conn (the binding was superseded by a re-register).
	Disconnect(ctx context.Context, conn domain.ConnID, identity domain.Identity) (domain.Effects, error)
}
