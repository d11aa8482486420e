package domain

import "time"

// Identity is the stable, client-chosen identifier a peer registers under.
type Identity string

// ConnID is an opaque transport-level connection handle. It is allocated by
// the transport when a connection is accepted and changes on every reconnect.
type ConnID string

// Endpoint binds an identity to its current live connection. One live
// endpoint per identity; a re-register replaces the previous binding
// (last-writer-wins).
type Endpoint struct {
	Identity     Identity
	Conn         ConnID
	RegisteredAt time.Time
}
