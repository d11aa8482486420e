package domain

import "time"

type SessionID string

type SessionState string

const (
	SessionRequested SessionState = "requested"
	SessionAccepted  SessionState = "accepted"
	SessionEnded     SessionState = "ended"
)

// CallSession is one in-flight call negotiation between exactly two
// identities. It never stores a connection handle, so it survives a peer's
// reconnection and is only torn down by end-call, rejection or a party's
// full disconnect.
type CallSession struct {
	ID        SessionID
	PartyA    Identity
	PartyB    Identity
	State     SessionState
	CreatedAt time.Time
}

// PairKey computes the canonical session ID for an unordered identity pair.
// The two identities are sorted before joining so that lookups from either
// party resolve to the same session regardless of who initiated.
func PairKey(a, b Identity) SessionID {
	if b < a {
		a, b = b, a
	}
	return SessionID(string(a) + "|" + string(b))
}

// HasParty reports whether id is one of the session's two parties.
func (s *CallSession) HasParty(id Identity) bool {
	return s.PartyA == id || s.PartyB == id
}

// OtherParty returns the counterparty of id. The second return value is
// false when id is not a party of the session.
func (s *CallSession) OtherParty(id Identity) (Identity, bool) {
	switch id {
	case s.PartyA:
		return s.PartyB, true
	case s.PartyB:
		return s.PartyA, true
	}
	return "", false
}
