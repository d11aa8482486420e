package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyIsOrderInsensitive(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.Equal(t, SessionID("alice|bob"), PairKey("bob", "alice"))
}

func TestPairKeyDistinctPairs(t *testing.T) {
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func TestHasParty(t *testing.T) {
	s := &CallSession{ID: PairKey("alice", "bob"), PartyA: "alice", PartyB: "bob"}

	assert.True(t, s.HasParty("alice"))
	assert.True(t, s.HasParty("bob"))
	assert.False(t, s.HasParty("carol"))
}

func TestOtherParty(t *testing.T) {
	s := &CallSession{ID: PairKey("alice", "bob"), PartyA: "alice", PartyB: "bob"}

	other, ok := s.OtherParty("alice")
	assert.True(t, ok)
	assert.Equal(t, Identity("bob"), other)

	other, ok = s.OtherParty("bob")
	assert.True(t, ok)
	assert.Equal(t, Identity("alice"), other)

	_, ok = s.OtherParty("carol")
	assert.False(t, ok)
}
