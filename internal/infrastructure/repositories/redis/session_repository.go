package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"sigrelay/internal/core/domain"
	"sigrelay/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const sessionSetKey = "sigrelay:sessions"

type RedisSessionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client: client,
		prefix: "sigrelay:session:",
	}
}

func (r *RedisSessionRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionRepository) participantKey(identity domain.Identity) string {
	return fmt.Sprintf("sigrelay:participant:%s:sessions", identity)
}

func (r *RedisSessionRepository) get(ctx context.Context, id domain.SessionID) (*domain.CallSession, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var session domain.CallSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) save(ctx context.Context, session *domain.CallSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session in Redis: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) Open(ctx context.Context, caller, callee domain.Identity) (*domain.CallSession, bool, error) {
	id := domain.PairKey(caller, callee)

	if existing, err := r.get(ctx, id); err == nil {
		return existing, false, nil
	} else if err != domain.ErrSessionNotFound {
		return nil, false, err
	}

	session := &domain.CallSession{
		ID:        id,
		PartyA:    caller,
		PartyB:    callee,
		State:     domain.SessionRequested,
		CreatedAt: time.Now(),
	}
	if err := r.save(ctx, session); err != nil {
		return nil, false, err
	}
	if err := r.client.SAdd(ctx, sessionSetKey, string(id)).Err(); err != nil {
		return nil, false, fmt.Errorf("failed to add session to session set: %w", err)
	}
	for _, party := range []domain.Identity{caller, callee} {
		if err := r.client.SAdd(ctx, r.participantKey(party), string(id)).Err(); err != nil {
			return nil, false, fmt.Errorf("failed to index session for %s: %w", party, err)
		}
	}
	return session, true, nil
}

func (r *RedisSessionRepository) Accept(ctx context.Context, id domain.SessionID, accepter domain.Identity) (bool, error) {
	session, err := r.get(ctx, id)
	if err == domain.ErrSessionNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if session.State != domain.SessionRequested || !session.HasParty(accepter) {
		return false, nil
	}

	session.State = domain.SessionAccepted
	if err := r.save(ctx, session); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisSessionRepository) End(ctx context.Context, id domain.SessionID) (bool, error) {
	session, err := r.get(ctx, id)
	if err == domain.ErrSessionNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, party := range []domain.Identity{session.PartyA, session.PartyB} {
		if err := r.client.SRem(ctx, r.participantKey(party), string(id)).Err(); err != nil {
			return false, fmt.Errorf("failed to unindex session for %s: %w", party, err)
		}
	}
	if err := r.client.SRem(ctx, sessionSetKey, string(id)).Err(); err != nil {
		return false, fmt.Errorf("failed to remove session from session set: %w", err)
	}
	if err := r.client.Del(ctx, r.sessionKey(id)).Err(); err != nil {
		return false, fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	return true, nil
}

func (r *RedisSessionRepository) FindByParticipant(ctx context.Context, identity domain.Identity) ([]*domain.CallSession, error) {
	ids, err := r.client.SMembers(ctx, r.participantKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions of %s: %w", identity, err)
	}

	var sessions []*domain.CallSession
	for _, idStr := range ids {
		session, err := r.get(ctx, domain.SessionID(idStr))
		if err != nil {
			// Skip sessions that no longer exist
			continue
		}
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

func (r *RedisSessionRepository) Get(ctx context.Context, id domain.SessionID) (*domain.CallSession, error) {
	return r.get(ctx, id)
}

func (r *RedisSessionRepository) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, sessionSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions in Redis: %w", err)
	}
	return int(n), nil
}
