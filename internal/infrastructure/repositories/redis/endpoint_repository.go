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

const endpointSetKey = "sigrelay:endpoints"

type RedisEndpointRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisEndpointRepository(client *redis.Client) ports.EndpointRepository {
	return &RedisEndpointRepository{
		client: client,
		prefix: "sigrelay:endpoint:",
	}
}

func (r *RedisEndpointRepository) endpointKey(identity domain.Identity) string {
	return r.prefix + string(identity)
}

func (r *RedisEndpointRepository) Register(ctx context.Context, identity domain.Identity, conn domain.ConnID) (domain.ConnID, bool, error) {
	var prev domain.ConnID
	replaced := false

	key := r.endpointKey(identity)
	if data, err := r.client.Get(ctx, key).Result(); err == nil {
		var existing domain.Endpoint
		if err := json.Unmarshal([]byte(data), &existing); err == nil {
			prev = existing.Conn
			replaced = prev != conn
		}
	} else if err != redis.Nil {
		return "", false, fmt.Errorf("failed to get endpoint from Redis: %w", err)
	}

	endpoint := domain.Endpoint{
		Identity:     identity,
		Conn:         conn,
		RegisteredAt: time.Now(),
	}
	data, err := json.Marshal(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal endpoint: %w", err)
	}
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return "", false, fmt.Errorf("failed to set endpoint in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, endpointSetKey, string(identity)).Err(); err != nil {
		return "", false, fmt.Errorf("failed to add identity to endpoint set: %w", err)
	}

	return prev, replaced, nil
}

func (r *RedisEndpointRepository) Lookup(ctx context.Context, identity domain.Identity) (domain.ConnID, error) {
	data, err := r.client.Get(ctx, r.endpointKey(identity)).Result()
	if err == redis.Nil {
		return "", domain.ErrEndpointNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get endpoint from Redis: %w", err)
	}

	var endpoint domain.Endpoint
	if err := json.Unmarshal([]byte(data), &endpoint); err != nil {
		return "", fmt.Errorf("failed to unmarshal endpoint: %w", err)
	}
	return endpoint.Conn, nil
}

func (r *RedisEndpointRepository) Unregister(ctx context.Context, identity domain.Identity) error {
	if err := r.client.SRem(ctx, endpointSetKey, string(identity)).Err(); err != nil {
		return fmt.Errorf("failed to remove identity from endpoint set: %w", err)
	}
	if err := r.client.Del(ctx, r.endpointKey(identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete endpoint from Redis: %w", err)
	}
	return nil
}

func (r *RedisEndpointRepository) ListIdentities(ctx context.Context) ([]domain.Identity, error) {
	members, err := r.client.SMembers(ctx, endpointSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list identities from Redis: %w", err)
	}

	identities := make([]domain.Identity, 0, len(members))
	for _, m := range members {
		identities = append(identities, domain.Identity(m))
	}
	sort.Slice(identities, func(i, j int) bool { return identities[i] < identities[j] })
	return identities, nil
}

func (r *RedisEndpointRepository) Count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, endpointSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count endpoints in Redis: %w", err)
	}
	return int(n), nil
}
