package repositories

import (
	"context"

	"sigrelay/internal/core/ports"
	"sigrelay/internal/infrastructure/repositories/memory"
	redisrepo "sigrelay/internal/infrastructure/repositories/redis"
	"sigrelay/pkg/circuitbreaker"
	"sigrelay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger

	// Guards health probes so a flapping Redis is not hammered by every
	// health endpoint hit.
	healthBreaker *circuitbreaker.CircuitBreaker
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis:      cfg.Redis.Enabled,
		logger:        logger,
		healthBreaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateEndpointRepository creates an endpoint repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateEndpointRepository() ports.EndpointRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisEndpointRepository(f.redisClient)
	}
	return memory.NewMemoryEndpointRepository()
}

// CreateSessionRepository creates a session repository (Redis or memory with fallback)
func (f *RepositoryFactory) CreateSessionRepository() ports.SessionRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSessionRepository(f.redisClient)
	}
	return memory.NewMemorySessionRepository()
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.healthBreaker.Execute(ctx, func() error {
			return f.redisClient.Ping(ctx).Err()
		})
	}
	return nil
}
