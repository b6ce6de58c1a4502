package repositories

import (
	"context"

	"roomrelay/internal/core/ports"
	"roomrelay/internal/infrastructure/repositories/memory"
	redisrepo "roomrelay/internal/infrastructure/repositories/redis"
	"roomrelay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StoreFactory creates the metadata store, preferring Redis when it is
// configured and reachable and falling back to memory otherwise.
type StoreFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewStoreFactory(cfg *config.Config, logger *zap.SugaredLogger) (*StoreFactory, error) {
	factory := &StoreFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory store",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis metadata store")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory metadata store")
	}

	return factory, nil
}

// CreateMetadataStore creates the room history store.
func (f *StoreFactory) CreateMetadataStore() ports.MetadataStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewMetadataStore(f.redisClient)
	}
	return memory.NewMetadataStore()
}

// RedisClient exposes the shared client for collaborators that ride
// the same connection, such as the event bus. Nil when Redis is off.
func (f *StoreFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes the Redis connection if used.
func (f *StoreFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks the Redis connection health.
func (f *StoreFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
