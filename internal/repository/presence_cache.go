package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"messenger/pkg/logger"
)

const (
	// Префикс ключей Redis
	presenceSetKey       = "presence:online"
	presenceHeartbeatKey = "presence:hb:%s"
)

// PresenceCacheRepository хранит зеркало онлайн-состояния в Redis. Источник
// истины живет в реестре соединений диспетчера; зеркало нужно REST-хендлерам,
// чтобы отвечать на "онлайн ли X" не заглядывая в память соединений.
type PresenceCacheRepository interface {
	SetOnline(ctx context.Context, principalID uuid.UUID, ttl time.Duration) error
	SetOffline(ctx context.Context, principalID uuid.UUID) error
	Heartbeat(ctx context.Context, principalID uuid.UUID, ttl time.Duration) error
	IsOnline(ctx context.Context, principalID uuid.UUID) (bool, error)
}

type presenceCacheRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPresenceCacheRepository(rdb *redis.Client, log logger.Logger) PresenceCacheRepository {
	return &presenceCacheRepository{rdb: rdb, log: log}
}

func heartbeatKey(principalID uuid.UUID) string {
	return fmt.Sprintf(presenceHeartbeatKey, principalID.String())
}

func (r *presenceCacheRepository) SetOnline(ctx context.Context, principalID uuid.UUID, ttl time.Duration) error {
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, presenceSetKey, principalID.String())
	pipe.Set(ctx, heartbeatKey(principalID), 1, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to mark principal online", "error", err, "principal_id", principalID)
		return err
	}
	return nil
}

func (r *presenceCacheRepository) SetOffline(ctx context.Context, principalID uuid.UUID) error {
	pipe := r.rdb.TxPipeline()
	pipe.SRem(ctx, presenceSetKey, principalID.String())
	pipe.Del(ctx, heartbeatKey(principalID))
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Error("Failed to mark principal offline", "error", err, "principal_id", principalID)
		return err
	}
	return nil
}

func (r *presenceCacheRepository) Heartbeat(ctx context.Context, principalID uuid.UUID, ttl time.Duration) error {
	return r.rdb.Set(ctx, heartbeatKey(principalID), 1, ttl).Err()
}

func (r *presenceCacheRepository) IsOnline(ctx context.Context, principalID uuid.UUID) (bool, error) {
	// Запись в set без живого heartbeat осталась от упавшего процесса, не считается
	exists, err := r.rdb.Exists(ctx, heartbeatKey(principalID)).Result()
	if err != nil {
		r.log.Error("Failed to check presence", "error", err, "principal_id", principalID)
		return false, err
	}
	return exists > 0, nil
}
