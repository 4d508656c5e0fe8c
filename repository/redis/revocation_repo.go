package redis

import (
	"context"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/rolegate/repository"
)

type revocationRepository struct {
	client *redislib.Client
	ttl    time.Duration
}

// NewTokenRevocations keeps revoked external token ids until the tokens
// would have expired anyway.
func NewTokenRevocations(client *redislib.Client, ttl time.Duration) repository.TokenRevocations {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &revocationRepository{client: client, ttl: ttl}
}

func (r *revocationRepository) Revoke(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	return r.client.Set(ctx, "revoked:"+tokenID, "1", r.ttl).Err()
}

func (r *revocationRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, "revoked:"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
