package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeneti/vitalis-auth/internal/domain"
)

// RedisChallengeRepo implements domain.ChallengeRepository using Redis.
// A key exists only between a successful password check and the completing
// step-up verification; Redis expires it on its own after the TTL.
type RedisChallengeRepo struct {
	client *redis.Client
}

// NewRedisChallengeRepo creates a new repository instance.
func NewRedisChallengeRepo(client *redis.Client) *RedisChallengeRepo {
	return &RedisChallengeRepo{client: client}
}

// Key pattern: "auth:stepup:<role>:<principalID>" -> "1".
func challengeKey(role domain.Role, principalID int64) string {
	return fmt.Sprintf("auth:stepup:%s:%d", role, principalID)
}

// Put records a pending step-up challenge with the given TTL.
func (r *RedisChallengeRepo) Put(ctx context.Context, role domain.Role, principalID int64, ttl time.Duration) error {
	if err := r.client.Set(ctx, challengeKey(role, principalID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge in redis: %w", err)
	}
	return nil
}

// Exists reports whether the principal has an unexpired pending challenge.
func (r *RedisChallengeRepo) Exists(ctx context.Context, role domain.Role, principalID int64) (bool, error) {
	err := r.client.Get(ctx, challengeKey(role, principalID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis error: %w", err)
	}
	return true, nil
}

// Delete consumes the challenge once the step-up completes.
func (r *RedisChallengeRepo) Delete(ctx context.Context, role domain.Role, principalID int64) error {
	return r.client.Del(ctx, challengeKey(role, principalID)).Err()
}
