package redis

import (
	"context"
	"fmt"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.JobClaims = (*JobClaims)(nil)

// JobClaims reserves job ids in Redis so an id stays taken across worker
// restarts and between workers sharing one Redis.
type JobClaims struct {
	client RedisClient
	ttl    time.Duration
}

func NewJobClaims(client RedisClient, ttl time.Duration) *JobClaims {
	return &JobClaims{client: client, ttl: ttl}
}

func claimKey(jobID string) string { return fmt.Sprintf("job_claim:%s", jobID) }

func (c *JobClaims) Claim(ctx context.Context, jobID string) (string, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, claimKey(jobID), token, c.ttl)
	if err != nil {
		return "", fmt.Errorf("claim job %s: %w", jobID, err)
	}
	if !ok {
		return "", domain.ErrAlreadyExists
	}
	return token, nil
}

// Release drops a claim held with token; a claim taken over by someone else
// is left alone.
func (c *JobClaims) Release(ctx context.Context, jobID, token string) error {
	_, err := c.client.DelIfEquals(ctx, claimKey(jobID), token)
	return err
}
