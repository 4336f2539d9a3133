package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey     = "training:queue"
	claimTTL     = 24 * time.Hour
	dequeueBlock = 5 * time.Second
)

// Queue hands newly created training jobs to the external training backend.
// The tracker side enqueues job ids; trainer workers block-pop them.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisURL string) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{redis: client}, nil
}

// Enqueue schedules a job id for pickup by a trainer worker.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.redis.RPush(ctx, queueKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks briefly for the next job id and records which worker
// claimed it. Returns an empty id when the queue stays empty.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (string, error) {
	result, err := q.redis.BLPop(ctx, dequeueBlock, queueKey).Result()
	if err == redis.Nil {
		return "", nil // No jobs waiting
	}
	if err != nil {
		return "", err
	}

	jobID := result[1]
	claimKey := fmt.Sprintf("training:claim:%s", jobID)
	if err := q.redis.Set(ctx, claimKey, workerID, claimTTL).Err(); err != nil {
		return "", fmt.Errorf("record claim for job %s: %w", jobID, err)
	}
	return jobID, nil
}

// ClaimedBy reports which worker, if any, claimed a job.
func (q *Queue) ClaimedBy(ctx context.Context, jobID string) (string, error) {
	worker, err := q.redis.Get(ctx, fmt.Sprintf("training:claim:%s", jobID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return worker, err
}

// Length returns the number of jobs waiting for a trainer.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, queueKey).Result()
}

func (q *Queue) Close() error {
	return q.redis.Close()
}
