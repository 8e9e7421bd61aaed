// Package queue hands uploads from the API to background import workers over redis lists.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/logger"
)

// Client is the subset of the redis client used by RedisQueue.
type Client interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Task is one queued upload. Content travels with the task so workers need no shared disk.
type Task struct {
	JobID      string           `json:"job_id"`
	FileName   string           `json:"file_name"`
	UploaderID uint             `json:"uploader_id"`
	Content    []byte           `json:"content"`
	Status     domain.JobStatus `json:"status"`
	QueuedAt   time.Time        `json:"queued_at"`
	Error      string           `json:"error,omitempty"`
}

// Handler processes one task. A returned error is recorded on the task metadata.
type Handler func(ctx context.Context, task *Task) error

// RedisQueue is a FIFO of import tasks. Task bodies live under "{key}:job:{id}".
type RedisQueue struct {
	client Client
	key    string
	jobTTL time.Duration
}

// NewRedisQueue creates a queue on the given list key.
func NewRedisQueue(client Client, key string, jobTTL time.Duration) *RedisQueue {
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	return &RedisQueue{client: client, key: key, jobTTL: jobTTL}
}

func (q *RedisQueue) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.key, jobID)
}

// Enqueue stores the task body and appends its ID to the list.
func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) error {
	task.Status = domain.JobStatusQueued
	if task.QueuedAt.IsZero() {
		task.QueuedAt = time.Now()
	}
	if err := q.save(ctx, task); err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.key, task.JobID).Err(); err != nil {
		return fmt.Errorf("failed to push import task: %w", err)
	}
	return nil
}

// Lookup returns the stored task metadata without its content.
// Returns domain.ErrJobNotFound when the task is unknown or expired.
func (q *RedisQueue) Lookup(ctx context.Context, jobID string) (*Task, error) {
	task, err := q.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	task.Content = nil
	return task, nil
}

// Consume pops task IDs until ctx is done and runs handler for each.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	logger.CtxInfo(ctx, "Import queue consumer started: queue=%s", q.key)
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := q.client.BLPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.FromContext(ctx).WithError(err).Error("redis BLPOP failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		q.handle(ctx, res[1], handler)
	}
}

func (q *RedisQueue) handle(ctx context.Context, jobID string, handler Handler) {
	ctx = logger.SetJobID(ctx, jobID)

	task, err := q.load(ctx, jobID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to read queued import task")
		return
	}

	task.Status = domain.JobStatusInProgress
	if err := q.save(ctx, task); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to mark import task in progress")
	}

	handleErr := handler(ctx, task)
	if handleErr != nil && ctx.Err() != nil &&
		(errors.Is(handleErr, context.Canceled) || errors.Is(handleErr, context.DeadlineExceeded)) {
		q.requeue(context.WithoutCancel(ctx), task)
		return
	}

	task.Content = nil
	task.Status = domain.JobStatusCompleted
	if handleErr != nil {
		task.Status = domain.JobStatusFailed
		task.Error = handleErr.Error()
	}
	if err := q.save(ctx, task); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to update import task metadata")
	}
}

// requeue puts a task the consumer gave up on back at the head of the list.
func (q *RedisQueue) requeue(ctx context.Context, task *Task) {
	task.Status = domain.JobStatusQueued
	task.Error = ""
	if err := q.save(ctx, task); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to restore interrupted import task")
		return
	}
	if err := q.client.LPush(ctx, q.key, task.JobID).Err(); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to requeue interrupted import task")
		return
	}
	logger.CtxWarn(ctx, "Import task interrupted by shutdown, requeued")
}

func (q *RedisQueue) save(ctx context.Context, task *Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode import task: %w", err)
	}
	if err := q.client.Set(ctx, q.jobKey(task.JobID), body, q.jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to store import task: %w", err)
	}
	return nil
}

func (q *RedisQueue) load(ctx context.Context, jobID string) (*Task, error) {
	body, err := q.client.Get(ctx, q.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.WrapError(domain.ErrJobNotFound, "load import task", fmt.Errorf("job %s", jobID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load import task: %w", err)
	}

	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("failed to decode import task: %w", err)
	}
	return &task, nil
}
