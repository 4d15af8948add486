package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scriptreel/api/internal/model"
)

const (
	// Job records outlive their run so operators can inspect failures.
	jobTTL = 7 * 24 * time.Hour

	// Optimistic transaction retries before giving up on contention.
	txMaxAttempts = 5
)

// RedisJobRepository stores each job as a JSON blob at job:{id} and keeps a
// video_job:{videoId} index pointing at the most recent job for that video.
// All mutations run inside WATCH transactions so concurrent schedulers
// cannot both observe and claim the same state.
type RedisJobRepository struct {
	rdb *redis.Client
}

func NewRedisJobRepository(rdb *redis.Client) *RedisJobRepository {
	return &RedisJobRepository{rdb: rdb}
}

func jobKey(jobID string) string     { return "job:" + jobID }
func videoKey(videoID string) string { return "video_job:" + videoID }

// Create persists a new job after verifying no non-terminal job exists for
// the same video. The check and the write happen in one WATCH transaction.
func (r *RedisJobRepository) Create(ctx context.Context, job *model.RenderJob) error {
	vk := videoKey(job.VideoID)

	txn := func(tx *redis.Tx) error {
		existingID, err := tx.Get(ctx, vk).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if existingID != "" {
			data, err := tx.Get(ctx, jobKey(existingID)).Bytes()
			if err != nil && err != redis.Nil {
				return err
			}
			if err == nil {
				var existing model.RenderJob
				if err := json.Unmarshal(data, &existing); err != nil {
					return fmt.Errorf("corrupt job record %s: %w", existingID, err)
				}
				if !existing.Status.Terminal() {
					return ErrDuplicateActiveJob
				}
			}
		}

		data, err := json.Marshal(job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, jobKey(job.ID), data, jobTTL)
			pipe.Set(ctx, vk, job.ID, jobTTL)
			return nil
		})
		return err
	}

	return r.watch(ctx, txn, vk)
}

func (r *RedisJobRepository) Get(ctx context.Context, jobID string) (*model.RenderJob, error) {
	data, err := r.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

// Update applies fn inside a WATCH transaction on the job key. A concurrent
// write between the read and the commit aborts the transaction and the
// whole read-mutate-write cycle is retried.
func (r *RedisJobRepository) Update(ctx context.Context, jobID string, fn func(*model.RenderJob) error) (*model.RenderJob, error) {
	key := jobKey(jobID)
	var updated *model.RenderJob

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}

		var job model.RenderJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("corrupt job record %s: %w", jobID, err)
		}

		if err := fn(&job); err != nil {
			return err
		}

		out, err := json.Marshal(&job)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, jobTTL)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &job
		return nil
	}

	if err := r.watch(ctx, txn, key); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RedisJobRepository) watch(ctx context.Context, txn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txn, keys...)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %v aborted after %d attempts", keys, txMaxAttempts)
}
