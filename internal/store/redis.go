package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aivideotool/api/internal/model"
)

const (
	jobKeyPrefix = "job:"
	jobIndexKey  = "jobs:index"
	filesKey     = "files"

	// maxTxRetries bounds optimistic transaction retries on a contended job key
	maxTxRetries = 20
)

func jobKey(id string) string {
	return jobKeyPrefix + id
}

// RedisJobStore stores each job as JSON under job:<id> with a TTL, plus a
// sorted-set index by creation time. Transitions use WATCH/MULTI so two
// writers can never both succeed on the same record.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

var _ JobStore = (*RedisJobStore)(nil)

func NewRedisJobStore(client *redis.Client, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create writes the record and its index entry in one MULTI. Redis does not
// roll back a MULTI whose later command fails, so a record whose index write
// failed is removed again.
func (s *RedisJobStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := jobKey(job.ID)
	score := float64(job.CreatedAt.UnixMilli())
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrJobExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, jobIndexKey, redis.Z{Score: score, Member: job.ID})
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrJobExists):
			return err
		}
		if delErr := s.client.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil {
			return fmt.Errorf("failed to save job: %w (cleanup: %v)", err, delErr)
		}
		return fmt.Errorf("failed to save job: %w", err)
	}
	return ErrConflict
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

func (s *RedisJobStore) List(ctx context.Context, offset, limit int) ([]*model.Job, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, jobIndexKey, int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job index: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs: %w", err)
	}

	jobs := make([]*model.Job, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// record expired but the index entry survived
			expired = append(expired, ids[i])
			continue
		}
		job, err := decodeJob([]byte(raw))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, jobIndexKey, expired...).Err()
	}
	return jobs, nil
}

func (s *RedisJobStore) Claim(ctx context.Context, id string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		return applyClaim(job, s.now())
	})
}

func (s *RedisJobStore) Checkpoint(ctx context.Context, id string, progress int, message string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		return applyCheckpoint(job, progress, message)
	})
}

func (s *RedisJobStore) Complete(ctx context.Context, id string, c Completion) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		return applyComplete(job, c, s.now())
	})
}

func (s *RedisJobStore) Fail(ctx context.Context, id string, message string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		return applyFail(job, message, s.now())
	})
}

func (s *RedisJobStore) Cancel(ctx context.Context, id string, message string) (*model.Job, error) {
	return s.update(ctx, id, func(job *model.Job) error {
		return applyCancel(job, message, s.now())
	})
}

func (s *RedisJobStore) Delete(ctx context.Context, id string) error {
	key := jobKey(id)
	txf := func(tx *redis.Tx) error {
		job, err := readJob(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := checkDeletable(job); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, jobIndexKey, id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// update runs fn inside an optimistic transaction on the job key and retries
// when another writer touched the key in between.
func (s *RedisJobStore) update(ctx context.Context, id string, fn func(*model.Job) error) (*model.Job, error) {
	key := jobKey(id)
	var result *model.Job

	txf := func(tx *redis.Tx) error {
		job, err := readJob(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(job); err != nil {
			result = job
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = job
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return result, err
	}
	return nil, ErrConflict
}

func readJob(ctx context.Context, tx *redis.Tx, key string) (*model.Job, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return decodeJob(data)
}

func decodeJob(data []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// RedisFileStore keeps file records as JSON fields of a single hash
type RedisFileStore struct {
	client *redis.Client
}

var _ FileStore = (*RedisFileStore)(nil)

func NewRedisFileStore(client *redis.Client) *RedisFileStore {
	return &RedisFileStore{client: client}
}

func (s *RedisFileStore) Save(ctx context.Context, rec *model.FileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal file record: %w", err)
	}
	return s.client.HSet(ctx, filesKey, rec.ID, data).Err()
}

func (s *RedisFileStore) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	data, err := s.client.HGet(ctx, filesKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	var rec model.FileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file record: %w", err)
	}
	return &rec, nil
}

func (s *RedisFileStore) List(ctx context.Context) ([]*model.FileRecord, error) {
	all, err := s.client.HGetAll(ctx, filesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.FileRecord, 0, len(all))
	for _, raw := range all {
		var rec model.FileRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisFileStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.HDel(ctx, filesKey, id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}
