package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/retro-framework/cqrskit/framework/cqrs"
	"github.com/retro-framework/cqrskit/framework/storage"
)

// DefaultKeyPrefix namespaces progress keys.
const DefaultKeyPrefix = "cqrskit:progress"

// maxTxAttempts bounds the optimistic retries of Proceed.
const maxTxAttempts = 10

type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("redisprogress: op: %q err: %q", e.Op, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

// ProgressTracker stores one string key per group partition holding the
// last processed event id. Proceed runs as a WATCH/MULTI/EXEC
// transaction so concurrent processors misconfigured onto the same
// partition can't interleave their updates.
type ProgressTracker struct {
	client *redis.Client
	prefix string
}

func NewProgressTracker(client *redis.Client, prefix string) *ProgressTracker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ProgressTracker{client: client, prefix: prefix}
}

func (pt *ProgressTracker) key(group string, partition int) string {
	return pt.prefix + ":" + group + ":" + strconv.Itoa(partition)
}

func (pt *ProgressTracker) Current(ctx context.Context, group string, partition int) (cqrs.Progress, error) {
	id, err := pt.client.WithContext(ctx).Get(pt.key(group, partition)).Result()
	if err == redis.Nil {
		return cqrs.Progress{}, nil
	}
	if err != nil {
		return cqrs.Progress{}, Error{"current", err}
	}
	return cqrs.Progress{LastEventID: id}, nil
}

func (pt *ProgressTracker) Proceed(ctx context.Context, group string, partition int, next func(cqrs.Progress) (cqrs.Progress, error)) error {
	var (
		key    = pt.key(group, partition)
		client = pt.client.WithContext(ctx)
	)
	txf := func(tx *redis.Tx) error {
		id, err := tx.Get(key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		p, err := storage.Advance(cqrs.Progress{LastEventID: id}, next)
		if err != nil {
			return err
		}
		_, err = tx.Pipelined(func(pipe redis.Pipeliner) error {
			pipe.Set(key, p.LastEventID, 0)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxAttempts; i++ {
		err := client.Watch(txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return Error{"proceed", err}
		}
		return nil
	}
	return Error{"proceed", errors.Wrapf(storage.ErrProgressConflict, "gave up on %s after %d attempts", key, maxTxAttempts)}
}

// Reset deletes the progress of a group partition.
func (pt *ProgressTracker) Reset(ctx context.Context, group string, partition int) error {
	if err := pt.client.WithContext(ctx).Del(pt.key(group, partition)).Err(); err != nil {
		return Error{"reset", err}
	}
	return nil
}
