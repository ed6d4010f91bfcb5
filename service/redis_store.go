package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

// Backoff between optimistic retries. All writers of a window hit the same key.
const (
	watchBaseDelay = 2 * time.Millisecond
	watchMaxDelay  = 100 * time.Millisecond
)

// RedisStore keeps sessions in redis so several server instances can answer
// progress polls for the same batch. Each session is one JSON value; retention
// is the key TTL.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	retention   Retention
	maxLifetime time.Duration
}

// NewRedisStore returns a store writing keys under prefix. maxLifetime bounds
// how long an unfinished session may live, so a crashed runner cannot leave
// keys behind forever.
func NewRedisStore(client *redis.Client, prefix string, retention Retention, maxLifetime time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "supplyverify:session:"
	}
	if maxLifetime <= 0 {
		maxLifetime = 6 * time.Hour
	}
	return &RedisStore{
		client:      client,
		prefix:      prefix,
		retention:   retention.withDefaults(),
		maxLifetime: maxLifetime,
	}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Create(ctx context.Context, id string, total int, owner string) error {
	data, err := json.Marshal(newSession(id, total, owner, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(id), data, s.maxLifetime).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.VerificationSession, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return decodeSession(data)
}

func (s *RedisStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, markProcessing)
}

func (s *RedisStore) SetCurrent(ctx context.Context, id, operationName string) error {
	return s.update(ctx, id, func(sess *model.VerificationSession) error { return setCurrent(sess, operationName) })
}

func (s *RedisStore) AppendResult(ctx context.Context, id string, result model.VerificationResult) error {
	return s.update(ctx, id, func(sess *model.VerificationSession) error { return appendResult(sess, result) })
}

func (s *RedisStore) Complete(ctx context.Context, id string) error {
	return s.update(ctx, id, complete)
}

func (s *RedisStore) Fail(ctx context.Context, id, message string) error {
	return s.update(ctx, id, fail(message))
}

// update runs an optimistic read-modify-write of one session. When another
// writer touched the key between WATCH and EXEC it retries with jittered
// backoff until it succeeds or ctx ends.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*model.VerificationSession) error) error {
	key := s.key(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		sess, err := decodeSession(data)
		if err != nil {
			return err
		}
		if sess.Status.IsTerminal() {
			return ErrSessionTerminal
		}
		if err := fn(sess); err != nil {
			return err
		}
		sess.UpdatedAt = time.Now().UTC()

		out, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if sess.Status.IsTerminal() {
				pipe.Set(ctx, key, out, s.retention.after(sess.Status))
			} else {
				pipe.Set(ctx, key, out, redis.KeepTTL)
			}
			return nil
		})
		return err
	}

	for attempt := 0; ; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}

		timer := time.NewTimer(watchBackoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("session %s: %w", id, ctx.Err())
		case <-timer.C:
		}
	}
}

// watchBackoff returns a delay in [d/2, d] where d doubles per attempt up to
// watchMaxDelay.
func watchBackoff(attempt int) time.Duration {
	d := watchBaseDelay << min(attempt, 6)
	if d > watchMaxDelay {
		d = watchMaxDelay
	}
	return d/2 + rand.N(d/2+1)
}

func decodeSession(data []byte) (*model.VerificationSession, error) {
	var sess model.VerificationSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if !sess.Status.IsValid() {
		return nil, fmt.Errorf("failed to decode session: unknown status %q", sess.Status)
	}
	if sess.Results == nil {
		sess.Results = []model.VerificationResult{}
	}
	return &sess, nil
}
