// Package redisstate adapts Redis to the StateStore port. Values are stored
// as a JSON envelope carrying a monotonically increasing version; the store
// offers no transactions, so compare-and-set is implemented with per-key
// optimistic versioning under WATCH.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/core/ports"
)

type envelope struct {
	Version uint64          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

type Store struct {
	client *redis.Client
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

func New(opts Options) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Get(ctx context.Context, key string) (ports.Record, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.Record{}, domain.WrapError(domain.ErrNotFound, "state get", fmt.Errorf("key %s", key))
	}
	if err != nil {
		return ports.Record{}, domain.WrapError(domain.ErrTransientEffect, "state get", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ports.Record{}, fmt.Errorf("decode envelope for %s: %w", key, err)
	}
	return ports.Record{Value: env.Payload, Version: env.Version}, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	raw, err := json.Marshal(envelope{Version: 1, Payload: value})
	if err != nil {
		return fmt.Errorf("encode envelope for %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrTransientEffect, "state set", err)
	}
	return nil
}

// SetIfVersion writes only when the stored version still matches. Version
// zero asserts the key does not exist yet.
func (s *Store) SetIfVersion(ctx context.Context, key string, value []byte, version uint64, ttl time.Duration) error {
	txf := func(tx *redis.Tx) error {
		current := uint64(0)
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var env envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("decode envelope for %s: %w", key, err)
			}
			current = env.Version
		}
		if current != version {
			return domain.WrapError(domain.ErrConflict, "state cas",
				fmt.Errorf("key %s at version %d, caller had %d", key, current, version))
		}

		next, err := json.Marshal(envelope{Version: version + 1, Payload: value})
		if err != nil {
			return fmt.Errorf("encode envelope for %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.WrapError(domain.ErrConflict, "state cas", err)
	}
	if err != nil && !domain.IsKind(err, domain.ErrConflict) && !domain.IsKind(err, domain.ErrNotFound) {
		return domain.WrapError(domain.ErrTransientEffect, "state cas", err)
	}
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return domain.WrapError(domain.ErrTransientEffect, "state delete", err)
	}
	return nil
}

func (s *Store) AddMember(ctx context.Context, key, member string) error {
	if err := s.client.SAdd(ctx, key, member).Err(); err != nil {
		return domain.WrapError(domain.ErrTransientEffect, "state sadd", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, key, member string) error {
	if err := s.client.SRem(ctx, key, member).Err(); err != nil {
		return domain.WrapError(domain.ErrTransientEffect, "state srem", err)
	}
	return nil
}

func (s *Store) Members(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransientEffect, "state smembers", err)
	}
	return members, nil
}
