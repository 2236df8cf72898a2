// Package redisstore is a redis-backed credstore driver for server-side
// deployments of the console (e.g. a BFF holding sessions for many users).
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quietgrove/backoffice/pkg/credstore"
)

// Store persists the credential bundle under three fixed keys, namespaced by
// an owner identifier so one redis can hold many sessions.
type Store struct {
	redis redis.UniversalClient
	owner string
}

var _ credstore.Store = (*Store)(nil)

// New creates a redis credential store for the given owner (typically a user
// or session identifier). An empty owner falls back to a shared namespace.
func New(client redis.UniversalClient, owner string) *Store {
	if owner == "" {
		owner = "default"
	}
	return &Store{redis: client, owner: owner}
}

func (s *Store) key(name string) string {
	return s.owner + ":" + name
}

func (s *Store) Save(ctx context.Context, creds *credstore.Credentials) error {
	// MULTI/EXEC so the three keys flip together.
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(credstore.KeyAccessToken), creds.AccessToken, 0)
		pipe.Set(ctx, s.key(credstore.KeyRefreshToken), creds.RefreshToken, 0)
		pipe.Set(ctx, s.key(credstore.KeyUserProfile), string(creds.Profile), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: save failed: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) (*credstore.Credentials, error) {
	values, err := s.redis.MGet(ctx,
		s.key(credstore.KeyAccessToken),
		s.key(credstore.KeyRefreshToken),
		s.key(credstore.KeyUserProfile),
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, credstore.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: load failed: %w", err)
	}

	access, ok := values[0].(string)
	if !ok || access == "" {
		return nil, credstore.ErrNotFound
	}

	creds := &credstore.Credentials{AccessToken: access}
	if refresh, ok := values[1].(string); ok {
		creds.RefreshToken = refresh
	}
	if profile, ok := values[2].(string); ok && profile != "" {
		creds.Profile = []byte(profile)
	}
	return creds, nil
}

func (s *Store) Clear(ctx context.Context) error {
	err := s.redis.Del(ctx,
		s.key(credstore.KeyAccessToken),
		s.key(credstore.KeyRefreshToken),
		s.key(credstore.KeyUserProfile),
	).Err()
	if err != nil {
		return fmt.Errorf("redisstore: clear failed: %w", err)
	}
	return nil
}
