package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quietgrove/backoffice/pkg/credstore"
	"github.com/quietgrove/backoffice/pkg/credstore/redisstore"
	"github.com/quietgrove/backoffice/pkg/credstore/sqlitestore"
)

// OpenStore builds the credential store named by the config. The returned
// close func releases driver resources and is always non-nil.
func OpenStore(cfg Config) (credstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case "memory":
		return credstore.NewMemoryStore(), noop, nil

	case "file":
		s, err := credstore.NewFileStore(cfg.CredFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential file: %w", err)
		}
		return s, noop, nil

	case "sealed":
		if cfg.Passphrase == "" {
			return nil, nil, fmt.Errorf("sealed store requires BACKOFFICE_CRED_PASSPHRASE")
		}
		s, err := credstore.NewSealedFileStore(cfg.CredFile, cfg.Passphrase)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sealed credential file: %w", err)
		}
		return s, noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return redisstore.New(client, cfg.RedisOwner), client.Close, nil

	case "sqlite":
		s, err := sqlitestore.Open(cfg.SQLiteFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		return s, s.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", cfg.Store)
	}
}
