package brokerconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// singletonID is the only row id the broker_config table accepts.
const singletonID = 1

// Built-in seed used when no defaults are supplied.
const (
	DefaultHost          = "broker.emqx.io"
	DefaultPort          = 1883
	DefaultTopicWildcard = "vigilant/data/#"
)

// Store persists the broker settings row in SQLite.
type Store struct {
	db       *sql.DB
	defaults Config
	now      func() time.Time
}

// NewStore creates a store that seeds defaults the first time the row is
// read. Zero-valued fields in defaults fall back to the built-in seed.
func NewStore(db *sql.DB, defaults Config) *Store {
	if defaults.Host == "" {
		defaults.Host = DefaultHost
	}
	if defaults.Port == 0 {
		defaults.Port = DefaultPort
	}
	if defaults.TopicWildcard == "" {
		defaults.TopicWildcard = DefaultTopicWildcard
	}
	return &Store{db: db, defaults: defaults, now: time.Now}
}

// Get returns the current settings, inserting the defaults if the row does
// not exist yet.
func (s *Store) Get(ctx context.Context) (*Config, error) {
	cfg, err := s.load(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reading broker config: %w", err)
	}

	// INSERT OR IGNORE keeps a concurrent seed from failing.
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO broker_config (id, host, port, topic_wildcard, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		singletonID,
		s.defaults.Host,
		s.defaults.Port,
		s.defaults.TopicWildcard,
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("seeding broker config: %w", err)
	}

	cfg, err = s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading seeded broker config: %w", err)
	}
	return cfg, nil
}

// Update validates and stores new settings. They take effect on the next
// connect attempt; an established connection is not dropped.
func (s *Store) Update(ctx context.Context, cfg Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.UpdatedAt = s.now().UTC().Truncate(time.Second)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO broker_config (id, host, port, topic_wildcard, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			topic_wildcard = excluded.topic_wildcard,
			updated_at = excluded.updated_at`,
		singletonID,
		cfg.Host,
		cfg.Port,
		cfg.TopicWildcard,
		cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("updating broker config: %w", err)
	}

	return &cfg, nil
}

func (s *Store) load(ctx context.Context) (*Config, error) {
	var cfg Config
	var updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT host, port, topic_wildcard, updated_at FROM broker_config WHERE id = ?",
		singletonID,
	).Scan(&cfg.Host, &cfg.Port, &cfg.TopicWildcard, &updatedAt)
	if err != nil {
		return nil, err
	}

	cfg.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at %q: %w", updatedAt, err)
	}
	return &cfg, nil
}
