// Package cache stores summarization results in Valkey.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/tomtat/tomtat/internal/ports"
)

// DefaultPrefix namespaces every key written by a Store.
const DefaultPrefix = "tomtat:"

const scanCount = 200

// Config describes the Valkey connection.
type Config struct {
	Addr     string `yaml:"addr" json:"addr" validate:"required,hostname_port"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db" validate:"min=0,max=15"`
	TLS      bool   `yaml:"tls" json:"tls"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Store implements ports.CacheStore on a Valkey client.
type Store struct {
	client valkey.Client
	prefix string
}

// Dial connects to Valkey and verifies the connection with PING.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	opts := valkey.ClientOption{
		InitAddress:      []string{cfg.Addr},
		Password:         cfg.Password,
		SelectDB:         cfg.DB,
		ConnWriteTimeout: 5 * time.Second,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("valkey: creating client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("valkey: ping failed: %w", err)
	}
	return New(client, cfg.Prefix), nil
}

// New wraps an existing client. An empty prefix means DefaultPrefix.
func New(client valkey.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ports.NewCacheError(key, "get", err)
	}
	return b, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	var cmd valkey.Completed
	if expiration > 0 {
		secs := max(int64(expiration/time.Second), 1)
		cmd = s.client.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value)).
			ExSeconds(secs).Build()
	} else {
		cmd = s.client.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value)).Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).Error(); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// Clear deletes every key under the store prefix, walking it with SCAN.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		entry, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(s.prefix+"*").Count(scanCount).Build(),
		).AsScanEntry()
		if err != nil {
			return ports.NewCacheError(s.prefix+"*", "clear", err)
		}
		if len(entry.Elements) > 0 {
			if err := s.client.Do(ctx, s.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return ports.NewCacheError(s.prefix+"*", "clear", err)
			}
		}
		if entry.Cursor == 0 {
			return nil
		}
		cursor = entry.Cursor
	}
}

// Close releases the underlying connections.
func (s *Store) Close() { s.client.Close() }

var _ ports.CacheStore = (*Store)(nil)
