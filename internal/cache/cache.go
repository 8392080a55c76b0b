// Package cache provides the advisory key/value cache used for derived
// counters such as the number of active subscribers per subject.
//
// The cache is never the source of truth: callers treat every error as a
// miss on read and log-and-continue on write.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache is the contract consumed by services.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Nop is a Cache that stores nothing. It is used when no Redis URL is
// configured, so every read falls through to the database.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, error) { return "", ErrMiss }

func (Nop) SetEx(context.Context, string, string, time.Duration) error { return nil }

func (Nop) Del(context.Context, ...string) error { return nil }
