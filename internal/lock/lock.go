// Package lock serializes writers on the same ledger timeline.
//
// Local is enough for a single process. Redis lets several instances share the
// same timeline keys.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/tinoosan/millmeter/internal/errs"
)

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker acquires exclusive ownership of a key until the returned Unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LockAll acquires every key in sorted order, deduplicated, so two callers
// touching overlapping sets cannot deadlock. On failure the keys already held are released.
func LockAll(ctx context.Context, l Locker, keys []string) (Unlock, error) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	held := make([]Unlock, 0, len(uniq))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, k := range uniq {
		u, err := l.Lock(ctx, k)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, u)
	}
	return release, nil
}

// Local is an in-process keyed mutex. The zero value is ready to use.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local { return &Local{} }

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	if l.slots == nil {
		l.slots = make(map[string]*slot)
	}
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrLockUnavailable, key, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// Redis obtains keys through redislock with a linear retry bounded by Wait.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
	prefix string
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, ttl, wait time.Duration) *Redis {
	return &Redis{client: redislock.New(rdb), ttl: ttl, wait: wait, prefix: "millmeter:"}
}

// Lock tries to obtain key until wait elapses. While held, the lease is
// refreshed every half ttl; it expires after ttl if the holder dies.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	octx := ctx
	if r.wait > 0 {
		var cancel context.CancelFunc
		octx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}
	lk, err := r.client.Obtain(octx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s", errs.ErrLockUnavailable, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(lk, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release with a fresh context: the request context may already be cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = lk.Release(rctx)
		})
	}, nil
}

func (r *Redis) keepAlive(lk *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(refreshInterval(r.ttl))
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			rctx, cancel := context.WithTimeout(context.Background(), refreshInterval(r.ttl))
			err := lk.Refresh(rctx, r.ttl, nil)
			cancel()
			if err != nil {
				slog.Warn("timeline lock refresh failed", "key", key, "err", err)
				return
			}
		}
	}
}

// refreshInterval is half the lease, floored so tiny TTLs do not spin.
func refreshInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d > 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}

// Connect parses url, pings the server, and returns the client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
