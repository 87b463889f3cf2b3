package usecase

import (
	"context"
	"sync"
	"time"

	derror "telegram-voice-assistant/internal/error"
)

// TurnLocker is a cross-process lock; the Redis locker satisfies it.
type TurnLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// TurnExecutor runs at most one turn per user at a time.
// Turns for different users never wait on each other.
type TurnExecutor struct {
	mu    sync.Mutex
	locks map[string]*userLock

	remote  TurnLocker
	lockTTL time.Duration
	keyFn   func(userID string) string
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func NewTurnExecutor() *TurnExecutor {
	return &TurnExecutor{locks: make(map[string]*userLock)}
}

// WithRemoteLock adds a cross-process lock taken after the local one.
func (e *TurnExecutor) WithRemoteLock(l TurnLocker, ttl time.Duration, keyFn func(string) string) *TurnExecutor {
	e.remote = l
	e.lockTTL = ttl
	e.keyFn = keyFn
	return e
}

// Run waits for the user's previous turn to finish, then runs fn.
func (e *TurnExecutor) Run(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	l := e.acquireRef(userID)
	defer e.releaseRef(userID, l)

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.ch }()

	if e.remote != nil {
		key := e.keyFn(userID)
		token, err := e.remote.TryLock(ctx, key, e.lockTTL)
		if err != nil {
			return err
		}
		if token == "" {
			return derror.ErrTurnInProgress
		}
		defer func() { _ = e.remote.Unlock(context.WithoutCancel(ctx), key, token) }()
	}
	return fn(ctx)
}

func (e *TurnExecutor) acquireRef(userID string) *userLock {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &userLock{ch: make(chan struct{}, 1)}
		e.locks[userID] = l
	}
	l.refs++
	return l
}

func (e *TurnExecutor) releaseRef(userID string, l *userLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, userID)
	}
}
