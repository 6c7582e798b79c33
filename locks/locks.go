// Package locks serializes processing per conversation counterpart pair.
// It is the sole mechanism keeping two concurrently delivered events for the
// same pair from racing the conversation lookup-or-create, so every
// conversation mutation in the engine runs inside Registry.Do.
package locks

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned when acquisition attempts are exhausted. Contention is
// transient, so callers requeue the event instead of dropping it.
var ErrBusy = errors.New("lock busy")

// Key canonicalizes a counterpart pair into a lock key. The pair is
// unordered: an echo swaps sender and recipient relative to the original
// inbound message and must land on the same lock.
func Key(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

type holder struct {
	token   string
	expires time.Time
}

// Options bound the lock lifetime and the acquisition retry loop.
type Options struct {
	TTL         time.Duration // forced expiry; a crashed holder cannot deadlock future events
	MaxAttempts int
	BaseDelay   time.Duration // doubled per attempt
}

// Registry is an in-process TTL mutex table. One per engine instance.
type Registry struct {
	mu   sync.Mutex
	held map[string]holder
	opts Options
}

func NewRegistry(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 25 * time.Millisecond
	}
	return &Registry{held: make(map[string]holder), opts: opts}
}

// Do runs fn while holding the key exclusively. Release happens on every
// exit path, including a panic inside fn. Returns ErrBusy when the key could
// not be acquired within the attempt budget.
func (r *Registry) Do(key string, fn func() error) error {
	token, ok := r.acquire(key)
	if !ok {
		return ErrBusy
	}
	defer r.release(key, token)
	return fn()
}

func (r *Registry) acquire(key string) (string, bool) {
	delay := r.opts.BaseDelay
	for attempt := 0; attempt < r.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		token := uuid.NewString()
		r.mu.Lock()
		h, exists := r.held[key]
		// An expired holder is stealable: its TTL elapsed, so it either
		// crashed or stalled past the bound.
		if !exists || time.Now().After(h.expires) {
			r.held[key] = holder{token: token, expires: time.Now().Add(r.opts.TTL)}
			r.mu.Unlock()
			return token, true
		}
		r.mu.Unlock()
	}
	return "", false
}

// release only removes the entry if we still own it; a holder whose TTL
// expired mid-flight must not release the lock from whoever stole it.
func (r *Registry) release(key, token string) {
	r.mu.Lock()
	if h, exists := r.held[key]; exists && h.token == token {
		delete(r.held, key)
	}
	r.mu.Unlock()
}
