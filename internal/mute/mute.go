// Package mute coordinates the system-wide "speech output suspended" flag.
// Only one holder may suspend speech at a time.
package mute

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrAlreadyHeld indicates another holder has speech suspended.
var ErrAlreadyHeld = errors.New("mute already held")

// ErrNotHolder indicates a release with a token that does not own the flag.
var ErrNotHolder = errors.New("token does not hold mute")

// Token identifies a mute acquisition
type Token string

// Suspender toggles speech output on the backend that owns it
type Suspender interface {
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Coordinator grants exclusive ownership of the suspended flag
type Coordinator struct {
	mu        sync.Mutex
	suspender Suspender
	holder    Token
	pending   bool
	onChange  func(holders int)
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithOnChange registers a callback invoked with the holder count after
// every acquire and release. It runs with the coordinator locked.
func WithOnChange(fn func(holders int)) Option {
	return func(c *Coordinator) {
		c.onChange = fn
	}
}

// New creates a coordinator driving the given suspender
func New(suspender Suspender, opts ...Option) *Coordinator {
	if suspender == nil {
		suspender = NopSuspender{}
	}
	c := &Coordinator{suspender: suspender}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire suspends speech and returns the ownership token.
// It fails fast with ErrAlreadyHeld when another holder exists or an
// acquisition is still suspending the backend.
func (c *Coordinator) Acquire(ctx context.Context) (Token, error) {
	c.mu.Lock()
	if c.holder != "" || c.pending {
		c.mu.Unlock()
		return "", ErrAlreadyHeld
	}
	c.pending = true
	c.mu.Unlock()

	err := c.suspender.Suspend(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	if err != nil {
		return "", fmt.Errorf("failed to suspend speech: %w", err)
	}

	c.holder = Token(uuid.NewString())
	c.notify()
	return c.holder, nil
}

// Release resumes speech if token is the current holder.
// Releasing when nothing is held is a no-op, so repeated releases are safe.
func (c *Coordinator) Release(ctx context.Context, token Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.holder == "" {
		return nil
	}
	if c.holder != token {
		return ErrNotHolder
	}

	// The flag is dropped even if the backend refuses, so a later
	// session is not locked out by a stale holder.
	c.holder = ""
	c.notify()

	if err := c.suspender.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume speech: %w", err)
	}
	return nil
}

// Holders returns 1 while the flag is held and 0 otherwise
func (c *Coordinator) Holders() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holder != "" {
		return 1
	}
	return 0
}

func (c *Coordinator) notify() {
	if c.onChange == nil {
		return
	}
	if c.holder != "" {
		c.onChange(1)
	} else {
		c.onChange(0)
	}
}

// NopSuspender acquires ownership without touching any backend
type NopSuspender struct{}

func (NopSuspender) Suspend(context.Context) error { return nil }
func (NopSuspender) Resume(context.Context) error  { return nil }
