package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/config"
	"github.com/yok-tottii/mic-calibrator/internal/logger"
)

func TestRunServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, m.env(""), 0) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}

	if m.config.WatchCalls() != 1 {
		t.Errorf("expected config watched once, got %d", m.config.WatchCalls())
	}
}

func TestRunServe_WatchFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.config.WatchFunc = func(log *logger.Logger, onChange func(*config.Config)) error {
		return errors.New("no config file to watch")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := runServe(ctx, m.env(""), 0); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}

func TestRunServe_ConfigError(t *testing.T) {
	t.Parallel()

	m := newTestMocks()
	m.config.LoadFunc = func(path string) (*config.Config, error) {
		return nil, errors.New("bad yaml")
	}

	err := runServe(context.Background(), m.env(""), 0)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
