package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func quietEntry() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

// startBlockedWorkers имитирует фоновые воркеры сервиса: оба выходят
// только по ctx.Done().
func startBlockedWorkers(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			<-ctx.Done()
		}()
	}
}

func TestAwaitShutdownReturnsServerError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	startBlockedWorkers(ctx, &wg)

	bindErr := errors.New("listen tcp :8080: bind: address already in use")
	errCh := make(chan error, 1)
	errCh <- bindErr

	done := make(chan error, 1)
	go func() {
		done <- awaitShutdown(ctx, cancel, quietEntry(), &http.Server{}, &http.Server{}, &wg, errCh)
	}()

	select {
	case err := <-done:
		if !errors.Is(err, bindErr) {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("awaitShutdown did not return after server error")
	}
}

func TestAwaitShutdownServerClosedIsNotAnError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	startBlockedWorkers(ctx, &wg)

	errCh := make(chan error, 1)
	errCh <- http.ErrServerClosed

	done := make(chan error, 1)
	go func() {
		done <- awaitShutdown(ctx, cancel, quietEntry(), &http.Server{}, &http.Server{}, &wg, errCh)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("awaitShutdown did not return after server close")
	}
}

func TestAwaitShutdownStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	startBlockedWorkers(ctx, &wg)

	done := make(chan error, 1)
	go func() {
		done <- awaitShutdown(ctx, cancel, quietEntry(), &http.Server{}, &http.Server{}, &wg, make(chan error, 1))
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("awaitShutdown did not return after context cancel")
	}
}
