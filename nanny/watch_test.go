package nanny

import (
	"context"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnExternalWrite(t *testing.T) {
	cfg := testConfig(t)
	s := testStore(t, cfg)

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatal(err)
	}

	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := make(chan error, 1)

	go func() { done <- w.Run(ctx) }()

	// Another process writes through its own store.
	seedApp(t, testStore(t, cfg), "demo", "sleep 1")

	deadline := time.After(5 * time.Second)

	for {
		if _, err := s.Get("demo"); err == nil {
			break
		}

		select {
		case <-w.Reloaded():
		case <-deadline:
			t.Fatal("store was not reloaded")
		}
	}

	cancel()

	if err := <-done; err != context.Canceled {
		t.Errorf("Run = %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
