package estop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAbortNotifiesListenersOnce(t *testing.T) {
	c := New("", time.Hour)
	var got []string
	c.OnTrip(func(reason string) { got = append(got, reason) })

	c.Abort("manual")
	c.Abort("manual again")

	if len(got) != 1 || got[0] != "manual" {
		t.Fatalf("listeners fired = %v, want exactly one call with 'manual'", got)
	}
	tripped, reason := c.Tripped()
	if !tripped || reason != "manual" {
		t.Errorf("Tripped() = %v, %q", tripped, reason)
	}
}

func TestStopFileTripsController(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "STOP")

	c := New(path, 10*time.Millisecond)
	done := make(chan string, 1)
	c.OnTrip(func(reason string) { done <- reason })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	if err := os.WriteFile(path, []byte("stop"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case reason := <-done:
		if reason == "" {
			t.Error("expected a non-empty reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop file was not detected within timeout")
	}
}
