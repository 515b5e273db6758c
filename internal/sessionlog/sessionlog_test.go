package sessionlog

import (
	"testing"
	"time"
)

func newReport(name string, finished time.Time) Report {
	return Report{
		Kind:       "protocol",
		Name:       name,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Outcome:    "finished",
		Payload:    []byte(`{"steps":3}`),
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), 0)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	path, err := store.Save(newReport("sweep-a", base))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "sweep-a" || got.Outcome != "finished" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestSavePrunesBeyondKeepMax(t *testing.T) {
	store := NewStore(t.TempDir(), 2)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := store.Save(newReport("r", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}

	paths, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("List returned %d reports, want 2 after pruning", len(paths))
	}
}

func TestListOnEmptyStoreDoesNotError(t *testing.T) {
	store := NewStore(t.TempDir(), 5)
	paths, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("List = %v, want empty", paths)
	}
}
