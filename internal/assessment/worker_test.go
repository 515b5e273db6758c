package assessment

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/NunoCorreia78/Biodesk-sub001/internal/events"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/hardware"
	"github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"
)

func newTestWorker(io hardware.Io, sink events.Sink) *Worker {
	w := New(io, sink, nil)
	w.sleep = func(time.Duration) {} // settle/wait delays collapse to nothing under test
	return w
}

func TestAssessment_RankingOrdersByScoreDescending(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	w := newTestWorker(io, sink)

	cfg := protocol.AssessmentConfig{
		Frequencies:       []float64{100, 200, 300},
		DwellS:            0.05,
		TestAmpVpp:        0.5,
		RShuntOhm:         100000,
		TopN:              2,
		BaselineDurationS: 0.05,
		SampleRateHz:      1000,
		VoltageRangeV:     5,
		RandomizeOrder:    false,
	}

	results, err := w.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want top_n=2", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].IsValid && !results[i].IsValid {
			continue
		}
		if results[i-1].IsValid == results[i].IsValid && results[i-1].Score < results[i].Score {
			t.Errorf("results not sorted by score descending at index %d: %v then %v", i, results[i-1].Score, results[i].Score)
		}
	}

	kinds := sink.Kinds()
	if kinds[0] != events.KindStateChanged {
		t.Fatalf("first event = %v, want a StateChanged(preparing)", kinds[0])
	}
	foundBaseline, foundFinished := false, false
	baselineIdx, firstResultIdx := -1, -1
	for i, e := range sink.Events {
		if e.Kind == events.KindBaselineMeasured {
			foundBaseline = true
			baselineIdx = i
		}
		if e.Kind == events.KindResultItem && firstResultIdx == -1 {
			firstResultIdx = i
		}
		if e.Kind == events.KindFinished {
			foundFinished = true
		}
	}
	if !foundBaseline || !foundFinished {
		t.Fatalf("missing BaselineMeasured or Finished in %v", kinds)
	}
	if firstResultIdx != -1 && baselineIdx > firstResultIdx {
		t.Fatalf("BaselineMeasured (idx %d) must precede every ResultItem (first at %d)", baselineIdx, firstResultIdx)
	}
}

func TestAssessment_RejectsOutOfRangeFrequency(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	w := newTestWorker(io, sink)

	cfg := protocol.AssessmentConfig{
		Frequencies:       []float64{0, 100},
		DwellS:            0.01,
		TestAmpVpp:        0.5,
		RShuntOhm:         100000,
		TopN:              1,
		BaselineDurationS: 0.01,
		SampleRateHz:      1000,
		VoltageRangeV:     5,
	}
	if _, err := w.Start(context.Background(), cfg); err == nil {
		t.Fatal("Start must reject a frequency of 0 Hz")
	}
	if w.State() != Error {
		t.Fatalf("state = %s, want Error", w.State())
	}
}

func TestAssessment_AbortBeforeStartHasNoEffect(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	w := newTestWorker(io, sink)
	w.Abort() // not yet started; Abort is a no-op from Idle

	cfg := protocol.AssessmentConfig{
		Frequencies:       []float64{100},
		DwellS:            0.01,
		TestAmpVpp:        0.5,
		RShuntOhm:         100000,
		TopN:              1,
		BaselineDurationS: 0.01,
		SampleRateHz:      1000,
		VoltageRangeV:     5,
	}
	results, err := w.Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Abort() called before Start should have no effect; got %d results", len(results))
	}
}

func TestFrequencyOrder_RandomizePreservesSetAndIdentityWhenOff(t *testing.T) {
	in := []float64{100, 200, 300, 400}

	same := frequencyOrder(in, false, nil)
	for i := range in {
		if same[i] != in[i] {
			t.Fatalf("randomize=false must preserve order, got %v", same)
		}
	}

	rng := rand.New(rand.NewSource(1))
	shuffled := frequencyOrder(in, true, rng)
	if len(shuffled) != len(in) {
		t.Fatalf("shuffled length = %d, want %d", len(shuffled), len(in))
	}
	for _, f := range in {
		found := false
		for _, s := range shuffled {
			if s == f {
				found = true
			}
		}
		if !found {
			t.Fatalf("shuffled order %v missing original frequency %v", shuffled, f)
		}
	}

	if len(in) != 4 || in[0] != 100 {
		t.Fatal("frequencyOrder must not mutate the caller's input slice")
	}
}

func TestProgressPercent_FloorsAndReaches100OnlyAtFinish(t *testing.T) {
	io := hardware.NewReplay()
	sink := &events.CollectSink{}
	w := newTestWorker(io, sink)

	if w.ProgressPercent() != 0 {
		t.Fatalf("initial ProgressPercent = %d, want 0", w.ProgressPercent())
	}

	cfg := protocol.AssessmentConfig{
		Frequencies:       []float64{100, 200},
		DwellS:            0.01,
		TestAmpVpp:        0.5,
		RShuntOhm:         100000,
		TopN:              2,
		BaselineDurationS: 0.01,
		SampleRateHz:      1000,
		VoltageRangeV:     5,
	}
	if _, err := w.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := w.ProgressPercent(); got != 100 {
		t.Fatalf("ProgressPercent after Finished = %d, want 100", got)
	}
	if math.IsNaN(float64(w.ProgressPercent())) {
		t.Fatal("ProgressPercent must never be NaN")
	}
}
