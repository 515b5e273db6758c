package events

import "testing"

func TestChanSink_DropsWhenFull(t *testing.T) {
	ch := make(ChanSink, 1)
	ch.Emit(Event{Kind: KindStarted})
	ch.Emit(Event{Kind: KindFinished}) // channel is full; must drop, not block

	select {
	case e := <-ch:
		if e.Kind != KindStarted {
			t.Errorf("got %v, want the first event to have survived", e.Kind)
		}
	default:
		t.Fatal("expected the first buffered event to be readable")
	}
}

func TestFuncSink_InvokesCallback(t *testing.T) {
	var got []Kind
	sink := FuncSink(func(e Event) { got = append(got, e.Kind) })
	sink.Emit(Event{Kind: KindStepStarted})
	sink.Emit(Event{Kind: KindStepFinished})

	if len(got) != 2 || got[0] != KindStepStarted || got[1] != KindStepFinished {
		t.Errorf("got %v", got)
	}
}

func TestCollectSink_PreservesOrder(t *testing.T) {
	var c CollectSink
	c.Emit(Event{Kind: KindStarted})
	c.Emit(Event{Kind: KindStepStarted, StepIndex: 0})
	c.Emit(Event{Kind: KindFinished})

	kinds := c.Kinds()
	want := []Kind{KindStarted, KindStepStarted, KindFinished}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Kinds()[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}
