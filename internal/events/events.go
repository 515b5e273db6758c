// Package events defines the event-sink capability the core emits
// lifecycle and telemetry through, replacing the Qt signal/slot
// coupling of the system this core is descended from: the core never
// holds a reference to a UI object, only to a Sink the host supplies
// at construction.
package events

import "github.com/NunoCorreia78/Biodesk-sub001/internal/protocol"

// Kind tags an Event's payload type.
type Kind string

const (
	KindStarted          Kind = "started"
	KindStepStarted      Kind = "step_started"
	KindLiveMetrics      Kind = "live_metrics"
	KindStepFinished     Kind = "step_finished"
	KindFinished         Kind = "finished"
	KindAborted          Kind = "aborted"
	KindErrorOccurred    Kind = "error_occurred"
	KindStateChanged     Kind = "state_changed"
	KindBaselineMeasured Kind = "baseline_measured"
	KindResultItem       Kind = "result_item"
)

// Event is a single, self-contained, pass-by-value notification. Only
// the field matching Kind is populated.
type Event struct {
	Kind Kind

	// ProtocolRunner payloads
	Protocol    *protocol.Protocol
	StepIndex   int
	Step        *protocol.Step
	LiveMetrics *protocol.LiveMetrics

	// AssessmentWorker payloads
	Baseline        *protocol.Baseline
	FrequencyResult *protocol.FrequencyResult
	Results         []protocol.FrequencyResult

	// Shared terminal/diagnostic payloads
	AbortReason string
	FaultKind   string
	FaultDetail string
	State       string
}

// Sink receives events in emission order. Sessions call Emit
// synchronously from their own goroutine and neither coalesce nor drop
// events themselves, so an implementation must not block; ChanSink
// meets that by dropping any event, of any kind, when its buffer is
// full.
type Sink interface {
	Emit(Event)
}

// ChanSink adapts a buffered channel into a Sink. Emit drops the event
// if the channel is full rather than blocking the session — matching
// the "delivery must be non-blocking for the worker" requirement.
type ChanSink chan Event

func (c ChanSink) Emit(e Event) {
	select {
	case c <- e:
	default:
	}
}

// FuncSink adapts a plain callback into a Sink.
type FuncSink func(Event)

func (f FuncSink) Emit(e Event) { f(e) }

// CollectSink accumulates every event in order, for tests.
type CollectSink struct {
	Events []Event
}

func (c *CollectSink) Emit(e Event) {
	c.Events = append(c.Events, e)
}

// Kinds returns the Kind of every collected event in order, a
// convenience for asserting event-ordering invariants.
func (c *CollectSink) Kinds() []Kind {
	kinds := make([]Kind, len(c.Events))
	for i, e := range c.Events {
		kinds[i] = e.Kind
	}
	return kinds
}
