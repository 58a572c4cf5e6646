package orchestrator

import (
	"testing"
	"time"
)

func TestEventEmitterFansOut(t *testing.T) {
	e := NewEventEmitter()
	a, b := e.Subscribe(2), e.Subscribe(2)
	e.Emit(OrchestratorEvent{Type: EventPhaseStarted, Phase: "personas"})

	for name, ch := range map[string]<-chan OrchestratorEvent{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Phase != "personas" {
				t.Errorf("%s: expected phase personas, got %q", name, ev.Phase)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: event not delivered", name)
		}
	}
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter()
	e.Subscribe(1)
	e.Emit(OrchestratorEvent{Type: EventPhaseStarted})
	e.Emit(OrchestratorEvent{Type: EventPhaseFinished})

	if got := e.DroppedCount(); got != 1 {
		t.Errorf("expected 1 dropped event, got %d", got)
	}
}

func TestEventEmitterClose(t *testing.T) {
	e := NewEventEmitter()
	ch := e.Subscribe(1)
	e.Close()
	e.Close()
	e.Emit(OrchestratorEvent{Type: EventRunDone})

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	if _, ok := <-e.Subscribe(1); ok {
		t.Error("expected closed channel after Close")
	}
}

func TestNilEventEmitterIsSafe(t *testing.T) {
	var e *EventEmitter
	e.Emit(OrchestratorEvent{Type: EventRunDone})
	e.Close()
}
