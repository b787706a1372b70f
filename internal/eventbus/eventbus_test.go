package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(EventTypeTick, func(ev Event) { got <- ev })

	bus.Publish(Event{Type: EventTypeTick, Data: "t"})

	select {
	case ev := <-got:
		if ev.Data != "t" {
			t.Fatalf("data = %v", ev.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestPublishIgnoresOtherTypes(t *testing.T) {
	bus := New()
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(EventTypeTick, func(ev Event) { got <- ev })

	bus.Publish(Event{Type: EventTypeStateChange})

	select {
	case ev := <-got:
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPanickingHandlerDoesNotKillWorkers(t *testing.T) {
	bus := New()
	defer bus.Close()

	got := make(chan struct{}, 2)
	bus.Subscribe(EventTypeTick, func(Event) { panic("boom") })
	bus.Subscribe(EventTypeTick, func(Event) { got <- struct{}{} })

	bus.Publish(Event{Type: EventTypeTick})
	bus.Publish(Event{Type: EventTypeTick})

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("worker pool stopped delivering after a panic")
		}
	}
}

func TestPublishAfterCloseDropped(t *testing.T) {
	bus := New()

	got := make(chan Event, 1)
	bus.Subscribe(EventTypeTick, func(ev Event) { got <- ev })

	bus.Close()
	bus.Publish(Event{Type: EventTypeTick})

	select {
	case ev := <-got:
		t.Fatalf("event delivered after close: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
