package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func drain(l *Listener) []Event {
	var out []Event
	for {
		select {
		case e := <-l.C():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestBus_TopicListenerOnlyGetsItsTopic(t *testing.T) {
	bus := NewBus()
	door := bus.SubscribeTopic(TopicDoor, 8)

	bus.Post(TopicDoor, "DOOR_OPENED", None())
	bus.Post(TopicSystem, "BOOT", None())

	got := drain(door)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Topic != TopicDoor || got[0].Name != "DOOR_OPENED" {
		t.Fatalf("unexpected event: %+v", got[0])
	}
}

func TestBus_GlobalListenerReceivesEachEventOnce(t *testing.T) {
	bus := NewBus()
	all := bus.Subscribe(8)
	// also topic-subscribed: must not get duplicates
	bus.AddTopic(all, TopicDoor)

	bus.Post(TopicDoor, "DOOR_CLOSED", None())
	bus.Post(TopicSystem, "BOOT", None())

	got := drain(all)
	if len(got) != 2 {
		t.Fatalf("expected exactly 2 events, got %d: %+v", len(got), got)
	}
	if got[0].Topic != TopicDoor || got[1].Topic != TopicSystem {
		t.Fatalf("unexpected order/topics: %+v", got)
	}
}

func TestBus_AddTopicTwiceDeliversOnce(t *testing.T) {
	bus := NewBus()
	l := bus.SubscribeTopic(TopicDoor, 8)
	bus.AddTopic(l, TopicDoor)
	bus.AddTopic(l, TopicDoor)

	bus.Post(TopicDoor, "DOOR_OPENED", None())

	if got := drain(l); len(got) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(got), got)
	}
}

func TestBus_FullQueueDropsWithoutBlocking(t *testing.T) {
	bus := NewBus()
	l := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		bus.Post(TopicSystem, "A", Int(1))
		bus.Post(TopicSystem, "B", Int(2))
		bus.Post(TopicSystem, "C", Int(3))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Post blocked on a full queue")
	}

	got := drain(l)
	if len(got) != 1 || got[0].Name != "A" {
		t.Fatalf("expected only first event to be queued, got %+v", got)
	}
	if bus.Dropped() != 2 {
		t.Fatalf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	l := bus.SubscribeTopic(TopicProcess, 4)
	bus.Unsubscribe(l)

	bus.Post(TopicProcess, "RUNNING", None())

	if got := drain(l); len(got) != 0 {
		t.Fatalf("expected no events after unsubscribe, got %d", len(got))
	}
	select {
	case <-l.Done():
	default:
		t.Fatalf("Done should be closed after unsubscribe")
	}
	// idempotent
	bus.Unsubscribe(l)
}

func TestBus_PayloadIsCopiedPerListener(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(2)
	b := bus.Subscribe(2)

	bus.Post(TopicControl, "TARGET", Float(97.5))

	ea, eb := drain(a), drain(b)
	if len(ea) != 1 || len(eb) != 1 {
		t.Fatalf("both listeners should receive the event")
	}
	va, _ := ea[0].Payload.Float()
	vb, _ := eb[0].Payload.Float()
	if va != 97.5 || vb != 97.5 {
		t.Fatalf("payload mismatch: %v %v", va, vb)
	}
}

func TestConsume_StopsOnContextCancel(t *testing.T) {
	bus := NewBus()
	l := bus.Subscribe(4)

	var mu sync.Mutex
	var names []string
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		Consume(ctx, l, func(e Event) {
			mu.Lock()
			names = append(names, e.Name)
			mu.Unlock()
		})
		close(finished)
	}()

	bus.Post(TopicSystem, "ONE", None())
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("Consume did not return after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(names) != 1 || names[0] != "ONE" {
		t.Fatalf("unexpected consumed events: %v", names)
	}
}
