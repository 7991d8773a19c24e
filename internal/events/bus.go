package events

import (
	"context"
	"sync"
	"time"
)

// Topics used by the oven core.
const (
	TopicDoor        = "door"
	TopicControl     = "control"
	TopicCalibration = "calibration"
	TopicProcess     = "process"
	TopicSystem      = "system"
)

// Event is a transient message. It is copied by value across goroutines.
type Event struct {
	Topic     string    `json:"topic"`
	Name      string    `json:"name"`
	Payload   Payload   `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Size reports the payload size in bytes.
func (e Event) Size() int { return e.Payload.Size() }

// DefaultQueueSize is used when a listener is registered with a non-positive size.
const DefaultQueueSize = 32

// Listener is a subscription with its own bounded queue.
type Listener struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func newListener(size int) *Listener {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Listener{ch: make(chan Event, size), done: make(chan struct{})}
}

// C returns the event queue. It is never closed; watch Done to detect unsubscription.
func (l *Listener) C() <-chan Event { return l.ch }

// Done is closed once the listener is unregistered.
func (l *Listener) Done() <-chan struct{} { return l.done }

func (l *Listener) offer(e Event) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.ch <- e:
		return true
	default:
		return false
	}
}

// Bus is a passive publish/subscribe hub shared by every component.
// Delivery is best-effort: if a listener's queue is full the event is dropped for it.
type Bus struct {
	mu     sync.Mutex
	global []*Listener
	topics map[string][]*Listener
	now    func() time.Time

	dropped uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string][]*Listener),
		now:    time.Now,
	}
}

// Subscribe registers a listener that receives every event.
func (b *Bus) Subscribe(queueSize int) *Listener {
	l := newListener(queueSize)
	b.mu.Lock()
	b.global = append(b.global, l)
	b.mu.Unlock()
	return l
}

// SubscribeTopic registers a listener that receives only events for topic.
func (b *Bus) SubscribeTopic(topic string, queueSize int) *Listener {
	l := newListener(queueSize)
	b.AddTopic(l, topic)
	return l
}

// AddTopic attaches an existing listener to one more topic. Adding a topic the
// listener already has is a no-op.
func (b *Bus) AddTopic(l *Listener, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if containsListener(b.topics[topic], l) {
		return
	}
	b.topics[topic] = append(b.topics[topic], l)
}

// Unsubscribe removes the listener from every registry and closes Done.
func (b *Bus) Unsubscribe(l *Listener) {
	b.mu.Lock()
	b.global = removeListener(b.global, l)
	for topic, ls := range b.topics {
		ls = removeListener(ls, l)
		if len(ls) == 0 {
			delete(b.topics, topic)
			continue
		}
		b.topics[topic] = ls
	}
	b.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

func removeListener(ls []*Listener, l *Listener) []*Listener {
	out := ls[:0:0]
	for _, x := range ls {
		if x != l {
			out = append(out, x)
		}
	}
	return out
}

// Post stamps and delivers an event. Listener lists are copied under the lock and
// delivered without it; a listener registered both globally and for the topic
// receives the event once.
func (b *Bus) Post(topic, name string, p Payload) Event {
	e := Event{Topic: topic, Name: name, Payload: p, Timestamp: b.now().UTC()}
	b.PostEvent(e)
	return e
}

// PostEvent delivers a prepared event.
func (b *Bus) PostEvent(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}

	b.mu.Lock()
	global := append([]*Listener(nil), b.global...)
	topical := append([]*Listener(nil), b.topics[e.Topic]...)
	b.mu.Unlock()

	var dropped uint64
	for _, l := range global {
		if !l.offer(e) {
			dropped++
		}
	}
	for _, l := range topical {
		if containsListener(global, l) {
			continue
		}
		if !l.offer(e) {
			dropped++
		}
	}
	if dropped > 0 {
		b.mu.Lock()
		b.dropped += dropped
		b.mu.Unlock()
	}
}

func containsListener(ls []*Listener, l *Listener) bool {
	for _, x := range ls {
		if x == l {
			return true
		}
	}
	return false
}

// Dropped returns how many deliveries were discarded on full queues.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Consume calls fn for every event on l until ctx ends or l is unsubscribed.
func Consume(ctx context.Context, l *Listener, fn func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case e := <-l.C():
			fn(e)
		}
	}
}

// Publisher is the narrow view of the bus that producers depend on.
type Publisher interface {
	Post(topic, name string, p Payload) Event
}

var _ Publisher = (*Bus)(nil)
