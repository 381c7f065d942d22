package session

import "sync"

// EventType es el tipo de un evento de sesión.
type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventIdentityChanged EventType = "identity_changed"
	EventLoggedOut       EventType = "logged_out"
)

// Event lleva la foto del estado al momento de emitirse.
type Event struct {
	Type  EventType
	State State
}

const subscriberBuffer = 16

type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: map[int]chan Event{}}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// publish no bloquea: un suscriptor lento pierde eventos.
func (b *broadcaster) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
