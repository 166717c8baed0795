package polling

import (
	"sync"
)

// Visibility reports whether the host is active and notifies when that changes.
// A poller only invokes its source while the host is active, unless
// background polling is enabled.
type Visibility interface {
	// Active reports the current state.
	Active() bool

	// Subscribe returns a channel that receives a notification after every
	// change of state, and a function that ends the subscription.
	// Notifications may coalesce; receivers read Active for the new state.
	Subscribe() (<-chan struct{}, func())
}

type alwaysActive struct{}

// AlwaysActive returns a Visibility that is always active and never changes.
func AlwaysActive() Visibility {
	return alwaysActive{}
}

func (alwaysActive) Active() bool { return true }

func (alwaysActive) Subscribe() (<-chan struct{}, func()) {
	return nil, func() {}
}

// Toggle is a Visibility driven by the host through SetActive.
// It is safe for concurrent use.
type Toggle struct {
	mu     sync.Mutex
	active bool
	subs   map[chan struct{}]struct{}
}

// NewToggle returns a Toggle with the given initial state.
func NewToggle(active bool) *Toggle {
	return &Toggle{
		active: active,
		subs:   make(map[chan struct{}]struct{}),
	}
}

// Active implements Visibility.
func (t *Toggle) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// SetActive changes the state and notifies subscribers.
// Setting the current state again is not a change and notifies nobody.
func (t *Toggle) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == active {
		return
	}
	t.active = active

	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A notification is already pending.
		}
	}
}

// Subscribe implements Visibility.
func (t *Toggle) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			t.mu.Unlock()
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (t *Toggle) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
