package connectivity

import "sync"

// Monitor holds the device's reachability flag and fans transitions out to
// subscribers. It performs no network calls of its own; the host runtime (or a
// Prober) reports state through SetOnline.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   []subscription

	// notifyMu serializes deliveries so subscribers observe transitions in order.
	notifyMu sync.Mutex
}

type subscription struct {
	id int
	fn func(online bool)
}

// NewMonitor returns a monitor seeded with the initial reachability state.
func NewMonitor(initialOnline bool) *Monitor {
	return &Monitor{online: initialOnline}
}

// IsOnline reports the last known reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers fn, invokes it once with the current state and then on
// every transition. The returned func removes the subscription.
func (m *Monitor) OnChange(fn func(online bool)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.notifyMu.Lock()
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	current := m.online
	m.mu.Unlock()
	fn(current)
	m.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.subs {
				if sub.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SetOnline records a reachability signal. Subscribers are called only when
// the state actually changes. Callbacks must not call SetOnline themselves.
func (m *Monitor) SetOnline(online bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]subscription, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(online)
	}
}
