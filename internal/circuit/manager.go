package circuit

import "sync"

// Manager owns one Breaker per endpoint, created lazily on first use and
// kept for the engine's lifetime so failure history survives across cycles.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	onChange OnStateChange
	breakers map[string]*Breaker
}

// NewManager constructs a Manager that lazily creates breakers using cfg
// for every endpoint id it has not seen before.
func NewManager(cfg Config, onChange OnStateChange) *Manager {
	return &Manager{
		cfg:      cfg,
		onChange: onChange,
		breakers: map[string]*Breaker{},
	}
}

// For returns the Breaker for endpointID, creating it on first use.
func (m *Manager) For(endpointID string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[endpointID]
	if !ok {
		b = New(endpointID, m.cfg, m.onChange)
		m.breakers[endpointID] = b
	}
	return b
}
