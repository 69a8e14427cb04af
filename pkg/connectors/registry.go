package connectors

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sensorbridge/sensorbridge-engine/pkg/apperrors"
	"github.com/sensorbridge/sensorbridge-engine/pkg/config"
	"github.com/sensorbridge/sensorbridge-engine/pkg/sos"
)

// Deps are the collaborators every connector is built with.
type Deps struct {
	Client sos.Client
	Logger *zap.Logger
}

// Registration contains info + factory for creating a connector.
// Priority orders auto-selection: higher-priority connectors are asked
// first, so specific dialects outrank the generic fallback.
type Registration struct {
	Name        string
	Description string
	Priority    int
	Factory     func(Deps) Connector
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each connector's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Name] = reg
}

// RegisteredNames returns the names of all registered connectors,
// sorted for deterministic selection order.
func RegisteredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set holds one instantiated connector per registration. Lookup by the
// persisted connector name happens only at the service boundary; hot
// logic holds Connector values directly.
type Set struct {
	connectors map[string]Connector
	order      []string
	logger     *zap.Logger
}

// NewSet instantiates every registered connector with the given deps.
func NewSet(deps Deps) *Set {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	registryMu.RLock()
	defer registryMu.RUnlock()

	set := &Set{
		connectors: make(map[string]Connector, len(registry)),
		logger:     deps.Logger,
	}
	for name, reg := range registry {
		set.connectors[name] = reg.Factory(deps)
		set.order = append(set.order, name)
	}
	sort.Slice(set.order, func(i, j int) bool {
		a, b := registry[set.order[i]], registry[set.order[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Name < b.Name
	})
	return set
}

// Resolve returns the connector registered under name.
func (s *Set) Resolve(name string) (Connector, error) {
	conn, ok := s.connectors[name]
	if !ok {
		return nil, fmt.Errorf("connector %q: %w", name, apperrors.ErrNotFound)
	}
	return conn, nil
}

// Select picks the connector for a configured endpoint. A source may
// pin a connector by name; otherwise the first connector (in priority
// order) whose CanHandle claims the capabilities wins.
func (s *Set) Select(src config.Source, caps *sos.Capabilities) (Connector, error) {
	if src.Connector != "" {
		return s.Resolve(src.Connector)
	}

	for _, name := range s.order {
		if s.connectors[name].CanHandle(src, caps) {
			return s.connectors[name], nil
		}
	}
	return nil, fmt.Errorf("source %q: %w", src.Name, apperrors.ErrNoConnector)
}
