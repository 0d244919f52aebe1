package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyururu/cohost/config"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/telemetry"
)

var (
	// ErrUnknownService is returned for operations on an unregistered name.
	ErrUnknownService = errors.New("unknown service")
	// ErrServiceDisabled is returned when a service's capability is off.
	ErrServiceDisabled = errors.New("service disabled")
)

// Kind names a connector implementation the factory can build.
type Kind string

const (
	KindOneCommeLegacy Kind = "onecomme_legacy"
	KindOneCommeNew    Kind = "onecomme_new"
	KindMultiViewer    Kind = "multiviewer"
	KindManual         Kind = "manual"
	KindTCPLine        Kind = "tcpline"
	KindTwitch         Kind = "twitch"
)

// Capability reports whether a connector kind can run in this process. A
// disabled capability carries the reason (e.g. missing credentials); callers
// check flags instead of probing at runtime.
type Capability struct {
	Kind    Kind   `json:"kind"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Factory builds connectors, resolving capabilities once from config.
type Factory struct {
	bus *events.Bus
	cfg *config.Config
}

func NewFactory(bus *events.Bus, cfg *config.Config) *Factory {
	return &Factory{bus: bus, cfg: cfg}
}

// Capability resolves whether kind can run.
func (f *Factory) Capability(kind Kind) Capability {
	switch kind {
	case KindOneCommeLegacy, KindOneCommeNew, KindMultiViewer, KindManual, KindTCPLine:
		return Capability{Kind: kind, Enabled: true}
	case KindTwitch:
		if err := f.cfg.ValidateTwitchReady(); err != nil {
			return Capability{Kind: kind, Enabled: false, Reason: err.Error()}
		}
		return Capability{Kind: kind, Enabled: true}
	default:
		return Capability{Kind: kind, Enabled: false, Reason: fmt.Sprintf("unknown connector kind %q", kind)}
	}
}

// New builds a connector of the given kind, or an error when its capability
// is disabled.
func (f *Factory) New(kind Kind) (Connector, error) {
	if cap := f.Capability(kind); !cap.Enabled {
		return nil, fmt.Errorf("connector %s unavailable: %s", kind, cap.Reason)
	}
	switch kind {
	case KindOneCommeLegacy:
		return NewOneCommeLegacy(f.bus), nil
	case KindOneCommeNew:
		return NewOneCommeNew(f.bus), nil
	case KindMultiViewer:
		return NewMultiViewer(f.bus), nil
	case KindManual:
		return NewManual(f.bus), nil
	case KindTCPLine:
		return NewTCPLine(f.bus), nil
	case KindTwitch:
		return NewTwitch(f.bus, f.cfg.TwitchBotUsername, f.cfg.TwitchOAuthToken), nil
	default:
		return nil, fmt.Errorf("unknown connector kind %q", kind)
	}
}

// ServiceState is the externally visible state record of one registered
// comment service.
type ServiceState struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	AutoStart bool   `json:"auto_start"`
	Enabled   bool   `json:"enabled"`
	Reason    string `json:"reason,omitempty"`
}

type service struct {
	kind      Kind
	url       string
	autoStart bool
	enabled   bool
	reason    string
	conn      Connector
}

// Manager owns every registered comment service and its connector instance.
// It is the single holder of per-service state; nothing else keeps service
// registries.
type Manager struct {
	factory *Factory

	mu       sync.Mutex
	services map[string]*service
	order    []string
}

func NewManager(factory *Factory) *Manager {
	return &Manager{
		factory:  factory,
		services: make(map[string]*service),
	}
}

// Register adds a service under name. A kind whose capability is disabled
// still registers (so it shows up in status) but cannot connect.
func (m *Manager) Register(name string, kind Kind, url string, autoStart bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[name]; ok {
		return fmt.Errorf("service %q already registered", name)
	}

	svc := &service{kind: kind, url: url, autoStart: autoStart}
	if cap := m.factory.Capability(kind); !cap.Enabled {
		svc.reason = cap.Reason
		slog.Info("bridge: service registered disabled", slog.String("service", name), slog.String("reason", cap.Reason))
	} else {
		conn, err := m.factory.New(kind)
		if err != nil {
			return err
		}
		svc.conn = conn
		svc.enabled = true
	}
	m.services[name] = svc
	m.order = append(m.order, name)
	return nil
}

// Connect connects the named service using its registered URL, or overrideURL
// when non-empty.
func (m *Manager) Connect(ctx context.Context, name, overrideURL string) error {
	m.mu.Lock()
	svc, ok := m.services[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	if overrideURL != "" {
		svc.url = overrideURL
	}
	enabled, reason, target, conn := svc.enabled, svc.reason, svc.url, svc.conn
	m.mu.Unlock()

	if !enabled {
		return fmt.Errorf("%w: %q: %s", ErrServiceDisabled, name, reason)
	}
	if target == "" {
		return fmt.Errorf("service %q has no target configured", name)
	}
	err := conn.Connect(ctx, target)
	m.updateConnectedGauge()
	return err
}

// Disconnect disconnects the named service; unknown or disabled services are
// a no-op error.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	svc, ok := m.services[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	if svc.conn != nil {
		svc.conn.Disconnect()
	}
	m.updateConnectedGauge()
	return nil
}

// DisconnectAll tears down every connector, used at shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	conns := make([]Connector, 0, len(m.services))
	for _, svc := range m.services {
		if svc.conn != nil {
			conns = append(conns, svc.conn)
		}
	}
	m.mu.Unlock()
	for _, c := range conns {
		c.Disconnect()
	}
	m.updateConnectedGauge()
}

// StartAuto connects every service whose auto-start flag is set. Failures are
// logged per service and never abort the others.
func (m *Manager) StartAuto(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if m.services[name].autoStart {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	for _, name := range names {
		if err := m.Connect(ctx, name, ""); err != nil {
			slog.Warn("bridge: auto-start connect failed", slog.String("service", name), slog.Any("err", err))
		}
	}
}

// SetAutoStart updates the auto-start flag of a registered service.
func (m *Manager) SetAutoStart(name string, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	svc.autoStart = v
	return nil
}

// States returns a snapshot of every service record in registration order.
func (m *Manager) States() []ServiceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ServiceState, 0, len(m.order))
	for _, name := range m.order {
		svc := m.services[name]
		st := ServiceState{
			Name:      name,
			Kind:      svc.kind,
			URL:       svc.url,
			AutoStart: svc.autoStart,
			Enabled:   svc.enabled,
			Reason:    svc.reason,
		}
		if svc.conn != nil {
			st.Connected = svc.conn.IsConnected()
			if u := svc.conn.URL(); u != "" {
				st.URL = u
			}
		}
		out = append(out, st)
	}
	return out
}

// ConnectedCount reports how many services are currently connected.
func (m *Manager) ConnectedCount() int {
	n := 0
	for _, st := range m.States() {
		if st.Connected {
			n++
		}
	}
	return n
}

func (m *Manager) updateConnectedGauge() {
	telemetry.SetConnectedSources(m.ConnectedCount())
}
