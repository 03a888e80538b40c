package zones

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/retry"
)

// ErrNotConnected is returned by commands sent while no session is open.
// The desired state is still recorded and replayed on connect.
var ErrNotConnected = errors.New("zone monitor not connected")

type outgoingMessage struct {
	Type    string   `json:"type"`
	Profile *Profile `json:"profile,omitempty"`
}

type incomingMessage struct {
	Type      string `json:"type"`
	Zone      string `json:"zone"`
	State     State  `json:"state"`
	Connector int    `json:"connector"`
	Layout    string `json:"layout"`
}

// Monitor keeps a websocket session with the zone monitor, replays the
// desired profile and start/stop state on every (re)connect, and hands zone
// events to the handler from the read goroutine.
type Monitor struct {
	url          string
	handler      func(Event)
	dialer       *websocket.Dialer
	policy       retry.Policy
	pingInterval time.Duration
	logger       *zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	profile    *Profile
	monitoring bool
}

// NewMonitor creates a Monitor. An empty url disables the connection while
// still recording the desired state.
func NewMonitor(url string, handler func(Event), policy retry.Policy, logger *zerolog.Logger) *Monitor {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "zones").Logger()
	return &Monitor{
		url:          url,
		handler:      handler,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		policy:       policy,
		pingInterval: 30 * time.Second,
		logger:       &componentLogger,
	}
}

// Run dials and reads until ctx ends, reconnecting with backoff.
func (m *Monitor) Run(ctx context.Context) error {
	if m.url == "" {
		m.logger.Info().Msg("zone monitor url not set, running without zone events")
		<-ctx.Done()
		return nil
	}

	failures := 0
	for {
		connected, err := m.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			failures = 0
		} else {
			failures++
		}

		delay := m.policy.Delay(failures + 1)
		m.logger.Warn().Err(err).Dur("retry_in", delay).Msg("zone monitor session ended")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection. connected is false when the dial failed.
func (m *Monitor) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := m.dialer.DialContext(ctx, m.url, http.Header{})
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.conn = conn
	profile := m.profile
	monitoring := m.monitoring
	m.mu.Unlock()

	m.logger.Info().Str("url", m.url).Msg("zone monitor connected")

	if profile != nil {
		if err := m.write(outgoingMessage{Type: "profile", Profile: profile}); err != nil {
			m.drop(conn)
			return true, err
		}
	}
	if monitoring {
		if err := m.write(outgoingMessage{Type: "start"}); err != nil {
			m.drop(conn)
			return true, err
		}
	}

	stopPing := make(chan struct{})
	go m.pingLoop(stopPing)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stopPing:
		}
	}()

	err = m.readLoop(conn)
	close(stopPing)
	m.drop(conn)
	return true, err
}

func (m *Monitor) readLoop(conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var incoming incomingMessage
		if err := json.Unmarshal(message, &incoming); err != nil {
			m.logger.Warn().Err(err).Msg("unparseable zone monitor message")
			continue
		}

		switch incoming.Type {
		case "pong":
		case "zone":
			if incoming.State != High && incoming.State != Low {
				m.logger.Warn().Str("zone", incoming.Zone).Str("state", string(incoming.State)).Msg("unknown zone state")
				continue
			}
			if m.handler != nil {
				m.handler(Event{
					Zone:      incoming.Zone,
					State:     incoming.State,
					Connector: incoming.Connector,
					Layout:    incoming.Layout,
				})
			}
		default:
			m.logger.Debug().Str("type", incoming.Type).Msg("ignoring zone monitor message")
		}
	}
}

func (m *Monitor) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.write(outgoingMessage{Type: "ping"}); err != nil && !errors.Is(err, ErrNotConnected) {
				m.logger.Warn().Err(err).Msg("zone monitor ping failed")
			}
		case <-stop:
			return
		}
	}
}

func (m *Monitor) drop(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	conn.Close()
}

func (m *Monitor) write(msg outgoingMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	return m.conn.WriteJSON(msg)
}

// SubmitProfile records profile and sends it if connected.
func (m *Monitor) SubmitProfile(ctx context.Context, profile Profile) error {
	m.mu.Lock()
	m.profile = &profile
	m.mu.Unlock()
	m.logger.Info().Str("mode", profile.Mode).Int("zones", len(profile.Zones)).Msg("zone profile submitted")
	return m.write(outgoingMessage{Type: "profile", Profile: &profile})
}

// Start asks the monitor to begin streaming zone events.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	m.monitoring = true
	m.mu.Unlock()
	return m.write(outgoingMessage{Type: "start"})
}

// Stop asks the monitor to stop streaming zone events.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.monitoring = false
	m.mu.Unlock()
	return m.write(outgoingMessage{Type: "stop"})
}

// Connected reports whether a session is open.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Monitoring reports the desired start/stop state.
func (m *Monitor) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}
