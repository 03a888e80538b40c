// Package migration decides when the peripherals expected for a combine
// scope have reappeared on the merged network.
package migration

import (
	"slices"
	"time"

	"github.com/strefethen/room-combine-go/internal/peripherals"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// Observation is the outcome of one notification.
type Observation struct {
	// Matched is true when the event added a new expected peripheral.
	Matched bool
	// Repair is set when a touch panel arrived and must be re-paired.
	Repair *topology.Navigator
	// Completed is true only on the event that completed the session.
	Completed bool
}

// Session tracks one combine. Completion is count based and monotonic.
type Session struct {
	Scope       room.Scope
	OperationID string
	StartedAt   time.Time

	expectedMics []string
	expectedNavs []topology.Navigator
	observedMics map[string]bool
	observedNavs map[string]bool
	complete     bool
}

// NewSession creates a session for scope. A scope with nothing to wait for
// is complete immediately.
func NewSession(topo *topology.Topology, scope room.Scope, operationID string, now time.Time) *Session {
	s := &Session{
		Scope:        scope,
		OperationID:  operationID,
		StartedAt:    now,
		expectedMics: topo.ExpectedMicSerials(scope),
		expectedNavs: topo.ExpectedNavigators(scope),
		observedMics: make(map[string]bool),
		observedNavs: make(map[string]bool),
	}
	s.complete = s.countsMet()
	return s
}

// Observe records a notification. Only Connected events for peripherals
// expected in this scope count, each at most once.
func (s *Session) Observe(ev peripherals.Event) Observation {
	if s.complete || ev.Status != peripherals.StatusConnected {
		return Observation{}
	}

	var obs Observation
	if nav, ok := s.matchNavigator(ev); ok {
		if s.observedNavs[nav.ID] {
			return Observation{}
		}
		s.observedNavs[nav.ID] = true
		obs.Matched = true
		if ev.Type == peripherals.TypeTouchPanel || ev.Type == "" {
			repair := nav
			obs.Repair = &repair
		}
	} else if serial, ok := s.matchMic(ev); ok {
		if s.observedMics[serial] {
			return Observation{}
		}
		s.observedMics[serial] = true
		obs.Matched = true
	} else {
		return Observation{}
	}

	if s.countsMet() {
		s.complete = true
		obs.Completed = true
	}
	return obs
}

func (s *Session) matchNavigator(ev peripherals.Event) (topology.Navigator, bool) {
	for _, nav := range s.expectedNavs {
		if nav.ID == ev.ID || (ev.Serial != "" && nav.ID == ev.Serial) {
			return nav, true
		}
	}
	return topology.Navigator{}, false
}

func (s *Session) matchMic(ev peripherals.Event) (string, bool) {
	for _, serial := range s.expectedMics {
		if serial == ev.Serial || (ev.Serial == "" && serial == ev.ID) {
			return serial, true
		}
	}
	return "", false
}

func (s *Session) countsMet() bool {
	return len(s.observedMics) == len(s.expectedMics) && len(s.observedNavs) == len(s.expectedNavs)
}

// Complete reports whether every expected peripheral has been seen.
func (s *Session) Complete() bool {
	return s.complete
}

// Counts returns observed and expected totals for microphones and navigators.
func (s *Session) Counts() (mics, expectedMics, navs, expectedNavs int) {
	return len(s.observedMics), len(s.expectedMics), len(s.observedNavs), len(s.expectedNavs)
}

// Missing lists expected peripherals not yet seen, as "mic:SERIAL" and
// "navigator:ID", sorted.
func (s *Session) Missing() []string {
	var missing []string
	for _, serial := range s.expectedMics {
		if !s.observedMics[serial] {
			missing = append(missing, "mic:"+serial)
		}
	}
	for _, nav := range s.expectedNavs {
		if !s.observedNavs[nav.ID] {
			missing = append(missing, "navigator:"+nav.ID)
		}
	}
	slices.Sort(missing)
	return missing
}
