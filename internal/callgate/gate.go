// Package callgate switches the room between in-call and idle behavior as
// the active call count changes.
package callgate

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/room"
)

// Transition is what a call count change did.
type Transition string

const (
	TransitionNone        Transition = ""
	TransitionCallStarted Transition = "call_started"
	TransitionCallEnded   Transition = "call_ended"
)

// Monitor starts and stops zone event streaming.
type Monitor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Surfaces are the panel surfaces the gate toggles.
type Surfaces interface {
	ShowInCallControls()
	ShowIdleSurfaces()
	ShowBanner(text string)
	ClearBanner()
}

// Resetter returns the director to its default composition.
type Resetter interface {
	Reset() []director.Action
}

// Enqueuer runs director actions.
type Enqueuer interface {
	Enqueue(actions []director.Action) bool
}

// Gate is driven by the orchestrator loop and is not safe for concurrent use.
type Gate struct {
	monitor       Monitor
	surfaces      Surfaces
	director      Resetter
	applier       Enqueuer
	bannerEnabled bool
	banner        string
	logger        *zerolog.Logger

	calls   int
	engaged bool
}

// New creates a Gate.
func New(monitor Monitor, surfaces Surfaces, dir Resetter, applier Enqueuer, bannerEnabled bool, logger *zerolog.Logger) *Gate {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "callgate").Logger()
	return &Gate{
		monitor:       monitor,
		surfaces:      surfaces,
		director:      dir,
		applier:       applier,
		bannerEnabled: bannerEnabled,
		logger:        &componentLogger,
	}
}

// SetBanner sets the "combined with" text shown while idle.
func (g *Gate) SetBanner(text string) {
	g.banner = text
}

func (g *Gate) Calls() int {
	return g.calls
}

// Engaged reports whether in-call behavior is active.
func (g *Gate) Engaged() bool {
	return g.engaged
}

// OnActiveCalls records count and acts only when the count crosses zero.
// Calls in a room that is not combined are only counted.
func (g *Gate) OnActiveCalls(ctx context.Context, count int, state room.State) Transition {
	if count < 0 {
		count = 0
	}
	previous := g.calls
	g.calls = count

	switch {
	case previous == 0 && count > 0:
		if !state.IsCombined() || g.engaged {
			return TransitionNone
		}
		g.engage(ctx)
		return TransitionCallStarted
	case previous > 0 && count == 0:
		if !g.engaged {
			return TransitionNone
		}
		g.disengage(ctx)
		return TransitionCallEnded
	}
	return TransitionNone
}

// Rearm engages in-call behavior for a call that started before the room
// finished combining.
func (g *Gate) Rearm(ctx context.Context, state room.State) Transition {
	if g.calls == 0 || g.engaged || !state.IsCombined() {
		return TransitionNone
	}
	g.engage(ctx)
	return TransitionCallStarted
}

// Release drops in-call behavior without touching devices. Split does its
// own reset.
func (g *Gate) Release() {
	g.engaged = false
}

func (g *Gate) engage(ctx context.Context) {
	g.engaged = true
	if err := g.monitor.Start(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("zone monitoring start deferred")
	}
	g.surfaces.ShowInCallControls()
	g.surfaces.ClearBanner()
	g.logger.Info().Int("calls", g.calls).Msg("call started, zone monitoring on")
}

func (g *Gate) disengage(ctx context.Context) {
	g.engaged = false
	if err := g.monitor.Stop(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("zone monitoring stop deferred")
	}

	actions := g.director.Reset()
	actions = append(actions, director.Action{Kind: director.ActionPresenterTrackOff})
	g.applier.Enqueue(actions)

	g.surfaces.ShowIdleSurfaces()
	if g.bannerEnabled && g.banner != "" {
		g.surfaces.ShowBanner(g.banner)
	}
	g.logger.Info().Msg("call ended, zone monitoring off")
}
