// Package director turns audio zone activity into camera composition and
// microphone ducking. The Director is not safe for concurrent use; the
// orchestrator loop owns it.
package director

import (
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
	"github.com/strefethen/room-combine-go/internal/zones"
)

// Composition is what the main video currently shows.
type Composition string

const (
	CompositionSingle            Composition = "single"
	CompositionPresenterOnly     Composition = "presenter_only"
	CompositionPIP               Composition = "pip"
	CompositionSideBySide        Composition = "side_by_side"
	CompositionRoomsAndPresenter Composition = "rooms_and_presenter"
)

// DuckState records whether audience microphones are attenuated.
type DuckState string

const (
	Unducked DuckState = "unducked"
	Ducked   DuckState = "ducked"
)

// Layout is an operator layout choice.
type Layout string

const (
	LayoutAutomatic         Layout = "automatic"
	LayoutSideBySide        Layout = "side_by_side"
	LayoutRoomsAndPresenter Layout = "rooms_and_presenter"
)

// ErrUnknownLayout is returned by SetLayout for an unrecognized layout.
var ErrUnknownLayout = errors.New("unknown layout")

// ParseLayout validates an operator layout.
func ParseLayout(value string) (Layout, error) {
	switch Layout(value) {
	case LayoutAutomatic, LayoutSideBySide, LayoutRoomsAndPresenter:
		return Layout(value), nil
	}
	return "", ErrUnknownLayout
}

// Settings are the fixed inputs to the director.
//
// AudienceHold only moves Memory.AudienceDeadline forward when an audience
// camera takes over; the deadline is reported through Status. A presenter
// event from PIP goes presenter-only whether or not the deadline has passed,
// so the value never changes which actions are returned.
type Settings struct {
	Hold         time.Duration
	AudienceHold time.Duration

	PresenterConnector int
	DefaultConnector   int
	PIPPosition        string
	PIPSize            string
	DefaultLevel       int
	DuckedLevel        int
}

// SettingsFromTopology fills the connector and level settings from topo.
func SettingsFromTopology(topo *topology.Topology, hold, audienceHold time.Duration) Settings {
	return Settings{
		Hold:               hold,
		AudienceHold:       audienceHold,
		PresenterConnector: topo.Primary.PresenterConnector,
		DefaultConnector:   topo.Primary.AudienceConnector,
		PIPPosition:        topo.Zones.PIPPosition,
		PIPSize:            topo.Zones.PIPSize,
		DefaultLevel:       topo.Zones.DefaultLevel,
		DuckedLevel:        topo.Zones.DuckedLevel,
	}
}

// Memory is the director's mutable state.
type Memory struct {
	LastConnector    int
	Composition      Composition
	HoldUntil        time.Time
	Duck             DuckState
	AudienceDeadline time.Time
}

// Status is a read-only view for the API.
type Status struct {
	Automation     bool              `json:"automation"`
	Ducking        bool              `json:"ducking"`
	Memory         Memory            `json:"memory"`
	RemoteTracking []topology.NodeID `json:"remote_tracking"`
}

// Director decides composition and ducking for each zone event.
type Director struct {
	settings   Settings
	zones      map[string]zones.ZoneConfig
	audience   []int
	automation bool
	ducking    bool
	mem        Memory
	logger     *zerolog.Logger

	// nodes told to EnableST since the last Reset
	tracking []topology.NodeID
}

// New creates a Director with the topology defaults for automation and ducking.
func New(settings Settings, automation, ducking bool, logger *zerolog.Logger) *Director {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "director").Logger()
	d := &Director{
		settings:   settings,
		zones:      map[string]zones.ZoneConfig{},
		automation: automation,
		ducking:    ducking,
		logger:     &componentLogger,
	}
	d.resetMemory()
	return d
}

// Configure installs the zone profile for a new room state and resets memory.
func (d *Director) Configure(settings Settings, profile zones.Profile, audienceChannels []int) {
	d.settings = settings
	d.zones = make(map[string]zones.ZoneConfig, len(profile.Zones))
	for _, zone := range profile.Zones {
		d.zones[zone.Label] = zone
	}
	d.audience = slices.Clone(audienceChannels)
	d.resetMemory()
}

// ConfigureFor builds the profile and audience channels for state from topo.
func (d *Director) ConfigureFor(topo *topology.Topology, settings Settings, state room.State) zones.Profile {
	profile := zones.BuildProfile(topo, state)
	scope, _ := state.Scope()
	d.Configure(settings, profile, topo.AudienceMicChannels(scope))
	return profile
}

func (d *Director) resetMemory() {
	d.mem = Memory{
		LastConnector: d.settings.DefaultConnector,
		Composition:   CompositionSingle,
		Duck:          Unducked,
	}
}

func (d *Director) Memory() Memory {
	return d.mem
}

func (d *Director) Status() Status {
	return Status{
		Automation:     d.automation,
		Ducking:        d.ducking,
		Memory:         d.mem,
		RemoteTracking: slices.Clone(d.tracking),
	}
}

// HandleZoneEvent returns the actions for one zone event at now. Ducking is
// decided first and never waits on the hold timer; composition only changes
// on a High event once the hold has elapsed.
func (d *Director) HandleZoneEvent(ev zones.Event, now time.Time) []Action {
	if !d.automation {
		return nil
	}
	zone, ok := d.zones[ev.Zone]
	if !ok {
		d.logger.Debug().Str("zone", ev.Zone).Msg("event for undeclared zone")
		return nil
	}

	actions := d.duck(zone, ev.State)

	if now.Before(d.mem.HoldUntil) {
		return actions
	}
	if ev.State != zones.High {
		return actions
	}

	camera := ev.Connector
	if camera == 0 {
		camera = zone.Connector
	}
	layout := ev.Layout
	if layout == "" {
		layout = zone.Layout
	}

	var composed []Action
	if zone.Role == zones.RolePresenter {
		composed = d.presenterHigh()
	} else {
		composed = d.audienceHigh(zone, camera, layout, now)
	}
	if len(composed) == 0 {
		return actions
	}

	d.mem.HoldUntil = now.Add(d.settings.Hold)
	return append(actions, composed...)
}

func (d *Director) duck(zone zones.ZoneConfig, state zones.State) []Action {
	if !d.ducking || zone.Role != zones.RolePresenter {
		return nil
	}
	switch {
	case state == zones.High && d.mem.Duck == Unducked:
		d.mem.Duck = Ducked
		return d.micLevels(d.settings.DuckedLevel)
	case state == zones.Low && d.mem.Duck == Ducked:
		d.mem.Duck = Unducked
		return d.micLevels(d.settings.DefaultLevel)
	}
	return nil
}

func (d *Director) micLevels(level int) []Action {
	actions := make([]Action, 0, len(d.audience))
	for _, channel := range d.audience {
		actions = append(actions, setMicLevel(channel, level))
	}
	return actions
}

// presenterHigh: from PIP the presenter takes the whole screen. From an
// audience camera the presenter joins as the primary of a PIP.
func (d *Director) presenterHigh() []Action {
	presenter := d.settings.PresenterConnector
	switch d.mem.Composition {
	case CompositionPIP:
		d.mem.Composition = CompositionPresenterOnly
		d.mem.LastConnector = presenter
		return []Action{setMainSource([]int{presenter}, codec.LayoutEqual)}
	case CompositionSingle:
		if d.mem.LastConnector == presenter {
			return nil
		}
		return []Action{d.pip(d.mem.LastConnector)}
	}
	return nil
}

func (d *Director) audienceHigh(zone zones.ZoneConfig, camera int, layout string, now time.Time) []Action {
	switch d.mem.Composition {
	case CompositionPIP:
		if camera == d.mem.LastConnector {
			return nil
		}
		fallthrough
	case CompositionPresenterOnly:
		actions := []Action{d.pip(camera)}
		d.mem.LastConnector = camera
		d.mem.AudienceDeadline = now.Add(d.settings.AudienceHold)
		return append(actions, d.speakerTrack(zone))
	case CompositionSingle:
		if camera == d.mem.LastConnector {
			return nil
		}
		d.mem.LastConnector = camera
		d.mem.AudienceDeadline = now.Add(d.settings.AudienceHold)
		return []Action{setMainSource([]int{camera}, layout), d.speakerTrack(zone)}
	}
	return nil
}

func (d *Director) pip(inset int) Action {
	d.mem.Composition = CompositionPIP
	action := setMainSource([]int{d.settings.PresenterConnector, inset}, codec.LayoutPIP)
	action.PIPPosition = d.settings.PIPPosition
	action.PIPSize = d.settings.PIPSize
	return action
}

// speakerTrack frames the speaker in the zone's room: locally for the
// primary room, through the node's macros otherwise. Remote nodes are
// remembered so Reset can turn their framing back off.
func (d *Director) speakerTrack(zone zones.ZoneConfig) Action {
	if zone.Node == "" {
		return Action{Kind: ActionSpeakerTrack, On: true}
	}
	if !slices.Contains(d.tracking, zone.Node) {
		d.tracking = append(d.tracking, zone.Node)
	}
	return Action{Kind: ActionRemoteCommand, Node: zone.Node, Command: peer.CommandEnableST}
}

// SetAutomation turns zone-driven composition on or off. Either way memory
// starts over; audience microphones are restored if they were ducked.
func (d *Director) SetAutomation(on bool) []Action {
	actions := d.restoreMics()
	d.automation = on
	d.resetMemory()
	d.logger.Info().Bool("automation", on).Msg("automation changed")
	return actions
}

// SetDucking enables or disables ducking, restoring levels when disabled.
func (d *Director) SetDucking(on bool) []Action {
	d.ducking = on
	d.logger.Info().Bool("ducking", on).Msg("ducking changed")
	if on {
		return nil
	}
	return d.restoreMics()
}

func (d *Director) restoreMics() []Action {
	if d.mem.Duck != Ducked {
		return nil
	}
	d.mem.Duck = Unducked
	return d.micLevels(d.settings.DefaultLevel)
}

// SetLayout applies an operator layout. Fixed layouts switch automation off
// until LayoutAutomatic is chosen.
func (d *Director) SetLayout(layout Layout) ([]Action, error) {
	rooms := d.roomConnectors()
	switch layout {
	case LayoutAutomatic:
		return d.SetAutomation(true), nil
	case LayoutSideBySide:
		actions := d.SetAutomation(false)
		d.mem.Composition = CompositionSideBySide
		return append(actions, setMainSource(rooms, codec.LayoutEqual)), nil
	case LayoutRoomsAndPresenter:
		actions := d.SetAutomation(false)
		d.mem.Composition = CompositionRoomsAndPresenter
		connectors := append([]int{d.settings.PresenterConnector}, rooms...)
		return append(actions, setMainSource(connectors, codec.LayoutProminent)), nil
	}
	return nil, ErrUnknownLayout
}

// roomConnectors lists the distinct audience cameras of the current profile.
func (d *Director) roomConnectors() []int {
	var connectors []int
	for _, zone := range d.zones {
		if zone.Role != zones.RoleAudience || zone.Connector == 0 {
			continue
		}
		if !slices.Contains(connectors, zone.Connector) {
			connectors = append(connectors, zone.Connector)
		}
	}
	slices.Sort(connectors)
	if len(connectors) == 0 {
		connectors = []int{d.settings.DefaultConnector}
	}
	return connectors
}

// Reset returns the room to the default single source and clears memory.
// Ducked microphones are restored first, and every node whose framing was
// switched on is sent DisableST.
func (d *Director) Reset() []Action {
	actions := d.restoreMics()
	for _, node := range d.tracking {
		actions = append(actions, Action{Kind: ActionRemoteCommand, Node: node, Command: peer.CommandDisableST})
	}
	d.tracking = nil
	d.resetMemory()
	return append(actions, setMainSource([]int{d.settings.DefaultConnector}, codec.LayoutEqual))
}
