package director

import (
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// ActionKind names what an Action changes.
type ActionKind string

const (
	ActionSetMainSource     ActionKind = "set_main_source"
	ActionSetMicLevel       ActionKind = "set_mic_level"
	ActionSpeakerTrack      ActionKind = "speaker_track"
	ActionPresenterTrackOff ActionKind = "presenter_track_off"
	ActionRemoteCommand     ActionKind = "remote_command"
)

// Action is one device change decided by the director. Only the fields for
// its Kind are set.
type Action struct {
	Kind ActionKind

	Connectors  []int
	Layout      string
	PIPPosition string
	PIPSize     string

	Channel int
	Level   int

	On bool

	Node    topology.NodeID
	Command peer.Command
}

func setMainSource(connectors []int, layout string) Action {
	return Action{Kind: ActionSetMainSource, Connectors: connectors, Layout: layout}
}

func setMicLevel(channel, level int) Action {
	return Action{Kind: ActionSetMicLevel, Channel: channel, Level: level}
}
