// Package zones holds the audio zone types, builds the zone profile for a
// room state, and keeps a websocket session with the zone monitor.
package zones

import (
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// State is the activity level reported for a zone.
type State string

const (
	High State = "High"
	Low  State = "Low"
)

// Role tells the director how a zone drives composition.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleAudience  Role = "audience"
)

// Zone labels.
const (
	LabelPresenter   = "PRESENTER"
	LabelPrimaryRoom = "PRIMARY ROOM"
	LabelNode1Room   = "NODE 1 ROOM"
	LabelNode2Room   = "NODE 2 ROOM"
)

// Event is one zone activity transition from the monitor.
type Event struct {
	Zone      string `json:"zone"`
	State     State  `json:"state"`
	Connector int    `json:"connector,omitempty"`
	Layout    string `json:"layout,omitempty"`
}

// ZoneConfig declares one zone to the monitor.
type ZoneConfig struct {
	Label     string          `json:"label"`
	Role      Role            `json:"role"`
	Node      topology.NodeID `json:"node,omitempty"`
	Channels  []int           `json:"channels,omitempty"`
	Serials   []string        `json:"serials,omitempty"`
	High      int             `json:"high"`
	Low       int             `json:"low"`
	Connector int             `json:"connector"`
	Layout    string          `json:"layout"`
}

// Profile is the full zone declaration for one room state.
type Profile struct {
	Mode  string       `json:"mode"`
	Zones []ZoneConfig `json:"zones"`
}

// Zone looks up a zone by label.
func (p Profile) Zone(label string) (ZoneConfig, bool) {
	for _, zone := range p.Zones {
		if zone.Label == label {
			return zone, true
		}
	}
	return ZoneConfig{}, false
}

// NodeLabel returns the zone label for a node's room.
func NodeLabel(id topology.NodeID) string {
	switch id {
	case topology.Node1:
		return LabelNode1Room
	case topology.Node2:
		return LabelNode2Room
	}
	return string(id)
}

// BuildProfile builds the profile fresh from the topology for state. Node
// zones are only declared for nodes combined into the room.
func BuildProfile(topo *topology.Topology, state room.State) Profile {
	settings := topo.Zones
	profile := Profile{Mode: state.String()}

	profile.Zones = append(profile.Zones,
		ZoneConfig{
			Label:     LabelPresenter,
			Role:      RolePresenter,
			Channels:  topo.Primary.PresenterMics,
			High:      settings.HighThreshold,
			Low:       settings.LowThreshold,
			Connector: topo.Primary.PresenterConnector,
			Layout:    settings.Layout,
		},
		ZoneConfig{
			Label:     LabelPrimaryRoom,
			Role:      RoleAudience,
			Channels:  topo.Primary.AudienceMics,
			Serials:   topo.Primary.MicSerials,
			High:      settings.HighThreshold,
			Low:       settings.LowThreshold,
			Connector: topo.Primary.AudienceConnector,
			Layout:    settings.Layout,
		},
	)

	scope, ok := state.Scope()
	if !ok {
		return profile
	}
	for _, node := range topo.NodesInScope(scope) {
		profile.Zones = append(profile.Zones, ZoneConfig{
			Label:     NodeLabel(node.ID),
			Role:      RoleAudience,
			Node:      node.ID,
			Channels:  node.MicChannels,
			Serials:   node.ExpectedMicSerials,
			High:      settings.HighThreshold,
			Low:       settings.LowThreshold,
			Connector: node.CameraConnector,
			Layout:    settings.Layout,
		})
	}
	return profile
}
