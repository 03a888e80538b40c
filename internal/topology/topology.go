// Package topology describes the installation: the primary codec, the
// secondary nodes, the switch, and the defaults the director starts from.
package topology

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/strefethen/room-combine-go/internal/room"
)

// Mode is the installation size.
type Mode string

const (
	TwoWay   Mode = "two_way"
	ThreeWay Mode = "three_way"
)

// NodeID identifies a secondary node.
type NodeID string

const (
	Node1 NodeID = "node1"
	Node2 NodeID = "node2"
)

// Navigator roles a touch panel is paired into after migration.
const (
	RoleController = "Controller"
	RoleScheduler  = "RoomScheduler"
)

// Navigator locations a touch panel is paired into after migration.
const (
	LocationInsideRoom  = "InsideRoom"
	LocationOutsideRoom = "OutsideRoom"
)

// Credentials authenticate against a codec or switch.
type Credentials struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Primary is the codec that hosts the combined room.
type Primary struct {
	Credentials `yaml:",inline"`

	Host                   string   `yaml:"host" json:"host"`
	VLANID                 int      `yaml:"vlan_id" json:"vlan_id"`
	Screens                int      `yaml:"screens" json:"screens"`
	ControllerPeripheralID string   `yaml:"controller_peripheral_id" json:"controller_peripheral_id"`
	SchedulerPeripheralID  string   `yaml:"scheduler_peripheral_id,omitempty" json:"scheduler_peripheral_id,omitempty"`
	Platform               string   `yaml:"platform,omitempty" json:"platform,omitempty"`
	PresenterConnector     int      `yaml:"presenter_connector" json:"presenter_connector"`
	AudienceConnector      int      `yaml:"audience_connector" json:"audience_connector"`
	PresenterMics          []int    `yaml:"presenter_mics" json:"presenter_mics"`
	AudienceMics           []int    `yaml:"audience_mics" json:"audience_mics"`
	MicSerials             []string `yaml:"mic_serials,omitempty" json:"mic_serials,omitempty"`
}

// NodeSpec describes one secondary node.
type NodeSpec struct {
	Credentials `yaml:",inline"`

	ID                     NodeID   `yaml:"-" json:"id"`
	Host                   string   `yaml:"host" json:"host"`
	Alias                  string   `yaml:"alias" json:"alias"`
	VLANID                 int      `yaml:"vlan_id" json:"vlan_id"`
	DisplayCount           int      `yaml:"display_count" json:"display_count"`
	ControllerPeripheralID string   `yaml:"controller_peripheral_id" json:"controller_peripheral_id"`
	SchedulerPeripheralID  string   `yaml:"scheduler_peripheral_id,omitempty" json:"scheduler_peripheral_id,omitempty"`
	ExpectedMicSerials     []string `yaml:"expected_mic_serials" json:"expected_mic_serials"`

	// CameraConnector is the primary codec input carrying this node's camera.
	CameraConnector int `yaml:"camera_connector" json:"camera_connector"`

	// MicChannels are this node's microphone inputs once combined.
	MicChannels []int `yaml:"mic_channels,omitempty" json:"mic_channels,omitempty"`

	// Ports overrides the switch model's built-in port table.
	Ports []string `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// SwitchSpec is the access switch carrying the node segments.
type SwitchSpec struct {
	Credentials `yaml:",inline"`

	Model string `yaml:"model" json:"model"`
	Host  string `yaml:"host" json:"host"`
}

// ZoneSettings tune the audio zone monitor and the director.
type ZoneSettings struct {
	HighThreshold int    `yaml:"high_threshold" json:"high_threshold"`
	LowThreshold  int    `yaml:"low_threshold" json:"low_threshold"`
	Layout        string `yaml:"layout" json:"layout"`
	PIPPosition   string `yaml:"pip_position" json:"pip_position"`
	PIPSize       string `yaml:"pip_size" json:"pip_size"`
	DefaultLevel  int    `yaml:"default_mic_level" json:"default_mic_level"`
	DuckedLevel   int    `yaml:"ducked_mic_level" json:"ducked_mic_level"`
}

// Topology is the full installation record.
type Topology struct {
	Mode              Mode                 `yaml:"mode" json:"mode"`
	Switch            SwitchSpec           `yaml:"switch" json:"switch"`
	Primary           Primary              `yaml:"primary" json:"primary"`
	Nodes             map[NodeID]*NodeSpec `yaml:"nodes" json:"nodes"`
	Zones             ZoneSettings         `yaml:"zones" json:"zones"`
	AutomationDefault bool                 `yaml:"automation_default" json:"automation_default"`
	DuckingDefault    bool                 `yaml:"ducking_default" json:"ducking_default"`
	BannerText        string               `yaml:"banner_text,omitempty" json:"banner_text,omitempty"`
	UnlockPIN         string               `yaml:"unlock_pin" json:"-"`
}

// ValidationError lists every problem found in a topology.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid topology: " + strings.Join(e.Problems, "; ")
}

// Load reads and validates a topology file.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML topology document.
func Parse(data []byte) (*Topology, error) {
	var topo Topology
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&topo); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	topo.normalize()
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	return &topo, nil
}

// Save writes the topology as YAML, replacing the file atomically.
func Save(path string, topo *Topology) error {
	data, err := yaml.Marshal(topo)
	if err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write topology: %w", err)
	}
	return os.Rename(tmp, path)
}

func (t *Topology) normalize() {
	for id, node := range t.Nodes {
		if node != nil {
			node.ID = id
		}
	}
	if t.Zones.Layout == "" {
		t.Zones.Layout = "Equal"
	}
	if t.Zones.PIPPosition == "" {
		t.Zones.PIPPosition = "LowerRight"
	}
	if t.Zones.PIPSize == "" {
		t.Zones.PIPSize = "Auto"
	}
	if t.Zones.HighThreshold == 0 {
		t.Zones.HighThreshold = 50
	}
	if t.Zones.LowThreshold == 0 {
		t.Zones.LowThreshold = 30
	}
	if t.Zones.DefaultLevel == 0 {
		t.Zones.DefaultLevel = 58
	}
	if t.Primary.Screens == 0 {
		t.Primary.Screens = 1
	}
}

// Validate reports missing or inconsistent fields.
func (t *Topology) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch t.Mode {
	case TwoWay, ThreeWay:
	default:
		add("mode must be %q or %q", TwoWay, ThreeWay)
	}

	if t.Switch.Model == "" {
		add("switch.model is required")
	}
	if t.Switch.Host == "" {
		add("switch.host is required")
	}

	if t.Primary.Host == "" {
		add("primary.host is required")
	}
	if t.Primary.VLANID <= 0 {
		add("primary.vlan_id is required")
	}
	if t.Primary.PresenterConnector <= 0 {
		add("primary.presenter_connector is required")
	}
	if t.Primary.AudienceConnector <= 0 {
		add("primary.audience_connector is required")
	}

	if t.Nodes[Node1] == nil {
		add("nodes.node1 is required")
	}
	if t.Mode == ThreeWay && t.Nodes[Node2] == nil {
		add("nodes.node2 is required for a three_way topology")
	}
	if t.Mode == TwoWay && t.Nodes[Node2] != nil {
		add("nodes.node2 is only allowed in a three_way topology")
	}
	for id, node := range t.Nodes {
		if id != Node1 && id != Node2 {
			add("unknown node %q", id)
			continue
		}
		if node == nil {
			add("nodes.%s is empty", id)
			continue
		}
		if node.Host == "" {
			add("nodes.%s.host is required", id)
		}
		if node.Alias == "" {
			add("nodes.%s.alias is required", id)
		}
		if node.Username == "" {
			add("nodes.%s.username is required", id)
		}
		if node.VLANID <= 0 {
			add("nodes.%s.vlan_id is required", id)
		} else if node.VLANID == t.Primary.VLANID {
			add("nodes.%s.vlan_id must differ from primary.vlan_id", id)
		}
		if node.CameraConnector <= 0 {
			add("nodes.%s.camera_connector is required", id)
		}
		if node.ControllerPeripheralID == "" {
			add("nodes.%s.controller_peripheral_id is required", id)
		}
		if t.Switch.Model != "" {
			if _, err := t.Switch.PortsFor(node); err != nil {
				add("nodes.%s.ports: %v", id, err)
			}
		}
	}

	if t.UnlockPIN == "" {
		add("unlock_pin is required")
	}
	if t.Zones.LowThreshold >= t.Zones.HighThreshold {
		add("zones.low_threshold must be below zones.high_threshold")
	}

	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return &ValidationError{Problems: problems}
}

// Node returns the spec for id, or nil.
func (t *Topology) Node(id NodeID) *NodeSpec {
	return t.Nodes[id]
}

// ValidScope reports whether scope can be combined in this topology. A
// two-way room only combines All.
func (t *Topology) ValidScope(scope room.Scope) bool {
	switch scope {
	case room.ScopeAll:
		return true
	case room.ScopeNode1, room.ScopeNode2:
		return t.Mode == ThreeWay
	}
	return false
}

// NodesInScope returns the nodes a scope involves, in id order.
func (t *Topology) NodesInScope(scope room.Scope) []*NodeSpec {
	var ids []NodeID
	switch scope {
	case room.ScopeAll:
		ids = []NodeID{Node1, Node2}
	case room.ScopeNode1:
		ids = []NodeID{Node1}
	case room.ScopeNode2:
		ids = []NodeID{Node2}
	}

	nodes := make([]*NodeSpec, 0, len(ids))
	for _, id := range ids {
		if node := t.Nodes[id]; node != nil {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// ExpectedMicSerials is the union of expected microphone serials for scope.
func (t *Topology) ExpectedMicSerials(scope room.Scope) []string {
	var serials []string
	for _, node := range t.NodesInScope(scope) {
		for _, serial := range node.ExpectedMicSerials {
			if serial != "" && !slices.Contains(serials, serial) {
				serials = append(serials, serial)
			}
		}
	}
	return serials
}

// Navigator is a touch panel expected to reappear after migration, with the
// role it is re-paired into.
type Navigator struct {
	ID       string `json:"id"`
	Node     NodeID `json:"node"`
	Location string `json:"location"`
	Role     string `json:"role"`
}

// ExpectedNavigators lists the touch panels for scope. A controller becomes
// an inside-room controller and a scheduler an outside-room scheduler.
func (t *Topology) ExpectedNavigators(scope room.Scope) []Navigator {
	var navs []Navigator
	for _, node := range t.NodesInScope(scope) {
		if node.ControllerPeripheralID != "" {
			navs = append(navs, Navigator{
				ID:       node.ControllerPeripheralID,
				Node:     node.ID,
				Location: LocationInsideRoom,
				Role:     RoleController,
			})
		}
		if node.SchedulerPeripheralID != "" {
			navs = append(navs, Navigator{
				ID:       node.SchedulerPeripheralID,
				Node:     node.ID,
				Location: LocationOutsideRoom,
				Role:     RoleScheduler,
			})
		}
	}
	return navs
}

// AudienceMicChannels lists every non-presenter microphone channel that is
// live in scope. An empty scope means the primary room alone.
func (t *Topology) AudienceMicChannels(scope room.Scope) []int {
	channels := slices.Clone(t.Primary.AudienceMics)
	for _, node := range t.NodesInScope(scope) {
		channels = append(channels, node.MicChannels...)
	}
	return channels
}
