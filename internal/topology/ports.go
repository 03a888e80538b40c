package topology

import (
	"fmt"
	"slices"
	"strings"

	"github.com/strefethen/room-combine-go/internal/room"
)

// PortTable maps each node to the access ports its peripherals use.
type PortTable map[NodeID][]string

var builtinPorts = map[string]PortTable{
	"C9200CX-12P": {
		Node1: {"1/0/5", "1/0/6", "1/0/7", "1/0/8"},
		Node2: {"1/0/9", "1/0/10", "1/0/11", "1/0/12"},
	},
	"C9200CX-8P": {
		Node1: {"1/0/3", "1/0/4", "1/0/5"},
		Node2: {"1/0/6", "1/0/7", "1/0/8"},
	},
	"C9200L-24P-4G": {
		Node1: {"1/0/9", "1/0/10", "1/0/11", "1/0/12", "1/0/13", "1/0/14", "1/0/15", "1/0/16"},
		Node2: {"1/0/17", "1/0/18", "1/0/19", "1/0/20", "1/0/21", "1/0/22", "1/0/23", "1/0/24"},
	},
}

// SupportedSwitchModels lists switch models with a built-in port table.
func SupportedSwitchModels() []string {
	models := make([]string, 0, len(builtinPorts))
	for model := range builtinPorts {
		models = append(models, model)
	}
	slices.Sort(models)
	return models
}

// PortsFor returns the node's port override, or the built-in table entry
// for the switch model.
func (s SwitchSpec) PortsFor(node *NodeSpec) ([]string, error) {
	if node == nil {
		return nil, fmt.Errorf("node is required")
	}
	if len(node.Ports) > 0 {
		return slices.Clone(node.Ports), nil
	}
	table, ok := builtinPorts[s.Model]
	if !ok {
		return nil, fmt.Errorf("switch model %q has no port table (supported: %s); set ports on %s",
			s.Model, strings.Join(SupportedSwitchModels(), ", "), node.ID)
	}
	ports, ok := table[node.ID]
	if !ok {
		return nil, fmt.Errorf("switch model %q has no ports for %s", s.Model, node.ID)
	}
	return slices.Clone(ports), nil
}

// ScopePorts resolves the ports of every node in scope. A combine must not
// start unless this succeeds.
func (t *Topology) ScopePorts(scope room.Scope) (map[NodeID][]string, error) {
	nodes := t.NodesInScope(scope)
	out := make(map[NodeID][]string, len(nodes))
	for _, node := range nodes {
		ports, err := t.Switch.PortsFor(node)
		if err != nil {
			return nil, err
		}
		out[node.ID] = ports
	}
	return out, nil
}
