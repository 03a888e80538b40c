package topology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/room"
)

func TestPortsFor(t *testing.T) {
	sw := SwitchSpec{Model: "C9200CX-12P"}
	node1 := &NodeSpec{ID: Node1}
	ports, err := sw.PortsFor(node1)
	require.NoError(t, err)
	require.Equal(t, []string{"1/0/5", "1/0/6", "1/0/7", "1/0/8"}, ports)

	unknown := SwitchSpec{Model: "C9300-48P"}
	override := &NodeSpec{ID: Node2, Ports: []string{"1/0/1"}}
	ports, err = unknown.PortsFor(override)
	require.NoError(t, err)
	require.Equal(t, []string{"1/0/1"}, ports)

	_, err = unknown.PortsFor(node1)
	require.ErrorContains(t, err, "C9200CX-12P, C9200CX-8P, C9200L-24P-4G")

	_, err = sw.PortsFor(nil)
	require.Error(t, err)
}

func TestValidate_RejectsNodeWithoutPorts(t *testing.T) {
	topo := loadFixture(t)
	topo.Switch.Model = "C9300-48P"

	var validation *ValidationError
	require.ErrorAs(t, topo.Validate(), &validation)
	joined := strings.Join(validation.Problems, "\n")
	require.Contains(t, joined, "nodes.node1.ports")
	require.Contains(t, joined, "supported: C9200CX-12P")
	// node2 carries its own ports
	require.NotContains(t, joined, "nodes.node2.ports")

	topo.Node(Node1).Ports = []string{"1/0/1", "1/0/2"}
	require.NoError(t, topo.Validate())
}

func TestScopePorts(t *testing.T) {
	topo := loadFixture(t)

	ports, err := topo.ScopePorts(room.ScopeAll)
	require.NoError(t, err)
	require.Equal(t, []string{"1/0/5", "1/0/6", "1/0/7", "1/0/8"}, ports[Node1])
	require.Equal(t, []string{"1/0/11", "1/0/12"}, ports[Node2])

	topo.Switch.Model = "C9300-48P"
	_, err = topo.ScopePorts(room.ScopeNode2)
	require.NoError(t, err)
	_, err = topo.ScopePorts(room.ScopeAll)
	require.Error(t, err)
}
