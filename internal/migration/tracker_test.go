package migration

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/peripherals"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

func loadTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Load(filepath.Join("..", "topology", "testdata", "three_way.yaml"))
	require.NoError(t, err)
	return topo
}

func connected(id, kind, serial string) peripherals.Event {
	return peripherals.Event{ID: id, Type: kind, Serial: serial, Status: peripherals.StatusConnected}
}

func TestSession_Node1Completes(t *testing.T) {
	session := NewSession(loadTopology(t), room.ScopeNode1, "op-1", time.Now())
	require.False(t, session.Complete())

	obs := session.Observe(connected("mic-a", peripherals.TypeMicrophone, "N1-MIC-A"))
	require.True(t, obs.Matched)
	require.False(t, obs.Completed)

	obs = session.Observe(connected("nav-node1-ctl", peripherals.TypeTouchPanel, "FOC123"))
	require.True(t, obs.Matched)
	require.NotNil(t, obs.Repair)
	require.Equal(t, topology.LocationInsideRoom, obs.Repair.Location)
	require.Equal(t, topology.RoleController, obs.Repair.Role)

	obs = session.Observe(connected("mic-b", peripherals.TypeMicrophone, "N1-MIC-B"))
	require.True(t, obs.Completed)
	require.True(t, session.Complete())
	require.Empty(t, session.Missing())
}

func TestSession_IgnoresOtherScopesAndDuplicates(t *testing.T) {
	session := NewSession(loadTopology(t), room.ScopeNode1, "op-1", time.Now())

	require.False(t, session.Observe(connected("mic-x", peripherals.TypeMicrophone, "N2-MIC-A")).Matched)
	require.True(t, session.Observe(connected("mic-a", peripherals.TypeMicrophone, "N1-MIC-A")).Matched)
	require.False(t, session.Observe(connected("mic-a", peripherals.TypeMicrophone, "N1-MIC-A")).Matched)

	disconnected := connected("mic-b", peripherals.TypeMicrophone, "N1-MIC-B")
	disconnected.Status = peripherals.StatusDisconnected
	require.False(t, session.Observe(disconnected).Matched)

	mics, expectedMics, navs, expectedNavs := session.Counts()
	require.Equal(t, 1, mics)
	require.Equal(t, 2, expectedMics)
	require.Equal(t, 0, navs)
	require.Equal(t, 1, expectedNavs)
	require.Equal(t, []string{"mic:N1-MIC-B", "navigator:nav-node1-ctl"}, session.Missing())
}

func TestSession_MonotonicAfterCompletion(t *testing.T) {
	session := NewSession(loadTopology(t), room.ScopeNode2, "op-2", time.Now())

	session.Observe(connected("m", peripherals.TypeMicrophone, "N2-MIC-A"))
	session.Observe(connected("nav-node2-ctl", peripherals.TypeTouchPanel, ""))
	obs := session.Observe(connected("other", peripherals.TypeTouchPanel, "nav-node2-sch"))
	require.True(t, obs.Completed)
	require.Equal(t, topology.RoleScheduler, obs.Repair.Role)

	again := session.Observe(connected("nav-node2-ctl", peripherals.TypeTouchPanel, ""))
	require.Equal(t, Observation{}, again)
	require.True(t, session.Complete())
	mics, _, navs, _ := session.Counts()
	require.Equal(t, 1, mics)
	require.Equal(t, 2, navs)
}

func TestSession_NothingExpectedIsComplete(t *testing.T) {
	topo := loadTopology(t)
	topo.Node(topology.Node1).ExpectedMicSerials = nil
	topo.Node(topology.Node1).ControllerPeripheralID = ""

	session := NewSession(topo, room.ScopeNode1, "op-3", time.Now())
	require.True(t, session.Complete())
}
