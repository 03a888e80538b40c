package director

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
	"github.com/strefethen/room-combine-go/internal/zones"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testSettings() Settings {
	return Settings{
		Hold:               5 * time.Second,
		AudienceHold:       15 * time.Second,
		PresenterConnector: 3,
		DefaultConnector:   1,
		PIPPosition:        "LowerRight",
		PIPSize:            "Auto",
		DefaultLevel:       58,
		DuckedLevel:        0,
	}
}

func testProfile() zones.Profile {
	return zones.Profile{
		Mode: "CombinedAll",
		Zones: []zones.ZoneConfig{
			{Label: zones.LabelPresenter, Role: zones.RolePresenter, Connector: 3, Layout: "Equal"},
			{Label: zones.LabelPrimaryRoom, Role: zones.RoleAudience, Connector: 1, Layout: "Equal"},
			{Label: zones.LabelNode1Room, Role: zones.RoleAudience, Node: topology.Node1, Connector: 4, Layout: "Equal"},
			{Label: zones.LabelNode2Room, Role: zones.RoleAudience, Node: topology.Node2, Connector: 5, Layout: "Prominent"},
		},
	}
}

func newTestDirector(ducking bool) *Director {
	d := New(testSettings(), true, ducking, nil)
	d.Configure(testSettings(), testProfile(), []int{2, 3, 4, 5, 6})
	return d
}

func high(zone string) zones.Event {
	return zones.Event{Zone: zone, State: zones.High}
}

func low(zone string) zones.Event {
	return zones.Event{Zone: zone, State: zones.Low}
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, action := range actions {
		out = append(out, action.Kind)
	}
	return out
}

func TestHandleZoneEvent_AudienceSwitchesSingleSource(t *testing.T) {
	d := newTestDirector(false)

	actions := d.HandleZoneEvent(high(zones.LabelNode1Room), t0)
	require.Len(t, actions, 2)
	require.Equal(t, setMainSource([]int{4}, "Equal"), actions[0])
	require.Equal(t, Action{Kind: ActionRemoteCommand, Node: topology.Node1, Command: peer.CommandEnableST}, actions[1])

	mem := d.Memory()
	require.Equal(t, 4, mem.LastConnector)
	require.Equal(t, CompositionSingle, mem.Composition)
	require.Equal(t, t0.Add(5*time.Second), mem.HoldUntil)
	require.Equal(t, t0.Add(15*time.Second), mem.AudienceDeadline)
	require.Equal(t, mem.AudienceDeadline, d.Status().Memory.AudienceDeadline)
}

func TestHandleZoneEvent_UsesEventConnectorAndLayout(t *testing.T) {
	d := newTestDirector(false)

	actions := d.HandleZoneEvent(zones.Event{Zone: zones.LabelNode2Room, State: zones.High, Connector: 6, Layout: "Equal"}, t0)
	require.Equal(t, setMainSource([]int{6}, "Equal"), actions[0])

	d = newTestDirector(false)
	actions = d.HandleZoneEvent(high(zones.LabelNode2Room), t0)
	require.Equal(t, setMainSource([]int{5}, "Prominent"), actions[0])
}

func TestHandleZoneEvent_HoldDebounce(t *testing.T) {
	d := newTestDirector(false)
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))

	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode2Room), t0.Add(time.Second)))
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode2Room), t0.Add(4999*time.Millisecond)))
	require.Equal(t, 4, d.Memory().LastConnector)
	require.Equal(t, t0.Add(5*time.Second), d.Memory().HoldUntil, "ignored events never extend the hold")

	at := t0.Add(5 * time.Second)
	actions := d.HandleZoneEvent(high(zones.LabelNode2Room), at)
	require.Equal(t, []ActionKind{ActionSetMainSource, ActionRemoteCommand}, kinds(actions))
	require.True(t, d.Memory().HoldUntil.After(at))
}

func TestHandleZoneEvent_SameCameraNoRedundantCall(t *testing.T) {
	d := newTestDirector(false)
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))

	later := t0.Add(time.Minute)
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), later))
	require.Equal(t, t0.Add(5*time.Second), d.Memory().HoldUntil)

	fresh := newTestDirector(false)
	require.Empty(t, fresh.HandleZoneEvent(high(zones.LabelPrimaryRoom), t0), "default source already shows the primary room")
}

func TestHandleZoneEvent_LowNeverComposes(t *testing.T) {
	d := newTestDirector(false)
	require.Empty(t, d.HandleZoneEvent(low(zones.LabelNode1Room), t0))
	require.True(t, d.Memory().HoldUntil.IsZero())
}

func TestHandleZoneEvent_PresenterAndPIP(t *testing.T) {
	d := newTestDirector(false)
	now := t0

	// audience single, presenter speaks: presenter primary with the room inset
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), now))
	now = now.Add(6 * time.Second)
	actions := d.HandleZoneEvent(high(zones.LabelPresenter), now)
	require.Len(t, actions, 1)
	require.Equal(t, []int{3, 4}, actions[0].Connectors)
	require.Equal(t, codec.LayoutPIP, actions[0].Layout)
	require.Equal(t, "LowerRight", actions[0].PIPPosition)
	require.Equal(t, "Auto", actions[0].PIPSize)
	require.Equal(t, CompositionPIP, d.Memory().Composition)

	// PIP, same audience camera: nothing to do
	now = now.Add(6 * time.Second)
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), now))

	// PIP, different audience camera: new inset and framing in that room
	actions = d.HandleZoneEvent(high(zones.LabelPrimaryRoom), now)
	require.Equal(t, []ActionKind{ActionSetMainSource, ActionSpeakerTrack}, kinds(actions))
	require.Equal(t, []int{3, 1}, actions[0].Connectors)
	require.True(t, actions[1].On)
	require.Equal(t, now.Add(15*time.Second), d.Memory().AudienceDeadline)

	// PIP, presenter speaks: presenter only
	now = now.Add(6 * time.Second)
	actions = d.HandleZoneEvent(high(zones.LabelPresenter), now)
	require.Equal(t, []Action{setMainSource([]int{3}, codec.LayoutEqual)}, actions)
	require.Equal(t, CompositionPresenterOnly, d.Memory().Composition)

	// presenter only, presenter again: nothing
	now = now.Add(6 * time.Second)
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelPresenter), now))

	// presenter only, audience speaks: PIP with that room
	actions = d.HandleZoneEvent(high(zones.LabelNode2Room), now)
	require.Equal(t, []int{3, 5}, actions[0].Connectors)
	require.Equal(t, Action{Kind: ActionRemoteCommand, Node: topology.Node2, Command: peer.CommandEnableST}, actions[1])
	require.Equal(t, CompositionPIP, d.Memory().Composition)
}

func TestHandleZoneEvent_PresenterFromPIPIgnoresAudienceDeadline(t *testing.T) {
	d := newTestDirector(false)
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(5*time.Second)))
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode2Room), t0.Add(10*time.Second)))

	// within the audience hold and after it behave the same
	within := d.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(15*time.Second))
	require.Equal(t, []int{3}, within[0].Connectors)

	other := newTestDirector(false)
	require.NotEmpty(t, other.HandleZoneEvent(high(zones.LabelNode1Room), t0))
	require.NotEmpty(t, other.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(5*time.Second)))
	require.NotEmpty(t, other.HandleZoneEvent(high(zones.LabelNode2Room), t0.Add(10*time.Second)))
	after := other.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(time.Hour))
	require.Equal(t, within, after)
}

func TestHandleZoneEvent_DuckingIndependentOfHold(t *testing.T) {
	d := newTestDirector(true)
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))

	// hold active: ducks, composition untouched
	actions := d.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(time.Second))
	require.Len(t, actions, 5)
	for i, channel := range []int{2, 3, 4, 5, 6} {
		require.Equal(t, setMicLevel(channel, 0), actions[i])
	}
	require.Equal(t, Ducked, d.Memory().Duck)
	require.Equal(t, CompositionSingle, d.Memory().Composition)

	// hold elapsed, already ducked: composition only
	actions = d.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(6*time.Second))
	require.Equal(t, []ActionKind{ActionSetMainSource}, kinds(actions))

	// presenter quiet: restore, even inside the hold
	actions = d.HandleZoneEvent(low(zones.LabelPresenter), t0.Add(7*time.Second))
	require.Len(t, actions, 5)
	require.Equal(t, 58, actions[0].Level)
	require.Equal(t, Unducked, d.Memory().Duck)
}

func TestHandleZoneEvent_DuckingDisabled(t *testing.T) {
	d := newTestDirector(false)
	actions := d.HandleZoneEvent(high(zones.LabelPresenter), t0)
	require.NotContains(t, kinds(actions), ActionSetMicLevel)
}

func TestHandleZoneEvent_UnknownZoneAndAutomationOff(t *testing.T) {
	d := newTestDirector(true)
	require.Empty(t, d.HandleZoneEvent(high("LOBBY"), t0))

	d.SetAutomation(false)
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelPresenter), t0))
}

func TestSetAutomation_ResetsMemoryAndRestoresMics(t *testing.T) {
	d := newTestDirector(true)
	d.HandleZoneEvent(high(zones.LabelPresenter), t0)
	require.Equal(t, Ducked, d.Memory().Duck)

	actions := d.SetAutomation(false)
	require.Len(t, actions, 5)
	require.False(t, d.Status().Automation)

	require.Empty(t, d.SetAutomation(true))
	mem := d.Memory()
	require.Equal(t, 1, mem.LastConnector)
	require.True(t, mem.HoldUntil.IsZero())
	require.Equal(t, Unducked, mem.Duck)
}

func TestSetDucking(t *testing.T) {
	d := newTestDirector(true)
	d.HandleZoneEvent(high(zones.LabelPresenter), t0)

	actions := d.SetDucking(false)
	require.Len(t, actions, 5)
	require.False(t, d.Status().Ducking)
	require.Empty(t, d.SetDucking(true))
}

func TestSetLayout(t *testing.T) {
	d := newTestDirector(false)

	actions, err := d.SetLayout(LayoutSideBySide)
	require.NoError(t, err)
	require.Equal(t, []Action{setMainSource([]int{1, 4, 5}, codec.LayoutEqual)}, actions)
	require.False(t, d.Status().Automation)
	require.Equal(t, CompositionSideBySide, d.Memory().Composition)
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))

	actions, err = d.SetLayout(LayoutRoomsAndPresenter)
	require.NoError(t, err)
	require.Equal(t, []Action{setMainSource([]int{3, 1, 4, 5}, codec.LayoutProminent)}, actions)

	actions, err = d.SetLayout(LayoutAutomatic)
	require.NoError(t, err)
	require.Empty(t, actions)
	require.True(t, d.Status().Automation)
	require.NotEmpty(t, d.HandleZoneEvent(high(zones.LabelNode1Room), t0))

	_, err = d.SetLayout("grid")
	require.ErrorIs(t, err, ErrUnknownLayout)
}

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout("rooms_and_presenter")
	require.NoError(t, err)
	require.Equal(t, LayoutRoomsAndPresenter, layout)

	_, err = ParseLayout("")
	require.ErrorIs(t, err, ErrUnknownLayout)
}

func TestReset(t *testing.T) {
	d := newTestDirector(true)
	d.HandleZoneEvent(high(zones.LabelNode1Room), t0)
	d.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(time.Second))

	actions := d.Reset()
	require.Len(t, actions, 7)
	require.Equal(t, Action{Kind: ActionRemoteCommand, Node: topology.Node1, Command: peer.CommandDisableST}, actions[5])
	require.Equal(t, setMainSource([]int{1}, codec.LayoutEqual), actions[6])

	mem := d.Memory()
	require.Equal(t, CompositionSingle, mem.Composition)
	require.Equal(t, 1, mem.LastConnector)
	require.True(t, mem.HoldUntil.IsZero())
	require.Empty(t, d.Status().RemoteTracking)
}

func TestReset_DisablesFramingOnEveryTrackedNode(t *testing.T) {
	d := newTestDirector(false)
	d.HandleZoneEvent(high(zones.LabelNode1Room), t0)
	d.HandleZoneEvent(high(zones.LabelNode2Room), t0.Add(10*time.Second))
	d.HandleZoneEvent(high(zones.LabelNode1Room), t0.Add(20*time.Second))
	d.HandleZoneEvent(high(zones.LabelPrimaryRoom), t0.Add(30*time.Second))
	require.Equal(t, []topology.NodeID{topology.Node1, topology.Node2}, d.Status().RemoteTracking)

	actions := d.Reset()
	require.Equal(t, []Action{
		{Kind: ActionRemoteCommand, Node: topology.Node1, Command: peer.CommandDisableST},
		{Kind: ActionRemoteCommand, Node: topology.Node2, Command: peer.CommandDisableST},
		setMainSource([]int{1}, codec.LayoutEqual),
	}, actions)

	// a second reset has nothing left to turn off
	require.Equal(t, []Action{setMainSource([]int{1}, codec.LayoutEqual)}, d.Reset())
}

func TestSetAutomation_KeepsTrackedNodesForReset(t *testing.T) {
	d := newTestDirector(false)
	d.HandleZoneEvent(high(zones.LabelNode2Room), t0)
	require.Empty(t, d.SetAutomation(false))

	actions := d.Reset()
	require.Equal(t, Action{Kind: ActionRemoteCommand, Node: topology.Node2, Command: peer.CommandDisableST}, actions[0])
}

func TestConfigureFor(t *testing.T) {
	topo, err := topology.Load("../topology/testdata/three_way.yaml")
	require.NoError(t, err)

	d := New(Settings{}, true, true, nil)
	settings := SettingsFromTopology(topo, 5*time.Second, 15*time.Second)
	profile := d.ConfigureFor(topo, settings, room.CombinedNode1)
	require.Equal(t, "CombinedNode1", profile.Mode)

	actions := d.HandleZoneEvent(high(zones.LabelNode1Room), t0)
	require.Equal(t, []int{4}, actions[0].Connectors)
	require.Empty(t, d.HandleZoneEvent(high(zones.LabelNode2Room), t0.Add(time.Minute)))

	actions = d.HandleZoneEvent(high(zones.LabelPresenter), t0.Add(time.Minute))
	require.Equal(t, ActionSetMicLevel, actions[0].Kind)
	require.Equal(t, 2, actions[0].Channel)
}
