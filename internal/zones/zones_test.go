package zones

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

func loadTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Load(filepath.Join("..", "topology", "testdata", "three_way.yaml"))
	require.NoError(t, err)
	return topo
}

func TestBuildProfile_Split(t *testing.T) {
	profile := BuildProfile(loadTopology(t), room.Split)
	require.Equal(t, "Split", profile.Mode)
	require.Len(t, profile.Zones, 2)

	presenter, ok := profile.Zone(LabelPresenter)
	require.True(t, ok)
	require.Equal(t, RolePresenter, presenter.Role)
	require.Equal(t, 3, presenter.Connector)
	require.Equal(t, []int{1}, presenter.Channels)
}

func TestBuildProfile_CombinedNode2(t *testing.T) {
	profile := BuildProfile(loadTopology(t), room.CombinedNode2)
	require.Len(t, profile.Zones, 3)

	_, ok := profile.Zone(LabelNode1Room)
	require.False(t, ok)

	node2, ok := profile.Zone(LabelNode2Room)
	require.True(t, ok)
	require.Equal(t, RoleAudience, node2.Role)
	require.Equal(t, topology.Node2, node2.Node)
	require.Equal(t, 5, node2.Connector)
	require.Equal(t, "Equal", node2.Layout)
	require.Equal(t, 50, node2.High)
}

type fakeZoneServer struct {
	mu       sync.Mutex
	received []string
	conns    chan *websocket.Conn
}

func newFakeZoneServer(t *testing.T) (*fakeZoneServer, string) {
	t.Helper()
	fake := &fakeZoneServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fake.conns <- conn
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fake.mu.Lock()
			fake.received = append(fake.received, string(message))
			fake.mu.Unlock()
		}
	}))
	t.Cleanup(server.Close)
	return fake, "ws" + strings.TrimPrefix(server.URL, "http")
}

func (f *fakeZoneServer) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func TestMonitor_ReplaysStateAndDeliversEvents(t *testing.T) {
	fake, url := newFakeZoneServer(t)

	events := make(chan Event, 4)
	monitor := NewMonitor(url, func(ev Event) { events <- ev }, retry.Policy{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond}, nil)

	require.ErrorIs(t, monitor.SubmitProfile(context.Background(), Profile{Mode: "CombinedAll"}), ErrNotConnected)
	require.ErrorIs(t, monitor.Start(context.Background()), ErrNotConnected)
	require.True(t, monitor.Monitoring())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	var conn *websocket.Conn
	select {
	case conn = <-fake.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not connect")
	}

	require.Eventually(t, func() bool { return len(fake.messages()) >= 2 }, 2*time.Second, 10*time.Millisecond)
	messages := fake.messages()
	require.Contains(t, messages[0], `"type":"profile"`)
	require.Contains(t, messages[0], `"mode":"CombinedAll"`)
	require.JSONEq(t, `{"type":"start"}`, messages[1])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"zone","zone":"NODE 1 ROOM","state":"High","connector":4}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"zone","zone":"NODE 1 ROOM","state":"Loud"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"zone","zone":"PRESENTER","state":"Low"}`)))

	first := <-events
	require.Equal(t, Event{Zone: "NODE 1 ROOM", State: High, Connector: 4}, first)
	second := <-events
	require.Equal(t, "PRESENTER", second.Zone)

	require.True(t, monitor.Connected())
	require.NoError(t, monitor.Stop(context.Background()))
	require.Eventually(t, func() bool {
		messages := fake.messages()
		return len(messages) >= 3 && strings.Contains(messages[len(messages)-1], `"stop"`)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestMonitor_DisabledWithoutURL(t *testing.T) {
	monitor := NewMonitor("", nil, retry.Policy{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, monitor.Run(ctx))
	require.False(t, monitor.Connected())
}
