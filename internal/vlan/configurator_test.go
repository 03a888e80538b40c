package vlan

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/topology"
)

type fakeSwitch struct {
	mu       sync.Mutex
	statuses []int
	bodies   []map[string]any
}

func (f *fakeSwitch) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, interfacePath, r.URL.Path)
		user, _, _ := r.BasicAuth()
		assert.Equal(t, "netadmin", user)

		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))

		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		status := http.StatusNoContent
		if len(f.statuses) > 0 {
			status = f.statuses[0]
			f.statuses = f.statuses[1:]
		}
		f.mu.Unlock()

		w.WriteHeader(status)
	}
}

func (f *fakeSwitch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func newTestConfigurator(t *testing.T, fake *fakeSwitch, policy retry.Policy) *Configurator {
	t.Helper()
	server := httptest.NewTLSServer(fake.handler(t))
	t.Cleanup(server.Close)
	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	sw := topology.SwitchSpec{Model: "C9200CX-12P", Host: parsed.Host}
	sw.Username = "netadmin"
	sw.Password = "pw"
	return NewConfigurator(sw, 2*time.Second, true, policy, nil)
}

func fastPolicy(max int) retry.Policy {
	return retry.Policy{MaxAttempts: max, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestBuildBody(t *testing.T) {
	body, err := BuildBody([]string{"1/0/5", "1/0/6"}, 100)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"Cisco-IOS-XE-native:interface": {
			"GigabitEthernet": [
				{"name": "1/0/5", "switchport": {"Cisco-IOS-XE-switch:access": {"vlan": {"vlan": 100}}}},
				{"name": "1/0/6", "switchport": {"Cisco-IOS-XE-switch:access": {"vlan": {"vlan": 100}}}}
			]
		}
	}`, string(body))
}

func TestCombine_RetriesUntil204(t *testing.T) {
	fake := &fakeSwitch{statuses: []int{http.StatusInternalServerError, http.StatusOK}}
	configurator := newTestConfigurator(t, fake, fastPolicy(5))

	node := &topology.NodeSpec{ID: topology.Node2, VLANID: 202}
	require.NoError(t, configurator.Combine(context.Background(), node, 100))
	require.Equal(t, 3, fake.calls())

	last := fake.bodies[2]["Cisco-IOS-XE-native:interface"].(map[string]any)["GigabitEthernet"].([]any)
	require.Len(t, last, 4)
	first := last[0].(map[string]any)
	require.Equal(t, "1/0/9", first["name"])
}

func TestSplit_UsesNodeVLAN(t *testing.T) {
	fake := &fakeSwitch{}
	configurator := newTestConfigurator(t, fake, fastPolicy(1))

	node := &topology.NodeSpec{ID: topology.Node1, VLANID: 201}
	require.NoError(t, configurator.Split(context.Background(), node))

	raw, err := json.Marshal(fake.bodies[0])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"vlan":201`)
}

func TestAssign_GivesUpAfterPolicy(t *testing.T) {
	fake := &fakeSwitch{statuses: []int{500, 500, 500, 500}}
	configurator := newTestConfigurator(t, fake, fastPolicy(2))

	err := configurator.Combine(context.Background(), &topology.NodeSpec{ID: topology.Node1, VLANID: 201}, 100)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, 500, status.Status)
	require.Equal(t, 2, fake.calls())
}

func TestAssign_CancelledContext(t *testing.T) {
	fake := &fakeSwitch{}
	configurator := newTestConfigurator(t, fake, fastPolicy(0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := configurator.Combine(ctx, &topology.NodeSpec{ID: topology.Node1}, 100)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, fake.calls())
}
