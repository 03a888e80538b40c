package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/room-combine-go/internal/db"
	"github.com/strefethen/room-combine-go/internal/room"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTopologyCheck(t *testing.T) {
	out, err := execute(t, "topology", "check", filepath.Join("..", "topology", "testdata", "three_way.yaml"))
	require.NoError(t, err)
	require.Contains(t, out, "mode:   three_way")
	require.Contains(t, out, "Node1")
	require.Contains(t, out, "node2[1/0/11,1/0/12]")
}

func TestTopologyCheck_Missing(t *testing.T) {
	_, err := execute(t, "topology", "check", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	dbPair, err := db.Init(path)
	require.NoError(t, err)
	require.NoError(t, room.NewStateRepository(dbPair).Save(room.Record{Mode: room.CombinedNode2, Screens: 2}))
	_, err = room.NewOperationsRepository(dbPair).Create(room.CreateOperationInput{Kind: room.OperationCombine, Scope: room.ScopeNode2, From: room.Split, To: room.CombinedNode2})
	require.NoError(t, err)
	require.NoError(t, dbPair.Close())

	out, err := execute(t, "state", "--db", path)
	require.NoError(t, err)
	require.Contains(t, out, "mode:       CombinedNode2")
	require.Contains(t, out, "operations: 1")
	require.Contains(t, out, "Split -> CombinedNode2")
}
