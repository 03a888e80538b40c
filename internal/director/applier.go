package director

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/topology"
)

const defaultQueueSize = 32

// RemoteDispatcher hands a command to a node without waiting for it.
type RemoteDispatcher interface {
	Dispatch(ctx context.Context, node *topology.NodeSpec, cmd peer.Command)
}

// Applier executes director actions against the primary codec and the
// nodes. Batches run in order on one worker goroutine.
type Applier struct {
	exec   peer.Executor
	remote RemoteDispatcher
	logger *zerolog.Logger
	queue  chan []Action

	mu   sync.RWMutex
	topo *topology.Topology
}

// NewApplier creates an Applier for topo.
func NewApplier(exec peer.Executor, remote RemoteDispatcher, topo *topology.Topology, logger *zerolog.Logger) *Applier {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "applier").Logger()
	return &Applier{
		exec:   exec,
		remote: remote,
		topo:   topo,
		logger: &componentLogger,
		queue:  make(chan []Action, defaultQueueSize),
	}
}

// SetTopology swaps the topology used for targets.
func (a *Applier) SetTopology(topo *topology.Topology) {
	a.mu.Lock()
	a.topo = topo
	a.mu.Unlock()
}

func (a *Applier) topology() *topology.Topology {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.topo
}

// Enqueue schedules a batch without blocking. A full queue drops the batch.
func (a *Applier) Enqueue(actions []Action) bool {
	if len(actions) == 0 {
		return true
	}
	select {
	case a.queue <- actions:
		return true
	default:
		a.logger.Warn().Int("actions", len(actions)).Msg("action queue full, dropping batch")
		return false
	}
}

// Run executes queued batches until ctx ends.
func (a *Applier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case actions := <-a.queue:
			if err := a.Apply(ctx, actions); err != nil {
				a.logger.Warn().Err(err).Msg("director actions incomplete")
			}
		}
	}
}

// Apply executes actions in order. A failing action is logged and the rest
// still run; the first error is returned.
func (a *Applier) Apply(ctx context.Context, actions []Action) error {
	topo := a.topology()
	primary := codec.Target{
		Host:     topo.Primary.Host,
		Username: topo.Primary.Username,
		Password: topo.Primary.Password,
	}

	var firstErr error
	for _, action := range actions {
		err := a.apply(ctx, topo, primary, action)
		if err == nil {
			continue
		}
		a.logger.Warn().Err(err).Str("action", string(action.Kind)).Msg("director action failed")
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (a *Applier) apply(ctx context.Context, topo *topology.Topology, primary codec.Target, action Action) error {
	switch action.Kind {
	case ActionSetMainSource:
		return a.exec.Execute(ctx, primary, codec.SetMainVideoSource(action.Connectors, action.Layout, action.PIPPosition, action.PIPSize))
	case ActionSetMicLevel:
		return a.exec.Execute(ctx, primary, codec.MicrophoneLevel(action.Channel, action.Level))
	case ActionSpeakerTrack:
		return a.exec.Execute(ctx, primary, codec.SpeakerTrack(action.On))
	case ActionPresenterTrackOff:
		return a.exec.Execute(ctx, primary, codec.PresenterTrackOff())
	case ActionRemoteCommand:
		node := topo.Node(action.Node)
		if node == nil {
			return fmt.Errorf("remote command %s: unknown node %s", action.Command, action.Node)
		}
		a.remote.Dispatch(ctx, node, action.Command)
		return nil
	}
	return fmt.Errorf("unknown action kind %q", action.Kind)
}
