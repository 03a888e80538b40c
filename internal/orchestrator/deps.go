package orchestrator

import (
	"context"
	"time"

	"github.com/strefethen/room-combine-go/internal/audit"
	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/panel"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/peripherals"
	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
	"github.com/strefethen/room-combine-go/internal/zones"
)

// Switch moves node ports between VLANs.
type Switch interface {
	Combine(ctx context.Context, node *topology.NodeSpec, primaryVLAN int) error
	Split(ctx context.Context, node *topology.NodeSpec) error
}

// Messenger carries command tokens to nodes.
type Messenger interface {
	Send(ctx context.Context, node *topology.NodeSpec, cmd peer.Command) error
	Dispatch(ctx context.Context, node *topology.NodeSpec, cmd peer.Command)
}

// ActivityChecker reads call and sharing state of nodes.
type ActivityChecker interface {
	CheckAll(ctx context.Context, nodes []*topology.NodeSpec) []peer.NodeActivity
}

// ZoneMonitor is the audio zone monitor session.
type ZoneMonitor interface {
	SubmitProfile(ctx context.Context, profile zones.Profile) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PeripheralSource delivers peripheral notifications.
type PeripheralSource interface {
	Subscribe() (<-chan peripherals.Event, func())
}

// ActionRunner executes director actions off the loop.
type ActionRunner interface {
	Enqueue(actions []director.Action) bool
	SetTopology(topo *topology.Topology)
}

// StateStore persists the room state record.
type StateStore interface {
	Load() (room.Record, error)
	Save(record room.Record) error
}

// OperationStore persists combine and split operations.
type OperationStore interface {
	Create(input room.CreateOperationInput) (*room.Operation, error)
	GetByID(opID string) (*room.Operation, error)
	List(limit, offset int) ([]room.Operation, int, error)
	UpdateStep(opID, node, stepName string, update room.StepUpdate) error
	Complete(opID string, status room.OperationStatus, missing []string, errMsg *string) error
	CancelOpen() (int64, error)
}

// Auditor records audit events. requestID may be empty for events no API
// request caused.
type Auditor interface {
	RecordRequest(requestID string, eventType audit.EventType, level audit.EventLevel, operationID, nodeID, message string, payload map[string]any)
}

// Timing holds the orchestrator's delays.
type Timing struct {
	SettleDelay         time.Duration
	ProgressInterval    time.Duration
	MigrationTimeout    time.Duration
	RepairDelay         time.Duration
	ConfirmationTimeout time.Duration
	Hold                time.Duration
	AudienceHold        time.Duration
	// ActivityTimeout bounds the pre-combine activity check. Nodes that have
	// not answered by then are refused as unreachable.
	ActivityTimeout time.Duration
}

const defaultActivityTimeout = 5 * time.Second

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Topology     *topology.Topology
	TopologyPath string

	Switch      Switch
	Messenger   Messenger
	Activity    ActivityChecker
	Codec       peer.Executor
	Monitor     ZoneMonitor
	Peripherals PeripheralSource
	Actions     ActionRunner
	State       StateStore
	Operations  OperationStore
	Audit       Auditor
	Panel       *panel.Board

	Timing        Timing
	Retry         retry.Policy
	BannerEnabled bool
}

func primaryTarget(topo *topology.Topology) codec.Target {
	return codec.Target{
		Host:     topo.Primary.Host,
		Username: topo.Primary.Username,
		Password: topo.Primary.Password,
	}
}
