package orchestrator

import (
	"context"
	"fmt"

	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/room"
)

// startSplit returns the room to Split. The persisted state is written
// first; switch and node work follows asynchronously. A combine still
// waiting on migration is cancelled.
func (o *Orchestrator) startSplit() (*room.Operation, error) {
	if o.state == room.Split {
		return nil, ErrAlreadySplit
	}
	scope, _ := o.state.Scope()
	from := o.record.Mode

	if o.op != nil {
		o.abandon(o.op)
		o.op = nil
	}

	nodes := o.topo.NodesInScope(scope)
	plans := make([]nodePlan, 0, len(nodes))
	for _, node := range nodes {
		node := node
		plans = append(plans, nodePlan{
			node: node.ID,
			steps: []sagaStep{
				{name: room.StepVLAN, run: func(ctx context.Context) error {
					return o.deps.Switch.Split(ctx, node)
				}},
				{name: room.StepSignal, run: func(ctx context.Context) error {
					return o.deps.Messenger.Send(ctx, node, peer.CommandSplit)
				}},
			},
		})
	}

	record, err := o.deps.Operations.Create(room.CreateOperationInput{
		Kind:  room.OperationSplit,
		Scope: scope,
		From:  from,
		To:    room.Split,
		Steps: planSteps(plans),
	})
	if err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	state := o.recordFor(room.Split)
	if err := o.deps.State.Save(state); err != nil {
		message := err.Error()
		_ = o.deps.Operations.Complete(record.OperationID, room.OperationStatusFailed, nil, &message)
		return nil, fmt.Errorf("persist room state: %w", err)
	}
	o.record = state

	o.deps.Actions.Enqueue(o.director.Reset())
	if err := o.deps.Monitor.Stop(o.runCtx); err != nil {
		o.reqLogger().Debug().Err(err).Msg("zone monitor not stopped")
	}
	o.gate.Release()
	o.armed = false

	previous := o.state
	o.state = room.Split
	o.recordTransition(record.OperationID, previous, room.Split, room.Split)

	o.deps.Panel.ClearBanner()
	o.deps.Panel.ResetProgress()
	o.deps.Panel.ShowIdleSurfaces()
	o.configureDirector(o.runCtx, room.Split)

	ctx, cancel := context.WithCancel(o.runCtx)
	o.op = &activeOp{
		id:        record.OperationID,
		kind:      room.OperationSplit,
		scope:     scope,
		target:    room.Split,
		startedAt: o.now(),
		ctx:       ctx,
		cancel:    cancel,
		requestID: o.request,
	}
	go o.runSaga(ctx, record.OperationID, plans)

	o.reqLogger().Info().Str("operation_id", record.OperationID).Str("from", from.String()).Msg("split dispatched")
	return record, nil
}
