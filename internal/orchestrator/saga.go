package orchestrator

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// sagaStep is one ordered step for a node. A node's steps run in order and
// stop at the first failure; nodes run concurrently.
type sagaStep struct {
	name string
	run  func(ctx context.Context) error
}

// nodePlan is the ordered step list for one node.
type nodePlan struct {
	node  topology.NodeID
	steps []sagaStep
}

// runSaga executes every plan and posts step changes and the final result
// to the loop. A failed node does not stop the others.
func (o *Orchestrator) runSaga(ctx context.Context, opID string, plans []nodePlan) {
	var group errgroup.Group
	for _, plan := range plans {
		plan := plan
		group.Go(func() error {
			return o.runPlan(ctx, opID, plan)
		})
	}
	err := group.Wait()
	o.post(sagaFinished{opID: opID, err: err})
}

func (o *Orchestrator) runPlan(ctx context.Context, opID string, plan nodePlan) error {
	for i, step := range plan.steps {
		o.post(stepChanged{opID: opID, node: plan.node, step: step.name, status: room.StepStatusRunning})

		err := step.run(ctx)
		if err == nil {
			o.post(stepChanged{opID: opID, node: plan.node, step: step.name, status: room.StepStatusCompleted})
			continue
		}

		status := room.StepStatusFailed
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			status = room.StepStatusCancelled
		}
		o.post(stepChanged{opID: opID, node: plan.node, step: step.name, status: status, err: err})
		for _, skipped := range plan.steps[i+1:] {
			o.post(stepChanged{opID: opID, node: plan.node, step: skipped.name, status: room.StepStatusCancelled})
		}
		return err
	}
	return nil
}

func planSteps(plans []nodePlan) []room.OperationStep {
	var steps []room.OperationStep
	for _, plan := range plans {
		for _, step := range plan.steps {
			steps = append(steps, room.OperationStep{
				Node:   string(plan.node),
				Step:   step.name,
				Status: room.StepStatusPending,
			})
		}
	}
	return steps
}
