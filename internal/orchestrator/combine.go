package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/room-combine-go/internal/audit"
	"github.com/strefethen/room-combine-go/internal/callgate"
	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/migration"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/room"
)

// activeOp is the combine or split the loop is driving.
type activeOp struct {
	id        string
	kind      room.OperationKind
	scope     room.Scope
	target    room.State
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	// requestID is the API request that confirmed the operation.
	requestID string

	session     *migration.Session
	unsubscribe func()
	timers      []*time.Timer
	stopTicks   chan struct{}
	stopOnce    sync.Once
	progress    int

	sagaDone      bool
	sagaErr       error
	migrationDone bool
	directorDone  bool
	missing       []string
	finished      bool
}

// stop cancels the saga context and every timer and subscription of op.
func (op *activeOp) stop() {
	op.cancel()
	op.stopProgress()
	if op.unsubscribe != nil {
		op.unsubscribe()
		op.unsubscribe = nil
	}
	for _, timer := range op.timers {
		timer.Stop()
	}
}

func (op *activeOp) stopProgress() {
	if op.stopTicks == nil {
		return
	}
	op.stopOnce.Do(func() { close(op.stopTicks) })
}

func (o *Orchestrator) current(opID string) *activeOp {
	if o.op == nil || o.op.id != opID {
		return nil
	}
	return o.op
}

// checkPorts refuses scope when the switch ports of a node in it cannot be
// resolved.
func (o *Orchestrator) checkPorts(scope room.Scope) error {
	if _, err := o.topo.ScopePorts(scope); err != nil {
		o.auditEvent(audit.EventCombineRefused, audit.LevelWarn, "", "", err.Error(), map[string]any{
			"scope": string(scope),
		})
		o.reqLogger().Warn().Err(err).Str("scope", string(scope)).Msg("combine refused")
		return fmt.Errorf("%w: %v", ErrPortsUnresolved, err)
	}
	return nil
}

// startCombine persists the terminal state, then dispatches the per-node
// VLAN and signal steps, tracks migration, and schedules the director.
func (o *Orchestrator) startCombine(scope room.Scope) (*room.Operation, error) {
	if o.state != room.Split {
		return nil, ErrNotSplit
	}
	terminal, err := room.Terminal(scope)
	if err != nil {
		return nil, ErrInvalidScope
	}
	if err := o.checkPorts(scope); err != nil {
		return nil, err
	}
	combining, _ := room.Combining(scope)
	nodes := o.topo.NodesInScope(scope)
	primaryVLAN := o.topo.Primary.VLANID

	plans := make([]nodePlan, 0, len(nodes))
	for _, node := range nodes {
		node := node
		plans = append(plans, nodePlan{
			node: node.ID,
			steps: []sagaStep{
				{name: room.StepVLAN, run: func(ctx context.Context) error {
					return o.deps.Switch.Combine(ctx, node, primaryVLAN)
				}},
				// The node is told it is combined only once its ports have moved.
				{name: room.StepSignal, run: func(ctx context.Context) error {
					return o.deps.Messenger.Send(ctx, node, peer.CommandCombine)
				}},
			},
		})
	}
	steps := append(planSteps(plans),
		room.OperationStep{Step: room.StepMigration, Status: room.StepStatusPending},
		room.OperationStep{Step: room.StepDirector, Status: room.StepStatusPending},
	)

	record, err := o.deps.Operations.Create(room.CreateOperationInput{
		Kind:  room.OperationCombine,
		Scope: scope,
		From:  room.Split,
		To:    terminal,
		Steps: steps,
	})
	if err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	state := o.recordFor(terminal)
	if err := o.deps.State.Save(state); err != nil {
		message := err.Error()
		_ = o.deps.Operations.Complete(record.OperationID, room.OperationStatusFailed, nil, &message)
		return nil, fmt.Errorf("persist room state: %w", err)
	}
	o.record = state
	o.state = combining
	o.recordTransition(record.OperationID, room.Split, combining, terminal)

	if o.op != nil {
		o.op.stop()
	}
	ctx, cancel := context.WithCancel(o.runCtx)
	op := &activeOp{
		id:        record.OperationID,
		kind:      room.OperationCombine,
		scope:     scope,
		target:    terminal,
		startedAt: o.now(),
		ctx:       ctx,
		cancel:    cancel,
		session:   migration.NewSession(o.topo, scope, record.OperationID, o.now()),
		requestID: o.request,
	}
	o.op = op

	o.showBanner()
	o.deps.Panel.SetProgress(0)

	if !op.session.Complete() {
		events, unsubscribe := o.deps.Peripherals.Subscribe()
		op.unsubscribe = unsubscribe
		go func() {
			for ev := range events {
				if !o.post(peripheralNotified{opID: op.id, ev: ev}) {
					return
				}
			}
		}()
		op.stopTicks = make(chan struct{})
		go o.tickProgress(op.id, op.stopTicks)
		op.timers = append(op.timers, o.after(o.timing.MigrationTimeout, migrationTimedOut{opID: op.id}))
	}
	op.timers = append(op.timers, o.after(o.timing.SettleDelay, settleElapsed{opID: op.id}))

	go o.runSaga(ctx, op.id, plans)

	mics, expectedMics, navs, expectedNavs := op.session.Counts()
	o.reqLogger().Info().
		Str("operation_id", op.id).
		Str("scope", string(scope)).
		Int("expected_mics", expectedMics).
		Int("expected_navigators", expectedNavs).
		Int("observed_mics", mics).
		Int("observed_navigators", navs).
		Msg("combine dispatched")

	if op.session.Complete() {
		o.finishMigration(op, false)
	}
	return record, nil
}

func (o *Orchestrator) tickProgress(opID string, stop <-chan struct{}) {
	ticker := time.NewTicker(o.timing.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !o.post(progressTick{opID: opID}) {
				return
			}
		}
	}
}

func (o *Orchestrator) onProgressTick(ev progressTick) {
	op := o.current(ev.opID)
	if op == nil || op.migrationDone {
		return
	}
	percent := 99
	if o.timing.MigrationTimeout > 0 {
		percent = int(o.now().Sub(op.startedAt) * 100 / o.timing.MigrationTimeout)
	}
	if percent > 99 {
		percent = 99
	}
	if percent > op.progress {
		op.progress = percent
		o.deps.Panel.SetProgress(percent)
	}
}

func (o *Orchestrator) onPeripheral(ev peripheralNotified) {
	op := o.current(ev.opID)
	if op == nil || op.session == nil || op.migrationDone {
		return
	}

	obs := op.session.Observe(ev.ev)
	if obs.Matched {
		mics, expectedMics, navs, expectedNavs := op.session.Counts()
		o.reqLogger().Info().
			Str("operation_id", op.id).
			Str("peripheral", ev.ev.ID).
			Str("serial", ev.ev.Serial).
			Int("mics", mics).Int("expected_mics", expectedMics).
			Int("navigators", navs).Int("expected_navigators", expectedNavs).
			Msg("peripheral migrated")
	}
	if obs.Repair != nil {
		op.timers = append(op.timers, o.after(o.timing.RepairDelay, repairDue{opID: op.id, nav: *obs.Repair}))
	}
	if obs.Completed {
		o.finishMigration(op, false)
	}
}

// onRepairDue pairs a migrated touch panel into its role on the primary
// codec. The call runs off the loop.
func (o *Orchestrator) onRepairDue(ev repairDue) {
	op := o.current(ev.opID)
	if op == nil || op.kind != room.OperationCombine {
		return
	}
	target := primaryTarget(o.topo)
	nav := ev.nav
	ctx := op.ctx
	request := o.request
	logger := o.reqLogger()
	go func() {
		err := retry.Do(ctx, o.deps.Retry, logger, "pair "+nav.ID, func(ctx context.Context) error {
			return o.deps.Codec.Execute(ctx, target, codec.TouchPanelConfigure(nav.ID, nav.Location, nav.Role))
		})
		if err != nil {
			logger.Warn().Err(err).Str("navigator", nav.ID).Msg("touch panel not re-paired")
			o.deps.Audit.RecordRequest(request, audit.EventOperationStepFailed, audit.LevelWarn, ev.opID, string(nav.Node), "touch panel re-pair failed", map[string]any{
				"navigator": nav.ID,
				"error":     err.Error(),
			})
			return
		}
		logger.Info().Str("navigator", nav.ID).Str("role", nav.Role).Msg("touch panel re-paired")
	}()
}

func (o *Orchestrator) onMigrationTimedOut(ev migrationTimedOut) {
	op := o.current(ev.opID)
	if op == nil || op.migrationDone {
		return
	}
	o.finishMigration(op, true)
}

// finishMigration ends migration tracking. On timeout the room is still
// usable; the operation completes degraded with the missing list.
func (o *Orchestrator) finishMigration(op *activeOp, timedOut bool) {
	op.migrationDone = true
	op.stopProgress()
	if op.unsubscribe != nil {
		op.unsubscribe()
		op.unsubscribe = nil
	}
	op.progress = 100
	o.deps.Panel.SetProgress(100)

	now := o.now().UTC()
	update := room.StepUpdate{EndedAt: &now}
	if timedOut {
		op.missing = op.session.Missing()
		status := room.StepStatusFailed
		message := "missing " + strings.Join(op.missing, ", ")
		update.Status = &status
		update.Error = &message
		o.deps.Panel.Alert("Some devices did not reconnect", strings.Join(op.missing, ", "))
		o.auditEvent(audit.EventMigrationDegraded, audit.LevelWarn, op.id, "", "migration timed out", map[string]any{
			"missing": op.missing,
		})
		o.reqLogger().Warn().Str("operation_id", op.id).Strs("missing", op.missing).Msg("migration timed out")
	} else {
		status := room.StepStatusCompleted
		update.Status = &status
		o.auditEvent(audit.EventMigrationCompleted, audit.LevelInfo, op.id, "", "all expected peripherals reconnected", nil)
		o.reqLogger().Info().Str("operation_id", op.id).Msg("migration complete")
	}
	if err := o.deps.Operations.UpdateStep(op.id, "", room.StepMigration, update); err != nil {
		o.reqLogger().Warn().Err(err).Str("operation_id", op.id).Msg("migration step not recorded")
	}

	from := o.state
	o.state = op.target
	o.recordTransition(op.id, from, op.target, op.target)

	if o.armed && o.gate.Rearm(o.runCtx, o.state) == callgate.TransitionCallStarted {
		o.auditEvent(audit.EventCallStarted, audit.LevelInfo, op.id, "", "call started", nil)
	}
	o.maybeFinish(op)
}

// onSettleElapsed arms the director for the new state once peripherals
// have had time to enumerate.
func (o *Orchestrator) onSettleElapsed(ev settleElapsed) {
	op := o.current(ev.opID)
	if op == nil || op.kind != room.OperationCombine || op.directorDone {
		return
	}

	o.configureDirector(o.runCtx, op.target)
	o.armed = true
	op.directorDone = true

	now := o.now().UTC()
	status := room.StepStatusCompleted
	if err := o.deps.Operations.UpdateStep(op.id, "", room.StepDirector, room.StepUpdate{Status: &status, StartedAt: &now, EndedAt: &now}); err != nil {
		o.reqLogger().Warn().Err(err).Str("operation_id", op.id).Msg("director step not recorded")
	}
	o.reqLogger().Info().Str("operation_id", op.id).Str("mode", op.target.String()).Msg("director armed")

	if o.state.IsCombined() && o.gate.Rearm(o.runCtx, o.state) == callgate.TransitionCallStarted {
		o.auditEvent(audit.EventCallStarted, audit.LevelInfo, op.id, "", "call started", nil)
	}
	o.maybeFinish(op)
}

func (o *Orchestrator) onStepChanged(ev stepChanged) {
	now := o.now().UTC()
	status := ev.status
	update := room.StepUpdate{Status: &status}
	if status == room.StepStatusRunning {
		update.StartedAt = &now
	} else {
		update.EndedAt = &now
	}
	if ev.err != nil {
		message := ev.err.Error()
		update.Error = &message
	}
	if err := o.deps.Operations.UpdateStep(ev.opID, string(ev.node), ev.step, update); err != nil {
		o.reqLogger().Warn().Err(err).Str("operation_id", ev.opID).Str("step", ev.step).Msg("step not recorded")
	}

	switch status {
	case room.StepStatusCompleted:
		o.auditEvent(audit.EventOperationStep, audit.LevelInfo, ev.opID, string(ev.node), ev.step+" completed", nil)
	case room.StepStatusFailed:
		payload := map[string]any{}
		if update.Error != nil {
			payload["error"] = *update.Error
		}
		o.auditEvent(audit.EventOperationStepFailed, audit.LevelError, ev.opID, string(ev.node), ev.step+" failed", payload)
		o.reqLogger().Error().Err(ev.err).Str("operation_id", ev.opID).Str("node", string(ev.node)).Str("step", ev.step).Msg("operation step failed")
	}
}

func (o *Orchestrator) onSagaFinished(ev sagaFinished) {
	op := o.current(ev.opID)
	if op == nil || op.sagaDone {
		return
	}
	op.sagaDone = true
	op.sagaErr = ev.err
	if ev.err != nil {
		title := "Combine incomplete"
		if op.kind == room.OperationSplit {
			title = "Split incomplete"
		}
		o.deps.Panel.Alert(title, ev.err.Error())
	}
	o.maybeFinish(op)
}

// maybeFinish closes the operation record once every part has ended.
func (o *Orchestrator) maybeFinish(op *activeOp) {
	if op.finished || !op.sagaDone {
		return
	}
	if op.kind == room.OperationCombine && (!op.migrationDone || !op.directorDone) {
		return
	}

	status := room.OperationStatusCompleted
	var message *string
	switch {
	case op.sagaErr != nil:
		status = room.OperationStatusFailed
		text := op.sagaErr.Error()
		message = &text
	case len(op.missing) > 0:
		status = room.OperationStatusCompletedDegraded
	}
	if err := o.deps.Operations.Complete(op.id, status, op.missing, message); err != nil {
		o.reqLogger().Warn().Err(err).Str("operation_id", op.id).Msg("operation completion not recorded")
	}
	op.finished = true
	o.reqLogger().Info().Str("operation_id", op.id).Str("kind", string(op.kind)).Str("status", string(status)).Msg("operation finished")
}

// abandon closes an unfinished operation as cancelled.
func (o *Orchestrator) abandon(op *activeOp) {
	op.stop()
	if op.finished {
		return
	}
	op.finished = true
	var missing []string
	if op.session != nil && !op.migrationDone {
		missing = op.session.Missing()
	}
	if err := o.deps.Operations.Complete(op.id, room.OperationStatusCancelled, missing, nil); err != nil {
		o.reqLogger().Warn().Err(err).Str("operation_id", op.id).Msg("operation cancellation not recorded")
	}
	o.reqLogger().Info().Str("operation_id", op.id).Msg("operation cancelled")
}

func (o *Orchestrator) recordTransition(opID string, from, to, persisted room.State) {
	o.auditEvent(audit.EventStateChanged, audit.LevelInfo, opID, "", from.String()+" -> "+to.String(), map[string]any{
		"from":      from.String(),
		"to":        to.String(),
		"persisted": persisted.String(),
	})
	o.reqLogger().Info().Str("from", from.String()).Str("to", to.String()).Str("persisted", persisted.String()).Msg("room state changed")
}
