package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/strefethen/room-combine-go/internal/audit"
	"github.com/strefethen/room-combine-go/internal/panel"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// Confirmation is a combine or split waiting for the operator.
type Confirmation struct {
	ID        string             `json:"id"`
	Kind      room.OperationKind `json:"kind"`
	Scope     room.Scope         `json:"scope,omitempty"`
	Message   string             `json:"message"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

type pendingConfirmation struct {
	Confirmation
	timer *time.Timer
}

func (o *Orchestrator) addPending(kind room.OperationKind, scope room.Scope, message string) Confirmation {
	now := o.now().UTC()
	conf := Confirmation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Scope:     scope,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(o.timing.ConfirmationTimeout),
	}
	o.pending[conf.ID] = &pendingConfirmation{
		Confirmation: conf,
		timer:        o.after(o.timing.ConfirmationTimeout, confirmationExpired{id: conf.ID}),
	}
	o.deps.Panel.ShowPrompt(panel.Prompt{
		ID:        conf.ID,
		Kind:      string(kind),
		Scope:     string(scope),
		Message:   message,
		ExpiresAt: conf.ExpiresAt,
	})
	return conf
}

func (o *Orchestrator) dropPending(id string) (*pendingConfirmation, bool) {
	pending, ok := o.pending[id]
	if !ok {
		return nil, false
	}
	pending.timer.Stop()
	delete(o.pending, id)
	o.deps.Panel.ClearPrompt(id)
	return pending, true
}

func (o *Orchestrator) pendingOfKind(kind room.OperationKind) *pendingConfirmation {
	for _, pending := range o.pending {
		if pending.Kind == kind {
			return pending
		}
	}
	return nil
}

func (o *Orchestrator) onCombineRequested(ev combineRequested) {
	if o.state != room.Split {
		ev.reply <- result[Confirmation]{err: ErrNotSplit}
		return
	}
	if o.busy() {
		ev.reply <- result[Confirmation]{err: ErrOperationInProgress}
		return
	}
	if !o.topo.ValidScope(ev.scope) {
		ev.reply <- result[Confirmation]{err: ErrInvalidScope}
		return
	}
	nodes := o.topo.NodesInScope(ev.scope)
	if len(nodes) == 0 {
		ev.reply <- result[Confirmation]{err: ErrInvalidScope}
		return
	}
	if err := o.checkPorts(ev.scope); err != nil {
		ev.reply <- result[Confirmation]{err: err}
		return
	}

	o.checking = true
	timeout := o.timing.ActivityTimeout
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}
	ctx, cancel := context.WithTimeout(o.runCtx, timeout)
	logger := o.reqLogger()
	go func() {
		defer cancel()
		results := o.checkActivity(ctx, nodes, logger)
		o.post(activityChecked{origin: ev.origin, scope: ev.scope, results: results, reply: ev.reply})
	}()
}

// checkActivity returns once every node answered or ctx is done. Nodes
// without an answer by then carry ctx's error.
func (o *Orchestrator) checkActivity(ctx context.Context, nodes []*topology.NodeSpec, logger *zerolog.Logger) []peer.NodeActivity {
	done := make(chan []peer.NodeActivity, 1)
	go func() {
		done <- o.deps.Activity.CheckAll(ctx, nodes)
	}()

	select {
	case results := <-done:
		return results
	case <-ctx.Done():
	}

	logger.Warn().Err(ctx.Err()).Int("nodes", len(nodes)).Msg("activity check timed out")
	results := make([]peer.NodeActivity, 0, len(nodes))
	for _, node := range nodes {
		results = append(results, peer.NodeActivity{Node: node.ID, Alias: node.Alias, Err: ctx.Err()})
	}
	return results
}

func (o *Orchestrator) onActivityChecked(ev activityChecked) {
	o.checking = false

	var refused []peer.NodeActivity
	for _, activity := range ev.results {
		if !activity.Ready() {
			refused = append(refused, activity)
		}
	}
	if len(refused) > 0 {
		err := &NodeBusyError{Nodes: refused}
		o.deps.Panel.Alert("Rooms not combined", err.Error())
		o.auditEvent(audit.EventCombineRefused, audit.LevelWarn, "", "", err.Error(), map[string]any{
			"scope": string(ev.scope),
		})
		o.reqLogger().Info().Str("scope", string(ev.scope)).Str("reason", err.Error()).Msg("combine refused")
		ev.reply <- result[Confirmation]{err: err}
		return
	}

	if o.state != room.Split {
		ev.reply <- result[Confirmation]{err: ErrNotSplit}
		return
	}

	message := "Combine with " + aliases(o.topo.NodesInScope(ev.scope)) + "?"
	conf := o.addPending(room.OperationCombine, ev.scope, message)
	o.auditEvent(audit.EventCombineRequested, audit.LevelInfo, "", "", message, map[string]any{
		"scope":           string(ev.scope),
		"confirmation_id": conf.ID,
	})
	ev.reply <- result[Confirmation]{value: conf}
}

func (o *Orchestrator) onSplitRequested(ev splitRequested) {
	if o.state == room.Split {
		o.auditEvent(audit.EventSplitRejected, audit.LevelInfo, "", "", "split requested while already split", nil)
		ev.reply <- result[Confirmation]{err: ErrAlreadySplit}
		return
	}
	if existing := o.pendingOfKind(room.OperationSplit); existing != nil {
		ev.reply <- result[Confirmation]{value: existing.Confirmation}
		return
	}
	if o.checking || len(o.pending) > 0 || (o.op != nil && !o.op.finished && o.op.kind == room.OperationSplit) {
		ev.reply <- result[Confirmation]{err: ErrOperationInProgress}
		return
	}

	o.requestSplitConfirmation("operator")
	ev.reply <- result[Confirmation]{value: o.pendingOfKind(room.OperationSplit).Confirmation}
}

func (o *Orchestrator) requestSplitConfirmation(source string) {
	scope, _ := o.state.Scope()
	conf := o.addPending(room.OperationSplit, scope, "Split the rooms?")
	o.auditEvent(audit.EventSplitRequested, audit.LevelInfo, "", "", conf.Message, map[string]any{
		"confirmation_id": conf.ID,
		"source":          source,
	})
}

func (o *Orchestrator) onSplitReminder() {
	if !o.state.IsCombined() || o.gate.Calls() > 0 || o.busy() {
		o.reqLogger().Debug().Str("mode", o.state.String()).Int("calls", o.gate.Calls()).Msg("split reminder skipped")
		return
	}
	o.requestSplitConfirmation("schedule")
}

func (o *Orchestrator) onConfirm(ev confirmRequested) {
	pending, ok := o.dropPending(ev.id)
	if !ok {
		if _, wasExpired := o.expired[ev.id]; wasExpired {
			ev.reply <- result[*room.Operation]{err: ErrConfirmationExpired}
			return
		}
		ev.reply <- result[*room.Operation]{err: ErrConfirmationNotFound}
		return
	}

	var (
		op  *room.Operation
		err error
	)
	switch pending.Kind {
	case room.OperationCombine:
		op, err = o.startCombine(pending.Scope)
	case room.OperationSplit:
		op, err = o.startSplit()
	}
	ev.reply <- result[*room.Operation]{value: op, err: err}
}

func (o *Orchestrator) onCancel(ev cancelRequested) {
	pending, ok := o.dropPending(ev.id)
	if !ok {
		ev.reply <- result[struct{}]{err: ErrConfirmationNotFound}
		return
	}
	o.auditEvent(audit.EventConfirmationCancelled, audit.LevelInfo, "", "", "confirmation cancelled", map[string]any{
		"confirmation_id": pending.ID,
		"kind":            string(pending.Kind),
	})
	ev.reply <- result[struct{}]{}
}

func (o *Orchestrator) onConfirmationExpired(ev confirmationExpired) {
	pending, ok := o.dropPending(ev.id)
	if !ok {
		return
	}

	now := o.now()
	for id, at := range o.expired {
		if now.Sub(at) > expiredRetention {
			delete(o.expired, id)
		}
	}
	o.expired[ev.id] = now

	o.auditEvent(audit.EventConfirmationExpired, audit.LevelInfo, "", "", "confirmation expired", map[string]any{
		"confirmation_id": pending.ID,
		"kind":            string(pending.Kind),
	})
}
