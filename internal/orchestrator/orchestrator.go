// Package orchestrator owns the room state and sequences combine and split.
//
// One goroutine runs the loop. API calls, peripheral and zone notifications,
// call counts, timers and saga step results all arrive on a single event
// channel, so the room state, the migration session and the director are
// only touched from that goroutine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/audit"
	"github.com/strefethen/room-combine-go/internal/callgate"
	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
	"github.com/strefethen/room-combine-go/internal/zones"
)

const (
	eventBuffer      = 64
	expiredRetention = time.Hour
)

// Orchestrator is the single writer of the room state.
type Orchestrator struct {
	deps   Deps
	timing Timing
	logger *zerolog.Logger
	now    func() time.Time

	events chan event
	done   chan struct{}
	runCtx context.Context

	// Owned by the loop.
	topo     *topology.Topology
	state    room.State
	record   room.Record
	director *director.Director
	gate     *callgate.Gate
	armed    bool
	checking bool
	pending  map[string]*pendingConfirmation
	expired  map[string]time.Time
	op       *activeOp
	// request is the API request behind the event being handled.
	request string
}

// New creates an Orchestrator. Call Start to resume state and run the loop.
func New(deps Deps, logger *zerolog.Logger) *Orchestrator {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "orchestrator").Logger()

	settings := director.SettingsFromTopology(deps.Topology, deps.Timing.Hold, deps.Timing.AudienceHold)
	dir := director.New(settings, deps.Topology.AutomationDefault, deps.Topology.DuckingDefault, logger)

	return &Orchestrator{
		deps:     deps,
		timing:   deps.Timing,
		logger:   &componentLogger,
		now:      time.Now,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		topo:     deps.Topology,
		state:    room.Split,
		director: dir,
		gate:     callgate.New(deps.Monitor, deps.Panel, dir, deps.Actions, deps.BannerEnabled, logger),
		pending:  map[string]*pendingConfirmation{},
		expired:  map[string]time.Time{},
	}
}

// Start resumes from the persisted state and runs the loop until ctx ends.
// A combined room is re-armed without repeating VLAN or migration work.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runCtx = ctx

	cancelled, err := o.deps.Operations.CancelOpen()
	if err != nil {
		return fmt.Errorf("cancel open operations: %w", err)
	}
	if cancelled > 0 {
		o.logger.Warn().Int64("operations", cancelled).Msg("cancelled operations left open by previous run")
	}

	record, err := o.deps.State.Load()
	if err != nil {
		return fmt.Errorf("load room state: %w", err)
	}
	o.record = record
	o.state = record.Mode

	o.deps.Panel.ShowIdleSurfaces()
	o.configureDirector(ctx, o.state)

	if o.state.IsCombined() {
		if scope, _ := o.state.Scope(); !o.topo.ValidScope(scope) {
			o.logger.Warn().Str("mode", o.state.String()).Msg("persisted mode does not fit the topology, resuming anyway")
		}
		o.armed = true
		o.showBanner()
		o.logger.Info().Str("mode", o.state.String()).Msg("resumed combined room")
	}

	o.auditEvent(audit.EventSystemStartup, audit.LevelInfo, "", "", "orchestrator started", map[string]any{
		"mode": o.state.String(),
	})

	go o.run(ctx)
	return nil
}

// Done is closed when the loop has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case ev := <-o.events:
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) shutdown() {
	for id := range o.pending {
		o.dropPending(id)
	}
	if o.op != nil {
		o.op.stop()
	}
	o.logger.Info().Msg("orchestrator stopped")
}

func (o *Orchestrator) handle(ev event) {
	o.request = o.requestOf(ev)
	defer func() { o.request = "" }()

	switch ev := ev.(type) {
	case combineRequested:
		o.onCombineRequested(ev)
	case activityChecked:
		o.onActivityChecked(ev)
	case splitRequested:
		o.onSplitRequested(ev)
	case confirmRequested:
		o.onConfirm(ev)
	case cancelRequested:
		o.onCancel(ev)
	case confirmationExpired:
		o.onConfirmationExpired(ev)
	case statusRequested:
		ev.reply <- result[Status]{value: o.status()}
	case directorOverride:
		o.onDirectorOverride(ev)
	case topologyRequested:
		ev.reply <- result[*topology.Topology]{value: o.topo}
	case topologyReplaced:
		o.onTopologyReplaced(ev)
	case peripheralNotified:
		o.onPeripheral(ev)
	case repairDue:
		o.onRepairDue(ev)
	case progressTick:
		o.onProgressTick(ev)
	case migrationTimedOut:
		o.onMigrationTimedOut(ev)
	case settleElapsed:
		o.onSettleElapsed(ev)
	case stepChanged:
		o.onStepChanged(ev)
	case sagaFinished:
		o.onSagaFinished(ev)
	case zoneNotified:
		o.onZone(ev)
	case callsNotified:
		o.onCalls(ev)
	case splitReminder:
		o.onSplitReminder()
	default:
		o.logger.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("unhandled event")
	}
}

// requestOf returns the API request ev came from, directly or through the
// operation it belongs to.
func (o *Orchestrator) requestOf(ev event) string {
	switch ev := ev.(type) {
	case interface{ requestID() string }:
		return ev.requestID()
	case interface{ operationID() string }:
		if op := o.current(ev.operationID()); op != nil {
			return op.requestID
		}
	}
	return ""
}

// reqLogger is the loop's logger tagged with the request being handled.
// Only the loop goroutine may call it.
func (o *Orchestrator) reqLogger() *zerolog.Logger {
	if o.request == "" {
		return o.logger
	}
	logger := o.logger.With().Str("request_id", o.request).Logger()
	return &logger
}

// auditEvent records an audit event tagged with the request being handled.
func (o *Orchestrator) auditEvent(eventType audit.EventType, level audit.EventLevel, opID, nodeID, message string, payload map[string]any) {
	o.deps.Audit.RecordRequest(o.request, eventType, level, opID, nodeID, message, payload)
}

// post hands ev to the loop. It returns false once the loop has exited.
func (o *Orchestrator) post(ev event) bool {
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		return false
	}
}

// after posts ev once d has elapsed.
func (o *Orchestrator) after(d time.Duration, ev event) *time.Timer {
	return time.AfterFunc(d, func() { o.post(ev) })
}

func ask[T any](ctx context.Context, o *Orchestrator, ev event, reply chan result[T]) (T, error) {
	var zero T
	select {
	case o.events <- ev:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-o.done:
		return zero, ErrStopped
	}
	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-o.done:
		return zero, ErrStopped
	}
}

// RequestCombine checks that every node in scope is idle and, if so, raises
// a confirmation prompt. Nothing changes until the prompt is confirmed.
func (o *Orchestrator) RequestCombine(ctx context.Context, scope room.Scope) (Confirmation, error) {
	reply := replyChan[Confirmation]()
	return ask(ctx, o, combineRequested{origin: originOf(ctx), scope: scope, reply: reply}, reply)
}

// RequestSplit raises a split confirmation prompt. From Split it returns
// ErrAlreadySplit and sends nothing.
func (o *Orchestrator) RequestSplit(ctx context.Context) (Confirmation, error) {
	reply := replyChan[Confirmation]()
	return ask(ctx, o, splitRequested{origin: originOf(ctx), reply: reply}, reply)
}

// Confirm runs the confirmed operation and returns its record.
func (o *Orchestrator) Confirm(ctx context.Context, id string) (*room.Operation, error) {
	reply := replyChan[*room.Operation]()
	return ask(ctx, o, confirmRequested{origin: originOf(ctx), id: id, reply: reply}, reply)
}

// Cancel drops a pending confirmation.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	reply := replyChan[struct{}]()
	_, err := ask(ctx, o, cancelRequested{origin: originOf(ctx), id: id, reply: reply}, reply)
	return err
}

// Status returns a snapshot of the room.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	reply := replyChan[Status]()
	return ask(ctx, o, statusRequested{reply: reply}, reply)
}

// SetAutomation switches zone-driven composition on or off.
func (o *Orchestrator) SetAutomation(ctx context.Context, on bool) (director.Status, error) {
	reply := replyChan[director.Status]()
	return ask(ctx, o, directorOverride{origin: originOf(ctx), automation: &on, reply: reply}, reply)
}

// SetDucking switches presenter ducking on or off.
func (o *Orchestrator) SetDucking(ctx context.Context, on bool) (director.Status, error) {
	reply := replyChan[director.Status]()
	return ask(ctx, o, directorOverride{origin: originOf(ctx), ducking: &on, reply: reply}, reply)
}

// SetLayout applies an operator layout.
func (o *Orchestrator) SetLayout(ctx context.Context, layout director.Layout) (director.Status, error) {
	reply := replyChan[director.Status]()
	return ask(ctx, o, directorOverride{origin: originOf(ctx), layout: &layout, reply: reply}, reply)
}

// Topology returns the current topology.
func (o *Orchestrator) Topology(ctx context.Context) (*topology.Topology, error) {
	reply := replyChan[*topology.Topology]()
	return ask(ctx, o, topologyRequested{reply: reply}, reply)
}

// ReplaceTopology swaps in an already validated topology and writes it to
// the topology file. It is only accepted while the room is split and idle.
func (o *Orchestrator) ReplaceTopology(ctx context.Context, topo *topology.Topology) (*topology.Topology, error) {
	reply := replyChan[*topology.Topology]()
	return ask(ctx, o, topologyReplaced{origin: originOf(ctx), topo: topo, reply: reply}, reply)
}

// UnlockPIN returns the operator PIN of the current topology.
func (o *Orchestrator) UnlockPIN(ctx context.Context) (string, error) {
	topo, err := o.Topology(ctx)
	if err != nil {
		return "", err
	}
	return topo.UnlockPIN, nil
}

// GetOperation reads an operation record.
func (o *Orchestrator) GetOperation(id string) (*room.Operation, error) {
	return o.deps.Operations.GetByID(id)
}

// ListOperations pages operation records, newest first.
func (o *Orchestrator) ListOperations(limit, offset int) ([]room.Operation, int, error) {
	return o.deps.Operations.List(limit, offset)
}

// HandleZoneEvent is the zone monitor's event handler.
func (o *Orchestrator) HandleZoneEvent(ev zones.Event) {
	o.post(zoneNotified{ev: ev})
}

// NotifyActiveCalls receives the primary codec's active call count.
func (o *Orchestrator) NotifyActiveCalls(count int) {
	o.post(callsNotified{count: count})
}

// RemindSplit raises a split prompt if the room is combined and idle.
func (o *Orchestrator) RemindSplit() {
	o.post(splitReminder{})
}

func (o *Orchestrator) busy() bool {
	return o.checking || len(o.pending) > 0 || (o.op != nil && !o.op.finished)
}

func (o *Orchestrator) recordFor(state room.State) room.Record {
	return room.Record{
		Mode:                   state,
		Screens:                o.topo.Primary.Screens,
		ControllerPeripheralID: o.topo.Primary.ControllerPeripheralID,
		SchedulerPeripheralID:  o.topo.Primary.SchedulerPeripheralID,
		Platform:               o.topo.Primary.Platform,
		UpdatedAt:              o.now().UTC(),
	}
}

// configureDirector rebuilds the zone profile for state and submits it.
func (o *Orchestrator) configureDirector(ctx context.Context, state room.State) {
	settings := director.SettingsFromTopology(o.topo, o.timing.Hold, o.timing.AudienceHold)
	profile := o.director.ConfigureFor(o.topo, settings, state)
	if err := o.deps.Monitor.SubmitProfile(ctx, profile); err != nil {
		if errors.Is(err, zones.ErrNotConnected) {
			o.reqLogger().Debug().Str("mode", profile.Mode).Msg("zone profile queued until the monitor connects")
			return
		}
		o.reqLogger().Warn().Err(err).Str("mode", profile.Mode).Msg("zone profile not submitted")
	}
}

func (o *Orchestrator) bannerText() string {
	if o.topo.BannerText != "" {
		return o.topo.BannerText
	}
	scope, ok := o.state.Scope()
	if !ok {
		return ""
	}
	return "Combined with " + aliases(o.topo.NodesInScope(scope))
}

func (o *Orchestrator) showBanner() {
	text := o.bannerText()
	o.gate.SetBanner(text)
	if o.deps.BannerEnabled && text != "" && !o.gate.Engaged() {
		o.deps.Panel.ShowBanner(text)
	}
}

func aliases(nodes []*topology.NodeSpec) string {
	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		name := node.Alias
		if name == "" {
			name = string(node.ID)
		}
		names = append(names, name)
	}
	return strings.Join(names, " and ")
}

func (o *Orchestrator) onZone(ev zoneNotified) {
	if !o.armed || !o.state.IsCombined() {
		o.reqLogger().Debug().Str("zone", ev.ev.Zone).Msg("zone event before the director is armed")
		return
	}
	o.deps.Actions.Enqueue(o.director.HandleZoneEvent(ev.ev, o.now()))
}

func (o *Orchestrator) onCalls(ev callsNotified) {
	switch o.gate.OnActiveCalls(o.runCtx, ev.count, o.state) {
	case callgate.TransitionCallStarted:
		o.auditEvent(audit.EventCallStarted, audit.LevelInfo, "", "", "call started", map[string]any{"active_calls": ev.count})
	case callgate.TransitionCallEnded:
		o.auditEvent(audit.EventCallEnded, audit.LevelInfo, "", "", "call ended", nil)
	}
}

func (o *Orchestrator) onDirectorOverride(ev directorOverride) {
	var actions []director.Action
	payload := map[string]any{}

	if ev.automation != nil {
		actions = append(actions, o.director.SetAutomation(*ev.automation)...)
		payload["automation"] = *ev.automation
	}
	if ev.ducking != nil {
		actions = append(actions, o.director.SetDucking(*ev.ducking)...)
		payload["ducking"] = *ev.ducking
	}
	if ev.layout != nil {
		layoutActions, err := o.director.SetLayout(*ev.layout)
		if err != nil {
			ev.reply <- result[director.Status]{err: err}
			return
		}
		actions = append(actions, layoutActions...)
		payload["layout"] = string(*ev.layout)
	}

	o.deps.Actions.Enqueue(actions)
	o.auditEvent(audit.EventDirectorOverride, audit.LevelInfo, "", "", "director override", payload)
	ev.reply <- result[director.Status]{value: o.director.Status()}
}

func (o *Orchestrator) onTopologyReplaced(ev topologyReplaced) {
	if o.state != room.Split || o.busy() {
		ev.reply <- result[*topology.Topology]{err: ErrTopologyChangeRejected}
		return
	}
	if o.deps.TopologyPath != "" {
		if err := topology.Save(o.deps.TopologyPath, ev.topo); err != nil {
			ev.reply <- result[*topology.Topology]{err: fmt.Errorf("save topology: %w", err)}
			return
		}
	}

	o.topo = ev.topo
	o.deps.Actions.SetTopology(ev.topo)
	o.configureDirector(o.runCtx, o.state)

	o.auditEvent(audit.EventTopologyUpdated, audit.LevelInfo, "", "", "topology replaced", map[string]any{
		"mode":  string(ev.topo.Mode),
		"nodes": len(ev.topo.Nodes),
	})
	o.reqLogger().Info().Str("mode", string(ev.topo.Mode)).Msg("topology replaced")
	ev.reply <- result[*topology.Topology]{value: ev.topo}
}
