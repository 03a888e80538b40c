package orchestrator

import (
	"context"

	"github.com/strefethen/room-combine-go/internal/api"
	"github.com/strefethen/room-combine-go/internal/director"
	"github.com/strefethen/room-combine-go/internal/peer"
	"github.com/strefethen/room-combine-go/internal/peripherals"
	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
	"github.com/strefethen/room-combine-go/internal/zones"
)

// event is anything the loop handles. Every inbound notification, timer,
// step completion and API request arrives as one of these.
type event interface {
	isEvent()
}

type result[T any] struct {
	value T
	err   error
}

func replyChan[T any]() chan result[T] {
	return make(chan result[T], 1)
}

// API requests.

// origin is the API request an event came from.
type origin struct {
	request string
}

func originOf(ctx context.Context) origin {
	return origin{request: api.RequestIDFromContext(ctx)}
}

func (r origin) requestID() string { return r.request }

type combineRequested struct {
	origin
	scope room.Scope
	reply chan result[Confirmation]
}

type splitRequested struct {
	origin
	reply chan result[Confirmation]
}

type confirmRequested struct {
	origin
	id    string
	reply chan result[*room.Operation]
}

type cancelRequested struct {
	origin
	id    string
	reply chan result[struct{}]
}

type statusRequested struct {
	reply chan result[Status]
}

type directorOverride struct {
	origin
	automation *bool
	ducking    *bool
	layout     *director.Layout
	reply      chan result[director.Status]
}

type topologyRequested struct {
	reply chan result[*topology.Topology]
}

type topologyReplaced struct {
	origin
	topo  *topology.Topology
	reply chan result[*topology.Topology]
}

// Notifications.

type activityChecked struct {
	origin
	scope   room.Scope
	results []peer.NodeActivity
	reply   chan result[Confirmation]
}

type peripheralNotified struct {
	opID string
	ev   peripherals.Event
}

type zoneNotified struct {
	ev zones.Event
}

type callsNotified struct {
	count int
}

type splitReminder struct{}

// Timers and step completions.

type confirmationExpired struct {
	id string
}

type progressTick struct {
	opID string
}

type migrationTimedOut struct {
	opID string
}

type settleElapsed struct {
	opID string
}

type stepChanged struct {
	opID   string
	node   topology.NodeID
	step   string
	status room.StepStatus
	err    error
}

type sagaFinished struct {
	opID string
	err  error
}

type repairDue struct {
	opID string
	nav  topology.Navigator
}

func (combineRequested) isEvent()    {}
func (splitRequested) isEvent()      {}
func (confirmRequested) isEvent()    {}
func (cancelRequested) isEvent()     {}
func (statusRequested) isEvent()     {}
func (directorOverride) isEvent()    {}
func (topologyRequested) isEvent()   {}
func (topologyReplaced) isEvent()    {}
func (activityChecked) isEvent()     {}
func (peripheralNotified) isEvent()  {}
func (zoneNotified) isEvent()        {}
func (callsNotified) isEvent()       {}
func (splitReminder) isEvent()       {}
func (confirmationExpired) isEvent() {}
func (progressTick) isEvent()        {}
func (migrationTimedOut) isEvent()   {}
func (settleElapsed) isEvent()       {}
func (stepChanged) isEvent()         {}
func (sagaFinished) isEvent()        {}
func (repairDue) isEvent()           {}

// Events that belong to an operation carry the request that started it.

func (e peripheralNotified) operationID() string { return e.opID }
func (e progressTick) operationID() string       { return e.opID }
func (e migrationTimedOut) operationID() string  { return e.opID }
func (e settleElapsed) operationID() string      { return e.opID }
func (e stepChanged) operationID() string        { return e.opID }
func (e sagaFinished) operationID() string       { return e.opID }
func (e repairDue) operationID() string          { return e.opID }
