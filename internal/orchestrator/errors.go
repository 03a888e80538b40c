package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/strefethen/room-combine-go/internal/peer"
)

var (
	// ErrAlreadySplit is returned by RequestSplit when the room is split.
	// Nothing is sent to the switch or the nodes.
	ErrAlreadySplit = errors.New("room is already split")

	ErrNotSplit               = errors.New("room is not split")
	ErrOperationInProgress    = errors.New("another combine or split is in progress")
	ErrInvalidScope           = errors.New("scope is not valid for this topology")
	ErrConfirmationNotFound   = errors.New("confirmation not found")
	ErrConfirmationExpired    = errors.New("confirmation expired")
	ErrStopped                = errors.New("orchestrator stopped")
	ErrTopologyChangeRejected = errors.New("topology can only be replaced while the room is split and idle")

	// ErrPortsUnresolved refuses a combine before anything is persisted when
	// a node in scope has no switch ports.
	ErrPortsUnresolved = errors.New("switch ports unresolved")
)

// NodeBusyError refuses a combine because a node is in a call, sharing, or
// did not answer.
type NodeBusyError struct {
	Nodes []peer.NodeActivity
}

func (e *NodeBusyError) Error() string {
	parts := make([]string, 0, len(e.Nodes))
	for _, node := range e.Nodes {
		name := node.Alias
		if name == "" {
			name = string(node.Node)
		}
		switch {
		case node.Err != nil:
			parts = append(parts, fmt.Sprintf("%s is unreachable", name))
		case node.Activity.ActiveCalls > 0:
			parts = append(parts, fmt.Sprintf("%s is in a call", name))
		default:
			parts = append(parts, fmt.Sprintf("%s is sharing content", name))
		}
	}
	return strings.Join(parts, "; ")
}

// Unreachable reports whether every refusing node failed to answer rather
// than being busy.
func (e *NodeBusyError) Unreachable() bool {
	for _, node := range e.Nodes {
		if node.Err == nil {
			return false
		}
	}
	return len(e.Nodes) > 0
}
