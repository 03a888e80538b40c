// Package peer carries command tokens to secondary nodes and checks whether
// they are idle before a combine.
package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// Command is a token understood by the node's macros.
type Command string

const (
	CommandCombine   Command = "Combine"
	CommandSplit     Command = "Split"
	CommandEnableST  Command = "EnableST"
	CommandDisableST Command = "DisableST"
)

// Executor sends one document to a codec.
type Executor interface {
	Execute(ctx context.Context, target codec.Target, doc codec.Document) error
}

// Target returns the codec address and credentials for node.
func Target(node *topology.NodeSpec) codec.Target {
	return codec.Target{Host: node.Host, Username: node.Username, Password: node.Password}
}

// Messenger delivers commands with at-least-once retry.
type Messenger struct {
	exec   Executor
	policy retry.Policy
	logger *zerolog.Logger
	wg     sync.WaitGroup
}

// NewMessenger creates a Messenger.
func NewMessenger(exec Executor, policy retry.Policy, logger *zerolog.Logger) *Messenger {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "peer").Logger()
	return &Messenger{exec: exec, policy: policy, logger: &componentLogger}
}

// Send delivers cmd to node, resending the identical payload on failure.
// Bad credentials stop the loop since no resend can succeed.
func (m *Messenger) Send(ctx context.Context, node *topology.NodeSpec, cmd Command) error {
	target := Target(node)
	doc := codec.MessageSend(string(cmd))

	err := retry.Do(ctx, m.policy, m.logger, "send "+string(cmd)+" to "+string(node.ID), func(ctx context.Context) error {
		err := m.exec.Execute(ctx, target, doc)
		var unauthorized *codec.UnauthorizedError
		if errors.As(err, &unauthorized) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		m.logger.Error().Err(err).Str("node", string(node.ID)).Str("command", string(cmd)).Msg("peer command not delivered")
		return err
	}

	m.logger.Info().Str("node", string(node.ID)).Str("command", string(cmd)).Msg("peer command delivered")
	return nil
}

// Dispatch sends cmd in the background. The caller does not wait for the
// node to acknowledge.
func (m *Messenger) Dispatch(ctx context.Context, node *topology.NodeSpec, cmd Command) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Send(ctx, node, cmd)
	}()
}

// Wait blocks until every dispatched command has finished.
func (m *Messenger) Wait() {
	m.wg.Wait()
}
