package peer

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/strefethen/room-combine-go/internal/codec"
	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/topology"
)

// StatusReader reads call and sharing state from a codec.
type StatusReader interface {
	ReadActivity(ctx context.Context, target codec.Target) (codec.Activity, error)
}

// NodeActivity is the result of checking one node.
type NodeActivity struct {
	Node     topology.NodeID
	Alias    string
	Activity codec.Activity
	Err      error
}

// Ready reports whether the node answered and is idle.
func (n NodeActivity) Ready() bool {
	return n.Err == nil && n.Activity.Idle()
}

// ActivityChecker queries nodes for active calls and content shares.
type ActivityChecker struct {
	reader StatusReader
	policy retry.Policy
	logger *zerolog.Logger
}

// NewActivityChecker creates an ActivityChecker. The policy should be short;
// the operator is waiting on the answer.
func NewActivityChecker(reader StatusReader, policy retry.Policy, logger *zerolog.Logger) *ActivityChecker {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "activity").Logger()
	return &ActivityChecker{reader: reader, policy: policy, logger: &componentLogger}
}

// Check reads one node's activity.
func (c *ActivityChecker) Check(ctx context.Context, node *topology.NodeSpec) NodeActivity {
	result := NodeActivity{Node: node.ID, Alias: node.Alias}
	result.Err = retry.Do(ctx, c.policy, c.logger, "status of "+string(node.ID), func(ctx context.Context) error {
		activity, err := c.reader.ReadActivity(ctx, Target(node))
		if err != nil {
			return err
		}
		result.Activity = activity
		return nil
	})

	c.logger.Debug().
		Str("node", string(node.ID)).
		Int("active_calls", result.Activity.ActiveCalls).
		Bool("sharing", result.Activity.Sharing).
		Err(result.Err).
		Msg("activity checked")
	return result
}

// CheckAll checks nodes concurrently and returns results in input order.
func (c *ActivityChecker) CheckAll(ctx context.Context, nodes []*topology.NodeSpec) []NodeActivity {
	results := make([]NodeActivity, len(nodes))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, node := range nodes {
		i, node := i, node
		group.Go(func() error {
			results[i] = c.Check(groupCtx, node)
			return nil
		})
	}
	_ = group.Wait()

	return results
}
