package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strefethen/room-combine-go/internal/room"
	"github.com/strefethen/room-combine-go/internal/topology"
)

func NewTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Inspect topology files",
	}
	cmd.AddCommand(newTopologyCheckCmd())
	return cmd
}

func newTopologyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a topology file and print what each scope involves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := topology.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode:   %s\n", topo.Mode)
			fmt.Fprintf(out, "switch: %s (%s)\n", topo.Switch.Host, topo.Switch.Model)
			for _, scope := range []room.Scope{room.ScopeAll, room.ScopeNode1, room.ScopeNode2} {
				if !topo.ValidScope(scope) {
					continue
				}
				var nodes []string
				for _, node := range topo.NodesInScope(scope) {
					ports, err := topo.Switch.PortsFor(node)
					if err != nil {
						return fmt.Errorf("%s: %w", node.ID, err)
					}
					nodes = append(nodes, fmt.Sprintf("%s[%s]", node.ID, strings.Join(ports, ",")))
				}
				fmt.Fprintf(out, "%-6s  nodes=%s mics=%d navigators=%d\n", scope, strings.Join(nodes, " "),
					len(topo.ExpectedMicSerials(scope)), len(topo.ExpectedNavigators(scope)))
			}
			return nil
		},
	}
}
