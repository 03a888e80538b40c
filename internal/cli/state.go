package cli

import (
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/strefethen/room-combine-go/internal/db"
	"github.com/strefethen/room-combine-go/internal/room"
)

func NewStateCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the persisted room state and recent operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = os.Getenv("SQLITE_DB_PATH")
			}
			if dbPath == "" {
				dbPath = "./data/room-combine.db"
			}

			dbPair, err := db.Init(dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer dbPair.Close()

			record, err := room.NewStateRepository(dbPair).Load()
			if err != nil {
				return fmt.Errorf("load room state: %w", err)
			}
			ops, total, err := room.NewOperationsRepository(dbPair).List(limit, 0)
			if err != nil {
				return fmt.Errorf("list operations: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode:       %s\n", record.Mode)
			fmt.Fprintf(out, "screens:    %d\n", record.Screens)
			fmt.Fprintf(out, "controller: %s\n", record.ControllerPeripheralID)
			if !record.UpdatedAt.IsZero() {
				fmt.Fprintf(out, "updated:    %s\n", record.UpdatedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "operations: %d\n", total)
			for _, op := range ops {
				fmt.Fprintf(out, "  %s  %-7s %-18s %s -> %s\n", op.StartedAt.Format(time.RFC3339), op.Kind, op.Status, op.From, op.To)
				if len(op.Missing) > 0 {
					fmt.Fprintf(out, "      missing: %v\n", op.Missing)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")
	cmd.Flags().IntVar(&limit, "limit", 5, "number of recent operations to show")
	return cmd
}
