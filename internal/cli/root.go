// Package cli holds the room-combine commands.
package cli

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "room-combine",
		Short:         "Combine and split meeting rooms",
		Long:          "Orchestrates combining and splitting a primary meeting room with its neighbours: switch VLANs, node signalling, peripheral migration and the zone camera director.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewStateCmd())
	rootCmd.AddCommand(NewTopologyCmd())

	return rootCmd
}

// setupLogging installs a console logger at level as the global logger.
func setupLogging(level string) *zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(parsed).
		With().Timestamp().Logger()
	log.Logger = logger
	return &logger
}
