// Package cli is the headless broadcast peer: it joins a relay as presenter
// or spectator, streaming an IVF file and recording what it receives.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Broadcast/internal/config"
)

func newRootCmd() *cobra.Command {
	v := config.NewClientViper()

	root := &cobra.Command{
		Use:   "peer",
		Short: "Headless peer for the one-presenter broadcast relay",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(v.GetString("log_level"))
		},
	}
	root.PersistentFlags().String("server", "", "signaling WebSocket URL (env BROADCAST_SERVER_URL)")
	root.PersistentFlags().StringSlice("stun", nil, "STUN server URLs (env BROADCAST_STUN_SERVERS)")
	root.PersistentFlags().String("log-level", "", "zerolog level (env BROADCAST_LOG_LEVEL)")
	_ = v.BindPFlag("server_url", root.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("stun_servers", root.PersistentFlags().Lookup("stun"))
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newJoinCmd(v), newParticipantsCmd(v))
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	root := newRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(lvl)
	return nil
}
