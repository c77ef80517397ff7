// Package cli implements the camrelay command line client.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/camrelay/internal/config"
	"github.com/BioHazard786/camrelay/internal/ui"
	"github.com/BioHazard786/camrelay/internal/version"
)

type rootOptions struct {
	config.ClientOptions
}

// NewRootCmd builds the camrelay command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "camrelay",
		Short: "Stream a camera to monitors through a camrelay signaling server",
		Long: `camrelay pairs one streaming device with any number of monitors.

The streamer creates a room and gets a 6-digit code; monitors join with that
code and negotiate a direct WebRTC connection through the relay.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ServerURL, "server", "", "signaling websocket URL (env CAMRELAY_SERVER, default "+config.DefaultServerURL+")")
	pf.BoolVar(&opts.Msgpack, "msgpack", false, "ask the server for the binary msgpack codec")
	pf.BoolVar(&opts.ForceRelay, "relay", false, "only use TURN relay candidates")
	pf.StringVar(&opts.STUNServer, "stun", "", "STUN server URL (env STUN_SERVER)")
	pf.StringVar(&opts.TURNServer, "turn", "", "TURN server host or URL (env TURN_SERVER)")
	pf.StringVar(&opts.TURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&opts.TURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")

	root.AddCommand(newStreamCmd(opts), newWatchCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Client, error) {
	cfg, err := config.LoadClient(o.ClientOptions)
	if err != nil {
		return nil, NewError("load config", err)
	}
	return cfg, nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
