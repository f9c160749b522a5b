package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Broadcast/internal/adapters/rtc"
	"github.com/dkeye/Broadcast/internal/adapters/wsclient"
	"github.com/dkeye/Broadcast/internal/client"
	"github.com/dkeye/Broadcast/internal/config"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/media"
)

const statusPeriod = 10 * time.Second

type joinOptions struct {
	presenter bool
	ivf       string
	recordDir string
}

func newJoinCmd(v *viper.Viper) *cobra.Command {
	var opts joinOptions
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the broadcast as presenter or spectator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.DecodeClient(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.presenter, "presenter", false, "join as the presenter")
	cmd.Flags().StringVar(&opts.ivf, "ivf", "", "VP8 IVF file to publish (required for --presenter)")
	cmd.Flags().StringVar(&opts.recordDir, "record-dir", "", "write received VP8 tracks as IVF files into this directory")
	cmd.Flags().String("name", "", "display name (env BROADCAST_NAME)")
	_ = v.BindPFlag("name", cmd.Flags().Lookup("name"))
	return cmd
}

func runJoin(ctx context.Context, cfg *config.ClientConfig, opts joinOptions) error {
	var stream *media.IVFStream
	if opts.ivf != "" {
		s, err := media.OpenIVF(opts.ivf, "broadcast-"+uuid.NewString())
		if err != nil {
			return fmt.Errorf("open local media: %w", err)
		}
		stream = s
	}
	if opts.presenter && stream == nil {
		return fmt.Errorf("--presenter needs --ivf: %w", domain.ErrMediaUnavailable)
	}

	api, err := rtc.NewAPI()
	if err != nil {
		return err
	}
	factory := rtc.NewFactory(api, rtc.ConfigWithSTUN(cfg.STUNServers))

	targets := client.DrainTargets()
	if opts.recordDir != "" {
		if err := os.MkdirAll(opts.recordDir, 0o755); err != nil {
			return fmt.Errorf("record dir: %w", err)
		}
		main := media.NewIVFTarget(opts.recordDir, "main")
		targets = client.NewTargets(main, func(remote domain.ParticipantID) media.RenderTarget {
			return media.NewIVFTarget(opts.recordDir, "lobby-"+string(remote))
		})
	}

	ws, err := wsclient.Dial(ctx, cfg.ServerURL)
	if err != nil {
		return err
	}
	log.Info().Str("module", "cli").Str("server", cfg.ServerURL).Bool("presenter", opts.presenter).Msg("joining")

	ctrl := client.NewController(ws, factory, targets)
	var local media.Stream
	if stream != nil {
		local = stream
	}
	if err := ctrl.Join(opts.presenter, cfg.Name, local); err != nil {
		ws.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// the relay hanging up ends the session too
		defer cancel()
		return ctrl.Run(gctx, ws.Incoming())
	})
	if stream != nil {
		g.Go(func() error {
			return stream.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if err := ctrl.Leave(); err != nil {
			log.Debug().Err(err).Str("module", "cli").Msg("leave")
		}
		ws.Close()
		return nil
	})
	g.Go(func() error {
		reportStatus(gctx, ctrl)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func reportStatus(ctx context.Context, ctrl *client.Controller) {
	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().
				Str("module", "cli").
				Str("sid", string(ctrl.Self())).
				Str("presenter", string(ctrl.Presenter())).
				Int("participants", len(ctrl.Participants())).
				Int("main_links", ctrl.Main().Len()).
				Int("lobby_links", ctrl.Lobby().Len()).
				Msg("status")
		}
	}
}
