// Package serve implements the long-running daemon: capture, scheduling,
// queue advancement, encoding, retention and the HTTP API.
package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abvaden/nps-webcam-animation-generator/internal/animation"
	"github.com/abvaden/nps-webcam-animation-generator/internal/api"
	"github.com/abvaden/nps-webcam-animation-generator/internal/capture"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/encoder"
	"github.com/abvaden/nps-webcam-animation-generator/internal/imagestore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/observability"
	"github.com/abvaden/nps-webcam-animation-generator/internal/retention"
	"github.com/abvaden/nps-webcam-animation-generator/internal/runner"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the capture and animation pipeline with the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings)
		},
	}
}

func run(settings *conf.Settings) error {
	log := logging.ForService("serve")

	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}

	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Error("Closing datastore failed", "error", err)
		}
	}()

	if err := datastore.ImportFromConfig(ds, settings.Webcams); err != nil {
		return err
	}

	objects, err := imagestore.NewDiskStore(settings.Store.Path, settings.Store.PublicBaseURL)
	if err != nil {
		return err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	sun := suncalc.NewSunCalc()
	scheduler := animation.NewScheduler(ds, sun)
	queue := animation.NewQueue(ds, settings.Animation.FrameRate, metrics)
	capturer := capture.NewCapturer(ds, objects, &settings.Capture, metrics)
	selector := retention.NewSelector(ds, sun, metrics)
	enc := encoder.NewFFmpegEncoder(objects,
		settings.Animation.FFmpegPath, settings.Animation.FrameRate, settings.Animation.WorkDir)

	pipeline := runner.New(settings, capturer, scheduler, queue, selector, enc, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pipeline.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return nil // clean shutdown
		}
		return err
	})
	if settings.Web.Enabled {
		controller := api.New(settings, ds, objects, scheduler, queue, sun, metrics)
		g.Go(func() error {
			return controller.Start(ctx)
		})
	}

	log.Info("Daemon started", "webcams", len(settings.Webcams))
	return g.Wait()
}
