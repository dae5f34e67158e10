// Package advance implements the one-shot queue advancement subcommand.
package advance

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abvaden/nps-webcam-animation-generator/internal/animation"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
)

// Command returns the advance subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "advance",
		Short: "Advance due animation jobs toward ready and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum jobs to process")
	return cmd
}

func run(settings *conf.Settings, limit int) error {
	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()

	queue := animation.NewQueue(ds, settings.Animation.FrameRate, nil)
	result, err := queue.Advance(time.Now(), limit)
	if err != nil {
		return err
	}

	fmt.Printf("Advanced %d jobs: %d ready, %d failed\n",
		result.Processed, result.MovedToReady, result.Failed)
	return nil
}
