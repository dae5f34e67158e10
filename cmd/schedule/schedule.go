// Package schedule implements the one-shot job scheduling subcommand.
package schedule

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abvaden/nps-webcam-animation-generator/internal/animation"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// Command returns the schedule subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Build animation jobs for one date and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().UTC().Format("2006-01-02")
			}
			return run(settings, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to schedule (YYYY-MM-DD, default today UTC)")
	return cmd
}

func run(settings *conf.Settings, date string) error {
	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return err
	}
	defer ds.Close()

	if err := datastore.ImportFromConfig(ds, settings.Webcams); err != nil {
		return err
	}

	scheduler := animation.NewScheduler(ds, suncalc.NewSunCalc())
	result, err := scheduler.ScheduleDay(date)
	if err != nil {
		return err
	}

	fmt.Printf("Scheduled %s: %d webcams (%d skipped), %d jobs built, %d created\n",
		result.Date, result.Webcams, result.WebcamsSkipped, result.JobsBuilt, result.JobsCreated)
	return nil
}
