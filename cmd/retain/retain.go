// Package retain implements the one-shot retention tagging subcommand.
package retain

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/retention"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// Command returns the retain subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var date, start, end string

	cmd := &cobra.Command{
		Use:   "retain",
		Short: "Tag retained images for a date or date range and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start != "" || end != "" {
				if start == "" || end == "" {
					return fmt.Errorf("--start and --end must be given together")
				}
				startTime, err := time.Parse("2006-01-02", start)
				if err != nil {
					return fmt.Errorf("invalid --start date %q: %w", start, err)
				}
				endTime, err := time.Parse("2006-01-02", end)
				if err != nil {
					return fmt.Errorf("invalid --end date %q: %w", end, err)
				}
				return runRange(settings, startTime, endTime.Add(24*time.Hour-time.Second))
			}

			if date == "" {
				date = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
			}
			return run(settings, date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to tag (YYYY-MM-DD, default yesterday UTC)")
	cmd.Flags().StringVar(&start, "start", "", "First date of a range to tag (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last date of a range to tag (YYYY-MM-DD, inclusive)")
	return cmd
}

func run(settings *conf.Settings, date string) error {
	selector, closeStore, err := newSelector(settings)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := selector.TagDay(date)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runRange(settings *conf.Settings, start, end time.Time) error {
	selector, closeStore, err := newSelector(settings)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := selector.Apply(start, end)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func newSelector(settings *conf.Settings) (*retention.Selector, func(), error) {
	ds := datastore.New(settings)
	if ds == nil {
		return nil, nil, fmt.Errorf("no database backend enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return nil, nil, err
	}

	selector := retention.NewSelector(ds, suncalc.NewSunCalc(), nil)
	return selector, func() { _ = ds.Close() }, nil
}

func printResult(result retention.TagResult) {
	fmt.Printf("Retention %s: %d webcams (%d skipped), %d images tagged, %d policies without candidates\n",
		result.Date, result.Webcams, result.WebcamsSkipped, result.Tagged, result.NoCandidate)
}
