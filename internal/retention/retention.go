// Package retention tags representative captured images so cleanup processes
// keep one sunrise, one midday, and one sunset frame per webcam per day.
package retention

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/observability"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Policy describes one retention tag: the instant it targets within the
// day's solar times and how far around that instant a capture may fall and
// still qualify.
type Policy struct {
	Tag    datastore.TagName
	Target func(st *suncalc.SolarTimes) time.Time
	Before time.Duration
	After  time.Duration
}

func midpoint(a, b time.Time) time.Time {
	return a.Add(b.Sub(a) / 2)
}

// Policies are evaluated in order; a policy whose solar endpoints are absent
// (polar day or night) is skipped for that webcam.
var policies = []Policy{
	{
		Tag:    datastore.TagSunrise,
		Target: func(st *suncalc.SolarTimes) time.Time { return midpoint(st.FirstLight, st.Sunrise) },
		Before: 5 * time.Minute,
		After:  15 * time.Minute,
	},
	{
		Tag:    datastore.TagSolarNoon,
		Target: func(st *suncalc.SolarTimes) time.Time { return midpoint(st.Sunrise, st.Sunset) },
		Before: 15 * time.Minute,
		After:  15 * time.Minute,
	},
	{
		Tag:    datastore.TagSunset,
		Target: func(st *suncalc.SolarTimes) time.Time { return midpoint(st.Sunset, st.LastLight) },
		Before: 15 * time.Minute,
		After:  5 * time.Minute,
	},
}

func (p *Policy) applies(st *suncalc.SolarTimes) bool {
	switch p.Tag {
	case datastore.TagSunrise:
		return st.HasSunrise()
	case datastore.TagSunset:
		return st.HasSunset()
	default:
		return st.HasSunrise() && st.HasSunset()
	}
}

// Selector applies the retention policies across webcams.
type Selector struct {
	ds      datastore.Interface
	sun     *suncalc.SunCalc
	log     *slog.Logger
	metrics *observability.Metrics
}

// NewSelector creates a retention selector. A nil metrics instance disables
// instrumentation.
func NewSelector(ds datastore.Interface, sun *suncalc.SunCalc, metrics *observability.Metrics) *Selector {
	return &Selector{
		ds:      ds,
		sun:     sun,
		log:     logging.ForService("retention"),
		metrics: metrics,
	}
}

// TagResult summarizes one retention pass.
type TagResult struct {
	Date           string `json:"date"`
	Webcams        int    `json:"webcams"`
	WebcamsSkipped int    `json:"webcamsSkipped"`
	Tagged         int    `json:"tagged"`
	NoCandidate    int    `json:"noCandidate"`
}

// TagDay tags one image per applicable policy for every enabled webcam for
// the given "YYYY-MM-DD" date. Tag writes are idempotent; a webcam with no
// qualifying capture is noted, not an error.
func (s *Selector) TagDay(date string) (TagResult, error) {
	if !dateKeyPattern.MatchString(date) {
		return TagResult{}, errors.Newf("date %q does not match YYYY-MM-DD", date).
			Component("retention").
			Category(errors.CategoryFormat).
			Build()
	}

	webcams, err := s.ds.GetEnabledWebcams()
	if err != nil {
		return TagResult{}, err
	}

	result := TagResult{Date: date, Webcams: len(webcams)}
	for i := range webcams {
		webcam := &webcams[i]
		if webcam.LocationString() == "" || webcam.TimezoneString() == "" {
			result.WebcamsSkipped++
			continue
		}
		tagged, missed, err := s.TagWebcamDay(webcam, date)
		if err != nil {
			// Best effort: one webcam's failure never stops the pass.
			s.log.Error("Retention tagging failed for webcam",
				"webcam", webcam.Name, "date", date, "error", err)
			result.WebcamsSkipped++
			continue
		}
		result.Tagged += tagged
		result.NoCandidate += missed
	}

	s.log.Info("Retention pass complete",
		"date", date,
		"webcams", result.Webcams,
		"skipped", result.WebcamsSkipped,
		"tagged", result.Tagged,
		"noCandidate", result.NoCandidate)

	return result, nil
}

// Apply runs the retention policies over every local calendar day
// overlapping [start, end]. Days are enumerated per webcam in that webcam's
// timezone, so a range that crosses midnight in Denver but not in UTC still
// covers both Denver days.
func (s *Selector) Apply(start, end time.Time) (TagResult, error) {
	if end.Before(start) {
		return TagResult{}, errors.Newf("range end %d is before start %d", end.Unix(), start.Unix()).
			Component("retention").
			Category(errors.CategoryValidation).
			Build()
	}

	webcams, err := s.ds.GetEnabledWebcams()
	if err != nil {
		return TagResult{}, err
	}

	result := TagResult{
		Date:    fmt.Sprintf("%s..%s", start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02")),
		Webcams: len(webcams),
	}
	for i := range webcams {
		webcam := &webcams[i]
		if webcam.LocationString() == "" || webcam.TimezoneString() == "" {
			result.WebcamsSkipped++
			continue
		}
		tagged, missed, err := s.applyWebcam(webcam, start, end)
		if err != nil {
			s.log.Error("Retention tagging failed for webcam",
				"webcam", webcam.Name, "error", err)
			result.WebcamsSkipped++
			continue
		}
		result.Tagged += tagged
		result.NoCandidate += missed
	}

	s.log.Info("Retention range pass complete",
		"range", result.Date,
		"webcams", result.Webcams,
		"skipped", result.WebcamsSkipped,
		"tagged", result.Tagged,
		"noCandidate", result.NoCandidate)

	return result, nil
}

// applyWebcam tags each local calendar day of one webcam that overlaps the
// range, inclusive of the days containing both bounds.
func (s *Selector) applyWebcam(webcam *datastore.Webcam, start, end time.Time) (tagged, noCandidate int, err error) {
	timezone := webcam.TimezoneString()
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return 0, 0, errors.Newf("webcam %s has invalid timezone %q", webcam.Name, timezone).
			Component("retention").
			Category(errors.CategoryValidation).
			Build()
	}

	first := start.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	last := end.In(loc)
	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		dayTagged, dayMissed, err := s.TagWebcamDay(webcam, day.Format("2006-01-02"))
		if err != nil {
			return tagged, noCandidate, err
		}
		tagged += dayTagged
		noCandidate += dayMissed
	}
	return tagged, noCandidate, nil
}

// TagWebcamDay evaluates every policy for one webcam on one local date. The
// capture closest to each policy target gains the tag and every other capture
// in the window that carried it loses it, so exactly one image per day holds
// each tag. It returns how many tags were written and how many policies had
// no qualifying capture; a run with nothing to change writes nothing. A
// webcam without location or timezone yields (0, 0, nil).
func (s *Selector) TagWebcamDay(webcam *datastore.Webcam, date string) (tagged, noCandidate int, err error) {
	location := webcam.LocationString()
	timezone := webcam.TimezoneString()
	if location == "" || timezone == "" {
		return 0, 0, nil
	}

	if _, err := time.LoadLocation(timezone); err != nil {
		return 0, 0, errors.Newf("webcam %s has invalid timezone %q", webcam.Name, timezone).
			Component("retention").
			Category(errors.CategoryValidation).
			Build()
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, 0, errors.Newf("date %q does not parse as YYYY-MM-DD", date).
			Component("retention").
			Category(errors.CategoryFormat).
			Build()
	}
	anchor := time.Date(day.Year(), day.Month(), day.Day(), 3, 0, 0, 0, time.UTC)

	st, err := s.sun.TimesForLocation(location, anchor)
	if err != nil {
		return 0, 0, err
	}

	for i := range policies {
		policy := &policies[i]
		if !policy.applies(&st) {
			continue
		}

		target := policy.Target(&st)
		windowStart := target.Add(-policy.Before)
		windowEnd := target.Add(policy.After)

		images, err := s.ds.GetImagesInRange(webcam.ID, windowStart.Unix(), windowEnd.Unix())
		if err != nil {
			return tagged, noCandidate, err
		}
		best := closestImage(images, target)
		if best == nil {
			s.log.Debug("No capture qualifies for retention tag",
				"webcam", webcam.Name, "tag", policy.Tag, "target", target)
			noCandidate++
			continue
		}

		// A better capture may have landed since the last pass; the tag
		// moves with it.
		for j := range images {
			other := &images[j]
			if other.ID == best.ID || !other.HasTag(policy.Tag) {
				continue
			}
			if err := s.ds.RemoveImageTag(other.ID, policy.Tag); err != nil {
				return tagged, noCandidate, err
			}
		}

		if best.HasTag(policy.Tag) {
			continue
		}
		if err := s.ds.AddImageTag(best.ID, policy.Tag); err != nil {
			return tagged, noCandidate, err
		}
		tagged++
		if s.metrics != nil {
			s.metrics.RetentionTagsTotal.WithLabelValues(string(policy.Tag)).Inc()
		}
	}

	return tagged, noCandidate, nil
}

// closestImage returns the capture nearest the target instant, or nil when
// the slice is empty. Ties go to the earlier capture.
func closestImage(images []datastore.CapturedImage, target time.Time) *datastore.CapturedImage {
	var best *datastore.CapturedImage
	var bestDistance time.Duration

	for i := range images {
		capturedAt := time.Unix(images[i].CapturedAt, 0)
		distance := capturedAt.Sub(target)
		if distance < 0 {
			distance = -distance
		}
		if best == nil || distance < bestDistance {
			best = &images[i]
			bestDistance = distance
		}
	}
	return best
}
