package animation

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

const (
	// windowScheduleDelay is how long after a window closes its job becomes
	// eligible, leaving the last captures time to land.
	windowScheduleDelay = time.Minute
	// hourlyScheduleDelay is the same margin for hourly jobs.
	hourlyScheduleDelay = 5 * time.Minute
)

// Scheduler derives per-day animation jobs from solar windows and persists
// them idempotently.
type Scheduler struct {
	ds  datastore.Interface
	sun *suncalc.SunCalc
	log *slog.Logger
}

// NewScheduler creates a scheduler backed by the given store and solar
// calculator.
func NewScheduler(ds datastore.Interface, sun *suncalc.SunCalc) *Scheduler {
	return &Scheduler{
		ds:  ds,
		sun: sun,
		log: logging.ForService("scheduler"),
	}
}

// ScheduleResult summarizes one scheduling pass.
type ScheduleResult struct {
	Date           string `json:"date"`
	Webcams        int    `json:"webcams"`
	WebcamsSkipped int    `json:"webcamsSkipped"`
	JobsBuilt      int    `json:"jobsBuilt"`
	JobsCreated    int    `json:"jobsCreated"`
}

// ScheduleDay builds and persists animation jobs for every enabled webcam
// for the given "YYYY-MM-DD" date. Webcams without a location or timezone
// are skipped with a log line, not an error. Persistence is idempotent on
// the reference key, so running the same date twice creates nothing new.
func (s *Scheduler) ScheduleDay(date string) (ScheduleResult, error) {
	if !dateKeyPattern.MatchString(date) {
		return ScheduleResult{}, errors.Newf("date %q does not match YYYY-MM-DD", date).
			Component("scheduler").
			Category(errors.CategoryFormat).
			Build()
	}

	webcams, err := s.ds.GetEnabledWebcams()
	if err != nil {
		return ScheduleResult{}, err
	}

	result := ScheduleResult{Date: date, Webcams: len(webcams)}
	var jobs []datastore.AnimationJob

	for i := range webcams {
		webcamJobs, err := s.JobsForWebcam(&webcams[i], date)
		if err != nil {
			// Bad date aborts before any work; anything else is per-webcam
			if errors.IsCategory(err, errors.CategoryFormat) {
				return ScheduleResult{}, err
			}
			s.log.Warn("Skipping webcam for scheduling",
				"webcam", webcams[i].Name, "date", date, "error", err)
			result.WebcamsSkipped++
			continue
		}
		if webcamJobs == nil {
			result.WebcamsSkipped++
			continue
		}
		jobs = append(jobs, webcamJobs...)
	}

	result.JobsBuilt = len(jobs)
	created, err := s.ds.InsertJobs(jobs)
	if err != nil {
		return ScheduleResult{}, err
	}
	result.JobsCreated = created

	s.log.Info("Scheduled animation jobs",
		"date", date,
		"webcams", result.Webcams,
		"skipped", result.WebcamsSkipped,
		"built", result.JobsBuilt,
		"created", result.JobsCreated)

	return result, nil
}

// JobsForWebcam builds the day's jobs for one webcam. It returns nil (no
// error) when the webcam has no location or timezone, and an error for a bad
// date or an unloadable timezone.
func (s *Scheduler) JobsForWebcam(webcam *datastore.Webcam, date string) ([]datastore.AnimationJob, error) {
	if !dateKeyPattern.MatchString(date) {
		return nil, errors.Newf("date %q does not match YYYY-MM-DD", date).
			Component("scheduler").
			Category(errors.CategoryFormat).
			Build()
	}

	location := webcam.LocationString()
	timezone := webcam.TimezoneString()
	if location == "" || timezone == "" {
		s.log.Debug("Webcam has no location or timezone, skipping solar scheduling",
			"webcam", webcam.Name)
		return nil, nil
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, errors.Newf("webcam %s has invalid timezone %q", webcam.Name, timezone).
			Component("scheduler").
			Category(errors.CategoryValidation).
			Build()
	}

	// Anchor at 03:00 UTC: an instant that falls within the target local
	// calendar day for every park timezone (UTC-4 through UTC-10).
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, errors.Newf("date %q does not parse as YYYY-MM-DD", date).
			Component("scheduler").
			Category(errors.CategoryFormat).
			Build()
	}
	anchor := time.Date(day.Year(), day.Month(), day.Day(), 3, 0, 0, 0, time.UTC)

	st, err := s.sun.TimesForLocation(location, anchor)
	if err != nil {
		return nil, err
	}

	var jobs []datastore.AnimationJob

	var lightStart, sunriseEnd, sunsetStart, lightEnd time.Time
	if st.HasSunrise() {
		sunriseDuration := st.Sunrise.Sub(st.FirstLight)
		lightStart = st.FirstLight.Add(-sunriseDuration / 4)
		sunriseEnd = st.Sunrise.Add(sunriseDuration / 4)

		jobs = append(jobs, s.buildJob(webcam, datastore.JobTypeSunrise,
			lightStart, sunriseEnd, sunriseEnd.Add(windowScheduleDelay), loc))
	}
	if st.HasSunset() {
		sunsetDuration := st.LastLight.Sub(st.Sunset)
		sunsetStart = st.Sunset.Add(-sunsetDuration / 4)
		lightEnd = st.LastLight.Add(sunsetDuration / 4)

		jobs = append(jobs, s.buildJob(webcam, datastore.JobTypeSunset,
			sunsetStart, lightEnd, lightEnd.Add(windowScheduleDelay), loc))
	}
	if st.HasSunrise() && st.HasSunset() {
		jobs = append(jobs, s.buildJob(webcam, datastore.JobTypeFullDay,
			lightStart, lightEnd, lightEnd.Add(windowScheduleDelay), loc))
		jobs = append(jobs, s.hourlyJobs(webcam, st.FirstLight, lightStart, lightEnd, loc)...)
	}

	return jobs, nil
}

// hourlyJobs emits one job per clock hour of daylight, in the webcam's
// local time, ending no later than lightEnd.
func (s *Scheduler) hourlyJobs(webcam *datastore.Webcam, firstLight, lightStart, lightEnd time.Time, loc *time.Location) []datastore.AnimationJob {
	var jobs []datastore.AnimationJob

	local := lightStart.In(loc)
	hour := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)

	// The starting hour is included when first light falls inside it;
	// otherwise daylight begins in the next full hour.
	firstLocal := firstLight.In(loc)
	if !hour.Equal(local) && !firstLocal.Before(hour.Add(time.Hour)) {
		hour = hour.Add(time.Hour)
	}

	for ; !hour.Add(time.Hour).After(lightEnd); hour = hour.Add(time.Hour) {
		hourEnd := hour.Add(time.Hour)
		job := s.buildJob(webcam, datastore.JobTypeHourly,
			hour, hourEnd, hourEnd.Add(hourlyScheduleDelay), loc)
		job.ReferenceKey = HourlyReferenceKey(webcam.ID, hour)
		job.StorageKey = HourlyStorageKey(webcam.NationalPark, webcam.Name, hour)
		jobs = append(jobs, job)
	}

	return jobs
}

// buildJob assembles one queue entry with deterministic keys and the initial
// awaiting_images status.
func (s *Scheduler) buildJob(webcam *datastore.Webcam, jobType string, start, end, scheduled time.Time, loc *time.Location) datastore.AnimationJob {
	localScheduled := scheduled.In(loc)

	return datastore.AnimationJob{
		ReferenceKey:  ReferenceKey(webcam.ID, jobType, localScheduled),
		WebcamID:      webcam.ID,
		Type:          jobType,
		Status:        datastore.StatusAwaitingImages,
		ScheduledTime: scheduled.Unix(),
		DateKey:       localScheduled.Format("2006-01-02"),
		StartTime:     start.Unix(),
		EndTime:       end.Unix(),
		StorageKey:    StorageKey(webcam.NationalPark, webcam.Name, jobType, localScheduled),
	}
}
