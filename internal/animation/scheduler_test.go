package animation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// newTestStore opens an in-memory SQLite store with migrations applied.
func newTestStore(t *testing.T) *datastore.SQLiteStore {
	t.Helper()
	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = ":memory:"

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func denverWebcam(t *testing.T, store datastore.Interface) *datastore.Webcam {
	t.Helper()
	webcam := &datastore.Webcam{
		Name:            "alpine-visitor-center",
		DisplayName:     "Alpine Visitor Center",
		NationalPark:    "rocky-mountain",
		SnapshotURL:     "http://example.com/alpine.jpg",
		Enabled:         true,
		IntervalSeconds: 300,
		Location:        strPtr("39.740,-104.975"),
		Timezone:        strPtr("America/Denver"),
	}
	require.NoError(t, store.SaveWebcam(webcam))
	return webcam
}

func findJob(jobs []datastore.AnimationJob, jobType string) *datastore.AnimationJob {
	for i := range jobs {
		if jobs[i].Type == jobType {
			return &jobs[i]
		}
	}
	return nil
}

func TestJobsForWebcamDenverEquinox(t *testing.T) {
	store := newTestStore(t)
	webcam := denverWebcam(t, store)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	jobs, err := scheduler.JobsForWebcam(webcam, "2025-09-24")
	require.NoError(t, err)
	require.NotEmpty(t, jobs)

	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	sunrise := findJob(jobs, datastore.JobTypeSunrise)
	require.NotNil(t, sunrise, "sunrise job should be scheduled")

	// First light ~05:51, sunrise ~06:49 local; the window pads a quarter of
	// the twilight duration on each side.
	start := time.Unix(sunrise.StartTime, 0).In(denver)
	end := time.Unix(sunrise.EndTime, 0).In(denver)
	assert.WithinDuration(t,
		time.Date(2025, 9, 24, 5, 36, 0, 0, denver), start, 5*time.Minute)
	assert.WithinDuration(t,
		time.Date(2025, 9, 24, 7, 3, 0, 0, denver), end, 5*time.Minute)

	// Scheduled one minute after the window closes, still on the local date.
	assert.Equal(t, sunrise.EndTime+60, sunrise.ScheduledTime)
	assert.Equal(t, "2025-09-24", sunrise.DateKey)
	assert.Equal(t, datastore.StatusAwaitingImages, sunrise.Status)
	assert.Equal(t, ReferenceKey(webcam.ID, datastore.JobTypeSunrise, end), sunrise.ReferenceKey)
	assert.Equal(t,
		"gifs/rocky-mountain/alpine-visitor-center/sunrise/20250924.gif",
		sunrise.StorageKey)

	sunset := findJob(jobs, datastore.JobTypeSunset)
	require.NotNil(t, sunset, "sunset job should be scheduled")
	sunsetEnd := time.Unix(sunset.EndTime, 0).In(denver)
	assert.WithinDuration(t,
		time.Date(2025, 9, 24, 20, 7, 0, 0, denver), sunsetEnd, 5*time.Minute)

	fullDay := findJob(jobs, datastore.JobTypeFullDay)
	require.NotNil(t, fullDay, "full-day job should be scheduled")
	assert.Equal(t, sunrise.StartTime, fullDay.StartTime)
	assert.Equal(t, sunset.EndTime, fullDay.EndTime)
}

func TestJobsForWebcamHourly(t *testing.T) {
	store := newTestStore(t)
	webcam := denverWebcam(t, store)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	jobs, err := scheduler.JobsForWebcam(webcam, "2025-09-24")
	require.NoError(t, err)

	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)

	var hourly []datastore.AnimationJob
	for _, job := range jobs {
		if job.Type == datastore.JobTypeHourly {
			hourly = append(hourly, job)
		}
	}
	// Light runs roughly 05:36 to 20:05 local; first light falls in the
	// 05:00 hour, so jobs cover 05:00 through 19:00.
	require.NotEmpty(t, hourly)
	assert.GreaterOrEqual(t, len(hourly), 13)
	assert.LessOrEqual(t, len(hourly), 16)

	first := hourly[0]
	hourStart := time.Unix(first.StartTime, 0).In(denver)
	assert.Zero(t, hourStart.Minute())
	assert.Zero(t, hourStart.Second())
	assert.Equal(t, first.StartTime+3600, first.EndTime)
	// Hourly jobs become eligible five minutes after the hour closes.
	assert.Equal(t, first.EndTime+300, first.ScheduledTime)
	assert.Equal(t, HourlyReferenceKey(webcam.ID, hourStart), first.ReferenceKey)
	assert.Contains(t, first.ReferenceKey, "_hourly_20250924_")
	assert.Equal(t, HourlyStorageKey("rocky-mountain", "alpine-visitor-center", hourStart), first.StorageKey)

	// Hours never run past the light window, and the first may lead it by
	// less than a full hour.
	fullDay := findJob(jobs, datastore.JobTypeFullDay)
	for _, job := range hourly {
		assert.Greater(t, job.EndTime, fullDay.StartTime)
		assert.LessOrEqual(t, job.EndTime, fullDay.EndTime)
	}
}

func TestJobsForWebcamMissingLocation(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	webcam := &datastore.Webcam{Name: "no-coords", Enabled: true}
	require.NoError(t, store.SaveWebcam(webcam))

	jobs, err := scheduler.JobsForWebcam(webcam, "2025-09-24")
	require.NoError(t, err)
	assert.Nil(t, jobs)
}

func TestJobsForWebcamBadDate(t *testing.T) {
	store := newTestStore(t)
	webcam := denverWebcam(t, store)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	for _, date := range []string{"", "09/24/2025", "2025-9-24", "20250924"} {
		_, err := scheduler.JobsForWebcam(webcam, date)
		assert.Error(t, err, "date %q", date)
		assert.True(t, errors.IsCategory(err, errors.CategoryFormat))
	}
}

func TestJobsForWebcamPolarNight(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	webcam := &datastore.Webcam{
		Name:     "longyearbyen",
		Enabled:  true,
		Location: strPtr("78.22,15.65"),
		Timezone: strPtr("Europe/Oslo"),
	}
	require.NoError(t, store.SaveWebcam(webcam))

	jobs, err := scheduler.JobsForWebcam(webcam, "2025-12-21")
	require.NoError(t, err)
	assert.Empty(t, jobs, "no sun events means no jobs")
}

func TestScheduleDayIdempotent(t *testing.T) {
	store := newTestStore(t)
	denverWebcam(t, store)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	first, err := scheduler.ScheduleDay("2025-09-24")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Webcams)
	assert.Positive(t, first.JobsBuilt)
	assert.Equal(t, first.JobsBuilt, first.JobsCreated)

	second, err := scheduler.ScheduleDay("2025-09-24")
	require.NoError(t, err)
	assert.Equal(t, first.JobsBuilt, second.JobsBuilt)
	assert.Zero(t, second.JobsCreated, "re-running the same date creates nothing")
}

func TestScheduleDaySkipsUnconfigured(t *testing.T) {
	store := newTestStore(t)
	denverWebcam(t, store)
	bare := &datastore.Webcam{Name: "no-coords", Enabled: true}
	require.NoError(t, store.SaveWebcam(bare))

	scheduler := NewScheduler(store, suncalc.NewSunCalc())
	result, err := scheduler.ScheduleDay("2025-09-24")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Webcams)
	assert.Equal(t, 1, result.WebcamsSkipped)
}

func TestScheduleDayBadDate(t *testing.T) {
	store := newTestStore(t)
	scheduler := NewScheduler(store, suncalc.NewSunCalc())

	_, err := scheduler.ScheduleDay("not-a-date")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFormat))
}
