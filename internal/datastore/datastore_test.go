package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
)

// newTestStore opens an in-memory SQLite store with migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = ":memory:"

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func testWebcam(name string) *Webcam {
	return &Webcam{
		Name:            name,
		DisplayName:     "Alpine Visitor Center",
		NationalPark:    "rocky-mountain",
		SnapshotURL:     "http://example.com/alpine.jpg",
		Enabled:         true,
		IntervalSeconds: 300,
		Location:        strPtr("39.740,-104.975"),
		Timezone:        strPtr("America/Denver"),
	}
}

func TestWebcamRoundTrip(t *testing.T) {
	store := newTestStore(t)

	webcam := testWebcam("alpine")
	require.NoError(t, store.SaveWebcam(webcam))
	require.NotZero(t, webcam.ID)

	got, err := store.GetWebcam(webcam.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpine", got.Name)
	assert.Equal(t, "39.740,-104.975", got.LocationString())
	assert.Equal(t, "America/Denver", got.TimezoneString())

	_, err = store.GetWebcam(9999)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestImportWebcamPreservesCaptureState(t *testing.T) {
	store := newTestStore(t)

	webcam := testWebcam("alpine")
	require.NoError(t, store.ImportWebcam(webcam))

	// Simulate a capture
	at := time.Date(2025, 9, 24, 13, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateWebcamCapture(webcam.ID, "d:8f8f8f8f8f8f8f8f", at))

	// Re-import with a changed display name
	updated := testWebcam("alpine")
	updated.DisplayName = "Alpine VC"
	require.NoError(t, store.ImportWebcam(updated))
	assert.Equal(t, webcam.ID, updated.ID)

	got, err := store.GetWebcam(webcam.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpine VC", got.DisplayName)
	assert.Equal(t, "d:8f8f8f8f8f8f8f8f", got.LastImageHash, "capture state must survive imports")
	require.NotNil(t, got.LastActiveAt)
}

func TestInsertJobsIdempotent(t *testing.T) {
	store := newTestStore(t)

	jobs := []AnimationJob{
		{ReferenceKey: "1_sunrise_20250924", WebcamID: 1, Type: JobTypeSunrise, Status: StatusAwaitingImages, ScheduledTime: 100},
		{ReferenceKey: "1_sunset_20250924", WebcamID: 1, Type: JobTypeSunset, Status: StatusAwaitingImages, ScheduledTime: 200},
	}

	created, err := store.InsertJobs(jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// Re-inserting the same reference keys creates nothing
	again := []AnimationJob{
		{ReferenceKey: "1_sunrise_20250924", WebcamID: 1, Type: JobTypeSunrise, Status: StatusAwaitingImages, ScheduledTime: 100},
		{ReferenceKey: "1_sunset_20250924", WebcamID: 1, Type: JobTypeSunset, Status: StatusAwaitingImages, ScheduledTime: 200},
		{ReferenceKey: "1_full_day_20250924", WebcamID: 1, Type: JobTypeFullDay, Status: StatusAwaitingImages, ScheduledTime: 300},
	}
	created, err = store.InsertJobs(again)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	all, err := store.ListJobs("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetDueJobs(t *testing.T) {
	store := newTestStore(t)

	now := time.Unix(1000, 0)
	jobs := []AnimationJob{
		{ReferenceKey: "1_sunrise_20250924", Status: StatusAwaitingImages, ScheduledTime: 900},
		{ReferenceKey: "1_sunset_20250924", Status: StatusAwaitingImages, ScheduledTime: 1100},
		{ReferenceKey: "1_full_day_20250924", Status: StatusReady, ScheduledTime: 800},
	}
	_, err := store.InsertJobs(jobs)
	require.NoError(t, err)

	due, err := store.GetDueJobs(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "1_sunrise_20250924", due[0].ReferenceKey)
}

func TestClaimReadyJobs(t *testing.T) {
	store := newTestStore(t)

	jobs := []AnimationJob{
		{ReferenceKey: "1_sunrise_20250924", Status: StatusReady, ScheduledTime: 300},
		{ReferenceKey: "1_sunset_20250924", Status: StatusReady, ScheduledTime: 100},
		{ReferenceKey: "1_full_day_20250924", Status: StatusReady, ScheduledTime: 200},
		{ReferenceKey: "1_hourly_20250924_07", Status: StatusAwaitingImages, ScheduledTime: 50},
	}
	_, err := store.InsertJobs(jobs)
	require.NoError(t, err)

	claimed, err := store.ClaimReadyJobs(2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	// Ordered by scheduled time
	assert.Equal(t, "1_sunset_20250924", claimed[0].ReferenceKey)
	assert.Equal(t, "1_full_day_20250924", claimed[1].ReferenceKey)
	for _, job := range claimed {
		assert.Equal(t, StatusInProgress, job.Status)
	}

	// Claiming again returns the remaining ready job only
	claimed, err = store.ClaimReadyJobs(10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "1_sunrise_20250924", claimed[0].ReferenceKey)
}

func TestJobImagesSerialization(t *testing.T) {
	store := newTestStore(t)

	job := AnimationJob{
		ReferenceKey: "1_hourly_20250924_07",
		Status:       StatusAwaitingImages,
	}
	_, err := store.InsertJobs([]AnimationJob{job})
	require.NoError(t, err)

	stored, err := store.GetJobByReference("1_hourly_20250924_07")
	require.NoError(t, err)

	stored.Status = StatusReady
	stored.Images = []string{"webcams/rocky/alpine/100.jpg", "webcams/rocky/alpine/200.jpg"}
	require.NoError(t, store.UpdateJob(&stored))

	got, err := store.GetJob(stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Images, got.Images)
}

func TestDeleteJob(t *testing.T) {
	store := newTestStore(t)

	_, err := store.InsertJobs([]AnimationJob{{ReferenceKey: "1_sunrise_20250924", Status: StatusAwaitingImages}})
	require.NoError(t, err)

	job, err := store.GetJobByReference("1_sunrise_20250924")
	require.NoError(t, err)
	require.NoError(t, store.DeleteJob(job.ID))

	err = store.DeleteJob(job.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestImagesAndTags(t *testing.T) {
	store := newTestStore(t)

	for i, ts := range []int64{100, 200, 300} {
		require.NoError(t, store.InsertImage(&CapturedImage{
			WebcamID:   1,
			CapturedAt: ts,
			ObjectName: "webcams/rocky/alpine/" + []string{"100", "200", "300"}[i] + ".jpg",
		}))
	}

	images, err := store.GetImagesInRange(1, 150, 400)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, int64(200), images[0].CapturedAt)

	// Tag add is idempotent
	require.NoError(t, store.AddImageTag(images[0].ID, TagSunrise))
	require.NoError(t, store.AddImageTag(images[0].ID, TagSunrise))

	tagged, err := store.GetImagesInRange(1, 200, 200)
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	require.Len(t, tagged[0].Tags, 1)
	assert.True(t, tagged[0].HasTag(TagSunrise))
	assert.False(t, tagged[0].HasTag(TagSunset))

	// Removing an absent tag is a no-op; removing the present one works
	require.NoError(t, store.RemoveImageTag(images[0].ID, TagSunset))
	require.NoError(t, store.RemoveImageTag(images[0].ID, TagSunrise))

	tagged, err = store.GetImagesInRange(1, 200, 200)
	require.NoError(t, err)
	assert.Empty(t, tagged[0].Tags)
}

func TestNewSelectsBackend(t *testing.T) {
	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	assert.IsType(t, &SQLiteStore{}, New(settings))

	settings = &conf.Settings{}
	settings.Database.MySQL.Enabled = true
	assert.IsType(t, &MySQLStore{}, New(settings))

	assert.Nil(t, New(&conf.Settings{}))
}
