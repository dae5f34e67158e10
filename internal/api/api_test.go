package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abvaden/nps-webcam-animation-generator/internal/animation"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/imagestore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

func newTestController(t *testing.T) (*Controller, datastore.Interface) {
	t.Helper()
	settings := &conf.Settings{}
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = ":memory:"
	settings.Animation.AdvanceBatchSize = 50

	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	objects, err := imagestore.NewDiskStore(t.TempDir(), "https://cdn.example.org/webcams")
	require.NoError(t, err)

	sun := suncalc.NewSunCalc()
	controller := New(settings, store, objects,
		animation.NewScheduler(store, sun),
		animation.NewQueue(store, animation.DefaultFrameRate, nil),
		sun, nil)
	return controller, store
}

func strPtr(s string) *string { return &s }

func addDenverWebcam(t *testing.T, ds datastore.Interface) *datastore.Webcam {
	t.Helper()
	webcam := &datastore.Webcam{
		Name:         "alpine-visitor-center",
		DisplayName:  "Alpine Visitor Center",
		NationalPark: "rocky-mountain",
		Enabled:      true,
		Location:     strPtr("39.740,-104.975"),
		Timezone:     strPtr("America/Denver"),
	}
	require.NoError(t, ds.SaveWebcam(webcam))
	return webcam
}

func doRequest(c *Controller, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	controller, _ := newTestController(t)
	rec := doRequest(controller, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestListWebcams(t *testing.T) {
	controller, ds := newTestController(t)
	addDenverWebcam(t, ds)

	rec := doRequest(controller, http.MethodGet, "/api/v1/webcams", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var webcams []WebcamResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &webcams))
	require.Len(t, webcams, 1)
	assert.Equal(t, "alpine-visitor-center", webcams[0].Name)
	assert.Equal(t, "America/Denver", webcams[0].Timezone)
}

func TestWebcamSolar(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	rec := doRequest(controller, http.MethodGet,
		fmt.Sprintf("/api/v1/webcams/%d/solar?date=2025-09-24", webcam.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var solar SolarResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &solar))
	require.NotNil(t, solar.Sunrise)
	require.NotNil(t, solar.Sunset)
	require.NotNil(t, solar.DayLength)
	assert.InDelta(t, 12.0, *solar.DayLength, 0.5)

	// Second hit serves from cache and agrees byte for byte.
	again := doRequest(controller, http.MethodGet,
		fmt.Sprintf("/api/v1/webcams/%d/solar?date=2025-09-24", webcam.ID), "")
	assert.Equal(t, rec.Body.String(), again.Body.String())
}

func TestWebcamSolarErrors(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	bare := &datastore.Webcam{Name: "no-coords", Enabled: true}
	require.NoError(t, ds.SaveWebcam(bare))

	cases := []struct {
		target string
		code   int
	}{
		{fmt.Sprintf("/api/v1/webcams/%d/solar?date=2025/09/24", webcam.ID), http.StatusBadRequest},
		{"/api/v1/webcams/9999/solar?date=2025-09-24", http.StatusNotFound},
		{fmt.Sprintf("/api/v1/webcams/%d/solar?date=2025-09-24", bare.ID), http.StatusUnprocessableEntity},
		{"/api/v1/webcams/abc/solar?date=2025-09-24", http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := doRequest(controller, http.MethodGet, tc.target, "")
		assert.Equal(t, tc.code, rec.Code, tc.target)
	}
}

func TestScheduleAnimations(t *testing.T) {
	controller, ds := newTestController(t)
	addDenverWebcam(t, ds)

	rec := doRequest(controller, http.MethodPost, "/api/v1/animations/schedule?date=2025-09-24", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result animation.ScheduleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Positive(t, result.JobsCreated)

	// Idempotent re-run.
	again := doRequest(controller, http.MethodPost, "/api/v1/animations/schedule?date=2025-09-24", "")
	require.Equal(t, http.StatusOK, again.Code)
	var rerun animation.ScheduleResult
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &rerun))
	assert.Zero(t, rerun.JobsCreated)

	bad := doRequest(controller, http.MethodPost, "/api/v1/animations/schedule?date=bogus", "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestListAnimations(t *testing.T) {
	controller, ds := newTestController(t)
	addDenverWebcam(t, ds)

	doRequest(controller, http.MethodPost, "/api/v1/animations/schedule?date=2025-09-24", "")

	rec := doRequest(controller, http.MethodGet, "/api/v1/animations?status=awaiting_images", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var jobs []AnimationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.NotEmpty(t, jobs)
	for _, job := range jobs {
		assert.Equal(t, datastore.StatusAwaitingImages, job.Status)
	}
}

func TestListAnimationsIncludesArtifactURL(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	jobs := []datastore.AnimationJob{
		{
			ReferenceKey: "1_sunrise_20250924",
			WebcamID:     webcam.ID,
			Type:         datastore.JobTypeSunrise,
			Status:       datastore.StatusDone,
			StorageKey:   "gifs/rocky-mountain/alpine-visitor-center/sunrise/20250924.gif",
		},
		{
			ReferenceKey: "1_hourly_20250924_12",
			WebcamID:     webcam.ID,
			Type:         datastore.JobTypeHourly,
			Status:       datastore.StatusAwaitingImages,
			StorageKey:   "gifs/rocky-mountain/alpine-visitor-center/hourly/20250924_12.gif",
		},
	}
	_, err := ds.InsertJobs(jobs)
	require.NoError(t, err)

	rec := doRequest(controller, http.MethodGet, "/api/v1/animations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []AnimationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	for _, job := range listed {
		if job.Status == datastore.StatusDone {
			assert.Equal(t,
				"https://cdn.example.org/webcams/"+job.StorageKey, job.URL)
		} else {
			assert.Empty(t, job.URL, "unfinished jobs have no artifact yet")
		}
	}
}

func TestCompleteAnimationConflicts(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	job := datastore.AnimationJob{
		ReferenceKey: "1_sunrise_20250924",
		WebcamID:     webcam.ID,
		Type:         datastore.JobTypeSunrise,
		Status:       datastore.StatusAwaitingImages,
	}
	created, err := ds.InsertJobs([]datastore.AnimationJob{job})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	persisted, err := ds.GetJobByReference(job.ReferenceKey)
	require.NoError(t, err)

	rec := doRequest(controller, http.MethodPost,
		fmt.Sprintf("/api/v1/animations/%d/complete", persisted.ID), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), datastore.StatusAwaitingImages)

	missing := doRequest(controller, http.MethodPost, "/api/v1/animations/9999/complete", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestFailAnimation(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	job := datastore.AnimationJob{
		ReferenceKey: "1_sunset_20250924",
		WebcamID:     webcam.ID,
		Type:         datastore.JobTypeSunset,
		Status:       datastore.StatusReady,
	}
	_, err := ds.InsertJobs([]datastore.AnimationJob{job})
	require.NoError(t, err)
	persisted, err := ds.GetJobByReference(job.ReferenceKey)
	require.NoError(t, err)

	rec := doRequest(controller, http.MethodPost,
		fmt.Sprintf("/api/v1/animations/%d/fail", persisted.ID),
		`{"message":"encoder crashed"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	failed, err := ds.GetJob(persisted.ID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, failed.Status)
	assert.Equal(t, "encoder crashed", failed.ErrorMessage)
}

func TestCreateOnDemandAnimation(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	start := time.Date(2025, 9, 24, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	body := fmt.Sprintf(`{"webcamId":%d,"start":%d,"end":%d}`, webcam.ID, start.Unix(), end.Unix())

	rec := doRequest(controller, http.MethodPost, "/api/v1/animations", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var job AnimationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, datastore.JobTypeOnDemand, job.Type)
	assert.Contains(t, job.ReferenceKey, "_on_demand_")

	// End before start is rejected.
	invalid := fmt.Sprintf(`{"webcamId":%d,"start":%d,"end":%d}`, webcam.ID, end.Unix(), start.Unix())
	bad := doRequest(controller, http.MethodPost, "/api/v1/animations", invalid)
	assert.Equal(t, http.StatusUnprocessableEntity, bad.Code)
}

func TestDeleteAnimation(t *testing.T) {
	controller, ds := newTestController(t)
	webcam := addDenverWebcam(t, ds)

	job := datastore.AnimationJob{
		ReferenceKey: "1_hourly_20250924_07",
		WebcamID:     webcam.ID,
		Type:         datastore.JobTypeHourly,
		Status:       datastore.StatusAwaitingImages,
	}
	_, err := ds.InsertJobs([]datastore.AnimationJob{job})
	require.NoError(t, err)
	persisted, err := ds.GetJobByReference(job.ReferenceKey)
	require.NoError(t, err)

	rec := doRequest(controller, http.MethodDelete,
		fmt.Sprintf("/api/v1/animations/%d", persisted.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	again := doRequest(controller, http.MethodDelete,
		fmt.Sprintf("/api/v1/animations/%d", persisted.ID), "")
	assert.Equal(t, http.StatusNotFound, again.Code)
}
