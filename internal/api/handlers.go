package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// WebcamResponse is the public view of a configured webcam.
type WebcamResponse struct {
	ID           uint       `json:"id"`
	Name         string     `json:"name"`
	DisplayName  string     `json:"displayName"`
	NationalPark string     `json:"nationalPark"`
	Enabled      bool       `json:"enabled"`
	Location     string     `json:"location,omitempty"`
	Timezone     string     `json:"timezone,omitempty"`
	LastActiveAt *time.Time `json:"lastActiveAt,omitempty"`
}

// ListWebcams returns every configured webcam.
func (c *Controller) ListWebcams(ctx echo.Context) error {
	webcams, err := c.DS.GetAllWebcams()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list webcams")
	}

	response := make([]WebcamResponse, 0, len(webcams))
	for i := range webcams {
		w := &webcams[i]
		response = append(response, WebcamResponse{
			ID:           w.ID,
			Name:         w.Name,
			DisplayName:  w.DisplayName,
			NationalPark: w.NationalPark,
			Enabled:      w.Enabled,
			Location:     w.LocationString(),
			Timezone:     w.TimezoneString(),
			LastActiveAt: w.LastActiveAt,
		})
	}
	return ctx.JSON(http.StatusOK, response)
}

// SolarResponse carries the computed solar times for one webcam and date.
// Absent events are omitted.
type SolarResponse struct {
	Date       string     `json:"date"`
	Webcam     string     `json:"webcam"`
	FirstLight *time.Time `json:"firstLight,omitempty"`
	Sunrise    *time.Time `json:"sunrise,omitempty"`
	Sunset     *time.Time `json:"sunset,omitempty"`
	LastLight  *time.Time `json:"lastLight,omitempty"`
	DayLength  *float64   `json:"dayLengthHours,omitempty"`
}

// WebcamSolar computes the solar times for one webcam on a given date.
func (c *Controller) WebcamSolar(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid webcam ID")
	}
	date := ctx.QueryParam("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return c.HandleError(ctx, errors.Newf("date %q does not match YYYY-MM-DD", date).
			Component("api").
			Category(errors.CategoryFormat).
			Build(), "Invalid date")
	}

	webcam, err := c.DS.GetWebcam(id)
	if err != nil {
		return c.HandleError(ctx, err, "Webcam not found")
	}
	location := webcam.LocationString()
	if location == "" {
		return c.HandleError(ctx, errors.Newf("webcam %s has no location configured", webcam.Name).
			Component("api").
			Category(errors.CategoryValidation).
			Build(), "Webcam has no location")
	}

	cacheKey := fmt.Sprintf("%d:%s", webcam.ID, date)
	if cached, found := c.solarCache.Get(cacheKey); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	day, _ := time.Parse("2006-01-02", date)
	anchor := time.Date(day.Year(), day.Month(), day.Day(), 3, 0, 0, 0, time.UTC)
	st, err := c.SunCalc.TimesForLocation(location, anchor)
	if err != nil {
		return c.HandleError(ctx, err, "Solar calculation failed")
	}

	response := solarResponse(webcam.Name, date, &st)
	c.solarCache.SetDefault(cacheKey, response)
	return ctx.JSON(http.StatusOK, response)
}

func solarResponse(webcam, date string, st *suncalc.SolarTimes) *SolarResponse {
	response := &SolarResponse{Date: date, Webcam: webcam}
	if !st.FirstLight.IsZero() {
		response.FirstLight = &st.FirstLight
	}
	if st.HasSunrise() {
		response.Sunrise = &st.Sunrise
	}
	if st.HasSunset() {
		response.Sunset = &st.Sunset
	}
	if !st.LastLight.IsZero() {
		response.LastLight = &st.LastLight
	}
	if st.HasSunrise() && st.HasSunset() {
		dayLength := st.DayLength
		response.DayLength = &dayLength
	}
	return response
}

// ScheduleAnimations builds the day's animation jobs for every webcam.
func (c *Controller) ScheduleAnimations(ctx echo.Context) error {
	date := ctx.QueryParam("date")
	result, err := c.Scheduler.ScheduleDay(date)
	if err != nil {
		return c.HandleError(ctx, err, "Scheduling failed")
	}
	return ctx.JSON(http.StatusOK, result)
}

// AdvanceAnimations moves due jobs toward ready.
func (c *Controller) AdvanceAnimations(ctx echo.Context) error {
	limit := queryInt(ctx, "limit", c.Settings.Animation.AdvanceBatchSize)
	result, err := c.Queue.Advance(time.Now(), limit)
	if err != nil {
		return c.HandleError(ctx, err, "Queue advancement failed")
	}
	return ctx.JSON(http.StatusOK, result)
}

// AnimationResponse is the public view of one queue entry.
type AnimationResponse struct {
	ID            uint   `json:"id"`
	ReferenceKey  string `json:"referenceKey"`
	WebcamID      uint   `json:"webcamId"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	ScheduledTime int64  `json:"scheduledTime"`
	DateKey       string `json:"dateKey"`
	StartTime     int64  `json:"startTime"`
	EndTime       int64  `json:"endTime"`
	Frames        int    `json:"frames"`
	StorageKey    string `json:"storageKey"`
	URL           string `json:"url,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// ListAnimations lists jobs, optionally filtered by status.
func (c *Controller) ListAnimations(ctx echo.Context) error {
	status := ctx.QueryParam("status")
	limit := queryInt(ctx, "limit", 100)

	jobs, err := c.DS.ListJobs(status, limit)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list animations")
	}

	response := make([]AnimationResponse, 0, len(jobs))
	for i := range jobs {
		response = append(response, c.animationResponse(&jobs[i]))
	}
	return ctx.JSON(http.StatusOK, response)
}

// animationResponse renders a job; finished animations additionally carry
// the public artifact URL when the store exposes one.
func (c *Controller) animationResponse(job *datastore.AnimationJob) AnimationResponse {
	response := AnimationResponse{
		ID:            job.ID,
		ReferenceKey:  job.ReferenceKey,
		WebcamID:      job.WebcamID,
		Type:          job.Type,
		Status:        job.Status,
		ScheduledTime: job.ScheduledTime,
		DateKey:       job.DateKey,
		StartTime:     job.StartTime,
		EndTime:       job.EndTime,
		Frames:        len(job.Images),
		StorageKey:    job.StorageKey,
		ErrorMessage:  job.ErrorMessage,
	}
	if c.Store != nil && job.Status == datastore.StatusDone {
		response.URL = c.Store.PublicURL(job.StorageKey)
	}
	return response
}

// OnDemandRequest is the body of POST /api/v1/animations.
type OnDemandRequest struct {
	WebcamID uint  `json:"webcamId"`
	Start    int64 `json:"start"` // Unix seconds
	End      int64 `json:"end"`   // Unix seconds
}

// CreateOnDemandAnimation enqueues an ad hoc animation over an arbitrary
// capture window.
func (c *Controller) CreateOnDemandAnimation(ctx echo.Context) error {
	var req OnDemandRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.Newf("request body does not parse: %v", err).
			Component("api").
			Category(errors.CategoryFormat).
			Build(), "Invalid request body")
	}

	job, err := c.Queue.CreateOnDemand(req.WebcamID,
		time.Unix(req.Start, 0), time.Unix(req.End, 0), time.Now())
	if err != nil {
		return c.HandleError(ctx, err, "Failed to create animation")
	}
	return ctx.JSON(http.StatusCreated, c.animationResponse(&job))
}

// CompleteAnimation marks an in-progress job done.
func (c *Controller) CompleteAnimation(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animation ID")
	}

	if err := c.Queue.MarkComplete(id, time.Now()); err != nil {
		return c.HandleError(ctx, err, "Failed to complete animation")
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// FailRequest is the body of POST /api/v1/animations/:id/fail.
type FailRequest struct {
	Message string `json:"message"`
}

// FailAnimation records a terminal failure for a job.
func (c *Controller) FailAnimation(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animation ID")
	}

	var req FailRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.Newf("request body does not parse: %v", err).
			Component("api").
			Category(errors.CategoryFormat).
			Build(), "Invalid request body")
	}
	if req.Message == "" {
		req.Message = "failed by operator request"
	}

	if err := c.Queue.MarkFailed(id, req.Message, time.Now()); err != nil {
		return c.HandleError(ctx, err, "Failed to fail animation")
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteAnimation removes a job row.
func (c *Controller) DeleteAnimation(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid animation ID")
	}

	if err := c.Queue.Delete(id); err != nil {
		return c.HandleError(ctx, err, "Failed to delete animation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.Newf("ID %q is not a positive integer", raw).
			Component("api").
			Category(errors.CategoryFormat).
			Build()
	}
	return uint(id), nil
}

func queryInt(ctx echo.Context, name string, fallback int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
