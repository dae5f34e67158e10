// Package animation schedules time-lapse animation jobs from solar windows
// and advances them through the generation queue.
package animation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
)

// DefaultFrameRate is the output frame rate used to cap animation length.
const DefaultFrameRate = 10

// targetSeconds is the desired artifact length per job type; together with
// the frame rate it caps how many frames a job may select.
var targetSeconds = map[string]int{
	datastore.JobTypeSunrise:  6,
	datastore.JobTypeSunset:   6,
	datastore.JobTypeHourly:   3,
	datastore.JobTypeFullDay:  10,
	datastore.JobTypeOnDemand: 6,
}

// minimumImages is the smallest desampled frame count per job type that
// still produces a worthwhile animation.
var minimumImages = map[string]int{
	datastore.JobTypeHourly:   5,
	datastore.JobTypeSunrise:  3,
	datastore.JobTypeSunset:   3,
	datastore.JobTypeFullDay:  10,
	datastore.JobTypeOnDemand: 3,
}

// HasMinimumImages reports whether count frames satisfy the job type's
// minimum-image threshold. Unknown job types never satisfy it.
func HasMinimumImages(jobType string, count int) bool {
	minimum, ok := minimumImages[jobType]
	if !ok {
		return false
	}
	return count >= minimum
}

// MaxFrames returns the frame cap for a job type at the given frame rate.
func MaxFrames(jobType string, frameRate int) int {
	seconds, ok := targetSeconds[jobType]
	if !ok {
		return 0
	}
	return frameRate * seconds
}

// ReferenceKey builds the deterministic job identifier
// "{webcamID}_{type}_{yyyyMMdd}" from the job's local date. Recomputing it
// for the same inputs always yields the same string; this is the mechanism
// for idempotent re-scheduling.
func ReferenceKey(webcamID uint, jobType string, localDate time.Time) string {
	return fmt.Sprintf("%d_%s_%s", webcamID, jobType, localDate.Format("20060102"))
}

// HourlyReferenceKey appends the two-digit 24-hour local hour to the
// deterministic key: "{webcamID}_hourly_{yyyyMMdd}_{HH}".
func HourlyReferenceKey(webcamID uint, localHour time.Time) string {
	return fmt.Sprintf("%d_%s_%s_%02d",
		webcamID, datastore.JobTypeHourly, localHour.Format("20060102"), localHour.Hour())
}

// OnDemandReferenceKey builds a unique key for an on-demand job; there is no
// natural idempotency key for ad hoc requests.
func OnDemandReferenceKey(webcamID uint) string {
	return fmt.Sprintf("%d_%s_%s", webcamID, datastore.JobTypeOnDemand, uuid.NewString())
}

// StorageKey builds the finished artifact's object key
// "gifs/{park}/{webcam}/{type}/{yyyyMMdd}.gif".
func StorageKey(park, webcamName, jobType string, localDate time.Time) string {
	return fmt.Sprintf("gifs/%s/%s/%s/%s.gif", park, webcamName, jobType, localDate.Format("20060102"))
}

// HourlyStorageKey builds the artifact key for an hourly job,
// "gifs/{park}/{webcam}/hourly/{yyyyMMdd}_{HH}.gif".
func HourlyStorageKey(park, webcamName string, localHour time.Time) string {
	return fmt.Sprintf("gifs/%s/%s/%s/%s_%02d.gif",
		park, webcamName, datastore.JobTypeHourly, localHour.Format("20060102"), localHour.Hour())
}
