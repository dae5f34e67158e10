package animation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/desample"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/observability"
)

// Queue advances animation jobs through the state machine:
// awaiting_images → ready → in_progress → done, with failed reachable from
// awaiting_images and ready.
type Queue struct {
	ds        datastore.Interface
	frameRate int
	log       *slog.Logger
	metrics   *observability.Metrics
}

// NewQueue creates a queue over the given store. A nil metrics instance
// disables instrumentation.
func NewQueue(ds datastore.Interface, frameRate int, metrics *observability.Metrics) *Queue {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Queue{
		ds:        ds,
		frameRate: frameRate,
		log:       logging.ForService("animation-queue"),
		metrics:   metrics,
	}
}

// AdvanceResult summarizes one queue advancement pass.
type AdvanceResult struct {
	Processed    int `json:"processed"`
	MovedToReady int `json:"movedToReady"`
	Failed       int `json:"failed"`
}

// Advance processes awaiting-images jobs whose scheduled time has passed,
// attaching the desampled image list and moving each to ready or failed.
// One job's failure never aborts the batch; limit bounds the work done in a
// single tick.
func (q *Queue) Advance(now time.Time, limit int) (AdvanceResult, error) {
	var result AdvanceResult

	jobs, err := q.ds.GetDueJobs(now, limit)
	if err != nil {
		return result, err
	}

	for i := range jobs {
		job := &jobs[i]

		moved, err := q.advanceOne(job, now)
		if err != nil {
			// Transient failure: leave the job awaiting, the next tick
			// retries it naturally.
			q.log.Error("Failed to advance animation job",
				"job", job.ReferenceKey, "error", err)
			continue
		}

		result.Processed++
		if moved {
			result.MovedToReady++
			q.countTransition(datastore.StatusReady)
		} else {
			result.Failed++
			q.countTransition(datastore.StatusFailed)
		}
	}

	return result, nil
}

// advanceOne moves a single job to ready or failed. The boolean reports
// ready (true) vs failed (false); an error means the job was left untouched.
func (q *Queue) advanceOne(job *datastore.AnimationJob, now time.Time) (bool, error) {
	webcam, err := q.ds.GetWebcam(job.WebcamID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, q.fail(job, "webcam not found", now)
		}
		return false, err
	}

	images, err := q.ds.GetImagesInRange(webcam.ID, job.StartTime, job.EndTime)
	if err != nil {
		return false, err
	}

	keys := make([]string, len(images))
	for i := range images {
		keys[i] = images[i].ObjectName
	}

	// Frame cap: frame rate × target seconds, never more than exist in range
	maxFrames := MaxFrames(job.Type, q.frameRate)
	if maxFrames > len(keys) {
		maxFrames = len(keys)
	}
	selected := desample.Desample(keys, maxFrames)

	if !HasMinimumImages(job.Type, len(selected)) {
		message := fmt.Sprintf("insufficient images for %s animation: %d captured in window, %d after desampling",
			job.Type, len(keys), len(selected))
		return false, q.fail(job, message, now)
	}

	job.Status = datastore.StatusReady
	job.Images = selected
	job.ErrorMessage = ""
	job.ProcessedAt = &now
	if err := q.ds.UpdateJob(job); err != nil {
		return false, err
	}

	q.log.Debug("Animation job ready",
		"job", job.ReferenceKey, "frames", len(selected))
	return true, nil
}

func (q *Queue) fail(job *datastore.AnimationJob, message string, now time.Time) error {
	job.Status = datastore.StatusFailed
	job.ErrorMessage = message
	job.ProcessedAt = &now
	if err := q.ds.UpdateJob(job); err != nil {
		return err
	}
	q.log.Warn("Animation job failed", "job", job.ReferenceKey, "reason", message)
	return nil
}

// Claim moves up to limit ready jobs into in_progress, ordered by scheduled
// time, and returns them for the encoder.
func (q *Queue) Claim(limit int) ([]datastore.AnimationJob, error) {
	claimed, err := q.ds.ClaimReadyJobs(limit)
	if err != nil {
		return nil, err
	}
	for range claimed {
		q.countTransition(datastore.StatusInProgress)
	}
	return claimed, nil
}

// MarkComplete finishes an in-progress job. Completing a job in any other
// state fails with a conflict naming the actual state.
func (q *Queue) MarkComplete(jobID uint, now time.Time) error {
	job, err := q.ds.GetJob(jobID)
	if err != nil {
		return err
	}

	if job.Status != datastore.StatusInProgress {
		return errors.Newf("cannot complete job %s in state %q, expected %q",
			job.ReferenceKey, job.Status, datastore.StatusInProgress).
			Component("animation").
			Category(errors.CategoryConflict).
			Build()
	}

	job.Status = datastore.StatusDone
	job.ErrorMessage = ""
	job.ProcessedAt = &now
	if err := q.ds.UpdateJob(&job); err != nil {
		return err
	}

	q.countTransition(datastore.StatusDone)
	q.log.Info("Animation job complete", "job", job.ReferenceKey, "artifact", job.StorageKey)
	return nil
}

// MarkFailed records a terminal failure with an explanatory message.
func (q *Queue) MarkFailed(jobID uint, message string, now time.Time) error {
	job, err := q.ds.GetJob(jobID)
	if err != nil {
		return err
	}

	if err := q.fail(&job, message, now); err != nil {
		return err
	}
	q.countTransition(datastore.StatusFailed)
	return nil
}

// Delete removes a job row entirely, independent of the state machine.
func (q *Queue) Delete(jobID uint) error {
	return q.ds.DeleteJob(jobID)
}

// CreateOnDemand enqueues an ad hoc job over an arbitrary capture window.
func (q *Queue) CreateOnDemand(webcamID uint, start, end, now time.Time) (datastore.AnimationJob, error) {
	if !end.After(start) {
		return datastore.AnimationJob{}, errors.Newf("window end %d must be after start %d", end.Unix(), start.Unix()).
			Component("animation").
			Category(errors.CategoryValidation).
			Build()
	}

	webcam, err := q.ds.GetWebcam(webcamID)
	if err != nil {
		return datastore.AnimationJob{}, err
	}

	// Date keys are webcam-local; UTC only stands in for webcams without a
	// timezone.
	dateKey := now.UTC().Format("2006-01-02")
	if timezone := webcam.TimezoneString(); timezone != "" {
		if loc, err := time.LoadLocation(timezone); err == nil {
			dateKey = now.In(loc).Format("2006-01-02")
		}
	}

	referenceKey := OnDemandReferenceKey(webcam.ID)
	job := datastore.AnimationJob{
		ReferenceKey:  referenceKey,
		WebcamID:      webcam.ID,
		Type:          datastore.JobTypeOnDemand,
		Status:        datastore.StatusAwaitingImages,
		ScheduledTime: now.Unix(),
		DateKey:       dateKey,
		StartTime:     start.Unix(),
		EndTime:       end.Unix(),
		StorageKey: fmt.Sprintf("gifs/%s/%s/%s/%s.gif",
			webcam.NationalPark, webcam.Name, datastore.JobTypeOnDemand, referenceKey),
	}

	if _, err := q.ds.InsertJobs([]datastore.AnimationJob{job}); err != nil {
		return datastore.AnimationJob{}, err
	}

	created, err := q.ds.GetJobByReference(referenceKey)
	if err != nil {
		return datastore.AnimationJob{}, err
	}
	return created, nil
}

func (q *Queue) countTransition(toStatus string) {
	if q.metrics != nil {
		q.metrics.QueueTransitions.WithLabelValues(toStatus).Inc()
	}
}
