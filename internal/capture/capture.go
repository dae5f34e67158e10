// Package capture polls webcam snapshot URLs and stores new frames, skipping
// frames the camera has not actually updated.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"golang.org/x/sync/errgroup"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/imagestore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
	"github.com/abvaden/nps-webcam-animation-generator/internal/observability"
	"github.com/abvaden/nps-webcam-animation-generator/internal/suncalc"
)

// maxSnapshotBytes caps a single fetched frame; park webcams serve stills in
// the hundreds of kilobytes.
const maxSnapshotBytes = 20 << 20

// duplicateHashDistance is the maximum perceptual hash distance at which two
// frames count as the same image; 0 skips only hash-identical frames.
const duplicateHashDistance = 0

// Capturer fetches and stores frames for every enabled webcam.
type Capturer struct {
	ds           datastore.Interface
	store        imagestore.Store
	client       *http.Client
	concurrency  int
	daylightOnly bool
	log          *slog.Logger
	metrics      *observability.Metrics
}

// NewCapturer creates a capturer from the capture settings. A nil metrics
// instance disables instrumentation.
func NewCapturer(ds datastore.Interface, store imagestore.Store, settings *conf.CaptureSettings, metrics *observability.Metrics) *Capturer {
	timeout := time.Duration(settings.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	concurrency := settings.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Capturer{
		ds:           ds,
		store:        store,
		client:       &http.Client{Timeout: timeout},
		concurrency:  concurrency,
		daylightOnly: settings.DaylightOnly,
		log:          logging.ForService("capture"),
		metrics:      metrics,
	}
}

// Result summarizes one capture pass.
type Result struct {
	Captured   int `json:"captured"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// Run captures every enabled webcam that is due, with bounded concurrency.
// One webcam's failure never affects the others.
func (c *Capturer) Run(ctx context.Context, now time.Time) (Result, error) {
	webcams, err := c.ds.GetEnabledWebcams()
	if err != nil {
		return Result{}, err
	}

	var captured, skipped, duplicates, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i := range webcams {
		webcam := webcams[i]
		if !c.due(&webcam, now) {
			skipped.Add(1)
			continue
		}

		g.Go(func() error {
			outcome, err := c.CaptureOne(ctx, &webcam, now)
			switch {
			case err != nil:
				failed.Add(1)
				c.count(webcam.Name, "error")
				c.log.Error("Capture failed", "webcam", webcam.Name, "error", err)
			case outcome == outcomeDuplicate:
				duplicates.Add(1)
				c.count(webcam.Name, "skipped_duplicate")
			default:
				captured.Add(1)
				c.count(webcam.Name, "success")
			}
			return nil
		})
	}

	// Goroutines never return errors, but Wait also observes ctx cancellation.
	_ = g.Wait()

	result := Result{
		Captured:   int(captured.Load()),
		Skipped:    int(skipped.Load()),
		Duplicates: int(duplicates.Load()),
		Failed:     int(failed.Load()),
	}
	c.log.Debug("Capture pass complete",
		"captured", result.Captured,
		"skipped", result.Skipped,
		"duplicates", result.Duplicates,
		"failed", result.Failed)
	return result, ctx.Err()
}

// due reports whether the webcam's capture interval has elapsed and, when
// daylight-only capture is on, whether the sun is up at its location.
func (c *Capturer) due(webcam *datastore.Webcam, now time.Time) bool {
	interval := time.Duration(webcam.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if webcam.LastActiveAt != nil && now.Sub(*webcam.LastActiveAt) < interval {
		return false
	}
	if c.daylightOnly && webcam.Location != nil {
		return suncalc.IsDaylight(*webcam.Location, now)
	}
	return true
}

type captureOutcome int

const (
	outcomeStored captureOutcome = iota
	outcomeDuplicate
)

// CaptureOne fetches, deduplicates and stores a single frame.
func (c *Capturer) CaptureOne(ctx context.Context, webcam *datastore.Webcam, now time.Time) (captureOutcome, error) {
	started := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.CaptureDuration.Observe(time.Since(started).Seconds())
		}
	}()

	data, err := c.fetch(ctx, webcam)
	if err != nil {
		return outcomeStored, err
	}

	hash, err := frameHash(data)
	if err != nil {
		return outcomeStored, err
	}

	duplicate, err := isDuplicate(hash, webcam.LastImageHash)
	if err != nil {
		// An unparseable stored hash only costs us one dedup check.
		c.log.Warn("Ignoring unreadable stored frame hash",
			"webcam", webcam.Name, "error", err)
	}
	if duplicate {
		// Same frame as last time; refresh the activity stamp only.
		if err := c.ds.UpdateWebcamCapture(webcam.ID, webcam.LastImageHash, now); err != nil {
			return outcomeDuplicate, err
		}
		return outcomeDuplicate, nil
	}

	key := ObjectKey(webcam, now)
	if err := c.store.Save(key, data); err != nil {
		return outcomeStored, err
	}

	row := &datastore.CapturedImage{
		WebcamID:   webcam.ID,
		CapturedAt: now.Unix(),
		ObjectName: key,
	}
	if err := c.ds.InsertImage(row); err != nil {
		return outcomeStored, err
	}

	if err := c.ds.UpdateWebcamCapture(webcam.ID, hash.ToString(), now); err != nil {
		return outcomeStored, err
	}
	return outcomeStored, nil
}

// ObjectKey builds the storage key for one captured frame,
// "images/{park}/{webcam}/{unix}.jpg".
func ObjectKey(webcam *datastore.Webcam, at time.Time) string {
	return fmt.Sprintf("images/%s/%s/%d.jpg", webcam.NationalPark, webcam.Name, at.Unix())
}

func (c *Capturer) fetch(ctx context.Context, webcam *datastore.Webcam) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webcam.SnapshotURL, http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryValidation).
			Context("webcam", webcam.Name).
			Build()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryImageFetch).
			Context("webcam", webcam.Name).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("snapshot request returned status %d", resp.StatusCode).
			Component("capture").
			Category(errors.CategoryImageFetch).
			Context("webcam", webcam.Name).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryImageFetch).
			Context("webcam", webcam.Name).
			Build()
	}
	if len(data) == 0 {
		return nil, errors.Newf("snapshot response was empty").
			Component("capture").
			Category(errors.CategoryImageFetch).
			Context("webcam", webcam.Name).
			Build()
	}
	return data, nil
}

// frameHash decodes the frame and computes its perceptual hash.
func frameHash(data []byte) (*goimagehash.ImageHash, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryFormat).
			Build()
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryFormat).
			Build()
	}
	return hash, nil
}

// isDuplicate compares the new frame's hash with the previously stored one.
func isDuplicate(hash *goimagehash.ImageHash, previous string) (bool, error) {
	if previous == "" {
		return false, nil
	}

	previousHash, err := goimagehash.ImageHashFromString(previous)
	if err != nil {
		return false, err
	}
	distance, err := hash.Distance(previousHash)
	if err != nil {
		return false, err
	}
	return distance <= duplicateHashDistance, nil
}

func (c *Capturer) count(webcam, status string) {
	if c.metrics != nil {
		c.metrics.CapturesTotal.WithLabelValues(webcam, status).Inc()
	}
}
