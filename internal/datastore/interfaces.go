// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// query shapes the scheduler, queue, capture loop and retention selectors use.
type Interface interface {
	Open() error
	Close() error

	// webcams
	SaveWebcam(webcam *Webcam) error
	ImportWebcam(webcam *Webcam) error
	GetWebcam(id uint) (Webcam, error)
	GetWebcamByName(name string) (Webcam, error)
	GetAllWebcams() ([]Webcam, error)
	GetEnabledWebcams() ([]Webcam, error)
	UpdateWebcamCapture(id uint, imageHash string, at time.Time) error

	// animation jobs
	InsertJobs(jobs []AnimationJob) (int, error)
	GetJob(id uint) (AnimationJob, error)
	GetJobByReference(referenceKey string) (AnimationJob, error)
	GetDueJobs(now time.Time, limit int) ([]AnimationJob, error)
	UpdateJob(job *AnimationJob) error
	ClaimReadyJobs(limit int) ([]AnimationJob, error)
	ListJobs(status string, limit int) ([]AnimationJob, error)
	DeleteJob(id uint) error

	// captured images
	InsertImage(image *CapturedImage) error
	GetImagesInRange(webcamID uint, start, end int64) ([]CapturedImage, error)
	AddImageTag(imageID uint, tag TagName) error
	RemoveImageTag(imageID uint, tag TagName) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// SaveWebcam creates or updates a webcam row.
func (ds *DataStore) SaveWebcam(webcam *Webcam) error {
	if err := ds.DB.Save(webcam).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save-webcam").
			Build()
	}
	return nil
}

// ImportWebcam inserts the webcam if no row with its name exists, otherwise
// updates the statically configured fields on the existing row. Capture
// state (hash, last-active) is left untouched.
func (ds *DataStore) ImportWebcam(webcam *Webcam) error {
	var existing Webcam
	err := ds.DB.Where("name = ?", webcam.Name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ds.SaveWebcam(webcam)
	case err != nil:
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "import-webcam").
			Build()
	}

	updates := map[string]any{
		"display_name":     webcam.DisplayName,
		"national_park":    webcam.NationalPark,
		"snapshot_url":     webcam.SnapshotURL,
		"enabled":          webcam.Enabled,
		"interval_seconds": webcam.IntervalSeconds,
		"location":         webcam.Location,
		"timezone":         webcam.Timezone,
	}
	if err := ds.DB.Model(&Webcam{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "import-webcam").
			Build()
	}
	webcam.ID = existing.ID
	return nil
}

// GetWebcam retrieves a webcam by its ID.
func (ds *DataStore) GetWebcam(id uint) (Webcam, error) {
	var webcam Webcam
	if err := ds.DB.First(&webcam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Webcam{}, errors.Newf("webcam %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Webcam{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return webcam, nil
}

// GetWebcamByName retrieves a webcam by its unique name.
func (ds *DataStore) GetWebcamByName(name string) (Webcam, error) {
	var webcam Webcam
	if err := ds.DB.Where("name = ?", name).First(&webcam).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Webcam{}, errors.Newf("webcam %q not found", name).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Webcam{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return webcam, nil
}

// GetAllWebcams returns every webcam row.
func (ds *DataStore) GetAllWebcams() ([]Webcam, error) {
	var webcams []Webcam
	if err := ds.DB.Order("name").Find(&webcams).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return webcams, nil
}

// GetEnabledWebcams returns the webcams with the enablement flag set.
func (ds *DataStore) GetEnabledWebcams() ([]Webcam, error) {
	var webcams []Webcam
	if err := ds.DB.Where("enabled = ?", true).Order("name").Find(&webcams).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return webcams, nil
}

// UpdateWebcamCapture records a successful capture: content hash and
// last-active timestamp.
func (ds *DataStore) UpdateWebcamCapture(id uint, imageHash string, at time.Time) error {
	err := ds.DB.Model(&Webcam{}).Where("id = ?", id).Updates(map[string]any{
		"last_image_hash": imageHash,
		"last_active_at":  at,
	}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update-webcam-capture").
			Build()
	}
	return nil
}

// InsertJobs persists the given jobs, ignoring any whose reference key
// already exists. Returns the number of rows actually created; duplicate
// scheduling runs for the same date therefore create nothing.
func (ds *DataStore) InsertJobs(jobs []AnimationJob) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	result := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference_key"}},
		DoNothing: true,
	}).Create(&jobs)
	if result.Error != nil {
		return 0, errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "insert-jobs").
			Build()
	}
	return int(result.RowsAffected), nil
}

// GetJob retrieves an animation job by its ID.
func (ds *DataStore) GetJob(id uint) (AnimationJob, error) {
	var job AnimationJob
	if err := ds.DB.First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AnimationJob{}, errors.Newf("animation job %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return AnimationJob{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return job, nil
}

// GetJobByReference retrieves an animation job by its reference key.
func (ds *DataStore) GetJobByReference(referenceKey string) (AnimationJob, error) {
	var job AnimationJob
	if err := ds.DB.Where("reference_key = ?", referenceKey).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AnimationJob{}, errors.Newf("animation job %s not found", referenceKey).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return AnimationJob{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return job, nil
}

// GetDueJobs returns awaiting-images jobs whose scheduled time has passed,
// oldest first, bounded by limit.
func (ds *DataStore) GetDueJobs(now time.Time, limit int) ([]AnimationJob, error) {
	var jobs []AnimationJob
	err := ds.DB.
		Where("status = ? AND scheduled_time <= ?", StatusAwaitingImages, now.Unix()).
		Order("scheduled_time").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get-due-jobs").
			Build()
	}
	return jobs, nil
}

// UpdateJob persists the full job row.
func (ds *DataStore) UpdateJob(job *AnimationJob) error {
	if err := ds.DB.Save(job).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update-job").
			Context("job_id", job.ID).
			Build()
	}
	return nil
}

// ClaimReadyJobs atomically moves up to limit ready jobs, ordered by
// scheduled time, into in_progress and returns them.
func (ds *DataStore) ClaimReadyJobs(limit int) ([]AnimationJob, error) {
	var claimed []AnimationJob
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("status = ?", StatusReady).
			Order("scheduled_time").
			Limit(limit).
			Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&AnimationJob{}).
				Where("id = ? AND status = ?", claimed[i].ID, StatusReady).
				Update("status", StatusInProgress).Error; err != nil {
				return err
			}
			claimed[i].Status = StatusInProgress
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "claim-ready-jobs").
			Build()
	}
	return claimed, nil
}

// ListJobs returns jobs filtered by status ("" for all), newest first.
func (ds *DataStore) ListJobs(status string, limit int) ([]AnimationJob, error) {
	query := ds.DB.Order("scheduled_time desc").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var jobs []AnimationJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list-jobs").
			Build()
	}
	return jobs, nil
}

// DeleteJob removes a job row entirely, independent of the state machine.
func (ds *DataStore) DeleteJob(id uint) error {
	result := ds.DB.Delete(&AnimationJob{}, id)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete-job").
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("animation job %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// InsertImage persists a captured image row.
func (ds *DataStore) InsertImage(image *CapturedImage) error {
	if err := ds.DB.Create(image).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "insert-image").
			Build()
	}
	return nil
}

// GetImagesInRange returns a webcam's captured images with capture time in
// [start, end], chronological order, tags preloaded.
func (ds *DataStore) GetImagesInRange(webcamID uint, start, end int64) ([]CapturedImage, error) {
	var images []CapturedImage
	err := ds.DB.
		Preload("Tags").
		Where("webcam_id = ? AND captured_at >= ? AND captured_at <= ?", webcamID, start, end).
		Order("captured_at").
		Find(&images).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get-images-in-range").
			Build()
	}
	return images, nil
}

// AddImageTag attaches a retention tag to an image; adding a tag that is
// already present is a no-op.
func (ds *DataStore) AddImageTag(imageID uint, tag TagName) error {
	err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ImageTag{ImageID: imageID, Tag: string(tag)}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "add-image-tag").
			Context("tag", string(tag)).
			Build()
	}
	return nil
}

// RemoveImageTag detaches a retention tag from an image; removing an absent
// tag is a no-op.
func (ds *DataStore) RemoveImageTag(imageID uint, tag TagName) error {
	err := ds.DB.Where("image_id = ? AND tag = ?", imageID, string(tag)).
		Delete(&ImageTag{}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "remove-image-tag").
			Context("tag", string(tag)).
			Build()
	}
	return nil
}
