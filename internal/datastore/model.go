// model.go this code defines the data model for the application
package datastore

import "time"

// Webcam represents one configured webcam location. Created by configuration
// import, mutated on successful captures and status edits, never deleted
// during normal operation.
type Webcam struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"uniqueIndex;not null"` // stable identifier used in storage keys
	DisplayName     string
	NationalPark    string
	SnapshotURL     string
	Enabled         bool
	IntervalSeconds int
	Location        *string // "lat,lon"; nil disables solar scheduling
	Timezone        *string // IANA timezone name; nil disables solar scheduling
	LastActiveAt    *time.Time
	LastImageHash   string // perceptual hash of the last captured frame
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LocationString returns the location or "" when unset.
func (w *Webcam) LocationString() string {
	if w.Location == nil {
		return ""
	}
	return *w.Location
}

// TimezoneString returns the timezone name or "" when unset.
func (w *Webcam) TimezoneString() string {
	if w.Timezone == nil {
		return ""
	}
	return *w.Timezone
}

// AnimationJob is one queue entry. Created by the scheduler, mutated only by
// the queue state machine. ReferenceKey is deterministic from (webcam, type,
// local date[, hour]) and carries the uniqueness constraint that makes
// re-scheduling idempotent.
type AnimationJob struct {
	ID            uint   `gorm:"primaryKey"`
	ReferenceKey  string `gorm:"uniqueIndex;not null"`
	WebcamID      uint   `gorm:"index:idx_jobs_webcam"`
	Type          string `gorm:"not null"`
	Status        string `gorm:"index:idx_jobs_status_scheduled;not null"`
	ScheduledTime int64  `gorm:"index:idx_jobs_status_scheduled"` // Unix seconds the job becomes eligible
	DateKey       string // YYYY-MM-DD in the webcam's timezone
	StartTime     int64  // capture window start, Unix seconds
	EndTime       int64  // capture window end, Unix seconds
	// Ordered object keys selected for the animation; by value, the image
	// rows may be pruned later.
	Images       []string `gorm:"serializer:json"`
	StorageKey   string   // target key for the finished artifact
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// Animation job statuses. No transition skips a state except into failed,
// which is reachable from awaiting_images and ready.
const (
	StatusAwaitingImages = "awaiting_images"
	StatusReady          = "ready"
	StatusInProgress     = "in_progress"
	StatusDone           = "done"
	StatusFailed         = "failed"
)

// Animation job types.
const (
	JobTypeSunrise  = "sunrise"
	JobTypeSunset   = "sunset"
	JobTypeFullDay  = "full_day"
	JobTypeHourly   = "hourly"
	JobTypeOnDemand = "on_demand"
)

// TagName is a retention policy tag protecting an image from cleanup.
type TagName string

const (
	TagSunrise   TagName = "Sunrise"
	TagSolarNoon TagName = "SolarNoon"
	TagSunset    TagName = "Sunset"
)

// CapturedImage is one stored webcam frame. Created by the capture loop;
// tags are mutated only by the retention selector; rows are deleted by a
// separate cleanup process that must respect the tags.
type CapturedImage struct {
	ID         uint   `gorm:"primaryKey"`
	WebcamID   uint   `gorm:"index:idx_images_webcam_time;not null"`
	CapturedAt int64  `gorm:"index:idx_images_webcam_time;not null"` // Unix seconds
	ObjectName string `gorm:"uniqueIndex;not null"`
	Tags       []ImageTag `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
}

// HasTag reports whether the image carries the given retention tag.
func (ci *CapturedImage) HasTag(tag TagName) bool {
	for i := range ci.Tags {
		if ci.Tags[i].Tag == string(tag) {
			return true
		}
	}
	return false
}

// ImageTag is one retention tag on a captured image.
// GORM will automatically create table name as 'image_tags'
type ImageTag struct {
	ID      uint   `gorm:"primaryKey"`
	ImageID uint   `gorm:"uniqueIndex:idx_image_tag;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:ImageID;references:ID"`
	Tag     string `gorm:"uniqueIndex:idx_image_tag;not null"`
}
