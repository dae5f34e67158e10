// validate.go settings validation
package conf

import (
	"time"

	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
)

// ValidateSettings checks the loaded settings for configurations that cannot
// work, returning a configuration error describing the first problem found.
func ValidateSettings(settings *Settings) error {
	if !settings.Database.SQLite.Enabled && !settings.Database.MySQL.Enabled {
		return errors.Newf("no database backend enabled, enable sqlite or mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Database.SQLite.Enabled && settings.Database.MySQL.Enabled {
		return errors.Newf("both sqlite and mysql enabled, choose one").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Capture.Enabled {
		if settings.Capture.IntervalSeconds <= 0 {
			return errors.Newf("capture interval must be positive, got %d", settings.Capture.IntervalSeconds).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		if settings.Capture.Concurrency <= 0 {
			return errors.Newf("capture concurrency must be positive, got %d", settings.Capture.Concurrency).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	if settings.Animation.Enabled && settings.Animation.FrameRate <= 0 {
		return errors.Newf("animation frame rate must be positive, got %d", settings.Animation.FrameRate).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	for i := range settings.Webcams {
		if err := validateWebcam(&settings.Webcams[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateWebcam(w *WebcamDefinition) error {
	if w.Name == "" {
		return errors.Newf("webcam with empty name in configuration").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	// Location and timezone are optional, but must parse when present
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return errors.Newf("webcam %s has invalid timezone %q", w.Name, w.Timezone).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	return nil
}
