package datastore

import (
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
)

// ImportFromConfig syncs the configured webcam definitions into the store.
// Rows are matched by name; static fields are refreshed, capture state is
// preserved, and webcams removed from the config are disabled rather than
// deleted so their images and jobs stay addressable.
func ImportFromConfig(ds Interface, definitions []conf.WebcamDefinition) error {
	log := logging.ForService("datastore")

	configured := make(map[string]bool, len(definitions))
	for i := range definitions {
		def := &definitions[i]
		configured[def.Name] = true

		webcam := &Webcam{
			Name:            def.Name,
			DisplayName:     def.DisplayName,
			NationalPark:    def.NationalPark,
			SnapshotURL:     def.SnapshotURL,
			Enabled:         def.Enabled,
			IntervalSeconds: def.IntervalSeconds,
		}
		if def.Location != "" {
			location := def.Location
			webcam.Location = &location
		}
		if def.Timezone != "" {
			timezone := def.Timezone
			webcam.Timezone = &timezone
		}

		if err := ds.ImportWebcam(webcam); err != nil {
			return err
		}
	}

	existing, err := ds.GetAllWebcams()
	if err != nil {
		return err
	}
	for i := range existing {
		webcam := &existing[i]
		if configured[webcam.Name] || !webcam.Enabled {
			continue
		}
		webcam.Enabled = false
		if err := ds.SaveWebcam(webcam); err != nil {
			return err
		}
		log.Info("Disabled webcam no longer in configuration", "webcam", webcam.Name)
	}

	log.Info("Webcam configuration imported", "webcams", len(definitions))
	return nil
}
