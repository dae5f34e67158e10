package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
)

func TestImportFromConfig(t *testing.T) {
	store := newTestStore(t)

	definitions := []conf.WebcamDefinition{
		{
			Name:            "alpine-visitor-center",
			DisplayName:     "Alpine Visitor Center",
			NationalPark:    "rocky-mountain",
			SnapshotURL:     "http://example.com/alpine.jpg",
			Location:        "39.740,-104.975",
			Timezone:        "America/Denver",
			Enabled:         true,
			IntervalSeconds: 300,
		},
		{
			Name:         "old-faithful",
			NationalPark: "yellowstone",
			Enabled:      true,
		},
	}
	require.NoError(t, ImportFromConfig(store, definitions))

	webcams, err := store.GetAllWebcams()
	require.NoError(t, err)
	require.Len(t, webcams, 2)

	alpine, err := store.GetWebcamByName("alpine-visitor-center")
	require.NoError(t, err)
	assert.Equal(t, "39.740,-104.975", alpine.LocationString())
	assert.Nil(t, webcamByName(webcams, "old-faithful").Location)
}

func webcamByName(webcams []Webcam, name string) *Webcam {
	for i := range webcams {
		if webcams[i].Name == name {
			return &webcams[i]
		}
	}
	return nil
}

func TestImportFromConfigPreservesCaptureState(t *testing.T) {
	store := newTestStore(t)

	definitions := []conf.WebcamDefinition{{
		Name: "alpine-visitor-center", NationalPark: "rocky-mountain", Enabled: true,
	}}
	require.NoError(t, ImportFromConfig(store, definitions))

	webcam, err := store.GetWebcamByName("alpine-visitor-center")
	require.NoError(t, err)
	at := time.Date(2025, 9, 24, 14, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateWebcamCapture(webcam.ID, "p:c0ffee", at))

	// Re-import with a changed snapshot URL.
	definitions[0].SnapshotURL = "http://example.com/new.jpg"
	require.NoError(t, ImportFromConfig(store, definitions))

	updated, err := store.GetWebcamByName("alpine-visitor-center")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/new.jpg", updated.SnapshotURL)
	assert.Equal(t, "p:c0ffee", updated.LastImageHash)
	require.NotNil(t, updated.LastActiveAt)
}

func TestImportFromConfigDisablesRemoved(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, ImportFromConfig(store, []conf.WebcamDefinition{
		{Name: "alpine-visitor-center", Enabled: true},
		{Name: "old-faithful", Enabled: true},
	}))

	// Second import drops one webcam from the config.
	require.NoError(t, ImportFromConfig(store, []conf.WebcamDefinition{
		{Name: "alpine-visitor-center", Enabled: true},
	}))

	removed, err := store.GetWebcamByName("old-faithful")
	require.NoError(t, err)
	assert.False(t, removed.Enabled, "removed webcam is disabled, not deleted")

	kept, err := store.GetWebcamByName("alpine-visitor-center")
	require.NoError(t, err)
	assert.True(t, kept.Enabled)
}
