package encoder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/imagestore"
)

func newTestEncoder(t *testing.T) (*FFmpegEncoder, *imagestore.DiskStore) {
	t.Helper()
	store, err := imagestore.NewDiskStore(t.TempDir(), "")
	require.NoError(t, err)
	return NewFFmpegEncoder(store, "", 10, t.TempDir()), store
}

func TestEncodeRejectsEmptyJob(t *testing.T) {
	enc, _ := newTestEncoder(t)

	job := &datastore.AnimationJob{ReferenceKey: "1_hourly_20250924_07"}
	err := enc.Encode(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestEncodeRejectsMissingFrame(t *testing.T) {
	enc, store := newTestEncoder(t)

	require.NoError(t, store.Save("images/a/1.jpg", []byte("x")))
	job := &datastore.AnimationJob{
		ReferenceKey: "1_hourly_20250924_07",
		Images:       []string{"images/a/1.jpg", "images/a/2.jpg"},
		StorageKey:   "gifs/a/hourly/20250924_07.gif",
	}

	err := enc.Encode(context.Background(), job)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "images/a/2.jpg")
}

func TestFrameManifestOrderAndTiming(t *testing.T) {
	enc, store := newTestEncoder(t)

	keys := []string{"images/a/3.jpg", "images/a/1.jpg", "images/a/2.jpg"}
	for _, key := range keys {
		require.NoError(t, store.Save(key, []byte("x")))
	}

	manifest, err := enc.frameManifest(keys)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(manifest), "\n")
	require.Len(t, lines, 6, "one file line and one duration line per frame")

	// Frames appear in the order given, not sorted.
	assert.Contains(t, lines[0], "3.jpg")
	assert.Contains(t, lines[2], "1.jpg")
	assert.Contains(t, lines[4], "2.jpg")
	assert.Equal(t, "duration 0.100", lines[1])
}

func TestEncodeArgs(t *testing.T) {
	args := encodeArgs("/tmp/frames.txt", "/tmp/out.gif", 10)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f concat")
	assert.Contains(t, joined, "-i /tmp/frames.txt")
	assert.Contains(t, joined, "fps=10")
	assert.Contains(t, joined, "palettegen")
	assert.Equal(t, "/tmp/out.gif", args[len(args)-1])
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "no such file", lastLine("warning\nno such file\n"))
	assert.Equal(t, "", lastLine(""))
}
