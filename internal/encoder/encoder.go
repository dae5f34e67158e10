// Package encoder renders the selected frames of an animation job into an
// animated GIF using ffmpeg.
package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/abvaden/nps-webcam-animation-generator/internal/datastore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/errors"
	"github.com/abvaden/nps-webcam-animation-generator/internal/imagestore"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
)

// Encoder turns a ready animation job into a stored artifact.
type Encoder interface {
	Encode(ctx context.Context, job *datastore.AnimationJob) error
}

// FFmpegEncoder shells out to ffmpeg with the concat demuxer and a
// palette-based GIF filter chain.
type FFmpegEncoder struct {
	store      imagestore.Store
	ffmpegPath string
	frameRate  int
	workDir    string
	log        *slog.Logger
}

// NewFFmpegEncoder creates an encoder. An empty ffmpegPath falls back to
// "ffmpeg" on PATH; an empty workDir falls back to the system temp directory.
func NewFFmpegEncoder(store imagestore.Store, ffmpegPath string, frameRate int, workDir string) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if frameRate <= 0 {
		frameRate = 10
	}
	return &FFmpegEncoder{
		store:      store,
		ffmpegPath: ffmpegPath,
		frameRate:  frameRate,
		workDir:    workDir,
		log:        logging.ForService("encoder"),
	}
}

// Encode renders job.Images into a GIF and saves it under job.StorageKey.
func (e *FFmpegEncoder) Encode(ctx context.Context, job *datastore.AnimationJob) error {
	if len(job.Images) == 0 {
		return errors.Newf("job %s has no frames to encode", job.ReferenceKey).
			Component("encoder").
			Category(errors.CategoryValidation).
			Build()
	}

	workDir, err := os.MkdirTemp(e.workDir, "animation-*")
	if err != nil {
		return errors.New(err).
			Component("encoder").
			Category(errors.CategorySystem).
			Build()
	}
	defer os.RemoveAll(workDir)

	listPath := filepath.Join(workDir, "frames.txt")
	manifest, err := e.frameManifest(job.Images)
	if err != nil {
		return err
	}
	if err := os.WriteFile(listPath, []byte(manifest), 0o644); err != nil {
		return errors.New(err).
			Component("encoder").
			Category(errors.CategorySystem).
			Build()
	}

	outputPath := filepath.Join(workDir, "out.gif")
	args := encodeArgs(listPath, outputPath, e.frameRate)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Debug("Encoding animation",
		"job", job.ReferenceKey, "frames", len(job.Images), "output", job.StorageKey)

	if err := cmd.Run(); err != nil {
		return errors.Newf("ffmpeg failed: %v: %s", err, lastLine(stderr.String())).
			Component("encoder").
			Category(errors.CategoryEncoder).
			Context("job", job.ReferenceKey).
			Build()
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return errors.New(err).
			Component("encoder").
			Category(errors.CategoryEncoder).
			Context("job", job.ReferenceKey).
			Build()
	}

	if err := e.store.Save(job.StorageKey, data); err != nil {
		return err
	}

	e.log.Info("Animation encoded",
		"job", job.ReferenceKey, "frames", len(job.Images), "bytes", len(data))
	return nil
}

// frameManifest writes a concat demuxer file: one "file '<path>'" line per
// frame, in the job's frame order. Every frame must exist in the store.
func (e *FFmpegEncoder) frameManifest(keys []string) (string, error) {
	var b strings.Builder
	for _, key := range keys {
		if !e.store.Exists(key) {
			return "", errors.Newf("frame %q missing from image store", key).
				Component("encoder").
				Category(errors.CategoryNotFound).
				Build()
		}
		path, err := e.store.LocalPath(key)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "file '%s'\nduration %.3f\n", path, 1.0/float64(e.frameRate))
	}
	return b.String(), nil
}

// encodeArgs builds the ffmpeg invocation: concat input, palette-based GIF
// filter chain, overwrite output.
func encodeArgs(listPath, outputPath string, frameRate int) []string {
	filter := fmt.Sprintf(
		"fps=%d,scale=640:-1:flags=lanczos,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse",
		frameRate)
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vf", filter,
		"-loop", "0",
		"-y",
		outputPath,
	}
}

// lastLine extracts the final non-empty stderr line, where ffmpeg puts the
// actual failure reason.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
