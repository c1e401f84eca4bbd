package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpegTranscoder mixes a recording down to the m4a/aac format the ASR
// providers accept. Implements pipeline.Transcoder.
type FFmpegTranscoder struct {
	ffmpegPath string
	workDir    string
}

// NewFFmpegTranscoder creates a transcoder invoking ffmpegPath, writing
// artifacts under workDir.
func NewFFmpegTranscoder(ffmpegPath, workDir string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, workDir: workDir}
}

// Check verifies the ffmpeg binary is reachable. Call once at startup.
func (t *FFmpegTranscoder) Check() error {
	_, err := exec.LookPath(t.ffmpegPath)
	return err
}

// Transcode converts inputPath to a mono 16kHz AAC mixdown and returns
// the output path. Already-transcoded input is converted again rather
// than special-cased; ffmpeg remuxes it cheaply.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath string) (string, error) {
	dir := t.workDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(dir, base+"_mixed.m4a")

	// ffmpeg -y -i input -ac 1 -ar 16000 -c:a aac output.m4a
	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y", "-i", inputPath,
		"-ac", "1", "-ar", "16000",
		"-c:a", "aac",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return out, nil
}

// lastLine extracts the final non-empty stderr line, which is where
// ffmpeg puts its actual error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
