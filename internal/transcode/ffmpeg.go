// Package transcode converts captured audio chunks into the canonical
// form the transcription service accepts, by shelling out to ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

// FFmpeg converts an on-disk audio chunk (webm from the browser, wav from
// the telephony ingress) to 16 kHz mono PCM wav. ffmpeg probes the input
// container by content, so the source extension does not matter.
type FFmpeg struct {
	binary string
}

func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

func (f *FFmpeg) Convert(ctx context.Context, src string) ([]byte, error) {
	dst := src + ".wav"
	defer func() {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			log.Warn("converted file not removed", "path", dst, "error", err)
		}
	}()

	cmd := exec.CommandContext(ctx, f.binary, convertArgs(src, dst)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if detail := lastLine(stderr.String()); detail != "" {
			return nil, fmt.Errorf("ffmpeg: %v: %s", err, detail)
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	wav, err := os.ReadFile(dst)
	if err != nil {
		return nil, fmt.Errorf("read converted audio: %w", err)
	}
	return wav, nil
}

func convertArgs(src, dst string) []string {
	return []string{"-y", "-i", src, "-ac", "1", "-ar", "16000", dst}
}

// lastLine extracts the final non-empty line of ffmpeg's stderr, which is
// where it reports the actual failure after pages of banner output.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
