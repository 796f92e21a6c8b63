package audio

import (
	"log"
	"os/exec"
	"path/filepath"
	"strings"
)

// Preprocess writes a loudness-normalized, mono 16kHz WAV copy of the
// input next to it and returns its path. On failure the original path is
// returned so transcription can proceed on the raw upload.
func Preprocess(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(filepath.Dir(path), base+"_processed.wav")

	cmd := exec.Command("ffmpeg",
		"-y", "-i", path,
		"-af", "loudnorm",
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		"-loglevel", "error",
		out,
	)
	if err := cmd.Run(); err != nil {
		log.Printf("Preprocessing failed for %s, using original: %v", path, err)
		return path
	}
	return out
}
