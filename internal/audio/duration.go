package audio

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Duration returns the play length of an audio file in seconds, rounded to
// two decimals. It probes the container metadata first and decodes the full
// stream when the probe fails. A total failure returns 0.0 and is logged;
// callers never see an error. This value is the authoritative duration for
// a job and must not be recomputed from segment output.
func Duration(path string) float64 {
	d, err := probeDuration(path)
	if err == nil && d > 0 {
		return round2(d)
	}
	if err != nil {
		log.Printf("Duration probe failed for %s: %v", path, err)
	}

	d, err = decodeDuration(path, 16000)
	if err != nil {
		log.Printf("Duration decode failed for %s: %v", path, err)
		return 0.0
	}
	return round2(d)
}

// probeDuration reads the duration from format metadata via ffprobe.
func probeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable ffprobe output %q: %w", string(output), err)
	}
	return d, nil
}

// decodeDuration decodes the whole file to raw PCM and derives the length
// from the sample count.
func decodeDuration(path string, sampleRate int) (float64, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	n, err := io.Copy(io.Discard, bufio.NewReader(stdout))
	if err != nil {
		cmd.Wait()
		return 0, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return 0, fmt.Errorf("ffmpeg: %w", err)
	}

	samples := n / 2 // 16-bit mono
	return float64(samples) / float64(sampleRate), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
