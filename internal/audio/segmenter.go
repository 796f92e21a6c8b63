package audio

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Segmenter cuts an audio file into contiguous, non-overlapping slices in
// playback order. The ordering is load-bearing: the assembler accumulates
// time offsets in the order segments are returned.
type Segmenter struct {
	segmentLengthMs int
	vadEnabled      bool
	vadConfig       *VADConfig
	mergeGapMs      int

	// Overridable seams for tests; defaults hit ffmpeg and sherpa.
	duration func(path string) float64
	detect   func(path string, config *VADConfig) ([]SpeechInterval, error)
	export   func(src string, startMs, endMs int, dst string) error
}

// NewSegmenter creates a Segmenter. vadConfig may be nil when VAD is
// disabled in configuration.
func NewSegmenter(segmentLengthMs int, vadEnabled bool, vadConfig *VADConfig, mergeGapMs int) *Segmenter {
	if segmentLengthMs <= 0 {
		segmentLengthMs = 60000
	}
	if mergeGapMs <= 0 {
		mergeGapMs = 2000
	}
	return &Segmenter{
		segmentLengthMs: segmentLengthMs,
		vadEnabled:      vadEnabled,
		vadConfig:       vadConfig,
		mergeGapMs:      mergeGapMs,
		duration:        Duration,
		detect:          DetectSpeechIntervals,
		export:          exportSlice,
	}
}

// Segment splits the file according to its duration and, when requested and
// enabled, detected speech activity:
//
//   - under 60s the original file is the single segment;
//   - with VAD, one segment per merged speech interval;
//   - under 180s, two equal halves;
//   - otherwise fixed windows of the configured length.
//
// On any error every slice created during this attempt is removed before
// the error is returned.
func (s *Segmenter) Segment(path string, useVAD bool) ([]string, error) {
	durationMs := int(s.duration(path) * 1000)

	if durationMs < 60_000 {
		return []string{path}, nil
	}

	var created []string
	cleanup := func() {
		for _, p := range created {
			os.Remove(p)
		}
	}

	if useVAD && s.vadEnabled && s.vadConfig != nil {
		intervals, err := s.detect(path, s.vadConfig)
		if err != nil {
			// Probe failure is not fatal: treat the whole file as speech.
			log.Printf("VAD probe failed for %s, using full audio: %v", path, err)
			intervals = []SpeechInterval{{StartMs: 0, EndMs: durationMs}}
		}
		merged := MergeIntervals(intervals, s.mergeGapMs)

		var segments []string
		for i, iv := range merged {
			dst := sliceName(path, "vad", i)
			if err := s.export(path, iv.StartMs, iv.EndMs, dst); err != nil {
				cleanup()
				return nil, fmt.Errorf("failed to export VAD segment %d: %w", i, err)
			}
			created = append(created, dst)
			segments = append(segments, dst)
		}
		return segments, nil
	}

	var windows []SpeechInterval
	if durationMs < 180_000 {
		mid := durationMs / 2
		windows = []SpeechInterval{{0, mid}, {mid, durationMs}}
	} else {
		for start := 0; start < durationMs; start += s.segmentLengthMs {
			end := start + s.segmentLengthMs
			if end > durationMs {
				end = durationMs
			}
			windows = append(windows, SpeechInterval{start, end})
		}
	}

	var segments []string
	for i, w := range windows {
		dst := sliceName(path, "seg", i)
		if err := s.export(path, w.StartMs, w.EndMs, dst); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to export segment %d: %w", i, err)
		}
		created = append(created, dst)
		segments = append(segments, dst)
	}
	return segments, nil
}

func sliceName(path, kind string, index int) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s_%s%d.wav", base, kind, index))
}

// exportSlice writes one [startMs, endMs) slice of src as mono 16kHz WAV.
func exportSlice(src string, startMs, endMs int, dst string) error {
	cmd := exec.Command("ffmpeg",
		"-y",
		"-ss", fmt.Sprintf("%.3f", float64(startMs)/1000.0),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", float64(endMs-startMs)/1000.0),
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		"-loglevel", "error",
		dst,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
