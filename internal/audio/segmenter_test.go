package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestMergeIntervals(t *testing.T) {
	tests := []struct {
		name     string
		input    []SpeechInterval
		gapMs    int
		expected []SpeechInterval
	}{
		{
			name:     "empty",
			input:    nil,
			gapMs:    2000,
			expected: nil,
		},
		{
			name:     "single interval unchanged",
			input:    []SpeechInterval{{0, 5000}},
			gapMs:    2000,
			expected: []SpeechInterval{{0, 5000}},
		},
		{
			name:     "close intervals merge",
			input:    []SpeechInterval{{0, 5000}, {6000, 10000}},
			gapMs:    2000,
			expected: []SpeechInterval{{0, 10000}},
		},
		{
			name:     "gap equal to threshold does not merge",
			input:    []SpeechInterval{{0, 5000}, {7000, 10000}},
			gapMs:    2000,
			expected: []SpeechInterval{{0, 5000}, {7000, 10000}},
		},
		{
			name:     "gap just under threshold merges",
			input:    []SpeechInterval{{0, 5000}, {6999, 10000}},
			gapMs:    2000,
			expected: []SpeechInterval{{0, 10000}},
		},
		{
			name:     "chain of merges",
			input:    []SpeechInterval{{0, 1000}, {1500, 3000}, {3500, 6000}, {10000, 12000}},
			gapMs:    2000,
			expected: []SpeechInterval{{0, 6000}, {10000, 12000}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeIntervals(tt.input, tt.gapMs)
			if len(got) != len(tt.expected) {
				t.Fatalf("Got %d intervals, want %d: %v", len(got), len(tt.expected), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Interval %d = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

// fakeSegmenter wires the Segmenter's seams to in-memory stubs so the
// splitting policy can be tested without ffmpeg or a VAD model.
func fakeSegmenter(t *testing.T, durationSec float64) (*Segmenter, *[]SpeechInterval) {
	t.Helper()
	var exported []SpeechInterval
	s := NewSegmenter(60000, true, DefaultVADConfig("unused.onnx"), 2000)
	s.duration = func(string) float64 { return durationSec }
	s.detect = func(string, *VADConfig) ([]SpeechInterval, error) {
		t.Fatal("Detect should not be called")
		return nil, nil
	}
	s.export = func(src string, startMs, endMs int, dst string) error {
		exported = append(exported, SpeechInterval{startMs, endMs})
		return os.WriteFile(dst, []byte("wav"), 0644)
	}
	return s, &exported
}

func TestSegmentShortFileUntouched(t *testing.T) {
	s, exported := fakeSegmenter(t, 45.0)

	segments, err := s.Segment("/tmp/short.wav", false)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(segments) != 1 || segments[0] != "/tmp/short.wav" {
		t.Errorf("Segments = %v, want the original file only", segments)
	}
	if len(*exported) != 0 {
		t.Errorf("Short file should not be exported, got %v", *exported)
	}
}

func TestSegmentMediumFileTwoHalves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "medium.wav")

	s, exported := fakeSegmenter(t, 120.0)
	segments, err := s.Segment(path, false)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("Got %d segments, want 2", len(segments))
	}
	want := []SpeechInterval{{0, 60000}, {60000, 120000}}
	for i, iv := range *exported {
		if iv != want[i] {
			t.Errorf("Slice %d = %v, want %v", i, iv, want[i])
		}
	}
}

func TestSegmentLongFileFixedWindows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "long.wav")

	s, exported := fakeSegmenter(t, 250.0)
	segments, err := s.Segment(path, false)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	// 250s at 60s windows: 0-60, 60-120, 120-180, 180-240, 240-250.
	if len(segments) != 5 {
		t.Fatalf("Got %d segments, want 5", len(segments))
	}
	last := (*exported)[len(*exported)-1]
	if last.StartMs != 240000 || last.EndMs != 250000 {
		t.Errorf("Last window = %v, want truncated {240000 250000}", last)
	}
	covered := 0
	for _, iv := range *exported {
		covered += iv.EndMs - iv.StartMs
	}
	if covered != 250000 {
		t.Errorf("Windows cover %dms, want 250000", covered)
	}
}

func TestSegmentVADIntervals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "call.wav")

	s, exported := fakeSegmenter(t, 90.0)
	s.detect = func(string, *VADConfig) ([]SpeechInterval, error) {
		// Two close bursts that must merge, one distant.
		return []SpeechInterval{{0, 10000}, {11000, 30000}, {50000, 80000}}, nil
	}

	segments, err := s.Segment(path, true)
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("Got %d segments, want 2 merged intervals", len(segments))
	}
	want := []SpeechInterval{{0, 30000}, {50000, 80000}}
	for i, iv := range *exported {
		if iv != want[i] {
			t.Errorf("Slice %d = %v, want %v", i, iv, want[i])
		}
	}
	if filepath.Base(segments[0]) != "call_vad0.wav" {
		t.Errorf("Segment name = %s, want call_vad0.wav", filepath.Base(segments[0]))
	}
}

func TestSegmentVADProbeFailureFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noisy.wav")

	s, exported := fakeSegmenter(t, 90.0)
	s.detect = func(string, *VADConfig) ([]SpeechInterval, error) {
		return nil, fmt.Errorf("model not loaded")
	}

	segments, err := s.Segment(path, true)
	if err != nil {
		t.Fatalf("Segment should fall back, got: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("Got %d segments, want 1 whole-file fallback", len(segments))
	}
	if iv := (*exported)[0]; iv.StartMs != 0 || iv.EndMs != 90000 {
		t.Errorf("Fallback slice = %v, want the whole file", iv)
	}
}

func TestSegmentCleansUpOnExportError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.wav")

	s, _ := fakeSegmenter(t, 250.0)
	calls := 0
	s.export = func(src string, startMs, endMs int, dst string) error {
		calls++
		if calls == 3 {
			return fmt.Errorf("disk full")
		}
		return os.WriteFile(dst, []byte("wav"), 0644)
	}

	_, err := s.Segment(path, false)
	if err == nil {
		t.Fatal("Segment should fail when an export fails")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Partial exports should be removed, %d files remain", len(entries))
	}
}

func TestSliceName(t *testing.T) {
	got := sliceName("/data/uploads/abc123.mp3", "seg", 2)
	want := filepath.Join("/data/uploads", "abc123_seg2.wav")
	if got != want {
		t.Errorf("sliceName = %s, want %s", got, want)
	}
}
