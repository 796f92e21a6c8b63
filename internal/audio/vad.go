package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SpeechInterval is one detected span of speech, in milliseconds from the
// start of the file.
type SpeechInterval struct {
	StartMs int
	EndMs   int
}

// VADConfig holds configuration for voice activity detection.
type VADConfig struct {
	ModelPath    string  // path to silero_vad.onnx
	Threshold    float32 // speech detection threshold (0-1)
	MinSpeechMs  int     // minimum speech duration to keep
	MinSilenceMs int     // minimum silence duration to split
	SampleRate   int
}

// DefaultVADConfig returns default VAD configuration.
func DefaultVADConfig(modelPath string) *VADConfig {
	return &VADConfig{
		ModelPath:    modelPath,
		Threshold:    0.5,
		MinSpeechMs:  250,
		MinSilenceMs: 500,
		SampleRate:   16000,
	}
}

// DetectSpeechIntervals runs Silero VAD over the file and returns the
// detected speech spans in chronological order. When nothing is detected
// the whole file is returned as a single interval, so a silent-looking
// recording still gets transcribed.
func DetectSpeechIntervals(path string, config *VADConfig) ([]SpeechInterval, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("VAD model not found: %s", config.ModelPath)
	}

	vadModelConfig := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              config.ModelPath,
			Threshold:          config.Threshold,
			MinSilenceDuration: float32(config.MinSilenceMs) / 1000.0,
			MinSpeechDuration:  float32(config.MinSpeechMs) / 1000.0,
			WindowSize:         512,
		},
		SampleRate: config.SampleRate,
		NumThreads: 1,
		Debug:      0,
	}

	vad := sherpa.NewVoiceActivityDetector(&vadModelConfig, 30)
	if vad == nil {
		return nil, fmt.Errorf("failed to create VAD")
	}
	defer sherpa.DeleteVoiceActivityDetector(vad)

	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", config.SampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	reader := bufio.NewReader(stdout)
	windowBytes := 512 * 2 // 16-bit samples

	var intervals []SpeechInterval
	var totalSamples int64

	drain := func() {
		for !vad.IsEmpty() {
			segment := vad.Front()
			vad.Pop()
			startMs := int(int64(segment.Start) * 1000 / int64(config.SampleRate))
			endMs := int((int64(segment.Start) + int64(len(segment.Samples))) * 1000 / int64(config.SampleRate))
			intervals = append(intervals, SpeechInterval{StartMs: startMs, EndMs: endMs})
		}
	}

	for {
		buffer := make([]byte, windowBytes)
		n, err := io.ReadFull(reader, buffer)
		if n == 0 {
			break
		}

		samples := bytesToFloat32(buffer[:n])
		vad.AcceptWaveform(samples)
		totalSamples += int64(len(samples))
		drain()

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
	}

	vad.Flush()
	drain()
	cmd.Wait()

	if len(intervals) == 0 {
		totalMs := int(totalSamples * 1000 / int64(config.SampleRate))
		return []SpeechInterval{{StartMs: 0, EndMs: totalMs}}, nil
	}
	return intervals, nil
}

// MergeIntervals merges adjacent intervals whose gap is smaller than gapMs,
// reducing fragmentation from short pauses. Input must be in chronological
// order; output stays chronological.
func MergeIntervals(intervals []SpeechInterval, gapMs int) []SpeechInterval {
	if len(intervals) == 0 {
		return nil
	}

	merged := []SpeechInterval{intervals[0]}
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.StartMs-last.EndMs < gapMs {
			if iv.EndMs > last.EndMs {
				last.EndMs = iv.EndMs
			}
		} else {
			merged = append(merged, iv)
		}
	}
	return merged
}

// bytesToFloat32 converts 16-bit PCM bytes to float32 samples.
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := 0; i < len(samples); i++ {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
