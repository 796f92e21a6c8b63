package asr

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// Tasks the Whisper model supports.
const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// whisperChunkSec is the window Whisper decodes natively.
const whisperChunkSec = 30

// Engine wraps the Whisper model loaded through sherpa-onnx. It is
// constructed once at process start and shared read-only by all concurrent
// transcription calls; the task-specific recognizers are created lazily
// because the Whisper task is fixed at recognizer construction.
type Engine struct {
	config *Config

	mu          sync.Mutex
	recognizers map[string]*sherpa.OfflineRecognizer
}

// NewEngine validates the model directory and prepares the engine. The
// transcribe recognizer is loaded eagerly so startup fails fast on a
// missing model.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	e := &Engine{
		config:      config,
		recognizers: make(map[string]*sherpa.OfflineRecognizer),
	}
	if _, err := e.recognizer(TaskTranscribe); err != nil {
		return nil, err
	}
	return e, nil
}

// Close releases the loaded recognizers.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for task, r := range e.recognizers {
		sherpa.DeleteOfflineRecognizer(r)
		delete(e.recognizers, task)
	}
}

func (e *Engine) recognizer(task string) (*sherpa.OfflineRecognizer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.recognizers[task]; ok {
		return r, nil
	}

	encoder, decoder, tokens, err := e.config.modelFiles()
	if err != nil {
		return nil, err
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: e.config.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder:  encoder,
				Decoder:  decoder,
				Language: e.config.Language,
				Task:     task,
			},
			Tokens:     tokens,
			NumThreads: e.config.NumThreads,
			Debug:      0,
		},
	}

	r := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if r == nil {
		return nil, fmt.Errorf("failed to create Whisper recognizer for task %s", task)
	}
	e.recognizers[task] = r
	return r, nil
}

// TranscribeSegment transcribes one audio segment. The file is decoded to
// raw PCM, cut into 30-second chunks, and each chunk becomes one utterance
// with timestamps derived from its position in the segment. Calls are
// independent and safe to run concurrently.
func (e *Engine) TranscribeSegment(path string, translate bool) (*SegmentResult, error) {
	task := TaskTranscribe
	if translate {
		task = TaskTranslate
	}
	recognizer, err := e.recognizer(task)
	if err != nil {
		return nil, err
	}

	samples, err := decodePCM(path, e.config.SampleRate)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return &SegmentResult{Language: e.config.Language}, nil
	}

	chunkSamples := e.config.SampleRate * whisperChunkSec

	var texts []string
	var utterances []Utterance
	language := ""

	for offset := 0; offset < len(samples); offset += chunkSamples {
		end := offset + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}

		stream := sherpa.NewOfflineStream(recognizer)
		stream.AcceptWaveform(e.config.SampleRate, samples[offset:end])
		recognizer.Decode(stream)
		result := stream.GetResult()

		if result != nil {
			text := strings.TrimSpace(result.Text)
			if text != "" {
				start := float64(offset) / float64(e.config.SampleRate)
				stop := float64(end) / float64(e.config.SampleRate)
				texts = append(texts, text)
				utterances = append(utterances, Utterance{
					Start: round2(start),
					End:   round2(stop),
					Text:  text,
				})
			}
			if language == "" {
				language = normalizeLang(result.Lang)
			}
		}
		sherpa.DeleteOfflineStream(stream)
	}

	if language == "" {
		language = e.config.Language
	}

	return &SegmentResult{
		Text:       strings.TrimSpace(strings.Join(texts, " ")),
		Utterances: utterances,
		Language:   language,
	}, nil
}

// decodePCM converts the file to mono s16le at the given rate through
// ffmpeg and returns float32 samples.
func decodePCM(path string, sampleRate int) ([]float32, error) {
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
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	reader := bufio.NewReader(stdout)
	var samples []float32
	buffer := make([]byte, 4096)
	for {
		n, err := io.ReadFull(reader, buffer)
		if n > 0 {
			samples = append(samples, bytesToFloat32(buffer[:n])...)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("failed to read audio: %w", err)
		}
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return samples, nil
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

// normalizeLang strips Whisper's language-tag markers ("<|fr|>" -> "fr").
func normalizeLang(lang string) string {
	lang = strings.TrimSpace(lang)
	lang = strings.TrimPrefix(lang, "<|")
	lang = strings.TrimSuffix(lang, "|>")
	return lang
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
