package asr

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the configuration for the Whisper speech engine.
type Config struct {
	ModelDir   string
	Language   string // forced language (fr, en, ...), empty for auto-detect
	NumThreads int
	SampleRate int
}

// DefaultConfig returns the default Whisper configuration.
func DefaultConfig(modelDir string) *Config {
	return &Config{
		ModelDir:   modelDir,
		Language:   "",
		NumThreads: 4,
		SampleRate: 16000,
	}
}

// modelFiles locates the encoder, decoder and tokens files inside the
// model directory, preferring int8 quantized variants.
func (c *Config) modelFiles() (encoder, decoder, tokens string, err error) {
	encoderCandidates := []string{
		"encoder.int8.onnx",
		"encoder.onnx",
		"small-encoder.int8.onnx",
		"small-encoder.onnx",
		"medium-encoder.int8.onnx",
		"medium-encoder.onnx",
		"large-v3-encoder.int8.onnx",
		"large-v3-encoder.onnx",
	}
	decoderCandidates := []string{
		"decoder.int8.onnx",
		"decoder.onnx",
		"small-decoder.int8.onnx",
		"small-decoder.onnx",
		"medium-decoder.int8.onnx",
		"medium-decoder.onnx",
		"large-v3-decoder.int8.onnx",
		"large-v3-decoder.onnx",
	}
	tokensCandidates := []string{
		"tokens.txt",
		"small-tokens.txt",
		"medium-tokens.txt",
		"large-v3-tokens.txt",
	}

	encoder = findModelFile(c.ModelDir, encoderCandidates)
	decoder = findModelFile(c.ModelDir, decoderCandidates)
	tokens = findModelFile(c.ModelDir, tokensCandidates)

	if encoder == "" {
		return "", "", "", fmt.Errorf("encoder model not found in %s", c.ModelDir)
	}
	if decoder == "" {
		return "", "", "", fmt.Errorf("decoder model not found in %s", c.ModelDir)
	}
	if tokens == "" {
		return "", "", "", fmt.Errorf("tokens file not found in %s", c.ModelDir)
	}
	return encoder, decoder, tokens, nil
}

// findModelFile returns the first candidate that exists in dir.
func findModelFile(dir string, candidates []string) string {
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
