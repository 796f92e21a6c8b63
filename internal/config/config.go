package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime settings. Values come from the environment
// (a .env file is loaded by main) with defaults suitable for local use.
type Config struct {
	Port         string
	UploadDir    string
	DatabasePath string

	// Upload limits
	MaxFileSizeMB     int
	AllowedExtensions map[string]bool

	// Whisper model
	ModelDir   string
	Language   string // forced language, empty = auto-detect
	NumThreads int
	SampleRate int

	// Transcription pipeline
	MaxWorkers      int
	SegmentLengthMs int
	PartialResults  bool

	// VAD
	VADEnabled           bool
	VADModelPath         string
	VADThreshold         float64
	VADMinSpeechMs       int
	VADMinSilenceMs      int
	VADMergeGapMs        int
	SilenceThresholdDb   int

	// Enrichment
	EnrichEnabled      bool
	EnrichEndpoint     string
	EnrichModel        string
	EnrichPollInterval int // seconds
	EnrichBatchSize    int
	EnrichMinChars     int
	EnrichMaxChars     int
	EnrichMaxTokens    int
	EnrichTemperature  float64
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:         env("PORT", "8080"),
		UploadDir:    env("UPLOAD_DIR", "./tmp_uploads"),
		DatabasePath: env("DATABASE_PATH", "./data/vocalyx.db"),

		MaxFileSizeMB:     envInt("MAX_FILE_SIZE_MB", 100),
		AllowedExtensions: extensionSet(env("ALLOWED_EXTENSIONS", "wav,mp3,m4a,flac,ogg,webm")),

		ModelDir:   env("WHISPER_MODEL_DIR", "models/sherpa-onnx-whisper-small"),
		Language:   env("WHISPER_LANGUAGE", "fr"),
		NumThreads: envInt("WHISPER_NUM_THREADS", 4),
		SampleRate: envInt("WHISPER_SAMPLE_RATE", 16000),

		MaxWorkers:      envInt("TRANSCRIBE_MAX_WORKERS", 2),
		SegmentLengthMs: envInt("SEGMENT_LENGTH_MS", 60000),
		PartialResults:  envBool("TRANSCRIBE_PARTIAL_RESULTS", false),

		VADEnabled:         envBool("VAD_ENABLED", true),
		VADModelPath:       env("VAD_MODEL_PATH", "models/silero_vad.onnx"),
		VADThreshold:       envFloat("VAD_THRESHOLD", 0.5),
		VADMinSpeechMs:     envInt("VAD_MIN_SPEECH_MS", 250),
		VADMinSilenceMs:    envInt("VAD_MIN_SILENCE_MS", 500),
		VADMergeGapMs:      envInt("VAD_MERGE_GAP_MS", 2000),
		SilenceThresholdDb: envInt("VAD_SILENCE_THRESH_DB", -40),

		EnrichEnabled:      envBool("ENRICH_ENABLED", true),
		EnrichEndpoint:     env("ENRICH_ENDPOINT", "http://127.0.0.1:8081/completion"),
		EnrichModel:        env("ENRICH_MODEL", "mistral-7b-instruct-v0.3"),
		EnrichPollInterval: envInt("ENRICH_POLL_INTERVAL", 10),
		EnrichBatchSize:    envInt("ENRICH_BATCH_SIZE", 3),
		EnrichMinChars:     envInt("ENRICH_MIN_CHARS", 100),
		EnrichMaxChars:     envInt("ENRICH_MAX_CHARS", 15000),
		EnrichMaxTokens:    envInt("ENRICH_MAX_TOKENS", 1024),
		EnrichTemperature:  envFloat("ENRICH_TEMPERATURE", 0.3),
	}
}

// AllowedExtension reports whether the filename extension may be uploaded.
func (c *Config) AllowedExtension(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(pathExt(name)), ".")
	return c.AllowedExtensions[ext]
}

func pathExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

func extensionSet(csv string) map[string]bool {
	set := make(map[string]bool)
	for _, ext := range strings.Split(csv, ",") {
		ext = strings.TrimSpace(strings.ToLower(ext))
		if ext != "" {
			set[ext] = true
		}
	}
	return set
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
