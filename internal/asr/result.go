package asr

// Utterance is one timestamped unit of recognized speech text, in seconds
// local to the transcribed file.
type Utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SegmentResult is the transcription of one audio segment.
type SegmentResult struct {
	Text       string      `json:"text"`
	Utterances []Utterance `json:"utterances"`
	Language   string      `json:"language"`
}
