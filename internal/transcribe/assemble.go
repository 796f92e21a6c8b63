package transcribe

import (
	"math"
	"strings"

	"vocalyx/internal/asr"
	"vocalyx/internal/models"
)

// Assembly is the merged result of all segment transcriptions for one job.
type Assembly struct {
	Text       string
	Utterances []models.Utterance
	Language   string
}

// Assemble merges per-segment results, in the order the segments were
// produced, into one ordered list of timestamped utterances and one
// concatenated text.
//
// Timestamps are corrected by a running offset: after absorbing a segment
// the offset becomes the end of the last utterance emitted for it, not the
// nominal segment boundary, so engine-side trimming of silence inside a
// segment does not open a gap before the next segment's utterances. The
// resulting start times are monotonically non-decreasing.
func Assemble(results []*asr.SegmentResult) *Assembly {
	var texts []string
	var utterances []models.Utterance
	language := ""
	timeOffset := 0.0

	for _, result := range results {
		if result == nil {
			continue
		}
		for _, u := range result.Utterances {
			utterances = append(utterances, models.Utterance{
				Start: round2(u.Start + timeOffset),
				End:   round2(u.End + timeOffset),
				Text:  strings.TrimSpace(u.Text),
			})
		}
		if len(result.Utterances) > 0 {
			timeOffset = utterances[len(utterances)-1].End
		}
		if result.Text != "" {
			texts = append(texts, result.Text)
		}
		if language == "" && result.Language != "" {
			language = result.Language
		}
	}

	return &Assembly{
		Text:       strings.TrimSpace(strings.Join(texts, " ")),
		Utterances: utterances,
		Language:   language,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
