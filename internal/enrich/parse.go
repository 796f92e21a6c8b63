package enrich

import (
	"encoding/json"
	"regexp"
	"strings"

	"vocalyx/internal/models"
)

// TruncateText shortens text to at most maxLength characters, snapping the
// cut to a whitespace boundary so no word is split. The cut counts runes,
// not bytes, so accented text is never split mid-character.
func TruncateText(text string, maxLength int) string {
	if maxLength <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	truncated := string(runes[:maxLength])
	if i := strings.LastIndex(truncated, " "); i > 0 {
		truncated = truncated[:i]
	}
	return truncated + "..."
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	markerPattern     = regexp.MustCompile(`\[INST\]|\[/INST\]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	jsonPattern       = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
	bulletPattern     = regexp.MustCompile(`^\s*(?:[-•*]|\d+[.)])\s*(.+)$`)
)

// cleanGeneratedText strips prompt markers, stray tags, wrapping quotes and
// redundant whitespace from engine output.
func cleanGeneratedText(text string) string {
	if text == "" {
		return ""
	}
	text = tagPattern.ReplaceAllString(text, "")
	text = markerPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	if len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'' {
		text = text[1 : len(text)-1]
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractJSON finds the first parseable JSON object in generated text.
func extractJSON(text string) map[string]any {
	for _, match := range jsonPattern.FindAllString(text, -1) {
		var data map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(match)), &data); err == nil {
			return data
		}
	}
	return nil
}

// parseBullets extracts bullet items from formatted text. Recognizes -, •,
// * and numbered markers; without markers it falls back to sentences.
func parseBullets(text string) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			if b := cleanGeneratedText(m[1]); b != "" {
				bullets = append(bullets, b)
			}
		}
	}
	if len(bullets) == 0 && strings.Contains(text, ".") {
		for _, s := range strings.Split(text, ".") {
			if s = strings.TrimSpace(s); s != "" {
				bullets = append(bullets, cleanGeneratedText(s))
			}
			if len(bullets) == 5 {
				break
			}
		}
	}
	return bullets
}

var (
	positiveKeywords = []string{"positif", "positive", "satisfait", "content", "heureux", "bon"}
	negativeKeywords = []string{"negatif", "negative", "insatisfait", "mécontent", "mauvais", "problème"}
	neutralKeywords  = []string{"neutre", "neutral", "objectif", "factuel"}
	mixedKeywords    = []string{"mixte", "mitigé", "ambivalent", "partagé"}
)

// normalizeSentiment maps free-form engine output onto the four supported
// sentiment labels. Mixed wins over the others so "satisfait mais mitigé"
// does not collapse to positive.
func normalizeSentiment(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))

	contains := func(keywords []string) bool {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case contains(mixedKeywords):
		return models.SentimentMixed
	case contains(positiveKeywords):
		return models.SentimentPositive
	case contains(negativeKeywords):
		return models.SentimentNegative
	case contains(neutralKeywords):
		return models.SentimentNeutral
	default:
		return models.SentimentNeutral
	}
}
