package enrich

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Result is the structured digest generated for one transcript.
type Result struct {
	Title               string
	Summary             string
	Bullets             []string
	Sentiment           string
	SentimentConfidence float64
	Topics              []string
	ModelUsed           string
	GenerationTime      float64
	TokensGenerated     int
}

// Processor turns a transcript text into a Result through the generation
// engine. It is stateless and safe for concurrent use.
type Processor struct {
	generator Generator
	prompts   *PromptBuilder
	minChars  int
	maxChars  int
}

// NewProcessor creates a Processor. minChars gates texts that are too
// short to summarize; longer texts are truncated to maxChars.
func NewProcessor(generator Generator, minChars, maxChars int) *Processor {
	return &Processor{
		generator: generator,
		prompts:   NewPromptBuilder(modelFamily(generator.ModelName())),
		minChars:  minChars,
		maxChars:  maxChars,
	}
}

// Process generates title, summary, bullets and sentiment in one combined
// request. A transcript below the minimum length fails fast without
// calling the engine. An unparseable response falls back to heuristic
// line-based extraction instead of failing the job.
func (p *Processor) Process(ctx context.Context, text string) (*Result, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < p.minChars {
		return nil, fmt.Errorf("text too short: %d chars (minimum %d)", n, p.minChars)
	}
	text = TruncateText(text, p.maxChars)

	generation, err := p.generator.Generate(ctx, p.prompts.BuildAllInOne(text))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	result := p.parseStructured(generation)
	if result == nil {
		log.Println("No valid JSON in generation output, using fallback parsing")
		result = fallbackParse(generation)
	}

	result.GenerationTime = math.Round(time.Since(start).Seconds()*100) / 100
	result.TokensGenerated = generation.TokensGenerated
	result.ModelUsed = p.generator.ModelName()
	return result, nil
}

// parseStructured extracts the expected JSON object from the generation.
// Returns nil when no object with the required keys is present.
func (p *Processor) parseStructured(generation *Generation) *Result {
	data := extractJSON(generation.Text)
	if data == nil {
		return nil
	}
	for _, key := range []string{"titre", "resume", "points_cles", "sentiment"} {
		if _, ok := data[key]; !ok {
			return nil
		}
	}

	return &Result{
		Title:               cleanGeneratedText(stringValue(data["titre"])),
		Summary:             cleanGeneratedText(stringValue(data["resume"])),
		Bullets:             stringSlice(data["points_cles"], 5),
		Sentiment:           normalizeSentiment(stringValue(data["sentiment"])),
		SentimentConfidence: floatValue(data["confiance"]),
		Topics:              stringSlice(data["topics"], 5),
	}
}

// fallbackParse scrapes what it can from free-form output: the first short
// line becomes the title, the first long line the summary, dash-prefixed
// lines the bullets, keyword matching the sentiment. Confidence is fixed
// low to record that the fallback was used.
func fallbackParse(generation *Generation) *Result {
	var lines []string
	for _, line := range strings.Split(generation.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	title := ""
	for i, line := range lines {
		if i >= 3 {
			break
		}
		if len(line) < 100 && !strings.HasPrefix(line, "-") {
			title = cleanGeneratedText(line)
			break
		}
	}

	summary := ""
	for _, line := range lines {
		if len(line) > 50 && !strings.HasPrefix(line, "-") {
			summary = cleanGeneratedText(line)
			break
		}
	}

	bullets := parseBullets(generation.Text)

	if title == "" {
		title = "Transcription"
	}
	if summary == "" {
		summary = "Résumé non disponible"
	}
	if len(bullets) == 0 {
		bullets = []string{"Pas de points clés extraits"}
	}
	if len(bullets) > 5 {
		bullets = bullets[:5]
	}

	return &Result{
		Title:               title,
		Summary:             summary,
		Bullets:             bullets,
		Sentiment:           normalizeSentiment(generation.Text),
		SentimentConfidence: 0.3,
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	f, _ := v.(float64)
	return f
}

func stringSlice(v any, max int) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, cleanGeneratedText(s))
		}
		if len(out) == max {
			break
		}
	}
	return out
}
