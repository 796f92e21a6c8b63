package enrich

import (
	"fmt"
	"strings"
)

const systemPrompt = `Tu es un assistant spécialisé dans l'analyse d'appels clients de call center.
Tu génères des résumés clairs, concis et professionnels en français.`

const allInOneTemplate = `Analyse cette transcription d'appel client et génère :
1. Un titre court (max 10 mots)
2. Un résumé (2-3 phrases)
3. 3-5 points clés
4. Le sentiment général

Transcription :
%s

Réponds au format JSON :
{
  "titre": "titre ici",
  "resume": "résumé ici",
  "points_cles": ["point 1", "point 2", "point 3"],
  "sentiment": "positif|negatif|neutre|mixte",
  "confiance": 0.85
}`

// PromptBuilder formats prompts for the generation engine, wrapping the
// instruction in the chat template the model family expects.
type PromptBuilder struct {
	modelType string // mistral, llama, or anything else for a plain template
}

// NewPromptBuilder creates a builder for the given model family.
func NewPromptBuilder(modelType string) *PromptBuilder {
	return &PromptBuilder{modelType: modelType}
}

// BuildAllInOne builds the single combined prompt requesting title,
// summary, bullets and sentiment as one structured response.
func (b *PromptBuilder) BuildAllInOne(text string) string {
	instruction := fmt.Sprintf(allInOneTemplate, text)

	switch b.modelType {
	case "mistral":
		return fmt.Sprintf("<s>[INST] %s\n\n%s [/INST]", systemPrompt, instruction)
	case "llama":
		return fmt.Sprintf(
			"<|begin_of_text|><|start_header_id|>system<|end_header_id|>\n\n%s<|eot_id|><|start_header_id|>user<|end_header_id|>\n\n%s<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n",
			systemPrompt, instruction)
	default:
		return fmt.Sprintf("System: %s\n\nUser: %s\n\nAssistant:", systemPrompt, instruction)
	}
}

// modelFamily guesses the chat template from a model name.
func modelFamily(model string) string {
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "mistral"):
		return "mistral"
	case strings.Contains(name, "llama"):
		return "llama"
	default:
		return "plain"
	}
}
