package chat

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/suadeo/internal/models"
)

// getDefaultSystemPrompt returns the built-in recommendation persona
func getDefaultSystemPrompt() string {
	return `You are Suadeo, a product recommendation assistant grounded in real customer reviews.

When answering questions:
1. Recommend products using only the customer reviews provided in the context
2. Name products exactly as the reviews name them
3. Mention what reviewers liked or disliked when it supports the recommendation
4. If the reviews don't cover what the shopper asks for, say so clearly instead of inventing products
5. Keep responses short and conversational

If you're unsure about something, acknowledge it rather than making assumptions.`
}

// defaultFallbackMessage is returned verbatim when generation fails.
// Operators override it via chat.fallback_message or the persona file.
const defaultFallbackMessage = "Sorry, I can't put together a recommendation right now. Please try again in a moment."

// noContextNote flags a degraded turn where retrieval was unavailable
const noContextNote = `NOTE: No customer reviews could be retrieved for this turn.
Answer from the conversation so far, and tell the shopper when you have no review data to back a recommendation.`

// Persona is the operator-tunable half of the prompt. Loaded from an
// optional YAML file; empty fields keep the built-in defaults.
type Persona struct {
	SystemPrompt    string `yaml:"system_prompt"`
	FallbackMessage string `yaml:"fallback_message"`
}

// LoadPersona reads a persona override file. An empty path returns the
// built-in persona unchanged.
func LoadPersona(path string) (*Persona, error) {
	persona := &Persona{
		SystemPrompt:    getDefaultSystemPrompt(),
		FallbackMessage: defaultFallbackMessage,
	}
	if path == "" {
		return persona, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var override Persona
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}

	if strings.TrimSpace(override.SystemPrompt) != "" {
		persona.SystemPrompt = strings.TrimSpace(override.SystemPrompt)
	}
	if strings.TrimSpace(override.FallbackMessage) != "" {
		persona.FallbackMessage = strings.TrimSpace(override.FallbackMessage)
	}
	return persona, nil
}

// buildReviewContext builds a formatted context string from retrieved
// reviews. Review bodies longer than maxChars are truncated; 0 keeps
// them whole.
func buildReviewContext(passages []models.RetrievedPassage, maxChars int) string {
	if len(passages) == 0 {
		return ""
	}

	var parts []string
	parts = append(parts, "CUSTOMER REVIEWS:")
	parts = append(parts, "")

	for i, passage := range passages {
		review := passage.Review
		if review == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("Review %d:", i+1))
		parts = append(parts, fmt.Sprintf("Product: %s", review.ProductTitle))
		if rating, ok := review.Metadata["rating"]; ok && rating != "" {
			parts = append(parts, fmt.Sprintf("Rating: %s", rating))
		}
		parts = append(parts, fmt.Sprintf("Content: %s", truncateContent(review.ReviewText, maxChars)))
		parts = append(parts, "")
	}

	return strings.Join(parts, "\n")
}

// truncateContent truncates content to the specified length. 0 or a
// negative length disables truncation.
func truncateContent(content string, maxLength int) string {
	if maxLength <= 0 || len(content) <= maxLength {
		return content
	}
	return content[:maxLength] + "..."
}
