package conversations

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

const summarySystemPrompt = `You condense chat history between a shopper and a product recommendation assistant.
Write a compact summary that preserves: products discussed, the shopper's stated preferences and constraints (budget, features, dislikes), and any recommendations already made.
Respond with the summary text only.`

// Summaries stay deterministic-ish and short; they are prompt plumbing,
// not user-facing prose.
var summaryTemperature = float32(0.3)

const summaryMaxTokens = 512

// summarize condenses the given messages into a new rolling summary,
// folding in the prior summary when one exists.
func (s *Store) summarize(ctx context.Context, priorSummary string, messages []models.Message) (string, error) {
	if len(messages) == 0 {
		return priorSummary, nil
	}

	prompt := []models.Message{
		{Role: models.RoleSystem, Content: summarySystemPrompt},
		{Role: models.RoleUser, Content: buildSummaryRequest(priorSummary, messages)},
	}

	summary, err := s.generator.Generate(ctx, prompt, &interfaces.GenerateOptions{
		MaxTokens:   summaryMaxTokens,
		Temperature: &summaryTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("summary generation returned empty text")
	}

	return summary, nil
}

// buildSummaryRequest renders the prior summary and the transcript to
// condense as one user message.
func buildSummaryRequest(priorSummary string, messages []models.Message) string {
	var b strings.Builder

	if priorSummary != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(priorSummary)
		b.WriteString("\n\nNew messages to fold in:\n")
	} else {
		b.WriteString("Messages to summarize:\n")
	}

	for _, msg := range messages {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}

	return b.String()
}
