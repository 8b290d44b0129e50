package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// formatPassages formats retrieved passages as markdown
func formatPassages(query string, passages []models.RetrievedPassage) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Review Matches for \"%s\" (%d results)\n\n", query, len(passages)))

	if len(passages) == 0 {
		sb.WriteString("No matching reviews found.\n")
		return sb.String()
	}

	for i, passage := range passages {
		review := passage.Review
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, review.ProductTitle))
		sb.WriteString(fmt.Sprintf("**ID:** %s\n", review.ID))
		sb.WriteString(fmt.Sprintf("**Score:** %.4f\n\n", passage.Score))

		// Review preview (first 300 chars)
		text := review.ReviewText
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")

		if len(review.Metadata) > 0 {
			metadataJSON, _ := json.MarshalIndent(review.Metadata, "", "  ")
			sb.WriteString(fmt.Sprintf("**Metadata:** %s\n", string(metadataJSON)))
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// formatReview formats a single review as markdown
func formatReview(review *models.Review) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", review.ProductTitle))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", review.ID))
	if review.EmbeddingModel != "" {
		sb.WriteString(fmt.Sprintf("**Embedding:** %s (%d dimensions)\n", review.EmbeddingModel, len(review.Embedding)))
	}
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", review.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", review.UpdatedAt.Format(time.RFC3339)))

	sb.WriteString("## Review\n\n")
	sb.WriteString(review.ReviewText)
	sb.WriteString("\n\n")

	if len(review.Metadata) > 0 {
		sb.WriteString("## Metadata\n\n```json\n")
		metadataJSON, _ := json.MarshalIndent(review.Metadata, "", "  ")
		sb.WriteString(string(metadataJSON))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}

// formatRecommendation formats a chat turn response as markdown
func formatRecommendation(resp *interfaces.ChatResponse) string {
	var sb strings.Builder
	sb.WriteString(resp.Message)
	sb.WriteString("\n\n---\n")
	sb.WriteString(fmt.Sprintf("**Thread:** %s (pass this thread_id to continue)\n", resp.ThreadID))

	if resp.Fallback {
		sb.WriteString("**Note:** generation was unavailable; this is the fallback reply.\n")
	} else if resp.Degraded {
		sb.WriteString("**Note:** retrieval was unavailable; answered without review context.\n")
	}

	if len(resp.Passages) > 0 {
		sb.WriteString("\n**Cited reviews:**\n")
		for i, passage := range resp.Passages {
			sb.WriteString(fmt.Sprintf("%d. %s (%s, score %.4f)\n",
				i+1, passage.Review.ProductTitle, passage.Review.ID, passage.Score))
		}
	}

	return sb.String()
}

// formatCorpusStats formats corpus statistics as markdown
func formatCorpusStats(stats *models.ReviewStats, indexed int, backend string) string {
	var sb strings.Builder
	sb.WriteString("## Corpus\n\n")
	sb.WriteString(fmt.Sprintf("**Total reviews:** %d\n", stats.TotalReviews))
	sb.WriteString(fmt.Sprintf("**Embedded:** %d\n", stats.EmbeddedCount))
	if stats.EmbeddingModel != "" {
		sb.WriteString(fmt.Sprintf("**Embedding model:** %s\n", stats.EmbeddingModel))
	}
	if !stats.LastIngestedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Last ingested:** %s\n", stats.LastIngestedAt.Format(time.RFC3339)))
	}

	sb.WriteString(fmt.Sprintf("\n## Index\n\n**Backend:** %s\n", backend))
	if indexed >= 0 {
		sb.WriteString(fmt.Sprintf("**Indexed vectors:** %d\n", indexed))
	} else {
		sb.WriteString("**Indexed vectors:** unavailable\n")
	}

	return sb.String()
}
