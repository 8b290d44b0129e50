package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/models"
)

// handleSearchReviews implements the search_reviews tool
func handleSearchReviews(retriever interfaces.Retriever, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: query parameter is required"),
				},
			}, nil
		}

		topK := request.GetInt("top_k", retriever.TopK())
		if topK > 20 {
			topK = 20
		}

		passages, err := retriever.Search(ctx, query, topK)
		if err != nil {
			logger.Error().Err(err).Msg("Search failed")
			var unavailable *models.RetrievalUnavailableError
			if errors.As(err, &unavailable) {
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent("Retrieval is currently unavailable; try again shortly"),
					},
				}, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Search error: %v", err)),
				},
			}, nil
		}

		markdown := formatPassages(query, passages)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleGetReview implements the get_review tool
func handleGetReview(reviews interfaces.ReviewStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reviewID, err := request.RequireString("review_id")
		if err != nil || reviewID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: review_id parameter is required"),
				},
			}, nil
		}

		review, err := reviews.GetReview(ctx, reviewID)
		if err != nil {
			logger.Error().Err(err).Str("review_id", reviewID).Msg("GetReview failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Review not found: %v", err)),
				},
			}, nil
		}

		markdown := formatReview(review)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleRecommend implements the recommend tool
func handleRecommend(chatService interfaces.ChatService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := request.RequireString("message")
		if err != nil || message == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: message parameter is required"),
				},
			}, nil
		}

		threadID := request.GetString("thread_id", "")
		if threadID == "" {
			threadID = common.NewThreadID()
		}

		resp, err := chatService.HandleTurn(ctx, &interfaces.ChatRequest{
			ThreadID: threadID,
			Message:  message,
		})
		if err != nil {
			logger.Error().Err(err).Str("thread_id", threadID).Msg("Chat turn failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Recommendation error: %v", err)),
				},
			}, nil
		}

		markdown := formatRecommendation(resp)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleCorpusStats implements the corpus_stats tool
func handleCorpusStats(reviews interfaces.ReviewStorage, index interfaces.VectorIndex, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := reviews.GetStats(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("GetStats failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Stats error: %v", err)),
				},
			}, nil
		}

		indexed, err := index.Count(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Index count failed")
			indexed = -1
		}

		markdown := formatCorpusStats(stats, indexed, index.Name())
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}
