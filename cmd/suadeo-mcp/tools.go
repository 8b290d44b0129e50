package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createSearchReviewsTool returns the search_reviews tool definition
func createSearchReviewsTool() mcp.Tool {
	return mcp.NewTool("search_reviews",
		mcp.WithDescription("Search the product review corpus by meaning (embedding similarity)"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language query, e.g. 'quiet coffee grinder for espresso'"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Number of passages to return (default: configured retriever top-k, max: 20)"),
		),
	)
}

// createGetReviewTool returns the get_review tool definition
func createGetReviewTool() mcp.Tool {
	return mcp.NewTool("get_review",
		mcp.WithDescription("Retrieve a single product review by its unique ID"),
		mcp.WithString("review_id",
			mcp.Required(),
			mcp.Description("Review ID (format: rev_{uuid})"),
		),
	)
}

// createRecommendTool returns the recommend tool definition
func createRecommendTool() mcp.Tool {
	return mcp.NewTool("recommend",
		mcp.WithDescription("Ask the product recommender a question; answers are grounded in retrieved reviews. Pass the returned thread_id to continue a conversation."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("What to ask, e.g. 'which headphones are best for travel?'"),
		),
		mcp.WithString("thread_id",
			mcp.Description("Conversation thread to continue (omit to start a new one)"),
		),
	)
}

// createCorpusStatsTool returns the corpus_stats tool definition
func createCorpusStatsTool() mcp.Tool {
	return mcp.NewTool("corpus_stats",
		mcp.WithDescription("Report corpus size, embedded review count, and vector index state"),
	)
}
