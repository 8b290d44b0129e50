// -----------------------------------------------------------------------
// Last Modified: Monday, 15th December 2025 4:32:10 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (one JSON frame per chat turn)
	mux.HandleFunc("/ws/chat", s.app.WSHandler.HandleChat)

	// API routes - Chat
	mux.HandleFunc("/api/chat", s.app.ChatHandler.ChatHandler)
	mux.HandleFunc("/api/chat/health", s.app.ChatHandler.HealthHandler)

	// API routes - Conversation threads
	mux.HandleFunc("/api/threads", s.app.ThreadHandler.ListThreadsHandler)
	mux.HandleFunc("/api/threads/", s.handleThreadRoutes) // GET/DELETE /{id}, GET /{id}/context

	// API routes - Review corpus
	mux.HandleFunc("/api/reviews/stats", s.app.ReviewHandler.StatsHandler)
	mux.HandleFunc("/api/reviews/search", s.app.ReviewHandler.SearchReviewsHandler)
	mux.HandleFunc("/api/reviews", s.app.ReviewHandler.ListReviewsHandler)
	mux.HandleFunc("/api/reviews/", s.app.ReviewHandler.GetReviewHandler) // GET /{id}

	// API routes - Ingestion
	mux.HandleFunc("/api/ingest", s.app.IngestHandler.IngestHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	// API routes - Key/value settings (provider API keys)
	mux.HandleFunc("/api/kv", s.handleKVRoute)   // GET (list), POST (create)
	mux.HandleFunc("/api/kv/", s.handleKVRoutes) // GET/PUT/DELETE /{key}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleThreadRoutes routes /api/threads/{id} requests
func (s *Server) handleThreadRoutes(w http.ResponseWriter, r *http.Request) {
	// GET /api/threads/{id}/context
	if routeBySuffix(w, r, "/api/threads/", []suffixRoute{
		{suffix: "/context", handler: s.app.ThreadHandler.GetThreadContextHandler},
	}) {
		return
	}

	routeByMethod(w, r, methodRouter{
		"GET":    s.app.ThreadHandler.GetThreadHandler,
		"DELETE": s.app.ThreadHandler.DeleteThreadHandler,
	})
}

// handleKVRoute routes /api/kv requests (list and create)
func (s *Server) handleKVRoute(w http.ResponseWriter, r *http.Request) {
	routeResourceCollection(w, r, s.app.KVHandler.ListKVHandler, s.app.KVHandler.CreateKVHandler)
}

// handleKVRoutes routes /api/kv/{key} requests
func (s *Server) handleKVRoutes(w http.ResponseWriter, r *http.Request) {
	routeResourceItem(w, r, s.app.KVHandler.GetKVHandler, s.app.KVHandler.UpdateKVHandler, s.app.KVHandler.DeleteKVHandler)
}
