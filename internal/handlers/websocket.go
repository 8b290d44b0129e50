// -----------------------------------------------------------------------
// Last Modified: Tuesday, 16th December 2025 2:10:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// pingInterval keeps idle connections alive while a turn is generating
const pingInterval = 30 * time.Second

// wsChatRequest is one inbound turn frame
type wsChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	TopK     int    `json:"top_k,omitempty"`
}

// WebSocketHandler serves conversational turns over /ws/chat. Each JSON
// frame is one turn; response frames mirror POST /api/chat. A connection
// maps to one client, not one thread - frames carry their thread ids.
type WebSocketHandler struct {
	chatService interfaces.ChatService
	logger      arbor.ILogger
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex
}

// NewWebSocketHandler creates a new WebSocket chat handler
func NewWebSocketHandler(chatService interfaces.ChatService, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// HandleChat handles GET /ws/chat
func (h *WebSocketHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket chat client connected (total: %d)", clientCount)

	done := make(chan struct{})

	defer func() {
		close(done)

		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket chat client disconnected (remaining: %d)", remaining)
	}()

	h.writeJSON(conn, map[string]interface{}{
		"type":    "connected",
		"version": common.GetVersion(),
	})

	// Pings run beside the read loop; turns can take seconds to generate
	common.SafeGo(h.logger, "ws-chat-ping", func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := h.writeControl(conn, websocket.PingMessage); err != nil {
					return
				}
			}
		}
	})

	for {
		var req wsChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			break
		}

		h.handleTurnFrame(r, conn, &req)
	}
}

// handleTurnFrame runs one chat turn and writes the response frame
func (h *WebSocketHandler) handleTurnFrame(r *http.Request, conn *websocket.Conn, req *wsChatRequest) {
	if strings.TrimSpace(req.Message) == "" {
		h.writeJSON(conn, map[string]interface{}{
			"type":  "error",
			"error": "Message field is required",
		})
		return
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = common.NewThreadID()
	}

	// The connection context cancels the turn when the client drops
	response, err := h.chatService.HandleTurn(r.Context(), &interfaces.ChatRequest{
		ThreadID: threadID,
		Message:  req.Message,
		TopK:     req.TopK,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("thread_id", threadID).Msg("WebSocket chat turn failed")
		h.writeJSON(conn, map[string]interface{}{
			"type":      "error",
			"thread_id": threadID,
			"error":     "Failed to process chat turn",
		})
		return
	}

	h.writeJSON(conn, map[string]interface{}{
		"type":      "turn",
		"success":   true,
		"thread_id": response.ThreadID,
		"message":   response.Message,
		"passages":  passageViews(response.Passages),
		"degraded":  response.Degraded,
		"fallback":  response.Fallback,
		"provider":  response.Provider,
	})
}

// writeJSON serializes writes to one connection
func (h *WebSocketHandler) writeJSON(conn *websocket.Conn, v interface{}) {
	mutex := h.mutexFor(conn)
	if mutex == nil {
		return
	}

	mutex.Lock()
	defer mutex.Unlock()

	if err := conn.WriteJSON(v); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write WebSocket message")
	}
}

// writeControl sends a control frame under the same per-connection mutex
func (h *WebSocketHandler) writeControl(conn *websocket.Conn, messageType int) error {
	mutex := h.mutexFor(conn)
	if mutex == nil {
		return websocket.ErrCloseSent
	}

	mutex.Lock()
	defer mutex.Unlock()

	return conn.WriteControl(messageType, nil, time.Now().Add(10*time.Second))
}

func (h *WebSocketHandler) mutexFor(conn *websocket.Conn) *sync.Mutex {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clientMutex[conn]
}
