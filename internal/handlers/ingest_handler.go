package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/services/status"
)

// IngestHandler handles corpus ingestion HTTP requests
type IngestHandler struct {
	ingestService interfaces.IngestService
	statusService *status.Service
	logger        arbor.ILogger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestService interfaces.IngestService, statusService *status.Service, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		statusService: statusService,
		logger:        logger,
	}
}

// IngestHandler handles POST /api/ingest. The run executes in the
// background; progress and outcome surface on GET /api/status.
func (h *IngestHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		FilePath     string `json:"file_path"`
		LoadExisting bool   `json:"load_existing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.FilePath) == "" {
		WriteError(w, http.StatusBadRequest, "file_path field is required")
		return
	}

	started := h.statusService.BeginIngest(map[string]interface{}{
		"file":          req.FilePath,
		"load_existing": req.LoadExisting,
	})
	if !started {
		WriteError(w, http.StatusConflict, "An ingestion run is already in progress")
		return
	}

	h.logger.Info().
		Str("file", req.FilePath).
		Str("load_existing", fmt.Sprintf("%v", req.LoadExisting)).
		Msg("Starting ingestion run")

	// Detached from the request context: the run outlives the response
	common.SafeGo(h.logger, "ingest-run", func() {
		stats, err := h.ingestService.Run(context.Background(), req.FilePath, req.LoadExisting)
		if err != nil {
			h.logger.Error().Err(err).Str("file", req.FilePath).Msg("Ingestion run failed")
			h.statusService.SetState(status.StateIdle, map[string]interface{}{
				"file":       req.FilePath,
				"last_error": err.Error(),
			})
			return
		}

		h.statusService.SetState(status.StateIdle, map[string]interface{}{
			"file":        req.FilePath,
			"last_ingest": stats,
		})
	})

	WriteStarted(w, "Ingestion started")
}
