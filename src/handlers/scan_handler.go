package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/services"
	"github.com/username/optionfolio/backend/src/utils"
)

type ScanHandler struct {
	scanService services.ScanService
}

func NewScanHandler(scanService services.ScanService) *ScanHandler {
	return &ScanHandler{
		scanService: scanService,
	}
}

// RefreshScan starts a watchlist scan run. A second request while a run is
// in flight gets 409.
func (h *ScanHandler) RefreshScan(w http.ResponseWriter, r *http.Request) {
	runID, err := h.scanService.StartScan(r.Context())
	if err != nil {
		if errors.Is(err, services.ErrScanAlreadyRunning) {
			utils.SendJSONError(w, "A scan is already running", http.StatusConflict)
			return
		}
		logger.L.Error("failed to start scan", "error", err)
		utils.SendJSONError(w, "Failed to start scan", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"run_id": runID,
	})
}

func (h *ScanHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.scanService.GetLatestResults()
	if err != nil {
		logger.L.Error("failed to load scan results", "error", err)
		utils.SendJSONError(w, "Failed to load scan results", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []models.AnalysisResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Events streams scan progress to the dashboard as server-sent events until
// the client disconnects.
func (h *ScanHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.SendJSONError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := h.scanService.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.L.Warn("failed to marshal scan progress event", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
