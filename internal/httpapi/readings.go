package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pcurt/hivesense2mqtt/internal/history"
)

// ReadingStore is the read side of the reading history.
type ReadingStore interface {
	GetLatestReadings(ctx context.Context, deviceID int, limit int) ([]history.Reading, error)
}

type readingsResponse struct {
	DeviceID int               `json:"device_id"`
	Limit    int               `json:"limit"`
	Items    []history.Reading `json:"items"`
}

type readingsHandler struct {
	store  ReadingStore
	logger *slog.Logger
}

func (h *readingsHandler) handleLatest(w http.ResponseWriter, r *http.Request) {
	deviceID, err := parseDeviceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLatestQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.store.GetLatestReadings(r.Context(), deviceID, limit)
	if err != nil {
		h.logger.Error("failed to load readings", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	writeJSON(w, http.StatusOK, readingsResponse{DeviceID: deviceID, Limit: limit, Items: items})
}
