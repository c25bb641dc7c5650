package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/store"
)

type zoneRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (h *Handlers) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.store.ListZones(r.Context())
	if err != nil {
		h.logger.Error("failed to list zones", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (h *Handlers) getZone(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid zone id")
		return
	}
	zone, err := h.store.GetZone(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Zone not found")
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *Handlers) createZone(w http.ResponseWriter, r *http.Request) {
	var req zoneRequest
	if err := decode(r, &req); err != nil || req.Name == nil || *req.Name == "" || len(req.Coordinates) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid zone data")
		return
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	zone, err := h.store.CreateZone(r.Context(), *req.Name, description, req.Coordinates)
	if err != nil {
		h.logger.Error("failed to create zone", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, zone)
}

func (h *Handlers) updateZone(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid zone id")
		return
	}
	var req zoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid zone data")
		return
	}
	zone, err := h.store.UpdateZone(r.Context(), id, store.ZoneUpdate{
		Name:        req.Name,
		Description: req.Description,
		Coordinates: req.Coordinates,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Zone not found")
			return
		}
		h.logger.Error("failed to update zone", zap.Int("zone_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *Handlers) deleteZone(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid zone id")
		return
	}
	if err := h.store.DeleteZone(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Zone not found")
			return
		}
		h.logger.Error("failed to delete zone", zap.Int("zone_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error deleting zone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Zone deleted successfully"})
}
