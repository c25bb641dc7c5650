package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

// listSurveyorLocations returns every active location joined with its
// owner's profile. Unlike the websocket snapshot this REST view is not
// filtered by role; staff see whoever has a live row.
func (h *Handlers) listSurveyorLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.store.GetActiveLocations(r.Context())
	if err != nil {
		h.logger.Error("failed to list locations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	out := make([]models.LocationWithUser, 0, len(locations))
	for _, loc := range locations {
		entry := models.LocationWithUser{SurveyorLocation: loc}
		user, uerr := h.store.GetUser(r.Context(), loc.UserID)
		if uerr != nil && !errors.Is(uerr, store.ErrNotFound) {
			h.logger.Error("failed to load user", zap.Int("user_id", loc.UserID), zap.Error(uerr))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if uerr == nil {
			profile := user.Profile()
			entry.User = &profile
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}
