package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

type responseRequest struct {
	SurveyID       int                   `json:"surveyId"`
	Responses      []models.Answer       `json:"responses"`
	Location       *models.Point         `json:"location"`
	RespondentInfo models.RespondentInfo `json:"respondentInfo"`
}

// createResponse persists a completed questionnaire and then notifies the
// realtime hub so dashboards subscribed to responses-survey get the fresh
// snapshot. This is the one CRUD call site that reaches into the core.
func (h *Handlers) createResponse(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req responseRequest
	if err := decode(r, &req); err != nil || req.SurveyID <= 0 || len(req.Responses) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid response data")
		return
	}
	if err := req.RespondentInfo.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid response data")
		return
	}
	if req.Location != nil {
		if err := req.Location.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid response data")
			return
		}
	}

	response, err := h.store.CreateResponse(r.Context(), store.NewResponse{
		SurveyID:       req.SurveyID,
		UserID:         id.UserID,
		Responses:      req.Responses,
		Location:       req.Location,
		RespondentInfo: req.RespondentInfo,
	})
	if err != nil {
		h.logger.Error("failed to create response", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.hub.NotifyResponsesChanged()

	writeJSON(w, http.StatusCreated, response)
}

func (h *Handlers) listResponses(w http.ResponseWriter, r *http.Request) {
	responses, err := h.store.ListResponses(r.Context())
	if err != nil {
		h.logger.Error("failed to list responses", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, responses)
}

func (h *Handlers) listSurveyResponses(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "surveyId")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	responses, err := h.store.ListResponsesBySurvey(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list responses", zap.Int("survey_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, responses)
}
