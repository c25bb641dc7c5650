package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

type surveyRequest struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Questions   json.RawMessage      `json:"questions"`
	ZoneID      *int                 `json:"zoneId"`
	Status      *models.SurveyStatus `json:"status"`
}

type surveyWithCount struct {
	models.Survey
	ResponseCount int `json:"responseCount"`
}

// listSurveys returns every survey for staff, and only assigned surveys for a
// surveyor, each annotated with its response count.
func (h *Handlers) listSurveys(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var surveys []models.Survey
	var err error
	if id.Role == models.RoleSurveyor {
		assignments, aerr := h.store.ListAssignmentsByUser(r.Context(), id.UserID)
		if aerr != nil {
			h.logger.Error("failed to list assignments", zap.Error(aerr))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		for _, a := range assignments {
			s, serr := h.store.GetSurvey(r.Context(), a.SurveyID)
			if serr != nil {
				continue
			}
			surveys = append(surveys, *s)
		}
	} else {
		surveys, err = h.store.ListSurveys(r.Context())
		if err != nil {
			h.logger.Error("failed to list surveys", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	out := make([]surveyWithCount, 0, len(surveys))
	for _, s := range surveys {
		responses, rerr := h.store.ListResponsesBySurvey(r.Context(), s.ID)
		if rerr != nil {
			h.logger.Error("failed to count responses", zap.Int("survey_id", s.ID), zap.Error(rerr))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		out = append(out, surveyWithCount{Survey: s, ResponseCount: len(responses)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid survey id")
		return
	}
	survey, err := h.store.GetSurvey(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Survey not found")
		return
	}
	writeJSON(w, http.StatusOK, survey)
}

func (h *Handlers) createSurvey(w http.ResponseWriter, r *http.Request) {
	var req surveyRequest
	if err := decode(r, &req); err != nil || req.Name == nil || *req.Name == "" || len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid survey data")
		return
	}
	status := models.SurveyDraft
	if req.Status != nil {
		status = *req.Status
	}
	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	survey, err := h.store.CreateSurvey(r.Context(), *req.Name, description, req.Questions, req.ZoneID, status)
	if err != nil {
		h.logger.Error("failed to create survey", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, survey)
}

func (h *Handlers) updateSurvey(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid survey id")
		return
	}
	var req surveyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid survey data")
		return
	}
	survey, err := h.store.UpdateSurvey(r.Context(), id, store.SurveyUpdate{
		Name:        req.Name,
		Description: req.Description,
		Questions:   req.Questions,
		ZoneID:      req.ZoneID,
		Status:      req.Status,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Survey not found")
			return
		}
		h.logger.Error("failed to update survey", zap.Int("survey_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, survey)
}

func (h *Handlers) listSurveyAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid survey id")
		return
	}
	assignments, err := h.store.ListAssignmentsBySurvey(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list assignments", zap.Int("survey_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *Handlers) deleteSurveyAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid survey id")
		return
	}
	if err := h.store.DeleteAssignmentsBySurvey(r.Context(), id); err != nil {
		h.logger.Error("failed to delete assignments", zap.Int("survey_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type assignmentRequest struct {
	SurveyID int `json:"surveyId"`
	UserID   int `json:"userId"`
}

func (h *Handlers) createAssignment(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req assignmentRequest
	if err := decode(r, &req); err != nil || req.SurveyID <= 0 || req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid assignment data")
		return
	}
	assignment, err := h.store.AssignSurvey(r.Context(), req.SurveyID, req.UserID, id.UserID)
	if err != nil {
		h.logger.Error("failed to assign survey", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

type assignmentWithSurvey struct {
	models.SurveyAssignment
	Survey *models.Survey `json:"survey,omitempty"`
}

func (h *Handlers) listUserAssignments(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	assignments, err := h.store.ListAssignmentsByUser(r.Context(), id.UserID)
	if err != nil {
		h.logger.Error("failed to list assignments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	out := make([]assignmentWithSurvey, 0, len(assignments))
	for _, a := range assignments {
		survey, _ := h.store.GetSurvey(r.Context(), a.SurveyID)
		out = append(out, assignmentWithSurvey{SurveyAssignment: a, Survey: survey})
	}
	writeJSON(w, http.StatusOK, out)
}
