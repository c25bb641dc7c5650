package api

import (
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
)

type surveyProgress struct {
	ID                   int                 `json:"id"`
	Name                 string              `json:"name"`
	Status               models.SurveyStatus `json:"status"`
	CompletionPercentage int                 `json:"completionPercentage"`
}

type statsResponse struct {
	ActiveSurveyors        int              `json:"activeSurveyors"`
	TotalSurveyors         int              `json:"totalSurveyors"`
	ActiveSurveys          int              `json:"activeSurveys"`
	TotalSurveys           int              `json:"totalSurveys"`
	ResponsesToday         int              `json:"responsesToday"`
	CompletionRate         int              `json:"completionRate"`
	SurveyProgress         []surveyProgress `json:"surveyProgress"`
	ResponsesThisWeek      int              `json:"responsesThisWeek"`
	ResponsesLastWeek      int              `json:"responsesLastWeek"`
	WeeklyGrowthPercentage *int             `json:"weeklyGrowthPercentage"`
}

// stats aggregates the dashboard counters. Day and week boundaries are
// computed in the configured timezone; weeks start on Monday.
func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.store.ListUsers(ctx)
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	surveys, err := h.store.ListSurveys(ctx)
	if err != nil {
		h.logger.Error("failed to list surveys", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	responses, err := h.store.ListResponses(ctx)
	if err != nil {
		h.logger.Error("failed to list responses", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	activeLocations, err := h.store.GetActiveLocations(ctx)
	if err != nil {
		h.logger.Error("failed to list locations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	roleByID := make(map[int]models.Role, len(users))
	totalSurveyors := 0
	for _, u := range users {
		roleByID[u.ID] = u.Role
		if u.Role == models.RoleSurveyor {
			totalSurveyors++
		}
	}
	activeSurveyors := 0
	for _, loc := range activeLocations {
		if roleByID[loc.UserID] == models.RoleSurveyor {
			activeSurveyors++
		}
	}

	activeSurveys := 0
	for _, s := range surveys {
		if s.Status == models.SurveyActive {
			activeSurveys++
		}
	}

	now := h.now().In(h.loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	startOfWeek := startOfToday.AddDate(0, 0, -daysSinceMonday)
	startOfLastWeek := startOfWeek.AddDate(0, 0, -7)

	responsesToday, responsesThisWeek, responsesLastWeek := 0, 0, 0
	for _, resp := range responses {
		created := resp.CreatedAt.In(h.loc)
		if !created.Before(startOfToday) {
			responsesToday++
		}
		if !created.Before(startOfWeek) {
			responsesThisWeek++
		} else if !created.Before(startOfLastWeek) {
			responsesLastWeek++
		}
	}

	var weeklyGrowth *int
	if responsesThisWeek > responsesLastWeek {
		var pct int
		if responsesLastWeek == 0 {
			pct = responsesThisWeek * 100
		} else {
			pct = int(math.Round(float64(responsesThisWeek-responsesLastWeek) / float64(responsesLastWeek) * 100))
		}
		weeklyGrowth = &pct
	}

	expected := activeSurveyors * activeSurveys
	if expected < 1 {
		expected = 1
	}
	completionRate := int(math.Round(float64(len(responses)) / float64(expected) * 100))

	progress := make([]surveyProgress, 0, len(surveys))
	for _, s := range surveys {
		assignments, aerr := h.store.ListAssignmentsBySurvey(ctx, s.ID)
		if aerr != nil {
			h.logger.Error("failed to list assignments", zap.Int("survey_id", s.ID), zap.Error(aerr))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		count := 0
		for _, resp := range responses {
			if resp.SurveyID == s.ID {
				count++
			}
		}
		pct := 0
		if len(assignments) > 0 {
			pct = int(math.Round(float64(count) / float64(len(assignments)) * 100))
			if pct > 100 {
				pct = 100
			}
		}
		progress = append(progress, surveyProgress{ID: s.ID, Name: s.Name, Status: s.Status, CompletionPercentage: pct})
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ActiveSurveyors:        activeSurveyors,
		TotalSurveyors:         totalSurveyors,
		ActiveSurveys:          activeSurveys,
		TotalSurveys:           len(surveys),
		ResponsesToday:         responsesToday,
		CompletionRate:         completionRate,
		SurveyProgress:         progress,
		ResponsesThisWeek:      responsesThisWeek,
		ResponsesLastWeek:      responsesLastWeek,
		WeeklyGrowthPercentage: weeklyGrowth,
	})
}
