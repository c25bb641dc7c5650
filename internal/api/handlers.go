// Package api is the ordinary REST surface: account handling and CRUD for
// users, zones, surveys, assignments and responses. Its one hook into the
// realtime core is notifying the hub after a survey response is persisted.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

// Broadcaster is what the REST layer needs from the realtime core.
type Broadcaster interface {
	NotifyResponsesChanged()
}

// Handlers carries the dependencies shared by all REST endpoints.
type Handlers struct {
	store     store.Store
	hub       Broadcaster
	logger    *zap.Logger
	jwtSecret string
	jwtTTL    time.Duration
	loc       *time.Location
	now       func() time.Time
}

// New wires the REST handlers. loc buckets the stats endpoint's day and week
// boundaries.
func New(st store.Store, hub Broadcaster, logger *zap.Logger, jwtSecret string, jwtTTL time.Duration, loc *time.Location) *Handlers {
	return &Handlers{
		store:     st,
		hub:       hub,
		logger:    logger,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		loc:       loc,
		now:       time.Now,
	}
}

// Routes mounts every REST endpoint on a chi router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/api/register", h.register)
	r.Post("/api/login", h.login)
	r.With(h.requireAuth).Get("/api/user", h.currentUser)

	staff := h.requireRoles(models.RoleAdmin, models.RoleSupervisor)
	admin := h.requireRoles(models.RoleAdmin)

	r.With(staff).Get("/api/users", h.listUsers)
	r.With(admin).Patch("/api/users/{id}", h.updateUser)
	r.With(admin).Delete("/api/users/{id}", h.deleteUser)

	r.With(h.requireAuth).Get("/api/zones", h.listZones)
	r.With(h.requireAuth).Get("/api/zones/{id}", h.getZone)
	r.With(staff).Post("/api/zones", h.createZone)
	r.With(staff).Patch("/api/zones/{id}", h.updateZone)
	r.With(staff).Delete("/api/zones/{id}", h.deleteZone)

	r.With(h.requireAuth).Get("/api/surveys", h.listSurveys)
	r.With(h.requireAuth).Get("/api/surveys/{id}", h.getSurvey)
	r.With(staff).Post("/api/surveys", h.createSurvey)
	r.With(staff).Patch("/api/surveys/{id}", h.updateSurvey)
	r.With(staff).Get("/api/surveys/{id}/assignments", h.listSurveyAssignments)
	r.With(staff).Delete("/api/surveys/{id}/assignments", h.deleteSurveyAssignments)

	r.With(staff).Post("/api/survey-assignments", h.createAssignment)
	r.With(h.requireAuth).Get("/api/user-assignments", h.listUserAssignments)

	r.With(h.requireAuth).Post("/api/survey-responses", h.createResponse)
	r.With(staff).Get("/api/survey-responses", h.listResponses)
	r.With(staff).Get("/api/survey-responses/{surveyId}", h.listSurveyResponses)

	r.With(staff).Get("/api/surveyor-locations", h.listSurveyorLocations)
	r.With(staff).Get("/api/stats", h.stats)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func urlID(r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
