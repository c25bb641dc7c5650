// Package store defines the durable store consumed by the realtime core and
// the REST layer, with a Postgres implementation for production and an
// in-memory one for tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/braianpx/fieldtrack/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// UserUpdate is a partial update; nil fields are left untouched. Password, if
// set, must already be hashed by the caller.
type UserUpdate struct {
	Name     *string
	Username *string
	Role     *models.Role
	Password *string
}

// ZoneUpdate is a partial zone update.
type ZoneUpdate struct {
	Name        *string
	Description *string
	Coordinates []byte
}

// SurveyUpdate is a partial survey update.
type SurveyUpdate struct {
	Name        *string
	Description *string
	Questions   []byte
	ZoneID      *int
	Status      *models.SurveyStatus
}

// NewResponse is the input for creating a survey response; the store assigns
// ID and CreatedAt.
type NewResponse struct {
	SurveyID       int
	UserID         int
	Responses      []models.Answer
	Location       *models.Point
	RespondentInfo models.RespondentInfo
}

// Store is the durable store contract. Every method completes before the
// caller proceeds; concurrency control on the same key (notably the
// read-modify-write in UpsertLocation) is the implementation's problem.
type Store interface {
	// Users.
	GetUser(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash, name string, role models.Role) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int, upd UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id int) error

	// Zones.
	GetZone(ctx context.Context, id int) (*models.Zone, error)
	ListZones(ctx context.Context) ([]models.Zone, error)
	CreateZone(ctx context.Context, name, description string, coordinates []byte) (*models.Zone, error)
	UpdateZone(ctx context.Context, id int, upd ZoneUpdate) (*models.Zone, error)
	DeleteZone(ctx context.Context, id int) error

	// Surveys.
	GetSurvey(ctx context.Context, id int) (*models.Survey, error)
	ListSurveys(ctx context.Context) ([]models.Survey, error)
	CreateSurvey(ctx context.Context, name, description string, questions []byte, zoneID *int, status models.SurveyStatus) (*models.Survey, error)
	UpdateSurvey(ctx context.Context, id int, upd SurveyUpdate) (*models.Survey, error)
	DeleteSurvey(ctx context.Context, id int) error

	// Assignments.
	AssignSurvey(ctx context.Context, surveyID, userID, assignedBy int) (*models.SurveyAssignment, error)
	ListAssignmentsBySurvey(ctx context.Context, surveyID int) ([]models.SurveyAssignment, error)
	ListAssignmentsByUser(ctx context.Context, userID int) ([]models.SurveyAssignment, error)
	DeleteAssignmentsBySurvey(ctx context.Context, surveyID int) error

	// Responses.
	CreateResponse(ctx context.Context, in NewResponse) (*models.SurveyResponse, error)
	ListResponses(ctx context.Context) ([]models.SurveyResponse, error)
	ListResponsesBySurvey(ctx context.Context, surveyID int) ([]models.SurveyResponse, error)

	// Locations. UpsertLocation keeps the one-row-per-user invariant: it
	// creates on first call and updates after, always refreshing UpdatedAt.
	// A nil point preserves the stored coordinates (placeholder on create),
	// which is how disconnects deactivate without losing the last position.
	UpsertLocation(ctx context.Context, userID int, p *models.Point, isActive bool) (*models.SurveyorLocation, error)
	GetLocation(ctx context.Context, userID int) (*models.SurveyorLocation, error)
	GetActiveLocations(ctx context.Context) ([]models.SurveyorLocation, error)
}
