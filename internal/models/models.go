package models

import (
	"encoding/json"
	"time"
)

// Role is the access level attached to a user account.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleSurveyor   Role = "surveyor"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSupervisor || r == RoleSurveyor
}

// SurveyStatus is the lifecycle state of a survey.
type SurveyStatus string

const (
	SurveyDraft     SurveyStatus = "draft"
	SurveyActive    SurveyStatus = "active"
	SurveyCompleted SurveyStatus = "completed"
)

// User is an account that can log in: an admin, a supervisor or a field
// surveyor. The password hash never leaves the server.
type User struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the subset of User that gets joined into location broadcasts.
func (u *User) Profile() UserProfile {
	return UserProfile{ID: u.ID, Name: u.Name, Username: u.Username, Role: u.Role}
}

// UserProfile is the public projection of a user.
type UserProfile struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Zone is a geographic work area. Coordinates hold a GeoJSON polygon that the
// server stores verbatim; no geometry is computed here.
type Zone struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Coordinates json.RawMessage `json:"coordinates"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Survey is a questionnaire assigned to surveyors. Questions is an ordered
// array of question objects, stored verbatim.
type Survey struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Questions   json.RawMessage `json:"questions"`
	ZoneID      *int            `json:"zoneId,omitempty"`
	Status      SurveyStatus    `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SurveyAssignment links a surveyor to a survey.
type SurveyAssignment struct {
	ID         int       `json:"id"`
	SurveyID   int       `json:"surveyId"`
	UserID     int       `json:"userId"`
	AssignedBy int       `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
}

// Answer is one answered question. The answer value may be a string, a list
// of strings or a number depending on the question type, so it stays raw.
type Answer struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

// RespondentInfo describes the person who answered a survey in the field.
type RespondentInfo struct {
	Name   string `json:"name"`
	Age    string `json:"age,omitempty"`
	Gender string `json:"gender,omitempty"`
	Email  string `json:"email,omitempty"`
}

// SurveyResponse is a completed questionnaire. Immutable once created as far
// as the realtime layer is concerned.
type SurveyResponse struct {
	ID             int            `json:"id"`
	SurveyID       int            `json:"surveyId"`
	UserID         int            `json:"userId"`
	Responses      []Answer       `json:"responses"`
	Location       *Point         `json:"location"`
	RespondentInfo RespondentInfo `json:"respondentInfo"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// SurveyorLocation is the last known position of a surveyor. Exactly one row
// per user; going inactive flips IsActive instead of deleting the row so the
// last position is retained.
type SurveyorLocation struct {
	ID        int       `json:"id"`
	UserID    int       `json:"userId"`
	Location  Point     `json:"location"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LocationWithUser is a location row joined with its owner's profile, the
// unit of the surveyor-locations snapshot.
type LocationWithUser struct {
	SurveyorLocation
	User *UserProfile `json:"user,omitempty"`
}
