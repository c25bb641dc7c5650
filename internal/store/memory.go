package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/braianpx/fieldtrack/internal/models"
)

// Memory is an in-memory Store. It backs tests and local development without
// a database; IDs are assigned monotonically per table.
type Memory struct {
	mu sync.Mutex

	users       map[int]models.User
	zones       map[int]models.Zone
	surveys     map[int]models.Survey
	assignments map[int]models.SurveyAssignment
	responses   map[int]models.SurveyResponse
	locations   map[int]models.SurveyorLocation // keyed by userID

	nextUserID       int
	nextZoneID       int
	nextSurveyID     int
	nextAssignmentID int
	nextResponseID   int
	nextLocationID   int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:            make(map[int]models.User),
		zones:            make(map[int]models.Zone),
		surveys:          make(map[int]models.Survey),
		assignments:      make(map[int]models.SurveyAssignment),
		responses:        make(map[int]models.SurveyResponse),
		locations:        make(map[int]models.SurveyorLocation),
		nextUserID:       1,
		nextZoneID:       1,
		nextSurveyID:     1,
		nextAssignmentID: 1,
		nextResponseID:   1,
		nextLocationID:   1,
	}
}

var _ Store = (*Memory)(nil)

func (m *Memory) GetUser(_ context.Context, id int) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CreateUser(_ context.Context, username, passwordHash, name string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{
		ID:        m.nextUserID,
		Username:  username,
		Password:  passwordHash,
		Name:      name,
		Role:      role,
		CreatedAt: time.Now(),
	}
	m.nextUserID++
	m.users[u.ID] = u
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for id := 1; id < m.nextUserID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Memory) UpdateUser(_ context.Context, id int, upd UserUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Password != nil {
		u.Password = *upd.Password
	}
	m.users[id] = u
	return &u, nil
}

func (m *Memory) DeleteUser(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *Memory) GetZone(_ context.Context, id int) (*models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &z, nil
}

func (m *Memory) ListZones(_ context.Context) ([]models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Zone, 0, len(m.zones))
	for id := 1; id < m.nextZoneID; id++ {
		if z, ok := m.zones[id]; ok {
			out = append(out, z)
		}
	}
	return out, nil
}

func (m *Memory) CreateZone(_ context.Context, name, description string, coordinates []byte) (*models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z := models.Zone{
		ID:          m.nextZoneID,
		Name:        name,
		Description: description,
		Coordinates: append([]byte(nil), coordinates...),
		CreatedAt:   time.Now(),
	}
	m.nextZoneID++
	m.zones[z.ID] = z
	return &z, nil
}

func (m *Memory) UpdateZone(_ context.Context, id int, upd ZoneUpdate) (*models.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		z.Name = *upd.Name
	}
	if upd.Description != nil {
		z.Description = *upd.Description
	}
	if upd.Coordinates != nil {
		z.Coordinates = append([]byte(nil), upd.Coordinates...)
	}
	m.zones[id] = z
	return &z, nil
}

func (m *Memory) DeleteZone(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zones[id]; !ok {
		return ErrNotFound
	}
	delete(m.zones, id)
	return nil
}

func (m *Memory) GetSurvey(_ context.Context, id int) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) ListSurveys(_ context.Context) ([]models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Survey, 0, len(m.surveys))
	for id := 1; id < m.nextSurveyID; id++ {
		if s, ok := m.surveys[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) CreateSurvey(_ context.Context, name, description string, questions []byte, zoneID *int, status models.SurveyStatus) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := models.Survey{
		ID:          m.nextSurveyID,
		Name:        name,
		Description: description,
		Questions:   append([]byte(nil), questions...),
		ZoneID:      zoneID,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	m.nextSurveyID++
	m.surveys[s.ID] = s
	return &s, nil
}

func (m *Memory) UpdateSurvey(_ context.Context, id int, upd SurveyUpdate) (*models.Survey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		s.Name = *upd.Name
	}
	if upd.Description != nil {
		s.Description = *upd.Description
	}
	if upd.Questions != nil {
		s.Questions = append([]byte(nil), upd.Questions...)
	}
	if upd.ZoneID != nil {
		s.ZoneID = upd.ZoneID
	}
	if upd.Status != nil {
		s.Status = *upd.Status
	}
	m.surveys[id] = s
	return &s, nil
}

func (m *Memory) DeleteSurvey(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.surveys[id]; !ok {
		return ErrNotFound
	}
	delete(m.surveys, id)
	return nil
}

func (m *Memory) AssignSurvey(_ context.Context, surveyID, userID, assignedBy int) (*models.SurveyAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := models.SurveyAssignment{
		ID:         m.nextAssignmentID,
		SurveyID:   surveyID,
		UserID:     userID,
		AssignedBy: assignedBy,
		AssignedAt: time.Now(),
	}
	m.nextAssignmentID++
	m.assignments[a.ID] = a
	return &a, nil
}

func (m *Memory) ListAssignmentsBySurvey(_ context.Context, surveyID int) ([]models.SurveyAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SurveyAssignment
	for id := 1; id < m.nextAssignmentID; id++ {
		if a, ok := m.assignments[id]; ok && a.SurveyID == surveyID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) ListAssignmentsByUser(_ context.Context, userID int) ([]models.SurveyAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SurveyAssignment
	for id := 1; id < m.nextAssignmentID; id++ {
		if a, ok := m.assignments[id]; ok && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Memory) DeleteAssignmentsBySurvey(_ context.Context, surveyID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.assignments {
		if a.SurveyID == surveyID {
			delete(m.assignments, id)
		}
	}
	return nil
}

func (m *Memory) CreateResponse(_ context.Context, in NewResponse) (*models.SurveyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := models.SurveyResponse{
		ID:             m.nextResponseID,
		SurveyID:       in.SurveyID,
		UserID:         in.UserID,
		Responses:      append([]models.Answer(nil), in.Responses...),
		Location:       in.Location,
		RespondentInfo: in.RespondentInfo,
		CreatedAt:      time.Now(),
	}
	m.nextResponseID++
	m.responses[r.ID] = r
	return &r, nil
}

func (m *Memory) ListResponses(_ context.Context) ([]models.SurveyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SurveyResponse, 0, len(m.responses))
	for id := 1; id < m.nextResponseID; id++ {
		if r, ok := m.responses[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListResponsesBySurvey(_ context.Context, surveyID int) ([]models.SurveyResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SurveyResponse
	for id := 1; id < m.nextResponseID; id++ {
		if r, ok := m.responses[id]; ok && r.SurveyID == surveyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) UpsertLocation(_ context.Context, userID int, p *models.Point, isActive bool) (*models.SurveyorLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[userID]
	if !ok {
		loc = models.SurveyorLocation{
			ID:       m.nextLocationID,
			UserID:   userID,
			Location: models.DefaultPoint(),
		}
		m.nextLocationID++
	}
	if p != nil {
		loc.Location = *p
	}
	loc.IsActive = isActive
	loc.UpdatedAt = time.Now()
	m.locations[userID] = loc
	return &loc, nil
}

func (m *Memory) GetLocation(_ context.Context, userID int) (*models.SurveyorLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &loc, nil
}

func (m *Memory) GetActiveLocations(_ context.Context) ([]models.SurveyorLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SurveyorLocation
	for _, loc := range m.locations {
		if loc.IsActive {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
