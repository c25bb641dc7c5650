package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects a pool and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

var _ Store = (*Postgres)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL,
	name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'surveyor',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS zones (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	coordinates JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS surveys (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	questions JSONB NOT NULL,
	zone_id INTEGER REFERENCES zones(id),
	status TEXT NOT NULL DEFAULT 'draft',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS survey_assignments (
	id SERIAL PRIMARY KEY,
	survey_id INTEGER NOT NULL REFERENCES surveys(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	assigned_by INTEGER NOT NULL REFERENCES users(id),
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS survey_responses (
	id SERIAL PRIMARY KEY,
	survey_id INTEGER NOT NULL REFERENCES surveys(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	responses JSONB NOT NULL,
	location JSONB,
	respondent_info JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS surveyor_locations (
	id SERIAL PRIMARY KEY,
	user_id INTEGER NOT NULL UNIQUE REFERENCES users(id),
	location JSONB NOT NULL DEFAULT '{"type":"Point","coordinates":[0,0]}',
	is_active BOOLEAN NOT NULL DEFAULT true,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables when they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const userCols = "id, username, password, name, role, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id))
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE username = $1", username))
}

func (p *Postgres) CreateUser(ctx context.Context, username, passwordHash, name string, role models.Role) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx,
		"INSERT INTO users (username, password, name, role) VALUES ($1, $2, $3, $4) RETURNING "+userCols,
		username, passwordHash, name, role))
}

func (p *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+userCols+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	out := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateUser(ctx context.Context, id int, upd UserUpdate) (*models.User, error) {
	return scanUser(p.pool.QueryRow(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			username = COALESCE($3, username),
			role = COALESCE($4, role),
			password = COALESCE($5, password)
		WHERE id = $1
		RETURNING `+userCols,
		id, upd.Name, upd.Username, upd.Role, upd.Password))
}

func (p *Postgres) DeleteUser(ctx context.Context, id int) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const zoneCols = "id, name, COALESCE(description, ''), coordinates, created_at"

func scanZone(row pgx.Row) (*models.Zone, error) {
	var z models.Zone
	var coords []byte
	if err := row.Scan(&z.ID, &z.Name, &z.Description, &coords, &z.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	z.Coordinates = coords
	return &z, nil
}

func (p *Postgres) GetZone(ctx context.Context, id int) (*models.Zone, error) {
	return scanZone(p.pool.QueryRow(ctx, "SELECT "+zoneCols+" FROM zones WHERE id = $1", id))
}

func (p *Postgres) ListZones(ctx context.Context) ([]models.Zone, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+zoneCols+" FROM zones ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	defer rows.Close()

	out := make([]models.Zone, 0)
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *z)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateZone(ctx context.Context, name, description string, coordinates []byte) (*models.Zone, error) {
	return scanZone(p.pool.QueryRow(ctx,
		"INSERT INTO zones (name, description, coordinates) VALUES ($1, $2, $3) RETURNING "+zoneCols,
		name, description, coordinates))
}

func (p *Postgres) UpdateZone(ctx context.Context, id int, upd ZoneUpdate) (*models.Zone, error) {
	return scanZone(p.pool.QueryRow(ctx, `
		UPDATE zones SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			coordinates = COALESCE($4, coordinates)
		WHERE id = $1
		RETURNING `+zoneCols,
		id, upd.Name, upd.Description, upd.Coordinates))
}

func (p *Postgres) DeleteZone(ctx context.Context, id int) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM zones WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete zone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const surveyCols = "id, name, COALESCE(description, ''), questions, zone_id, status, created_at"

func scanSurvey(row pgx.Row) (*models.Survey, error) {
	var s models.Survey
	var questions []byte
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &questions, &s.ZoneID, &s.Status, &s.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	s.Questions = questions
	return &s, nil
}

func (p *Postgres) GetSurvey(ctx context.Context, id int) (*models.Survey, error) {
	return scanSurvey(p.pool.QueryRow(ctx, "SELECT "+surveyCols+" FROM surveys WHERE id = $1", id))
}

func (p *Postgres) ListSurveys(ctx context.Context) ([]models.Survey, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+surveyCols+" FROM surveys ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}
	defer rows.Close()

	out := make([]models.Survey, 0)
	for rows.Next() {
		s, err := scanSurvey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateSurvey(ctx context.Context, name, description string, questions []byte, zoneID *int, status models.SurveyStatus) (*models.Survey, error) {
	return scanSurvey(p.pool.QueryRow(ctx,
		"INSERT INTO surveys (name, description, questions, zone_id, status) VALUES ($1, $2, $3, $4, $5) RETURNING "+surveyCols,
		name, description, questions, zoneID, status))
}

func (p *Postgres) UpdateSurvey(ctx context.Context, id int, upd SurveyUpdate) (*models.Survey, error) {
	return scanSurvey(p.pool.QueryRow(ctx, `
		UPDATE surveys SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			questions = COALESCE($4, questions),
			zone_id = COALESCE($5, zone_id),
			status = COALESCE($6, status)
		WHERE id = $1
		RETURNING `+surveyCols,
		id, upd.Name, upd.Description, upd.Questions, upd.ZoneID, upd.Status))
}

func (p *Postgres) DeleteSurvey(ctx context.Context, id int) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM surveys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete survey: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const assignmentCols = "id, survey_id, user_id, assigned_by, assigned_at"

func (p *Postgres) AssignSurvey(ctx context.Context, surveyID, userID, assignedBy int) (*models.SurveyAssignment, error) {
	var a models.SurveyAssignment
	err := p.pool.QueryRow(ctx,
		"INSERT INTO survey_assignments (survey_id, user_id, assigned_by) VALUES ($1, $2, $3) RETURNING "+assignmentCols,
		surveyID, userID, assignedBy).
		Scan(&a.ID, &a.SurveyID, &a.UserID, &a.AssignedBy, &a.AssignedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to assign survey: %w", err)
	}
	return &a, nil
}

func (p *Postgres) listAssignments(ctx context.Context, where string, arg any) ([]models.SurveyAssignment, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+assignmentCols+" FROM survey_assignments WHERE "+where+" ORDER BY id", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := make([]models.SurveyAssignment, 0)
	for rows.Next() {
		var a models.SurveyAssignment
		if err := rows.Scan(&a.ID, &a.SurveyID, &a.UserID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) ListAssignmentsBySurvey(ctx context.Context, surveyID int) ([]models.SurveyAssignment, error) {
	return p.listAssignments(ctx, "survey_id = $1", surveyID)
}

func (p *Postgres) ListAssignmentsByUser(ctx context.Context, userID int) ([]models.SurveyAssignment, error) {
	return p.listAssignments(ctx, "user_id = $1", userID)
}

func (p *Postgres) DeleteAssignmentsBySurvey(ctx context.Context, surveyID int) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM survey_assignments WHERE survey_id = $1", surveyID); err != nil {
		return fmt.Errorf("failed to delete assignments: %w", err)
	}
	return nil
}

const responseCols = "id, survey_id, user_id, responses, location, respondent_info, created_at"

func scanResponse(row pgx.Row) (*models.SurveyResponse, error) {
	var r models.SurveyResponse
	var answers, location, respondent []byte
	if err := row.Scan(&r.ID, &r.SurveyID, &r.UserID, &answers, &location, &respondent, &r.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(answers, &r.Responses); err != nil {
		return nil, fmt.Errorf("failed to decode responses: %w", err)
	}
	if location != nil {
		r.Location = &models.Point{}
		if err := json.Unmarshal(location, r.Location); err != nil {
			return nil, fmt.Errorf("failed to decode location: %w", err)
		}
	}
	if err := json.Unmarshal(respondent, &r.RespondentInfo); err != nil {
		return nil, fmt.Errorf("failed to decode respondent info: %w", err)
	}
	return &r, nil
}

func (p *Postgres) CreateResponse(ctx context.Context, in NewResponse) (*models.SurveyResponse, error) {
	answers, err := json.Marshal(in.Responses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode responses: %w", err)
	}
	respondent, err := json.Marshal(in.RespondentInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to encode respondent info: %w", err)
	}
	var location []byte
	if in.Location != nil {
		if location, err = json.Marshal(in.Location); err != nil {
			return nil, fmt.Errorf("failed to encode location: %w", err)
		}
	}
	return scanResponse(p.pool.QueryRow(ctx,
		"INSERT INTO survey_responses (survey_id, user_id, responses, location, respondent_info) VALUES ($1, $2, $3, $4, $5) RETURNING "+responseCols,
		in.SurveyID, in.UserID, answers, location, respondent))
}

func (p *Postgres) listResponses(ctx context.Context, query string, args ...any) ([]models.SurveyResponse, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	out := make([]models.SurveyResponse, 0)
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *Postgres) ListResponses(ctx context.Context) ([]models.SurveyResponse, error) {
	return p.listResponses(ctx, "SELECT "+responseCols+" FROM survey_responses ORDER BY id")
}

func (p *Postgres) ListResponsesBySurvey(ctx context.Context, surveyID int) ([]models.SurveyResponse, error) {
	return p.listResponses(ctx, "SELECT "+responseCols+" FROM survey_responses WHERE survey_id = $1 ORDER BY id", surveyID)
}

const locationCols = "id, user_id, location, is_active, updated_at"

func scanLocation(row pgx.Row) (*models.SurveyorLocation, error) {
	var loc models.SurveyorLocation
	var point []byte
	if err := row.Scan(&loc.ID, &loc.UserID, &point, &loc.IsActive, &loc.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(point, &loc.Location); err != nil {
		return nil, fmt.Errorf("failed to decode location point: %w", err)
	}
	return &loc, nil
}

func (p *Postgres) UpsertLocation(ctx context.Context, userID int, pt *models.Point, isActive bool) (*models.SurveyorLocation, error) {
	var point []byte
	if pt != nil {
		var err error
		if point, err = json.Marshal(pt); err != nil {
			return nil, fmt.Errorf("failed to encode point: %w", err)
		}
	}
	// COALESCE keeps the stored coordinates when no point is supplied, so a
	// disconnect can flip is_active without losing the last position.
	return scanLocation(p.pool.QueryRow(ctx, `
		INSERT INTO surveyor_locations (user_id, location, is_active)
		VALUES ($1, COALESCE($2, '{"type":"Point","coordinates":[0,0]}'::jsonb), $3)
		ON CONFLICT (user_id) DO UPDATE SET
			location = COALESCE($2, surveyor_locations.location),
			is_active = $3,
			updated_at = now()
		RETURNING `+locationCols,
		userID, point, isActive))
}

func (p *Postgres) GetLocation(ctx context.Context, userID int) (*models.SurveyorLocation, error) {
	return scanLocation(p.pool.QueryRow(ctx, "SELECT "+locationCols+" FROM surveyor_locations WHERE user_id = $1", userID))
}

func (p *Postgres) GetActiveLocations(ctx context.Context) ([]models.SurveyorLocation, error) {
	rows, err := p.pool.Query(ctx, "SELECT "+locationCols+" FROM surveyor_locations WHERE is_active ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list active locations: %w", err)
	}
	defer rows.Close()

	out := make([]models.SurveyorLocation, 0)
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *loc)
	}
	return out, rows.Err()
}
