package sessions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kurban-cebimde/live-backend/internal/models"
)

const sessionColumns = `id, title, room_name, status, scheduled_at, started_at, ended_at,
	publisher_id, donation_ids, media_ids, last_alert, recording, backup_live, created_at, updated_at`

// Repository persists sessions in PostgreSQL. It implements Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new session row.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO live_sessions (id, title, room_name, status, scheduled_at, started_at, ended_at,
		publisher_id, donation_ids, media_ids, last_alert, recording, backup_live, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())`
	_, err := r.pool.Exec(ctx, q,
		s.ID, s.Title, s.RoomName, s.Status, s.ScheduledAt, s.StartedAt, s.EndedAt,
		s.PublisherID, s.DonationIDs, s.MediaIDs, s.LastAlert, s.Recording, s.BackupLive)
	return err
}

// Load returns a session by id, or nil when absent.
func (r *Repository) Load(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// LoadByRoomName returns the session bound to a provider room, or nil when
// absent. Used by webhook dispatch, where events carry only the room name.
func (r *Repository) LoadByRoomName(ctx context.Context, roomName string) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM live_sessions WHERE room_name = $1
		ORDER BY created_at DESC LIMIT 1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, roomName))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Save updates all mutable fields of a session.
func (r *Repository) Save(ctx context.Context, s *models.Session) error {
	const q = `UPDATE live_sessions SET title = $2, room_name = $3, status = $4, scheduled_at = $5,
		started_at = $6, ended_at = $7, publisher_id = $8, donation_ids = $9, media_ids = $10,
		last_alert = $11, recording = $12, backup_live = $13, updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q,
		s.ID, s.Title, s.RoomName, s.Status, s.ScheduledAt, s.StartedAt, s.EndedAt,
		s.PublisherID, s.DonationIDs, s.MediaIDs, s.LastAlert, s.Recording, s.BackupLive)
	return err
}

// List returns the most recent sessions.
func (r *Repository) List(ctx context.Context, limit int) ([]*models.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	const q = `SELECT ` + sessionColumns + ` FROM live_sessions ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a session row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM live_sessions WHERE id = $1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.Title, &s.RoomName, &s.Status, &s.ScheduledAt, &s.StartedAt, &s.EndedAt,
		&s.PublisherID, &s.DonationIDs, &s.MediaIDs, &s.LastAlert, &s.Recording, &s.BackupLive,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ Store = (*Repository)(nil)
