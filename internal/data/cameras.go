package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Camera is a managed event camera. The sync engine reads these;
// is_online and last_seen are owned by the health monitor.
type Camera struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"` // base URL, e.g. http://10.0.0.12:8080
	Username string    `json:"-"`
	Password string    `json:"-"`

	IsActive bool       `json:"is_active"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CameraModel struct {
	DB DBTX
}

const cameraColumns = `
	id, name, address, username, password, is_active, is_online, last_seen, created_at, updated_at`

func scanCamera(row interface{ Scan(...any) error }) (*Camera, error) {
	var c Camera
	var lastSeen sql.NullTime
	err := row.Scan(
		&c.ID, &c.Name, &c.Address, &c.Username, &c.Password,
		&c.IsActive, &c.IsOnline, &lastSeen, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		c.LastSeen = &lastSeen.Time
	}
	return &c, nil
}

func (m CameraModel) Create(ctx context.Context, c *Camera) error {
	query := `
		INSERT INTO cameras (name, address, username, password, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	err := m.DB.QueryRowContext(ctx, query,
		c.Name, c.Address, c.Username, c.Password, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func (m CameraModel) GetByID(ctx context.Context, id uuid.UUID) (*Camera, error) {
	query := `SELECT` + cameraColumns + ` FROM cameras WHERE id = $1`
	c, err := scanCamera(m.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return c, err
}

// ListActive returns active cameras in creation order. The first row is
// the fallback target for unattributed drop-directory files, so the
// ordering here is load-bearing.
func (m CameraModel) ListActive(ctx context.Context) ([]*Camera, error) {
	query := `SELECT` + cameraColumns + ` FROM cameras WHERE is_active = TRUE ORDER BY created_at`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []*Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}

// List returns every camera, active or not, in creation order.
func (m CameraModel) List(ctx context.Context) ([]*Camera, error) {
	query := `SELECT` + cameraColumns + ` FROM cameras ORDER BY created_at`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []*Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}

// SetActive enables or disables a camera for sync and health sweeps.
func (m CameraModel) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE cameras SET is_active = $1, updated_at = NOW() WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetOnline flips the online flag; last_seen advances only on success.
// Called exclusively by the health monitor.
func (m CameraModel) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	query := `
		UPDATE cameras
		SET is_online = $1,
		    last_seen = CASE WHEN $1 THEN NOW() ELSE last_seen END,
		    updated_at = NOW()
		WHERE id = $2`
	res, err := m.DB.ExecContext(ctx, query, online, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}
