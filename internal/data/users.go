package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is a notification target. Read-only to the sync engine; account
// management lives in the credential/permission layer.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	IsActive bool      `json:"is_active"`

	EmailNotifications        bool `json:"email_notifications"`
	EventNotifications        bool `json:"event_notifications"`
	CameraStatusNotifications bool `json:"camera_status_notifications"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserModel struct {
	DB DBTX
}

// ListActive returns every active user with their channel preferences.
// The dispatcher filters per-signal eligibility itself.
func (m UserModel) ListActive(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, email, username, is_active,
		       email_notifications, event_notifications, camera_status_notifications,
		       created_at, updated_at
		FROM users
		WHERE is_active = TRUE
		ORDER BY created_at`

	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.IsActive,
			&u.EmailNotifications, &u.EventNotifications, &u.CameraStatusNotifications,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (m UserModel) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, username, is_active,
		       email_notifications, event_notifications, camera_status_notifications,
		       created_at, updated_at
		FROM users
		WHERE id = $1`

	var u User
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.Username, &u.IsActive,
		&u.EmailNotifications, &u.EventNotifications, &u.CameraStatusNotifications,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
