package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Event is one physical capture, reconciled from the camera API and the
// drop directory. The sync engine is the only writer of camera_id
// inference and creation; presence/lifecycle flags are mutated through
// the dedicated methods below.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	CameraID      *uuid.UUID `json:"camera_id"` // nil until attributed
	Filename      string     `json:"filename"`  // raw, as first reported
	NormalizedKey string     `json:"normalized_key"`
	EventName     string     `json:"event_name,omitempty"`
	TriggeredAt   time.Time  `json:"triggered_at"`

	PlaybackSeconds int    `json:"playback_seconds,omitempty"`
	VideoExt        string `json:"video_ext,omitempty"`
	ThumbExt        string `json:"thumb_ext,omitempty"`

	FilePath *string `json:"file_path,omitempty"`
	FileSize *int64  `json:"file_size,omitempty"`

	PresentOnCamera bool `json:"present_on_camera"`
	PresentLocally  bool `json:"present_locally"`
	IsPlayed        bool `json:"is_played"`
	IsDeleted       bool `json:"is_deleted"`

	Metadata json.RawMessage `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOrphaned derives the orphan state: gone from the camera and never
// landed (or since removed) locally.
func (e *Event) IsOrphaned() bool {
	return !e.PresentOnCamera && !e.PresentLocally
}

type EventModel struct {
	DB DBTX
}

const eventColumns = `
	id, camera_id, filename, normalized_key, event_name, triggered_at,
	playback_seconds, video_ext, thumb_ext, file_path, file_size,
	present_on_camera, present_locally, is_played, is_deleted,
	metadata, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var cameraID sql.NullString
	var filePath sql.NullString
	var fileSize sql.NullInt64
	var meta []byte

	err := row.Scan(
		&e.ID, &cameraID, &e.Filename, &e.NormalizedKey, &e.EventName, &e.TriggeredAt,
		&e.PlaybackSeconds, &e.VideoExt, &e.ThumbExt, &filePath, &fileSize,
		&e.PresentOnCamera, &e.PresentLocally, &e.IsPlayed, &e.IsDeleted,
		&meta, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cameraID.Valid {
		id, err := uuid.Parse(cameraID.String)
		if err != nil {
			return nil, fmt.Errorf("events: bad camera_id %q: %w", cameraID.String, err)
		}
		e.CameraID = &id
	}
	if filePath.Valid {
		e.FilePath = &filePath.String
	}
	if fileSize.Valid {
		e.FileSize = &fileSize.Int64
	}
	e.Metadata = meta
	return &e, nil
}

// Insert creates a new event row. A unique violation on the normalized
// key (another pass won the race) is returned as ErrDuplicateKey so the
// caller can re-read and merge instead of duplicating.
func (m EventModel) Insert(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO events (
			camera_id, filename, normalized_key, event_name, triggered_at,
			playback_seconds, video_ext, thumb_ext, file_path, file_size,
			present_on_camera, present_locally, is_played, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	var cameraID any
	if e.CameraID != nil {
		cameraID = *e.CameraID
	}
	meta := e.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	err := m.DB.QueryRowContext(ctx, query,
		cameraID, e.Filename, e.NormalizedKey, e.EventName, e.TriggeredAt,
		e.PlaybackSeconds, e.VideoExt, e.ThumbExt, e.FilePath, e.FileSize,
		e.PresentOnCamera, e.PresentLocally, e.IsPlayed, []byte(meta),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (m EventModel) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	query := `SELECT` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(m.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return e, err
}

// GetByCameraAndFilename matches an event by the exact raw filename the
// given camera reported. Used as the fast path before key matching.
func (m EventModel) GetByCameraAndFilename(ctx context.Context, cameraID uuid.UUID, filename string) (*Event, error) {
	query := `SELECT` + eventColumns + ` FROM events WHERE camera_id = $1 AND filename = $2 AND is_deleted = FALSE`
	e, err := scanEvent(m.DB.QueryRowContext(ctx, query, cameraID, filename))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return e, err
}

// GetByNormalizedKey finds the live event for a dedup key, regardless of
// which camera or source reported it first.
func (m EventModel) GetByNormalizedKey(ctx context.Context, key string) (*Event, error) {
	query := `SELECT` + eventColumns + ` FROM events WHERE normalized_key = $1 AND is_deleted = FALSE`
	e, err := scanEvent(m.DB.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	return e, err
}

// ListLive returns every non-deleted event. The reconciliation engine
// loads this once per pass for global key matching; catalog scale keeps
// this acceptable.
func (m EventModel) ListLive(ctx context.Context) ([]*Event, error) {
	query := `SELECT` + eventColumns + ` FROM events WHERE is_deleted = FALSE ORDER BY triggered_at`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// MarkOnCamera records camera-side evidence gathered this pass.
func (m EventModel) MarkOnCamera(ctx context.Context, id uuid.UUID, present bool) error {
	query := `UPDATE events SET present_on_camera = $1, updated_at = NOW() WHERE id = $2`
	return m.exec(ctx, query, present, id)
}

// MarkLocal records drop-directory evidence: the file landed locally.
func (m EventModel) MarkLocal(ctx context.Context, id uuid.UUID, path string, size int64) error {
	query := `
		UPDATE events
		SET present_locally = TRUE, file_path = $1, file_size = $2, updated_at = NOW()
		WHERE id = $3`
	return m.exec(ctx, query, path, size, id)
}

// Backfill fills descriptive fields that the first-reporting source did
// not know, without overwriting anything already set.
func (m EventModel) Backfill(ctx context.Context, id uuid.UUID, eventName, videoExt, thumbExt string, playbackSeconds int) error {
	query := `
		UPDATE events
		SET event_name       = COALESCE(NULLIF(event_name, ''), $1),
		    video_ext        = COALESCE(NULLIF(video_ext, ''), $2),
		    thumb_ext        = COALESCE(NULLIF(thumb_ext, ''), $3),
		    playback_seconds = CASE WHEN playback_seconds = 0 THEN $4 ELSE playback_seconds END,
		    updated_at       = NOW()
		WHERE id = $5`
	return m.exec(ctx, query, eventName, videoExt, thumbExt, playbackSeconds, id)
}

// AttributeCamera sets camera ownership on an event that was created
// from drop-directory evidence alone.
func (m EventModel) AttributeCamera(ctx context.Context, id, cameraID uuid.UUID) error {
	query := `UPDATE events SET camera_id = $1, updated_at = NOW() WHERE id = $2 AND camera_id IS NULL`
	_, err := m.DB.ExecContext(ctx, query, cameraID, id)
	return err
}

func (m EventModel) SetPlayed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE events SET is_played = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE`
	return m.exec(ctx, query, id)
}

// SoftDelete flags the row; it stays visible to retention cleanup only.
func (m EventModel) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE events SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE`
	return m.exec(ctx, query, id)
}

func (m EventModel) exec(ctx context.Context, query string, args ...any) error {
	res, err := m.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// EventFilter parameters for listing.
type EventFilter struct {
	CameraID       *uuid.UUID
	EventName      string // substring match
	Tag            string
	IsPlayed       *bool
	PresentLocally *bool
	Start          *time.Time
	End            *time.Time
}

// List retrieves paginated, filtered, non-deleted events newest first.
func (m EventModel) List(ctx context.Context, filter EventFilter, limit, offset int) ([]*Event, int, error) {
	where := "WHERE e.is_deleted = FALSE"
	args := []any{}
	nextArg := 1

	if filter.CameraID != nil {
		where += fmt.Sprintf(" AND e.camera_id = $%d", nextArg)
		args = append(args, *filter.CameraID)
		nextArg++
	}
	if filter.EventName != "" {
		where += fmt.Sprintf(" AND e.event_name ILIKE '%%' || $%d || '%%'", nextArg)
		args = append(args, filter.EventName)
		nextArg++
	}
	if filter.Tag != "" {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM event_tags et JOIN tags t ON t.id = et.tag_id
			WHERE et.event_id = e.id AND t.name = $%d)`, nextArg)
		args = append(args, filter.Tag)
		nextArg++
	}
	if filter.IsPlayed != nil {
		where += fmt.Sprintf(" AND e.is_played = $%d", nextArg)
		args = append(args, *filter.IsPlayed)
		nextArg++
	}
	if filter.PresentLocally != nil {
		where += fmt.Sprintf(" AND e.present_locally = $%d", nextArg)
		args = append(args, *filter.PresentLocally)
		nextArg++
	}
	if filter.Start != nil {
		where += fmt.Sprintf(" AND e.triggered_at >= $%d", nextArg)
		args = append(args, *filter.Start)
		nextArg++
	}
	if filter.End != nil {
		where += fmt.Sprintf(" AND e.triggered_at <= $%d", nextArg)
		args = append(args, *filter.End)
		nextArg++
	}

	countQuery := "SELECT count(*) FROM events e " + where
	var total int
	if err := m.DB.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT`+eventColumns+`
		FROM events e
		%s
		ORDER BY e.triggered_at DESC
		LIMIT $%d OFFSET $%d`, where, nextArg, nextArg+1)
	args = append(args, limit, offset)

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// DeleteAgedSoftDeleted hard-deletes soft-deleted events older than
// cutoff and returns their file paths so the caller can unlink them.
func (m EventModel) DeleteAgedSoftDeleted(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		DELETE FROM events
		WHERE is_deleted = TRUE AND updated_at < $1
		RETURNING file_path`

	rows, err := m.DB.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p sql.NullString
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if p.Valid && p.String != "" {
			paths = append(paths, p.String)
		}
	}
	return paths, rows.Err()
}

// AttachTags links tags to an event, creating missing tag names.
func (m EventModel) AttachTags(ctx context.Context, eventID uuid.UUID, names []string) error {
	if len(names) == 0 {
		return nil
	}
	insertTags := `
		INSERT INTO tags (name)
		SELECT unnest($1::text[])
		ON CONFLICT (name) DO NOTHING`
	if _, err := m.DB.ExecContext(ctx, insertTags, pq.Array(names)); err != nil {
		return err
	}

	link := `
		INSERT INTO event_tags (event_id, tag_id)
		SELECT $1, id FROM tags WHERE name = ANY($2)
		ON CONFLICT DO NOTHING`
	_, err := m.DB.ExecContext(ctx, link, eventID, pq.Array(names))
	return err
}

func (m EventModel) DetachTag(ctx context.Context, eventID uuid.UUID, name string) error {
	query := `
		DELETE FROM event_tags
		WHERE event_id = $1 AND tag_id = (SELECT id FROM tags WHERE name = $2)`
	_, err := m.DB.ExecContext(ctx, query, eventID, name)
	return err
}
