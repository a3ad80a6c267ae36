package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var eventCols = []string{
	"id", "camera_id", "filename", "normalized_key", "event_name", "triggered_at",
	"playback_seconds", "video_ext", "thumb_ext", "file_path", "file_size",
	"present_on_camera", "present_locally", "is_played", "is_deleted",
	"metadata", "created_at", "updated_at",
}

func TestInsert_UniqueViolationMapsToDuplicateKey(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	mock.ExpectQuery("INSERT INTO events").
		WillReturnError(&pq.Error{Code: "23505"})

	err := m.Insert(context.Background(), &Event{
		Filename:      "EVT_001",
		NormalizedKey: "evt_001",
		TriggeredAt:   time.Now(),
	})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("got %v, want ErrDuplicateKey", err)
	}
}

func TestInsert_ReturnsGeneratedID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id, now, now))

	e := &Event{Filename: "EVT_001", NormalizedKey: "evt_001", TriggeredAt: now}
	if err := m.Insert(context.Background(), e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if e.ID != id {
		t.Errorf("ID = %s, want %s", e.ID, id)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	mock.ExpectQuery("SELECT(.|\n)+FROM events WHERE id").
		WillReturnRows(sqlmock.NewRows(eventCols))

	_, err := m.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("got %v, want ErrRecordNotFound", err)
	}
}

func TestGetByNormalizedKey_Found(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	id := uuid.New()
	camID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("SELECT(.|\n)+FROM events(.|\n)+normalized_key").
		WillReturnRows(sqlmock.NewRows(eventCols).AddRow(
			id, camID.String(), "EVT_001", "evt_001", "motion", now,
			12, ".mp4", ".jpg", nil, nil,
			true, false, false, false,
			[]byte(`{}`), now, now,
		))

	e, err := m.GetByNormalizedKey(context.Background(), "evt_001")
	if err != nil {
		t.Fatalf("GetByNormalizedKey failed: %v", err)
	}
	if e.ID != id || e.CameraID == nil || *e.CameraID != camID {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.FilePath != nil || e.FileSize != nil {
		t.Error("nullable file fields should be nil")
	}
}

func TestSetPlayed_NotFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	mock.ExpectExec("UPDATE events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := m.SetPlayed(context.Background(), uuid.New()); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("got %v, want ErrRecordNotFound", err)
	}
}

func TestMarkLocal_Succeeds(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	id := uuid.New()
	mock.ExpectExec("UPDATE events").
		WithArgs("/data/evt.mp4", int64(1024), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.MarkLocal(context.Background(), id, "/data/evt.mp4", 1024); err != nil {
		t.Fatalf("MarkLocal failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteAgedSoftDeleted_ReturnsPaths(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	m := EventModel{DB: db}
	mock.ExpectQuery("DELETE FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"file_path"}).
			AddRow("/data/a.mp4").
			AddRow(nil).
			AddRow("/data/b.mp4"))

	paths, err := m.DeleteAgedSoftDeleted(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteAgedSoftDeleted failed: %v", err)
	}
	if len(paths) != 2 {
		t.Errorf("got %d paths, want 2 (NULL skipped): %v", len(paths), paths)
	}
}
