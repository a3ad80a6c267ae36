package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/technosupport/ts-evcam/internal/camera"
	"github.com/technosupport/ts-evcam/internal/data"
	"github.com/technosupport/ts-evcam/internal/eventsync"
)

type EventStore interface {
	List(ctx context.Context, filter data.EventFilter, limit, offset int) ([]*data.Event, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*data.Event, error)
	SetPlayed(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	AttachTags(ctx context.Context, eventID uuid.UUID, names []string) error
	DetachTag(ctx context.Context, eventID uuid.UUID, name string) error
}

type SyncRunner interface {
	TryRun(ctx context.Context, cameraID *uuid.UUID) (eventsync.Summary, error)
}

// CameraCommander is the slice of the device client the API needs for
// destructive operations.
type CameraCommander interface {
	DeleteEvent(ctx context.Context, filename string) error
	StopAllActiveEvents(ctx context.Context) error
}

type CommanderFactory func(cam *data.Camera) CameraCommander

func DefaultCommanderFactory(cam *data.Camera) CameraCommander {
	return camera.NewClient(cam.Address, cam.Username, cam.Password)
}

type EventHandler struct {
	Events  EventStore
	Cameras CameraStore
	Sync    SyncRunner
	Clients CommanderFactory
}

// POST /api/v1/events/sync
func (h *EventHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var cameraID *uuid.UUID
	if s := r.URL.Query().Get("camera_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid camera_id")
			return
		}
		cameraID = &id
	}

	summary, err := h.Sync.TryRun(r.Context(), cameraID)
	if err != nil {
		if errors.Is(err, eventsync.ErrSyncRunning) {
			respondError(w, http.StatusConflict, "Sync already in progress")
			return
		}
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "Camera not found")
			return
		}
		log.Printf("[ERROR] api: sync: %v", err)
		respondError(w, http.StatusInternalServerError, "Sync failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// GET /api/v1/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 0)

	filter := data.EventFilter{
		EventName:      r.URL.Query().Get("q"),
		Tag:            r.URL.Query().Get("tag"),
		IsPlayed:       queryBool(r, "is_played"),
		PresentLocally: queryBool(r, "present_locally"),
	}
	if s := r.URL.Query().Get("camera_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid camera_id")
			return
		}
		filter.CameraID = &id
	}
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid from timestamp")
			return
		}
		filter.Start = &t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid to timestamp")
			return
		}
		filter.End = &t
	}

	events, total, err := h.Events.List(r.Context(), filter, limit, offset)
	if err != nil {
		log.Printf("[ERROR] api: listing events: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if events == nil {
		events = []*data.Event{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data": events,
		"meta": map[string]int{
			"total":  total,
			"limit":  limit,
			"offset": offset,
		},
	})
}

// GET /api/v1/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, evt)
}

// POST /api/v1/events/{id}/played
func (h *EventHandler) MarkPlayed(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	if err := h.Events.SetPlayed(r.Context(), evt.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "played"})
}

// DELETE /api/v1/events/{id}
//
// Soft-deletes the catalog row. With ?purge_camera=true the recording
// is also removed from the camera when it is still present there; a
// failed device delete aborts before the row is touched.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.loadEvent(w, r)
	if !ok {
		return
	}

	purge := queryBool(r, "purge_camera")
	if purge != nil && *purge && evt.PresentOnCamera && evt.CameraID != nil {
		cam, err := h.Cameras.GetByID(r.Context(), *evt.CameraID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Internal error")
			return
		}
		if err := h.Clients(cam).DeleteEvent(r.Context(), evt.Filename); err != nil {
			log.Printf("[WARN] api: deleting %s on camera %s: %v", evt.Filename, cam.Name, err)
			respondError(w, http.StatusBadGateway, "Camera delete failed")
			return
		}
	}

	if err := h.Events.SoftDelete(r.Context(), evt.ID); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /api/v1/events/{id}/tags
func (h *EventHandler) AttachTags(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.loadEvent(w, r)
	if !ok {
		return
	}

	var req struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.Tags) == 0 {
		respondError(w, http.StatusBadRequest, "No tags given")
		return
	}

	if err := h.Events.AttachTags(r.Context(), evt.ID, req.Tags); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "tagged"})
}

// DELETE /api/v1/events/{id}/tags/{name}
func (h *EventHandler) DetachTag(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.loadEvent(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "Missing tag name")
		return
	}
	if err := h.Events.DetachTag(r.Context(), evt.ID, name); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "untagged"})
}

func (h *EventHandler) loadEvent(w http.ResponseWriter, r *http.Request) (*data.Event, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ID")
		return nil, false
	}
	evt, err := h.Events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "Event not found")
			return nil, false
		}
		log.Printf("[ERROR] api: loading event %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return nil, false
	}
	return evt, true
}
