package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/technosupport/ts-evcam/internal/camera"
	"github.com/technosupport/ts-evcam/internal/data"
)

type CameraStore interface {
	Create(ctx context.Context, c *data.Camera) error
	List(ctx context.Context) ([]*data.Camera, error)
	GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type ActiveEventLister interface {
	ActiveEvents(ctx context.Context, cameraID uuid.UUID) ([]camera.EventRecord, error)
}

type CameraHandler struct {
	Cameras CameraStore
	Active  ActiveEventLister
	Clients CommanderFactory
}

// POST /api/v1/cameras
func (h *CameraHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Address  string `json:"address"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Missing name")
		return
	}
	u, err := url.Parse(req.Address)
	if err != nil || u.Scheme == "" || u.Host == "" {
		respondError(w, http.StatusBadRequest, "Invalid address")
		return
	}

	c := &data.Camera{
		Name:     req.Name,
		Address:  req.Address,
		Username: req.Username,
		Password: req.Password,
		IsActive: true,
	}
	if err := h.Cameras.Create(r.Context(), c); err != nil {
		if errors.Is(err, data.ErrDuplicateKey) {
			respondError(w, http.StatusConflict, "Camera name already in use")
			return
		}
		log.Printf("[ERROR] api: creating camera: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// GET /api/v1/cameras
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	cams, err := h.Cameras.List(r.Context())
	if err != nil {
		log.Printf("[ERROR] api: listing cameras: %v", err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if cams == nil {
		cams = []*data.Camera{}
	}
	respondJSON(w, http.StatusOK, cams)
}

// GET /api/v1/cameras/{id}
func (h *CameraHandler) Get(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.loadCamera(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, cam)
}

// POST /api/v1/cameras/{id}:enable
func (h *CameraHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// POST /api/v1/cameras/{id}:disable
func (h *CameraHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *CameraHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	cam, ok := h.loadCamera(w, r)
	if !ok {
		return
	}
	if err := h.Cameras.SetActive(r.Context(), cam.ID, active); err != nil {
		respondError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	status := "disabled"
	if active {
		status = "enabled"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

// GET /api/v1/cameras/{id}/events/active
//
// Live passthrough to the device; nothing here touches the catalog.
func (h *CameraHandler) ActiveEvents(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.loadCamera(w, r)
	if !ok {
		return
	}
	records, err := h.Active.ActiveEvents(r.Context(), cam.ID)
	if err != nil {
		log.Printf("[WARN] api: active events from %s: %v", cam.Name, err)
		respondError(w, http.StatusBadGateway, "Camera unreachable")
		return
	}
	if records == nil {
		records = []camera.EventRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// DELETE /api/v1/cameras/{id}/events/active
func (h *CameraHandler) StopActiveEvents(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.loadCamera(w, r)
	if !ok {
		return
	}
	if err := h.Clients(cam).StopAllActiveEvents(r.Context()); err != nil {
		log.Printf("[WARN] api: stopping active events on %s: %v", cam.Name, err)
		respondError(w, http.StatusBadGateway, "Camera unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *CameraHandler) loadCamera(w http.ResponseWriter, r *http.Request) (*data.Camera, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid ID")
		return nil, false
	}
	cam, err := h.Cameras.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "Camera not found")
			return nil, false
		}
		log.Printf("[ERROR] api: loading camera %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Internal error")
		return nil, false
	}
	return cam, true
}
