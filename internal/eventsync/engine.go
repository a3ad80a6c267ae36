package eventsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/technosupport/ts-evcam/internal/camera"
	"github.com/technosupport/ts-evcam/internal/data"
	"github.com/technosupport/ts-evcam/internal/metrics"
)

// EventStore is the catalog surface the engine reconciles against. All
// mutation goes through here; the engine keeps no cache of its own.
type EventStore interface {
	ListLive(ctx context.Context) ([]*data.Event, error)
	Insert(ctx context.Context, e *data.Event) error
	GetByNormalizedKey(ctx context.Context, key string) (*data.Event, error)
	MarkOnCamera(ctx context.Context, id uuid.UUID, present bool) error
	MarkLocal(ctx context.Context, id uuid.UUID, path string, size int64) error
	Backfill(ctx context.Context, id uuid.UUID, eventName, videoExt, thumbExt string, playbackSeconds int) error
	AttributeCamera(ctx context.Context, id, cameraID uuid.UUID) error
}

type CameraStore interface {
	ListActive(ctx context.Context) ([]*data.Camera, error)
	GetByID(ctx context.Context, id uuid.UUID) (*data.Camera, error)
}

// Notifier receives domain events; the engine never talks to transport
// or notification internals directly.
type Notifier interface {
	EventCaptured(ctx context.Context, e *data.Event, cam *data.Camera)
}

// Summary reports one reconciliation pass. Partial source failure is
// data here, not an error.
type Summary struct {
	NewEvents        int         `json:"new_events"`
	TotalReported    int         `json:"total_reported"`
	CamerasProcessed int         `json:"cameras_processed"`
	Failures         []uuid.UUID `json:"failures"`

	DropProcessed int `json:"drop_processed"`
	DropCreated   int `json:"drop_created"`
	DropUpdated   int `json:"drop_updated"`
}

type EngineConfig struct {
	MaxParallel int // concurrent camera fetches within one pass
}

// Engine executes reconciliation passes: camera evidence first, then
// drop-directory evidence, merged sequentially into the store.
type Engine struct {
	events   EventStore
	cameras  CameraStore
	camSrc   *CameraSource
	dropDir  *DropDirSource
	resolver CameraResolver
	notifier Notifier
	cfg      EngineConfig
}

func NewEngine(events EventStore, cameras CameraStore, camSrc *CameraSource, dropDir *DropDirSource, resolver CameraResolver, notifier Notifier, cfg EngineConfig) *Engine {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if resolver == nil {
		resolver = NameMatchResolver{}
	}
	return &Engine{
		events:   events,
		cameras:  cameras,
		camSrc:   camSrc,
		dropDir:  dropDir,
		resolver: resolver,
		notifier: notifier,
		cfg:      cfg,
	}
}

// catalog indexes the live events loaded at the start of a pass. Kept
// current as the pass inserts, so later records in the same pass dedup
// against earlier ones.
type catalog struct {
	byKey     map[string]*data.Event
	byCamFile map[string]*data.Event
}

func camFileKey(cameraID uuid.UUID, filename string) string {
	return cameraID.String() + "|" + filename
}

func newCatalog(events []*data.Event) *catalog {
	c := &catalog{
		byKey:     make(map[string]*data.Event, len(events)),
		byCamFile: make(map[string]*data.Event, len(events)),
	}
	for _, e := range events {
		c.add(e)
	}
	return c
}

func (c *catalog) add(e *data.Event) {
	key := e.NormalizedKey
	if key == "" {
		key = NormalizeFilename(e.Filename)
	}
	c.byKey[key] = e
	if e.CameraID != nil {
		c.byCamFile[camFileKey(*e.CameraID, e.Filename)] = e
	}
}

type fetchResult struct {
	cam     *data.Camera
	records []camera.EventRecord
	err     error
}

// Run executes one full reconciliation pass. cameraID restricts the
// camera phase to one device; the drop-directory phase always runs.
// Only catalog-store failure is returned as an error; per-camera fetch
// failures land in Summary.Failures.
func (e *Engine) Run(ctx context.Context, cameraID *uuid.UUID) (Summary, error) {
	start := time.Now()
	summary, err := e.run(ctx, cameraID)
	metrics.SyncDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SyncPassesTotal.WithLabelValues("error").Inc()
		return summary, err
	}
	metrics.SyncPassesTotal.WithLabelValues("ok").Inc()
	return summary, nil
}

func (e *Engine) run(ctx context.Context, cameraID *uuid.UUID) (Summary, error) {
	var summary Summary

	cams, err := e.selectCameras(ctx, cameraID)
	if err != nil {
		return summary, fmt.Errorf("eventsync: list cameras: %w", err)
	}

	existing, err := e.events.ListLive(ctx)
	if err != nil {
		return summary, fmt.Errorf("eventsync: load catalog: %w", err)
	}
	cat := newCatalog(existing)

	// Fetch all cameras under a bounded semaphore; merge sequentially
	// afterwards so camera evidence lands in a deterministic order and
	// strictly before drop-directory evidence.
	results := make([]fetchResult, len(cams))
	sem := make(chan struct{}, e.cfg.MaxParallel)
	var wg sync.WaitGroup
	for i, cam := range cams {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cam *data.Camera) {
			defer wg.Done()
			defer func() { <-sem }()
			records, err := e.camSrc.Fetch(ctx, cam)
			results[i] = fetchResult{cam: cam, records: records, err: err}
		}(i, cam)
	}
	wg.Wait()

	for _, res := range results {
		if res.err != nil {
			log.Printf("[WARN] eventsync: %v", res.err)
			summary.Failures = append(summary.Failures, res.cam.ID)
			metrics.SyncCameraFailures.Inc()
			continue
		}
		summary.CamerasProcessed++
		summary.TotalReported += len(res.records)
		for _, rec := range res.records {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			created, err := e.reconcileCameraRecord(ctx, cat, res.cam, rec)
			if err != nil {
				return summary, err
			}
			if created {
				summary.NewEvents++
			}
		}
	}

	files, err := e.dropDir.Scan(ctx)
	if err != nil {
		// Not the catalog store: log, report zero drop activity, keep
		// the camera-phase results.
		log.Printf("[ERROR] eventsync: drop directory scan: %v", err)
		return summary, nil
	}

	activeCams, err := e.cameras.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("eventsync: list cameras for attribution: %w", err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		created, updated, err := e.reconcileDropFile(ctx, cat, activeCams, f)
		if err != nil {
			return summary, err
		}
		summary.DropProcessed++
		if created {
			summary.DropCreated++
			summary.NewEvents++
		}
		if updated {
			summary.DropUpdated++
		}
	}

	return summary, nil
}

func (e *Engine) selectCameras(ctx context.Context, cameraID *uuid.UUID) ([]*data.Camera, error) {
	if cameraID == nil {
		return e.cameras.ListActive(ctx)
	}
	cam, err := e.cameras.GetByID(ctx, *cameraID)
	if err != nil {
		return nil, err
	}
	return []*data.Camera{cam}, nil
}

// reconcileCameraRecord merges one camera-reported record: exact-match
// skip, cross-camera key match backfills, otherwise create.
func (e *Engine) reconcileCameraRecord(ctx context.Context, cat *catalog, cam *data.Camera, rec camera.EventRecord) (created bool, err error) {
	if known, ok := cat.byCamFile[camFileKey(cam.ID, rec.FileName)]; ok {
		// Already cataloged for this camera; refresh presence if a
		// prior pass saw it gone.
		if !known.PresentOnCamera {
			if err := e.events.MarkOnCamera(ctx, known.ID, true); err != nil {
				return false, fmt.Errorf("eventsync: mark on camera: %w", err)
			}
			known.PresentOnCamera = true
		}
		return false, nil
	}

	key := NormalizeFilename(rec.FileName)
	if match, ok := cat.byKey[key]; ok {
		// Same capture reported under a different name, typically the
		// drop-directory copy arriving first. Enrich, don't duplicate.
		log.Printf("[DEBUG] eventsync: merging camera record %q into event %s (key %s)", rec.FileName, match.ID, key)
		if err := e.events.Backfill(ctx, match.ID, rec.EventName, rec.VidExt, rec.ThmbExt, rec.PlaybackTime); err != nil {
			return false, fmt.Errorf("eventsync: backfill: %w", err)
		}
		if !match.PresentOnCamera {
			if err := e.events.MarkOnCamera(ctx, match.ID, true); err != nil {
				return false, fmt.Errorf("eventsync: mark on camera: %w", err)
			}
			match.PresentOnCamera = true
		}
		if match.CameraID == nil {
			if err := e.events.AttributeCamera(ctx, match.ID, cam.ID); err != nil {
				return false, fmt.Errorf("eventsync: attribute camera: %w", err)
			}
			id := cam.ID
			match.CameraID = &id
			cat.byCamFile[camFileKey(cam.ID, match.Filename)] = match
		}
		return false, nil
	}

	triggeredAt, err := parseTriggeredAt(rec.TriggeredAt)
	if err != nil {
		log.Printf("[WARN] eventsync: camera %s reported unparseable timestamp %q for %q, skipping record", cam.Name, rec.TriggeredAt, rec.FileName)
		return false, nil
	}

	camID := cam.ID
	meta, _ := json.Marshal(map[string]any{"age": rec.Age, "dir": rec.Dir})
	evt := &data.Event{
		CameraID:        &camID,
		Filename:        rec.FileName,
		NormalizedKey:   key,
		EventName:       rec.EventName,
		TriggeredAt:     triggeredAt,
		PlaybackSeconds: rec.PlaybackTime,
		VideoExt:        rec.VidExt,
		ThumbExt:        rec.ThmbExt,
		PresentOnCamera: true,
		Metadata:        meta,
	}

	if err := e.events.Insert(ctx, evt); err != nil {
		if errors.Is(err, data.ErrDuplicateKey) {
			// Lost an insert race to a concurrent pass; merge instead.
			return false, e.mergeAfterRace(ctx, cat, key, func(won *data.Event) error {
				return e.events.MarkOnCamera(ctx, won.ID, true)
			})
		}
		return false, fmt.Errorf("eventsync: insert: %w", err)
	}

	cat.add(evt)
	metrics.SyncEventsCreated.WithLabelValues("camera").Inc()
	if e.notifier != nil {
		e.notifier.EventCaptured(ctx, evt, cam)
	}
	return true, nil
}

// reconcileDropFile merges one landed file: key match updates presence,
// otherwise create with heuristic camera attribution.
func (e *Engine) reconcileDropFile(ctx context.Context, cat *catalog, activeCams []*data.Camera, f DropFile) (created, updated bool, err error) {
	key := NormalizeFilename(f.Name)
	if match, ok := cat.byKey[key]; ok {
		if err := e.events.MarkLocal(ctx, match.ID, f.Path, f.Size); err != nil {
			return false, false, fmt.Errorf("eventsync: mark local: %w", err)
		}
		match.PresentLocally = true
		match.FilePath = &f.Path
		size := f.Size
		match.FileSize = &size
		return false, true, nil
	}

	evt := &data.Event{
		Filename:       f.Name,
		NormalizedKey:  key,
		TriggeredAt:    f.ModTime,
		VideoExt:       extOf(f.Name),
		FilePath:       &f.Path,
		FileSize:       &f.Size,
		PresentLocally: true,
	}

	var owner *data.Camera
	if cam := e.resolver.Resolve(f.Name, activeCams); cam != nil {
		owner = cam
		id := cam.ID
		evt.CameraID = &id
	}

	if err := e.events.Insert(ctx, evt); err != nil {
		if errors.Is(err, data.ErrDuplicateKey) {
			return false, true, e.mergeAfterRace(ctx, cat, key, func(won *data.Event) error {
				return e.events.MarkLocal(ctx, won.ID, f.Path, f.Size)
			})
		}
		return false, false, fmt.Errorf("eventsync: insert: %w", err)
	}

	cat.add(evt)
	metrics.SyncEventsCreated.WithLabelValues("dropdir").Inc()
	if e.notifier != nil {
		e.notifier.EventCaptured(ctx, evt, owner)
	}
	return true, false, nil
}

// mergeAfterRace re-reads the event that won a concurrent insert and
// applies this pass's evidence to it.
func (e *Engine) mergeAfterRace(ctx context.Context, cat *catalog, key string, apply func(*data.Event) error) error {
	won, err := e.events.GetByNormalizedKey(ctx, key)
	if err != nil {
		return fmt.Errorf("eventsync: re-read after duplicate key: %w", err)
	}
	if err := apply(won); err != nil {
		return fmt.Errorf("eventsync: merge after duplicate key: %w", err)
	}
	cat.add(won)
	return nil
}

// ActiveEvents is a passthrough listing of in-progress recordings,
// exposed for the API layer. Not part of reconciliation.
func (e *Engine) ActiveEvents(ctx context.Context, cameraID uuid.UUID) ([]camera.EventRecord, error) {
	cam, err := e.cameras.GetByID(ctx, cameraID)
	if err != nil {
		return nil, err
	}
	return e.camSrc.FetchActive(ctx, cam)
}

// Camera firmware has shipped both RFC3339 and a bare local layout.
var triggeredAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTriggeredAt(s string) (time.Time, error) {
	for _, layout := range triggeredAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func extOf(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}
