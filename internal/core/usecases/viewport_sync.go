package usecases

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/pkg/geospatial"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

var (
	ErrInvalidZoom   = errors.New("zoom must be between 0 and the maximum zoom")
	ErrInvalidCenter = errors.New("center must be a finite lat in [-90, 90] and lng in [-180, 180]")
)

// MaxZoom is the deepest zoom level accepted by the controller.
const MaxZoom = 22

type subscriber struct {
	id uint64
	// viewport that owns the subscription, kept for logging
	viewportID string
	fn         func(domain.ViewState)
}

// SyncController owns the authoritative view state of a grid and mirrors
// every change to the subscribed viewports.
//
// Writes are dropped when the value is unchanged, and each viewport applies a
// broadcast only if its rendered state differs. Together these make a user
// gesture converge in a single broadcast round.
//
// The update and its broadcast run under one lock, so cycles never interleave.
// Subscribers must not call back into the controller from their callback.
type SyncController struct {
	gridID string
	log    *slog.Logger

	mu         sync.Mutex
	state      domain.ViewState
	subs       []subscriber
	nextID     uint64
	broadcasts int
	onZoomEnd  []func(domain.ViewChange)
	onMoveEnd  []func(domain.ViewChange)
}

// NewSyncController creates a controller seeded with the initial view.
func NewSyncController(gridID string, initial domain.ViewState, log *slog.Logger) *SyncController {
	if log == nil {
		log = slog.Default()
	}
	return &SyncController{
		gridID: gridID,
		state:  initial,
		log:    log.With("component", "sync", "grid", gridID),
	}
}

// GridID returns the grid this controller synchronizes.
func (s *SyncController) GridID() string { return s.gridID }

// State returns the authoritative view state.
func (s *SyncController) State() domain.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Broadcasts returns how many broadcast rounds have been delivered.
func (s *SyncController) Broadcasts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broadcasts
}

// Subscribe registers fn for every authoritative change and returns the
// current state for the caller to mirror. Broadcasts reach subscribers in
// subscription order. The returned func unsubscribes and is safe to call twice.
func (s *SyncController) Subscribe(viewportID string, fn func(domain.ViewState)) (domain.ViewState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, viewportID: viewportID, fn: fn})

	var once sync.Once
	return s.state, func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *SyncController) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// OnZoomEnd registers an outward hook fired after a zoom cycle completes.
func (s *SyncController) OnZoomEnd(fn func(domain.ViewChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onZoomEnd = append(s.onZoomEnd, fn)
}

// OnMoveEnd registers an outward hook fired after a move cycle completes.
func (s *SyncController) OnMoveEnd(fn func(domain.ViewChange)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMoveEnd = append(s.onMoveEnd, fn)
}

// SetZoom updates the zoom if it differs from the current one.
// It reports whether a broadcast happened.
func (s *SyncController) SetZoom(z int) (bool, error) {
	return s.setZoom("", z)
}

// SetCenter updates the center if either coordinate differs.
// It reports whether a broadcast happened.
func (s *SyncController) SetCenter(lat, lng float64) (bool, error) {
	return s.setCenter("", lat, lng)
}

// ReportUserZoomEnd records the end of a zoom gesture on a viewport.
func (s *SyncController) ReportUserZoomEnd(viewportID string, z int) (bool, error) {
	return s.setZoom(viewportID, z)
}

// ReportUserMoveEnd records the end of a pan gesture on a viewport.
func (s *SyncController) ReportUserMoveEnd(viewportID string, lat, lng float64) (bool, error) {
	return s.setCenter(viewportID, lat, lng)
}

// ZoomIn raises the shared zoom by one level, up to MaxZoom.
func (s *SyncController) ZoomIn() (int, error) {
	z := s.State().Zoom + 1
	if z > MaxZoom {
		z = MaxZoom
	}
	_, err := s.SetZoom(z)
	return z, err
}

// ZoomOut lowers the shared zoom by one level, never below 0.
func (s *SyncController) ZoomOut() (int, error) {
	z := s.State().Zoom - 1
	if z < 0 {
		z = 0
	}
	_, err := s.SetZoom(z)
	return z, err
}

// Restore replaces the authoritative state without broadcasting. It is meant
// for seeding persisted state before any viewport mounts.
func (s *SyncController) Restore(vs domain.ViewState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = vs
}

func (s *SyncController) setZoom(origin string, z int) (bool, error) {
	if !ValidZoom(z) {
		return false, ErrInvalidZoom
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Zoom == z {
		metrics.SyncWritesSuppressed.WithLabelValues(string(domain.ChangeZoom)).Inc()
		return false, nil
	}
	s.state.Zoom = z
	s.broadcastLocked(origin, domain.ChangeZoom)
	return true, nil
}

func (s *SyncController) setCenter(origin string, lat, lng float64) (bool, error) {
	if !ValidCenter(lat, lng) {
		return false, ErrInvalidCenter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := domain.GeoPoint{Lat: lat, Lng: lng}
	if s.state.Center.Equal(next) {
		metrics.SyncWritesSuppressed.WithLabelValues(string(domain.ChangeMove)).Inc()
		return false, nil
	}
	moved := geospatial.Haversine(s.state.Center, next)
	s.state.Center = next
	s.log.Debug("center moved", "origin", origin, "distance_m", math.Round(moved))
	s.broadcastLocked(origin, domain.ChangeMove)
	return true, nil
}

// broadcastLocked pushes the state to every subscriber, then fires the
// outward hooks for kind. Callers hold s.mu.
func (s *SyncController) broadcastLocked(origin string, kind domain.ChangeKind) {
	vs := s.state
	s.broadcasts++
	metrics.SyncBroadcasts.WithLabelValues(string(kind)).Inc()

	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	for _, sub := range subs {
		s.deliver(sub, vs)
	}

	change := domain.ViewChange{
		GridID: s.gridID,
		Origin: origin,
		Kind:   kind,
		State:  vs,
		At:     time.Now().UTC(),
	}
	hooks := s.onMoveEnd
	if kind == domain.ChangeZoom {
		hooks = s.onZoomEnd
	}
	for _, h := range hooks {
		h(change)
	}

	s.log.Debug("view state broadcast",
		"kind", kind,
		"origin", origin,
		"zoom", vs.Zoom,
		"lat", vs.Center.Lat,
		"lng", vs.Center.Lng,
		"subscribers", len(subs),
	)
}

// deliver isolates a panicking viewport so its siblings still converge.
func (s *SyncController) deliver(sub subscriber, vs domain.ViewState) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("viewport failed to apply view state", "viewport", sub.viewportID, "panic", r)
		}
	}()
	sub.fn(vs)
}

// ValidZoom reports whether z is an accepted zoom level.
func ValidZoom(z int) bool {
	return z >= 0 && z <= MaxZoom
}

// ValidCenter reports whether lat and lng are finite and in range.
func ValidCenter(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
