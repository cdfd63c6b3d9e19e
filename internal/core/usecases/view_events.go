package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/core/ports"
)

// ViewEventService carries view changes out of the sync controller: it
// persists the latest state, publishes changes for other instances and
// replays theirs into the local controller.
//
// Controller hooks only enqueue; the slow work runs on the Run goroutine so a
// broadcast cycle never waits on the network.
type ViewEventService struct {
	sync      *SyncController
	repo      ports.ViewStateRepository
	publisher ports.EventPublisher
	instance  string
	log       *slog.Logger

	queue chan domain.ViewChange

	mu       sync.Mutex
	watchers map[int]func(domain.ViewChange)
	nextID   int
}

// NewViewEventService wires the service into controller hooks. repo and
// publisher may be nil.
func NewViewEventService(
	controller *SyncController,
	repo ports.ViewStateRepository,
	publisher ports.EventPublisher,
	instance string,
	log *slog.Logger,
) *ViewEventService {
	if log == nil {
		log = slog.Default()
	}
	s := &ViewEventService{
		sync:      controller,
		repo:      repo,
		publisher: publisher,
		instance:  instance,
		log:       log.With("component", "view_events", "grid", controller.GridID()),
		queue:     make(chan domain.ViewChange, 256),
		watchers:  make(map[int]func(domain.ViewChange)),
	}
	controller.OnZoomEnd(s.enqueue)
	controller.OnMoveEnd(s.enqueue)
	return s
}

// Restore seeds the controller from the persisted view state, if any.
func (s *ViewEventService) Restore(ctx context.Context) (bool, error) {
	if s.repo == nil {
		return false, nil
	}
	vs, err := s.repo.Load(ctx, s.sync.GridID())
	if err != nil {
		return false, fmt.Errorf("load view state: %w", err)
	}
	if vs == nil {
		return false, nil
	}
	s.sync.Restore(*vs)
	s.log.Info("view state restored", "zoom", vs.Zoom, "lat", vs.Center.Lat, "lng", vs.Center.Lng)
	return true, nil
}

// Watch registers fn for every local change, including replayed remote ones.
// fn runs on the Run goroutine. The returned func removes the watcher.
func (s *ViewEventService) Watch(fn func(domain.ViewChange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// ApplyRemote replays a change published by another instance. Changes this
// instance published are ignored.
func (s *ViewEventService) ApplyRemote(ctx context.Context, change *domain.ViewChange) error {
	if change.Instance == s.instance || change.GridID != s.sync.GridID() {
		return nil
	}
	origin := domain.RemoteOriginPrefix + change.Instance

	var err error
	switch change.Kind {
	case domain.ChangeZoom:
		_, err = s.sync.ReportUserZoomEnd(origin, change.State.Zoom)
	case domain.ChangeMove:
		_, err = s.sync.ReportUserMoveEnd(origin, change.State.Center.Lat, change.State.Center.Lng)
	default:
		s.log.Warn("unknown remote change kind", "kind", change.Kind, "instance", change.Instance)
		return nil
	}
	if err != nil {
		// Redelivery cannot fix an invalid state.
		s.log.Warn("remote view change rejected", "instance", change.Instance, "error", err)
	}
	return nil
}

// Run drains queued changes until ctx is done.
func (s *ViewEventService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-s.queue:
			s.handle(ctx, change)
		}
	}
}

func (s *ViewEventService) enqueue(change domain.ViewChange) {
	change.Instance = s.instance
	select {
	case s.queue <- change:
	default:
		s.log.Warn("view event queue full, dropping change", "kind", change.Kind, "origin", change.Origin)
	}
}

func (s *ViewEventService) handle(ctx context.Context, change domain.ViewChange) {
	s.mu.Lock()
	watchers := make([]func(domain.ViewChange), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(change)
	}

	// The publishing instance already persisted and broadcast remote changes.
	if change.Remote() {
		return
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, change.GridID, change.State); err != nil {
			s.log.Error("persist view state failed", "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishViewChange(ctx, &change); err != nil {
			s.log.Error("publish view change failed", "kind", change.Kind, "error", err)
		}
	}
}
