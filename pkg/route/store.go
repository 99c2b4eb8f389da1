// Package route prepares and serves courses. Uploads are parsed, densified
// and classified once, then published as immutable snapshots: the hot path
// reads a pointer, never a lock-held structure.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"racepulse/pkg/db"
	"racepulse/pkg/gpx"
	"racepulse/pkg/model"
	"racepulse/pkg/store"
)

// DefaultTTL expires stored routes a day after the last upload.
const DefaultTTL = 24 * time.Hour

type routeKey struct {
	eventID       int64
	eventDetailID int64
}

// Options tune route preparation. Zero values select the defaults.
type Options struct {
	Spacing   float64
	CPSpacing float64
	TTL       time.Duration
}

// Store holds prepared routes. The in-memory snapshot is authoritative for
// reads; the KV layer and the sqlite archive exist so routes survive
// restarts and can be shared across instances.
type Store struct {
	kv      store.KV
	archive *db.DB // optional
	opts    Options

	mu      sync.RWMutex
	routes  map[routeKey]*model.Route
	byEvent map[int64]int64

	// Called after a route is replaced or deleted so downstream caches
	// (segment indexes) can drop their copy.
	onReplace func(eventID, eventDetailID int64)
}

// NewStore creates a store. archive may be nil to run without durability.
func NewStore(kv store.KV, archive *db.DB, opts Options) *Store {
	if opts.Spacing <= 0 {
		opts.Spacing = gpx.DefaultSpacing
	}
	if opts.CPSpacing <= 0 {
		opts.CPSpacing = gpx.DefaultCPSpacing
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Store{
		kv:      kv,
		archive: archive,
		opts:    opts,
		routes:  make(map[routeKey]*model.Route),
		byEvent: make(map[int64]int64),
	}
}

// OnReplace registers a hook invoked whenever a course is replaced or
// removed. Must be set before the store is shared.
func (s *Store) OnReplace(fn func(eventID, eventDetailID int64)) {
	s.onReplace = fn
}

// Load parses, densifies and publishes a course from raw GPX bytes.
// Validation failures leave all existing routes untouched.
func (s *Store) Load(ctx context.Context, eventID, eventDetailID int64, gpxBytes []byte) (model.RouteSummary, error) {
	waypoints, err := gpx.Parse(gpxBytes)
	if err != nil {
		return model.RouteSummary{}, err
	}
	points, total, err := gpx.BuildPolyline(waypoints, s.opts.Spacing, s.opts.CPSpacing)
	if err != nil {
		return model.RouteSummary{}, err
	}

	route := &model.Route{
		EventID:       eventID,
		EventDetailID: eventDetailID,
		Points:        points,
		TotalDistance: total,
		CreatedAt:     time.Now().UTC(),
	}

	s.publish(route)

	if err := s.persist(ctx, route); err != nil {
		// The snapshot is live; persistence failure only costs durability.
		slog.Warn("route persist failed", "eventID", eventID, "eventDetailID", eventDetailID, "error", err)
	}
	if s.archive != nil {
		if err := s.archive.SaveRoute(ctx, route); err != nil {
			slog.Warn("route archive failed", "eventID", eventID, "eventDetailID", eventDetailID, "error", err)
		}
	}

	return route.Summary(), nil
}

// Get returns the prepared route, or nil when none exists. Falls back from
// the snapshot to the KV layer to the archive, rewarming caches on the way.
func (s *Store) Get(ctx context.Context, eventID, eventDetailID int64) (*model.Route, error) {
	key := routeKey{eventID, eventDetailID}

	s.mu.RLock()
	route := s.routes[key]
	s.mu.RUnlock()
	if route != nil {
		return route, nil
	}

	route, err := s.fetchKV(ctx, eventID, eventDetailID)
	if err != nil {
		slog.Warn("route fetch failed", "eventID", eventID, "eventDetailID", eventDetailID, "error", err)
	}
	if route == nil && s.archive != nil {
		route, err = s.archive.LoadRoute(ctx, eventID, eventDetailID)
		if err != nil {
			return nil, err
		}
	}
	if route == nil {
		return nil, nil
	}

	s.publish(route)
	return route, nil
}

// GetByEventID resolves a course through the event index.
func (s *Store) GetByEventID(ctx context.Context, eventID int64) (*model.Route, error) {
	s.mu.RLock()
	detailID, ok := s.byEvent[eventID]
	s.mu.RUnlock()
	if ok {
		return s.Get(ctx, eventID, detailID)
	}

	data, found, err := s.kv.Get(ctx, store.RouteEventKey(eventID))
	if err != nil || !found {
		return nil, err
	}
	detailID, err = strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt event index for event %d: %w", eventID, err)
	}
	return s.Get(ctx, eventID, detailID)
}

// Delete removes a course everywhere.
func (s *Store) Delete(ctx context.Context, eventID, eventDetailID int64) error {
	s.mu.Lock()
	delete(s.routes, routeKey{eventID, eventDetailID})
	if s.byEvent[eventID] == eventDetailID {
		delete(s.byEvent, eventID)
	}
	s.mu.Unlock()

	if s.onReplace != nil {
		s.onReplace(eventID, eventDetailID)
	}

	if err := s.kv.Delete(ctx, store.RouteKey(eventID, eventDetailID)); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, store.RouteEventKey(eventID)); err != nil {
		return err
	}
	if s.archive != nil {
		return s.archive.DeleteRoute(ctx, eventID, eventDetailID)
	}
	return nil
}

// Rewarm loads every archived route into the snapshot, typically at startup.
func (s *Store) Rewarm(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, nil
	}
	routes, err := s.archive.LoadAllRoutes(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range routes {
		s.publish(r)
	}
	return len(routes), nil
}

// publish swaps in the new snapshot and updates the event index.
func (s *Store) publish(route *model.Route) {
	key := routeKey{route.EventID, route.EventDetailID}
	s.mu.Lock()
	replaced := s.routes[key] != nil
	s.routes[key] = route
	s.byEvent[route.EventID] = route.EventDetailID
	s.mu.Unlock()

	if replaced && s.onReplace != nil {
		s.onReplace(route.EventID, route.EventDetailID)
	}
}

func (s *Store) persist(ctx context.Context, route *model.Route) error {
	data, err := json.Marshal(route)
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}
	if err := s.kv.Set(ctx, store.RouteKey(route.EventID, route.EventDetailID), data, s.opts.TTL); err != nil {
		return err
	}
	return s.kv.Set(ctx, store.RouteEventKey(route.EventID),
		[]byte(strconv.FormatInt(route.EventDetailID, 10)), s.opts.TTL)
}

func (s *Store) fetchKV(ctx context.Context, eventID, eventDetailID int64) (*model.Route, error) {
	data, found, err := s.kv.Get(ctx, store.RouteKey(eventID, eventDetailID))
	if err != nil || !found {
		return nil, err
	}
	var route model.Route
	if err := json.Unmarshal(data, &route); err != nil {
		return nil, fmt.Errorf("decode route: %w", err)
	}
	return &route, nil
}
