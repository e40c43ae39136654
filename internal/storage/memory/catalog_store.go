// Package memory provides an in-memory catalog store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// CatalogStore keeps stations and programs in maps guarded by one mutex, so
// every status transition is serialized.
type CatalogStore struct {
	mu       sync.RWMutex
	nextID   int64
	stations map[string]catalog.Station
	programs map[int64]catalog.Program
}

var _ catalog.Store = (*CatalogStore)(nil)

// NewCatalogStore constructs an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		stations: make(map[string]catalog.Station),
		programs: make(map[int64]catalog.Program),
	}
}

// StationsEmpty reports whether no station has been stored yet.
func (s *CatalogStore) StationsEmpty(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations) == 0, nil
}

// SaveStations inserts stations that are not already stored.
func (s *CatalogStore) SaveStations(_ context.Context, stations []catalog.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putStations(stations)
	return nil
}

// CountPrograms returns the number of programs stored for day.
func (s *CatalogStore) CountPrograms(_ context.Context, day broadcast.Date) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.programs {
		if p.Date == day {
			count++
		}
	}
	return count, nil
}

// SaveDay validates every row first and only then writes, so a failing day
// leaves the store untouched.
func (s *CatalogStore) SaveDay(
	_ context.Context,
	day broadcast.Date,
	stations []catalog.Station,
	programs []catalog.Program,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := make(map[string]struct{}, len(s.stations)+len(stations))
	for id := range s.stations {
		known[id] = struct{}{}
	}
	for _, st := range stations {
		known[st.ID] = struct{}{}
	}
	for _, p := range programs {
		if _, ok := known[p.StationID]; !ok {
			return fmt.Errorf("save day %s: program %s references unknown station %q", day, p.BroadcastID, p.StationID)
		}
	}
	s.putStations(stations)
	for _, p := range programs {
		s.nextID++
		p.ID = s.nextID
		s.programs[p.ID] = p
	}
	return nil
}

// FindArchivable returns ARCHIVABLE programs whose title contains any keyword.
func (s *CatalogStore) FindArchivable(_ context.Context, keywords []string) ([]catalog.Program, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Program
	for _, p := range s.programs {
		if p.Status != catalog.StatusArchivable {
			continue
		}
		for _, k := range keywords {
			if strings.Contains(p.Title, k) {
				out = append(out, p)
				break
			}
		}
	}
	sortByStart(out)
	return out, nil
}

// DeleteBefore removes programs whose broadcast day precedes boundary.
func (s *CatalogStore) DeleteBefore(_ context.Context, boundary broadcast.Date) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, p := range s.programs {
		if p.Date.Before(boundary) {
			delete(s.programs, id)
			deleted++
		}
	}
	return deleted, nil
}

// Transition checks and applies a status change under the store lock.
func (s *CatalogStore) Transition(_ context.Context, id int64, to catalog.Status) (catalog.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[id]
	if !ok {
		return 0, fmt.Errorf("transition program %d: %w", id, catalog.ErrNotFound)
	}
	from := p.Status
	if err := catalog.CheckTransition(from, to); err != nil {
		return from, fmt.Errorf("transition program %d: %w", id, err)
	}
	p.Status = to
	s.programs[id] = p
	return from, nil
}

// GetProgram returns a copy of the stored program.
func (s *CatalogStore) GetProgram(_ context.Context, id int64) (catalog.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return catalog.Program{}, fmt.Errorf("%w: %d", catalog.ErrNotFound, id)
	}
	return p, nil
}

// ListPrograms returns every program with the given status, oldest first.
func (s *CatalogStore) ListPrograms(_ context.Context, status catalog.Status) ([]catalog.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []catalog.Program
	for _, p := range s.programs {
		if p.Status == status {
			out = append(out, p)
		}
	}
	sortByStart(out)
	return out, nil
}

// Stations returns the stored stations sorted by id.
func (s *CatalogStore) Stations() []catalog.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *CatalogStore) putStations(stations []catalog.Station) {
	for _, st := range stations {
		if _, exists := s.stations[st.ID]; exists {
			continue
		}
		s.stations[st.ID] = st
	}
}

func sortByStart(programs []catalog.Program) {
	sort.Slice(programs, func(i, j int) bool {
		if programs[i].Start.Equal(programs[j].Start) {
			return programs[i].ID < programs[j].ID
		}
		return programs[i].Start.Before(programs[j].Start)
	})
}
