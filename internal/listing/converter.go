package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// Day is the converted listing of one programming day.
type Day struct {
	Stations []catalog.Station
	Programs []catalog.Program
	// Rejected holds one error per dropped entry.
	Rejected []error
}

// ToDay converts parsed program fields into catalog programs for day and
// area. Invalid entries are dropped and reported in Rejected.
func ToDay(entries []Fields, day broadcast.Date, areaID string) Day {
	var out Day
	seen := make(map[string]struct{})
	for i, f := range entries {
		p, err := toProgram(f, day, areaID)
		if err != nil {
			out.Rejected = append(out.Rejected, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		out.Programs = append(out.Programs, p)
		if _, ok := seen[p.StationID]; ok {
			continue
		}
		seen[p.StationID] = struct{}{}
		name, err := f.Get(FieldStationName)
		if err != nil {
			name = p.StationID
		}
		out.Stations = append(out.Stations, catalog.Station{ID: p.StationID, Name: name})
	}
	return out
}

// ToStations converts parsed station fields, dropping invalid entries.
func ToStations(entries []Fields) ([]catalog.Station, []error) {
	var (
		stations []catalog.Station
		rejected []error
	)
	for i, f := range entries {
		id, idErr := f.Get(FieldID)
		name, nameErr := f.Get(FieldName)
		if err := errors.Join(idErr, nameErr); err != nil {
			rejected = append(rejected, fmt.Errorf("station %d: %w: %w", i, catalog.ErrInvalidStation, err))
			continue
		}
		st, err := catalog.NewStation(id, name)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("station %d: %w", i, err))
			continue
		}
		stations = append(stations, st)
	}
	return stations, rejected
}

func toProgram(f Fields, day broadcast.Date, areaID string) (catalog.Program, error) {
	var errs []error
	id, err := f.Get(FieldID)
	errs = append(errs, err)
	title, err := f.Get(FieldTitle)
	errs = append(errs, err)
	stationID, err := f.Get(FieldStationID)
	errs = append(errs, err)
	start, err := decodeTime(f, FieldStart)
	errs = append(errs, err)
	end, err := decodeTime(f, FieldEnd)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return catalog.Program{}, fmt.Errorf("%w: %w", catalog.ErrInvalidProgram, err)
	}
	return catalog.NewProgram(catalog.ProgramFields{
		BroadcastID: id,
		Start:       start,
		End:         end,
		Title:       title,
		StationID:   stationID,
		AreaID:      areaID,
		Date:        day,
	})
}

func decodeTime(f Fields, name string) (t time.Time, err error) {
	raw, err := f.Get(name)
	if err != nil {
		return t, err
	}
	return broadcast.DecodeTime(raw)
}
