package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
)

var (
	// ErrInvalidProgram marks a listing entry missing a required field.
	ErrInvalidProgram = errors.New("invalid program")
	// ErrInvalidStation marks a station entry missing a required field.
	ErrInvalidStation = errors.New("invalid station")
	// ErrNotFound is returned when a program id does not exist.
	ErrNotFound = errors.New("program not found")
)

// Station is a broadcaster in a region.
type Station struct {
	ID   string
	Name string
}

// NewStation validates and builds a Station.
func NewStation(id, name string) (Station, error) {
	var missing []string
	if strings.TrimSpace(id) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return Station{}, fmt.Errorf("%w: missing %s", ErrInvalidStation, strings.Join(missing, ", "))
	}
	return Station{ID: id, Name: name}, nil
}

// Program is a single broadcast instance in the catalog.
type Program struct {
	// ID is the store's surrogate key; zero until persisted.
	ID int64
	// BroadcastID is the id assigned upstream. It is not unique.
	BroadcastID string
	Start       time.Time
	End         time.Time
	Title       string
	StationID   string
	AreaID      string
	// Date is the programming day the listing was fetched for.
	Date   broadcast.Date
	Status Status
}

// ProgramFields carries raw listing values before validation.
type ProgramFields struct {
	BroadcastID string
	Start       time.Time
	End         time.Time
	Title       string
	StationID   string
	AreaID      string
	Date        broadcast.Date
}

// NewProgram validates fields and returns an ARCHIVABLE Program.
func NewProgram(f ProgramFields) (Program, error) {
	var missing []string
	if strings.TrimSpace(f.BroadcastID) == "" {
		missing = append(missing, "id")
	}
	if f.Start.IsZero() {
		missing = append(missing, "ft")
	}
	if f.End.IsZero() {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(f.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(f.StationID) == "" {
		missing = append(missing, "station id")
	}
	if strings.TrimSpace(f.AreaID) == "" {
		missing = append(missing, "area id")
	}
	if f.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return Program{}, fmt.Errorf("%w: missing %s", ErrInvalidProgram, strings.Join(missing, ", "))
	}
	return Program{
		BroadcastID: f.BroadcastID,
		Start:       f.Start,
		End:         f.End,
		Title:       f.Title,
		StationID:   f.StationID,
		AreaID:      f.AreaID,
		Date:        f.Date,
		Status:      StatusArchivable,
	}, nil
}

// StartStamp returns the encoded start instant. It panics on a zero start,
// which only a Program built outside NewProgram or a store can have.
func (p Program) StartStamp() string {
	if p.Start.IsZero() {
		panic(fmt.Sprintf("catalog: program %d has no start time", p.ID))
	}
	return broadcast.EncodeTime(p.Start)
}

// EndStamp returns the encoded end instant, panicking on a zero end.
func (p Program) EndStamp() string {
	if p.End.IsZero() {
		panic(fmt.Sprintf("catalog: program %d has no end time", p.ID))
	}
	return broadcast.EncodeTime(p.End)
}

// Request describes a single catalog transport call.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the raw result of a catalog transport call.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}
