package catalog

import (
	"context"
	"io"
	"time"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
)

// Store persists stations and programs. Implementations must make SaveDay
// all-or-nothing and run Transition as a locked read-modify-write scoped to
// one program row.
type Store interface {
	StationsEmpty(ctx context.Context) (bool, error)
	SaveStations(ctx context.Context, stations []Station) error
	// CountPrograms returns how many programs are stored for the given day.
	CountPrograms(ctx context.Context, day broadcast.Date) (int, error)
	// SaveDay inserts a day's listing in a single transaction. Stations that
	// already exist are left untouched.
	SaveDay(ctx context.Context, day broadcast.Date, stations []Station, programs []Program) error
	// FindArchivable returns ARCHIVABLE programs whose title contains any
	// keyword, ordered by start ascending.
	FindArchivable(ctx context.Context, keywords []string) ([]Program, error)
	// DeleteBefore removes programs whose day is strictly before boundary.
	DeleteBefore(ctx context.Context, boundary broadcast.Date) (int64, error)
	// Transition locks the program row, re-reads its status, and writes to
	// if CanTransition allows it. It returns the status that was replaced.
	Transition(ctx context.Context, id int64, to Status) (Status, error)
	GetProgram(ctx context.Context, id int64) (Program, error)
	ListPrograms(ctx context.Context, status Status) ([]Program, error)
}

// Fetcher performs a single catalog transport call. Timeouts surface as
// ErrTimeout and non-200 responses as *StatusError.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces correlation ids for sync runs and archive attempts.
type IDGenerator interface {
	NewID() (string, error)
}

// BlobStore copies a finished archive to durable storage and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher announces finished archives.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
