package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIllegalTransition is returned when a status change is not allowed from
// the program's current status.
var ErrIllegalTransition = errors.New("illegal status transition")

// Status is a program's archive lifecycle state. The integer values are the
// codes persisted in the store.
type Status int

const (
	// StatusArchivable means the program may be picked up by the matcher.
	StatusArchivable Status = 0
	// StatusArchiving means a capture was started.
	StatusArchiving Status = 1
	// StatusSuspended means the capture was interrupted by cancellation.
	StatusSuspended Status = 2
	// StatusFailed means the output already existed and the run skipped it.
	StatusFailed Status = 3
	// StatusArchived means the capture completed.
	StatusArchived Status = 4
)

var statusNames = map[Status]string{
	StatusArchivable: "ARCHIVABLE",
	StatusArchiving:  "ARCHIVING",
	StatusSuspended:  "SUSPENDED",
	StatusFailed:     "FAILED",
	StatusArchived:   "ARCHIVED",
}

// String returns the upper-case status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s is a known status code.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus converts a case-insensitive status name into a Status.
func ParseStatus(name string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == upper {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// CanTransition reports whether a program in status from may move to status to.
// Re-marking as ARCHIVABLE is the operator recovery path and is allowed from
// any status.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	switch to {
	case StatusArchivable:
		return true
	case StatusArchiving:
		return from == StatusArchivable
	case StatusSuspended, StatusFailed, StatusArchived:
		return from == StatusArchiving
	default:
		return false
	}
}

// CheckTransition returns ErrIllegalTransition, annotated with both states,
// when CanTransition is false.
func CheckTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
