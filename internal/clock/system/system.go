// Package system provides the wall clock in the broadcaster's zone.
package system

import (
	"time"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
)

// Clock implements catalog.Clock using time.Now in JST.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in JST.
func (Clock) Now() time.Time {
	return time.Now().In(broadcast.JST)
}
