// Package radiko speaks the broadcaster's HTTP API: catalog URLs, the
// auth1/auth2 handshake, and timefree playlist resolution.
package radiko

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
	"github.com/radikoarchive/radiko-archiver/internal/catalog"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://radiko.jp"

// Endpoints builds API URLs relative to a base URL.
type Endpoints struct {
	base string
}

// NewEndpoints validates base and returns an Endpoints. An empty base uses
// DefaultBaseURL.
func NewEndpoints(base string) (Endpoints, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoints{}, fmt.Errorf("base url %q must be http or https", base)
	}
	return Endpoints{base: strings.TrimRight(base, "/")}, nil
}

// ProgramListing is the per-date program listing for an area.
func (e Endpoints) ProgramListing(day broadcast.Date, areaID string) string {
	return fmt.Sprintf("%s/v3/program/date/%s/%s.xml", e.base, day.Encode(), url.PathEscape(areaID))
}

// StationList is the station list for an area.
func (e Endpoints) StationList(areaID string) string {
	return fmt.Sprintf("%s/v3/station/list/%s.xml", e.base, url.PathEscape(areaID))
}

// Auth1 is the first handshake step.
func (e Endpoints) Auth1() string {
	return e.base + "/v2/api/auth1"
}

// Auth2 is the second handshake step.
func (e Endpoints) Auth2() string {
	return e.base + "/v2/api/auth2"
}

// Playlist is the timefree HLS playlist for p.
func (e Endpoints) Playlist(p catalog.Program) string {
	q := url.Values{}
	q.Set("station_id", p.StationID)
	q.Set("l", "15")
	q.Set("ft", p.StartStamp())
	q.Set("to", p.EndStamp())
	return e.base + "/v2/api/ts/playlist.m3u8?" + q.Encode()
}
