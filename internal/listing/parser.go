// Package listing turns catalog XML documents into field maps and converts
// those into catalog entities, dropping entries that fail validation.
package listing

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ErrMissingField is returned by Fields.Get for an absent or blank field.
var ErrMissingField = errors.New("missing field")

// Field names shared by parser and converter.
const (
	FieldID          = "id"
	FieldStart       = "ft"
	FieldEnd         = "to"
	FieldTitle       = "title"
	FieldStationID   = "station_id"
	FieldStationName = "station_name"
	FieldName        = "name"
)

// Fields holds the raw values of one listing entry, keyed by field name.
type Fields map[string]string

// Get returns the trimmed value of name or ErrMissingField.
func (f Fields) Get(name string) (string, error) {
	v, ok := f[name]
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return strings.TrimSpace(v), nil
}

// ParsePrograms extracts every <prog> of a date listing, one Fields per
// program, carrying the enclosing station's id and name.
func ParsePrograms(body []byte) ([]Fields, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse program listing: %w", err)
	}
	stations, err := xmlquery.QueryAll(doc, "//stations/station")
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	var out []Fields
	for _, station := range stations {
		progs, err := xmlquery.QueryAll(station, "progs/prog")
		if err != nil {
			return nil, fmt.Errorf("query programs: %w", err)
		}
		stationID := station.SelectAttr("id")
		stationName := childText(station, "name")
		for _, prog := range progs {
			out = append(out, Fields{
				FieldID:          prog.SelectAttr("id"),
				FieldStart:       prog.SelectAttr("ft"),
				FieldEnd:         prog.SelectAttr("to"),
				FieldTitle:       childText(prog, "title"),
				FieldStationID:   stationID,
				FieldStationName: stationName,
			})
		}
	}
	return out, nil
}

// ParseStations extracts every <station> of a region station list.
func ParseStations(body []byte) ([]Fields, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse station list: %w", err)
	}
	stations, err := xmlquery.QueryAll(doc, "//stations/station")
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	out := make([]Fields, 0, len(stations))
	for _, station := range stations {
		out = append(out, Fields{
			FieldID:   childText(station, "id"),
			FieldName: childText(station, "name"),
		})
	}
	return out, nil
}

func childText(n *xmlquery.Node, name string) string {
	child := n.SelectElement(name)
	if child == nil {
		return ""
	}
	return child.InnerText()
}
