package catalog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radikoarchive/radiko-archiver/internal/broadcast"
)

func validFields() ProgramFields {
	start := time.Date(2021, time.January, 16, 5, 0, 0, 0, broadcast.JST)
	return ProgramFields{
		BroadcastID: "10001",
		Start:       start,
		End:         start.Add(time.Hour),
		Title:       "ZAPPA",
		StationID:   "FMJ",
		AreaID:      "JP13",
		Date:        broadcast.NewDate(2021, time.January, 16),
	}
}

func TestNewProgramDefaultsToArchivable(t *testing.T) {
	t.Parallel()

	p, err := NewProgram(validFields())
	require.NoError(t, err)
	require.Equal(t, StatusArchivable, p.Status)
	require.Equal(t, "20210116050000", p.StartStamp())
	require.Equal(t, "20210116060000", p.EndStamp())
}

func TestNewProgramRejectsMissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*ProgramFields)
		want   string
	}{
		{"missing start", func(f *ProgramFields) { f.Start = time.Time{} }, "ft"},
		{"missing end", func(f *ProgramFields) { f.End = time.Time{} }, "to"},
		{"blank title", func(f *ProgramFields) { f.Title = "  " }, "title"},
		{"missing station", func(f *ProgramFields) { f.StationID = "" }, "station id"},
		{"missing area", func(f *ProgramFields) { f.AreaID = "" }, "area id"},
		{"missing id", func(f *ProgramFields) { f.BroadcastID = "" }, "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := validFields()
			tt.mutate(&f)
			_, err := NewProgram(f)
			require.True(t, errors.Is(err, ErrInvalidProgram), "got %v", err)
			require.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}

func TestStartStampPanicsWithoutStart(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { _ = Program{}.StartStamp() })
	require.Panics(t, func() { _ = Program{}.EndStamp() })
}

func TestNewStation(t *testing.T) {
	t.Parallel()

	s, err := NewStation("FMJ", "J-WAVE")
	require.NoError(t, err)
	require.Equal(t, Station{ID: "FMJ", Name: "J-WAVE"}, s)

	_, err = NewStation("", "")
	require.ErrorIs(t, err, ErrInvalidStation)
}
