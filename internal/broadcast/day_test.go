package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func jst(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, JST)
}

func TestWindowBounds(t *testing.T) {
	t.Parallel()

	now := jst(2021, time.January, 23, 12, 0, 0)
	require.Equal(t, NewDate(2021, time.January, 16), OldestFetchableDate(now))
	require.Equal(t, NewDate(2021, time.January, 22), NewestCompleteDate(now))

	beforeRollover := jst(2021, time.January, 23, 4, 59, 59)
	require.Equal(t, NewDate(2021, time.January, 15), OldestFetchableDate(beforeRollover))
	require.Equal(t, NewDate(2021, time.January, 21), NewestCompleteDate(beforeRollover))
}

func TestWindowGapIsAlwaysSixDays(t *testing.T) {
	t.Parallel()

	start := jst(2020, time.February, 25, 0, 0, 0)
	for i := 0; i < 24*400; i += 7 {
		now := start.Add(time.Duration(i) * time.Hour)
		oldest := OldestFetchableDate(now)
		newest := NewestCompleteDate(now)
		require.False(t, newest.Before(oldest), "now=%s", now)
		require.Equal(t, 6, newest.DaysSince(oldest), "now=%s", now)
		require.Len(t, Window(now), 7)
	}
}

func TestSameDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{
			name: "before rollover belongs to previous day",
			a:    jst(2021, time.November, 21, 4, 59, 59),
			b:    jst(2021, time.November, 20, 5, 0, 0),
			want: true,
		},
		{
			name: "rollover starts a new day",
			a:    jst(2021, time.November, 21, 4, 59, 59),
			b:    jst(2021, time.November, 21, 5, 0, 0),
			want: false,
		},
		{
			name: "reflexive",
			a:    jst(2021, time.November, 21, 13, 0, 0),
			b:    jst(2021, time.November, 21, 13, 0, 0),
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, SameDay(tt.a, tt.b))
			require.Equal(t, tt.want, SameDay(tt.b, tt.a))
		})
	}
}

func TestRange(t *testing.T) {
	t.Parallel()

	from := NewDate(2020, time.December, 30)
	to := NewDate(2021, time.January, 2)
	require.Equal(t, []Date{
		NewDate(2020, time.December, 30),
		NewDate(2020, time.December, 31),
		NewDate(2021, time.January, 1),
		NewDate(2021, time.January, 2),
	}, Range(from, to))
	require.Empty(t, Range(to, from))
	require.Equal(t, []Date{from}, Range(from, from))
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	ft := jst(2021, time.January, 16, 5, 0, 0)
	require.Equal(t, "20210116050000", EncodeTime(ft))
	require.Equal(t, "20210116050000", EncodeTime(ft.UTC()))

	decoded, err := DecodeTime("20210116050000")
	require.NoError(t, err)
	require.True(t, decoded.Equal(ft))

	_, err = DecodeTime("2021-01-16")
	require.Error(t, err)

	d, err := DecodeDate("20210116")
	require.NoError(t, err)
	require.Equal(t, NewDate(2021, time.January, 16), d)
	require.Equal(t, "20210116", d.Encode())
	require.Equal(t, "2021-01-16", d.String())
}

func TestInGraceWindow(t *testing.T) {
	t.Parallel()

	require.True(t, InGraceWindow(jst(2021, time.January, 16, 5, 0, 0)))
	require.True(t, InGraceWindow(jst(2021, time.January, 16, 5, 15, 59)))
	require.False(t, InGraceWindow(jst(2021, time.January, 16, 5, 16, 0)))
	require.False(t, InGraceWindow(jst(2021, time.January, 16, 4, 59, 0)))
	require.True(t, InGraceWindow(time.Date(2021, time.January, 15, 20, 5, 0, 0, time.UTC)))
}
