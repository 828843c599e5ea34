package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestProratedQuantityPerHour(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int64
	}{
		{"exact hours", date(2019, 8, 9, 10), date(2019, 8, 9, 14), 4},
		{"partial hour rounds up", date(2019, 8, 9, 10), date(2019, 8, 9, 10).Add(90 * time.Minute), 2},
		{"zero window", date(2019, 8, 9, 10), date(2019, 8, 9, 10), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProratedQuantity(UnitPerHour, tc.start, tc.end)
			require.True(t, decimal.NewFromInt(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestProratedQuantityPerDay(t *testing.T) {
	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int64
	}{
		{"two weeks across month boundary", date(2016, 11, 17, 14), date(2016, 12, 1, 14), 14},
		{"36 hours rounds up to two days", date(2016, 11, 1, 0), date(2016, 11, 2, 12), 2},
		{"single partial day", date(2016, 11, 1, 10), date(2016, 11, 1, 12), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProratedQuantity(UnitPerDay, tc.start, tc.end)
			require.True(t, decimal.NewFromInt(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestProratedQuantityPerMonth(t *testing.T) {
	t.Run("full month is one", func(t *testing.T) {
		got := ProratedQuantity(UnitPerMonth, date(2016, 11, 1, 0), date(2016, 11, 30, 23))
		require.True(t, decimal.NewFromInt(1).Equal(got), "got %s", got)
	})

	t.Run("eight of thirty days", func(t *testing.T) {
		got := ProratedQuantity(UnitPerMonth, date(2016, 11, 1, 14), date(2016, 11, 8, 14))
		want := decimal.NewFromInt(8).Div(decimal.NewFromInt(30)).Round(QuantityScale)
		require.True(t, want.Equal(got), "got %s want %s", got, want)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := ProratedQuantity(UnitPerMonth, date(2016, 11, 3, 7), date(2016, 11, 20, 9))
		b := ProratedQuantity(UnitPerMonth, date(2016, 11, 3, 7), date(2016, 11, 20, 9))
		require.Equal(t, a.String(), b.String())
	})
}

func TestProratedQuantityPerHalfMonth(t *testing.T) {
	cases := []struct {
		name     string
		startDay int
		endDay   int
		want     string
	}{
		{"first half exactly", 1, 15, "1"},
		{"second half exactly", 16, 30, "1"},
		{"whole month", 1, 30, "2"},
		{"first half plus five days", 1, 20, "1.3333333"},
		{"second half plus ten days", 6, 30, "1.6666667"},
		{"inside first half", 3, 10, "0.5333333"},
		{"inside second half", 17, 25, "0.6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := date(2016, 11, tc.startDay, 0)
			end := date(2016, 11, tc.endDay, 23)
			got := ProratedQuantity(UnitPerHalfMonth, start, end)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestFullHoursAndDays(t *testing.T) {
	start := date(2020, 2, 1, 0)
	require.Equal(t, int64(0), FullHours(start, start.Add(-time.Hour)))
	require.Equal(t, int64(1), FullHours(start, start.Add(time.Minute)))
	require.Equal(t, int64(24), FullHours(start, start.Add(24*time.Hour)))
	require.Equal(t, int64(2), FullDays(start, start.Add(36*time.Hour)))
}

func TestMonthHelpers(t *testing.T) {
	require.Equal(t, 29, MonthDays(date(2020, 2, 10, 0)))
	require.Equal(t, 30, MonthDays(date(2016, 11, 10, 0)))
	require.Equal(t, date(2016, 11, 1, 0), MonthStart(date(2016, 11, 17, 14)))
	require.Equal(t, 30, MonthEnd(date(2016, 11, 17, 14)).Day())
	require.Equal(t, date(2016, 10, 1, 0), PreviousMonth(date(2016, 11, 17, 14)))
}

func TestQuantizeHalfUp(t *testing.T) {
	d := decimal.RequireFromString("0.26666665")
	require.Equal(t, "0.2666667", Quantize(d).String())
	d = decimal.RequireFromString("0.26666664")
	require.Equal(t, "0.2666666", Quantize(d).String())
}
