package period

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_DefaultsToPreviousMonth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  time.Time
		want string
	}{
		{"mid month", time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC), "2026-01"},
		{"first instant", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), "2026-02"},
		{"january rolls year", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), "2025-12"},
		{"non-UTC reference uses UTC month", time.Date(2026, 3, 1, 1, 0, 0, 0, time.FixedZone("CET", 2*3600)), "2026-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Compute(tt.ref, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.MonthKey)
		})
	}
}

func TestCompute_Override(t *testing.T) {
	t.Parallel()

	p, err := Compute(time.Now(), "2026-01")
	require.NoError(t, err)

	assert.Equal(t, "2026-01", p.MonthKey)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), p.Start)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.EndExclusive)
	assert.Equal(t, "2025-12", p.PrevMonthKey)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), p.PrevStart)
	assert.Equal(t, p.Start, p.PrevEndExclusive)
	assert.Equal(t, 31, p.Days())

	assert.Equal(t, "2026-01-01", p.Current().From)
	assert.Equal(t, "2026-01-31", p.Current().To)
	assert.Equal(t, "2025-12-01", p.Previous().From)
	assert.Equal(t, "2025-12-31", p.Previous().To)
	assert.Equal(t, "2026-01-01T00:00:00Z", p.CurrentDateTimes().From)
	assert.Equal(t, "2026-02-01T00:00:00Z", p.CurrentDateTimes().Until)
}

func TestCompute_InvalidOverride(t *testing.T) {
	t.Parallel()

	for _, override := range []string{"2026-13", "2026-00", "2026-1", "26-01", "2026/01", "abcd-ef", "2026-01-01", " 2026-01", "0000-05"} {
		t.Run(override, func(t *testing.T) {
			t.Parallel()

			_, err := Compute(time.Now(), override)
			require.ErrorIs(t, err, ErrInvalidMonth)
		})
	}
}

func TestCompute_ContiguousMonths(t *testing.T) {
	t.Parallel()

	for year := 2023; year <= 2028; year++ {
		for month := 1; month <= 12; month++ {
			key := fmt.Sprintf("%04d-%02d", year, month)
			p, err := Compute(time.Time{}, key)
			require.NoError(t, err, key)

			next := Next(p)
			assert.Equal(t, p.EndExclusive, next.Start, key)
			assert.Equal(t, p.Start.AddDate(0, 1, 0), p.EndExclusive, key)
			assert.Equal(t, p.Start.AddDate(0, -1, 0), p.PrevStart, key)
			assert.Equal(t, p.Start, p.PrevEndExclusive, key)
			assert.Equal(t, p.MonthKey, next.PrevMonthKey, key)
		}
	}
}

func TestWeeks_PartitionMonth(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"2026-01", "2026-02", "2024-02", "2026-04", "2027-02"} {
		t.Run(key, func(t *testing.T) {
			t.Parallel()

			p, err := Compute(time.Time{}, key)
			require.NoError(t, err)

			weeks := Weeks(p)
			require.NotEmpty(t, weeks)
			assert.Equal(t, p.Start, weeks[0].Start)
			assert.Equal(t, p.EndExclusive, weeks[len(weeks)-1].EndExclusive)

			seen := make(map[string]bool)
			for i, w := range weeks {
				assert.LessOrEqual(t, w.Days(), 7)
				assert.Positive(t, w.Days())
				if i < len(weeks)-1 {
					assert.Equal(t, 7, w.Days())
					assert.Equal(t, w.EndExclusive, weeks[i+1].Start)
				}
				for d := w.Start; d.Before(w.EndExclusive); d = d.AddDate(0, 0, 1) {
					day := d.Format("2006-01-02")
					assert.False(t, seen[day], "day %s covered twice", day)
					seen[day] = true
				}
			}
			assert.Len(t, seen, p.Days())
		})
	}
}

func TestWeeks_Labels(t *testing.T) {
	t.Parallel()

	p, err := Compute(time.Time{}, "2026-01")
	require.NoError(t, err)

	weeks := Weeks(p)
	require.Len(t, weeks, 5)
	assert.Equal(t, "Week 1 (Jan 1 - Jan 7)", weeks[0].Label)
	assert.Equal(t, "Week 5 (Jan 29 - Jan 31)", weeks[4].Label)
	assert.Equal(t, 3, weeks[4].Days())
}

func TestMonthLabel(t *testing.T) {
	t.Parallel()

	p, err := Compute(time.Time{}, "2026-01")
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal(t, "January 2026", MonthLabel(p, time.UTC))
	assert.Equal(t, "January 2026", MonthLabel(p, ny))
	assert.Equal(t, "January 2026", MonthLabel(p, nil))
}
