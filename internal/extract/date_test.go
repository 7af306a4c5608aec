package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-14", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"2026/03/14", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"March 14, 2026", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"Mar 14, 2026", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"14 March 2026", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"March 2026", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-03", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2025", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"3 months ago", now.AddDate(0, -3, 0)},
		{"a month ago", now.AddDate(0, -1, 0)},
		{"1 year ago", now.AddDate(-1, 0, 0)},
		{"2 weeks ago", now.AddDate(0, 0, -14)},
		{"about 5 days ago", now.AddDate(0, 0, -5)},
	}
	for _, tt := range tests {
		got, ok := parseDate(tt.in, now)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseDate_Unusable(t *testing.T) {
	t.Parallel()

	now := time.Now()
	for _, in := range []string{"", "  ", "yesterday-ish", "soon", "Q3"} {
		_, ok := parseDate(in, now)
		assert.False(t, ok, in)
	}
}
