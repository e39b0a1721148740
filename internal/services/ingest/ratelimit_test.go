package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryAfter_FirstPingAdmitted(t *testing.T) {
	require.Zero(t, RetryAfter(nil, time.Now()))
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    int64
	}{
		{name: "immediately after", elapsed: 0, want: 30},
		{name: "ten seconds", elapsed: 10 * time.Second, want: 20},
		{name: "sub-second rounds up", elapsed: 29*time.Second + 500*time.Millisecond, want: 1},
		{name: "exactly at floor", elapsed: 30 * time.Second, want: 0},
		{name: "well past floor", elapsed: 5 * time.Minute, want: 0},
		{name: "future timestamp clamps", elapsed: -time.Minute, want: 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last := now.Add(-tt.elapsed)
			require.Equal(t, tt.want, RetryAfter(&last, now))
		})
	}
}
