package stats

import "testing"

func TestPoolStatsString(t *testing.T) {
	tests := []struct {
		name  string
		stats PoolStats
		want  string
	}{
		{"no waits", PoolStats{Driver: "pgx", MaxConns: 2, ActiveConns: 1, IdleConns: 1},
			"pgx: 1/2 active, 1 idle, 0 waits (0.0ms avg)"},
		{"average wait", PoolStats{Driver: "pq", MaxConns: 4, ActiveConns: 4, WaitCount: 4, WaitTimeMs: 10},
			"pq: 4/4 active, 0 idle, 4 waits (2.5ms avg)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
