package db

import (
	"context"
	"fmt"
	"time"
)

// TypeCount is a per-type corpus count.
type TypeCount struct {
	Type  ViolationType `json:"type"`
	Count int64         `json:"count"`
}

// TrackerStats is the read model behind the stats command and endpoint.
type TrackerStats struct {
	ActiveViolations  int64       `json:"active_violations"`
	DeletedViolations int64       `json:"deleted_violations"`
	VerifiedCount     int64       `json:"verified_count"`
	TotalDeaths       int64       `json:"total_deaths"`
	MergeCount        int64       `json:"merge_count"`
	ByType            []TypeCount `json:"by_type"`
	LastRecordedAt    *time.Time  `json:"last_recorded_at,omitempty"`
}

// QueryTrackerStats aggregates corpus and merge counters.
func (p *Pool) QueryTrackerStats(ctx context.Context) (*TrackerStats, error) {
	stats := &TrackerStats{ByType: make([]TypeCount, 0, len(KnownViolationTypes))}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM tracker.violations v WHERE v.deleted_at IS NULL) AS active_violations,
	(SELECT COUNT(*) FROM tracker.violations v WHERE v.deleted_at IS NOT NULL) AS deleted_violations,
	(SELECT COUNT(*) FROM tracker.violations v WHERE v.deleted_at IS NULL AND v.verified) AS verified_count,
	(SELECT COALESCE(SUM(v.deaths), 0) FROM tracker.violations v WHERE v.deleted_at IS NULL) AS total_deaths,
	(SELECT COUNT(*) FROM tracker.violation_merges) AS merge_count,
	(SELECT MAX(v.created_at) FROM tracker.violations v WHERE v.deleted_at IS NULL) AS last_recorded_at
`
	row := p.gdb.WithContext(ctx).Raw(totalsQuery).Row()
	if err := row.Scan(
		&stats.ActiveViolations,
		&stats.DeletedViolations,
		&stats.VerifiedCount,
		&stats.TotalDeaths,
		&stats.MergeCount,
		&stats.LastRecordedAt,
	); err != nil {
		return nil, fmt.Errorf("query tracker totals: %w", err)
	}

	const byTypeQuery = `
SELECT v.type, COUNT(*)::BIGINT AS count
FROM tracker.violations v
WHERE v.deleted_at IS NULL
GROUP BY v.type
ORDER BY count DESC, v.type
`
	rows, err := p.gdb.WithContext(ctx).Raw(byTypeQuery).Rows()
	if err != nil {
		return nil, fmt.Errorf("query per-type counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan per-type count: %w", err)
		}
		stats.ByType = append(stats.ByType, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate per-type counts: %w", err)
	}

	return stats, nil
}
