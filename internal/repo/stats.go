package repo

import (
	"context"
	"fmt"
	"time"
)

// eventTables whitelists analytics sources to their table and timestamp column.
var eventTables = map[string][2]string{
	"users":       {"users", "created_at"},
	"sessions":    {"sessions", "started_at"},
	"messages":    {"messages", "created_at"},
	"escalations": {"escalations", "created_at"},
}

// ListEventTimes returns the event timestamps for one entity within [from, to),
// feeding the time-series bucketing.
func (r *Repository) ListEventTimes(ctx context.Context, entity string, from, to time.Time) ([]time.Time, error) {
	src, ok := eventTables[entity]
	if !ok {
		return nil, fmt.Errorf("list event times: unknown entity %q", entity)
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s >= $1 AND %s < $2 ORDER BY %s;`,
		src[1], src[0], src[1], src[1], src[1])
	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("list event times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan event time: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event times: %w", err)
	}
	return times, nil
}
