// Package analytics implements the dashboard chart computations: fixed
// time-window bucketing of event timestamps and the reply-latency estimate.
package analytics

import (
	"fmt"
	"time"
)

// Timeframe selects the charting window.
type Timeframe string

const (
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
	TimeframeYear  Timeframe = "year"
)

// Valid reports whether tf is a known charting window.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TimeframeDay, TimeframeWeek, TimeframeMonth, TimeframeYear:
		return true
	}
	return false
}

// Bucket is one (label, count) pair of a chart series.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// BucketSeries aggregates event timestamps into a fixed ordered series for
// the requested timeframe, anchored to now:
//
//	day   → 24 hourly buckets ending at the current hour
//	week  → 7 daily buckets, week starting Monday
//	month → buckets stepping floor(days_in_month/10) days through the month
//	year  → 12 monthly buckets of the current year
//
// A record is counted when its formatted label matches a generated bucket;
// records that format to no bucket are silently dropped. The function is
// pure given (records, timeframe, now).
func BucketSeries(records []time.Time, tf Timeframe, now time.Time) ([]Bucket, error) {
	labels, labelOf, err := bucketLabels(tf, now)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(labels))
	index := make(map[string]bool, len(labels))
	for _, label := range labels {
		counts[label] = 0
		index[label] = true
	}

	for _, rec := range records {
		label := labelOf(rec.In(now.Location()))
		if index[label] {
			counts[label]++
		}
	}

	series := make([]Bucket, 0, len(labels))
	for _, label := range labels {
		series = append(series, Bucket{Label: label, Count: counts[label]})
	}
	return series, nil
}

// WindowStart returns the beginning of the data window for a timeframe,
// used when fetching source records.
func WindowStart(tf Timeframe, now time.Time) (time.Time, error) {
	switch tf {
	case TimeframeDay:
		return now.Truncate(time.Hour).Add(-23 * time.Hour), nil
	case TimeframeWeek:
		return startOfWeek(now), nil
	case TimeframeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	case TimeframeYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("unknown timeframe %q", tf)
	}
}

func bucketLabels(tf Timeframe, now time.Time) ([]string, func(time.Time) string, error) {
	switch tf {
	case TimeframeDay:
		labelOf := func(t time.Time) string { return fmt.Sprintf("%02d:00", t.Hour()) }
		start := now.Truncate(time.Hour).Add(-23 * time.Hour)
		labels := make([]string, 0, 24)
		for i := 0; i < 24; i++ {
			labels = append(labels, labelOf(start.Add(time.Duration(i)*time.Hour)))
		}
		return labels, labelOf, nil

	case TimeframeWeek:
		labelOf := func(t time.Time) string { return t.Format("Mon") }
		start := startOfWeek(now)
		labels := make([]string, 0, 7)
		for i := 0; i < 7; i++ {
			labels = append(labels, labelOf(start.AddDate(0, 0, i)))
		}
		return labels, labelOf, nil

	case TimeframeMonth:
		labelOf := func(t time.Time) string { return t.Format("Jan 2") }
		days := daysInMonth(now)
		step := days / 10
		if step < 1 {
			step = 1
		}
		labels := make([]string, 0, 11)
		for day := 1; day <= days; day += step {
			labels = append(labels, labelOf(time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, now.Location())))
		}
		return labels, labelOf, nil

	case TimeframeYear:
		labelOf := func(t time.Time) string { return t.Format("Jan") }
		labels := make([]string, 0, 12)
		for m := time.January; m <= time.December; m++ {
			labels = append(labels, time.Date(now.Year(), m, 1, 0, 0, 0, 0, now.Location()).Format("Jan"))
		}
		return labels, labelOf, nil
	}
	return nil, nil, fmt.Errorf("unknown timeframe %q", tf)
}

// startOfWeek returns midnight of the Monday of now's week.
func startOfWeek(now time.Time) time.Time {
	offset := (int(now.Weekday()) + 6) % 7
	day := now.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}

func daysInMonth(now time.Time) int {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, 1, -1).Day()
}
