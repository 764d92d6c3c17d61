package bikes

import (
	"fmt"
	"math"
	"time"
)

// BucketLabel rounds the time of day to the nearest resolution boundary
// and formats it as an "HH:MM" label. Exact halves round to the even
// multiple of the resolution, so with 10-minute buckets 08:05 lands in
// 08:00 and 08:15 in 08:20. Labels wrap at midnight: 23:55 lands in
// "00:00". Bucket keys are labels, not instants, so snapshots on
// different days share a bucket when their rounded time of day matches.
func BucketLabel(t time.Time, resolution time.Duration) string {
	res := int(resolution.Seconds())
	if res <= 0 {
		res = 600
	}

	secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
	q, rem := secs/res, secs%res
	switch {
	case rem*2 > res:
		q++
	case rem*2 == res && q%2 == 1:
		q++
	}
	rounded := q * res % (24 * 3600)

	return fmt.Sprintf("%02d:%02d", rounded/3600, rounded%3600/60)
}

// IsWeekend reports whether t falls on a Saturday or Sunday in its own
// location's calendar.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MonthStart normalizes t to midnight on the first day of its month,
// keeping t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// meanStddev returns the arithmetic mean and the sample standard
// deviation (n-1 denominator) of values. A single sample has a standard
// deviation of 0, never NaN.
func meanStddev(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	if len(values) < 2 {
		return mean, 0
	}

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / (n - 1))
}
