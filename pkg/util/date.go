package util

import "time"

// WindowBounds returns the epoch-aligned window of length d containing t.
func WindowBounds(t time.Time, d time.Duration) (time.Time, time.Time) {
	start := t.UTC().Truncate(d)
	return start, start.Add(d)
}

// MillisToTime converts unix milliseconds, as sent by most exchange feeds.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// EpochToTime accepts unix seconds or milliseconds and picks by magnitude.
func EpochToTime(v int64) time.Time {
	if v < 1e11 {
		return time.Unix(v, 0).UTC()
	}
	return MillisToTime(v)
}
