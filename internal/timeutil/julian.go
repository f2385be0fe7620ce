// Package timeutil holds the pipeline's time plumbing: Julian-date
// conversions used at the ingest and API boundaries, and a small clock
// abstraction so batch timings are testable.
//
// Internally everything runs on Unix seconds (float64); Julian dates only
// appear where astronomers expect them.
package timeutil

import "time"

// unixEpochJD is the Julian date of 1970-01-01T00:00:00 UTC.
const unixEpochJD = 2440587.5

const secondsPerDay = 86400.0

// JulianToUnix converts a Julian date to Unix seconds.
func JulianToUnix(jd float64) float64 {
	return (jd - unixEpochJD) * secondsPerDay
}

// UnixToJulian converts Unix seconds to a Julian date.
func UnixToJulian(unix float64) float64 {
	return unix/secondsPerDay + unixEpochJD
}

// JulianToTime converts a Julian date to a time.Time in UTC.
func JulianToTime(jd float64) time.Time {
	unix := JulianToUnix(jd)
	sec := int64(unix)
	nsec := int64((unix - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// TimeToJulian converts a time.Time to a Julian date.
func TimeToJulian(t time.Time) float64 {
	return UnixToJulian(float64(t.UnixNano()) / 1e9)
}
