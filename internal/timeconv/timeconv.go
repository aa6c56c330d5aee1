// Package timeconv converts gateway epoch-millisecond timestamps to
// ISO-8601 strings.
package timeconv

import (
	"encoding/json"
	"math"
	"time"
)

// maxEpochMillis is 9999-12-31T23:59:59.999Z; anything beyond is treated as
// garbage input rather than a representable time.
const maxEpochMillis = 253402300799999

// ISOFromMillis converts an epoch-millisecond timestamp to a UTC ISO-8601
// string with a +00:00 offset. Missing, non-numeric, or out-of-range input
// yields ok=false, never an error or panic. Sub-second precision is kept
// when present.
func ISOFromMillis(raw json.Number) (string, bool) {
	if raw.String() == "" {
		return "", false
	}

	ms, err := raw.Int64()
	if err != nil {
		f, ferr := raw.Float64()
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		ms = int64(f)
	}

	if ms < 0 || ms > maxEpochMillis {
		return "", false
	}

	t := time.UnixMilli(ms).UTC()
	layout := "2006-01-02T15:04:05"
	if ms%1000 != 0 {
		layout = "2006-01-02T15:04:05.000"
	}
	return t.Format(layout) + "+00:00", true
}
