package metastate

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Modem metadata field names as published on the modem topic.
const (
	FieldInterface = "InternalInterface"
	FieldOperator  = "Operator"
	FieldICCID     = "ICCID"
	FieldTimestamp = "Timestamp"
	FieldIPAddress = "IPAddress"
)

// RequiredModemFields must all be present before an interface is considered usable.
var RequiredModemFields = []string{
	FieldInterface,
	FieldOperator,
	FieldICCID,
	FieldTimestamp,
	FieldIPAddress,
}

// Modem is a point-in-time copy of the merged modem metadata.
type Modem map[string]any

// Has reports whether every key is present with a non-nil value.
func (m Modem) Has(keys ...string) bool {
	for _, key := range keys {
		if v, ok := m[key]; !ok || v == nil {
			return false
		}
	}
	return true
}

// String returns the field as a string when it holds one.
func (m Modem) String(key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Timestamp decodes the freshness timestamp (unix seconds, possibly fractional).
func (m Modem) Timestamp() (time.Time, bool) {
	var secs float64
	switch v := m[FieldTimestamp].(type) {
	case float64:
		secs = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	case int:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return time.Time{}, false
		}
		secs = f
	default:
		return time.Time{}, false
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))), true
}

// Fresh is the freshness predicate: all required fields are present and the
// modem timestamp is strictly less than grace old at now.
func Fresh(m Modem, now time.Time, grace time.Duration) bool {
	if !m.Has(RequiredModemFields...) {
		return false
	}
	ts, ok := m.Timestamp()
	if !ok {
		return false
	}
	return now.Sub(ts) < grace
}
