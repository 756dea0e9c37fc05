package types

import (
	"encoding/json"
	"math"
	"strconv"
)

// Location fix field names as published on the location topic.
const (
	FixSequenceNumber = "SequenceNumber"
	FixTimestamp      = "Timestamp"
	FixLatitude       = "Latitude"
	FixLongitude      = "Longitude"
)

// LocationFix is a single position report from the node's GNSS receiver as
// published on the location topic of the metadata feed. Every field of the
// message is kept as decoded; the accessors tolerate numbers sent as floats,
// integers or strings.
type LocationFix map[string]any

// Number returns a numeric field as float64.
func (f LocationFix) Number(key string) (float64, bool) {
	return toFloat(f[key])
}

func (f LocationFix) SequenceNumber() (int64, bool) {
	n, ok := f.Number(FixSequenceNumber)
	if !ok {
		return 0, false
	}
	return int64(n), true
}

func (f LocationFix) Timestamp() (float64, bool) { return f.Number(FixTimestamp) }
func (f LocationFix) Latitude() (float64, bool)  { return f.Number(FixLatitude) }
func (f LocationFix) Longitude() (float64, bool) { return f.Number(FixLongitude) }

// Clone returns a shallow copy; values are never mutated after decoding.
func (f LocationFix) Clone() LocationFix {
	if f == nil {
		return nil
	}
	out := make(LocationFix, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int32:
		n = float64(x)
	case int64:
		n = float64(x)
	case uint64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
