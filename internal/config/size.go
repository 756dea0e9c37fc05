package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count. The scheduler writes it as a plain integer, which
// is taken as bytes (the probe requests the range 0..size-1). A unit suffix
// ("3KiB", "1.5MB") is accepted as well.
type ByteSize int64

func (b ByteSize) Int64() int64 { return int64(b) }

var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"kb":  1000,
	"kib": 1 << 10,
	"mb":  1000 * 1000,
	"mib": 1 << 20,
	"gb":  1000 * 1000 * 1000,
	"gib": 1 << 30,
	"tb":  1000 * 1000 * 1000 * 1000,
	"tib": 1 << 40,
}

// ParseSize parses a byte count with an optional unit suffix. Units are case
// insensitive; negative sizes are rejected.
func ParseSize(value string) (ByteSize, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("parse size: empty value")
	}
	split := strings.LastIndexAny(raw, "0123456789.") + 1
	number := strings.TrimSpace(raw[:split])
	mult, ok := sizeUnits[strings.ToLower(strings.TrimSpace(raw[split:]))]
	if !ok {
		return 0, fmt.Errorf("parse size %q: unknown unit %q", value, raw[split:])
	}
	if n, err := strconv.ParseInt(number, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("parse size %q: negative", value)
		}
		return ByteSize(n * mult), nil
	}
	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", value, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("parse size %q: negative", value)
	}
	return ByteSize(f * float64(mult)), nil
}
