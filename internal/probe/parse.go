package probe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cellprobehq/agent/pkg/types"
)

type rawMetrics struct {
	Host      *string      `json:"Host"`
	Port      *string      `json:"Port"`
	Speed     *json.Number `json:"Speed"`
	Bytes     *json.Number `json:"Bytes"`
	TotalTime *json.Number `json:"TotalTime"`
	SetupTime *json.Number `json:"SetupTime"`
}

// ParseMetrics decodes the probe report. Every metric must be present.
func ParseMetrics(out []byte) (types.ProbeMetrics, error) {
	out = bytes.Trim(out, " \t\r\n\x00")
	if len(out) == 0 {
		return types.ProbeMetrics{}, fmt.Errorf("%w: empty output", ErrParse)
	}
	var raw rawMetrics
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return types.ProbeMetrics{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var missing []string
	if raw.Host == nil {
		missing = append(missing, "Host")
	}
	if raw.Port == nil {
		missing = append(missing, "Port")
	}
	if raw.Speed == nil {
		missing = append(missing, "Speed")
	}
	if raw.Bytes == nil {
		missing = append(missing, "Bytes")
	}
	if raw.TotalTime == nil {
		missing = append(missing, "TotalTime")
	}
	if raw.SetupTime == nil {
		missing = append(missing, "SetupTime")
	}
	if len(missing) > 0 {
		return types.ProbeMetrics{}, fmt.Errorf("%w: missing %s", ErrParse, strings.Join(missing, ", "))
	}

	m := types.ProbeMetrics{Host: *raw.Host, Port: *raw.Port}
	var err error
	if m.Speed, err = number("Speed", *raw.Speed); err != nil {
		return types.ProbeMetrics{}, err
	}
	size, err := number("Bytes", *raw.Bytes)
	if err != nil {
		return types.ProbeMetrics{}, err
	}
	m.Bytes = int64(math.Round(size))
	if m.TotalTime, err = number("TotalTime", *raw.TotalTime); err != nil {
		return types.ProbeMetrics{}, err
	}
	if m.SetupTime, err = number("SetupTime", *raw.SetupTime); err != nil {
		return types.ProbeMetrics{}, err
	}
	return m, nil
}

func number(field string, n json.Number) (float64, error) {
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrParse, field, err)
	}
	return f, nil
}
