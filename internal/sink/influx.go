package sink

import (
	"context"
	"fmt"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/cellprobehq/agent/internal/config"
	"github.com/cellprobehq/agent/pkg/types"
)

const influxMeasurement = "probe_download"

// InfluxSink writes one point per result.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxSink(cfg config.InfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{client: client, writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}
}

func (s *InfluxSink) Name() string { return "influxdb" }

func (s *InfluxSink) Save(ctx context.Context, result types.ProbeResult) error {
	if err := s.writeAPI.WritePoint(ctx, Point(result)); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// Point renders a result as a line-protocol point. The last fix of the probe
// window, if any, geotags the point.
func Point(result types.ProbeResult) *write.Point {
	p := influxdb2.NewPointWithMeasurement(influxMeasurement).
		AddTag("node", result.NodeID).
		AddTag("operator", result.Operator).
		AddTag("interface", result.InterfaceName).
		AddTag("data_id", result.DataID).
		AddField("host", result.Host).
		AddField("speed", result.Speed).
		AddField("bytes", result.Bytes).
		AddField("total_time", result.TotalTime).
		AddField("setup_time", result.SetupTime).
		AddField("download_time", result.DownloadTime).
		AddField("fixes", len(result.GPSPositions)).
		SetTime(unixSeconds(result.Timestamp))
	if result.ICCID != "" {
		p.AddTag("iccid", result.ICCID)
	}
	if fix, ok := result.LastPosition(); ok {
		lat, latOK := fix.Latitude()
		lon, lonOK := fix.Longitude()
		if latOK && lonOK {
			p.AddField("latitude", lat).AddField("longitude", lon)
		}
	}
	return p
}

func unixSeconds(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
