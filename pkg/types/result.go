package types

// ProbeMetrics is the measurement reported by the probe collaborator.
type ProbeMetrics struct {
	Host      string  `json:"Host" yaml:"host"`
	Port      string  `json:"Port" yaml:"port"`
	Speed     float64 `json:"Speed" yaml:"speed"`
	Bytes     int64   `json:"Bytes" yaml:"bytes"`
	TotalTime float64 `json:"TotalTime" yaml:"total_time"`
	SetupTime float64 `json:"SetupTime" yaml:"setup_time"`
}

// ProbeResult is the record handed to result sinks once a probe finished on
// an unchanged interface. Field names follow the exporter format expected by
// downstream collection (Guid, DataId, DataVersion, NodeId, SequenceNumber).
type ProbeResult struct {
	ProbeMetrics

	GUID           string        `json:"Guid" yaml:"guid"`
	DataID         string        `json:"DataId" yaml:"data_id"`
	DataVersion    int           `json:"DataVersion" yaml:"data_version"`
	NodeID         string        `json:"NodeId" yaml:"node_id"`
	SequenceNumber int64         `json:"SequenceNumber" yaml:"sequence_number"`
	Timestamp      float64       `json:"Timestamp" yaml:"timestamp"`
	ICCID          string        `json:"Iccid" yaml:"iccid"`
	InterfaceName  string        `json:"InterfaceName" yaml:"interface_name"`
	Operator       string        `json:"Operator" yaml:"operator"`
	DownloadTime   float64       `json:"DownloadTime" yaml:"download_time"`
	GPSPositions   []LocationFix `json:"GPSPositions" yaml:"gps_positions"`
}

// LastPosition returns the most recent fix of the probe window.
func (r ProbeResult) LastPosition() (LocationFix, bool) {
	if len(r.GPSPositions) == 0 {
		return LocationFix{}, false
	}
	return r.GPSPositions[len(r.GPSPositions)-1], true
}
