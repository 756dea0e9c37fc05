package types

import "time"

type EventType string

const (
	EventStateChange      EventType = "StateChange"
	EventCollectorRestart EventType = "CollectorRestart"
	EventFeedDrop         EventType = "FeedMessageDropped"
	EventMetadataTimeout  EventType = "MetadataTimeout"
	EventInterfaceLost    EventType = "InterfaceLost"
	EventProbeTimeout     EventType = "ProbeTimeout"
	EventProbeFinished    EventType = "ProbeFinished"
	EventSinkFailure      EventType = "SinkFailure"
)

type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"ts"`
	Interface string            `json:"interface,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
}
