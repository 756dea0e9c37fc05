package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellprobehq/agent/internal/events"
	"github.com/cellprobehq/agent/internal/logging"
	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/internal/metrics"
	"github.com/cellprobehq/agent/pkg/types"
)

type CollectorConfig struct {
	ModemTopic    string
	LocationTopic string
	// Operator filters modem messages; messages for other operators are ignored.
	Operator string
}

// Collector subscribes to the metadata feed and keeps the shared state
// current: modem messages for the configured operator are merged, location
// fixes are appended.
type Collector struct {
	cfg     CollectorConfig
	store   *metastate.Store
	dial    Dialer
	logger  logrus.FieldLogger
	metrics metrics.FeedRecorder
	events  events.Recorder
	now     func() time.Time
}

func NewCollector(cfg CollectorConfig, store *metastate.Store, dial Dialer, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Collector{
		cfg:     cfg,
		store:   store,
		dial:    dial,
		logger:  logger.WithField("component", "collector"),
		metrics: metrics.NoopFeedRecorder{},
		events:  events.NoopRecorder{},
		now:     time.Now,
	}
}

func (c *Collector) SetMetrics(rec metrics.FeedRecorder) {
	if rec == nil {
		rec = metrics.NoopFeedRecorder{}
	}
	c.metrics = rec
}

func (c *Collector) SetEventRecorder(rec events.Recorder) {
	if rec == nil {
		rec = events.NoopRecorder{}
	}
	c.events = rec
}

// Topics lists the subscriptions the collector needs.
func (c CollectorConfig) Topics() []string {
	return []string{c.ModemTopic, c.LocationTopic}
}

// Run receives until ctx is cancelled. It returns nil on cancellation and an
// error only when the transport fails.
func (c *Collector) Run(ctx context.Context) error {
	src, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connect metadata feed: %w", err)
	}
	defer src.Close()
	c.logger.Debug("subscribed to metadata feed")

	for {
		msg, err := src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrMalformed) {
				c.drop("", err)
				continue
			}
			return fmt.Errorf("receive metadata feed: %w", err)
		}
		if err := c.Apply(msg); err != nil {
			c.drop(msg.Topic, err)
		}
	}
}

// Apply routes one message into the shared state. Messages on unknown topics
// or for another operator are ignored without error.
func (c *Collector) Apply(msg Message) error {
	switch {
	case c.cfg.ModemTopic != "" && strings.HasPrefix(msg.Topic, c.cfg.ModemTopic):
		return c.applyModem(msg)
	case c.cfg.LocationTopic != "" && strings.HasPrefix(msg.Topic, c.cfg.LocationTopic):
		return c.applyLocation(msg)
	default:
		c.metrics.ObserveFeedMessage(msg.Topic, metrics.FeedIgnored)
		return nil
	}
}

func (c *Collector) applyModem(msg Message) error {
	fields, err := decodeObject(msg.Payload)
	if err != nil {
		return err
	}
	operator, ok := fields[metastate.FieldOperator].(string)
	if !ok || operator != c.cfg.Operator {
		c.metrics.ObserveFeedMessage(msg.Topic, metrics.FeedIgnored)
		return nil
	}
	c.store.MergeModem(fields)
	c.metrics.ObserveFeedMessage(msg.Topic, metrics.FeedApplied)
	c.logger.WithFields(logrus.Fields{
		"interface": fields[metastate.FieldInterface],
		"operator":  operator,
	}).Debug("modem update")
	return nil
}

// applyLocation appends any well-formed object as-is; field types are not
// checked and unknown fields are kept.
func (c *Collector) applyLocation(msg Message) error {
	fields, err := decodeObject(msg.Payload)
	if err != nil {
		return err
	}
	n := c.store.AppendLocation(types.LocationFix(fields))
	c.metrics.ObserveFeedMessage(msg.Topic, metrics.FeedApplied)
	c.metrics.ObserveLocationCount(n)
	c.logger.WithField("fixes", n).Debug("location fix")
	return nil
}

func (c *Collector) drop(topic string, err error) {
	c.metrics.ObserveFeedMessage(topic, metrics.FeedMalformed)
	c.logger.WithError(err).WithField("topic", topic).Warn("dropping feed message")
	c.events.Record(types.Event{
		Type:      types.EventFeedDrop,
		Timestamp: c.now(),
		Labels:    map[string]string{"topic": topic},
		Details:   map[string]any{"error": err.Error()},
	})
}

// decodeObject decodes payload as a single JSON object, keeping numbers as
// json.Number so large integers survive untouched.
func decodeObject(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	return fields, nil
}
