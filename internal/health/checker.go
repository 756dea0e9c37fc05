package health

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/internal/metrics"
	"github.com/cellprobehq/agent/internal/netif"
)

const (
	categoryModemMissing    = "MODEM_MISSING"
	categoryModemStale      = "MODEM_STALE"
	categoryLocationPending = "LOCATION_PENDING"
	categoryInterfaceDown   = "INTERFACE_DOWN"
)

const (
	severityInfo     = "info"
	severityWarning  = "warning"
	severityCritical = "critical"
)

type Category struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
}

// Report is the outcome of one readiness evaluation.
type Report struct {
	Ready      bool       `json:"ready"`
	Interface  string     `json:"interface,omitempty"`
	Reasons    []string   `json:"reasons,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}

// Checker evaluates whether the modem metadata is fresh, a location fix is
// available and, once a probe interface is chosen, whether it is still up.
type Checker struct {
	store   *metastate.Store
	ifaces  netif.Checker
	grace   time.Duration
	clock   clock.PassiveClock
	metrics metrics.HealthRecorder

	mu      sync.RWMutex
	watched string
}

// NewChecker constructs a checker. grace is the metadata freshness window.
func NewChecker(store *metastate.Store, ifaces netif.Checker, grace time.Duration, clk clock.PassiveClock) *Checker {
	if ifaces == nil {
		ifaces = netif.SystemChecker{}
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Checker{
		store:   store,
		ifaces:  ifaces,
		grace:   grace,
		clock:   clk,
		metrics: metrics.NoopHealthRecorder{},
	}
}

func (c *Checker) SetMetrics(rec metrics.HealthRecorder) {
	if rec == nil {
		rec = metrics.NoopHealthRecorder{}
	}
	c.metrics = rec
}

// Fresh applies the freshness predicate to the current modem metadata.
func (c *Checker) Fresh() bool {
	return metastate.Fresh(c.store.Modem(), c.clock.Now(), c.grace)
}

// MetadataReady reports whether a probe may start: the modem metadata is
// fresh and at least one location fix has arrived.
func (c *Checker) MetadataReady() bool {
	return c.Fresh() && c.store.LocationCount() >= 1
}

// InterfaceHealthy reports whether name is up at the OS level and the modem
// metadata is still fresh.
func (c *Checker) InterfaceHealthy(name string) bool {
	return c.ifaces.Up(name) && c.Fresh()
}

// WatchInterface makes Evaluate check name for liveness. An empty name stops
// watching.
func (c *Checker) WatchInterface(name string) {
	c.mu.Lock()
	c.watched = name
	c.mu.Unlock()
}

// Evaluate checks every condition and returns the reasons for failure.
func (c *Checker) Evaluate() Report {
	now := c.clock.Now()
	modem := c.store.Modem()
	report := Report{}
	appendReason := func(reason, name, severity string) {
		report.Reasons = append(report.Reasons, reason)
		report.Categories = append(report.Categories, Category{Name: name, Severity: severity})
	}

	var missing []string
	for _, field := range metastate.RequiredModemFields {
		if !modem.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		appendReason(fmt.Sprintf("modem metadata missing %s", strings.Join(missing, ", ")), categoryModemMissing, severityCritical)
	} else if !metastate.Fresh(modem, now, c.grace) {
		age := "unknown"
		if ts, ok := modem.Timestamp(); ok {
			age = now.Sub(ts).Round(time.Second).String()
		}
		appendReason(fmt.Sprintf("modem metadata stale (%s)", age), categoryModemStale, severityWarning)
	}

	if c.store.LocationCount() == 0 {
		appendReason("no location fix yet", categoryLocationPending, severityInfo)
	}

	c.mu.RLock()
	watched := c.watched
	c.mu.RUnlock()
	report.Interface = watched
	if watched != "" && !c.ifaces.Up(watched) {
		appendReason(fmt.Sprintf("interface %s down", watched), categoryInterfaceDown, severityCritical)
	}

	report.Ready = len(report.Reasons) == 0
	names := make([]string, 0, len(report.Categories))
	for _, cat := range report.Categories {
		names = append(names, cat.Name)
	}
	c.metrics.ObserveReadiness(report.Ready, names)
	return report
}
