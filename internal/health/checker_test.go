package health

import (
	"strings"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/internal/netif"
	"github.com/cellprobehq/agent/pkg/types"
)

type readinessLog struct {
	ready      []bool
	categories [][]string
}

func (r *readinessLog) ObserveReadiness(ready bool, categories []string) {
	r.ready = append(r.ready, ready)
	r.categories = append(r.categories, categories)
}

func modemAt(ts time.Time) map[string]any {
	return map[string]any{
		metastate.FieldInterface: "op0",
		metastate.FieldOperator:  "Telenor SE",
		metastate.FieldICCID:     "8946",
		metastate.FieldIPAddress: "10.0.0.2",
		metastate.FieldTimestamp: float64(ts.Unix()),
	}
}

func containsCategory(categories []Category, name, severity string) bool {
	for _, c := range categories {
		if c.Name == name && c.Severity == severity {
			return true
		}
	}
	return false
}

func TestCheckerReadyConditions(t *testing.T) {
	now := time.Unix(1000, 0)
	clk := testingclock.NewFakeClock(now)
	store := metastate.New()
	up := map[string]bool{"op0": true}
	checker := NewChecker(store, netif.CheckerFunc(func(name string) bool { return up[name] }), 30*time.Second, clk)
	log := &readinessLog{}
	checker.SetMetrics(log)

	report := checker.Evaluate()
	if report.Ready {
		t.Fatalf("expected not ready without metadata")
	}
	if !containsCategory(report.Categories, categoryModemMissing, severityCritical) ||
		!containsCategory(report.Categories, categoryLocationPending, severityInfo) {
		t.Fatalf("unexpected categories %+v", report.Categories)
	}
	if !strings.Contains(report.Reasons[0], metastate.FieldInterface) {
		t.Fatalf("expected missing fields to be named, got %q", report.Reasons[0])
	}
	if checker.MetadataReady() {
		t.Fatalf("MetadataReady must be false")
	}

	store.MergeModem(modemAt(now))
	if checker.MetadataReady() {
		t.Fatalf("MetadataReady must wait for a location fix")
	}
	store.AppendLocation(types.LocationFix{types.FixSequenceNumber: 1})
	if !checker.MetadataReady() {
		t.Fatalf("expected MetadataReady with fresh modem and a fix")
	}
	report = checker.Evaluate()
	if !report.Ready || len(report.Reasons) != 0 {
		t.Fatalf("expected ready report, got %+v", report)
	}

	checker.WatchInterface("op0")
	if !checker.InterfaceHealthy("op0") {
		t.Fatalf("expected op0 healthy")
	}
	up["op0"] = false
	report = checker.Evaluate()
	if report.Ready || !containsCategory(report.Categories, categoryInterfaceDown, severityCritical) {
		t.Fatalf("expected INTERFACE_DOWN, got %+v", report)
	}
	if report.Interface != "op0" {
		t.Fatalf("expected watched interface in report, got %q", report.Interface)
	}
	if checker.InterfaceHealthy("op0") {
		t.Fatalf("down interface reported healthy")
	}
	up["op0"] = true

	// Exactly grace old is no longer fresh.
	clk.SetTime(now.Add(30 * time.Second))
	if checker.Fresh() {
		t.Fatalf("metadata exactly grace old must not be fresh")
	}
	report = checker.Evaluate()
	if !containsCategory(report.Categories, categoryModemStale, severityWarning) {
		t.Fatalf("expected MODEM_STALE, got %+v", report.Categories)
	}
	if !strings.Contains(report.Reasons[0], "30s") {
		t.Fatalf("expected age in reason, got %q", report.Reasons[0])
	}

	if len(log.ready) != 4 || log.ready[1] != true || log.ready[3] != false {
		t.Fatalf("unexpected readiness observations %v", log.ready)
	}
	if log.categories[3][0] != categoryModemStale {
		t.Fatalf("unexpected categories recorded %v", log.categories[3])
	}
}

func TestCheckerJustInsideGrace(t *testing.T) {
	now := time.Unix(5000, 0)
	clk := testingclock.NewFakeClock(now.Add(29*time.Second + 999*time.Millisecond))
	store := metastate.New()
	store.MergeModem(modemAt(now))
	store.AppendLocation(types.LocationFix{})
	checker := NewChecker(store, netif.CheckerFunc(func(string) bool { return true }), 30*time.Second, clk)
	if !checker.MetadataReady() {
		t.Fatalf("metadata just inside grace must be fresh")
	}
}
