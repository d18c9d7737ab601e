package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveRuleMutation("create", "ok")
	m.ObserveRuleMutation("create", "ok")
	m.ObserveRuleMutation("create", "conflict")
	m.ObserveBooking("ok")
	m.ObserveStatusChange("scheduled", "cancelled", "ok")
	m.ObserveDerivation("ok", 0.02)
	m.ObserveVelocityBlocked()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := counterValue(families, "therapy_availability_rule_mutations_total", map[string]string{"op": "create", "outcome": "ok"})
	if got != 2 {
		t.Fatalf("expected 2 successful creates, got %v", got)
	}
	got = counterValue(families, "therapy_booking_velocity_blocked_total", nil)
	if got != 1 {
		t.Fatalf("expected 1 velocity block, got %v", got)
	}
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveRuleMutation("create", "ok")
	m.ObserveBooking("conflict")
	m.ObserveStatusChange("a", "b", "ok")
	m.ObserveDerivation("ok", 0.1)
	m.ObserveVelocityBlocked()
}

func TestOutcome(t *testing.T) {
	if got := Outcome(nil, nil); got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
	if got := Outcome(errors.New("boom"), nil); got != "error" {
		t.Fatalf("expected error, got %q", got)
	}
	classify := func(error) string { return "conflict" }
	if got := Outcome(errors.New("boom"), classify); got != "conflict" {
		t.Fatalf("expected conflict, got %q", got)
	}
	if got := Outcome(errors.New("boom"), func(error) string { return "" }); got != "error" {
		t.Fatalf("expected fallback error, got %q", got)
	}
}

func counterValue(families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return -1
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == k && p.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
