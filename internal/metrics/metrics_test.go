package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			total := 0.0
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

// TestObserveSignIn_IncrementsCounter はサインインカウンタが結果別に増加することを検証する。
func TestObserveSignIn_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveSignIn("ok")
	c.ObserveSignIn("ok")
	c.ObserveSignIn("invalid_signature")

	if got := counterValue(t, reg, "walletbind_signin_total"); got != 3 {
		t.Errorf("signin_total = %v, want 3", got)
	}
}

// TestObserveClaim_IncrementsCounter はclaimカウンタが増加することを検証する。
func TestObserveClaim_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveClaim("author_mismatch")

	if got := counterValue(t, reg, "walletbind_claim_total"); got != 1 {
		t.Errorf("claim_total = %v, want 1", got)
	}
}

// TestAddReclaimTransfers_AddsCount は移管カウンタが件数分増加することを検証する。
func TestAddReclaimTransfers_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.AddReclaimTransfers(3)
	c.AddReclaimTransfers(2)

	if got := counterValue(t, reg, "walletbind_reclaim_transfers_total"); got != 5 {
		t.Errorf("reclaim_transfers_total = %v, want 5", got)
	}
}

// TestRecordHTTPStatus_CountsByStatus はステータスコード別にカウントされることを検証する。
func TestRecordHTTPStatus_CountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if got := counterValue(t, reg, "walletbind_http_status_total"); got != 3 {
		t.Errorf("http_status_total = %v, want 3", got)
	}
}

// TestObserveLatencies_DoNotPanic はヒストグラムの記録が正常に行えることを検証する。
func TestObserveLatencies_DoNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveOracleLatency(120 * time.Millisecond)
	c.RecordRequestLatency(30 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	if len(metrics) == 0 {
		t.Error("expected gathered metrics")
	}
}
