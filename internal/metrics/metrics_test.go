package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
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

// TestObserveUpstreamCall_IncrementsRequestCounter は呼び出しカウンタが操作・ステータス別に増加することを検証する。
func TestObserveUpstreamCall_IncrementsRequestCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveUpstreamCall("list_servers", 200, 50*time.Millisecond)
	c.ObserveUpstreamCall("list_servers", 200, 80*time.Millisecond)
	c.ObserveUpstreamCall("get_pricing", 200, 30*time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "hcadmin_upstream_requests_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				var operation string
				for _, label := range m.GetLabel() {
					if label.GetName() == "operation" {
						operation = label.GetValue()
					}
				}
				val := m.GetCounter().GetValue()
				switch operation {
				case "list_servers":
					if val != 2 {
						t.Errorf("requests_total{operation=list_servers} = %v, want 2", val)
					}
				case "get_pricing":
					if val != 1 {
						t.Errorf("requests_total{operation=get_pricing} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected operation label: %s", operation)
				}
			}
		}
	}
	if !found {
		t.Error("hcadmin_upstream_requests_total metric not found")
	}
}

// TestObserveUpstreamCall_ErrorStatusesCountAsErrors は4xx以上とステータス0がエラーとして数えられることを検証する。
func TestObserveUpstreamCall_ErrorStatusesCountAsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveUpstreamCall("create_server", 201, 100*time.Millisecond)
	c.ObserveUpstreamCall("create_server", 422, 40*time.Millisecond)
	c.ObserveUpstreamCall("create_server", 503, 40*time.Millisecond)
	c.ObserveUpstreamCall("create_server", 0, 5*time.Second) // ネットワーク到達不能

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "hcadmin_upstream_errors_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 3 {
				t.Errorf("errors_total = %v, want 3", val)
			}
		}
	}
	if !found {
		t.Error("hcadmin_upstream_errors_total metric not found")
	}
}

// TestObserveUpstreamCall_SuccessDoesNotCountAsError は2xxがエラーとして数えられないことを検証する。
func TestObserveUpstreamCall_SuccessDoesNotCountAsError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveUpstreamCall("list_volumes", 200, 20*time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() == "hcadmin_upstream_errors_total" && len(mf.GetMetric()) > 0 {
			t.Errorf("errors_total should have no samples for successful calls, got %d", len(mf.GetMetric()))
		}
	}
}

// TestObserveUpstreamCall_ObservesLatencyHistogram はレイテンシのヒストグラムに値が記録されることを検証する。
func TestObserveUpstreamCall_ObservesLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveUpstreamCall("get_server", 200, 100*time.Millisecond)
	c.ObserveUpstreamCall("get_server", 200, 2*time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "hcadmin_upstream_request_duration_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("hcadmin_upstream_request_duration_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	// いくつかのメトリクスを記録
	c.ObserveUpstreamCall("list_servers", 200, 500*time.Millisecond)
	c.ObserveUpstreamCall("list_servers", 503, 100*time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	// Prometheus形式のメトリクスが含まれていることを確認
	expectedMetrics := []string{
		"hcadmin_upstream_requests_total",
		"hcadmin_upstream_errors_total",
		"hcadmin_upstream_request_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.ObserveUpstreamCall("list_servers", 200, time.Millisecond)
	c2.ObserveUpstreamCall("list_servers", 200, time.Millisecond)
	c2.ObserveUpstreamCall("list_servers", 200, time.Millisecond)

	metrics1, _ := reg1.Gather()
	metrics2, _ := reg2.Gather()

	var val1, val2 float64
	for _, mf := range metrics1 {
		if mf.GetName() == "hcadmin_upstream_requests_total" {
			val1 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	for _, mf := range metrics2 {
		if mf.GetName() == "hcadmin_upstream_requests_total" {
			val2 = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}

	if val1 != 1 {
		t.Errorf("reg1 requests_total = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 requests_total = %v, want 2", val2)
	}
}
