package prometheus_test

import (
	"errors"
	"testing"
	"time"

	client "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fluxorio/jvm/pkg/observability/prometheus"
)

func TestMetricsRecording(t *testing.T) {
	reg := client.NewRegistry()
	m := prometheus.NewMetrics(reg)

	m.RecordInstruction("math")
	m.RecordInstruction("math")
	m.RecordInstruction("load")
	m.RecordInvocation(nil, 10*time.Millisecond)
	m.RecordInvocation(errors.New("boom"), time.Millisecond)
	m.RecordAbruptCompletion("arithmetic")
	m.RecordAllocation("int[]", 3)
	m.RecordRelease(2)
	m.RecordLeaks(2)
	m.RecordClassLoad("dir", "ok", time.Millisecond)
	m.SetCallDepth(4)
	m.UpdateStorePool(5, 2, 3)

	if got := testutil.ToFloat64(m.InstructionsTotal.WithLabelValues("math")); got != 2 {
		t.Errorf("instructions{math} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.InvocationsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("invocations{error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HeapLiveReferences); got != 2 {
		t.Errorf("live references = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HeapLeakedReferences); got != 2 {
		t.Errorf("leaked references = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CallDepth); got != 4 {
		t.Errorf("call depth = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.StoreConnectionsInUse); got != 3 {
		t.Errorf("store in use = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.ClassLoadsTotal); n != 1 {
		t.Errorf("class load series = %d, want 1", n)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *prometheus.Metrics
	m.RecordInstruction("math")
	m.RecordInvocation(nil, time.Second)
	m.RecordAllocation("instance", 1)
	m.RecordRelease(0)
	m.RecordLeaks(1)
	m.SetCallDepth(1)
}

func TestGetMetricsIsSingleton(t *testing.T) {
	if prometheus.GetMetrics() != prometheus.GetMetrics() {
		t.Error("GetMetrics() returned different instances")
	}
}
