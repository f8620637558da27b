package jvm

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
	jvmprom "github.com/fluxorio/jvm/pkg/observability/prometheus"
)

func addProgram(_ *classfile.Builder, a *bytecode.Assembler) {
	a.Iconst(1).Iconst(2).Op(bytecode.Iadd).Op(bytecode.Ireturn)
}

func TestInvocationSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	vm := newTestVM(t, WithTracer(tp))

	if _, err := run(t, vm, "()I", 2, 0, addProgram); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	var invoke sdktrace.ReadOnlySpan
	loads := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "jvm.invoke":
			invoke = s
		case "jvm.load_class":
			for _, kv := range s.Attributes() {
				if kv.Key == "jvm.class" {
					loads[kv.Value.AsString()] = s
				}
			}
		}
	}
	if invoke == nil {
		t.Fatal("no jvm.invoke span")
	}
	for _, class := range []string{"test/Main", "java/lang/Object"} {
		s, ok := loads[class]
		if !ok {
			t.Errorf("no jvm.load_class span for %s", class)
			continue
		}
		if s.Parent().SpanID() != invoke.SpanContext().SpanID() {
			t.Errorf("load of %s is not a child of the invocation", class)
		}
	}

	var hasID bool
	for _, kv := range invoke.Attributes() {
		if kv.Key == "jvm.invocation_id" && kv.Value.AsString() != "" {
			hasID = true
		}
	}
	if !hasID {
		t.Error("jvm.invoke span has no invocation id")
	}
}

func TestInterpreterMetrics(t *testing.T) {
	m := jvmprom.NewMetrics(prometheus.NewRegistry())
	vm := newTestVM(t, WithMetrics(m))

	if _, err := run(t, vm, "()I", 2, 0, addProgram); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	counts := map[string]float64{"constant": 2, "math": 1, "return": 1}
	for family, want := range counts {
		if got := testutil.ToFloat64(m.InstructionsTotal.WithLabelValues(family)); got != want {
			t.Errorf("instructions{%s} = %v, want %v", family, got, want)
		}
	}
	if got := testutil.ToFloat64(m.InvocationsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("invocations{ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClassLoadsTotal.WithLabelValues(SourceDefined, "ok")); got != 1 {
		t.Errorf("class loads{defined,ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClassLoadsTotal.WithLabelValues(SourceBootstrap, "ok")); got != 1 {
		t.Errorf("class loads{bootstrap,ok} = %v, want 1", got)
	}

	if _, err := vm.Invoke("no/such/Class", "run", "()V"); err == nil {
		t.Fatal("Invoke of a missing class succeeded")
	}
	if got := testutil.ToFloat64(m.AbruptCompletions.WithLabelValues("resolution")); got != 1 {
		t.Errorf("abrupt{resolution} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClassLoadsTotal.WithLabelValues("none", "not_found")); got != 1 {
		t.Errorf("class loads{none,not_found} = %v, want 1", got)
	}
}

func TestHeapMetrics(t *testing.T) {
	m := jvmprom.NewMetrics(prometheus.NewRegistry())
	vm := newTestVM(t, WithMetrics(m))
	got, err := run(t, vm, "()[I", 1, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(2).Newarray(10).Op(bytecode.Areturn)
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v := testutil.ToFloat64(m.HeapAllocationsTotal.WithLabelValues(KindIntArray.String())); v != 1 {
		t.Errorf("allocations{int[]} = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.HeapLiveReferences); v != 1 {
		t.Errorf("live = %v, want 1", v)
	}

	if err := vm.DeleteReference(got.AsRef()); err != nil {
		t.Fatalf("DeleteReference: %v", err)
	}
	if v := testutil.ToFloat64(m.HeapLiveReferences); v != 0 {
		t.Errorf("live after delete = %v, want 0", v)
	}
	vm.Deinitialize()
	if v := testutil.ToFloat64(m.HeapLeakedReferences); v != 0 {
		t.Errorf("leaked = %v, want 0", v)
	}
}
