// Package jvm executes class-file bytecode.
//
// A VM is an explicit context: it owns its heap, its linked classes and its
// call stack, and nothing is shared between VMs except immutable class
// files. A VM is not safe for concurrent use.
package jvm

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/config"
	"github.com/fluxorio/jvm/pkg/core"
	jvmotel "github.com/fluxorio/jvm/pkg/observability/otel"
	"github.com/fluxorio/jvm/pkg/observability/prometheus"
)

// VM is one virtual machine instance.
type VM struct {
	ID string

	logger   core.Logger
	registry ClassRegistry
	metrics  *prometheus.Metrics
	tracer   trace.Tracer
	ctx      context.Context
	started  time.Time
	stdout   io.Writer
	stderr   io.Writer
	natives  map[string]NativeFunc

	heap     *Heap
	calls    *CallStack
	defined  map[string]*classfile.ClassFile
	classes  map[string]*Class
	linking  map[string]bool
	interned map[string]Reference
	mirrors  map[string]Reference

	parseOpts      []classfile.Option
	maxCallDepth   int
	maxHeap        int
	trackLeaks     bool
	simulateSystem bool

	deinitialized bool
	report        Report
}

// Option configures a VM at Initialize.
type Option func(*VM)

// WithLogger sets the logger. The VM adds its ID to every entry.
func WithLogger(l core.Logger) Option {
	return func(vm *VM) { vm.logger = l }
}

// WithRegistry sets the source of classes not defined on the VM itself.
func WithRegistry(r ClassRegistry) Option {
	return func(vm *VM) { vm.registry = r }
}

// WithMetrics enables interpreter metrics.
func WithMetrics(m *prometheus.Metrics) Option {
	return func(vm *VM) { vm.metrics = m }
}

// WithTracer records invocation and class-load spans with tp.
func WithTracer(tp trace.TracerProvider) Option {
	return func(vm *VM) { vm.tracer = jvmotel.Tracer(tp) }
}

// WithContext sets the default context of Invoke. Cancelling it stops
// execution between two instructions.
func WithContext(ctx context.Context) Option {
	return func(vm *VM) { vm.ctx = ctx }
}

// WithConfig applies the interpreter section of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(vm *VM) {
		vm.maxCallDepth = cfg.MaxCallDepth
		vm.maxHeap = cfg.MaxHeapObjects
		vm.trackLeaks = cfg.TrackLeaks
		vm.simulateSystem = cfg.SimulateSystem
		vm.parseOpts = cfg.ParseOptions()
	}
}

func WithMaxCallDepth(n int) Option {
	return func(vm *VM) { vm.maxCallDepth = n }
}

// WithMaxHeapObjects bounds the number of live objects; zero is unbounded.
func WithMaxHeapObjects(n int) Option {
	return func(vm *VM) { vm.maxHeap = n }
}

// WithLeakTracking controls whether Deinitialize logs each outstanding
// program reference.
func WithLeakTracking(on bool) Option {
	return func(vm *VM) { vm.trackLeaks = on }
}

// WithSystemSimulation controls the bootstrap library classes. When off,
// only java/lang/Object is synthesized.
func WithSystemSimulation(on bool) Option {
	return func(vm *VM) { vm.simulateSystem = on }
}

// Report summarizes the heap at Deinitialize.
type Report struct {
	// Outstanding lists program references that were never deleted.
	Outstanding []Reference
	// VMHeld counts references owned by the VM: interned literals, class
	// mirrors and the system streams.
	VMHeld int
	// Released counts the references freed by Deinitialize.
	Released int
}

// Initialize creates a VM.
func Initialize(opts ...Option) *VM {
	defaults := config.Default()
	vm := &VM{
		ID:             core.NewID(),
		logger:         core.NewLogger(core.LoggerConfig{Level: core.LevelInfo}),
		tracer:         jvmotel.Tracer(nil),
		started:        time.Now(),
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		natives:        defaultNatives(),
		defined:        make(map[string]*classfile.ClassFile),
		classes:        make(map[string]*Class),
		linking:        make(map[string]bool),
		interned:       make(map[string]Reference),
		mirrors:        make(map[string]Reference),
		maxCallDepth:   defaults.MaxCallDepth,
		maxHeap:        defaults.MaxHeapObjects,
		trackLeaks:     defaults.TrackLeaks,
		simulateSystem: defaults.SimulateSystem,
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.logger = vm.logger.WithFields(map[string]interface{}{"vm": vm.ID})
	vm.calls = NewCallStack(vm.maxCallDepth)
	vm.heap = NewHeap(vm.maxHeap)
	vm.heap.onAlloc = func(kind ObjectKind, live int) { vm.metrics.RecordAllocation(kind.String(), live) }
	vm.heap.onRelease = func(live int) { vm.metrics.RecordRelease(live) }
	vm.logger.Debugf("VM initialized (max call depth %d, max heap objects %d)", vm.maxCallDepth, vm.maxHeap)
	return vm
}

func (vm *VM) spanCtx() context.Context {
	if vm.ctx == nil {
		return context.Background()
	}
	return vm.ctx
}

// Heap exposes the VM's object arena.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// LoadClass parses b and defines the class on this VM. Defined classes take
// precedence over the registry.
func (vm *VM) LoadClass(b []byte) (*classfile.ClassFile, error) {
	if vm.deinitialized {
		return nil, ErrDeinitialized
	}
	cf, err := classfile.Parse(b, vm.parseOpts...)
	if err != nil {
		vm.logger.Warnf("Rejected class file: %v", err)
		return nil, err
	}
	if err := vm.DefineClass(cf); err != nil {
		return nil, err
	}
	return cf, nil
}

// DefineClass defines an already parsed class.
func (vm *VM) DefineClass(cf *classfile.ClassFile) error {
	if vm.deinitialized {
		return ErrDeinitialized
	}
	name := cf.Name()
	if prev, ok := vm.defined[name]; ok && prev != cf {
		return fmt.Errorf("class %s already defined", name)
	}
	vm.defined[name] = cf
	return nil
}

// Class returns the linked class name, loading it if needed. Its static
// fields are readable once it has been initialized.
func (vm *VM) Class(name string) (*Class, error) {
	if vm.deinitialized {
		return nil, ErrDeinitialized
	}
	return vm.loadClass(name)
}

// Invoke runs className.name:descriptor with the VM's default context.
// Instance methods take the receiver as the first argument.
func (vm *VM) Invoke(className, name, descriptor string, args ...Value) (Value, error) {
	return vm.InvokeContext(vm.spanCtx(), className, name, descriptor, args...)
}

// InvokeMethod runs m of cf, defining cf first when the VM does not know it.
func (vm *VM) InvokeMethod(cf *classfile.ClassFile, m *classfile.MethodInfo, args ...Value) (Value, error) {
	if _, ok := vm.classes[cf.Name()]; !ok {
		if err := vm.DefineClass(cf); err != nil {
			return Void, err
		}
	}
	return vm.Invoke(cf.Name(), m.Name, m.Descriptor, args...)
}

// InvokeContext runs a method with ctx as the cancellation and trace
// parent. ctx gains an invocation ID when it has none.
func (vm *VM) InvokeContext(ctx context.Context, className, name, descriptor string, args ...Value) (Value, error) {
	if vm.deinitialized {
		return Void, ErrDeinitialized
	}
	ctx = core.EnsureInvocationID(ctx)
	ctx, span := vm.tracer.Start(ctx, "jvm.invoke", trace.WithAttributes(
		attribute.String("jvm.class", className),
		attribute.String("jvm.method", name+descriptor),
		attribute.String("jvm.invocation_id", core.InvocationID(ctx)),
	))
	defer span.End()

	prev := vm.ctx
	vm.ctx = ctx
	defer func() { vm.ctx = prev }()

	log := vm.logger.WithContext(ctx)
	log.Debugf("Invoking %s.%s%s", className, name, descriptor)

	start := time.Now()
	result, err := vm.invokeTop(className, name, descriptor, args)
	vm.metrics.RecordInvocation(err, time.Since(start))
	if err != nil {
		kind := ErrorKind(err)
		vm.metrics.RecordAbruptCompletion(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		log.Warnf("Invocation of %s.%s%s completed abruptly: %v", className, name, descriptor, err)
		return Void, err
	}
	return result, nil
}

func (vm *VM) invokeTop(className, name, descriptor string, args []Value) (Value, error) {
	c, err := vm.loadClass(className)
	if err != nil {
		return Void, err
	}
	owner, m := c.FindMethod(name, descriptor)
	if m == nil {
		return Void, &LinkError{Member: "method", Class: className, Name: name, Descriptor: descriptor}
	}
	if err := checkArgs(m, args); err != nil {
		return Void, fmt.Errorf("invoking %s.%s%s: %w", className, name, descriptor, err)
	}
	if err := vm.initialize(owner); err != nil {
		return Void, err
	}
	return vm.invoke(owner, m, args)
}

// checkArgs matches args against the descriptor, receiver first for
// instance methods.
func checkArgs(m *classfile.MethodInfo, args []Value) error {
	var want []Kind
	if !m.IsStatic() {
		want = append(want, KindReference)
	}
	for _, p := range m.Signature.Params {
		want = append(want, kindOf(p.Base, p.Dimensions))
	}
	if len(args) != len(want) {
		return fmt.Errorf("want %d arguments, got %d", len(want), len(args))
	}
	for i, k := range want {
		if args[i].Kind != k {
			return fmt.Errorf("argument %d: %w", i, mismatch(k, args[i].Kind))
		}
	}
	if !m.IsStatic() && args[0].IsNull() {
		return &ResourceError{Kind: NullReference}
	}
	return nil
}

// internString returns the VM-held String for a literal, allocating it on
// first use.
func (vm *VM) internString(s string) (Reference, error) {
	if ref, ok := vm.interned[s]; ok {
		return ref, nil
	}
	ref, err := vm.heap.NewString(s)
	if err != nil {
		return NullRef, err
	}
	vm.heap.hold(ref)
	vm.interned[s] = ref
	return ref, nil
}

// classMirror returns the VM-held java/lang/Class object for name.
func (vm *VM) classMirror(name string) (Reference, error) {
	if ref, ok := vm.mirrors[name]; ok {
		return ref, nil
	}
	ref, err := vm.heap.alloc(&Object{Kind: KindInstance, Class: "java/lang/Class", Str: name})
	if err != nil {
		return NullRef, err
	}
	vm.heap.hold(ref)
	vm.mirrors[name] = ref
	return ref, nil
}

// DeleteReference releases a program reference. VM-held references are
// NotOwned and references still on a live frame are StillReachable.
func (vm *VM) DeleteReference(ref Reference) error {
	if vm.deinitialized {
		return ErrDeinitialized
	}
	if vm.heap.IsHeld(ref) {
		return &ResourceError{Kind: NotOwned, Ref: ref}
	}
	if vm.reachable(ref) {
		return &ResourceError{Kind: StillReachable, Ref: ref}
	}
	if err := vm.heap.Delete(ref); err != nil {
		return err
	}
	vm.logger.Debugf("Released %s", ref)
	return nil
}

func (vm *VM) reachable(ref Reference) bool {
	if ref.IsNull() {
		return false
	}
	holds := func(vals []Value) bool {
		for _, v := range vals {
			if v.Kind == KindReference && v.AsRef() == ref {
				return true
			}
		}
		return false
	}
	for _, f := range vm.calls.Frames() {
		if holds(f.Stack.Values()) || holds(f.Locals.Values()) {
			return true
		}
	}
	return false
}

// Deinitialize releases every reference and reports what the program left
// behind. Later calls return the same report.
func (vm *VM) Deinitialize() Report {
	if vm.deinitialized {
		return vm.report
	}
	outstanding := vm.heap.Outstanding()
	held := vm.heap.Held()
	if vm.trackLeaks {
		for _, ref := range outstanding {
			desc := "?"
			if obj, err := vm.heap.Lookup(ref); err == nil {
				desc = obj.String()
			}
			vm.logger.Warnf("Leaked reference %s (%s)", ref, desc)
		}
	}
	vm.metrics.RecordLeaks(len(outstanding))

	vm.report = Report{
		Outstanding: outstanding,
		VMHeld:      held,
		Released:    vm.heap.releaseAll(),
	}
	vm.classes = make(map[string]*Class)
	vm.interned = make(map[string]Reference)
	vm.mirrors = make(map[string]Reference)
	vm.deinitialized = true
	vm.logger.Debugf("VM deinitialized: %d outstanding, %d VM-held, %d released",
		len(outstanding), held, vm.report.Released)
	return vm.report
}
