// Command jvm loads a class file and runs one of its static methods.
//
//	jvm [flags] Main.class [args...]
//	jvm -c Main.class [Other.class...]
//
// Arguments are converted to the method's parameter types. A String[]
// parameter takes all remaining arguments. With -c the classes are only
// parsed and printed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/classpath"
	"github.com/fluxorio/jvm/pkg/config"
	"github.com/fluxorio/jvm/pkg/core"
	"github.com/fluxorio/jvm/pkg/jvm"
	"github.com/fluxorio/jvm/pkg/observability/otel"
	"github.com/fluxorio/jvm/pkg/observability/prometheus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	classPath  string
	store      string
	importDir  string
	method     string
	descriptor string
	metrics    string
	trace      string
	logFormat  string
	logLevel   string
	dump       bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jvm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.configPath, "config", "", "config file (.yaml or .json)")
	fs.StringVar(&o.classPath, "cp", "", "comma-separated class directories")
	fs.StringVar(&o.store, "store", "", "class archive as driver:dsn, e.g. sqlite3:classes.db")
	fs.StringVar(&o.importDir, "import", "", "import every class under this directory into the archive before running")
	fs.StringVar(&o.method, "method", "main", "static method to run")
	fs.StringVar(&o.descriptor, "descriptor", "", "method descriptor, required when the name is overloaded")
	fs.StringVar(&o.metrics, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.StringVar(&o.trace, "trace", "", "span exporter: none, stdout or zipkin")
	fs.StringVar(&o.logFormat, "log-format", "", "text or json")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&o.dump, "c", false, "print the structure and disassembly of each class instead of running it")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: jvm [flags] Class.class [args...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 && o.importDir == "" {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %v\n", err)
		return 2
	}
	if o.dump {
		code := 0
		for _, path := range fs.Args() {
			code = max(code, dump(cfg, path, stdout))
		}
		return code
	}
	level, _ := core.ParseLevel(cfg.Log.Level)
	logger := core.NewLogger(core.LoggerConfig{Level: level, Format: cfg.Log.Format, Output: stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := otel.NewTracerProvider(ctx, otel.Config{
		Exporter: cfg.Trace.Exporter,
		Endpoint: cfg.Trace.Endpoint,
		Writer:   stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %v\n", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.Shutdown(sctx, tp); err != nil {
			logger.Warnf("Trace shutdown: %v", err)
		}
	}()

	var metrics *prometheus.Metrics
	if cfg.Metrics.Enabled {
		reg := promclient.NewRegistry()
		metrics = prometheus.NewMetrics(reg)
		go func() {
			if err := prometheus.ListenAndServe(ctx, cfg.Metrics.Addr, reg); err != nil {
				logger.Errorf("Metrics server: %v", err)
			}
		}()
		logger.Infof("Serving metrics on %s", cfg.Metrics.Addr)
	}

	sources := classpath.Dirs(cfg.ClassPath...)
	if cfg.Store.DSN != "" {
		store, err := classpath.OpenStore(ctx, classpath.PoolConfigFrom(cfg.Store),
			classpath.WithStoreLogger(logger), classpath.WithStoreMetrics(metrics))
		if err != nil {
			fmt.Fprintf(stderr, "jvm: %v\n", err)
			return 1
		}
		defer store.Close()
		if o.importDir != "" {
			n, err := store.Import(ctx, classpath.DirSource{Root: o.importDir})
			if err != nil {
				fmt.Fprintf(stderr, "jvm: import: %v\n", err)
				return 1
			}
			logger.Infof("Imported %d classes into %s", n, store)
		}
		sources = append(sources, store)
	} else if o.importDir != "" {
		fmt.Fprintln(stderr, "jvm: -import needs a class archive (-store)")
		return 2
	}
	if fs.NArg() < 1 {
		return 0
	}

	registry := classpath.NewRegistry(sources,
		classpath.WithLogger(logger),
		classpath.WithMetrics(metrics),
		classpath.WithParseOptions(cfg.ParseOptions()...),
		classpath.WithContext(ctx))

	vm := jvm.Initialize(
		jvm.WithConfig(cfg),
		jvm.WithLogger(logger),
		jvm.WithRegistry(registry),
		jvm.WithMetrics(metrics),
		jvm.WithTracer(tp),
		jvm.WithContext(ctx),
		jvm.WithOutput(stdout, stderr),
	)
	code := execute(vm, logger, fs.Arg(0), fs.Args()[1:], o, stdout, stderr)
	report := vm.Deinitialize()
	if len(report.Outstanding) > 0 {
		logger.Infof("%d references were never deleted", len(report.Outstanding))
	}
	return code
}

// loadConfig layers the flags over the config file and environment.
func loadConfig(o options) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.classPath != "" {
		cfg.ClassPath = append(cfg.ClassPath, strings.Split(o.classPath, ",")...)
	}
	if o.store != "" {
		driver, dsn, ok := strings.Cut(o.store, ":")
		if !ok || dsn == "" {
			return nil, fmt.Errorf("-store wants driver:dsn, got %q", o.store)
		}
		cfg.Store.Driver, cfg.Store.DSN = driver, dsn
	}
	if o.metrics != "" {
		cfg.Metrics.Enabled, cfg.Metrics.Addr = true, o.metrics
	}
	if o.trace != "" {
		cfg.Trace.Exporter = o.trace
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func execute(vm *jvm.VM, logger core.Logger, path string, args []string, o options, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %v\n", err)
		return 1
	}
	cf, err := vm.LoadClass(data)
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %s: %v\n", path, err)
		return 1
	}
	m, err := findMethod(cf, o.method, o.descriptor)
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %v\n", err)
		return 1
	}

	var owned []jvm.Reference
	defer func() { release(vm, logger, owned) }()
	values, err := buildArgs(vm.Heap(), m.Signature, args, &owned)
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %v\n", err)
		return 2
	}

	result, err := vm.InvokeMethod(cf, m, values...)
	if err != nil {
		fmt.Fprintf(stderr, "jvm: %v\n", err)
		var ee *jvm.ExecutionError
		if errors.As(err, &ee) {
			fmt.Fprintln(stderr, ee.StackTrace())
		}
		return 1
	}
	if ref := result.AsRef(); result.Kind == jvm.KindReference && !result.IsNull() &&
		!vm.Heap().IsHeld(ref) && !slices.Contains(owned, ref) {
		owned = append(owned, ref)
	}
	printResult(vm.Heap(), result, stdout)
	return 0
}

// release deletes the references the command allocated or received.
func release(vm *jvm.VM, logger core.Logger, refs []jvm.Reference) {
	for _, ref := range refs {
		if err := vm.DeleteReference(ref); err != nil {
			logger.Warnf("Failed to release %s: %v", ref, err)
		}
	}
}

func findMethod(cf *classfile.ClassFile, name, descriptor string) (*classfile.MethodInfo, error) {
	var found *classfile.MethodInfo
	for _, m := range cf.Methods {
		if m.Name != name || (descriptor != "" && m.Descriptor != descriptor) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%s.%s is overloaded, pass -descriptor", cf.Name(), name)
		}
		found = m
	}
	if found == nil {
		return nil, fmt.Errorf("%s has no method %s%s", cf.Name(), name, descriptor)
	}
	if !found.IsStatic() {
		return nil, fmt.Errorf("%s.%s is not static", cf.Name(), found)
	}
	return found, nil
}

// buildArgs converts command-line words to parameter values. Strings are
// allocated on h and appended to owned.
func buildArgs(h *jvm.Heap, sig classfile.MethodDescriptor, args []string, owned *[]jvm.Reference) ([]jvm.Value, error) {
	newString := func(s string) (jvm.Value, error) {
		ref, err := h.NewString(s)
		if err != nil {
			return jvm.Null(), err
		}
		*owned = append(*owned, ref)
		return jvm.Ref(ref), nil
	}

	var out []jvm.Value
	for i, p := range sig.Params {
		if p.Dimensions == 1 && p.ClassName == "java/lang/String" {
			rest := args
			args = nil
			arr, err := h.NewReferenceArray("java/lang/String", int32(len(rest)))
			if err != nil {
				return nil, err
			}
			*owned = append(*owned, arr)
			obj, err := h.Lookup(arr)
			if err != nil {
				return nil, err
			}
			for j, s := range rest {
				v, err := newString(s)
				if err != nil {
					return nil, err
				}
				if err := obj.Store(int32(j), v); err != nil {
					return nil, err
				}
			}
			out = append(out, jvm.Ref(arr))
			continue
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("missing argument %d (%s)", i+1, p)
		}
		word := args[0]
		args = args[1:]
		v, err := parseArg(p, word, newString)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i+1, p, err)
		}
		out = append(out, v)
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("%d unused arguments", len(args))
	}
	return out, nil
}

func parseArg(p classfile.FieldType, word string, newString func(string) (jvm.Value, error)) (jvm.Value, error) {
	if p.Dimensions > 0 {
		return jvm.Null(), fmt.Errorf("array parameters other than String[] are not supported")
	}
	switch p.Base {
	case 'B', 'C', 'I', 'S':
		n, err := strconv.ParseInt(word, 0, 32)
		return jvm.Int(int32(n)), err
	case 'Z':
		b, err := strconv.ParseBool(word)
		return jvm.Bool(b), err
	case 'J':
		n, err := strconv.ParseInt(word, 0, 64)
		return jvm.Long(n), err
	case 'F':
		f, err := strconv.ParseFloat(word, 32)
		return jvm.Float(float32(f)), err
	case 'D':
		f, err := strconv.ParseFloat(word, 64)
		return jvm.Double(f), err
	case 'L':
		if p.ClassName == "java/lang/String" {
			return newString(word)
		}
		if word == "null" {
			return jvm.Null(), nil
		}
	}
	return jvm.Null(), fmt.Errorf("cannot pass %q as %s", word, p)
}

func printResult(h *jvm.Heap, v jvm.Value, w io.Writer) {
	switch {
	case v.Kind == jvm.KindVoid:
	case v.Kind == jvm.KindReference && !v.IsNull():
		obj, err := h.Lookup(v.AsRef())
		if err != nil {
			fmt.Fprintln(w, v)
			return
		}
		if obj.Kind == jvm.KindString {
			fmt.Fprintln(w, obj.Str)
			return
		}
		fmt.Fprintln(w, obj)
	default:
		fmt.Fprintln(w, v)
	}
}
