package classpath

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/core"
	"github.com/fluxorio/jvm/pkg/jvm"
	"github.com/fluxorio/jvm/pkg/observability/prometheus"
)

// Registry is a jvm.ClassRegistry over an ordered list of sources. The first
// source that has a class wins; parsed classes are cached. A Registry is safe
// for concurrent use, so several VMs may share one.
type Registry struct {
	mu      sync.Mutex
	sources []Source
	cache   map[string]*classfile.ClassFile

	ctx       context.Context
	parseOpts []classfile.Option
	logger    core.Logger
	metrics   *prometheus.Metrics
}

var _ jvm.ClassRegistry = (*Registry)(nil)

type RegistryOption func(*Registry)

func WithLogger(l core.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(m *prometheus.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithParseOptions sets the options every class is parsed with, e.g. a
// version range.
func WithParseOptions(opts ...classfile.Option) RegistryOption {
	return func(r *Registry) { r.parseOpts = opts }
}

// WithContext sets the context source lookups run under.
func WithContext(ctx context.Context) RegistryOption {
	return func(r *Registry) { r.ctx = ctx }
}

func NewRegistry(sources []Source, opts ...RegistryOption) *Registry {
	r := &Registry{
		sources: sources,
		cache:   make(map[string]*classfile.ClassFile),
		ctx:     context.Background(),
		logger:  core.NewNopLogger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Lookup returns the parsed class name. A class found in a source must
// declare that name.
func (r *Registry) Lookup(name string) (*classfile.ClassFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cf, ok := r.cache[name]; ok {
		return cf, nil
	}

	for _, src := range r.sources {
		start := time.Now()
		data, err := src.Find(r.ctx, name)
		if errors.Is(err, jvm.ErrClassNotFound) {
			continue
		}
		label := sourceKind(src)
		if err != nil {
			r.metrics.RecordClassLoad(label, "error", time.Since(start))
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		cf, err := classfile.Parse(data, r.parseOpts...)
		if err == nil && cf.Name() != name {
			err = fmt.Errorf("%s declares %s", name, cf.Name())
		}
		if err != nil {
			r.metrics.RecordClassLoad(label, "rejected", time.Since(start))
			r.logger.Warnf("Class %s from %s rejected: %v", name, src, err)
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		r.metrics.RecordClassLoad(label, "ok", time.Since(start))
		r.logger.Debugf("Found class %s in %s", name, src)
		r.cache[name] = cf
		return cf, nil
	}
	return nil, fmt.Errorf("%w: %s", jvm.ErrClassNotFound, name)
}

func sourceKind(src Source) string {
	kind, _, _ := strings.Cut(src.String(), "(")
	return kind
}

// Invalidate drops name from the cache, or everything when name is empty.
func (r *Registry) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		r.cache = make(map[string]*classfile.ClassFile)
		return
	}
	delete(r.cache, name)
}

// Cached lists the classes parsed so far.
func (r *Registry) Cached() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.cache))
	for n := range r.cache {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
