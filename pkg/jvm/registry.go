package jvm

import (
	"fmt"
	"sync"

	"github.com/fluxorio/jvm/pkg/classfile"
)

// ClassRegistry resolves binary class names to parsed class files. A
// registry that does not know a class returns an error wrapping
// ErrClassNotFound.
type ClassRegistry interface {
	Lookup(name string) (*classfile.ClassFile, error)
}

// MapRegistry is an in-memory ClassRegistry. It is safe for concurrent use.
type MapRegistry struct {
	mu      sync.RWMutex
	classes map[string]*classfile.ClassFile
}

// NewMapRegistry creates a registry holding the given classes.
func NewMapRegistry(classes ...*classfile.ClassFile) *MapRegistry {
	r := &MapRegistry{classes: make(map[string]*classfile.ClassFile)}
	for _, cf := range classes {
		r.Add(cf)
	}
	return r
}

// Add registers cf under its own name, replacing any earlier class.
func (r *MapRegistry) Add(cf *classfile.ClassFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[cf.Name()] = cf
}

func (r *MapRegistry) Lookup(name string) (*classfile.ClassFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cf, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}
	return cf, nil
}

// Names lists the registered classes.
func (r *MapRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for n := range r.classes {
		names = append(names, n)
	}
	return names
}
