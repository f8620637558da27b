// Package classpath finds class files for a VM: in directories, in a SQL
// class archive, or both, behind a caching jvm.ClassRegistry.
package classpath

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/jvm"
)

// Source returns the raw bytes of a class by binary name (a/b/C). A source
// that does not have the class returns an error wrapping
// jvm.ErrClassNotFound.
type Source interface {
	Find(ctx context.Context, name string) ([]byte, error)
	String() string
}

// DirSource resolves a/b/C to <Root>/a/b/C.class.
type DirSource struct {
	Root string
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "[") {
		return false
	}
	return path.Clean(name) == name && !strings.HasPrefix(name, "..")
}

func (d DirSource) Find(_ context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: invalid class name %q", jvm.ErrClassNotFound, name)
	}
	data, err := os.ReadFile(filepath.Join(d.Root, filepath.FromSlash(name)+".class"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", jvm.ErrClassNotFound, name)
	}
	return data, err
}

// Walk calls fn for every parseable .class file under Root, with the name
// the class declares.
func (d DirSource) Walk(fn func(name string, data []byte) error) error {
	return filepath.WalkDir(d.Root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || filepath.Ext(p) != ".class" {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		cf, err := classfile.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		return fn(cf.Name(), data)
	})
}

func (d DirSource) String() string {
	return "dir(" + d.Root + ")"
}

// Dirs turns a class path list into directory sources.
func Dirs(roots ...string) []Source {
	out := make([]Source, 0, len(roots))
	for _, r := range roots {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, DirSource{Root: r})
		}
	}
	return out
}
