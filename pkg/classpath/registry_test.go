package classpath

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fluxorio/jvm/pkg/core"
	"github.com/fluxorio/jvm/pkg/jvm"
)

func writeClass(t *testing.T, root, name string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(name)+".class")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	data := classBytes("demo/pkg/A", 1)
	writeClass(t, root, "demo/pkg/A", data)
	src := DirSource{Root: root}
	ctx := context.Background()

	got, err := src.Find(ctx, "demo/pkg/A")
	if err != nil || string(got) != string(data) {
		t.Fatalf("Find = %d bytes, %v", len(got), err)
	}
	for _, name := range []string{"demo/pkg/B", "../A", "/etc/passwd", "demo//A", "[I", ""} {
		if _, err := src.Find(ctx, name); !errors.Is(err, jvm.ErrClassNotFound) {
			t.Errorf("Find(%q): err = %v, want ErrClassNotFound", name, err)
		}
	}

	var walked []string
	if err := src.Walk(func(name string, _ []byte) error {
		walked = append(walked, name)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(walked) != 1 || walked[0] != "demo/pkg/A" {
		t.Errorf("Walk = %v", walked)
	}
}

func TestRegistryOrderAndCache(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeClass(t, first, "demo/A", classBytes("demo/A", 1))
	writeClass(t, second, "demo/A", classBytes("demo/A", 2))
	writeClass(t, second, "demo/B", classBytes("demo/B", 3))

	r := NewRegistry(Dirs(first, " ", second), WithLogger(core.NewNopLogger()))
	vm := jvm.Initialize(jvm.WithLogger(core.NewNopLogger()), jvm.WithRegistry(r))
	defer vm.Deinitialize()

	for _, tt := range []struct {
		class string
		want  int32
	}{{"demo/A", 1}, {"demo/B", 3}} {
		got, err := vm.Invoke(tt.class, "value", "()I")
		if err != nil {
			t.Fatalf("Invoke(%s): %v", tt.class, err)
		}
		if got != jvm.Int(tt.want) {
			t.Errorf("%s.value() = %v, want %d", tt.class, got, tt.want)
		}
	}
	if cached := r.Cached(); len(cached) != 2 {
		t.Errorf("Cached = %v", cached)
	}

	// The cache answers even after the file is gone.
	os.Remove(filepath.Join(second, "demo", "B.class"))
	if _, err := r.Lookup("demo/B"); err != nil {
		t.Errorf("cached Lookup: %v", err)
	}
	r.Invalidate("demo/B")
	if _, err := r.Lookup("demo/B"); !errors.Is(err, jvm.ErrClassNotFound) {
		t.Errorf("Lookup after Invalidate: err = %v, want ErrClassNotFound", err)
	}
}

func TestRegistryRejectsMisnamedClass(t *testing.T) {
	root := t.TempDir()
	writeClass(t, root, "demo/A", classBytes("demo/Other", 1))
	r := NewRegistry(Dirs(root))
	_, err := r.Lookup("demo/A")
	if err == nil || errors.Is(err, jvm.ErrClassNotFound) {
		t.Errorf("err = %v, want a rejection", err)
	}
}

func TestRegistryOverStore(t *testing.T) {
	ctx := context.Background()
	s := memoryStore(t)
	root := t.TempDir()
	writeClass(t, root, "demo/A", classBytes("demo/A", 7))
	writeClass(t, root, "demo/sub/B", classBytes("demo/sub/B", 8))
	n, err := s.Import(ctx, DirSource{Root: root})
	if err != nil || n != 2 {
		t.Fatalf("Import = %d, %v", n, err)
	}

	r := NewRegistry([]Source{s})
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Lookup("demo/sub/B"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Lookup: %v", err)
	}

	vm := jvm.Initialize(jvm.WithLogger(core.NewNopLogger()), jvm.WithRegistry(r))
	defer vm.Deinitialize()
	if got, err := vm.Invoke("demo/A", "value", "()I"); err != nil || got != jvm.Int(7) {
		t.Errorf("demo/A.value() = %v, %v, want 7", got, err)
	}
}
