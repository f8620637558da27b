package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/core"
	"github.com/fluxorio/jvm/pkg/jvm"
)

const pubStatic = classfile.AccPublic | classfile.AccStatic

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func mainClass(t *testing.T) string {
	t.Helper()
	b := classfile.NewBuilder("demo/Main", "java/lang/Object")
	sysout := b.Fieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	printString := b.Methodref("java/io/PrintStream", "println", "(Ljava/lang/String;)V")

	mainCode := bytecode.NewAssembler().
		U2(bytecode.Getstatic, sysout).
		Aload(0).Iconst(0).Op(bytecode.Aaload).
		Invoke(bytecode.Invokevirtual, printString).
		Op(bytecode.Return).MustBytes()
	add := bytecode.NewAssembler().Iload(0).Iload(1).Op(bytecode.Iadd).Op(bytecode.Ireturn).MustBytes()
	div := bytecode.NewAssembler().Iload(0).Iload(1).Op(bytecode.Idiv).Op(bytecode.Ireturn).MustBytes()
	echo := bytecode.NewAssembler().Aload(0).Op(bytecode.Areturn).MustBytes()
	addL := bytecode.NewAssembler().Lload(0).Lload(2).Op(bytecode.Ladd).Op(bytecode.Lreturn).MustBytes()
	literal := bytecode.NewAssembler().Ldc(b.StringConst("constant")).Op(bytecode.Areturn).MustBytes()
	lib := bytecode.NewAssembler().
		Invoke(bytecode.Invokestatic, b.Methodref("demo/Lib", "value", "()I")).
		Op(bytecode.Ireturn).MustBytes()

	data := b.
		Method(pubStatic, "main", "([Ljava/lang/String;)V", 3, 1, mainCode).
		Method(pubStatic, "add", "(II)I", 2, 2, add).
		Method(pubStatic, "add", "(JJ)J", 4, 4, addL).
		Method(pubStatic, "div", "(II)I", 2, 2, div).
		Method(pubStatic, "echo", "(Ljava/lang/String;)Ljava/lang/String;", 1, 1, echo).
		Method(pubStatic, "lib", "()I", 1, 0, lib).
		Method(pubStatic, "literal", "()Ljava/lang/String;", 1, 0, literal).
		MustBytes()
	return writeFile(t, t.TempDir(), "Main.class", data)
}

func libClass(v int32) []byte {
	code := bytecode.NewAssembler().Iconst(v).Op(bytecode.Ireturn).MustBytes()
	return classfile.NewBuilder("demo/Lib", "java/lang/Object").
		Method(pubStatic, "value", "()I", 1, 0, code).
		MustBytes()
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-log-level", "error"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunMain(t *testing.T) {
	code, out, errOut := runCLI(t, mainClass(t), "hello", "ignored")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "hello\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunMethodWithArguments(t *testing.T) {
	path := mainClass(t)
	tests := []struct {
		name string
		args []string
		code int
		out  string
	}{
		{"ints", []string{"-method", "add", "-descriptor", "(II)I", path, "2", "40"}, 0, "42\n"},
		{"longs", []string{"-method", "add", "-descriptor", "(JJ)J", path, "1", "2"}, 0, "3L\n"},
		{"string result", []string{"-method", "echo", path, "hi there"}, 0, "hi there\n"},
		{"overloaded", []string{"-method", "add", path, "1", "2"}, 1, ""},
		{"missing method", []string{"-method", "nope", path}, 1, ""},
		{"bad int", []string{"-method", "div", path, "x", "1"}, 2, ""},
		{"too few", []string{"-method", "div", path, "1"}, 2, ""},
		{"too many", []string{"-method", "div", path, "1", "2", "3"}, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := runCLI(t, tt.args...)
			if code != tt.code {
				t.Fatalf("exit %d, want %d: %s", code, tt.code, errOut)
			}
			if out != tt.out {
				t.Errorf("stdout = %q, want %q", out, tt.out)
			}
		})
	}
}

func TestRunReportsExecutionError(t *testing.T) {
	code, _, errOut := runCLI(t, "-method", "div", mainClass(t), "1", "0")
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(errOut, "demo/Main.div") {
		t.Errorf("stderr lacks the stack trace:\n%s", errOut)
	}
}

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"-store", "sqlite3", "x.class"},
		{"-log-format", "xml", "x.class"},
		{"-import", t.TempDir()},
	} {
		if code, _, _ := runCLI(t, args...); code != 2 {
			t.Errorf("run(%q) = %d, want 2", args, code)
		}
	}
}

func TestRunClassPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "demo/Lib.class", libClass(9))
	code, out, errOut := runCLI(t, "-cp", dir, "-method", "lib", mainClass(t))
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "9\n" {
		t.Errorf("stdout = %q", out)
	}

	code, _, errOut = runCLI(t, "-method", "lib", mainClass(t))
	if code != 1 || !strings.Contains(errOut, "demo/Lib") {
		t.Errorf("without -cp: exit %d, stderr %q", code, errOut)
	}
}

func TestRunImportIntoStore(t *testing.T) {
	classes := t.TempDir()
	writeFile(t, classes, "demo/Lib.class", libClass(11))
	store := "sqlite3:" + filepath.Join(t.TempDir(), "classes.db")

	if code, _, errOut := runCLI(t, "-store", store, "-import", classes); code != 0 {
		t.Fatalf("import: exit %d: %s", code, errOut)
	}
	code, out, errOut := runCLI(t, "-store", store, "-method", "lib", mainClass(t))
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "11\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunReturnsInternedLiteral(t *testing.T) {
	code, out, errOut := runCLI(t, "-log-level", "warn", "-method", "literal", mainClass(t))
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "constant\n" {
		t.Errorf("stdout = %q", out)
	}
	if strings.Contains(errOut, "Failed to release") {
		t.Errorf("VM-held literal was released:\n%s", errOut)
	}
}

func TestReleaseLogsFailures(t *testing.T) {
	var logs bytes.Buffer
	logger := core.NewLogger(core.LoggerConfig{Level: core.LevelWarn, Output: &logs, Plain: true})
	vm := jvm.Initialize(jvm.WithLogger(core.NewNopLogger()), jvm.WithOutput(io.Discard, io.Discard))
	defer vm.Deinitialize()

	ref, err := vm.Heap().NewString("x")
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}
	release(vm, logger, []jvm.Reference{ref, ref})
	if n := strings.Count(logs.String(), "Failed to release"); n != 1 {
		t.Errorf("logged %d release failures, want 1:\n%s", n, logs.String())
	}
	if len(vm.Heap().Outstanding()) != 0 {
		t.Error("reference still outstanding")
	}
}

func TestRunDump(t *testing.T) {
	code, out, errOut := runCLI(t, "-c", mainClass(t))
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	for _, want := range []string{
		"class demo/Main extends java/lang/Object",
		"method add(II)I (public static)",
		"iadd",
		"ireturn",
		`"constant" (8 bytes, 8 chars)`,
		"status: ok",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump lacks %q:\n%s", want, out)
		}
	}
}

func TestRunDumpReportsLoadStatus(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Bad.class", []byte{0xCA, 0xFE, 0xBA, 0xBF, 0, 0, 0, 52})
	code, out, _ := runCLI(t, "-c", path)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(out, "status: "+classfile.BadMagic.String()) {
		t.Errorf("stdout = %q", out)
	}
}
