package classfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fluxorio/jvm/pkg/mutf8"
)

// iconst_1, iconst_2, iadd, ireturn
var addCode = []byte{0x04, 0x05, 0x60, 0xAC}

func sampleBuilder() *Builder {
	b := NewBuilder("demo/Sample", "java/lang/Object")
	b.Field(AccPrivate, "count", "I")
	b.Field(AccPublic, "café\x00日", "[Ljava/lang/String;")
	b.ConstantField(AccPublic|AccStatic|AccFinal, "LIMIT", "J", b.Long(1<<40))
	b.Method(AccPublic|AccStatic, "three", "()I", 2, 0, addCode)
	b.LineNumbers(LineNumber{StartPC: 0, Line: 10}, LineNumber{StartPC: 2, Line: 11})
	b.BodylessMethod(AccPublic|AccNative, "tick", "(JD)V")
	b.SourceFile("Sample.java")
	return b
}

func sampleBytes(t *testing.T) []byte {
	t.Helper()
	data, err := sampleBuilder().Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	return data
}

func TestParse(t *testing.T) {
	cf, err := Parse(sampleBytes(t))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cf.Name() != "demo/Sample" || cf.SuperName() != "java/lang/Object" {
		t.Errorf("names = %s extends %s", cf.Name(), cf.SuperName())
	}
	if cf.SourceFile() != "Sample.java" {
		t.Errorf("SourceFile() = %q", cf.SourceFile())
	}
	if len(cf.Fields) != 3 || len(cf.Methods) != 2 {
		t.Fatalf("got %d fields, %d methods", len(cf.Fields), len(cf.Methods))
	}

	m := cf.FindMethod("three", "()I")
	if m == nil {
		t.Fatal("FindMethod(three) = nil")
	}
	code := m.Code()
	if code == nil || !bytes.Equal(code.Code, addCode) || code.MaxStack != 2 {
		t.Fatalf("Code() = %+v", code)
	}
	if line := code.LineNumber(3); line != 11 {
		t.Errorf("LineNumber(3) = %d, want 11", line)
	}

	native := cf.FindMethod("tick", "(JD)V")
	if native == nil || native.Code() != nil {
		t.Fatalf("native method = %+v", native)
	}
	if native.Signature.ArgSlots() != 4 {
		t.Errorf("ArgSlots() = %d, want 4", native.Signature.ArgSlots())
	}

	limit := cf.FindField("LIMIT", "J")
	if limit == nil || limit.ConstantValue() == nil {
		t.Fatal("LIMIT has no ConstantValue")
	}
	if v, err := cf.ConstantPool.Long(limit.ConstantValue().ValueIndex); err != nil || v != 1<<40 {
		t.Errorf("LIMIT = %d, %v", v, err)
	}

	if CheckStatus(cf) != Valid {
		t.Errorf("CheckStatus() = %s", CheckStatus(cf))
	}
}

func TestParseRoundTripsNames(t *testing.T) {
	data := sampleBytes(t)
	cf, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}

	for _, f := range cf.Fields {
		raw, err := cf.ConstantPool.Utf8Bytes(f.NameIndex)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(mutf8.Encode(f.Name), raw) {
			t.Errorf("field %q does not re-encode to % X", f.Name, raw)
		}
	}
	if cf.FindField("café\x00日", "[Ljava/lang/String;") == nil {
		t.Error("non-ASCII field name lost")
	}

	out, err := cf.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("Parse then Bytes did not reproduce the input")
	}
}

func TestParseTruncated(t *testing.T) {
	data := sampleBytes(t)
	for n := 0; n < len(data); n++ {
		_, err := Parse(data[:n])
		if got := StatusOf(err); got != TruncatedFile {
			t.Fatalf("Parse(%d of %d bytes) status = %s (%v), want %s", n, len(data), got, err, TruncatedFile)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		opts   []Option
		status Status
	}{
		{
			name:   "bad magic",
			mutate: func(b []byte) []byte { b[0] = 0xCB; return b },
			status: BadMagic,
		},
		{
			name:   "major version too new",
			mutate: func(b []byte) []byte { b[7] = 53; return b },
			status: UnsupportedMajorVersion,
		},
		{
			name:   "major version too old",
			mutate: func(b []byte) []byte { b[7] = 44; return b },
			status: UnsupportedMajorVersion,
		},
		{
			name:   "trailing data",
			mutate: func(b []byte) []byte { return append(b, 0x00) },
			status: TrailingData,
		},
		{
			name:   "version range option",
			mutate: func(b []byte) []byte { return b },
			opts:   []Option{WithVersionRange(45, 50)},
			status: UnsupportedMajorVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(sampleBytes(t))
			_, err := Parse(data, tt.opts...)
			if got := StatusOf(err); got != tt.status {
				t.Errorf("status = %s (%v), want %s", got, err, tt.status)
			}
		})
	}
}

func TestParseAttributeLengthMismatch(t *testing.T) {
	b := sampleBuilder()
	cvName := b.Utf8("ConstantValue")
	data := b.MustBytes()

	// Find the ConstantValue header (name index, length 2) and grow the body by one byte.
	header := []byte{byte(cvName >> 8), byte(cvName), 0, 0, 0, 2}
	i := bytes.Index(data, header)
	if i < 0 {
		t.Fatal("ConstantValue header not found")
	}
	patched := append([]byte{}, data[:i+5]...)
	patched = append(patched, 3)
	patched = append(patched, data[i+6:i+8]...)
	patched = append(patched, 0xFF)
	patched = append(patched, data[i+8:]...)

	_, err := Parse(patched)
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		t.Fatalf("Parse() error = %v, want *LoadError", err)
	}
	if lerr.Status != AttributeLengthMismatch {
		t.Errorf("status = %s, want %s", lerr.Status, AttributeLengthMismatch)
	}
	if lerr.Location != "fields[2].attributes[ConstantValue]" {
		t.Errorf("Location = %q", lerr.Location)
	}
}

func TestValidationStatuses(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *Builder
		status Status
	}{
		{
			name: "reserved class bit",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").Access(AccPublic | AccPrivate)
			},
			status: ReservedClassAccessFlags,
		},
		{
			name: "interface without abstract",
			build: func() *Builder {
				return NewBuilder("demo/I", "java/lang/Object").Access(AccPublic | AccInterface)
			},
			status: InvalidAccessFlags,
		},
		{
			name: "field with two visibilities",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").Field(AccPublic|AccPrivate, "x", "I")
			},
			status: InvalidAccessFlags,
		},
		{
			name: "reserved method bit",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").
					Method(AccPublic|AccInterface, "m", "()V", 0, 0, []byte{0xB1})
			},
			status: ReservedMethodAccessFlags,
		},
		{
			name: "abstract final method",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").Access(AccPublic|AccAbstract).
					BodylessMethod(AccAbstract|AccFinal, "m", "()V")
			},
			status: InvalidAccessFlags,
		},
		{
			name: "bad field descriptor",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").Field(AccPublic, "x", "Q")
			},
			status: InvalidFieldDescriptor,
		},
		{
			name: "bad method descriptor",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").Method(AccPublic, "m", "(I", 1, 1, []byte{0xB1})
			},
			status: InvalidMethodDescriptor,
		},
		{
			name: "bad field name",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").Field(AccPublic, "a.b", "I")
			},
			status: InvalidName,
		},
		{
			name: "method without code",
			build: func() *Builder {
				return NewBuilder("demo/A", "java/lang/Object").BodylessMethod(AccPublic, "m", "()V")
			},
			status: MissingCode,
		},
		{
			name: "missing superclass",
			build: func() *Builder {
				return NewBuilder("demo/A", "")
			},
			status: InvalidSuperClass,
		},
		{
			name: "constant value type mismatch",
			build: func() *Builder {
				b := NewBuilder("demo/A", "java/lang/Object")
				return b.ConstantField(AccStatic|AccFinal, "X", "I", b.Long(1))
			},
			status: InvalidConstantValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.build()
			if got := CheckStatus(b.ClassFile()); got != tt.status {
				t.Errorf("CheckStatus() = %s, want %s", got, tt.status)
			}
			_, err := b.Build()
			if got := StatusOf(err); got != tt.status {
				t.Errorf("Build() status = %s (%v), want %s", got, err, tt.status)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if Valid.String() != "ok" {
		t.Errorf("Valid.String() = %q", Valid.String())
	}
	if TrailingData.String() != "file contains unexpected trailing data" {
		t.Errorf("TrailingData.String() = %q", TrailingData.String())
	}
	if StatusOf(nil) != Valid || StatusOf(errors.New("x")) != Corrupt {
		t.Error("StatusOf() mapping is wrong")
	}
}

func TestCheckStatusKeepsParseVersionRange(t *testing.T) {
	data := NewBuilder("demo/Modern", "java/lang/Object").Version(61, 0).MustBytes()
	if _, err := Parse(data); StatusOf(err) != UnsupportedMajorVersion {
		t.Fatalf("default range accepted version 61: %v", err)
	}
	cf, err := Parse(data, WithVersionRange(45, 61))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := CheckStatus(cf); got != Valid {
		t.Errorf("CheckStatus() = %s, want %s", got, Valid)
	}
	if got := CheckStatus(cf, WithVersionRange(45, 52)); got != UnsupportedMajorVersion {
		t.Errorf("CheckStatus(45..52) = %s, want %s", got, UnsupportedMajorVersion)
	}
}
