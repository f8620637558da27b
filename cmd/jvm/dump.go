package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
	"github.com/fluxorio/jvm/pkg/config"
	"github.com/fluxorio/jvm/pkg/mutf8"
)

// dump prints the structure of a class file without running it: version,
// flags, constant pool, members with their disassembled code, and the
// load status. It returns 1 if the file does not load cleanly.
func dump(cfg *config.Config, path string, w io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", path, err)
		return 1
	}
	cf, err := classfile.Parse(data, cfg.ParseOptions()...)
	if err != nil {
		fmt.Fprintf(w, "%s: status: %s\n  %v\n", path, classfile.StatusOf(err), err)
		return 1
	}

	fmt.Fprintf(w, "class %s extends %s\n", cf.Name(), cf.SuperName())
	fmt.Fprintf(w, "  version: %d.%d\n", cf.MajorVersion, cf.MinorVersion)
	fmt.Fprintf(w, "  flags: %s (%s)\n", cf.AccessFlags, cf.AccessFlags.Render(classfile.ClassFlags))
	for _, name := range cf.InterfaceNames() {
		fmt.Fprintf(w, "  implements %s\n", name)
	}

	fmt.Fprintln(w, "constant pool:")
	cf.ConstantPool.Each(func(index uint16, e classfile.Entry) {
		fmt.Fprintf(w, "  #%-4d %-18s %s\n", index, e.Tag(), constantText(cf.ConstantPool, index, e))
	})

	for _, f := range cf.Fields {
		fmt.Fprintf(w, "field %s %s (%s)\n", f.Name, f.Descriptor, f.AccessFlags.Render(classfile.FieldFlags))
	}
	status := classfile.CheckStatus(cf)
	for _, m := range cf.Methods {
		fmt.Fprintf(w, "method %s%s (%s)\n", m.Name, m.Descriptor, m.AccessFlags.Render(classfile.MethodFlags))
		code := m.Code()
		if code == nil {
			continue
		}
		fmt.Fprintf(w, "  stack=%d locals=%d length=%d\n", code.MaxStack, code.MaxLocals, len(code.Code))
		insns, err := bytecode.Disassemble(code.Code)
		for _, in := range insns {
			fmt.Fprintf(w, "  %s\n", in)
		}
		if err != nil {
			fmt.Fprintf(w, "  error: %v\n", err)
			if status == classfile.Valid {
				status = classfile.InvalidCodeLength
			}
		}
	}

	fmt.Fprintf(w, "status: %s\n", status)
	if status != classfile.Valid {
		return 1
	}
	return 0
}

func constantText(cp *classfile.ConstantPool, index uint16, e classfile.Entry) string {
	switch v := e.(type) {
	case *classfile.Utf8Info:
		raw, err := cp.Utf8Bytes(index)
		if err != nil {
			return err.Error()
		}
		n, err := mutf8.RuneCount(raw)
		if err != nil {
			return fmt.Sprintf("%q (%v)", v.Value, err)
		}
		return fmt.Sprintf("%q (%d bytes, %d chars)", v.Value, len(raw), n)
	case *classfile.IntegerInfo:
		return fmt.Sprint(v.Value)
	case *classfile.LongInfo:
		return fmt.Sprintf("%dL", v.Value)
	case *classfile.FloatInfo:
		return fmt.Sprintf("%gf", math.Float32frombits(v.Bits))
	case *classfile.DoubleInfo:
		return fmt.Sprint(math.Float64frombits(v.Bits))
	case *classfile.ClassInfo:
		return fmt.Sprintf("#%d", v.NameIndex)
	case *classfile.StringInfo:
		return fmt.Sprintf("#%d", v.StringIndex)
	default:
		return fmt.Sprintf("%+v", e)
	}
}
