package jvm

import (
	"errors"
	"math"
	"testing"

	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
)

func TestDivisionByZero(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		prog  program
		want  Value
		arith bool
	}{
		{"idiv", "()I", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Iconst(1).Iconst(0).Op(bytecode.Idiv).Op(bytecode.Ireturn)
		}, Void, true},
		{"irem", "()I", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Iconst(1).Iconst(0).Op(bytecode.Irem).Op(bytecode.Ireturn)
		}, Void, true},
		{"ldiv", "()J", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Lconst1).Op(bytecode.Lconst0).Op(bytecode.Ldiv).Op(bytecode.Lreturn)
		}, Void, true},
		{"lrem", "()J", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Lconst1).Op(bytecode.Lconst0).Op(bytecode.Lrem).Op(bytecode.Lreturn)
		}, Void, true},
		{"fdiv", "()F", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Fconst1).Op(bytecode.Fconst0).Op(bytecode.Fdiv).Op(bytecode.Freturn)
		}, Float(float32(math.Inf(1))), false},
		{"ddiv", "()D", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Dconst1).Op(bytecode.Dneg).Op(bytecode.Dconst0).Op(bytecode.Ddiv).Op(bytecode.Dreturn)
		}, Double(math.Inf(-1)), false},
		{"int overflow wraps", "()I", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc(b.Integer(math.MinInt32)).Iconst(-1).Op(bytecode.Idiv).Op(bytecode.Ireturn)
		}, Int(math.MinInt32), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			got, err := run(t, vm, tt.desc, 4, 0, tt.prog)
			if tt.arith {
				var aerr *ArithmeticError
				if !errors.As(err, &aerr) {
					t.Fatalf("err = %v, want ArithmeticError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecutionErrorLocation(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()I", 2, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		// bipush 7 (pc 0), iconst_0 (pc 2), idiv (pc 3)
		a.Iconst(7).Iconst(0).Op(bytecode.Idiv).Op(bytecode.Ireturn)
	})
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want ExecutionError", err)
	}
	if ee.PC != 3 || ee.Opcode != bytecode.Idiv || ee.Class != "test/Main" || ee.Method != "run()I" {
		t.Errorf("location = %s.%s pc %d %s", ee.Class, ee.Method, ee.PC, ee.Opcode)
	}
	if len(ee.Trace) != 1 {
		t.Errorf("Trace = %q, want one frame", ee.Trace)
	}
	if ErrorKind(err) != "arithmetic" {
		t.Errorf("ErrorKind = %q, want arithmetic", ErrorKind(err))
	}
}

func TestArrayBounds(t *testing.T) {
	prog := func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(3).Newarray(10).Astore(1).
			Aload(1).Iload(0).Iconst(9).Op(bytecode.Iastore).
			Aload(1).Iload(0).Op(bytecode.Iaload).
			Op(bytecode.Ireturn)
	}
	tests := []struct {
		index int32
		ok    bool
	}{
		{0, true},
		{2, true},
		{3, false},
		{-1, false},
	}
	for _, tt := range tests {
		vm := newTestVM(t)
		got, err := run(t, vm, "(I)I", 3, 2, prog, Int(tt.index))
		if tt.ok {
			if err != nil || got != Int(9) {
				t.Errorf("index %d: got %v, %v, want 9", tt.index, got, err)
			}
			continue
		}
		var berr *BoundsError
		if !errors.As(err, &berr) || berr.Kind != ArrayIndexOutOfBounds || berr.Index != tt.index || berr.Length != 3 {
			t.Errorf("index %d: err = %v, want ArrayIndexOutOfBounds", tt.index, err)
		}
	}
}

func TestNegativeArraySize(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()V", 1, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(-1).Newarray(8).Op(bytecode.Pop).Op(bytecode.Return)
	})
	var berr *BoundsError
	if !errors.As(err, &berr) || berr.Kind != NegativeArraySize {
		t.Errorf("err = %v, want NegativeArraySize", err)
	}
	if n := vm.Heap().Live(); n != 0 {
		t.Errorf("Live = %d after failed allocation", n)
	}
}

func TestReturnKindMustMatchDescriptor(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()J", 1, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(1).Op(bytecode.Ireturn)
	})
	var serr *StackError
	if !errors.As(err, &serr) || serr.Kind != CategoryMismatch || serr.Want != KindLong || serr.Got != KindInt {
		t.Errorf("err = %v, want CategoryMismatch long/int", err)
	}
}

func TestOperandStackOverflow(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()I", 1, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(1).Iconst(1).Op(bytecode.Iadd).Op(bytecode.Ireturn)
	})
	var serr *StackError
	if !errors.As(err, &serr) || serr.Kind != StackOverflow || serr.Calls {
		t.Errorf("err = %v, want operand StackOverflow", err)
	}
}

func TestCallDepthLimit(t *testing.T) {
	vm := newTestVM(t, WithMaxCallDepth(8))
	_, err := run(t, vm, "()V", 0, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
		a.Invoke(bytecode.Invokestatic, b.Methodref("test/Main", "run", "()V")).Op(bytecode.Return)
	})
	var serr *StackError
	if !errors.As(err, &serr) || serr.Kind != StackOverflow || !serr.Calls || serr.Limit != 8 {
		t.Fatalf("err = %v, want call StackOverflow at 8", err)
	}
	if vm.calls.Depth() != 0 {
		t.Errorf("call stack depth = %d after abrupt completion", vm.calls.Depth())
	}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		desc string
		prog program
		want Value
	}{
		{"d2i NaN", "()I", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Double(math.NaN())).Op(bytecode.D2i).Op(bytecode.Ireturn)
		}, Int(0)},
		{"d2l saturates", "()J", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Double(1e300)).Op(bytecode.D2l).Op(bytecode.Lreturn)
		}, Long(math.MaxInt64)},
		{"f2i saturates", "()I", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc(b.Float(-1e20)).Op(bytecode.F2i).Op(bytecode.Ireturn)
		}, Int(math.MinInt32)},
		{"f2i truncates", "()I", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc(b.Float(-2.75)).Op(bytecode.F2i).Op(bytecode.Ireturn)
		}, Int(-2)},
		{"i2b", "()I", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Iconst(200).Op(bytecode.I2b).Op(bytecode.Ireturn)
		}, Int(-56)},
		{"i2c", "()I", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Iconst(-1).Op(bytecode.I2c).Op(bytecode.Ireturn)
		}, Int(65535)},
		{"i2s", "()I", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc(b.Integer(40000)).Op(bytecode.I2s).Op(bytecode.Ireturn)
		}, Int(-25536)},
		{"l2i", "()I", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Long(1<<32 + 7)).Op(bytecode.L2i).Op(bytecode.Ireturn)
		}, Int(7)},
		{"i2d", "()D", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Iconst(-3).Op(bytecode.I2d).Op(bytecode.Dreturn)
		}, Double(-3)},
		{"d2f", "()F", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Double(0.5)).Op(bytecode.D2f).Op(bytecode.Freturn)
		}, Float(0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			got, err := run(t, vm, tt.desc, 2, 0, tt.prog)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComparisons(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		prog program
		want int32
	}{
		{"lcmp greater", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Lconst1).Op(bytecode.Lconst0).Op(bytecode.Lcmp)
		}, 1},
		{"fcmpl NaN", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Fconst0).Ldc(b.Float(nan)).Op(bytecode.Fcmpl)
		}, -1},
		{"fcmpg NaN", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Fconst0).Ldc(b.Float(nan)).Op(bytecode.Fcmpg)
		}, 1},
		{"fcmpl less", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Fconst1).Op(bytecode.Fconst2).Op(bytecode.Fcmpl)
		}, -1},
		{"dcmpg equal", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Dconst0).Op(bytecode.Dconst0).Op(bytecode.Dneg).Op(bytecode.Dcmpg)
		}, 0},
		{"dcmpl NaN", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Double(math.NaN())).Op(bytecode.Dconst1).Op(bytecode.Dcmpl)
		}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			got, err := run(t, vm, "()I", 4, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
				tt.prog(b, a)
				a.Op(bytecode.Ireturn)
			})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != Int(tt.want) {
				t.Errorf("result = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestLongShifts(t *testing.T) {
	tests := []struct {
		name string
		prog program
		want int64
	}{
		{"lshl", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Lconst1).Iconst(40).Op(bytecode.Lshl)
		}, 1 << 40},
		{"lshl masks count", func(_ *classfile.Builder, a *bytecode.Assembler) {
			a.Op(bytecode.Lconst1).Iconst(65).Op(bytecode.Lshl)
		}, 2},
		{"lushr", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Long(-1)).Iconst(60).Op(bytecode.Lushr)
		}, 15},
		{"lshr", func(b *classfile.Builder, a *bytecode.Assembler) {
			a.Ldc2(b.Long(-64)).Iconst(3).Op(bytecode.Lshr)
		}, -8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			got, err := run(t, vm, "()J", 3, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
				tt.prog(b, a)
				a.Op(bytecode.Lreturn)
			})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != Long(tt.want) {
				t.Errorf("result = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestSwitches(t *testing.T) {
	table := func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iload(0).
			TableSwitch(1, "default", "one", "two").
			Label("one").Iconst(10).Op(bytecode.Ireturn).
			Label("two").Iconst(20).Op(bytecode.Ireturn).
			Label("default").Iconst(-1).Op(bytecode.Ireturn)
	}
	lookup := func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iload(0).
			LookupSwitch("default", []int32{-5, 100}, []string{"neg", "hundred"}).
			Label("neg").Iconst(1).Op(bytecode.Ireturn).
			Label("hundred").Iconst(2).Op(bytecode.Ireturn).
			Label("default").Iconst(0).Op(bytecode.Ireturn)
	}
	tests := []struct {
		name string
		prog program
		key  int32
		want int32
	}{
		{"table low", table, 1, 10},
		{"table high", table, 2, 20},
		{"table default", table, 5, -1},
		{"lookup first", lookup, -5, 1},
		{"lookup second", lookup, 100, 2},
		{"lookup default", lookup, 7, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			got, err := run(t, vm, "(I)I", 1, 1, tt.prog, Int(tt.key))
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != Int(tt.want) {
				t.Errorf("switch(%d) = %v, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestJsrRet(t *testing.T) {
	vm := newTestVM(t)
	got, err := run(t, vm, "(I)I", 1, 2, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Jump(bytecode.Jsr, "sub").
			Iload(0).Op(bytecode.Ireturn).
			Label("sub").
			Astore(1).
			Iinc(0, 5).
			U1(bytecode.Ret, 1)
	}, Int(1))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != Int(6) {
		t.Errorf("result = %v, want 6", got)
	}
}

func TestWideLocals(t *testing.T) {
	vm := newTestVM(t)
	got, err := run(t, vm, "()I", 1, 300, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(4).Istore(299).Iinc(299, 1000).Iload(299).Op(bytecode.Ireturn)
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != Int(1004) {
		t.Errorf("result = %v, want 1004", got)
	}
}

func TestStackShuffles(t *testing.T) {
	vm := newTestVM(t)
	// 1 2 -> dup_x1 -> 2 1 2 -> isub -> 2 -1 -> imul -> -2
	got, err := run(t, vm, "()I", 3, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(1).Iconst(2).Op(bytecode.DupX1).Op(bytecode.Isub).Op(bytecode.Imul).Op(bytecode.Ireturn)
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != Int(-2) {
		t.Errorf("result = %v, want -2", got)
	}

	vm = newTestVM(t)
	_, err = run(t, vm, "()V", 2, 0, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Op(bytecode.Lconst1).Op(bytecode.Dup).Op(bytecode.Return)
	})
	var serr *StackError
	if !errors.As(err, &serr) || serr.Kind != CategoryMismatch {
		t.Errorf("dup of a long: err = %v, want CategoryMismatch", err)
	}
}

func TestMultiDimensionalArray(t *testing.T) {
	vm := newTestVM(t)
	got, err := run(t, vm, "()I", 2, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(2).Iconst(3).
			Multianewarray(b.Class("[[I"), 2).
			Iconst(1).Op(bytecode.Aaload).
			Op(bytecode.Arraylength).
			Op(bytecode.Ireturn)
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != Int(3) {
		t.Errorf("inner length = %v, want 3", got)
	}
	if n := vm.Heap().Live(); n != 3 {
		t.Errorf("Live = %d, want 3 arrays", n)
	}
}

func TestMultiDimensionalArrayOverHeapLimit(t *testing.T) {
	vm := newTestVM(t, WithMaxHeapObjects(4))
	_, err := run(t, vm, "()V", 2, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(4).Iconst(2).
			Multianewarray(b.Class("[[I"), 2).
			Op(bytecode.Pop).
			Op(bytecode.Return)
	})
	var rerr *ResourceError
	if !errors.As(err, &rerr) || rerr.Kind != HeapExhausted {
		t.Fatalf("err = %v, want HeapExhausted", err)
	}
	if out := vm.Heap().Outstanding(); len(out) != 0 {
		t.Errorf("Outstanding = %v after failed multianewarray", out)
	}
}

func TestArrayStoreChecksComponentType(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()V", 4, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(1).U2(bytecode.Anewarray, b.Class("java/lang/String")).
			Iconst(0).
			Iconst(1).Newarray(10).
			Op(bytecode.Aastore).
			Op(bytecode.Return)
	})
	var cerr *ClassCastError
	if !errors.As(err, &cerr) {
		t.Errorf("err = %v, want ClassCastError", err)
	}
}

func TestByteArrayNarrowing(t *testing.T) {
	vm := newTestVM(t)
	got, err := run(t, vm, "()I", 3, 1, func(_ *classfile.Builder, a *bytecode.Assembler) {
		a.Iconst(1).Newarray(8).Astore(0).
			Aload(0).Iconst(0).Iconst(200).Op(bytecode.Bastore).
			Aload(0).Iconst(0).Op(bytecode.Baload).
			Op(bytecode.Ireturn)
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != Int(-56) {
		t.Errorf("result = %v, want -56", got)
	}
}

func TestUnsupportedNative(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()V", 0, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
		b.BodylessMethod(classfile.AccPublic|classfile.AccStatic|classfile.AccNative, "missing", "()V")
		a.Invoke(bytecode.Invokestatic, b.Methodref("test/Main", "missing", "()V")).Op(bytecode.Return)
	})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestUnresolvedMethod(t *testing.T) {
	vm := newTestVM(t)
	_, err := run(t, vm, "()V", 0, 0, func(b *classfile.Builder, a *bytecode.Assembler) {
		a.Invoke(bytecode.Invokestatic, b.Methodref("test/Main", "nope", "()V")).Op(bytecode.Return)
	})
	var lerr *LinkError
	if !errors.As(err, &lerr) || lerr.Name != "nope" {
		t.Errorf("err = %v, want LinkError for nope", err)
	}
	if ErrorKind(err) != "resolution" {
		t.Errorf("ErrorKind = %q, want resolution", ErrorKind(err))
	}
}
