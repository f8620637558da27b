package jvm

import (
	"github.com/fluxorio/jvm/pkg/bytecode"
	"github.com/fluxorio/jvm/pkg/classfile"
)

// Bootstrap classes stand in for the platform library when neither the VM
// nor the registry defines them. They are ordinary class files whose
// library methods are native, so invocation goes through one path.

const (
	pub       = classfile.AccPublic
	pubStatic = classfile.AccPublic | classfile.AccStatic
	pubNative = classfile.AccPublic | classfile.AccNative
	pubFinal  = classfile.AccPublic | classfile.AccFinal
)

var bootstrapBuilders = map[string]func() *classfile.Builder{
	"java/lang/Object":        buildObject,
	"java/lang/Class":         buildClassMirror,
	"java/lang/String":        buildString,
	"java/lang/StringBuilder": buildStringBuilder,
	"java/lang/System":        buildSystem,
	"java/lang/Math":          buildMath,
	"java/io/PrintStream":     buildPrintStream,
	"java/lang/Throwable":     buildThrowable,
}

// exceptionClasses lists each bootstrap exception with its superclass.
var exceptionClasses = [][2]string{
	{"java/lang/Exception", "java/lang/Throwable"},
	{"java/lang/Error", "java/lang/Throwable"},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/UnsupportedOperationException", "java/lang/RuntimeException"},
}

func init() {
	for _, e := range exceptionClasses {
		bootstrapBuilders[e[0]] = throwableSubclass(e[0], e[1])
	}
}

// bootstrapInit returns the hook run after a bootstrap class's static fields
// are zeroed and before its <clinit>.
func bootstrapInit(name string) func(vm *VM, c *Class) error {
	if name == "java/lang/System" {
		return initSystem
	}
	return nil
}

// bootstrapClass synthesizes name, or returns nil when it is not a
// bootstrap class. Without system simulation only java/lang/Object exists.
func (vm *VM) bootstrapClass(name string) (*classfile.ClassFile, error) {
	build, ok := bootstrapBuilders[name]
	if !ok || (!vm.simulateSystem && name != "java/lang/Object") {
		return nil, nil
	}
	return build().Build()
}

// superInit is the body of a constructor that only chains to super.<init>()V.
func superInit(b *classfile.Builder, super string) []byte {
	return bytecode.NewAssembler().
		Aload(0).
		Invoke(bytecode.Invokespecial, b.Methodref(super, "<init>", "()V")).
		Op(bytecode.Return).
		MustBytes()
}

func natives(b *classfile.Builder, flags classfile.AccessFlags, name string, descriptors ...string) {
	for _, d := range descriptors {
		b.BodylessMethod(flags, name, d)
	}
}

func buildObject() *classfile.Builder {
	b := classfile.NewBuilder("java/lang/Object", "")
	b.Method(pub, "<init>", "()V", 0, 1, bytecode.NewAssembler().Op(bytecode.Return).MustBytes())
	natives(b, pubNative, "hashCode", "()I")
	natives(b, pubNative, "equals", "(Ljava/lang/Object;)Z")
	natives(b, pubNative, "toString", "()Ljava/lang/String;")
	natives(b, pubNative|classfile.AccFinal, "getClass", "()Ljava/lang/Class;")
	return b.SourceFile("Object.java")
}

func buildClassMirror() *classfile.Builder {
	b := classfile.NewBuilder("java/lang/Class", "java/lang/Object").Access(pubFinal | classfile.AccSuper)
	natives(b, pubNative, "getName", "()Ljava/lang/String;")
	return b.SourceFile("Class.java")
}

func buildString() *classfile.Builder {
	b := classfile.NewBuilder("java/lang/String", "java/lang/Object").Access(pubFinal | classfile.AccSuper)
	b.Method(pub, "<init>", "()V", 1, 1, superInit(b, "java/lang/Object"))
	natives(b, pubNative, "length", "()I")
	natives(b, pubNative, "charAt", "(I)C")
	natives(b, pubNative, "isEmpty", "()Z")
	natives(b, pubNative, "equals", "(Ljava/lang/Object;)Z")
	natives(b, pubNative, "hashCode", "()I")
	natives(b, pubNative, "concat", "(Ljava/lang/String;)Ljava/lang/String;")
	natives(b, pubNative, "toString", "()Ljava/lang/String;")
	natives(b, pubNative|classfile.AccStatic, "valueOf",
		"(I)Ljava/lang/String;", "(J)Ljava/lang/String;", "(Z)Ljava/lang/String;",
		"(C)Ljava/lang/String;", "(F)Ljava/lang/String;", "(D)Ljava/lang/String;",
		"(Ljava/lang/Object;)Ljava/lang/String;")
	return b.SourceFile("String.java")
}

func buildStringBuilder() *classfile.Builder {
	const sb = "Ljava/lang/StringBuilder;"
	b := classfile.NewBuilder("java/lang/StringBuilder", "java/lang/Object").Access(pubFinal | classfile.AccSuper)
	b.Method(pub, "<init>", "()V", 1, 1, superInit(b, "java/lang/Object"))
	withString := bytecode.NewAssembler().
		Aload(0).
		Invoke(bytecode.Invokespecial, b.Methodref("java/lang/Object", "<init>", "()V")).
		Aload(0).
		Aload(1).
		Invoke(bytecode.Invokevirtual, b.Methodref("java/lang/StringBuilder", "append", "(Ljava/lang/String;)"+sb)).
		Op(bytecode.Pop).
		Op(bytecode.Return).
		MustBytes()
	b.Method(pub, "<init>", "(Ljava/lang/String;)V", 2, 2, withString)
	natives(b, pubNative, "append",
		"(Ljava/lang/String;)"+sb, "(Ljava/lang/Object;)"+sb, "(I)"+sb, "(J)"+sb,
		"(C)"+sb, "(Z)"+sb, "(F)"+sb, "(D)"+sb)
	natives(b, pubNative, "length", "()I")
	natives(b, pubNative, "toString", "()Ljava/lang/String;")
	return b.SourceFile("StringBuilder.java")
}

var printDescriptors = []string{
	"(Z)V", "(C)V", "(I)V", "(J)V", "(F)V", "(D)V",
	"(Ljava/lang/String;)V", "(Ljava/lang/Object;)V", "([C)V",
}

func buildPrintStream() *classfile.Builder {
	b := classfile.NewBuilder("java/io/PrintStream", "java/lang/Object")
	b.Field(classfile.AccPrivate|classfile.AccFinal, "fd", "I")
	natives(b, pubNative, "println", append([]string{"()V"}, printDescriptors...)...)
	natives(b, pubNative, "print", printDescriptors...)
	natives(b, pubNative, "flush", "()V")
	return b.SourceFile("PrintStream.java")
}

func buildSystem() *classfile.Builder {
	b := classfile.NewBuilder("java/lang/System", "java/lang/Object").Access(pubFinal | classfile.AccSuper)
	b.Field(pubStatic|classfile.AccFinal, "out", "Ljava/io/PrintStream;")
	b.Field(pubStatic|classfile.AccFinal, "err", "Ljava/io/PrintStream;")
	natives(b, pubStatic|classfile.AccNative, "currentTimeMillis", "()J")
	natives(b, pubStatic|classfile.AccNative, "nanoTime", "()J")
	natives(b, pubStatic|classfile.AccNative, "identityHashCode", "(Ljava/lang/Object;)I")
	natives(b, pubStatic|classfile.AccNative, "arraycopy", "(Ljava/lang/Object;ILjava/lang/Object;II)V")
	return b.SourceFile("System.java")
}

func buildMath() *classfile.Builder {
	b := classfile.NewBuilder("java/lang/Math", "java/lang/Object").Access(pubFinal | classfile.AccSuper)
	n := pubStatic | classfile.AccNative
	natives(b, n, "abs", "(I)I", "(J)J", "(F)F", "(D)D")
	natives(b, n, "max", "(II)I", "(JJ)J", "(DD)D")
	natives(b, n, "min", "(II)I", "(JJ)J", "(DD)D")
	natives(b, n, "sqrt", "(D)D")
	natives(b, n, "pow", "(DD)D")
	return b.SourceFile("Math.java")
}

const detailMessage = "detailMessage:Ljava/lang/String;"

func buildThrowable() *classfile.Builder {
	const name = "java/lang/Throwable"
	b := classfile.NewBuilder(name, "java/lang/Object")
	b.Field(classfile.AccPrivate, "detailMessage", "Ljava/lang/String;")
	b.Method(pub, "<init>", "()V", 1, 1, superInit(b, "java/lang/Object"))
	withMessage := bytecode.NewAssembler().
		Aload(0).
		Invoke(bytecode.Invokespecial, b.Methodref("java/lang/Object", "<init>", "()V")).
		Aload(0).
		Aload(1).
		U2(bytecode.Putfield, b.Fieldref(name, "detailMessage", "Ljava/lang/String;")).
		Op(bytecode.Return).
		MustBytes()
	b.Method(pub, "<init>", "(Ljava/lang/String;)V", 2, 2, withMessage)
	getMessage := bytecode.NewAssembler().
		Aload(0).
		U2(bytecode.Getfield, b.Fieldref(name, "detailMessage", "Ljava/lang/String;")).
		Op(bytecode.Areturn).
		MustBytes()
	b.Method(pub, "getMessage", "()Ljava/lang/String;", 1, 1, getMessage)
	return b.SourceFile("Throwable.java")
}

// throwableSubclass builds an exception class whose constructors chain to
// the matching constructor of super.
func throwableSubclass(name, super string) func() *classfile.Builder {
	return func() *classfile.Builder {
		b := classfile.NewBuilder(name, super)
		b.Method(pub, "<init>", "()V", 1, 1, superInit(b, super))
		withMessage := bytecode.NewAssembler().
			Aload(0).
			Aload(1).
			Invoke(bytecode.Invokespecial, b.Methodref(super, "<init>", "(Ljava/lang/String;)V")).
			Op(bytecode.Return).
			MustBytes()
		b.Method(pub, "<init>", "(Ljava/lang/String;)V", 2, 2, withMessage)
		return b
	}
}

// initSystem points System.out and System.err at VM-held print streams.
func initSystem(vm *VM, c *Class) error {
	ps, err := vm.loadClass("java/io/PrintStream")
	if err != nil {
		return err
	}
	for i, field := range []string{"out", "err"} {
		fields := ps.instanceFields()
		fields["fd:I"] = Int(int32(i + 1))
		ref, err := vm.heap.NewInstance(ps.Name, fields)
		if err != nil {
			return err
		}
		vm.heap.hold(ref)
		c.statics[memberKey(field, "Ljava/io/PrintStream;")] = Ref(ref)
	}
	return nil
}
