package classfile

import (
	"fmt"
	"strings"
)

// AccessFlags is the u2 access_flags bitmask of a class, field, method or
// inner-class entry. Several bits mean different things per context.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020 // class
	AccSynchronized AccessFlags = 0x0020 // method
	AccVolatile     AccessFlags = 0x0040 // field
	AccBridge       AccessFlags = 0x0040 // method
	AccTransient    AccessFlags = 0x0080 // field
	AccVarargs      AccessFlags = 0x0080 // method
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

// FlagContext selects which meaning applies to an access-flag bit.
type FlagContext uint8

const (
	ClassFlags FlagContext = iota
	FieldFlags
	MethodFlags
	InnerClassFlags
)

func (c FlagContext) String() string {
	switch c {
	case ClassFlags:
		return "class"
	case FieldFlags:
		return "field"
	case MethodFlags:
		return "method"
	case InnerClassFlags:
		return "inner class"
	}
	return fmt.Sprintf("context(%d)", uint8(c))
}

type flagKey struct {
	ctx FlagContext
	bit AccessFlags
}

var flagNames = map[flagKey]string{
	{ClassFlags, AccPublic}:     "public",
	{ClassFlags, AccFinal}:      "final",
	{ClassFlags, AccSuper}:      "super",
	{ClassFlags, AccInterface}:  "interface",
	{ClassFlags, AccAbstract}:   "abstract",
	{ClassFlags, AccSynthetic}:  "synthetic",
	{ClassFlags, AccAnnotation}: "annotation",
	{ClassFlags, AccEnum}:       "enum",

	{FieldFlags, AccPublic}:    "public",
	{FieldFlags, AccPrivate}:   "private",
	{FieldFlags, AccProtected}: "protected",
	{FieldFlags, AccStatic}:    "static",
	{FieldFlags, AccFinal}:     "final",
	{FieldFlags, AccVolatile}:  "volatile",
	{FieldFlags, AccTransient}: "transient",
	{FieldFlags, AccSynthetic}: "synthetic",
	{FieldFlags, AccEnum}:      "enum",

	{MethodFlags, AccPublic}:       "public",
	{MethodFlags, AccPrivate}:      "private",
	{MethodFlags, AccProtected}:    "protected",
	{MethodFlags, AccStatic}:       "static",
	{MethodFlags, AccFinal}:        "final",
	{MethodFlags, AccSynchronized}: "synchronized",
	{MethodFlags, AccBridge}:       "bridge",
	{MethodFlags, AccVarargs}:      "varargs",
	{MethodFlags, AccNative}:       "native",
	{MethodFlags, AccAbstract}:     "abstract",
	{MethodFlags, AccStrict}:       "strict",
	{MethodFlags, AccSynthetic}:    "synthetic",

	{InnerClassFlags, AccPublic}:     "public",
	{InnerClassFlags, AccPrivate}:    "private",
	{InnerClassFlags, AccProtected}:  "protected",
	{InnerClassFlags, AccStatic}:     "static",
	{InnerClassFlags, AccFinal}:      "final",
	{InnerClassFlags, AccInterface}:  "interface",
	{InnerClassFlags, AccAbstract}:   "abstract",
	{InnerClassFlags, AccSynthetic}:  "synthetic",
	{InnerClassFlags, AccAnnotation}: "annotation",
	{InnerClassFlags, AccEnum}:       "enum",
}

// validMask is the union of bits that have a meaning in each context.
var validMask = func() map[FlagContext]AccessFlags {
	m := make(map[FlagContext]AccessFlags)
	for k := range flagNames {
		m[k.ctx] |= k.bit
	}
	return m
}()

// Has reports whether every bit of flag is set.
func (f AccessFlags) Has(flag AccessFlags) bool {
	return f&flag == flag
}

// Reserved returns the bits set in f that have no meaning in ctx.
func (f AccessFlags) Reserved(ctx FlagContext) AccessFlags {
	return f &^ validMask[ctx]
}

// Names decodes f in the given context, lowest bit first. Bits with no
// meaning in the context are rendered as reserved(0xNNNN).
func (f AccessFlags) Names(ctx FlagContext) []string {
	var names []string
	for bit := AccessFlags(1); bit != 0; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if name, ok := flagNames[flagKey{ctx, bit}]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("reserved(0x%04X)", uint16(bit)))
		}
	}
	return names
}

// Render joins Names with spaces; zero flags render as "no flags".
func (f AccessFlags) Render(ctx FlagContext) string {
	if f == 0 {
		return "no flags"
	}
	return strings.Join(f.Names(ctx), " ")
}

func (f AccessFlags) String() string {
	return fmt.Sprintf("0x%04X", uint16(f))
}

// visibilityCount counts how many of public/private/protected are set.
func (f AccessFlags) visibilityCount() int {
	n := 0
	for _, bit := range []AccessFlags{AccPublic, AccPrivate, AccProtected} {
		if f&bit != 0 {
			n++
		}
	}
	return n
}

// checkClassFlags reports an invalid combination of class access flags.
func checkClassFlags(f AccessFlags) error {
	if f.Has(AccInterface) {
		if !f.Has(AccAbstract) {
			return fmt.Errorf("interface %s must be abstract", f.Render(ClassFlags))
		}
		if f&(AccFinal|AccSuper|AccEnum) != 0 {
			return fmt.Errorf("interface cannot be final, super or enum: %s", f.Render(ClassFlags))
		}
		return nil
	}
	if f.Has(AccAnnotation) {
		return fmt.Errorf("annotation must be an interface")
	}
	if f.Has(AccFinal | AccAbstract) {
		return fmt.Errorf("class cannot be both final and abstract")
	}
	return nil
}

func checkFieldFlags(f AccessFlags, inInterface bool) error {
	if f.visibilityCount() > 1 {
		return fmt.Errorf("field has more than one visibility: %s", f.Render(FieldFlags))
	}
	if f.Has(AccFinal | AccVolatile) {
		return fmt.Errorf("field cannot be both final and volatile")
	}
	if inInterface {
		required := AccPublic | AccStatic | AccFinal
		if f&required != required || f&^(required|AccSynthetic) != 0 {
			return fmt.Errorf("interface field must be public static final: %s", f.Render(FieldFlags))
		}
	}
	return nil
}

func checkMethodFlags(f AccessFlags, name string, inInterface bool, major uint16) error {
	if name == "<clinit>" {
		return nil
	}
	if f.visibilityCount() > 1 {
		return fmt.Errorf("method has more than one visibility: %s", f.Render(MethodFlags))
	}
	if f.Has(AccAbstract) {
		if f&(AccFinal|AccNative|AccPrivate|AccStatic|AccStrict|AccSynchronized) != 0 {
			return fmt.Errorf("abstract method has incompatible flags: %s", f.Render(MethodFlags))
		}
	}
	if inInterface {
		if f&(AccProtected|AccFinal|AccSynchronized|AccNative) != 0 {
			return fmt.Errorf("interface method has incompatible flags: %s", f.Render(MethodFlags))
		}
		if major < 52 && !f.Has(AccPublic|AccAbstract) {
			return fmt.Errorf("interface method must be public abstract before version 52")
		}
	}
	if name == "<init>" {
		allowed := AccPublic | AccPrivate | AccProtected | AccVarargs | AccStrict | AccSynthetic
		if f&^allowed != 0 {
			return fmt.Errorf("constructor has incompatible flags: %s", f.Render(MethodFlags))
		}
	}
	return nil
}
