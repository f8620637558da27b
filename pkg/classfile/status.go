package classfile

import (
	"errors"
	"fmt"
)

// Status is the outcome of loading or checking a class file.
type Status int

const (
	Valid Status = iota
	Corrupt
	BadMagic
	UnsupportedMajorVersion
	TruncatedFile
	InvalidConstantPoolCount
	InvalidUTF8
	InvalidConstantPoolIndex
	UnknownConstantPoolTag
	InvalidAccessFlags
	ReservedClassAccessFlags
	ReservedFieldAccessFlags
	ReservedMethodAccessFlags
	InvalidThisClass
	InvalidSuperClass
	InvalidInterface
	InvalidFieldDescriptor
	InvalidMethodDescriptor
	InvalidName
	InvalidStringIndex
	InvalidClassIndex
	InvalidNameAndType
	AttributeLengthMismatch
	InvalidConstantValue
	InvalidSourceFile
	InvalidInnerClasses
	InvalidExceptionClass
	InvalidCodeLength
	MissingCode
	TrailingData
)

var statusText = map[Status]string{
	Valid:                     "ok",
	Corrupt:                   "corrupt class file",
	BadMagic:                  "invalid signature",
	UnsupportedMajorVersion:   "unsupported class file version",
	TruncatedFile:             "unexpected end of file",
	InvalidConstantPoolCount:  "invalid constant pool count",
	InvalidUTF8:               "invalid UTF-8 bytes",
	InvalidConstantPoolIndex:  "invalid constant pool index",
	UnknownConstantPoolTag:    "unknown constant pool tag",
	InvalidAccessFlags:        "invalid access flags",
	ReservedClassAccessFlags:  "reserved class access flags set",
	ReservedFieldAccessFlags:  "reserved field access flags set",
	ReservedMethodAccessFlags: "reserved method access flags set",
	InvalidThisClass:          "invalid this_class index",
	InvalidSuperClass:         "invalid super_class index",
	InvalidInterface:          "invalid interface index",
	InvalidFieldDescriptor:    "invalid field descriptor",
	InvalidMethodDescriptor:   "invalid method descriptor",
	InvalidName:               "invalid name",
	InvalidStringIndex:        "invalid string index",
	InvalidClassIndex:         "invalid class index",
	InvalidNameAndType:        "invalid name-and-type index",
	AttributeLengthMismatch:   "attribute length mismatch",
	InvalidConstantValue:      "invalid ConstantValue attribute",
	InvalidSourceFile:         "invalid SourceFile attribute",
	InvalidInnerClasses:       "invalid InnerClasses attribute",
	InvalidExceptionClass:     "invalid exception class index",
	InvalidCodeLength:         "invalid code length",
	MissingCode:               "missing or unexpected Code attribute",
	TrailingData:              "file contains unexpected trailing data",
}

// String returns the human-readable diagnostic for the status.
func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// StatusOf maps an error returned by Parse to its status. A nil error is
// Valid; errors that did not come from the loader are Corrupt.
func StatusOf(err error) Status {
	if err == nil {
		return Valid
	}
	var lerr *LoadError
	if errors.As(err, &lerr) {
		return lerr.Status
	}
	return Corrupt
}

// CheckStatus re-runs the structural checks on an in-memory class file and
// reports the first problem found. It never mutates cf. The version range is
// the one cf was parsed with, or the default for built classes; opts
// override it.
func CheckStatus(cf *ClassFile, opts ...Option) Status {
	if cf == nil || cf.ConstantPool == nil {
		return Corrupt
	}
	if cf.Magic != Magic {
		return BadMagic
	}
	o := defaultOptions()
	if cf.parsedWith != nil {
		o = *cf.parsedWith
	}
	for _, opt := range opts {
		opt(&o)
	}
	if cf.MajorVersion < o.minMajor || cf.MajorVersion > o.maxMajor {
		return UnsupportedMajorVersion
	}
	if err := validate(cf); err != nil {
		return err.Status
	}
	return Valid
}
