package simplepack

import (
	"fmt"
	"strings"
)

// FieldType identifies the wire encoding of a single schema field.
type FieldType uint8

const (
	Int8 FieldType = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Float32
	String
)

// MaxStringLen is the longest string a String field can carry; the length prefix is one byte.
const MaxStringLen = 255

var fieldTypeNames = map[FieldType]string{
	Int8:    "int8",
	UInt8:   "uint8",
	Int16:   "int16",
	UInt16:  "uint16",
	Int32:   "int32",
	UInt32:  "uint32",
	Float32: "float",
	String:  "string",
}

var fieldTypeSizes = map[FieldType]int{
	Int8:    1,
	UInt8:   1,
	Int16:   2,
	UInt16:  2,
	Int32:   4,
	UInt32:  4,
	Float32: 4,
}

// String returns the field type name, e.g. "uint16".
func (ft FieldType) String() string {
	if name, ok := fieldTypeNames[ft]; ok {
		return name
	}

	return fmt.Sprintf("FieldType(%d)", uint8(ft))
}

// IsValid reports whether ft is one of the defined field types.
func (ft FieldType) IsValid() bool {
	_, ok := fieldTypeNames[ft]
	return ok
}

// Size returns the encoded size in bytes of a fixed-width field.
// It returns -1 for String, whose size depends on its value, and 0 for an invalid type.
func (ft FieldType) Size() int {
	if ft == String {
		return -1
	}

	return fieldTypeSizes[ft]
}

// ParseFieldType converts a field type name (as returned by String) into a FieldType.
// "float32" is accepted as an alias of "float".
func ParseFieldType(name string) (FieldType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "float32" {
		return Float32, nil
	}

	for ft, n := range fieldTypeNames {
		if n == name {
			return ft, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownFieldType, name)
}
