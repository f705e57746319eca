package blackboard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Kind identifies the value type stored under a blackboard key.
type Kind uint8

const (
	KindObject Kind = iota
	KindClass
	KindEnum
	KindNativeEnum
	KindInt
	KindFloat
	KindBool
	KindString
	KindName
	KindVector
	KindRotator
)

var kindNames = [...]string{
	KindObject:     "object",
	KindClass:      "class",
	KindEnum:       "enum",
	KindNativeEnum: "native_enum",
	KindInt:        "int",
	KindFloat:      "float",
	KindBool:       "bool",
	KindString:     "string",
	KindName:       "name",
	KindVector:     "vector",
	KindRotator:    "rotator",
}

// String returns the lowercase name used in tree definition files.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a kind from its definition-file name.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown key type: %q", s)
}

// Vector is a 3D location or direction.
type Vector struct {
	X, Y, Z float32
}

// Rotator is an orientation in degrees.
type Rotator struct {
	Pitch, Yaw, Roll float32
}

// InvalidVector marks a vector key that has never been set.
var InvalidVector = Vector{X: math.MaxFloat32, Y: math.MaxFloat32, Z: math.MaxFloat32}

// InvalidRotator marks a rotator key that has never been set.
var InvalidRotator = Rotator{Pitch: math.MaxFloat32, Yaw: math.MaxFloat32, Roll: math.MaxFloat32}

// IsValid reports whether v holds a real location.
func (v Vector) IsValid() bool { return v != InvalidVector }

// IsValid reports whether r holds a real orientation.
func (r Rotator) IsValid() bool { return r != InvalidRotator }

// KeyType describes the value type of a key.
//
// Object and Class keys may carry a BaseClass restriction used when matching
// keys against a filter. Enum keys carry the enum's name and its value names;
// the stored value is the index into EnumValues.
type KeyType struct {
	Kind       Kind
	BaseClass  string
	EnumName   string
	EnumValues []string
}

// ValueSize is the number of bytes the key occupies in an instance's value
// buffer. Reference kinds (Object, Class, String) occupy a reference slot
// instead and report zero.
func (t KeyType) ValueSize() int {
	switch t.Kind {
	case KindBool, KindEnum, KindNativeEnum:
		return 1
	case KindInt, KindFloat, KindName:
		return 4
	case KindVector, KindRotator:
		return 12
	default:
		return 0
	}
}

// IsReference reports whether values of this type live outside the byte buffer.
func (t KeyType) IsReference() bool {
	switch t.Kind {
	case KindObject, KindClass, KindString:
		return true
	}
	return false
}

// Equal reports whether two key types describe the same storage and filter.
func (t KeyType) Equal(o KeyType) bool {
	if t.Kind != o.Kind || t.BaseClass != o.BaseClass || t.EnumName != o.EnumName {
		return false
	}
	if len(t.EnumValues) != len(o.EnumValues) {
		return false
	}
	for i := range t.EnumValues {
		if t.EnumValues[i] != o.EnumValues[i] {
			return false
		}
	}
	return true
}

// ValuesEqual compares two stored values of this type. Float components
// compare as numbers, so 0 and -0 are equal; everything else compares bytes.
func (t KeyType) ValuesEqual(a, b []byte) bool {
	switch t.Kind {
	case KindFloat, KindVector, KindRotator:
		if len(a) != len(b) || len(a)%4 != 0 {
			return false
		}
		for i := 0; i < len(a); i += 4 {
			x := math.Float32frombits(binary.LittleEndian.Uint32(a[i:]))
			y := math.Float32frombits(binary.LittleEndian.Uint32(b[i:]))
			if x != y {
				return false
			}
		}
		return true
	}
	return bytes.Equal(a, b)
}

// IsAllowedByFilter reports whether a key of this type may be selected by a
// node that asks for filter. An empty BaseClass or EnumName in the filter
// accepts any class or enum of the right kind.
func (t KeyType) IsAllowedByFilter(filter KeyType) bool {
	if t.Kind != filter.Kind {
		// enums stored natively or by asset share a layout
		if !(isEnumKind(t.Kind) && isEnumKind(filter.Kind)) {
			return false
		}
	}
	switch t.Kind {
	case KindObject, KindClass:
		return filter.BaseClass == "" || filter.BaseClass == t.BaseClass
	case KindEnum, KindNativeEnum:
		return filter.EnumName == "" || filter.EnumName == t.EnumName
	}
	return true
}

// String describes the type, including its class or enum restriction.
func (t KeyType) String() string {
	switch t.Kind {
	case KindObject, KindClass:
		if t.BaseClass != "" {
			return fmt.Sprintf("%s(%s)", t.Kind, t.BaseClass)
		}
	case KindEnum, KindNativeEnum:
		if t.EnumName != "" {
			return fmt.Sprintf("%s(%s)", t.Kind, t.EnumName)
		}
	}
	return t.Kind.String()
}

func isEnumKind(k Kind) bool {
	return k == KindEnum || k == KindNativeEnum
}
