package nativebridge

import (
	"reflect"
)

// TypeInfo identifies a native type independently of how many managed type
// objects refer to it.
//
// Two TypeInfo values denote the same native type when they are the same
// pointer or when their mangled names match. The second case covers tokens
// produced independently for one type, e.g. by two separately loaded modules.
type TypeInfo struct {
	mangled string
}

// NewTypeInfo returns a type token for the given mangled name.
func NewTypeInfo(mangled string) *TypeInfo {
	return &TypeInfo{mangled: mangled}
}

// TypeOf returns a type token for the Go type T.
func TypeOf[T any]() *TypeInfo {
	rt := reflect.TypeFor[T]()
	name := rt.String()
	if pkg := rt.PkgPath(); pkg != "" {
		name = pkg + "." + rt.Name()
	}
	return &TypeInfo{mangled: name}
}

// Key returns the map key under which this type is registered.
func (t *TypeInfo) Key() string {
	if t == nil {
		return ""
	}
	return t.mangled
}

// Equal reports whether t and o identify the same native type.
func (t *TypeInfo) Equal(o *TypeInfo) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return t.mangled == o.mangled
}

func (t *TypeInfo) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.mangled
}
