package store

import "reflect"

// Shallow reports whether a and b are shallowly equal.
//
// Structs are compared field by field, maps key by key, and slices and
// arrays element by element. The compared members themselves must be
// identical: plain values by ==, while maps, slices, pointers, channels and
// funcs must refer to the same underlying data.
func Shallow[T any](a, b T) bool {
	return shallowValue(reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem())
}

func shallowValue(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		var ok bool
		if a, b, ok = unwrap(a, b); !ok {
			return false
		}
		if !a.IsValid() {
			return true
		}
	}

	switch a.Kind() {
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !identical(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true

	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		if a.Pointer() == b.Pointer() {
			return true
		}
		iter := a.MapRange()
		for iter.Next() {
			other := b.MapIndex(iter.Key())
			if !other.IsValid() || !identical(iter.Value(), other) {
				return false
			}
		}
		return true

	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !identical(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true

	default:
		return identical(a, b)
	}
}

// identical compares two members of a container
func identical(a, b reflect.Value) bool {
	if a.Kind() == reflect.Interface {
		var ok bool
		if a, b, ok = unwrap(a, b); !ok {
			return false
		}
		if !a.IsValid() {
			return true
		}
	}

	switch a.Kind() {
	case reflect.Slice:
		return a.Len() == b.Len() && a.Pointer() == b.Pointer()
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Struct, reflect.Array:
		if a.Comparable() {
			return a.Equal(b)
		}
		return shallowValue(a, b)
	default:
		return a.Equal(b)
	}
}

// unwrap resolves two interface values to their dynamic values. Both invalid
// means both were nil. ok is false when only one is nil or the dynamic types
// differ.
func unwrap(a, b reflect.Value) (reflect.Value, reflect.Value, bool) {
	if a.IsNil() || b.IsNil() {
		return reflect.Value{}, reflect.Value{}, a.IsNil() && b.IsNil()
	}
	a, b = a.Elem(), b.Elem()
	if a.Type() != b.Type() {
		return a, b, false
	}
	return a, b, true
}
