// Package extensions implements a type-keyed value store.
//
// Each distinct Go type occupies at most one slot. The store backs both
// app-wide shared data, which is populated at startup and only read
// afterwards, and per-request scratch values.
package extensions

import "reflect"

// Extensions maps a static type to one value of that type.
// The zero value is ready to use. Reads on a nil *Extensions report absence.
type Extensions struct {
	values map[reflect.Type]any
}

// New creates an empty store.
func New() *Extensions {
	return &Extensions{}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Insert stores value under its type T and returns the value it replaced.
func Insert[T any](e *Extensions, value T) (T, bool) {
	if e.values == nil {
		e.values = make(map[reflect.Type]any, 4)
	}
	key := typeOf[T]()
	prev, ok := e.values[key]
	e.values[key] = value
	if !ok {
		var zero T
		return zero, false
	}
	p, _ := prev.(T)
	return p, true
}

// Get returns the value stored for type T.
func Get[T any](e *Extensions) (T, bool) {
	var zero T
	if e == nil || e.values == nil {
		return zero, false
	}
	v, ok := e.values[typeOf[T]()]
	if !ok {
		return zero, false
	}
	t, _ := v.(T)
	return t, true
}

// Has reports whether a value of type T is stored.
func Has[T any](e *Extensions) bool {
	_, ok := Get[T](e)
	return ok
}

// Remove deletes and returns the value stored for type T.
func Remove[T any](e *Extensions) (T, bool) {
	v, ok := Get[T](e)
	if ok {
		delete(e.values, typeOf[T]())
	}
	return v, ok
}

// Len returns the number of stored types.
func (e *Extensions) Len() int {
	if e == nil {
		return 0
	}
	return len(e.values)
}

// Clear removes every value.
func (e *Extensions) Clear() {
	clear(e.values)
}
