package codec

import "reflect"

// ContainerFactory allocates the collections filled during decode
type ContainerFactory interface {
	// MakeSlice returns a slice of type t with length n
	MakeSlice(t reflect.Type, n int) reflect.Value
	// MakeMap returns an empty map of type t sized for n entries
	MakeMap(t reflect.Type, n int) reflect.Value
}

// DefaultContainers allocates plain Go slices and maps
type DefaultContainers struct{}

// MakeSlice implements ContainerFactory
func (DefaultContainers) MakeSlice(t reflect.Type, n int) reflect.Value {
	return reflect.MakeSlice(t, n, n)
}

// MakeMap implements ContainerFactory
func (DefaultContainers) MakeMap(t reflect.Type, n int) reflect.Value {
	return reflect.MakeMapWithSize(t, n)
}
