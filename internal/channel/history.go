package channel

import "slices"

// ordered is a map that remembers insertion order.
type ordered[K comparable, V any] struct {
	order []K
	data  map[K]V
}

func newOrdered[K comparable, V any](size int) *ordered[K, V] {
	return &ordered[K, V]{
		order: make([]K, 0, size),
		data:  make(map[K]V, size),
	}
}

func (o *ordered[K, V]) Add(key K, value V) bool {
	if _, ok := o.data[key]; ok {
		return false
	}

	o.order = append(o.order, key)
	o.data[key] = value
	return true
}

func (o *ordered[K, V]) Remove(key K) bool {
	if _, ok := o.data[key]; !ok {
		return false
	}

	delete(o.data, key)
	o.order = slices.DeleteFunc(o.order, func(k K) bool { return k == key })
	return true
}

func (o *ordered[K, V]) Get(key K) (V, bool) {
	v, ok := o.data[key]
	return v, ok
}

func (o *ordered[K, V]) Values() []V {
	out := make([]V, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, o.data[k])
	}
	return out
}

func (o *ordered[K, V]) Len() int {
	return len(o.order)
}
