package ordered

// Map is a map that remembers the order in which keys were first inserted.
// It is not safe for concurrent use.
type Map[K comparable, V any] struct {
	keys   []K
	values map[K]V
}

// New creates an empty map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		values: make(map[K]V),
	}
}

// Get returns the value stored for k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.values[k]
	return v, ok
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.values[k]
	return ok
}

// Set stores v for k. Updating an existing key keeps its position.
func (m *Map[K, V]) Set(k K, v V) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

// GetOrCreate returns the value for k, inserting the result of create if k is absent.
func (m *Map[K, V]) GetOrCreate(k K, create func() V) (V, bool) {
	if v, ok := m.values[k]; ok {
		return v, false
	}
	v := create()
	m.Set(k, v)
	return v, true
}

// Keys returns the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// Each calls fn for every entry in insertion order.
func (m *Map[K, V]) Each(fn func(K, V)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}

// Clear removes all entries.
func (m *Map[K, V]) Clear() {
	m.keys = m.keys[:0]
	m.values = make(map[K]V)
}

// Clone returns a shallow copy with the same order.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{
		keys:   make([]K, len(m.keys)),
		values: make(map[K]V, len(m.values)),
	}
	copy(c.keys, m.keys)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}
