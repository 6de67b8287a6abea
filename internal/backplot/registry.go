package backplot

import (
	"github.com/backplot/backplot/internal/ordered"
	"github.com/backplot/backplot/pkg/canon"
)

// Registry maps origins to their pending segment lists in first-seen order.
type Registry struct {
	lists *ordered.Map[canon.Origin, []canon.Segment]
}

// NewRegistry creates a registry holding an empty entry for the default origin.
func NewRegistry() *Registry {
	r := &Registry{lists: ordered.New[canon.Origin, []canon.Segment]()}
	r.Ensure(canon.DefaultOrigin)
	return r
}

// Ensure creates an empty entry for origin if none exists.
func (r *Registry) Ensure(origin canon.Origin) {
	r.lists.GetOrCreate(origin, func() []canon.Segment { return nil })
}

// Has reports whether origin has an entry.
func (r *Registry) Has(origin canon.Origin) bool {
	return r.lists.Has(origin)
}

// Append adds seg to origin's list, creating the entry if needed.
func (r *Registry) Append(origin canon.Origin, seg canon.Segment) {
	list, _ := r.lists.Get(origin)
	r.lists.Set(origin, append(list, seg))
}

// Pending returns the number of segments waiting to be compiled for origin.
func (r *Registry) Pending(origin canon.Origin) int {
	list, _ := r.lists.Get(origin)
	return len(list)
}

// Take hands over origin's segments and leaves the entry empty.
func (r *Registry) Take(origin canon.Origin) []canon.Segment {
	list, ok := r.lists.Get(origin)
	if !ok {
		return nil
	}
	r.lists.Set(origin, nil)
	return list
}

// Origins returns every registered origin in first-seen order.
func (r *Registry) Origins() []canon.Origin {
	return r.lists.Keys()
}
