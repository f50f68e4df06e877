package topology

import (
	"sort"
)

// Directory is the read-only subscription view of a single peer. It maps every
// variable of the run to the sorted list of its subscribers.
type Directory struct {
	self        uint32
	subscribers map[string][]uint32
}

// NewDirectory creates a Directory for peer self. The subscriber lists are
// copied and sorted.
func NewDirectory(self uint32, variables map[string][]uint32) *Directory {
	subs := make(map[string][]uint32, len(variables))
	for v, ids := range variables {
		sorted := make([]uint32, len(ids))
		copy(sorted, ids)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		subs[v] = sorted
	}
	return &Directory{
		self:        self,
		subscribers: subs,
	}
}

// Self returns the ID of the peer this Directory was built for.
func (d *Directory) Self() uint32 {
	return d.self
}

// Subscribers returns every subscriber of variable, self included.
func (d *Directory) Subscribers(variable string) ([]uint32, error) {
	ids, ok := d.subscribers[variable]
	if !ok {
		return nil, NewConfigError("variables", "unknown variable %q", variable)
	}
	res := make([]uint32, len(ids))
	copy(res, ids)
	return res, nil
}

// SubscribersOf returns the subscribers of variable other than self. These are
// the destinations of PREPARE and NOTIFY fan-outs.
func (d *Directory) SubscribersOf(variable string) ([]uint32, error) {
	ids, ok := d.subscribers[variable]
	if !ok {
		return nil, NewConfigError("variables", "unknown variable %q", variable)
	}
	res := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if id != d.self {
			res = append(res, id)
		}
	}
	return res, nil
}

// IsSubscribed returns true if self is subscribed to variable.
func (d *Directory) IsSubscribed(variable string) bool {
	return d.HasSubscriber(variable, d.self)
}

// HasSubscriber reports whether peer id is subscribed to variable.
func (d *Directory) HasSubscriber(variable string, id uint32) bool {
	for _, s := range d.subscribers[variable] {
		if s == id {
			return true
		}
	}
	return false
}

// Variables returns the sorted names of the variables self is subscribed to.
func (d *Directory) Variables() []string {
	res := []string{}
	for v := range d.subscribers {
		if d.IsSubscribed(v) {
			res = append(res, v)
		}
	}
	sort.Strings(res)
	return res
}
