package selection

// Registry is the ordered multiset of signatures the engine expects the host
// to echo back. Duplicates are allowed and counted; each echo consumes one
// occurrence.
//
// A Registry is owned by one document handler and is only used from tasks of
// the handler's queue, so it carries no lock.
type Registry struct {
	pending []Signature
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Push records an expected echo.
func (r *Registry) Push(sig Signature) {
	r.pending = append(r.pending, sig)
}

// Consume removes the oldest occurrence of sig and reports whether one was found.
func (r *Registry) Consume(sig Signature) bool {
	for i, s := range r.pending {
		if s == sig {
			copy(r.pending[i:], r.pending[i+1:])
			r.pending[len(r.pending)-1] = ""
			r.pending = r.pending[:len(r.pending)-1]
			return true
		}
	}
	return false
}

// Contains reports whether sig is pending.
func (r *Registry) Contains(sig Signature) bool {
	for _, s := range r.pending {
		if s == sig {
			return true
		}
	}
	return false
}

// Len returns the number of pending echoes.
func (r *Registry) Len() int {
	return len(r.pending)
}

// Count returns how many occurrences of sig are pending.
func (r *Registry) Count(sig Signature) int {
	n := 0
	for _, s := range r.pending {
		if s == sig {
			n++
		}
	}
	return n
}

// Pending returns a copy of the pending signatures in insertion order.
func (r *Registry) Pending() []Signature {
	return append([]Signature(nil), r.pending...)
}

// Clear drops every pending echo.
func (r *Registry) Clear() {
	r.pending = nil
}
