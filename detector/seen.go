package detector

// seenWindow is a bounded insertion-ordered set of entry ids. When the
// window is full the oldest id is evicted, so extremely old entries can be
// re-announced if a source resurfaces them; that is the accepted cost of
// bounded memory.
type seenWindow struct {
	capacity int
	order    []string
	members  map[string]struct{}
}

func newSeenWindow(capacity int) *seenWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &seenWindow{
		capacity: capacity,
		members:  make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is in the window
func (w *seenWindow) Contains(id string) bool {
	_, ok := w.members[id]
	return ok
}

// Add inserts id, evicting the oldest member when the window is full.
// Returns false if the id was already present.
func (w *seenWindow) Add(id string) bool {
	if w.Contains(id) {
		return false
	}
	w.order = append(w.order, id)
	w.members[id] = struct{}{}
	if len(w.order) > w.capacity {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.members, oldest)
	}
	return true
}

// Len returns the number of ids currently tracked
func (w *seenWindow) Len() int {
	return len(w.order)
}
