package jobmanager

// listenerSet holds observers of one event kind in registration order. It
// isn't safe for concurrent use; Job guards it with its own mutex.
type listenerSet[T any] struct {
	nextID  int
	entries []listener[T]
}

type listener[T any] struct {
	id int
	fn func(T)
}

func (s *listenerSet[T]) add(fn func(T)) int {
	s.nextID++
	s.entries = append(s.entries, listener[T]{id: s.nextID, fn: fn})

	return s.nextID
}

func (s *listenerSet[T]) remove(id int) {
	for i, l := range s.entries {
		if l.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

// snapshot returns the observers registered right now. Observers added
// while a snapshot is being delivered don't receive that delivery.
func (s *listenerSet[T]) snapshot() []func(T) {
	fns := make([]func(T), len(s.entries))
	for i, l := range s.entries {
		fns[i] = l.fn
	}

	return fns
}

func (s *listenerSet[T]) clear() {
	s.entries = nil
}

func broadcast[T any](fns []func(T), v T) {
	for _, fn := range fns {
		fn(v)
	}
}
