package store

import "sort"

// Source identifies what caused an Event.
type Source int

const (
	// SourceLocal is a mutation performed through this Store.
	SourceLocal Source = iota
	// SourceChange is a transport change notification.
	SourceChange
	// SourceRefresh is a full reload from the transport.
	SourceRefresh
)

// String returns a human-readable representation of the source.
func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceChange:
		return "change"
	case SourceRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Event tells listeners which parts of the cache changed.
type Event struct {
	Source      Source
	Tags        bool
	Projects    bool
	Preferences bool
	Keys        []string // storage keys involved, when known
}

func (e Event) empty() bool {
	return !e.Tags && !e.Projects && !e.Preferences
}

// Listener receives cache events. Listeners run synchronously on the
// goroutine that caused the event and must not block.
type Listener func(Event)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	store *Store
	id    uint64
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (sub *Subscription) Unsubscribe() {
	if sub == nil || sub.store == nil {
		return
	}
	s := sub.store
	s.obsMu.Lock()
	delete(s.observers, sub.id)
	s.obsMu.Unlock()
}

// Subscribe registers fn for every cache change.
func (s *Store) Subscribe(fn Listener) *Subscription {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.nextObserver++
	id := s.nextObserver
	s.observers[id] = fn
	return &Subscription{store: s, id: id}
}

func (s *Store) emit(ev Event) {
	if ev.empty() {
		return
	}
	s.obsMu.Lock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
