package automation

import "sync"

// entrySlot holds one entity's current raw event behind its own mutex, so
// writers to different keys never contend and readers of one key never
// observe a torn write from another.
type entrySlot struct {
	mu    sync.Mutex
	event RawEvent
	set   bool
}

// StateStore is the atomic get-and-update store of last-known raw events,
// keyed by entity key. Safe for concurrent use by multiple goroutines.
type StateStore struct {
	entries sync.Map // string -> *entrySlot
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{}
}

func (s *StateStore) slot(key string) *entrySlot {
	v, _ := s.entries.LoadOrStore(key, &entrySlot{})
	return v.(*entrySlot)
}

// GetAndUpdate atomically stores newEvent under its key and returns the
// event that was stored immediately before the swap, if any.
func (s *StateStore) GetAndUpdate(newEvent RawEvent) (prev RawEvent, hadPrev bool) {
	slot := s.slot(newEvent.Key)
	slot.mu.Lock()
	prev, hadPrev = slot.event, slot.set
	slot.event, slot.set = newEvent, true
	slot.mu.Unlock()
	return prev, hadPrev
}

// Get returns the current raw event for key, if one has been recorded.
func (s *StateStore) Get(key string) (RawEvent, bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		return RawEvent{}, false
	}
	slot := v.(*entrySlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.event, slot.set
}

// Snapshot returns a consistent point-in-time copy of every recorded
// entity. Each entry is read under its own per-key lock, so no reader ever
// observes a half-written event; no global lock is held across keys, so a
// Snapshot call never blocks writers to other keys for its whole duration.
func (s *StateStore) Snapshot() map[string]RawEvent {
	out := make(map[string]RawEvent)
	s.entries.Range(func(k, v any) bool {
		slot := v.(*entrySlot)
		slot.mu.Lock()
		if slot.set {
			out[k.(string)] = slot.event
		}
		slot.mu.Unlock()
		return true
	})
	return out
}
