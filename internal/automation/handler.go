package automation

import (
	"sync"

	"github.com/nerrad567/switchsentry/internal/infrastructure/mqtt"
)

// AutomationHandler wires a single raw event through the state store and
// into every matching rule runner, per spec.md §4.7.
type AutomationHandler struct {
	store *StateStore

	mu      sync.RWMutex
	aliases AliasTable
	runners []*ActionRunner

	rawHistory RawEventRecorder
}

// RawEventRecorder optionally mirrors every observed raw event to a
// time-series backend, independent of whether any rule fires on it
// (SPEC_FULL.md's ambient history-writer component). Nil is a valid,
// no-op value.
type RawEventRecorder interface {
	WriteRawEvent(entityKey, kind string, attributes map[string]any)
}

// SetRawEventRecorder wires an optional raw-event history sink. Safe to
// call before the handler starts receiving events; not safe to call
// concurrently with Handle.
func (h *AutomationHandler) SetRawEventRecorder(rec RawEventRecorder) {
	h.rawHistory = rec
}

// NewAutomationHandler returns a handler dispatching to runners, resolving
// placeholders/conditions against aliases, and tracking history in store.
func NewAutomationHandler(store *StateStore, aliases AliasTable, runners []*ActionRunner) *AutomationHandler {
	return &AutomationHandler{store: store, aliases: aliases, runners: runners}
}

// Handle records raw as the entity's current state, builds the
// StateObject every matching runner sees, and runs each matching runner in
// turn. When a runner has a worker pool, handleFire dispatches executor
// side effects to it instead of running them on this goroutine.
func (h *AutomationHandler) Handle(raw RawEvent) {
	prev, hadPrev := h.store.GetAndUpdate(raw)
	full := h.store.Snapshot()

	if h.rawHistory != nil {
		h.rawHistory.WriteRawEvent(raw.Key, string(raw.Kind), raw.Attributes)
	}

	h.mu.RLock()
	aliases, runners := h.aliases, h.runners
	h.mu.RUnlock()

	snapshot := aliasView(full, aliases, raw.Key)
	state := &StateObject{
		Kind:       raw.Kind,
		ID:         raw.Key,
		Attributes: raw.Attributes,
		Previous:   projectPrevious(prev, hadPrev),
		Snapshot:   snapshot,
	}

	for _, r := range runners {
		if !h.matches(r, raw) {
			continue
		}
		r.Run(state)
	}
}

// matches reports whether runner r is interested in raw, per its
// configured source/topic/device filters (spec.md §3/§4.7).
func (h *AutomationHandler) matches(r *ActionRunner, raw RawEvent) bool {
	if r.Source != raw.Kind {
		return false
	}
	if r.DeviceKey != "" && r.DeviceKey != raw.Key {
		return false
	}
	if r.Source == KindMQTT && !mqtt.MatchTopic(r.Topic, raw.Key) {
		return false
	}
	return true
}

// aliasView builds the alias-indexed Snapshot a StateObject exposes,
// excluding the triggering entity's own entry per SPEC_FULL.md §9's pinned
// decision that an entity never observes itself through its own alias.
func aliasView(full map[string]RawEvent, aliases AliasTable, excludeKey string) Snapshot {
	out := make(Snapshot, len(aliases))
	for name, key := range aliases {
		if key == excludeKey {
			continue
		}
		if event, ok := full[key]; ok {
			out[name] = event
		}
	}
	return out
}

// Stop cancels every runner's outstanding duration timers, used during
// shutdown. A hot reload goes through Reload, which stops the replaced
// runner set itself.
func (h *AutomationHandler) Stop() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.runners {
		r.Stop()
	}
}

// Reload atomically swaps in a freshly compiled runner set, then stops the
// previous one so none of its pending duration timers fire afterwards.
// Per SPEC_FULL.md §9's pinned decision, the cooldown ledger is not
// carried across a reload — each new runner starts with the ledger its
// constructor gave it, which the reload path in cmd/switchsentry compiles
// without a CooldownStore so that it starts empty.
func (h *AutomationHandler) Reload(aliases AliasTable, runners []*ActionRunner) {
	h.mu.Lock()
	old := h.runners
	h.aliases = aliases
	h.runners = runners
	h.mu.Unlock()

	for _, r := range old {
		r.Stop()
	}
}
