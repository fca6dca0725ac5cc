// Package automation implements the rule evaluation and action dispatch
// pipeline: the state model, condition evaluator, placeholder formatter,
// trigger state machines, action executors, and the handler that wires a
// raw event through all of them.
package automation

// Kind identifies the source a RawEvent or StateObject came from. It
// controls entity-key derivation and rule source-matching.
type Kind string

const (
	KindBLE  Kind = "ble"
	KindMQTT Kind = "mqtt"
)

// RawEvent is a source-specific record: a stable entity key plus a flat
// attribute bag. Values are the dynamic bool | int64 | float64 | string
// union; the condition evaluator's type coercion operates on whichever
// concrete Go type is stored here.
type RawEvent struct {
	Key        string
	Kind       Kind
	Attributes map[string]any
}

// Clone returns a RawEvent with a copied attribute map so callers holding
// a reference cannot observe later mutation of the original.
func (r RawEvent) Clone() RawEvent {
	attrs := make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	return RawEvent{Key: r.Key, Kind: r.Kind, Attributes: attrs}
}

// StateObject is the immutable bundle passed to every runner: the
// triggering event's attributes, a reference to the previous event for the
// same key, and a snapshot of all other known entities addressable by
// configured alias. Once constructed by the handler, a StateObject and
// everything it points to must never be mutated.
type StateObject struct {
	Kind       Kind
	ID         string
	Attributes map[string]any
	Previous   *StateObject
	Snapshot   Snapshot
}

// Snapshot is a read-only, alias-indexed view over the entities other than
// the one currently being evaluated.
type Snapshot map[string]RawEvent

// projectPrevious builds the *StateObject a runner sees as state.Previous.
// It has no previous/snapshot of its own — spec.md only ever dereferences
// one level of .previous.
func projectPrevious(prev RawEvent, hadPrev bool) *StateObject {
	if !hadPrev {
		return nil
	}
	return &StateObject{
		Kind:       prev.Kind,
		ID:         prev.Key,
		Attributes: prev.Attributes,
	}
}
