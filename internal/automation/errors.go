package automation

import "errors"

// Sentinel errors for rule compilation, per spec.md §7's configuration
// error taxonomy. These surface at startup (or hot reload) before any
// event is evaluated, never mid-pipeline.
var (
	// ErrUnknownSource is returned when a rule's if.source is neither
	// ble-event nor mqtt-event.
	ErrUnknownSource = errors.New("automation: unknown trigger source")

	// ErrMissingTopic is returned when if.source is mqtt-event and
	// if.topic is empty.
	ErrMissingTopic = errors.New("automation: mqtt-event rule requires if.topic")

	// ErrUnexpectedTopic is returned when if.source is ble-event and
	// if.topic is set.
	ErrUnexpectedTopic = errors.New("automation: ble-event rule must not set if.topic")

	// ErrMissingDuration is returned when if.duration is set but cannot be
	// parsed as a positive duration.
	ErrMissingDuration = errors.New("automation: if.duration must be a positive duration")

	// ErrDuplicateAlias is returned when two device aliases share a name.
	ErrDuplicateAlias = errors.New("automation: duplicate device alias")

	// ErrUnknownAlias is returned when a device-command action or if.device
	// names an alias with no matching devices entry.
	ErrUnknownAlias = errors.New("automation: unknown device alias")

	// ErrAmbiguousTarget is returned when a device-command action sets both
	// an alias and an explicit address, or neither.
	ErrAmbiguousTarget = errors.New("automation: device-command target must set exactly one of alias or address")

	// ErrUnknownActionType is returned for an action whose type does not
	// match one of the five recognised executor kinds.
	ErrUnknownActionType = errors.New("automation: unknown action type")

	// ErrEmptyRuleName is returned when a rule has no name; names are used
	// as the cooldown-ledger and log-correlation key.
	ErrEmptyRuleName = errors.New("automation: rule name must not be empty")
)
