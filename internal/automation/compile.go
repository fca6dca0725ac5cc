package automation

import (
	"fmt"
	"time"

	"github.com/nerrad567/switchsentry/internal/infrastructure/config"
	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

// Dependencies bundles the collaborators compiled executors are wired
// against. Any field may be nil; the corresponding executor kind then
// no-ops at fire time (useful for tests and for running with a feature
// disabled, e.g. no device controller configured).
type Dependencies struct {
	Logger     *logging.Logger
	Publisher  Publisher
	Controller DeviceController
	Signer     CommandSigner
	Workers    *WorkerPool
	Store      CooldownStore
	History    HistoryWriter
}

// BuildAliasTable turns the configured device list into the alias name ->
// entity key table consulted by condition/placeholder resolution,
// rejecting duplicate names per spec.md §3.
func BuildAliasTable(devices []config.DeviceAlias) (AliasTable, error) {
	table := make(AliasTable, len(devices))
	for _, d := range devices {
		if _, exists := table[d.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAlias, d.Name)
		}
		table[d.Name] = d.Address
	}
	return table, nil
}

// CompileRules compiles every configured automation rule into a runnable
// ActionRunner, validating the invariants spec.md §3/§7 require at load
// time rather than at fire time.
func CompileRules(rules []config.AutomationRule, devices []config.DeviceAlias, deps Dependencies) ([]*ActionRunner, error) {
	aliases, err := BuildAliasTable(devices)
	if err != nil {
		return nil, err
	}
	deviceConfigs := make(map[string]map[string]any, len(devices))
	for _, d := range devices {
		deviceConfigs[d.Address] = d.Params
	}

	runners := make([]*ActionRunner, 0, len(rules))
	for _, rule := range rules {
		r, err := compileRule(rule, aliases, deviceConfigs, deps)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		runners = append(runners, r)
	}
	return runners, nil
}

func compileRule(rule config.AutomationRule, aliases AliasTable, deviceConfigs map[string]map[string]any, deps Dependencies) (*ActionRunner, error) {
	if rule.Name == "" {
		return nil, ErrEmptyRuleName
	}

	if err := validateIf(rule.If); err != nil {
		return nil, err
	}

	cooldown, err := parseOptionalDuration(rule.Cooldown)
	if err != nil {
		return nil, fmt.Errorf("cooldown: %w", err)
	}

	executors := make([]Executor, 0, len(rule.Then))
	for i, action := range rule.Then {
		ex, err := compileAction(action, aliases, deviceConfigs, deps)
		if err != nil {
			return nil, fmt.Errorf("then[%d]: %w", i, err)
		}
		executors = append(executors, ex)
	}

	var deviceKey string
	if rule.If.Device != "" {
		resolved, ok := aliases[rule.If.Device]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAlias, rule.If.Device)
		}
		deviceKey = resolved
	}

	var runner *ActionRunner
	if rule.If.Duration != "" {
		d, err := time.ParseDuration(rule.If.Duration)
		if err != nil || d <= 0 {
			return nil, ErrMissingDuration
		}
		runner = NewDurationActionRunner(rule.Name, rule.If.Conditions, d, aliases, cooldown, executors, deps.Logger, deps.Workers, deps.Store)
	} else {
		runner = NewEdgeActionRunner(rule.Name, rule.If.Conditions, aliases, cooldown, executors, deps.Logger, deps.Workers, deps.Store)
	}

	runner.Source = sourceKind(rule.If.Source)
	runner.Topic = rule.If.Topic
	runner.DeviceKey = deviceKey
	runner.History = deps.History
	return runner, nil
}

func sourceKind(source string) Kind {
	if source == "mqtt-event" {
		return KindMQTT
	}
	return KindBLE
}

func validateIf(in config.AutomationIf) error {
	switch in.Source {
	case "ble-event":
		if in.Topic != "" {
			return ErrUnexpectedTopic
		}
	case "mqtt-event":
		if in.Topic == "" {
			return ErrMissingTopic
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, in.Source)
	}
	return nil
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func compileAction(action config.AutomationAction, aliases AliasTable, deviceConfigs map[string]map[string]any, deps Dependencies) (Executor, error) {
	switch action.Type {
	case "log":
		return &LogExecutor{
			Message: stringField(action.Raw, "message"),
			Level:   stringField(action.Raw, "level"),
			Aliases: aliases,
			Logger:  deps.Logger,
		}, nil

	case "shell":
		return &ShellExecutor{
			Argv:    stringSliceField(action.Raw, "argv"),
			Aliases: aliases,
			Logger:  deps.Logger,
			Timeout: durationField(action.Raw, "timeout"),
		}, nil

	case "webhook":
		return &WebhookExecutor{
			URL:     stringField(action.Raw, "url"),
			Method:  stringField(action.Raw, "method"),
			Payload: action.Raw["payload"],
			Headers: stringMapField(action.Raw, "headers"),
			Aliases: aliases,
			Logger:  deps.Logger,
		}, nil

	case "mqtt-publish":
		return &MQTTPublishExecutor{
			Topic:     stringField(action.Raw, "topic"),
			Payload:   action.Raw["payload"],
			QoS:       byte(intField(action.Raw, "qos")),
			Retain:    boolField(action.Raw, "retain"),
			Aliases:   aliases,
			Logger:    deps.Logger,
			Publisher: deps.Publisher,
		}, nil

	case "device-command":
		address, err := resolveDeviceTarget(action.Raw, aliases)
		if err != nil {
			return nil, err
		}
		return &DeviceCommandExecutor{
			Address:    address,
			Config:     deviceConfigs[address],
			Method:     stringField(action.Raw, "method"),
			Params:     mapField(action.Raw, "params"),
			Aliases:    aliases,
			Logger:     deps.Logger,
			Controller: deps.Controller,
			Signer:     deps.Signer,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, action.Type)
	}
}

// resolveDeviceTarget enforces spec.md §3's alias-XOR-address invariant at
// load time.
func resolveDeviceTarget(raw map[string]any, aliases AliasTable) (string, error) {
	alias := stringField(raw, "alias")
	address := stringField(raw, "address")

	switch {
	case alias != "" && address != "":
		return "", ErrAmbiguousTarget
	case alias != "":
		resolved, ok := aliases[alias]
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
		}
		return resolved, nil
	case address != "":
		return address, nil
	default:
		return "", ErrAmbiguousTarget
	}
}

func stringField(raw map[string]any, key string) string {
	v, _ := raw[key].(string)
	return v
}

func boolField(raw map[string]any, key string) bool {
	v, _ := raw[key].(bool)
	return v
}

func intField(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func durationField(raw map[string]any, key string) time.Duration {
	s, ok := raw[key].(string)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func mapField(raw map[string]any, key string) map[string]any {
	v, _ := raw[key].(map[string]any)
	return v
}

func stringMapField(raw map[string]any, key string) map[string]string {
	m, ok := raw[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func stringSliceField(raw map[string]any, key string) []string {
	list, ok := raw[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
