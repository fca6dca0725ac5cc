package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

// Executor performs one action's side effect against a fired StateObject.
// Implementations must not block the event pipeline for long operations;
// the ActionRunner invokes them from its worker pool (runner.go) when one
// is wired, and inline on the calling goroutine when it is not.
type Executor interface {
	Execute(ctx context.Context, state *StateObject) error
}

// PublishRequest is the message sent to the lifecycle controller's broker
// client for an mqtt-publish action. spec.md §2's control-flow note calls
// this out as the one exception to fan-out-only data flow: "MQTT publish
// is modeled as a message to the lifecycle controller that owns the
// broker client."
type PublishRequest struct {
	Topic   string
	Payload string
	QoS     byte
	Retain  bool
}

// Publisher accepts PublishRequests. The lifecycle controller wires this
// to the MQTT client adapter.
type Publisher interface {
	Publish(req PublishRequest) error
}

// DeviceCommand is a signed instruction for the device-control collaborator.
type DeviceCommand struct {
	Address string
	Config  map[string]any
	Method  string
	Params  map[string]any
	Token   string // signature, see internal/device
}

// DeviceController invokes a named method on a device identified by
// address.
type DeviceController interface {
	Invoke(ctx context.Context, cmd DeviceCommand) error
}

// CommandSigner signs a DeviceCommand so a downstream bridge can verify
// the core process issued it.
type CommandSigner interface {
	Sign(cmd DeviceCommand) (string, error)
}

func warnOnce(logger *logging.Logger, cause string) UnresolvedFunc {
	seen := make(map[string]bool)
	var mu sync.Mutex
	return func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if seen[path] {
			return
		}
		seen[path] = true
		if logger != nil {
			logger.Warn("unresolved placeholder", "cause", cause, "path", path)
		}
	}
}

// LogExecutor emits one log line at a configured level, per spec.md §4.5.
type LogExecutor struct {
	Message string
	Level   string
	Aliases AliasTable
	Logger  *logging.Logger
}

func (e *LogExecutor) Execute(_ context.Context, state *StateObject) error {
	msg := Format(e.Message, state, e.Aliases, warnOnce(e.Logger, "log action"))
	switch strings.ToLower(e.Level) {
	case "debug":
		e.Logger.Debug(msg)
	case "warn", "warning":
		e.Logger.Warn(msg)
	case "error":
		e.Logger.Error(msg)
	default:
		e.Logger.Info(msg)
	}
	return nil
}

// ShellExecutor runs a configured argv vector without shell interpretation,
// per spec.md §4.5.
type ShellExecutor struct {
	Argv    []string
	Aliases AliasTable
	Logger  *logging.Logger
	Timeout time.Duration
}

func (e *ShellExecutor) Execute(ctx context.Context, state *StateObject) error {
	if len(e.Argv) == 0 {
		return nil
	}
	argv := make([]string, len(e.Argv))
	unresolved := warnOnce(e.Logger, "shell action")
	for i, a := range e.Argv {
		argv[i] = Format(a, state, e.Aliases, unresolved)
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		e.Logger.Warn("shell action non-zero exit", "argv", argv, "error", err, "output", string(out))
	}
	return nil
}

// breakerRegistry lazily creates one circuit breaker per webhook host, so a
// failing endpoint stops paying the full dial/TLS timeout on every event
// without affecting requests to other hosts.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *breakerRegistry) get(host string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	r.breakers[host] = b
	return b
}

// WebhookExecutor issues an HTTP request to a formatted URL, per spec.md
// §4.5. Fire-and-forget: the core never retries a webhook (§7); the
// circuit breaker only changes latency under sustained failure.
type WebhookExecutor struct {
	URL     string
	Method  string
	Payload any
	Headers map[string]string
	Aliases AliasTable
	Logger  *logging.Logger

	Client    *http.Client
	breakers  *breakerRegistry
	breakerMu sync.Once
}

func (e *WebhookExecutor) ensureBreakers() {
	e.breakerMu.Do(func() { e.breakers = newBreakerRegistry() })
}

func (e *WebhookExecutor) Execute(ctx context.Context, state *StateObject) error {
	e.ensureBreakers()
	unresolved := warnOnce(e.Logger, "webhook action")

	formattedURL := Format(e.URL, state, e.Aliases, unresolved)
	method := strings.ToUpper(e.Method)
	if method == "" {
		method = http.MethodPost
	}

	parsed, err := url.Parse(formattedURL)
	if err != nil {
		e.Logger.Warn("webhook invalid url", "url", formattedURL, "error", err)
		return nil
	}

	var body io.Reader
	switch method {
	case http.MethodGet:
		if m, ok := e.Payload.(map[string]any); ok {
			formatted := FormatValue(m, state, e.Aliases, unresolved).(map[string]any)
			q := parsed.Query()
			for k, v := range flattenQuery(formatted) {
				for _, val := range v {
					q.Add(k, val)
				}
			}
			parsed.RawQuery = q.Encode()
		}
	default:
		switch p := e.Payload.(type) {
		case map[string]any:
			formatted := FormatValue(p, state, e.Aliases, unresolved)
			encoded, err := json.Marshal(formatted)
			if err != nil {
				e.Logger.Warn("webhook payload encode failed", "error", err)
				return nil
			}
			body = bytes.NewReader(encoded)
		case string:
			body = strings.NewReader(Format(p, state, e.Aliases, unresolved))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		e.Logger.Warn("webhook request build failed", "error", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range e.Headers {
		req.Header.Set(k, Format(v, state, e.Aliases, unresolved))
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	breaker := e.breakers.get(parsed.Host)

	resp, err := breaker.Execute(func() (any, error) {
		r, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			r.Body.Close()
			return nil, fmt.Errorf("non-2xx status %d", r.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		e.Logger.Warn("webhook request failed", "url", parsed.String(), "error", err)
		return nil
	}
	if r, ok := resp.(*http.Response); ok {
		r.Body.Close()
	}
	return nil
}

// flattenQuery implements the GET query-string convention pinned in
// SPEC_FULL.md §9: one parameter per top-level key, list-valued entries
// repeat the key.
func flattenQuery(payload map[string]any) url.Values {
	q := url.Values{}
	for k, v := range payload {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				q.Add(k, fmt.Sprint(item))
			}
		default:
			q.Set(k, fmt.Sprint(t))
		}
	}
	return q
}

// MQTTPublishExecutor sends a publish request to the broker client via the
// lifecycle controller, per spec.md §4.5.
type MQTTPublishExecutor struct {
	Topic     string
	Payload   any
	QoS       byte
	Retain    bool
	Aliases   AliasTable
	Logger    *logging.Logger
	Publisher Publisher
}

func (e *MQTTPublishExecutor) Execute(_ context.Context, state *StateObject) error {
	unresolved := warnOnce(e.Logger, "mqtt-publish action")
	topic := Format(e.Topic, state, e.Aliases, unresolved)

	var payload string
	switch p := e.Payload.(type) {
	case map[string]any:
		formatted := FormatValue(p, state, e.Aliases, unresolved)
		encoded, err := json.Marshal(formatted)
		if err != nil {
			e.Logger.Warn("mqtt-publish payload encode failed", "error", err)
			return nil
		}
		payload = string(encoded)
	case string:
		payload = Format(p, state, e.Aliases, unresolved)
	default:
		payload = fmt.Sprint(p)
	}

	if e.Publisher == nil {
		return nil
	}
	if err := e.Publisher.Publish(PublishRequest{
		Topic:   topic,
		Payload: payload,
		QoS:     e.QoS,
		Retain:  e.Retain,
	}); err != nil {
		e.Logger.Warn("mqtt-publish rejected", "topic", topic, "error", err)
	}
	return nil
}

// DeviceCommandExecutor instructs the device-control collaborator to
// invoke a method on a device identified by alias XOR address, per
// spec.md §4.5.
type DeviceCommandExecutor struct {
	Address string // resolved at load time from alias or explicit address
	Config  map[string]any
	Method  string
	Params  map[string]any

	Aliases    AliasTable
	Logger     *logging.Logger
	Controller DeviceController
	Signer     CommandSigner
}

func (e *DeviceCommandExecutor) Execute(ctx context.Context, state *StateObject) error {
	unresolved := warnOnce(e.Logger, "device-command action")
	params, _ := FormatValue(e.Params, state, e.Aliases, unresolved).(map[string]any)

	cmd := DeviceCommand{
		Address: e.Address,
		Config:  e.Config,
		Method:  e.Method,
		Params:  params,
	}

	if e.Signer != nil {
		token, err := e.Signer.Sign(cmd)
		if err != nil {
			e.Logger.Warn("device-command signing failed", "address", e.Address, "error", err)
			return nil
		}
		cmd.Token = token
	}

	if e.Controller == nil {
		return nil
	}
	if err := e.Controller.Invoke(ctx, cmd); err != nil {
		e.Logger.Warn("device-command failed", "address", e.Address, "method", e.Method, "error", err)
	}
	return nil
}
