// switchsentry - configuration-driven home sensor automation engine.
//
// switchsentry ingests BLE advertisements and MQTT messages, evaluates
// them against a set of YAML-configured rules, and dispatches actions
// (log lines, shell commands, webhooks, MQTT publishes, device commands)
// when a rule's trigger fires.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nerrad567/switchsentry/internal/automation"
	"github.com/nerrad567/switchsentry/internal/ble"
	"github.com/nerrad567/switchsentry/internal/cooldown"
	"github.com/nerrad567/switchsentry/internal/debugapi"
	"github.com/nerrad567/switchsentry/internal/device"
	"github.com/nerrad567/switchsentry/internal/infrastructure/config"
	"github.com/nerrad567/switchsentry/internal/infrastructure/database"
	"github.com/nerrad567/switchsentry/internal/infrastructure/influxdb"
	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
	"github.com/nerrad567/switchsentry/internal/infrastructure/mqtt"
	"github.com/nerrad567/switchsentry/internal/metrics"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a run failure to the process exit codes switchsentry
// documents: 0 clean shutdown, 1 configuration/startup failure, 2 a
// reload whose rollback to the last-known-good configuration also
// failed (or any other unexpected runtime failure).
func exitCodeFor(err error) int {
	if _, ok := err.(*startupError); ok {
		return 1
	}
	return 2
}

type startupError struct{ error }

// rollbackError wraps a failure to restart the last-known-good component
// graph after a failed reload. run() treats it as fatal: the process has
// no component graph left standing, so it exits rather than idling.
type rollbackError struct{ error }

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		debug       bool
		scanCycle   int
		scanDur     int
		scanIface   string
		mqttEnabled bool
		noMQTT      bool
		mqttHost    string
		mqttPort    int
		mqttUser    string
		mqttPass    string
		mqttRecon   int
		promEnabled bool
		noProm      bool
		promPort    int
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:     "switchsentry",
		Short:   "Configuration-driven home sensor automation engine",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := config.Overrides{}
			flags := cmd.Flags()
			if flags.Changed("debug") {
				ov.Debug = &debug
			}
			if flags.Changed("scanner-cycle") {
				ov.ScannerCycle = &scanCycle
			}
			if flags.Changed("scanner-duration") {
				ov.ScannerDuration = &scanDur
			}
			if flags.Changed("scanner-interface") {
				ov.ScannerInterface = &scanIface
			}
			if flags.Changed("mqtt") {
				ov.MQTTEnabled = &mqttEnabled
			}
			if flags.Changed("no-mqtt") {
				enabled := !noMQTT
				ov.MQTTEnabled = &enabled
			}
			if flags.Changed("mqtt-host") {
				ov.MQTTHost = &mqttHost
			}
			if flags.Changed("mqtt-port") {
				ov.MQTTPort = &mqttPort
			}
			if flags.Changed("mqtt-username") {
				ov.MQTTUsername = &mqttUser
			}
			if flags.Changed("mqtt-password") {
				ov.MQTTPassword = &mqttPass
			}
			if flags.Changed("mqtt-reconnect-interval") {
				ov.MQTTReconnectInterval = &mqttRecon
			}
			if flags.Changed("prometheus-exporter-enabled") {
				ov.PrometheusEnabled = &promEnabled
			}
			if flags.Changed("no-prometheus-exporter-enabled") {
				enabled := !noProm
				ov.PrometheusEnabled = &enabled
			}
			if flags.Changed("prometheus-exporter-port") {
				ov.PrometheusPort = &promPort
			}
			if flags.Changed("log-level") {
				ov.LogLevel = &logLevel
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, configPath, ov)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config.yaml")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().IntVar(&scanCycle, "scanner-cycle", 0, "seconds between BLE scan cycles")
	cmd.Flags().IntVar(&scanDur, "scanner-duration", 0, "seconds active per BLE scan cycle")
	cmd.Flags().StringVar(&scanIface, "scanner-interface", "", "BLE adapter interface name")
	cmd.Flags().BoolVar(&mqttEnabled, "mqtt", true, "enable the MQTT ingest/publish source")
	cmd.Flags().BoolVar(&noMQTT, "no-mqtt", false, "disable the MQTT ingest/publish source")
	cmd.Flags().StringVar(&mqttHost, "mqtt-host", "", "MQTT broker host")
	cmd.Flags().IntVar(&mqttPort, "mqtt-port", 0, "MQTT broker port")
	cmd.Flags().StringVar(&mqttUser, "mqtt-username", "", "MQTT username")
	cmd.Flags().StringVar(&mqttPass, "mqtt-password", "", "MQTT password")
	cmd.Flags().IntVar(&mqttRecon, "mqtt-reconnect-interval", 0, "seconds between MQTT reconnect attempts")
	cmd.Flags().BoolVar(&promEnabled, "prometheus-exporter-enabled", true, "enable the Prometheus metrics endpoint")
	cmd.Flags().BoolVar(&noProm, "no-prometheus-exporter-enabled", false, "disable the Prometheus metrics endpoint")
	cmd.Flags().IntVar(&promPort, "prometheus-exporter-port", 0, "Prometheus metrics endpoint port")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

// run wires every configured component together and blocks until ctx is
// cancelled or an unrecoverable startup error occurs.
func run(ctx context.Context, configPath string, ov config.Overrides) error {
	log := logging.Default()
	log.Info("starting switchsentry", "version", version, "commit", commit, "build_date", date)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load(configPath, ov)
	if err != nil {
		return &startupError{fmt.Errorf("loading config: %w", err)}
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	deps := automation.Dependencies{
		Logger:  log,
		Workers: automation.NewWorkerPool(runtime.GOMAXPROCS(0) * 4),
	}

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return &startupError{fmt.Errorf("opening database: %w", err)}
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return &startupError{fmt.Errorf("running migrations: %w", err)}
		}
		deps.Store = cooldown.New(db)
		log.Info("cooldown persistence enabled", "path", cfg.Database.Path)
	}

	store := automation.NewStateStore()

	publisher := &mqttPublisher{}
	deps.Publisher = publisher

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return &startupError{fmt.Errorf("connecting to InfluxDB: %w", err)}
		}
		defer influxClient.Close()
		log.Info("InfluxDB history writer connected", "url", cfg.InfluxDB.URL)
	}

	if cfg.DeviceController.Enabled {
		deps.Controller = device.New(cfg.DeviceController.BaseURL, log)
		deps.Signer = device.NewJWTSigner(cfg.DeviceController.SigningSecret, 0)
		log.Info("device controller enabled", "base_url", cfg.DeviceController.BaseURL)
	}

	var debugHub *debugapi.Hub
	if cfg.Debug.Enabled {
		debugHub = debugapi.NewHub(log)
	}
	deps.History = &fanoutHistory{influx: influxClient, hub: debugHub}

	runners, aliases, err := compileRunners(cfg, deps)
	if err != nil {
		return &startupError{err}
	}
	handler := automation.NewAutomationHandler(store, aliases, runners)
	if influxClient != nil {
		handler.SetRawEventRecorder(influxClient)
	}
	log.Info("automation rules compiled", "count", len(runners))

	env := &runtimeEnv{
		store:     store,
		handler:   handler,
		publisher: publisher,
		debugHub:  debugHub,
		log:       log,
	}

	graph, err := buildGraph(cfg, runners, aliases, env)
	if err != nil {
		return &startupError{err}
	}
	if err := startGraph(ctx, graph, log); err != nil {
		return &startupError{err}
	}
	current := &runningGraph{cfg: cfg, graph: graph, runners: runners, aliases: aliases}

	fatal := make(chan error, 1)
	watchReload(ctx, configPath, ov, deps, env, current, fatal)

	log.Info("initialisation complete, waiting for shutdown signal")
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err := <-fatal:
		log.Error("reload rollback failed, shutting down", "error", err)
		stopGraph(context.Background(), current.snapshot(), log)
		handler.Stop()
		deps.Workers.Wait()
		return &rollbackError{err}
	}

	stopGraph(context.Background(), current.snapshot(), log)
	handler.Stop()
	deps.Workers.Wait()

	log.Info("switchsentry stopped")
	return nil
}

// compileRunners builds the alias table and compiles the automation rule
// set for cfg against deps, bundling the two calls spec.md §4.8 treats as
// a single all-or-nothing validation step ahead of any graph change.
func compileRunners(cfg *config.Config, deps automation.Dependencies) ([]*automation.ActionRunner, automation.AliasTable, error) {
	aliases, err := automation.BuildAliasTable(cfg.Devices)
	if err != nil {
		return nil, nil, fmt.Errorf("building alias table: %w", err)
	}
	runners, err := automation.CompileRules(cfg.Automations, cfg.Devices, deps)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling automation rules: %w", err)
	}
	return runners, aliases, nil
}

// runtimeEnv holds the process-lifetime singletons that survive a
// config reload: the state store, the automation handler (itself
// reloaded in place via Reload), the swappable MQTT publisher, and the
// debug hub. Only the event-source and server components named below
// are rebuilt per reload.
type runtimeEnv struct {
	store     *automation.StateStore
	handler   *automation.AutomationHandler
	publisher *mqttPublisher
	debugHub  *debugapi.Hub
	log       *logging.Logger
}

// component is the lifecycle controller's contract for anything that
// owns a background loop or a listening socket: a BLE scanner, an MQTT
// connection, or an HTTP server. Start must report failure (a closed
// radio, a port already in use) synchronously so startup and reload can
// fail fast instead of discovering the problem from a background
// goroutine's log line.
type component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type namedComponent struct {
	name string
	comp component
}

// runningGraph tracks the component graph and compiled rule set
// currently wired into the process, guarded by mu so watchReload's
// goroutine and run()'s shutdown path can't race over it.
type runningGraph struct {
	mu      sync.Mutex
	cfg     *config.Config
	graph   []namedComponent
	runners []*automation.ActionRunner
	aliases automation.AliasTable
}

func (g *runningGraph) snapshot() []namedComponent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.graph
}

// buildGraph constructs the event-source and server components cfg
// calls for, in dependency order: MQTT before BLE (both before the
// servers, which only read the store, never feed it). None of the
// components are started yet.
func buildGraph(cfg *config.Config, runners []*automation.ActionRunner, aliases automation.AliasTable, env *runtimeEnv) ([]namedComponent, error) {
	var graph []namedComponent

	if cfg.MQTT.Enabled {
		graph = append(graph, namedComponent{"mqtt", &mqttComponent{
			cfg:       cfg.MQTT,
			publisher: env.publisher,
			runners:   runners,
			store:     env.store,
			handler:   env.handler,
			log:       env.log,
		}})
	}

	if cfg.Scanner.Enabled {
		graph = append(graph, namedComponent{"ble-scanner", ble.New(ble.Settings{
			Cycle:     time.Duration(cfg.Scanner.Cycle) * time.Second,
			Duration:  time.Duration(cfg.Scanner.Duration) * time.Second,
			Interface: cfg.Scanner.Interface,
		}, &bleHandler{handler: env.handler}, env.log)})
	}

	if cfg.Prometheus.Enabled {
		graph = append(graph, namedComponent{"prometheus", &promComponent{
			addr:    fmt.Sprintf(":%d", cfg.Prometheus.Port),
			target:  cfg.Prometheus.Target,
			store:   env.store,
			aliases: aliases,
			log:     env.log,
		}})
	}

	if cfg.Debug.Enabled && env.debugHub != nil {
		graph = append(graph, namedComponent{"debug", debugapi.New(
			fmt.Sprintf("%s:%d", cfg.Debug.Host, cfg.Debug.Port), env.debugHub, nil, env.log,
		)})
	}

	return graph, nil
}

// startGraph starts every component in order. On failure it tears down
// whatever already started, in reverse order, and returns an error
// naming the component that failed, per spec.md §4.8's fail-fast
// startup contract.
func startGraph(ctx context.Context, graph []namedComponent, log *logging.Logger) error {
	for i, nc := range graph {
		if err := nc.comp.Start(ctx); err != nil {
			log.Error("component failed to start", "component", nc.name, "error", err)
			stopGraph(ctx, graph[:i], log)
			return fmt.Errorf("starting %s: %w", nc.name, err)
		}
		log.Info("component started", "component", nc.name)
	}
	return nil
}

// stopGraph stops every component in reverse start order. Stop failures
// are logged, not returned: shutdown and rollback both need to proceed
// through the whole list regardless of an individual component's
// cooperation.
func stopGraph(ctx context.Context, graph []namedComponent, log *logging.Logger) {
	for i := len(graph) - 1; i >= 0; i-- {
		nc := graph[i]
		if err := nc.comp.Stop(ctx); err != nil {
			log.Error("component failed to stop cleanly", "component", nc.name, "error", err)
			continue
		}
		log.Info("component stopped", "component", nc.name)
	}
}

// subscribeRules subscribes the broker to every distinct mqtt-event rule
// topic pattern and feeds decoded payloads to handler.
func subscribeRules(client *mqtt.Client, runners []*automation.ActionRunner, store *automation.StateStore, handler *automation.AutomationHandler, log *logging.Logger) error {
	var patterns []string
	for _, r := range runners {
		if r.Source == automation.KindMQTT {
			patterns = append(patterns, r.Topic)
		}
	}

	for _, pattern := range mqtt.SubscriptionPatterns(patterns) {
		pattern := pattern
		err := client.Subscribe(pattern, 1, func(topic string, payload []byte) error {
			handler.Handle(decodeMQTTEvent(topic, payload))
			return nil
		})
		if err != nil {
			return err
		}
		log.Info("subscribed", "pattern", pattern)
	}
	return nil
}

// decodeMQTTEvent turns a raw broker message into a RawEvent. A JSON
// object payload becomes the attribute bag directly; anything else is
// carried as a single "value" attribute.
func decodeMQTTEvent(topic string, payload []byte) automation.RawEvent {
	var attrs map[string]any
	if err := json.Unmarshal(payload, &attrs); err != nil || attrs == nil {
		attrs = map[string]any{"value": string(payload)}
	}
	return automation.RawEvent{Key: topic, Kind: automation.KindMQTT, Attributes: attrs}
}

// mqttPublisher adapts the infrastructure MQTT client to the executor
// package's narrower Publisher interface. The underlying client is
// swapped in by mqttComponent.Start once the broker connection exists,
// which happens after CompileRules has already wired this publisher
// into every mqtt-publish action: rules compile against a stable
// Publisher reference before the component graph that backs it starts.
type mqttPublisher struct {
	mu     sync.Mutex
	client *mqtt.Client
}

func (p *mqttPublisher) setClient(c *mqtt.Client) {
	p.mu.Lock()
	p.client = c
	p.mu.Unlock()
}

func (p *mqttPublisher) Publish(req automation.PublishRequest) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return fmt.Errorf("mqtt publisher: not connected")
	}
	return client.Publish(req.Topic, []byte(req.Payload), req.QoS, req.Retain)
}

// mqttComponent owns the broker connection and rule-topic subscriptions
// for one compiled rule set. Start connects and subscribes synchronously
// so a refused connection or a malformed topic pattern fails startup/
// reload immediately rather than after the fact.
type mqttComponent struct {
	cfg       config.MQTTConfig
	publisher *mqttPublisher
	runners   []*automation.ActionRunner
	store     *automation.StateStore
	handler   *automation.AutomationHandler
	log       *logging.Logger

	client *mqtt.Client
}

func (m *mqttComponent) Start(ctx context.Context) error {
	client, err := mqtt.Connect(m.cfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(m.log)

	if err := subscribeRules(client, m.runners, m.store, m.handler, m.log); err != nil {
		client.Close()
		return fmt.Errorf("subscribing MQTT topics: %w", err)
	}

	m.client = client
	m.publisher.setClient(client)
	return nil
}

func (m *mqttComponent) Stop(ctx context.Context) error {
	if m.client == nil {
		return nil
	}
	m.publisher.setClient(nil)
	err := m.client.Close()
	m.client = nil
	return err
}

// promComponent serves the Prometheus scrape endpoint for one point-in-
// time view of the state store. Start binds the listening socket
// synchronously so a port conflict fails startup/reload immediately.
type promComponent struct {
	addr    string
	target  config.PrometheusTarget
	store   *automation.StateStore
	aliases automation.AliasTable
	log     *logging.Logger

	server *http.Server
}

func (p *promComponent) Start(ctx context.Context) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.New(p.store, p.target, p.aliases))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("binding prometheus exporter: %w", err)
	}

	p.server = &http.Server{Addr: p.addr, Handler: mux}
	go func() {
		if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			p.log.Error("prometheus server stopped", "error", err)
		}
	}()
	return nil
}

func (p *promComponent) Stop(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

// fanoutHistory mirrors a rule fire to whichever history sinks are
// wired in; either field may be nil when its feature is disabled.
type fanoutHistory struct {
	influx *influxdb.Client
	hub    *debugapi.Hub
}

func (f *fanoutHistory) WriteRuleFire(ruleName, entityKey string) {
	if f.influx != nil {
		f.influx.WriteRuleFire(ruleName, entityKey)
	}
	if f.hub != nil {
		f.hub.WriteRuleFire(ruleName, entityKey)
	}
}

// bleHandler adapts the automation handler to the ble package's narrower
// Handler interface.
type bleHandler struct {
	handler *automation.AutomationHandler
}

func (h *bleHandler) Handle(raw automation.RawEvent) {
	h.handler.Handle(raw)
}

// watchReload re-reads configPath on SIGHUP and replaces the running
// component graph, per spec.md §4.8: the new config is loaded and
// compiled before anything running is touched, so an invalid config
// leaves the old graph untouched (Scenario F). If the new config is
// valid, the old graph and handler state are stopped and the new graph
// is started; if the new graph fails to start, the partially-started
// new graph is torn down and the old graph is re-started as a rollback.
// A rollback failure is fatal and reported on fatal, since the process
// would otherwise be left with no component graph at all.
func watchReload(ctx context.Context, configPath string, ov config.Overrides, deps automation.Dependencies, env *runtimeEnv, current *runningGraph, fatal chan<- error) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(sighup)
				return
			case <-sighup:
				env.log.Info("reload signal received, validating new configuration")
				if err := reload(ctx, configPath, ov, deps, env, current); err != nil {
					if rb, ok := err.(*rollbackError); ok {
						fatal <- rb.error
						return
					}
					env.log.Error("reload rejected, previous configuration remains active", "error", err)
					continue
				}
				env.log.Info("configuration reloaded")
			}
		}
	}()
}

// reload performs one SIGHUP reload attempt. It returns a plain error
// for anything that leaves the old graph running untouched (a rejected
// reload), and a *rollbackError only once the old graph has already
// been stopped and the attempt to bring it back has also failed.
func reload(ctx context.Context, configPath string, ov config.Overrides, deps automation.Dependencies, env *runtimeEnv, current *runningGraph) error {
	newCfg, err := config.Load(configPath, ov)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Compile without the cooldown store so the reloaded runners start with
	// an empty ledger, then wire it back in for write-through on later fires.
	cooldownStore := deps.Store
	deps.Store = nil
	runners, aliases, err := compileRunners(newCfg, deps)
	if err != nil {
		return err
	}
	for _, r := range runners {
		r.Store = cooldownStore
	}

	newGraph, err := buildGraph(newCfg, runners, aliases, env)
	if err != nil {
		return err
	}

	current.mu.Lock()
	oldCfg, oldGraph, oldRunners, oldAliases := current.cfg, current.graph, current.runners, current.aliases
	current.mu.Unlock()

	stopGraph(ctx, oldGraph, env.log)
	env.handler.Reload(aliases, runners)

	if err := startGraph(ctx, newGraph, env.log); err != nil {
		// startGraph has already torn down whichever of newGraph's
		// components it managed to start before the failure.
		env.log.Error("starting reloaded component graph failed, rolling back", "error", err)
		env.handler.Reload(oldAliases, oldRunners)

		if rbErr := startGraph(ctx, oldGraph, env.log); rbErr != nil {
			return &rollbackError{fmt.Errorf("reload failed (%w) and rollback to previous configuration also failed: %v", err, rbErr)}
		}

		current.mu.Lock()
		current.cfg, current.graph, current.runners, current.aliases = oldCfg, oldGraph, oldRunners, oldAliases
		current.mu.Unlock()
		return fmt.Errorf("starting new configuration: %w (rolled back to previous configuration)", err)
	}

	current.mu.Lock()
	current.cfg, current.graph, current.runners, current.aliases = newCfg, newGraph, runners, aliases
	current.mu.Unlock()
	return nil
}
