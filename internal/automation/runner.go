package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

// executorTimeout bounds how long a single executor call may run before
// its context is cancelled. ShellExecutor applies its own timeout on top
// of this one, which can only shorten it.
const executorTimeout = 30 * time.Second

func executorContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), executorTimeout)
}

// CooldownStore optionally persists the cooldown ledger across process
// restarts (SPEC_FULL.md §4.11). Reload always resets the in-memory
// ledger regardless of whether a store is wired; only a full process
// restart reseeds from it.
type CooldownStore interface {
	Load(ruleName string) (map[string]time.Time, error)
	Save(ruleName, entityKey string, firedAt time.Time) error
}

// HistoryWriter optionally mirrors rule fires to a time-series backend for
// offline analysis, independent of the live cooldown/state model
// (SPEC_FULL.md's ambient history-writer component). Nil is a valid,
// no-op value.
type HistoryWriter interface {
	WriteRuleFire(ruleName, entityKey string)
}

// ActionRunner composes one trigger with an ordered list of executors and
// a per-(rule, entity-key) cooldown ledger, per spec.md §4.6.
type ActionRunner struct {
	Name       string
	Source     Kind
	Topic      string // subscription pattern, set only for mqtt-event rules
	DeviceKey  string // resolved entity key, set only when if.device names an alias
	Conditions map[string]string
	Aliases    AliasTable
	Cooldown   time.Duration
	Executors  []Executor
	Logger     *logging.Logger
	Trigger    Trigger
	Workers    *WorkerPool
	Store      CooldownStore
	History    HistoryWriter

	lastState sync.Map // entity key -> *StateObject
	cooldown  sync.Map // entity key -> time.Time (last fire)

	nowFunc func() time.Time
}

// newActionRunner builds a runner with no Trigger, seeding its cooldown
// ledger from store when one is given. Callers must set Trigger with this
// runner's handleFire method as its onFire callback (see
// NewEdgeActionRunner / NewDurationActionRunner).
func newActionRunner(name string, conds map[string]string, aliases AliasTable, cooldown time.Duration, executors []Executor, logger *logging.Logger, workers *WorkerPool, store CooldownStore) *ActionRunner {
	r := &ActionRunner{
		Name:       name,
		Conditions: conds,
		Aliases:    aliases,
		Cooldown:   cooldown,
		Executors:  executors,
		Logger:     logger,
		Workers:    workers,
		Store:      store,
		nowFunc:    time.Now,
	}
	if store != nil {
		if seeded, err := store.Load(name); err == nil {
			for key, ts := range seeded {
				r.cooldown.Store(key, ts)
			}
		} else if logger != nil {
			logger.Warn("cooldown store load failed", "rule", name, "error", err)
		}
	}
	return r
}

// NewEdgeActionRunner builds a runner backed by an EdgeTrigger.
func NewEdgeActionRunner(name string, conds map[string]string, aliases AliasTable, cooldown time.Duration, executors []Executor, logger *logging.Logger, workers *WorkerPool, store CooldownStore) *ActionRunner {
	r := newActionRunner(name, conds, aliases, cooldown, executors, logger, workers, store)
	r.Trigger = NewEdgeTrigger(r.handleFire)
	return r
}

// NewDurationActionRunner builds a runner backed by a DurationTrigger.
func NewDurationActionRunner(name string, conds map[string]string, duration time.Duration, aliases AliasTable, cooldown time.Duration, executors []Executor, logger *logging.Logger, workers *WorkerPool, store CooldownStore) *ActionRunner {
	r := newActionRunner(name, conds, aliases, cooldown, executors, logger, workers, store)
	r.Trigger = NewDurationTrigger(duration, r.handleFire)
	return r
}

// Run evaluates the rule's conditions against state and feeds the result
// to the trigger, per spec.md §4.6/§4.7.
func (r *ActionRunner) Run(state *StateObject) {
	r.lastState.Store(state.ID, state)
	result := EvaluateConditions(r.Conditions, state, r.Aliases, warnOnce(r.Logger, "rule "+r.Name))
	r.Trigger.Evaluate(state.ID, result)
}

// Stop cancels any outstanding duration timers owned by this runner's
// trigger, per spec.md §4.8/§9 "hot reload and active timers".
func (r *ActionRunner) Stop() {
	r.Trigger.Stop()
}

// handleFire is the trigger's onFire callback: it enforces the cooldown,
// then dispatches every executor for the entity's most recent StateObject.
func (r *ActionRunner) handleFire(entityID string) {
	now := r.nowFunc()

	if r.Cooldown > 0 {
		if last, ok := r.cooldown.Load(entityID); ok {
			if now.Sub(last.(time.Time)) < r.Cooldown {
				if r.Logger != nil {
					r.Logger.Debug("rule fire dropped by cooldown", "rule", r.Name, "entity", entityID)
				}
				return
			}
		}
	}
	r.cooldown.Store(entityID, now)
	if r.Store != nil {
		if err := r.Store.Save(r.Name, entityID, now); err != nil && r.Logger != nil {
			r.Logger.Warn("cooldown store save failed", "rule", r.Name, "entity", entityID, "error", err)
		}
	}
	if r.History != nil {
		r.History.WriteRuleFire(r.Name, entityID)
	}

	v, ok := r.lastState.Load(entityID)
	if !ok {
		return
	}
	state := v.(*StateObject)

	for _, ex := range r.Executors {
		ex := ex
		run := func() {
			ctx, cancel := executorContext()
			defer cancel()
			if err := ex.Execute(ctx, state); err != nil && r.Logger != nil {
				r.Logger.Warn("executor error", "rule", r.Name, "entity", entityID, "error", err)
			}
		}
		if r.Workers != nil {
			r.Workers.Submit(run)
		} else {
			run()
		}
	}
}
