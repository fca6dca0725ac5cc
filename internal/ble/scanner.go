// Package ble scans for Bluetooth Low Energy advertisements on a duty
// cycle and turns each one into an automation.RawEvent.
package ble

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/switchsentry/internal/automation"
	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

// Settings controls the scan duty cycle, grounded on the original
// scanner's cycle/duration split: scan actively for Duration out of every
// Cycle, so the radio and CPU are idle the rest of the time.
type Settings struct {
	Cycle     time.Duration
	Duration  time.Duration
	Interface string
}

// Handler receives one decoded advertisement per BLE event.
type Handler interface {
	Handle(automation.RawEvent)
}

// Scanner runs the duty-cycle scan loop against a real Bluetooth adapter.
// It satisfies the lifecycle controller's component contract: Start
// enables the adapter synchronously (so a missing/unauthorized radio
// fails fast at startup/reload) and runs the duty-cycle loop in the
// background until Stop is called.
type Scanner struct {
	settings Settings
	handler  Handler
	logger   *logging.Logger
	adapter  *bluetooth.Adapter

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Scanner bound to the system's default Bluetooth adapter.
func New(settings Settings, handler Handler, logger *logging.Logger) *Scanner {
	return &Scanner{
		settings: settings,
		handler:  handler,
		logger:   logger,
		adapter:  bluetooth.DefaultAdapter,
	}
}

// Start enables the Bluetooth adapter and launches the scan loop in the
// background. A failure to enable the adapter (off, unauthorized, or
// absent) is returned synchronously so the lifecycle controller can
// fail-fast rather than run with a silently dead scanner.
func (s *Scanner) Start(ctx context.Context) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling bluetooth adapter: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.run(runCtx); err != nil {
			s.logger.Error("ble scanner stopped", "error", err)
		}
	}()
	return nil
}

// Stop cancels the scan loop and waits for it to exit or for ctx to
// expire, whichever comes first.
func (s *Scanner) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return nil
}

// run scans on a duty cycle until ctx is cancelled. A failed scan attempt
// backs off exponentially (capped) rather than busy-looping against a
// radio that is off or unauthorized; a successful cycle resets the
// backoff and returns to the configured steady-state cycle time.
func (s *Scanner) run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.settings.Cycle
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0 // never return backoff.Stop

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.scanOnce(ctx); err != nil {
			wait := bo.NextBackOff()
			s.logger.Error("ble scan failed", "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		wait := s.settings.Cycle - s.settings.Duration
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// scanOnce scans for settings.Duration and dispatches every advertisement
// received during that window.
func (s *Scanner) scanOnce(ctx context.Context) error {
	scanCtx, cancel := context.WithTimeout(ctx, s.settings.Duration)
	defer cancel()

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			s.handler.Handle(toRawEvent(result))
		})
	}()

	select {
	case <-scanCtx.Done():
		_ = s.adapter.StopScan()
		return nil
	case err := <-scanErr:
		if err != nil {
			return err
		}
		return nil
	}
}

