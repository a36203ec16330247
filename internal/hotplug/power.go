package hotplug

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
)

// PowerEvent is a system-wide power-state transition.
type PowerEvent int

const (
	PowerEventSuspend PowerEvent = iota
	PowerEventResume
)

func (e PowerEvent) String() string {
	if e == PowerEventSuspend {
		return "suspend"
	}
	return "resume"
}

// PowerEventSource pushes suspend/resume notifications. The two-event
// interface keeps the governor portable across power-management back-ends.
type PowerEventSource interface {
	Events() <-chan PowerEvent
}

// PowerStateCoordinator pumps power events into the governor. Suspend takes
// every core but the primary offline and parks the loop; resume restores
// capacity and restarts it. Repeated signals in the same direction are
// no-ops.
type PowerStateCoordinator struct {
	governor *Governor
	source   PowerEventSource
	logger   logr.Logger
}

func NewPowerStateCoordinator(governor *Governor, source PowerEventSource, logger logr.Logger) *PowerStateCoordinator {
	return &PowerStateCoordinator{
		governor: governor,
		source:   source,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled or the event source closes.
func (c *PowerStateCoordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-c.source.Events():
			if !ok {
				return nil
			}
			c.handle(event)
		}
	}
}

func (c *PowerStateCoordinator) handle(event PowerEvent) {
	c.logger.V(4).Info("power event received", "event", event.String())

	var err error
	switch event {
	case PowerEventSuspend:
		err = c.governor.Suspend()
	case PowerEventResume:
		err = c.governor.Resume()
	}
	if err != nil {
		c.logger.Error(err, "power transition left cores in a degraded state", "event", event.String())
	}
}

// signalPowerSource maps a pair of OS signals to suspend/resume events.
type signalPowerSource struct {
	events chan PowerEvent
}

// NewSignalPowerSource subscribes to suspendSig/resumeSig and translates
// them into power events until stop is called.
func NewSignalPowerSource(suspendSig, resumeSig os.Signal) (source PowerEventSource, stop func()) {
	s := &signalPowerSource{
		events: make(chan PowerEvent, 1),
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, suspendSig, resumeSig)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				close(s.events)
				return
			case sig := <-sigCh:
				event := PowerEventResume
				if sig == suspendSig {
					event = PowerEventSuspend
				}
				// keep only the latest pending transition
				select {
				case <-s.events:
				default:
				}
				select {
				case s.events <- event:
				default:
				}
			}
		}
	}()

	return s, func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func (s *signalPowerSource) Events() <-chan PowerEvent {
	return s.events
}
