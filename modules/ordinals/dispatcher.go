package ordinals

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hertarr/ordi/common/errs"
)

// EventCallback receives committed events of the kind it was registered for.
type EventCallback func(ctx context.Context, event Event)

// Dispatcher delivers committed events to the registered callbacks, in order.
// Callbacks are registered before the engine starts and never removed.
type Dispatcher struct {
	mu        sync.RWMutex
	sealed    bool
	callbacks map[EventKind][]EventCallback
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		callbacks: make(map[EventKind][]EventCallback),
	}
}

// Register appends callback to the callbacks of kind.
func (d *Dispatcher) Register(kind EventKind, callback EventCallback) error {
	if kind != EventKindInscribe && kind != EventKindTransfer {
		return errors.Wrapf(errs.InvalidArgument, "unknown event kind %s", kind)
	}
	if callback == nil {
		return errors.Wrap(errs.InvalidArgument, "nil callback")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return errors.Wrap(errs.Closed, "can't register callbacks after start")
	}
	d.callbacks[kind] = append(d.callbacks[kind], callback)
	return nil
}

func (d *Dispatcher) OnInscribe(callback func(ctx context.Context, event *InscribeEvent)) error {
	if callback == nil {
		return errors.Wrap(errs.InvalidArgument, "nil callback")
	}
	return d.Register(EventKindInscribe, func(ctx context.Context, event Event) {
		callback(ctx, event.(*InscribeEvent))
	})
}

func (d *Dispatcher) OnTransfer(callback func(ctx context.Context, event *TransferEvent)) error {
	if callback == nil {
		return errors.Wrap(errs.InvalidArgument, "nil callback")
	}
	return d.Register(EventKindTransfer, func(ctx context.Context, event Event) {
		callback(ctx, event.(*TransferEvent))
	})
}

// seal rejects further registrations.
func (d *Dispatcher) seal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sealed = true
}

// Dispatch calls the callbacks of every event synchronously, in batch order.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, event := range events {
		for _, callback := range d.callbacks[event.Kind()] {
			callback(ctx, event)
		}
	}
}
