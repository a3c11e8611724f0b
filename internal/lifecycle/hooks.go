// Package lifecycle implements the change-driven side-effects of memory
// writes: auto-versioning, entity extraction, and automatic
// relationship inference. It subscribes to the kernel's change stream
// and dispatches an ordered pipeline of hooks through a bounded worker
// pool.
package lifecycle

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/kittclouds/memoria/internal/changestream"
	"github.com/kittclouds/memoria/internal/records"
)

// Hook reacts to a single memory Create/Update event. Implementations
// must not fail the originating write: errors are logged and swallowed
// by the dispatcher.
type Hook interface {
	Name() string
	HandleMemoryWrite(ctx context.Context, action changestream.Action, m *records.Memory) error
}

// Hooks dispatches matching change-stream events to registered hooks in
// registration order, each on the bounded worker pool so a slow hook never
// blocks the publisher.
type Hooks struct {
	hooks    []Hook
	sub      *changestream.Subscription
	bus      *changestream.Bus
	log      *zap.SugaredLogger
	maxConc  int
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a hook dispatcher. Call Start to begin consuming the bus.
func New(bus *changestream.Bus, log *zap.SugaredLogger, maxConcurrency int, hooks ...Hook) *Hooks {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Hooks{hooks: hooks, bus: bus, log: log, maxConc: maxConcurrency}
}

// Start subscribes to memory-table events and begins dispatching. Stop
// cancels the subscription and waits for in-flight hooks to drain.
func (h *Hooks) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.sub = h.bus.Subscribe(changestream.TableMemory)
	h.done = make(chan struct{})

	go h.loop(ctx)
}

func (h *Hooks) loop(ctx context.Context) {
	defer close(h.done)

	p := pool.New().WithMaxGoroutines(h.maxConc)
	defer p.Wait()

	for {
		evt, lagged, err := h.sub.Recv(ctx)
		if err != nil {
			return
		}
		if lagged {
			h.log.Warnw("lifecycle hooks missed events due to a full subscriber buffer")
		}
		if evt.Action != changestream.ActionCreate && evt.Action != changestream.ActionUpdate {
			continue
		}
		m, ok := evt.Record.(*records.Memory)
		if !ok || m == nil {
			continue
		}

		action, mem := evt.Action, m
		p.Go(func() {
			for _, hook := range h.hooks {
				if err := hook.HandleMemoryWrite(ctx, action, mem); err != nil {
					h.log.Warnw("lifecycle hook failed",
						"hook", hook.Name(), "memoryId", mem.ID, "error", err)
				}
			}
		})
	}
}

// Stop cancels the subscription and waits for dispatched hooks to finish.
func (h *Hooks) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.sub != nil {
		h.sub.Close()
	}
	if h.done != nil {
		<-h.done
	}
}
