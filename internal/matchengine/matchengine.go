// Package matchengine is a minimal in-process stand-in for the real order
// book: it performs no price-time matching (explicitly out of scope for the
// account actor, per the component design), but it echoes back OrderAdded
// for every persisted placement and OrderCanceled for every persisted
// cancellation after a configurable simulated latency, so the rest of the
// module is runnable and testable end to end without a
// real book behind it. It produces no fills, so it never emits OrderExecuted.
//
// It is wired in as a decorator around the real StoreSink: the moment an
// order is durably queued is exactly the moment a real engine would first
// see it, so Store() is where the stub schedules its own echo.
package matchengine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/dexmatcher/internal/account"
	"github.com/web3guy0/dexmatcher/internal/directory"
	"github.com/web3guy0/dexmatcher/types"
)

// Stub decorates a StoreSink, observing every queue event it persists and
// feeding a trivial, non-matching acknowledgement back through the
// Directory once the simulated latency elapses.
type Stub struct {
	inner   account.StoreSink
	dir     *directory.Directory
	latency time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	known map[types.OrderId]types.AcceptedOrder
}

func New(inner account.StoreSink, dir *directory.Directory, latency time.Duration) *Stub {
	return &Stub{
		inner:   inner,
		dir:     dir,
		latency: latency,
		logger:  log.With().Str("component", "matchengine_stub").Logger(),
		known:   make(map[types.OrderId]types.AcceptedOrder),
	}
}

func (s *Stub) Store(ctx context.Context, event account.QueueEvent) (bool, error) {
	persisted, err := s.inner.Store(ctx, event)
	if err != nil || !persisted {
		return persisted, err
	}

	switch event.Kind {
	case account.EventPlaced, account.EventPlacedMarket:
		ao := *event.Order
		s.mu.Lock()
		s.known[event.ID] = ao
		s.mu.Unlock()
		time.AfterFunc(s.latency, func() { s.dir.RouteOrderAdded(ao) })

	case account.EventCanceled:
		s.mu.Lock()
		ao, ok := s.known[event.ID]
		delete(s.known, event.ID)
		s.mu.Unlock()
		if !ok {
			s.logger.Warn().Str("order_id", event.ID.Hex()).Msg("matchengine stub: cancel for unknown order, dropping echo")
			return persisted, nil
		}
		time.AfterFunc(s.latency, func() { s.dir.RouteOrderCanceled(ao, false) })
	}

	return persisted, nil
}
