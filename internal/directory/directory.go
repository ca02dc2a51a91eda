// Package directory is the process-wide registry of AccountActors: it spawns
// one lazily per address the first time that address is mentioned, and
// routes every matching-engine event and balance change to the right one.
// Grounded on the teacher's subscription router (core/router.go), whose
// mutex-guarded map-of-slices becomes a mutex-guarded map-of-actors here.
package directory

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/dexmatcher/internal/account"
	"github.com/web3guy0/dexmatcher/types"
)

// Factory builds a fresh Actor for an address the Directory has not seen
// before.
type Factory func(owner types.Address) *account.Actor

// Directory is the single entry point external callers use to reach an
// account's actor, spawning it on first mention.
type Directory struct {
	log     zerolog.Logger
	factory Factory

	mu      sync.RWMutex
	actors  map[types.Address]*account.Actor
	started bool // StartSchedules has already been broadcast
}

func New(factory Factory) *Directory {
	return &Directory{
		log:     log.With().Str("component", "directory").Logger(),
		factory: factory,
		actors:  make(map[types.Address]*account.Actor),
	}
}

// Get returns the actor for owner, spawning and starting it if this is the
// first time the address has been seen. If StartSchedules has already been
// broadcast to every previously known actor, a freshly spawned actor
// receives it immediately too, so history restored after the fact never
// leaves an actor without expiry scheduling turned on.
func (d *Directory) Get(owner types.Address) *account.Actor {
	d.mu.RLock()
	a, ok := d.actors[owner]
	d.mu.RUnlock()
	if ok {
		return a
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.actors[owner]; ok {
		return a
	}
	a = d.factory(owner)
	d.actors[owner] = a
	go a.Run()
	if d.started {
		a.Tell(&account.StartSchedules{})
	}
	d.log.Info().Str("owner", owner.Hex()).Msg("📬 spawned account actor")
	return a
}

// Addresses returns every address with a spawned actor, used by the
// balance-watch poller to know who to ask the chain node about.
func (d *Directory) Addresses() []types.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.Address, 0, len(d.actors))
	for addr := range d.actors {
		out = append(out, addr)
	}
	return out
}

// Peek returns the actor for owner without spawning one, used by routes
// that must never bring an actor into existence (pure balance-change
// fan-out only reaches actors that already exist).
func (d *Directory) Peek(owner types.Address) (*account.Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[owner]
	return a, ok
}

// RouteOrderAdded delivers a matching-engine OrderAdded event to the
// owning account's actor, spawning it if needed (a restart can replay
// history for an account this process has never spawned yet).
func (d *Directory) RouteOrderAdded(submitted types.AcceptedOrder) {
	d.Get(submitted.Order.Sender).Tell(&account.OrderAdded{Submitted: submitted})
}

// RouteOrderExecuted delivers a fill event to both sides; only the side(s)
// whose actor already exists or is worth spawning get a message, since a
// trade by definition means both addresses already placed an order.
func (d *Directory) RouteOrderExecuted(e *account.OrderExecuted) {
	d.Get(e.Submitted.Order.Sender).Tell(e)
	if e.Counter.Order.Sender != e.Submitted.Order.Sender {
		d.Get(e.Counter.Order.Sender).Tell(e)
	}
}

// RouteOrderCanceled delivers a cancellation confirmation.
func (d *Directory) RouteOrderCanceled(ao types.AcceptedOrder, isSystemCancel bool) {
	d.Get(ao.Order.Sender).Tell(&account.OrderCanceled{AO: ao, IsSystemCancel: isSystemCancel})
}

// FanOutBalanceChange notifies every already-spawned actor whose address
// appears in changes that its reserved volume may now exceed its real
// balance. Addresses with no actor yet have nothing reserved to check, so
// they are never spawned just to receive this.
func (d *Directory) FanOutBalanceChange(changes map[types.Address]types.AssetMap) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for addr, newBalance := range changes {
		if a, ok := d.actors[addr]; ok {
			a.Tell(&account.CancelNotEnoughCoinsOrders{NewBalance: newBalance})
		}
	}
}

// StartSchedules broadcasts to every currently spawned actor once, after
// history restoration has completed, turning on expiry scheduling. Any
// actor spawned afterwards receives it at spawn time instead (see Get).
func (d *Directory) StartSchedules() {
	d.mu.Lock()
	d.started = true
	actors := make([]*account.Actor, 0, len(d.actors))
	for _, a := range d.actors {
		actors = append(actors, a)
	}
	d.mu.Unlock()

	for _, a := range actors {
		a.Tell(&account.StartSchedules{})
	}
	d.log.Info().Int("actors", len(actors)).Msg("▶️  schedules started")
}
