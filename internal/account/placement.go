package account

import (
	"context"
	"sync"

	"github.com/web3guy0/dexmatcher/internal/matchererr"
	"github.com/web3guy0/dexmatcher/types"
)

// handlePlaceOrder is the entry point of the placement pipeline: duplicate
// and capacity checks happen synchronously, then the order joins the FIFO
// placement queue and, if it is now the only thing waiting, validation
// starts immediately.
func (a *Actor) handlePlaceOrder(m *PlaceOrder) {
	id := m.Order.ID
	if _, exists := a.pendingCommands[id]; exists {
		m.Reply <- PlaceResult{Rejected: matchererr.OrderDuplicate(id)}
		return
	}
	if _, active := a.activeOrders[id]; active {
		m.Reply <- PlaceResult{Rejected: matchererr.OrderDuplicate(id)}
		return
	}
	if len(a.activeOrders)+len(a.placementQueue) >= a.cfg.MaxActiveOrders {
		m.Reply <- PlaceResult{Rejected: matchererr.ActiveOrdersLimitReached()}
		return
	}

	a.placementQueue = append(a.placementQueue, id)
	a.pendingCommands[id] = PendingCommand{
		IsPlacement: true,
		Order:       m.Order,
		IsMarket:    m.IsMarket,
		PlaceReply:  m.Reply,
	}
	if len(a.placementQueue) == 1 {
		a.startValidation(id)
	}
}

// startValidation spawns the suspended computation for the current
// placement-queue head: it concurrently asks the chain node whether this id
// has already been seen, asks OrderDB the same question for its own
// historical record, and asks the balance oracle for the order's spend and
// fee assets, then folds exactly one of validationPassed/validationFailed
// back into the mailbox. At most one validation is ever in flight.
func (a *Actor) startValidation(id types.OrderId) {
	a.validating = true
	pc, ok := a.pendingCommands[id]
	if !ok || !pc.IsPlacement {
		panic("placement queue head " + id.Hex() + " has no pending placement command")
	}
	order := pc.Order
	isMarket := pc.IsMarket
	activeCount := len(a.activeOrders)
	// AssetMap values are never mutated in place (Add/Sub/Clean always
	// build a fresh map), so capturing the current reservation here and
	// reading it from the goroutine below is race-free.
	reserved := a.openVolume

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BalanceAskTimeout)
		defer cancel()

		var (
			hasOrder     bool
			hasOrderErr  error
			containsInfo bool
			containsErr  error
			tradable     types.AssetMap
			tradableErr  error
			wg           sync.WaitGroup
		)
		wg.Add(3)
		go func() {
			defer wg.Done()
			hasOrder, hasOrderErr = a.chainNode.HasOrder(ctx, id)
		}()
		go func() {
			defer wg.Done()
			containsInfo, containsErr = a.db.ContainsInfo(ctx, id)
		}()
		go func() {
			defer wg.Done()
			assets := []types.Asset{order.SpendAsset(), order.FeeAsset}
			spendable, err := a.tradableBalanceFor(ctx, assets)
			if err != nil {
				tradableErr = err
				return
			}
			tradable = spendable.Sub(reserved.Restrict(assets))
		}()
		wg.Wait()

		if tradableErr != nil {
			a.send(&validationFailed{id: id, err: validationError(tradableErr)})
			return
		}
		if hasOrderErr != nil {
			a.send(&validationFailed{id: id, err: validationError(hasOrderErr)})
			return
		}
		if containsErr != nil {
			a.send(&validationFailed{id: id, err: validationError(containsErr)})
			return
		}

		// Exists is a narrow in-memory read, unlike the two collaborators
		// above, so it is fetched directly rather than handed its own
		// goroutine.
		bookExists := a.book.Exists(order.Pair)

		in := validatorInput{
			orderID:           id,
			alreadyKnown:      hasOrder,
			containsInfo:      containsInfo,
			activeOrdersCount: activeCount,
			maxActiveOrders:   a.cfg.MaxActiveOrders,
			tradableBalance:   tradable,
			spendAsset:        order.SpendAsset(),
			feeAsset:          order.FeeAsset,
			pair:              order.Pair,
			bookExists:        bookExists,
		}
		if verr := accountStateValidator(in); verr != nil {
			a.send(&validationFailed{id: id, err: verr})
			return
		}

		ao := buildAcceptedOrder(order, isMarket, tradable)
		a.send(&validationPassed{ao: ao})
	}()
}

// tradableBalanceFor is the raw oracle lookup; its caller subtracts the
// reservation snapshot it captured before spawning, since openVolume itself
// must only ever be read or written from the actor's own goroutine.
func (a *Actor) tradableBalanceFor(ctx context.Context, assets []types.Asset) (types.AssetMap, error) {
	return a.oracle.Get(ctx, a.owner, assets)
}

// buildAcceptedOrder derives the reservable/required balance maps for a
// freshly validated order. Market orders are capped at the tradable amount
// of their spend asset; limit orders reserve exactly what they asked for.
// Everything beyond this trivial subtraction (price/amount matching) is the
// matching engine's responsibility.
func buildAcceptedOrder(order types.Order, isMarket bool, tradable types.AssetMap) types.AcceptedOrder {
	spend := order.Amount
	if order.Side == types.Buy {
		spend = order.Amount.Mul(order.Price)
	}
	if isMarket {
		if ceiling := tradable.Get(order.SpendAsset()); ceiling.LessThan(spend) {
			spend = ceiling
		}
	}
	reservable := types.AssetMap{order.SpendAsset(): spend}.Add(types.AssetMap{order.FeeAsset: order.MatcherFee})
	return types.AcceptedOrder{
		Order:             order,
		IsMarket:          isMarket,
		ReservableBalance: reservable,
		RequiredBalance:   reservable,
	}
}

// handleValidationPassed stores the order and advances the queue. Stale
// results (the queue head changed or emptied while the goroutine was in
// flight, which only happens if the actor is shutting down) are dropped.
func (a *Actor) handleValidationPassed(m *validationPassed) {
	id := m.ao.ID()
	if len(a.placementQueue) == 0 || a.placementQueue[0] != id {
		a.log.Warn().Str("order_id", id.Hex()).Msg("account actor: stale validation result, dropping")
		return
	}
	a.place(m.ao)
	a.advanceQueue()
}

// handleValidationFailed replies to the waiting client and advances the
// queue without touching any reserved balance, since a failed validation
// never reserved anything.
func (a *Actor) handleValidationFailed(m *validationFailed) {
	if len(a.placementQueue) == 0 || a.placementQueue[0] != m.id {
		a.log.Warn().Str("order_id", m.id.Hex()).Msg("account actor: stale validation failure, dropping")
		return
	}
	pc, ok := a.pendingCommands[m.id]
	delete(a.pendingCommands, m.id)
	if ok && pc.PlaceReply != nil {
		if m.err.Code == matchererr.CodeWavesNodeConnectionBroken {
			pc.PlaceReply <- PlaceResult{WavesNodeUnavail: m.err}
		} else {
			pc.PlaceReply <- PlaceResult{Rejected: m.err}
		}
	}
	a.advanceQueue()
}

func (a *Actor) advanceQueue() {
	if len(a.placementQueue) > 0 {
		a.placementQueue = a.placementQueue[1:]
	}
	a.validating = false
	if len(a.placementQueue) > 0 {
		a.startValidation(a.placementQueue[0])
	}
}

// place is the reserved-volume side effect of a successful validation: the
// order is optimistically inserted as active and its reservable balance
// added to openVolume before the matching engine has confirmed anything,
// exactly as described for the placement pipeline's Stored step. OrderAdded
// later reconciles this optimistic reservation against the engine's own
// figure, which can differ for market orders.
func (a *Actor) place(ao types.AcceptedOrder) {
	kind := EventPlaced
	if ao.IsMarket {
		kind = EventPlacedMarket
	}
	a.activeOrders[ao.ID()] = ao
	a.openVolume = a.openVolume.Add(ao.ReservableBalance)
	a.assertOpenVolumeNonNegative()
	a.stageOrderUpdate(ao, ao.Status())
	event := ao
	a.publishStore(QueueEvent{Kind: kind, Order: &event, ID: ao.ID()})
}

// publishStore fires the store sink call in its own goroutine and folds
// only the failure case back into the mailbox; a successful persist needs
// no actor-side follow-up, the matching engine's own events (OrderAdded,
// OrderExecuted, OrderCanceled) are what eventually confirm the order to
// the client.
func (a *Actor) publishStore(event QueueEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BalanceAskTimeout)
		defer cancel()
		persisted, err := a.store.Store(ctx, event)
		if err != nil {
			a.send(&storeFailed{id: event.ID, err: matchererr.CanNotPersistEvent(err)})
			return
		}
		if !persisted {
			a.send(&storeFailed{id: event.ID, err: matchererr.FeatureDisabled()})
		}
	}()
}

// handleStoreFailed resolves the corresponding pending command: a placement
// client gets CanNotPersist, a cancel client a rejection carrying the same
// error. The optimistic activeOrders/openVolume reservation made at
// place() time is left as-is, matching events or an expiry/cancel are what
// eventually clean it up.
func (a *Actor) handleStoreFailed(m *storeFailed) {
	pc, ok := a.pendingCommands[m.id]
	if !ok {
		return
	}
	delete(a.pendingCommands, m.id)
	if pc.IsPlacement && pc.PlaceReply != nil {
		pc.PlaceReply <- PlaceResult{CanNotPersist: m.err}
	} else if !pc.IsPlacement && pc.CancelReply != nil {
		pc.CancelReply <- CancelResult{Rejected: m.err}
	}
}

// handleGetTradableBalance asks the oracle in its own goroutine; the
// openVolume subtraction happens back in the actor's own goroutine via
// tradableBalanceReady, so no other mutation can race it.
func (a *Actor) handleGetTradableBalance(m *GetTradableBalance) {
	assets := m.Assets
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.BalanceAskTimeout)
		defer cancel()
		bal, err := a.oracle.Get(ctx, a.owner, assets)
		a.send(&tradableBalanceReady{reply: m.Reply, assets: assets, balance: bal, err: err})
	}()
}

func (a *Actor) handleTradableBalanceReady(m *tradableBalanceReady) {
	if m.err != nil {
		m.reply <- TradableBalanceResult{Err: validationError(m.err)}
		return
	}
	tradable := m.balance.Sub(a.openVolume.Restrict(m.assets))
	m.reply <- TradableBalanceResult{Balance: tradable}
}
