// Package matchererr defines the MatcherError taxonomy surfaced to clients
// at the edge of the AccountActor.
package matchererr

import (
	"fmt"

	"github.com/web3guy0/dexmatcher/types"
)

type Code int

const (
	CodeOrderDuplicate Code = iota
	CodeOrderNotFound
	CodeOrderCanceled
	CodeOrderFull
	CodeActiveOrdersLimitReached
	CodeMarketOrderCancel
	CodeWavesNodeConnectionBroken
	CodeFeatureDisabled
	CodeCanNotPersistEvent
	CodeUnexpectedError
)

func (c Code) String() string {
	switch c {
	case CodeOrderDuplicate:
		return "OrderDuplicate"
	case CodeOrderNotFound:
		return "OrderNotFound"
	case CodeOrderCanceled:
		return "OrderCanceled"
	case CodeOrderFull:
		return "OrderFull"
	case CodeActiveOrdersLimitReached:
		return "ActiveOrdersLimitReached"
	case CodeMarketOrderCancel:
		return "MarketOrderCancel"
	case CodeWavesNodeConnectionBroken:
		return "WavesNodeConnectionBroken"
	case CodeFeatureDisabled:
		return "FeatureDisabled"
	case CodeCanNotPersistEvent:
		return "CanNotPersistEvent"
	default:
		return "UnexpectedError"
	}
}

// MatcherError is the error type returned across the AccountActor boundary.
type MatcherError struct {
	Code    Code
	OrderID types.OrderId
	msg     string
}

func (e *MatcherError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.msg)
	}
	return e.Code.String()
}

func new_(code Code, id types.OrderId, msg string) *MatcherError {
	return &MatcherError{Code: code, OrderID: id, msg: msg}
}

func OrderDuplicate(id types.OrderId) *MatcherError {
	return new_(CodeOrderDuplicate, id, "order already has a pending command")
}

func OrderNotFound(id types.OrderId) *MatcherError {
	return new_(CodeOrderNotFound, id, "order not found")
}

func OrderCanceled(id types.OrderId) *MatcherError {
	return new_(CodeOrderCanceled, id, "order already cancelled")
}

func OrderFull(id types.OrderId) *MatcherError {
	return new_(CodeOrderFull, id, "order already filled")
}

func ActiveOrdersLimitReached() *MatcherError {
	return new_(CodeActiveOrdersLimitReached, types.OrderId{}, "active orders limit reached")
}

func MarketOrderCancel(id types.OrderId) *MatcherError {
	return new_(CodeMarketOrderCancel, id, "market orders cannot be cancelled")
}

func WavesNodeConnectionBroken(cause error) *MatcherError {
	msg := "blockchain node connection broken"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return new_(CodeWavesNodeConnectionBroken, types.OrderId{}, msg)
}

func FeatureDisabled() *MatcherError {
	return new_(CodeFeatureDisabled, types.OrderId{}, "persistence disabled")
}

func CanNotPersistEvent(cause error) *MatcherError {
	msg := "event could not be persisted"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return new_(CodeCanNotPersistEvent, types.OrderId{}, msg)
}

func UnexpectedError(cause error) *MatcherError {
	msg := "unexpected error"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return new_(CodeUnexpectedError, types.OrderId{}, msg)
}
