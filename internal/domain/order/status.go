package order

import (
	"fmt"
	"slices"

	"github.com/xenking/storefront/internal/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// ItemStatus is the lifecycle state of an order line.
type ItemStatus string

const (
	ItemPending       ItemStatus = "Pending"
	ItemProcessing    ItemStatus = "Processing"
	ItemShipped       ItemStatus = "Shipped"
	ItemDelivered     ItemStatus = "Delivered"
	ItemCancelled     ItemStatus = "Cancelled"
	ItemReturnPending ItemStatus = "Return_Pending"
	ItemReturned      ItemStatus = "Returned"
)

// PaymentStatus is the state of the order's payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// RefundStatus is the state of a returned item's refund.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundFailed    RefundStatus = "failed"
)

var orderTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:       {ItemProcessing, ItemCancelled},
	ItemProcessing:    {ItemShipped, ItemCancelled},
	ItemShipped:       {ItemDelivered},
	ItemDelivered:     {ItemReturnPending},
	ItemReturnPending: {ItemReturned, ItemDelivered},
	ItemReturned:      {},
	ItemCancelled:     {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed, PaymentRefunded},
	PaymentCompleted: {PaymentRefunded},
	PaymentFailed:    {},
	PaymentRefunded:  {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(orderTransitions[from], to)
}

// CanTransitionItem reports whether an item may move between statuses.
func CanTransitionItem(from, to ItemStatus) bool {
	return slices.Contains(itemTransitions[from], to)
}

// CanTransitionPayment reports whether a payment may move between statuses.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return slices.Contains(paymentTransitions[from], to)
}

// Cancellable reports whether the order may still be cancelled.
func (s Status) Cancellable() bool {
	return CanTransition(s, StatusCancelled)
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move %s from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Kind() apperr.Kind { return apperr.KindValidation }

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{Entity: "order", From: string(from), To: string(to)}
	}
	return nil
}

func checkItemTransition(from, to ItemStatus) error {
	if !CanTransitionItem(from, to) {
		return &TransitionError{Entity: "item", From: string(from), To: string(to)}
	}
	return nil
}
