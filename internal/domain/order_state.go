package domain

import "strings"

// orderStatusTransitions lists the statuses reachable from each current status.
// Requesting the current status is handled separately as a no-op.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ParseOrderStatus validates an order status string.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := orderStatusTransitions[status]; !ok {
		return "", false
	}
	return status, true
}

// Terminal reports whether no further status changes are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionOrder reports whether an order may move from one status to another.
func CanTransitionOrder(from, to OrderStatus) bool {
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// paymentStatusTransitions only moves forward. Failed payments go back to pending
// when a new provider transaction is initiated.
var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:      {PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCODConfirmed},
	PaymentStatusFailed:       {PaymentStatusPending, PaymentStatusCODConfirmed},
	PaymentStatusPaid:         {},
	PaymentStatusCODConfirmed: {},
}

// CanTransitionPayment reports whether a payment may move from one status to another.
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, next := range paymentStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
