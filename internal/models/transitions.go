package models

// orderTransitions lists the legal targets for each order status.
// CANCELLED and REFUNDED are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusProcessing,
		OrderStatusCancelled,
	},
	OrderStatusProcessing: {
		OrderStatusCompleted,
		OrderStatusCancelled,
		OrderStatusRefunded,
	},
	OrderStatusCompleted: {
		OrderStatusCancelled,
		OrderStatusRefunded,
	},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// CanTransition reports whether an order may move from one status to another.
// Moving to the current status is allowed and treated as a no-op by callers.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// BeatEffect describes what an order transition does to the referenced beats
type BeatEffect int

const (
	BeatEffectNone BeatEffect = iota
	// BeatEffectSell marks every referenced beat SOLD
	BeatEffectSell
	// BeatEffectRelease returns SOLD or RESERVED beats to AVAILABLE
	BeatEffectRelease
)

// BeatEffectFor returns the beat side effect of entering the target status
func BeatEffectFor(to OrderStatus) BeatEffect {
	switch to {
	case OrderStatusCompleted:
		return BeatEffectSell
	case OrderStatusCancelled, OrderStatusRefunded:
		return BeatEffectRelease
	}
	return BeatEffectNone
}

// Releasable reports whether a beat in this status goes back on sale when its order is reversed
func (s BeatStatus) Releasable() bool {
	return s == BeatStatusSold || s == BeatStatusReserved
}
