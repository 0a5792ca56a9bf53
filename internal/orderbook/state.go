package orderbook

import "orderScope/internal/model"

// Resolution is the outcome of applying state-based listing state.
type Resolution string

const (
	ResolutionNew       Resolution = "new"
	ResolutionReprice   Resolution = "reprice"
	ResolutionRedundant Resolution = "redundant"
)

// ResolveState decides whether incoming listing state replaces stored state.
// Incoming state applies only when its ordering key is strictly greater than
// the stored one, and a terminal order is never overwritten.
func ResolveState(stored, incoming *model.Order) Resolution {
	if stored == nil {
		return ResolutionNew
	}
	if stored.FillabilityStatus.Terminal() {
		return ResolutionRedundant
	}
	if incoming.Source.Compare(stored.Source) <= 0 {
		return ResolutionRedundant
	}
	return ResolutionReprice
}
