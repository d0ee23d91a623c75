package statemachine

import (
	"sort"

	"paygate-backend/internal/domains/payment/model"
)

// =====================================================
// TRANSITION TABLE
// =====================================================
// The single source of truth for permitted status changes. Terminal
// statuses have no entry and therefore no targets.

var transitionTable = map[model.Status][]model.Status{
	model.StatusInit: {
		model.StatusNew, model.StatusExpired,
	},
	model.StatusNew: {
		model.StatusFormShowed, model.StatusAuthorizing,
		model.StatusCancelled, model.StatusExpired,
	},
	model.StatusFormShowed: {
		model.StatusAuthorizing, model.StatusCancelled, model.StatusExpired,
	},
	model.StatusOneChooseVision: {
		model.StatusFinishAuthorize, model.StatusAuthFail, model.StatusCancelled,
	},
	model.StatusFinishAuthorize: {
		model.StatusAuthorizing, model.StatusAuthFail, model.StatusCancelled,
	},
	model.StatusAuthorizing: {
		model.StatusAuthorized, model.StatusAuthFail,
		model.StatusCancelled, model.StatusExpired,
	},
	model.StatusAuthorized: {
		model.StatusConfirming, model.StatusReversing,
		model.StatusCancelled, model.StatusExpired,
	},
	model.StatusAuthFail: {
		model.StatusAuthorizing, model.StatusRejected, model.StatusCancelled,
	},
	model.StatusConfirm: {
		model.StatusConfirming, model.StatusCancelled,
	},
	model.StatusConfirming: {
		model.StatusConfirmed, model.StatusAuthFail, model.StatusCancelled,
	},
	model.StatusConfirmed: {
		model.StatusRefunding, model.StatusPartialRefunded,
	},
	model.StatusCancel: {
		model.StatusCancelling,
	},
	model.StatusCancelling: {
		model.StatusCancelled, model.StatusReversing,
	},
	model.StatusReversing: {
		model.StatusReversed, model.StatusCancelled,
	},
	model.StatusRefunding: {
		model.StatusRefunded, model.StatusPartialRefunded, model.StatusConfirmed,
	},
	model.StatusPartialRefunded: {
		model.StatusRefunding, model.StatusRefunded,
	},
}

// Allowed reports whether the table permits from -> to.
func Allowed(from, to model.Status) bool {
	for _, target := range transitionTable[from] {
		if target == to {
			return true
		}
	}
	return false
}

// TargetsFrom returns the permitted targets of a status. Terminal
// statuses return nil.
func TargetsFrom(from model.Status) []model.Status {
	targets := transitionTable[from]
	out := make([]model.Status, len(targets))
	copy(out, targets)
	return out
}

// ExpirableStatuses lists the statuses with a table edge to EXPIRED.
// The expiry sweep restricts its candidate query to these; everything
// else past its deadline settles through its own flow. Sorted so
// callers get a stable order.
func ExpirableStatuses() []model.Status {
	var out []model.Status
	for from, targets := range transitionTable {
		for _, target := range targets {
			if target == model.StatusExpired {
				out = append(out, from)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
