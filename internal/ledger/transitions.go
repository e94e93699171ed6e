package ledger

import "github.com/gbsoe/FiLotV2-sub001/internal/models"

// allowed lists, per non-terminal status, every status it may move to.
// There are no back-edges and nothing leaves a terminal status.
var allowed = map[models.AttemptStatus][]models.AttemptStatus{
	models.StatusCreated: {
		models.StatusValidated,
		models.StatusRPCError,
		models.StatusAborted,
	},
	models.StatusValidated: {
		models.StatusBuilt,
		models.StatusInsufficientBalance,
		models.StatusRPCError,
		models.StatusAborted,
	},
	models.StatusBuilt: {
		models.StatusAwaitingSignature,
		models.StatusRPCError,
		models.StatusAborted,
	},
	models.StatusAwaitingSignature: {
		models.StatusSigned,
		models.StatusRejected,
		models.StatusTimedOut,
		models.StatusCancelled,
		models.StatusAborted,
	},
	models.StatusSigned: {
		models.StatusSubmitted,
		models.StatusInsufficientBalance,
		models.StatusRPCError,
		models.StatusAborted,
	},
	models.StatusSubmitted: {
		models.StatusConfirmed,
		models.StatusFailedOnchain,
		models.StatusUnknown,
		models.StatusTimedOut,
		models.StatusRPCError,
	},
}

// CanTransition reports whether from -> to is an edge of the attempt state
// machine.
func CanTransition(from, to models.AttemptStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
