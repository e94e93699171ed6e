package apperrors

var userMessages = map[Kind]string{
	KindSessionCreation:     "Could not start wallet pairing right now. Please try again in a moment.",
	KindSessionExpired:      "Wallet pairing expired. Please connect your wallet again.",
	KindSessionBusy:         "Your wallet already has a pending request. Finish or cancel it first.",
	KindSessionNotConnected: "Wallet not connected. Connect your wallet before investing.",
	KindPoolNotFound:        "This pool is not available.",
	KindPoolInactive:        "This pool is currently inactive. Deposits are paused.",
	KindReserveStale:        "Pool prices moved while preparing the deposit. Please try again.",
	KindInsufficientBalance: "Insufficient balance for this pool.",
	KindSlippageOutOfRange:  "Slippage tolerance is outside the allowed range.",
	KindWalletRejected:      "Transaction cancelled in wallet.",
	KindSigningTimeout:      "No response from your wallet in time. Nothing was submitted.",
	KindCancelled:           "Deposit cancelled. Nothing was submitted.",
	KindSubmissionRejected:  "The network rejected the transaction. Nothing was deposited.",
	KindRPC:                 "Network error while processing the deposit. Please try again later.",
	KindConfirmationUnknown: "Network congestion: status unknown. Check the explorer before retrying.",
	KindAlreadyInProgress:   "A deposit into this pool is already in progress.",
	KindInvalidRequest:      "The deposit request is invalid.",
	KindInterrupted:         "The deposit was interrupted before submission. Nothing was deposited.",
}

// UserMessage returns the single user-facing sentence for a kind.
func UserMessage(kind Kind) string {
	if m, ok := userMessages[kind]; ok {
		return m
	}
	return "Something went wrong while processing the deposit."
}
