package rpc

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when the queried account does not exist on-chain.
var ErrAccountNotFound = errors.New("account not found")

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// SignatureStatus is one entry of getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *int        `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}

// Reached reports whether the status satisfies the given commitment level.
func (s *SignatureStatus) Reached(commitment string) bool {
	switch commitment {
	case "processed":
		return s.ConfirmationStatus != ""
	case "finalized":
		return s.ConfirmationStatus == "finalized"
	default:
		return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
	}
}

type tokenAmountValue struct {
	Amount         string `json:"amount"`
	Decimals       uint8  `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

type tokenAmountResponse struct {
	Result struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value tokenAmountValue `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

type blockhashResponse struct {
	Result struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

type boolValueResponse struct {
	Result struct {
		Value bool `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

type accountInfoResponse struct {
	Result struct {
		Value any `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}

type sendTransactionResponse struct {
	Result string    `json:"result"`
	Error  *RPCError `json:"error"`
}

type signatureStatusesResponse struct {
	Result struct {
		Value []*SignatureStatus `json:"value"`
	} `json:"result"`
	Error *RPCError `json:"error"`
}
