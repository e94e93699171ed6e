package investment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

// Request asks for one deposit. Amount is in token A units, or in the
// reference currency when one is configured.
type Request struct {
	UserID        string          `json:"user_id" validate:"required,max=255"`
	SessionID     string          `json:"session_id" validate:"required,max=64"`
	WalletAddress string          `json:"wallet_address" validate:"required,min=32,max=44"`
	PoolID        string          `json:"pool_id" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount"`
	SlippageBps   *uint16         `json:"slippage_bps,omitempty"`
	MinLPOverride *uint64         `json:"min_lp_tokens,omitempty"`
}

// Result is the outcome of one ExecuteInvestment call.
type Result struct {
	AttemptID   string               `json:"attempt_id"`
	Status      models.AttemptStatus `json:"status"`
	TxSignature string               `json:"tx_signature,omitempty"`
	FailureCode string               `json:"failure_code,omitempty"`
	Message     string               `json:"message"`
	Err         error                `json:"-"`
}

var validate = validator.New()

func validateRequest(req Request) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return apperrors.Newf(apperrors.KindInvalidRequest, "invalid fields: %s", strings.Join(fields, ", "))
		}
		return apperrors.Wrap(apperrors.KindInvalidRequest, err, "invalid request")
	}
	if !req.Amount.IsPositive() {
		return apperrors.New(apperrors.KindInvalidRequest, "amount must be greater than zero")
	}
	return nil
}

func resultFor(a *models.InvestmentAttempt, cause error) *Result {
	r := &Result{
		AttemptID: a.AttemptID,
		Status:    a.Status,
		Message:   messageFor(a.Status, cause),
		Err:       cause,
	}
	if a.TxSignature != nil {
		r.TxSignature = *a.TxSignature
	}
	if a.FailureCode != nil {
		r.FailureCode = *a.FailureCode
	}
	return r
}

func messageFor(status models.AttemptStatus, cause error) string {
	switch status {
	case models.StatusConfirmed:
		return "Deposit confirmed."
	case models.StatusSubmitted:
		return "Deposit submitted. Waiting for network confirmation."
	case models.StatusUnknown:
		return apperrors.UserMessage(apperrors.KindConfirmationUnknown)
	}
	if cause != nil {
		return apperrors.UserMessage(apperrors.KindOf(cause))
	}
	return apperrors.UserMessage("")
}
