package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/ledger"
	"github.com/gbsoe/FiLotV2-sub001/internal/session"
)

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindInvalidRequest:      http.StatusBadRequest,
	apperrors.KindSlippageOutOfRange:  http.StatusBadRequest,
	apperrors.KindPoolNotFound:        http.StatusNotFound,
	apperrors.KindSessionNotConnected: http.StatusConflict,
	apperrors.KindSessionBusy:         http.StatusConflict,
	apperrors.KindAlreadyInProgress:   http.StatusConflict,
	apperrors.KindPoolInactive:        http.StatusConflict,
	apperrors.KindReserveStale:        http.StatusConflict,
	apperrors.KindSessionExpired:      http.StatusGone,
	apperrors.KindInsufficientBalance: http.StatusUnprocessableEntity,
	apperrors.KindCancelled:           http.StatusRequestTimeout,
	apperrors.KindSessionCreation:     http.StatusServiceUnavailable,
	apperrors.KindRPC:                 http.StatusBadGateway,
}

// StatusFor maps an error to its HTTP status and kind.
func StatusFor(err error) (int, apperrors.Kind) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, ""
	}
	kind := apperrors.KindOf(err)
	if code, ok := statusByKind[kind]; ok {
		return code, kind
	}
	if kind != "" {
		return http.StatusUnprocessableEntity, kind
	}
	return http.StatusInternalServerError, ""
}

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		// Don't send response if already committed
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}
