package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gbsoe/FiLotV2-sub001/internal/pairing"
)

const maxAwaitSeconds = 300

// CreateSession starts a pairing and returns the URI to hand to the wallet.
func (h *Handlers) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	s, err := h.Sessions.Create(ctx, req.SessionID)
	if err != nil {
		return h.fail(c, err)
	}
	h.Metrics.SessionEvent("created")
	return c.JSON(http.StatusCreated, s)
}

// GetSession returns the current session state.
func (h *Handlers) GetSession(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	s, err := h.Sessions.Get(ctx, c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// AwaitSession long-polls until the wallet approves or the wait ends.
func (h *Handlers) AwaitSession(c echo.Context) error {
	var req AwaitSessionRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if req.TimeoutSeconds < 0 || req.TimeoutSeconds > maxAwaitSeconds {
		return h.err(c, http.StatusBadRequest, "invalid timeout_seconds", map[string]any{"timeout_seconds": "min 0 max 300"})
	}
	timeout := h.PairingTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	id := c.Param("id")
	addr, err := h.Sessions.AwaitConnection(c.Request().Context(), id, timeout)
	if err != nil {
		return h.fail(c, err)
	}
	h.Metrics.SessionEvent("connected")
	return c.JSON(http.StatusOK, AwaitSessionResponse{SessionID: id, WalletAddress: addr})
}

// TerminateSession disconnects the wallet. Repeating it is harmless.
func (h *Handlers) TerminateSession(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Sessions.Terminate(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	h.Metrics.SessionEvent("terminated")
	return c.NoContent(http.StatusNoContent)
}

// WalletEvent is the callback a wallet bridge posts pairing and signing
// answers to.
func (h *Handlers) WalletEvent(c echo.Context) error {
	var env pairing.Envelope
	if err := c.Bind(&env); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if err := h.validator().Struct(&env); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid wallet event", map[string]any{"err": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.HandleWalletEvent(ctx, &env); err != nil {
		return h.fail(c, err)
	}
	h.Metrics.SessionEvent(string(env.Type))
	return c.NoContent(http.StatusAccepted)
}
