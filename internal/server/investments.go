package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gbsoe/FiLotV2-sub001/internal/investment"
)

// CreateInvestment runs one deposit and answers with its final status.
// The call stays open while the wallet signs and the network confirms.
func (h *Handlers) CreateInvestment(c echo.Context) error {
	var req investment.Request
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	res, err := h.Executor.ExecuteInvestment(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetInvestment returns an attempt and its transitions.
func (h *Handlers) GetInvestment(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	id := c.Param("id")
	a, err := h.Executor.Status(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	hist, err := h.Executor.History(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, AttemptResponse{Attempt: a, History: hist})
}

// CancelInvestment stops an attempt waiting for its signature.
func (h *Handlers) CancelInvestment(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Executor.Cancel(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// UserInvestments lists a user's newest attempts from the ledger.
// Accepts limit query parameter (default: 20, range: 1-100)
func (h *Handlers) UserInvestments(c echo.Context) error {
	limit := 20
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 100 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Executor.Recent(ctx, c.Param("user_id"), limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// RecentEvents returns the cached event feed for a user.
func (h *Handlers) RecentEvents(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "live feed is not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	items, err := h.Cache.GetRecentAttempts(ctx, c.Param("user_id"), 50)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get events", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// StreamEvents pushes a user's attempt events as server-sent events until
// the client disconnects.
func (h *Handlers) StreamEvents(c echo.Context) error {
	if h.Cache == nil {
		return h.err(c, http.StatusServiceUnavailable, "live feed is not configured", nil)
	}
	ctx := c.Request().Context()
	events, err := h.Cache.SubscribeAttempts(ctx, c.Param("user_id"))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to subscribe", nil)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: attempt\ndata: %s\n\n", b); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
