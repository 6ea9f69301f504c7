// Package api serves the ledger over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/STTM-NSU/paper-trader/internal/logger"
	"github.com/STTM-NSU/paper-trader/internal/model"
	"github.com/STTM-NSU/paper-trader/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PriceSource interface {
	PriceOf(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Handler struct {
	ledger *ledger.Ledger
	prices PriceSource // may be nil, then open requests need a price

	logger logger.Logger
}

func NewHandler(l *ledger.Ledger, prices PriceSource, logger logger.Logger) *Handler {
	return &Handler{
		ledger: l,
		prices: prices,
		logger: logger,
	}
}

// NewRouter builds a gin engine with recovery and the v1 routes.
func NewRouter(h *Handler) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	h.Register(engine)
	return engine
}

func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.GET("/account-values", h.timeline)

	accounts := v1.Group("/accounts")
	accounts.GET("", h.listAccounts)
	accounts.GET("/:id", h.getAccount)
	accounts.GET("/:id/metrics", h.metrics)
	accounts.GET("/:id/positions", h.listPositions)
	accounts.POST("/:id/positions", h.openPosition)
	accounts.POST("/:id/positions/:symbol/close", h.closePosition)
	accounts.GET("/:id/orders", h.listOrders)
	accounts.GET("/:id/trades", h.trades)
	accounts.GET("/:id/invocations", h.listInvocations)
	accounts.GET("/:id/snapshots", h.listSnapshots)
	accounts.POST("/:id/snapshots", h.createSnapshot)

	v1.POST("/positions/:id/mark", h.markPosition)
}

func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.ledger.ListAccounts(c.Request.Context())
	if err != nil {
		h.writeError(c, "list accounts", err)
		return
	}
	ok(c, http.StatusOK, accounts)
}

func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get account", err)
		return
	}
	ok(c, http.StatusOK, account)
}

func (h *Handler) metrics(c *gin.Context) {
	m, err := h.ledger.GetAccountMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get metrics", err)
		return
	}
	ok(c, http.StatusOK, m)
}

func (h *Handler) listPositions(c *gin.Context) {
	status, err := store.ParsePositionStatus(strings.TrimSpace(c.Query("status")))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	positions, err := h.ledger.ListPositions(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.writeError(c, "list positions", err)
		return
	}
	ok(c, http.StatusOK, positions)
}

type openRequest struct {
	Symbol       string           `json:"symbol" binding:"required"`
	Side         model.Side       `json:"side" binding:"required"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Price        *decimal.Decimal `json:"price"`
	InvocationID string           `json:"invocation_id"`
	Reason       string           `json:"reason"`
}

func (h *Handler) openPosition(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()

	if _, err := h.ledger.Symbol(req.Symbol); err != nil {
		h.writeError(c, "open position", err)
		return
	}

	var price decimal.Decimal
	switch {
	case req.Price != nil:
		price = *req.Price
	case h.prices != nil:
		p, err := h.prices.PriceOf(ctx, req.Symbol)
		if err != nil {
			h.logger.Errorf("%s: can't get market price", err)
			fail(c, http.StatusBadGateway, "can't get market price of "+req.Symbol)
			return
		}
		price = p
	default:
		fail(c, http.StatusBadRequest, "price is required")
		return
	}

	res, err := h.ledger.OpenPosition(ctx, ledger.OpenRequest{
		AccountID:    c.Param("id"),
		Symbol:       req.Symbol,
		Side:         model.Side(strings.ToUpper(string(req.Side))),
		Quantity:     req.Quantity,
		Price:        price,
		InvocationID: req.InvocationID,
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeError(c, "open position", err)
		return
	}
	ok(c, http.StatusCreated, res)
}

type closeRequest struct {
	Quantity     *decimal.Decimal `json:"quantity"`
	InvocationID string           `json:"invocation_id"`
	Reason       string           `json:"reason"`
}

func (h *Handler) closePosition(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.ledger.ClosePosition(c.Request.Context(), ledger.CloseRequest{
		AccountID:    c.Param("id"),
		Symbol:       c.Param("symbol"),
		Quantity:     req.Quantity,
		InvocationID: req.InvocationID,
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeError(c, "close position", err)
		return
	}
	ok(c, http.StatusOK, res)
}

type markRequest struct {
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) markPosition(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	position, err := h.ledger.UpdatePositionPnL(c.Request.Context(), c.Param("id"), req.Price)
	if err != nil {
		h.writeError(c, "mark position", err)
		return
	}
	ok(c, http.StatusOK, position)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.ledger.ListOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "list orders", err)
		return
	}
	ok(c, http.StatusOK, orders)
}

func (h *Handler) trades(c *gin.Context) {
	trades, err := h.ledger.CompletedTrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "list trades", err)
		return
	}
	ok(c, http.StatusOK, trades)
}

func (h *Handler) listInvocations(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > ledger.MaxInvocationsLimit {
			fail(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", ledger.MaxInvocationsLimit))
			return
		}
		limit = n
	}

	invocations, err := h.ledger.ListInvocations(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.writeError(c, "list invocations", err)
		return
	}
	ok(c, http.StatusOK, invocations)
}

func (h *Handler) listSnapshots(c *gin.Context) {
	from, to, okRange := timeRange(c)
	if !okRange {
		return
	}
	snapshots, err := h.ledger.ListSnapshots(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		h.writeError(c, "list snapshots", err)
		return
	}
	ok(c, http.StatusOK, snapshots)
}

func (h *Handler) createSnapshot(c *gin.Context) {
	snapshot, err := h.ledger.CreateSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "create snapshot", err)
		return
	}
	ok(c, http.StatusCreated, snapshot)
}

func (h *Handler) timeline(c *gin.Context) {
	from, to, okRange := timeRange(c)
	if !okRange {
		return
	}
	points, err := h.ledger.Timeline(c.Request.Context(), from, to)
	if err != nil {
		h.writeError(c, "build timeline", err)
		return
	}
	ok(c, http.StatusOK, points)
}

// timeRange reads optional RFC 3339 from / to query params and answers 400 on
// a malformed one.
func timeRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	from, err := timeQuery(c, "from")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	to, err := timeQuery(c, "to")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	if from != nil && to != nil && from.After(*to) {
		fail(c, http.StatusBadRequest, "from is after to")
		return nil, nil, false
	}
	return from, to, true
}

func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New("invalid " + key + ", want RFC 3339 time")
	}
	return &t, nil
}
