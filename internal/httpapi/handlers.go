package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/audit"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/auth"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/calls"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/ledger"
	"github.com/shubhamsingh32112/vibemeet-backend-sub000/internal/reporting"

	"github.com/gin-gonic/gin"
)

// LedgerService is the slice of the coin ledger the HTTP layer exposes.
type LedgerService interface {
	GetAccount(ctx context.Context, accountID string) (ledger.Account, error)
	TopUp(ctx context.Context, accountID string, amount int64, idempotencyKey string) (ledger.Entry, ledger.Account, error)
	ManualCredit(ctx context.Context, accountID string, amount int64, reason, idempotencyKey string) (ledger.Entry, ledger.Account, error)
	EntriesForCall(ctx context.Context, callID string) ([]ledger.Entry, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Calls   *calls.Service
	Ledger  LedgerService
	Reports *reporting.Service
	Audit   *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type initiateCallRequest struct {
	PayeeID string `json:"payee_id"`
}

func (h Handlers) InitiateCall(c *gin.Context) {
	payerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	rec, err := h.Calls.Initiate(c.Request.Context(), payerID, req.PayeeID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	payeeID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	res, err := h.Calls.Accept(c.Request.Context(), c.Param("call_id"), payeeID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call":                 res.Call,
		"price_per_second":     res.PricePerSecond,
		"earn_rate_per_second": res.EarnRatePerSecond,
		"room_token":           res.RoomToken,
	})
}

func (h Handlers) EndCall(c *gin.Context) {
	callerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	rec, err := h.Calls.End(c.Request.Context(), c.Param("call_id"), callerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) GetCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	rec, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rec.PayerID != userID && rec.PayeeID != userID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Transport-signal fallbacks ---
//
// The socket server normally drives these over its own connection to the API.
// The REST forms below exist so a degraded transport can still start and stop
// metering.

type callSignalRequest struct {
	CallID string `json:"call_id"`
}

func (h Handlers) CallStarted(c *gin.Context) {
	var req callSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.Started(c.Request.Context(), req.CallID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) CallEnded(c *gin.Context) {
	callerID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req callSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	rec, err := h.Calls.End(c.Request.Context(), req.CallID, callerID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type disconnectedRequest struct {
	UserID string `json:"user_id"`
}

// Disconnected is invoked by the socket server when a party's connection
// drops. Admin-gated: end users never call it.
func (h Handlers) Disconnected(c *gin.Context) {
	var req disconnectedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.Disconnect(c.Request.Context(), req.UserID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Wallet ---

func (h Handlers) GetBalance(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	acct, err := h.Ledger.GetAccount(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": acct.ID, "coin_balance": acct.CoinBalance})
}

type topUpRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h Handlers) TopUp(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entry, acct, err := h.Ledger.TopUp(c.Request.Context(), userID, req.Amount, req.IdempotencyKey)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry, "coin_balance": acct.CoinBalance})
}

func (h Handlers) CallEntries(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	callID := c.Param("call_id")

	rec, err := h.Calls.Get(c.Request.Context(), callID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if rec.PayerID != userID && rec.PayeeID != userID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	entries, err := h.Ledger.EntriesForCall(c.Request.Context(), callID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// --- Reporting ---

func (h Handlers) UsageReport(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	rng, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.Reports.UsageSummary(c.Request.Context(), reporting.UsageSummaryRequest{
		AccountID: userID,
		Range:     rng,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h Handlers) CallHistory(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	rng, err := parseRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history, err := h.Reports.CallHistory(c.Request.Context(), reporting.CallHistoryRequest{
		AccountID: userID,
		Range:     rng,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": history})
}

// --- Admin ---

type adminManualCreditRequest struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// AdminManualCredit performs an admin-only coin credit with an audit trail.
func (h Handlers) AdminManualCredit(c *gin.Context) {
	adminUserID, _ := auth.UserID(c.Request.Context())
	adminRole, _ := auth.Role(c.Request.Context())

	var req adminManualCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AccountID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "account_id required"})
		return
	}

	entry, acct, err := h.Ledger.ManualCredit(c.Request.Context(), req.AccountID, req.Amount, req.Reason, req.IdempotencyKey)
	if err != nil {
		abortWithError(c, err)
		return
	}
	_ = h.Audit.LogAdminAction(c.Request.Context(), adminUserID, adminRole, req.AccountID,
		"manual credit: "+req.Reason, "")

	c.JSON(http.StatusOK, gin.H{"entry": entry, "coin_balance": acct.CoinBalance})
}

// --- helpers ---

func parseRange(c *gin.Context) (reporting.TimeRange, error) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return reporting.TimeRange{}, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return reporting.TimeRange{}, errors.New("to must be RFC3339")
	}
	return reporting.TimeRange{From: from, To: to}, nil
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, calls.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, calls.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, calls.ErrInvalidState), errors.Is(err, calls.ErrAlreadyBusy):
		return http.StatusConflict
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
