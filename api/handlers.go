/*
handlers.go - HTTP API handlers for the reward engine

PURPOSE:
  Exposes the reward service and the ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Public:
    GET    /api/health                 Store reachability

  Account (bearer token required):
    POST   /api/session                Sign in (create or refresh profile)
    GET    /api/me                     Balance and activity windows
    GET    /api/me/transactions        Newest 50 records

  Rewards:
    GET    /api/captcha                Issue a captcha challenge
    POST   /api/captcha                Submit a captcha answer
    POST   /api/spin                   Spin the wheel
    POST   /api/spin/extra             Watch an ad for one more spin
    POST   /api/scratch                Scratch a card
    POST   /api/scratch/extra          Watch an ad for one more card
    POST   /api/ad                     Watch an ad for coins

  Transfers:
    POST   /api/transfers              Send coins by recipient email

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: reward surfaces (captcha, spin, scratch, ad)
  - Ledger: sign-in, history, transfers
  - Store: health checks
  - Challenges: captcha issuing (nil when a generative oracle is used)

REQUEST FLOW:
  1. Read the caller from the context (set by RequireUser)
  2. Parse and validate the body
  3. Call domain logic
  4. Serialize response
  5. Map errors to statuses (respondError)

ERROR HANDLING:
  - 400: Invalid input, rejected captcha, insufficient funds
  - 401: Missing or invalid token (middleware)
  - 403: Store rule rejection
  - 404: Account or recipient not found
  - 409: Daily limit reached, plays remaining, request in flight
  - 429: Throttled (middleware)
  - 503: Store temporarily unavailable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - middleware.go: Authentication, throttling, logging
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oracoin/reward-engine/captcha"
	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/identity"
	"github.com/oracoin/reward-engine/rewards"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *rewards.Service
	Ledger     *generic.Ledger
	Store      generic.Store
	Challenges *captcha.Challenges
	Logger     *zap.Logger
}

// NewHandler creates a handler over service. The ledger and store are
// taken from the service.
func NewHandler(service *rewards.Service, challenges *captcha.Challenges, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:    service,
		Ledger:     service.Ledger,
		Store:      service.Ledger.Store,
		Challenges: challenges,
		Logger:     logger,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Store: "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: "ok"})
}

// =============================================================================
// ACCOUNT ENDPOINTS
// =============================================================================

// CreateSession creates the account on first sign-in and refreshes the
// profile mirror afterwards. Balance and counters are never touched.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := mustUser(r)
	profile := profileFrom(r.Context())

	acct, created, err := h.Ledger.SignIn(r.Context(), id, profile)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, SessionResponse{Account: toAccountDTO(acct), Created: created})
}

// GetMe returns the balance and the state of every limited activity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Status(r.Context(), mustUser(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(st))
}

// ListTransactions returns the caller's newest records.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.History(r.Context(), mustUser(r), generic.DefaultHistoryLimit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, TransactionsResponse{Transactions: dtos})
}

// =============================================================================
// REWARD ENDPOINTS
// =============================================================================

// NewCaptcha issues a challenge. Only available with the built-in oracle.
func (h *Handler) NewCaptcha(w http.ResponseWriter, r *http.Request) {
	if h.Challenges == nil {
		writeError(w, http.StatusNotImplemented, "Captcha images are supplied by the client", nil)
		return
	}
	ch, err := h.Challenges.Generate()
	if err != nil {
		h.Logger.Error("captcha generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate captcha", err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// SolveCaptcha submits an answer. The oracle receives the challenge id when
// present, otherwise the image data URI.
func (h *Handler) SolveCaptcha(w http.ResponseWriter, r *http.Request) {
	var req SolveCaptchaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Answer == "" {
		writeError(w, http.StatusBadRequest, "Answer is required", nil)
		return
	}
	image := req.CaptchaID
	if image == "" {
		image = req.Image
	}

	out, err := h.Service.SolveCaptcha(r.Context(), mustUser(r), image, req.Answer)
	h.respondReward(w, r, out, err)
}

func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.Spin(r.Context(), mustUser(r))
	h.respondReward(w, r, out, err)
}

func (h *Handler) ExtraSpin(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.ExtraPlay(r.Context(), mustUser(r), generic.ActivitySpin)
	h.respondReward(w, r, out, err)
}

func (h *Handler) Scratch(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.Scratch(r.Context(), mustUser(r))
	h.respondReward(w, r, out, err)
}

func (h *Handler) ExtraScratch(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.ExtraPlay(r.Context(), mustUser(r), generic.ActivityScratch)
	h.respondReward(w, r, out, err)
}

func (h *Handler) WatchAd(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.WatchAd(r.Context(), mustUser(r))
	h.respondReward(w, r, out, err)
}

func (h *Handler) respondReward(w http.ResponseWriter, r *http.Request, out rewards.Outcome, err error) {
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardResponse(out))
}

// =============================================================================
// TRANSFER ENDPOINTS
// =============================================================================

// Transfer sends a whole number of coins to the account registered under
// recipient_email.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RecipientEmail == "" {
		writeError(w, http.StatusBadRequest, "Recipient email is required", nil)
		return
	}
	amount, err := generic.ParseAmount(req.Amount.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Amount must be a positive whole number", generic.ErrInvalidAmount)
		return
	}

	res, err := h.Ledger.Transfer(r.Context(), mustUser(r), req.RecipientEmail, amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.Logger.Info("transfer committed",
		zap.String("sender", string(mustUser(r))),
		zap.String("recipient", string(res.RecipientID)),
		zap.String("amount", amount.String()),
	)
	writeJSON(w, http.StatusOK, TransferResponse{
		CoinBalance:    amountJSON(res.SenderBalance),
		RecipientEmail: res.RecipientEmail,
		Transaction:    toTransactionDTO(res.Sent),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func mustUser(r *http.Request) generic.UserID {
	id, _ := identity.CurrentUserID(r.Context())
	return id
}

// respondError maps domain errors to HTTP statuses and user-facing messages.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var limitErr *generic.DailyLimitError
	var fundsErr *generic.InsufficientFundsError

	switch {
	case errors.Is(err, rewards.ErrCaptchaRejected):
		writeError(w, http.StatusBadRequest, "Incorrect captcha, try again", err)
	case errors.As(err, &limitErr):
		msg := "Daily limit reached"
		if !limitErr.CooldownEnd.IsZero() {
			msg += ", come back at " + limitErr.CooldownEnd.UTC().Format(time.RFC3339)
		}
		writeError(w, http.StatusConflict, msg, err)
	case errors.Is(err, generic.ErrPlaysRemaining):
		writeError(w, http.StatusConflict, "You still have plays left", err)
	case errors.As(err, &fundsErr):
		writeError(w, http.StatusBadRequest, "Not enough coins, you have "+fundsErr.Available.String(), err)
	case errors.Is(err, generic.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Amount must be a positive whole number", err)
	case errors.Is(err, generic.ErrSelfTransferNotAllowed):
		writeError(w, http.StatusBadRequest, "You cannot send coins to yourself", err)
	case errors.Is(err, generic.ErrUnknownActivity):
		writeError(w, http.StatusBadRequest, "Unknown activity", err)
	case errors.Is(err, generic.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, "No user with that email", err)
	case errors.Is(err, generic.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found, sign in first", err)
	case errors.Is(err, generic.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Permission denied", nil)
	case generic.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "Service busy, please try again", nil)
	default:
		h.Logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("user_id", string(mustUser(r))),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
