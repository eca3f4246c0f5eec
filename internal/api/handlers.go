/**
 * @description
 * HTTP handlers for the settlement service's internal API. Handlers parse
 * requests, call the engine components, and map sentinel errors to HTTP
 * status codes.
 */
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfunds/settlement-service/internal/app"
	"github.com/meridianfunds/settlement-service/internal/domain"
	"github.com/meridianfunds/settlement-service/internal/store"
)

// Handler holds the engine components the handlers call into.
type Handler struct {
	referrals   *app.ReferralChainBuilder
	fees        *app.SignupFeeDistributor
	distributor *app.CommissionDistributor
	integrity   *app.IntegrityValidator
	withdrawals *app.WithdrawalStateMachine
	logger      *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(referrals *app.ReferralChainBuilder, fees *app.SignupFeeDistributor, distributor *app.CommissionDistributor, integrity *app.IntegrityValidator, withdrawals *app.WithdrawalStateMachine, logger *slog.Logger) *Handler {
	return &Handler{
		referrals:   referrals,
		fees:        fees,
		distributor: distributor,
		integrity:   integrity,
		withdrawals: withdrawals,
		logger:      logger,
	}
}

// ResolveReferrerRequest is the JSON body for referrer resolution.
type ResolveReferrerRequest struct {
	Referrer string `json:"referrer"`
}

func (h *Handler) handleResolveReferrer(w http.ResponseWriter, r *http.Request) {
	var req ResolveReferrerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	referrerID, err := h.referrals.ResolveReferrer(r.Context(), req.Referrer)
	if err != nil {
		h.logger.Error("failed to resolve referrer", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]*uuid.UUID{"referrer_id": referrerID})
}

func (h *Handler) handleEnsureReferralCode(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUIDParam(w, r, "memberID")
	if !ok {
		return
	}

	code, err := h.referrals.EnsureReferralCode(r.Context(), memberID)
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			http.Error(w, "Member not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to ensure referral code", "member_id", memberID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"referral_code": code})
}

// BuildChainRequest is the JSON body for chain building and referrer
// reassignment. A null referrer id builds an empty ancestry row.
type BuildChainRequest struct {
	ReferrerID *uuid.UUID `json:"referrer_id"`
}

func (h *Handler) handleBuildChain(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUIDParam(w, r, "memberID")
	if !ok {
		return
	}

	var req BuildChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.referrals.BuildChain(r.Context(), memberID, req.ReferrerID); err != nil {
		h.logger.Error("failed to build referral chain", "member_id", memberID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"status": "chain built"})
}

func (h *Handler) handleReassignReferrer(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUIDParam(w, r, "memberID")
	if !ok {
		return
	}

	var req BuildChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.referrals.ReassignReferrer(r.Context(), memberID, req.ReferrerID); err != nil {
		h.logger.Error("failed to reassign referrer", "member_id", memberID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "referrer reassigned"})
}

func (h *Handler) handleProcessSignupFee(w http.ResponseWriter, r *http.Request) {
	memberID, ok := parseUUIDParam(w, r, "memberID")
	if !ok {
		return
	}

	if err := h.fees.ProcessFirstDeposit(r.Context(), memberID); err != nil {
		switch {
		case errors.Is(err, store.ErrAccountNotFound):
			http.Error(w, "Member has no active account", http.StatusNotFound)
		case errors.Is(err, app.ErrDepositBelowMinimum):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("failed to process signup fee", "member_id", memberID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "signup fee processed"})
}

func (h *Handler) handleRunDistribution(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = domain.MonthOf(time.Now().UTC())
	} else if _, err := time.Parse("2006-01", month); err != nil {
		http.Error(w, "Invalid month, expected YYYY-MM", http.StatusBadRequest)
		return
	}

	result, err := h.distributor.Run(r.Context(), month)
	if err != nil {
		h.logger.Error("distribution run failed", "month", month, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleValidateAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}

	result, err := h.integrity.Validate(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.logger.Error("integrity check failed", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleIntegritySweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.integrity.Sweep(r.Context())
	if err != nil {
		h.logger.Error("integrity sweep failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// ReconcileRequest is the JSON body for an admin balance reconciliation.
type ReconcileRequest struct {
	AdminID string `json:"admin_id"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleReconcileAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseUUIDParam(w, r, "accountID")
	if !ok {
		return
	}

	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.AdminID == "" {
		http.Error(w, "admin_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.integrity.Reconcile(r.Context(), accountID, req.AdminID, req.Reason)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			http.Error(w, "Account not found", http.StatusNotFound)
			return
		}
		h.logger.Error("reconciliation failed", "account_id", accountID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// CreateWithdrawalRequest is the JSON body for opening a withdrawal.
type CreateWithdrawalRequest struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}

func (h *Handler) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req CreateWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	request, err := h.withdrawals.Request(r.Context(), req.AccountID, req.Amount, req.Method)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAccountNotFound):
			http.Error(w, "Account not found", http.StatusNotFound)
		case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrInsufficientBalance):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("failed to create withdrawal", "account_id", req.AccountID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	request, err := h.withdrawals.Approve(r.Context(), requestID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrWithdrawalNotFound):
			http.Error(w, "Withdrawal request not found", http.StatusNotFound)
		case errors.Is(err, store.ErrWithdrawalNotPending):
			http.Error(w, "Withdrawal request is not pending", http.StatusConflict)
		default:
			h.logger.Error("failed to approve withdrawal", "request_id", requestID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, request)
}

func (h *Handler) handleDenyWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID, ok := parseUUIDParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.withdrawals.Deny(r.Context(), requestID); err != nil {
		switch {
		case errors.Is(err, store.ErrWithdrawalNotFound):
			http.Error(w, "Withdrawal request not found", http.StatusNotFound)
		case errors.Is(err, store.ErrWithdrawalNotPending):
			http.Error(w, "Withdrawal request is not pending", http.StatusConflict)
		default:
			h.logger.Error("failed to deny withdrawal", "request_id", requestID, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "denied"})
}

func (h *Handler) handleReleaseDueWithdrawals(w http.ResponseWriter, r *http.Request) {
	released, err := h.withdrawals.ReleaseDue(r.Context())
	if err != nil {
		h.logger.Error("withdrawal release sweep failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"released": released})
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
