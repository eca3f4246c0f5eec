/**
 * @description
 * HTTP router setup for the settlement service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers settlement routes.
func NewRouter(h *Handler, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Settlement service is healthy"))
	})

	r.Route("/internal/settlement", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))

		r.Post("/referrals/resolve", h.handleResolveReferrer)
		r.Post("/members/{memberID}/referral-code", h.handleEnsureReferralCode)
		r.Post("/members/{memberID}/chain", h.handleBuildChain)
		r.Post("/members/{memberID}/referrer", h.handleReassignReferrer)
		r.Post("/members/{memberID}/signup-fee", h.handleProcessSignupFee)

		r.Post("/distributions/run", h.handleRunDistribution)

		r.Get("/accounts/{accountID}/integrity", h.handleValidateAccount)
		r.Get("/integrity/sweep", h.handleIntegritySweep)
		r.Post("/accounts/{accountID}/reconcile", h.handleReconcileAccount)

		r.Post("/withdrawals", h.handleCreateWithdrawal)
		r.Post("/withdrawals/{id}/approve", h.handleApproveWithdrawal)
		r.Post("/withdrawals/{id}/deny", h.handleDenyWithdrawal)
		r.Post("/withdrawals/release-due", h.handleReleaseDueWithdrawals)
	})

	return r
}
