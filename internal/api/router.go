package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/spendlens/spendlens/pkg/config"
	"github.com/spendlens/spendlens/pkg/middleware"
)

// Handlers bundles the per-domain HTTP handlers the router mounts.
type Handlers struct {
	Imports      *ImportsHandler
	Transactions *TransactionsHandler
	Reviews      *ReviewsHandler
	Rules        *RulesHandler
	Categories   *CategoriesHandler
}

// NewRouter builds the HTTP routing table. All API routes sit behind the
// identity middleware; rule and category mutations additionally require
// admin access.
func NewRouter(cfg *config.Config, handlers Handlers, logger *slog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(middleware.RequestLogger(logger))

	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	apiRouter := root.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(mux.MiddlewareFunc(middleware.Auth(&cfg.Auth)))

	apiRouter.HandleFunc("/imports", handlers.Imports.Create).Methods(http.MethodPost)
	apiRouter.HandleFunc("/imports", handlers.Imports.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/imports/{id}", handlers.Imports.Get).Methods(http.MethodGet)

	apiRouter.HandleFunc("/transactions", handlers.Transactions.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/transactions", handlers.Transactions.CreateManual).Methods(http.MethodPost)
	apiRouter.HandleFunc("/transactions/recategorize", handlers.Transactions.Recategorize).Methods(http.MethodPost)
	apiRouter.HandleFunc("/transactions/{id}/category", handlers.Transactions.UpdateCategory).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/analytics/categories", handlers.Transactions.SpendByCategory).Methods(http.MethodGet)
	apiRouter.HandleFunc("/analytics/merchants", handlers.Transactions.SpendByMerchant).Methods(http.MethodGet)

	apiRouter.HandleFunc("/duplicate-reviews", handlers.Reviews.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/duplicate-reviews/bulk-resolve", handlers.Reviews.BulkResolve).Methods(http.MethodPost)
	apiRouter.HandleFunc("/duplicate-reviews/{id}", handlers.Reviews.Update).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/duplicate-reviews/{id}/resolve", handlers.Reviews.Resolve).Methods(http.MethodPost)

	apiRouter.HandleFunc("/categories", handlers.Categories.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/classification-rules", handlers.Rules.List).Methods(http.MethodGet)

	admin := apiRouter.NewRoute().Subrouter()
	admin.Use(mux.MiddlewareFunc(middleware.RequireAdmin(&cfg.Auth)))
	admin.HandleFunc("/categories", handlers.Categories.Create).Methods(http.MethodPost)
	admin.HandleFunc("/classification-rules", handlers.Rules.Create).Methods(http.MethodPost)
	admin.HandleFunc("/classification-rules/{id}", handlers.Rules.Update).Methods(http.MethodPatch)
	admin.HandleFunc("/classification-rules/{id}", handlers.Rules.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/classification-rules/config/save", handlers.Rules.SaveConfig).Methods(http.MethodPost)
	admin.HandleFunc("/classification-rules/config/load", handlers.Rules.LoadConfig).Methods(http.MethodPost)

	return root
}
