package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/api/middleware"
	"github.com/angelmondragon/marginledger-backend/api/responses"
	"github.com/angelmondragon/marginledger-backend/api/validators"
	"github.com/angelmondragon/marginledger-backend/internal/wallet"
	"github.com/angelmondragon/marginledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
	"github.com/angelmondragon/marginledger-backend/pkg/pagination"
)

// WalletOverviewReader builds the per-store wallet page.
type WalletOverviewReader interface {
	Overview(ctx context.Context, store string, history pagination.Params) (*wallet.Overview, error)
}

type adjustmentRequest struct {
	Type        string `json:"type" validate:"required,oneof=withdrawal refund"`
	Amount      string `json:"amount" validate:"required,money_positive"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// AdminWalletOverview returns the wallet page for the store in the path.
func AdminWalletOverview(reader WalletOverviewReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOverview(w, r, reader, logg, chi.URLParam(r, "store"))
	}
}

// SellerWalletOverview returns the wallet page for the caller's store.
func SellerWalletOverview(reader WalletOverviewReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := middleware.StoreFromContext(r.Context())
		if store == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing"))
			return
		}
		writeOverview(w, r, reader, logg, store)
	}
}

func writeOverview(w http.ResponseWriter, r *http.Request, reader WalletOverviewReader, logg *logger.Logger, store string) {
	if reader == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
		return
	}
	params, err := pageParams(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	overview, err := reader.Overview(r.Context(), normalizeStore(store), params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, overview)
}

// AdminWalletAdjustment records a manual withdrawal or refund.
func AdminWalletAdjustment(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		var body adjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		txn, err := svc.Adjust(r.Context(), wallet.AdjustmentInput{
			Store:       normalizeStore(chi.URLParam(r, "store")),
			Type:        enums.WalletTransactionType(body.Type),
			Amount:      amount,
			Description: validators.SanitizeString(body.Description, 500),
			ActorID:     middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, txn)
	}
}

// AdminWalletReconcile compares the stored balance with the transaction sum.
func AdminWalletReconcile(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		result, err := svc.Reconcile(r.Context(), normalizeStore(chi.URLParam(r, "store")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: validators.QueryString(r, "cursor"),
	}, nil
}

func normalizeStore(store string) string {
	return strings.ToLower(strings.TrimSpace(store))
}
