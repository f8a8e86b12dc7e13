package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marginledger-backend/api/middleware"
	"github.com/angelmondragon/marginledger-backend/api/responses"
	"github.com/angelmondragon/marginledger-backend/api/validators"
	"github.com/angelmondragon/marginledger-backend/internal/rtorates"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

type rtoRateRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

// AdminListRTORates lists every rate, active or not, for a seller and store.
func AdminListRTORates(svc rtorates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rto rate service unavailable"))
			return
		}
		sellerID, err := pathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := validators.StoreDomain(chi.URLParam(r, "store"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rates, err := svc.List(r.Context(), sellerID, store)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rates)
	}
}

// AdminCreateRTORate replaces the active rate for the seller and store.
func AdminCreateRTORate(svc rtorates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rto rate service unavailable"))
			return
		}
		sellerID, err := pathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := validators.StoreDomain(chi.URLParam(r, "store"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body rtoRateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}
		rate, err := svc.Create(r.Context(), rtorates.CreateInput{
			SellerID:  sellerID,
			Store:     store,
			Amount:    amount,
			CreatedBy: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, rate)
	}
}

func AdminUpdateRTORate(svc rtorates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rto rate service unavailable"))
			return
		}
		sellerID, err := pathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rateID, err := pathUUID(r, "rateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := validators.StoreDomain(chi.URLParam(r, "store"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body rtoRateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(body.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}
		rate, err := svc.Update(r.Context(), rtorates.UpdateInput{
			SellerID: sellerID,
			Store:    store,
			RateID:   rateID,
			Amount:   amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rate)
	}
}

// AdminDeactivateRTORate switches a rate off. Resolution then falls back to
// the platform default.
func AdminDeactivateRTORate(svc rtorates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rto rate service unavailable"))
			return
		}
		sellerID, err := pathUUID(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rateID, err := pathUUID(r, "rateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		store, err := validators.StoreDomain(chi.URLParam(r, "store"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), sellerID, store, rateID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": rateID, "active": false})
	}
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key)
	}
	return id, nil
}
