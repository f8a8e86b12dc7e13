package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marginledger-backend/api/middleware"
	"github.com/angelmondragon/marginledger-backend/api/responses"
	"github.com/angelmondragon/marginledger-backend/api/validators"
	"github.com/angelmondragon/marginledger-backend/internal/orderstatus"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

type changeStatusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
}

// AdminChangeOrderStatus saves a manual status override. When the platform
// push fails the override and wallet effect still stand and the result is
// returned as error details.
func AdminChangeOrderStatus(svc orderstatus.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order status service unavailable"))
			return
		}

		var body changeStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ChangeStatus(r.Context(), orderstatus.ChangeInput{
			Store:   chi.URLParam(r, "store"),
			OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
			Status:  body.Status,
			ActorID: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			if result != nil {
				err = pkgerrors.Wrap(pkgerrors.CodeExternalAPI, err, "status saved but platform update failed").WithDetails(result)
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
