package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/angelmondragon/marginledger-backend/api/responses"
	"github.com/angelmondragon/marginledger-backend/api/validators"
	"github.com/angelmondragon/marginledger-backend/internal/ordersync"
	pkgerrors "github.com/angelmondragon/marginledger-backend/pkg/errors"
	"github.com/angelmondragon/marginledger-backend/pkg/logger"
)

// SyncRunner runs one order sync pass.
type SyncRunner interface {
	Run(ctx context.Context, req ordersync.Request) (*ordersync.Result, error)
}

type syncRequest struct {
	Stores             []string   `json:"stores" validate:"omitempty,dive,required,store_domain"`
	SupplierProductIDs []string   `json:"supplier_product_ids" validate:"omitempty,dive,required"`
	Since              *time.Time `json:"since"`
}

// AdminTriggerSync runs a sync synchronously. Store-level failures are
// reported inside the result. An empty body syncs every connected store.
func AdminTriggerSync(runner SyncRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		var body syncRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil && !errors.Is(err, validators.ErrEmptyBody) {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := runner.Run(r.Context(), ordersync.Request{
			Stores:             body.Stores,
			SupplierProductIDs: body.SupplierProductIDs,
			Since:              body.Since,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
