package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/brunovalongo/fretepay-backend/api/responses"
	"github.com/brunovalongo/fretepay-backend/api/validators"
	"github.com/brunovalongo/fretepay-backend/internal/consolidation"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

type consolidationEngine interface {
	ProcessAllClients(ctx context.Context, trigger string) (*consolidation.RunResult, error)
	ProcessClient(ctx context.Context, clientID uuid.UUID) (*consolidation.RunResult, error)
}

type runConsolidationRequest struct {
	ClientID string `json:"client_id,omitempty" validate:"omitempty,uuid4"`
}

// RunConsolidation triggers a consolidation pass on demand. An optional
// client_id narrows the run to one client.
func RunConsolidation(engine consolidationEngine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if engine == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "consolidation engine unavailable"))
			return
		}

		var req runConsolidationRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		if req.ClientID != "" {
			clientID, err := uuid.Parse(req.ClientID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid client_id"))
				return
			}
			result, err := engine.ProcessClient(ctx, clientID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, result)
			return
		}

		result, err := engine.ProcessAllClients(ctx, consolidation.TriggerManual)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
