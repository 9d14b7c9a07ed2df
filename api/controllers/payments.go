package controllers

import (
	"net/http"

	"github.com/kukusoko/kukusoko-backend/api/middleware"
	"github.com/kukusoko/kukusoko-backend/api/responses"
	"github.com/kukusoko/kukusoko-backend/api/validators"
	"github.com/kukusoko/kukusoko-backend/internal/payments"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
)

// InitiatePayment starts a payment for an existing order, either by STK
// push or by recording a manual transaction code.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var input payments.InitiateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Initiate(r.Context(), principal, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
