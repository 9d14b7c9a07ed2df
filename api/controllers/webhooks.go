package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/kukusoko/kukusoko-backend/api/responses"
	"github.com/kukusoko/kukusoko-backend/api/validators"
	"github.com/kukusoko/kukusoko-backend/internal/reconcile"
	pkgerrors "github.com/kukusoko/kukusoko-backend/pkg/errors"
	"github.com/kukusoko/kukusoko-backend/pkg/logger"
	"github.com/kukusoko/kukusoko-backend/pkg/mpesa"
)

// MpesaCallback receives the gateway's payment result. The body shape is
// owned by the gateway, so unknown fields are tolerated. The gateway
// keeps retrying anything that is not a 200, so applied callbacks,
// duplicates, and even internal processing failures are all acknowledged
// with a success envelope; only an unmatched payment (404) or an
// unusable request (400) surfaces as an error.
func MpesaCallback(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload mpesa.CallbackPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body"))
			return
		}
		io.Copy(io.Discard, r.Body)

		result, err := svc.HandleCallback(r.Context(), orderID, payload)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil &&
				(typed.Code() == pkgerrors.CodeNotFound || typed.Code() == pkgerrors.CodeValidation) {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			// The reconciler released its replay guard before returning,
			// so the gateway's next delivery can still apply this callback.
			logg.Error(r.Context(), "callback processing failed, acknowledging gateway anyway", err)
			responses.WriteSuccess(w, map[string]any{"status": "accepted"})
			return
		}

		ack := map[string]any{
			"status":         "accepted",
			"payment_status": result.PaymentStatus,
		}
		if result.Duplicate {
			ack["status"] = "duplicate"
		}
		responses.WriteSuccess(w, ack)
	}
}
