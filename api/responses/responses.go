package responses

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Fields is the body of a successful response; "success" is added on write.
type Fields map[string]any

func WriteSuccess(w http.ResponseWriter, fields Fields) {
	WriteSuccessStatus(w, http.StatusOK, fields)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, fields Fields) {
	body := maps.Clone(fields)
	if body == nil {
		body = Fields{}
	}
	body["success"] = true
	writeJSON(w, status, body)
}

// WriteError renders err as an ErrorEnvelope. Untyped errors become
// INTERNAL_ERROR. Server side failures are logged at error level with their
// cause; client mistakes are logged as warnings.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("WriteError called without an error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.ErrorEnvelope{
		Message:   meta.PublicMessage,
		Code:      string(typed.Code()),
		RequestID: chimw.GetReqID(ctx),
	}
	if msg := typed.Message(); meta.ExposeMessage && msg != "" {
		body.Message = msg
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request.error", err)
		} else {
			logg.Warn(ctx, "request.rejected")
		}
	}
	writeJSON(w, meta.HTTPStatus, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// headers are gone; all that is left is to record it
		log.Error().Err(err).Int("status", status).Msg("encode response body")
	}
}
