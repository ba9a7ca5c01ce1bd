package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func TestWriteSuccessAddsFlag(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, Fields{"order": map[string]string{"id": "abc"}})

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, true, body["success"])
	require.Equal(t, "abc", body["order"].(map[string]any)["id"])
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, nil)

	require.Equal(t, http.StatusCreated, w.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, map[string]any{"success": true}, body)
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "demo"})
	WriteError(context.Background(), nil, w, err)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, string(pkgerrors.CodeValidation), body.Code)
	require.Equal(t, "bad input", body.Message)
	require.NotNil(t, body.Details)
}

func TestWriteErrorStateConflictIs422(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled"))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "order is cancelled", body.Message)
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, string(pkgerrors.CodeInternal), body.Code)
	require.Equal(t, "internal server error", body.Message)
	require.Nil(t, body.Details)
}

func TestWriteErrorHidesGatewayMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeGateway, "sk_test key rejected"))

	require.Equal(t, http.StatusBadGateway, w.Code)
	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "payment gateway unavailable", body.Message)
}

func TestWriteSuccessLeavesCallerFieldsAlone(t *testing.T) {
	fields := Fields{"count": 2}
	WriteSuccess(httptest.NewRecorder(), fields)
	require.Equal(t, Fields{"count": 2}, fields)
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), chimw.RequestIDKey, "req-9")
	w := httptest.NewRecorder()
	WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, "req-9", body.RequestID)

	w = httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
	require.NotContains(t, w.Body.String(), "request_id")
}
