package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	cases := []struct {
		code   Code
		status int
		expose bool
		retry  bool
	}{
		{CodeValidation, http.StatusBadRequest, true, false},
		{CodeUnauthorized, http.StatusUnauthorized, true, false},
		{CodeForbidden, http.StatusForbidden, true, false},
		{CodeNotFound, http.StatusNotFound, true, false},
		{CodeConflict, http.StatusConflict, true, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, true, false},
		{CodeIdempotency, http.StatusConflict, true, false},
		{CodeRateLimit, http.StatusTooManyRequests, true, false},
		{CodeGateway, http.StatusBadGateway, false, true},
		{CodeInternal, http.StatusInternalServerError, false, true},
		{CodeDependency, http.StatusServiceUnavailable, false, true},
	}
	for _, tc := range cases {
		meta := MetadataFor(tc.code)
		assert.Equal(t, tc.status, meta.HTTPStatus, tc.code)
		assert.Equal(t, tc.expose, meta.ExposeMessage, tc.code)
		assert.Equal(t, tc.retry, meta.Retryable, tc.code)
		assert.NotEmpty(t, meta.PublicMessage, tc.code)
	}

	assert.True(t, MetadataFor(CodeStateConflict).DetailsAllowed)
	assert.False(t, MetadataFor(CodeInternal).DetailsAllowed)
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := stdErrors.New("boom")
	outer := fmt.Errorf("outer: %w", Wrap(CodeConflict, cause, "ctx"))

	assert.ErrorIs(t, outer, cause)
	assert.True(t, IsCode(outer, CodeConflict))
	assert.False(t, IsCode(outer, CodeNotFound))
	assert.Equal(t, "outer: CONFLICT: ctx: boom", outer.Error())
	assert.Equal(t, "NOT_FOUND: order not found", NotFound("order").Error())
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.WithDetails("x"))
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	cases := map[string]error{
		"pgx": &pgconn.PgError{Code: "23505", ConstraintName: "ux_users_email", TableName: "users", Message: "duplicate key value"},
		"pq":  &pq.Error{Code: "23505", Constraint: "ux_users_email", Table: "users", Message: "duplicate key value"},
	}
	for name, driverErr := range cases {
		t.Run(name, func(t *testing.T) {
			dump := Dump(Wrap(CodeConflict, driverErr, "insert user"))
			assert.Equal(t, CodeConflict, dump.Code)
			assert.Equal(t, "23505", dump.PGCode)
			assert.Equal(t, "ux_users_email", dump.PGConstraint)
			assert.Equal(t, "users", dump.PGTable)
			require.Len(t, dump.Chain, 2)

			fields := dump.Fields()
			assert.Equal(t, "CONFLICT", fields["error_code"])
			assert.NotContains(t, fields, "pg_column")
		})
	}
}

func TestDumpOfPlainError(t *testing.T) {
	fields := Dump(stdErrors.New("plain")).Fields()
	assert.Equal(t, map[string]any{"error": "plain"}, fields)
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
