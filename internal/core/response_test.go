package core

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crixen/internal/types"
)

func TestJSONWritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"memo": "abc"}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"memo":"abc"}}`, w.Body.String())
}

func TestErrorMapsAppErrorCode(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation maps to 400",
			err:        types.NewAppError(types.ErrCodeValidationFailed, "bad request"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_failed",
		},
		{
			name:       "missing order maps to 404",
			err:        types.NewAppError(types.ErrCodeNotFoundOrder, "no such order"),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found_order",
		},
		{
			name:       "duplicate memo maps to 503 so clients retry",
			err:        types.NewAppError(types.ErrCodeConflictDuplicateMemo, "memo collision"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "conflict_duplicate_memo",
		},
		{
			name:       "provider rejection maps to 400",
			err:        types.NewAppError(types.ErrCodeUpstreamProviderRejected, "declined"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "upstream_provider_rejected",
		},
		{
			name:       "provider outage maps to 502",
			err:        types.NewAppError(types.ErrCodeUpstreamProviderUnavailable, "timeout"),
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_provider_unavailable",
		},
		{
			name:       "plain error maps to opaque 500",
			err:        errors.New("pq: relation does not exist"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_server",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)

			Error(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestErrorNeverExposesWrappedCause(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	Error(w, r, types.WrapAppError(types.ErrCodeInternalDatabase, "query failed",
		errors.New("dial tcp 10.0.0.5:5432: connection refused")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		PlanID string `json:"plan_id"`
	}

	decode := func(t *testing.T, body string) error {
		t.Helper()
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dst payload
		return DecodeJSON(w, r, &dst)
	}

	t.Run("valid object", func(t *testing.T) {
		require.NoError(t, decode(t, `{"plan_id":"pro-monthly"}`))
	})

	t.Run("empty body", func(t *testing.T) {
		err := decode(t, "")
		assert.True(t, types.IsCode(err, types.ErrCodeValidationBadJSON))
	})

	t.Run("malformed JSON", func(t *testing.T) {
		err := decode(t, `{"plan_id":`)
		assert.True(t, types.IsCode(err, types.ErrCodeValidationBadJSON))
	})

	t.Run("unknown field", func(t *testing.T) {
		err := decode(t, `{"plan":"pro-monthly"}`)
		require.True(t, types.IsCode(err, types.ErrCodeValidationBadJSON))
		assert.Contains(t, err.Error(), "unknown field")
	})

	t.Run("wrong field type carries details", func(t *testing.T) {
		err := decode(t, `{"plan_id":42}`)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationBadJSON, appErr.Code)
		assert.Equal(t, "plan_id", appErr.Details["field"])
	})

	t.Run("trailing second object", func(t *testing.T) {
		err := decode(t, `{"plan_id":"a"}{"plan_id":"b"}`)
		assert.True(t, types.IsCode(err, types.ErrCodeValidationBadJSON))
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"plan_id":"` + strings.Repeat("x", maxRequestBodySize) + `"}`
		err := decode(t, big)
		require.True(t, types.IsCode(err, types.ErrCodeValidationBadJSON))
		assert.Contains(t, err.Error(), "too large")
	})
}
