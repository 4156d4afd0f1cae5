package problem

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/eventproxy/internal/upstream"
)

func decode(t *testing.T, res *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestWrite_DevIncludesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/events/1", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid request", errors.New("boom"), "development")

	assert.Equal(t, "application/problem+json", res.Header().Get("Content-Type"))
	body := decode(t, res)
	assert.Equal(t, "boom", body.Detail)
	assert.Equal(t, "/events/1", body.Instance)
	assert.Equal(t, http.StatusBadRequest, body.Status)
}

func TestWrite_ProdSanitizesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/events/1", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid request", errors.New("boom"), "production")

	assert.Equal(t, http.StatusText(http.StatusBadRequest), decode(t, res).Detail)
}

func TestWrite_FieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	res := httptest.NewRecorder()

	Write(res, req, http.StatusBadRequest, TypeValidation, "Invalid request", nil, "production",
		WithErrors(map[string]any{"name": "is required"}))

	body := decode(t, res)
	assert.Equal(t, "is required", body.Errors["name"])
	assert.Empty(t, body.Detail)
}

func TestWriteUpstream(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		retryAfter string
	}{
		{
			name:       "rate limited",
			err:        &upstream.Error{Kind: upstream.KindRateLimited, Status: 429, Message: "write window full", RetryAfter: 30},
			wantStatus: http.StatusTooManyRequests,
			wantType:   TypeRateLimited,
			retryAfter: "30",
		},
		{
			name:       "not found",
			err:        &upstream.Error{Kind: upstream.KindClientError, Status: 404, Message: "upstream returned 404", Details: json.RawMessage(`{"message":"nope"}`)},
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
		},
		{
			name:       "client error",
			err:        &upstream.Error{Kind: upstream.KindClientError, Status: 422, Message: "upstream returned 422"},
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeValidation,
		},
		{
			name:       "upstream",
			err:        &upstream.Error{Kind: upstream.KindUpstream, Status: 503, Message: "retries exhausted", Attempts: 3},
			wantStatus: http.StatusServiceUnavailable,
			wantType:   TypeUpstream,
		},
		{
			name:       "upstream 500 is a bad gateway",
			err:        &upstream.Error{Kind: upstream.KindUpstream, Status: 500, Message: "retries exhausted", Attempts: 3},
			wantStatus: http.StatusBadGateway,
			wantType:   TypeUpstream,
		},
		{
			name:       "upstream 504 is kept",
			err:        &upstream.Error{Kind: upstream.KindUpstream, Status: 504, Message: "retries exhausted", Attempts: 3},
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeUpstream,
		},
		{
			name:       "upstream 304 is a bad gateway",
			err:        &upstream.Error{Kind: upstream.KindUpstream, Status: 304, Message: "upstream returned an unusable response", Attempts: 1},
			wantStatus: http.StatusBadGateway,
			wantType:   TypeUpstream,
		},
		{
			name:       "upstream without status",
			err:        &upstream.Error{Kind: upstream.KindUpstream, Message: "no response"},
			wantStatus: http.StatusBadGateway,
			wantType:   TypeUpstream,
		},
		{
			name:       "cancelled",
			err:        &upstream.Error{Kind: upstream.KindCancelled, Status: upstream.StatusClientClosedRequest},
			wantStatus: upstream.StatusClientClosedRequest,
			wantType:   TypeClientClosed,
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events/1", nil)
			res := httptest.NewRecorder()

			WriteUpstream(res, req, tt.err, "production")

			assert.Equal(t, tt.wantStatus, res.Code)
			assert.Equal(t, tt.retryAfter, res.Header().Get("Retry-After"))
			body := decode(t, res)
			assert.Equal(t, tt.wantType, body.Type)
		})
	}
}

func TestWriteUpstream_PassesDetailsThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events/1", nil)
	res := httptest.NewRecorder()

	WriteUpstream(res, req, &upstream.Error{
		Kind:     upstream.KindUpstream,
		Status:   502,
		Message:  "retries exhausted",
		Details:  json.RawMessage(`{"error":"bad gateway"}`),
		Attempts: 3,
	}, "production")

	body := decode(t, res)
	assert.Equal(t, "retries exhausted", body.Detail)
	assert.JSONEq(t, `{"error":"bad gateway"}`, string(body.Upstream))
	assert.Equal(t, 3, body.Attempts)
}
