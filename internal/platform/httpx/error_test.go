package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techmart/storefront-api/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError(CodeInvalidTransition, "cannot move\norder", http.StatusConflict).
		WithDetails(map[string]any{"from": "delivered", "to": "placed"}))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_transition", body["error"])
	assert.Equal(t, "cannot move order", body["message"])
	assert.Equal(t, float64(http.StatusConflict), body["status"])
	assert.Equal(t, "abc123", body["trace_id"])
	assert.NotContains(t, body, "request_id")
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "delivered", details["from"])
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError(CodeInternal, "boom", 0)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}
