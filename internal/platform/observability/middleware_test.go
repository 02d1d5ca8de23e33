package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/techmart/storefront-api/internal/platform/auth"
	"github.com/techmart/storefront-api/internal/platform/requestctx"
)

func TestRecoveryMiddlewareWritesJSON500(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"internal_server_error"`)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	chain := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})))

	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1/status", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.EqualValues(t, http.StatusConflict, entries[0].ContextMap()["status"])
}

func TestIdentityLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := requestctx.WithLogger(context.Background(), zap.New(core))
	ctx = auth.WithIdentity(ctx, &auth.Identity{Subject: "asha@example.com"})

	handler := IdentityLoggerMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("handled")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me/orders", nil).WithContext(ctx))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "asha@example.com", logs.All()[0].ContextMap()["user_id"])
}

func TestServiceLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logFn := ServiceLogger(zap.New(core))

	logFn(context.Background(), "order.created", map[string]any{"order_id": "ord_1"})
	logFn(context.Background(), "payments.provider.fallback", map[string]any{"error": errors.New("timeout")})

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, zapcore.InfoLevel, all[0].Level)
	assert.Equal(t, "ord_1", all[0].ContextMap()["order_id"])
	assert.Equal(t, zapcore.WarnLevel, all[1].Level)
	assert.Equal(t, "timeout", all[1].ContextMap()["error"])
}

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", sc.TraceID().String())
	assert.Equal(t, "0000000000000001", sc.SpanID().String())
	assert.True(t, sc.IsSampled())

	_, ok = parseCloudTraceContext("short/1")
	assert.False(t, ok)
	_, ok = parseCloudTraceContext("105445aa7843bc8bf206b12000100000/notanumber")
	assert.False(t, ok)
}
