package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"comer/internal/config"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "reader-key", Extra: "reader-extra", Name: "reader", Permissions: []string{permReadAvailability}},
				{Key: "admin-key", Name: "admin"},
				{Key: "export-key", Name: "exporter", Permissions: []string{permExport}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestAPIKeyAuth_Unary(t *testing.T) {
	cfg := testAPIConfig()
	interceptor := NewAPIKeyAuth(&cfg).Unary()

	handler := func(_ context.Context, _ any) (any, error) {
		return "ok", nil
	}
	readInfo := &grpc.UnaryServerInfo{FullMethod: methodGetLedger}
	writeInfo := &grpc.UnaryServerInfo{FullMethod: methodReserve}

	incoming := func(kv ...string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
	}

	t.Run("Success", func(t *testing.T) {
		resp, err := interceptor(incoming("x-api-key", "reader-key", "x-api-extra", "reader-extra"), "req", readInfo, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", readInfo, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("MissingKey", func(t *testing.T) {
		_, err := interceptor(incoming(), "req", readInfo, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "nope"), "req", readInfo, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("WrongExtra", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "reader-key", "x-api-extra", "bad"), "req", readInfo, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "reader-key", "x-api-extra", "reader-extra"), "req", writeInfo, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		_, err := interceptor(incoming("x-api-key", "admin-key"), "req", writeInfo, handler)
		assert.NoError(t, err)
	})
}

func TestAPIKeyAuth_RateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	interceptor := NewAPIKeyAuth(&cfg).Unary()

	handler := func(_ context.Context, _ any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: methodGetLedger}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "admin-key"))

	_, err := interceptor(ctx, "req", info, handler)
	assert.NoError(t, err)
	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestAPIKeyAuth_Require(t *testing.T) {
	cfg := testAPIConfig()
	guarded := NewAPIKeyAuth(&cfg).Require(permExport)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		key    string
		extra  string
		status int
	}{
		{"no key", "", "", http.StatusUnauthorized},
		{"unknown key", "nope", "", http.StatusUnauthorized},
		{"missing permission", "reader-key", "reader-extra", http.StatusForbidden},
		{"export permission", "export-key", "", http.StatusNoContent},
		{"allow all", "admin-key", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/x", http.NoBody)
			if tt.key != "" {
				req.Header.Set("X-Api-Key", tt.key)
			}
			if tt.extra != "" {
				req.Header.Set("X-Api-Extra", tt.extra)
			}
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, permReadAvailability, requiredPermission(methodGetLedger))
	assert.Equal(t, permWriteBookings, requiredPermission(methodReserve))
	assert.Equal(t, permWriteBookings, requiredPermission(methodCancel))
	assert.Equal(t, "", requiredPermission("/grpc.health.v1.Health/Check"))
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}

	chain := ChainUnaryInterceptors(mk("first"), mk("second"))
	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{}, func(_ context.Context, req any) (any, error) {
		order = append(order, "handler")
		return req, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "req", resp)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}
