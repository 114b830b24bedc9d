package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"comer/internal/config"
	"comer/internal/domain"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permExport           = "export"
	permSync             = "sync"
	permReadAvailability = "read:availability"
	permWriteBookings    = "write:bookings"
)

var (
	errMissingAPIKey    = errors.New("missing api key headers")
	errInvalidAPIKey    = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

// APIKeyAuth authenticates machine clients of the admin routes and the gRPC
// service by key, checks per-route permissions and rate limits each key.
type APIKeyAuth struct {
	cfg          *config.APIConfig
	clients      map[string]config.APIClientKey
	limiter      *rateLimiter
	apiKeyHeader string
	extraHeader  string
}

func NewAPIKeyAuth(cfg *config.APIConfig) *APIKeyAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &APIKeyAuth{
		cfg:          cfg,
		clients:      m,
		limiter:      newRateLimiter(cfg),
		apiKeyHeader: apiKeyHeader,
		extraHeader:  extraHeader,
	}
}

// authenticate resolves the client of apiKey. The extra secret is only
// checked for clients that have one configured.
func (a *APIKeyAuth) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" {
		return config.APIClientKey{}, errMissingAPIKey
	}
	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if client.Extra != "" && subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// permit reports whether client may use a route requiring perm.
// An empty permission list allows everything.
func permit(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func (a *APIKeyAuth) allow(key string) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}
	return a.limiter.getLimiter(key).Allow()
}

// Require guards HTTP routes with an API key holding perm.
func (a *APIKeyAuth) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader))
			extra := strings.TrimSpace(r.Header.Get(a.extraHeader))

			client, err := a.authenticate(apiKey, extra)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: domain.CodeUnauthorized})
				return
			}
			if !permit(client, perm) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: errPermissionDenied.Error(), Code: domain.CodeForbidden})
				return
			}
			if !a.allow(apiKey) {
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: errRateLimited.Error(), Code: domain.CodeRateLimited})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Unary authenticates and rate limits gRPC calls.
func (a *APIKeyAuth) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.checkGRPC(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *APIKeyAuth) checkGRPC(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKey := first(md.Get(a.apiKeyHeader))
	client, err := a.authenticate(apiKey, first(md.Get(a.extraHeader)))
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	if !permit(client, requiredPermission(fullMethod)) {
		return status.Error(codes.PermissionDenied, errPermissionDenied.Error())
	}
	if !a.allow(apiKey) {
		return status.Error(codes.ResourceExhausted, errRateLimited.Error())
	}
	return nil
}

func requiredPermission(fullMethod string) string {
	switch fullMethod {
	case methodGetLedger:
		return permReadAvailability
	case methodReserve, methodCancel:
		return permWriteBookings
	default:
		return ""
	}
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}
