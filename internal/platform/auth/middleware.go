package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/platform/httpx"
	"github.com/Ngumi22/zami-web-sub001/internal/platform/requestctx"
)

const (
	defaultRoleClaim     = "role"
	defaultFallbackRole  = RoleCustomer
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator wires Firebase token verification into HTTP middleware.
type Authenticator struct {
	verifier     TokenVerifier
	logger       *zap.Logger
	roleClaim    string
	fallbackRole string
	timeout      time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithRoleClaim overrides the custom claim used for role extraction.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithFallbackRole sets the role granted when the token carries no role claim.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout bounds each verification call.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger used when no request logger is present.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuthenticator constructs a Firebase Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		logger:       zap.NewNop(),
		roleClaim:    defaultRoleClaim,
		fallbackRole: defaultFallbackRole,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireFirebaseAuth rejects requests without a valid bearer token. When roles are given the
// identity must hold at least one of them.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			allowed = append(allowed, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized))
				return
			}
			identity, apiErr := a.verify(ctx, raw)
			if apiErr != nil {
				httpx.WriteError(ctx, w, *apiErr)
				return
			}
			if len(allowed) > 0 && !identity.HasAnyRole(allowed...) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "identity does not have required role", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

// OptionalFirebaseAuth attaches the identity when a bearer token is present and lets anonymous
// callers through. A token that fails verification is still rejected.
func (a *Authenticator) OptionalFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			raw, ok := extractBearerToken(header)
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authorization header invalid", http.StatusUnauthorized))
				return
			}
			identity, apiErr := a.verify(ctx, raw)
			if apiErr != nil {
				httpx.WriteError(ctx, w, *apiErr)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func (a *Authenticator) verify(ctx context.Context, raw string) (*Identity, *httpx.Error) {
	if a == nil || a.verifier == nil {
		err := httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized)
		return nil, &err
	}

	verifyCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
	if err != nil {
		a.loggerFor(ctx).Info("auth: firebase token rejected", zap.Error(err))
		apiErr := verificationError(err)
		return nil, &apiErr
	}

	identity := &Identity{
		UID:   token.UID,
		Email: claimAsString(token.Claims, "email"),
		Name:  claimAsString(token.Claims, "name"),
		Roles: rolesFromClaims(token.Claims, a.roleClaim),
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity, nil
}

func (a *Authenticator) loggerFor(ctx context.Context) *zap.Logger {
	if logger := requestctx.Logger(ctx); logger != requestctx.NoopLogger() {
		return logger
	}
	return a.logger
}

func verificationError(err error) httpx.Error {
	switch {
	case firebaseauth.IsIDTokenExpired(err):
		return httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized)
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return httpx.NewError("token_revoked", "firebase id token revoked", http.StatusUnauthorized)
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError("verification_unavailable", "token verification timed out", http.StatusServiceUnavailable)
	default:
		return httpx.NewError("invalid_token", "firebase id token invalid", http.StatusUnauthorized)
	}
}

func rolesFromClaims(claims map[string]any, key string) []string {
	var candidates []string
	switch v := claims[key].(type) {
	case string:
		candidates = []string{v}
	case []string:
		candidates = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	case map[string]any:
		for name, flag := range v {
			if enabled, ok := flag.(bool); ok && enabled {
				candidates = append(candidates, name)
			}
		}
	}
	// Firebase custom claims commonly set {"admin": true} at the top level.
	if enabled, ok := claims[RoleAdmin].(bool); ok && enabled {
		candidates = append(candidates, RoleAdmin)
	}

	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		role := normaliseRole(candidate)
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

func claimAsString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
