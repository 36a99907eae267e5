package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Ngumi22/zami-web-sub001/internal/platform/httpx"
)

// GoogleJWKSURL publishes the keys signing Google service account ID tokens.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var (
	// ErrJWKSKeyNotFound is returned when the requested key ID is absent from the JWKS document.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport or decoding errors while refreshing JWKS.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const (
	defaultJWKSValidity = 15 * time.Minute
	defaultJWKSTimeout  = 5 * time.Second
)

// JWKSCache lazily fetches and caches JSON Web Keys, honouring the Cache-Control max-age of the
// key document.
type JWKSCache struct {
	url      string
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
	validity time.Duration

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	refreshMu sync.Mutex
}

// JWKSOption customises JWKSCache behaviour.
type JWKSOption func(*JWKSCache)

// NewJWKSCache constructs a JWKS cache for the provided URL.
func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	if strings.TrimSpace(url) == "" {
		url = GoogleJWKSURL
	}
	cache := &JWKSCache{
		url:      url,
		client:   &http.Client{Timeout: defaultJWKSTimeout},
		logger:   zap.NewNop(),
		now:      time.Now,
		validity: defaultJWKSValidity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// WithJWKSHTTPClient overrides the HTTP client used to fetch JWKS documents.
func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSLogger sets the logger for JWKS refreshes.
func WithJWKSLogger(logger *zap.Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJWKSValidity sets how long keys are trusted when the response carries no max-age.
func WithJWKSValidity(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d > 0 {
			c.validity = d
		}
	}
}

// WithJWKSClock injects a custom time source.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// Keyfunc returns a jwt.Keyfunc backed by the cache.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key resolves the public key for kid. An unknown kid forces one refresh to pick up rotated keys.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if key, fresh := c.cached(kid); fresh && key != nil {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, _ := c.cached(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cached(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fresh := len(c.keys) > 0 && c.now().Before(c.expiry)
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, fresh
	}
	return jwk.Key, fresh
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID != "" && jwk.Valid() {
			keys[jwk.KeyID] = jwk
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := c.validity
	if maxAge := parseMaxAge(resp.Header.Get("Cache-Control")); maxAge > 0 {
		validity = maxAge
	}

	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()

	c.logger.Debug("auth: refreshed jwks", zap.Int("keys", len(keys)), zap.Duration("validity", validity))
	return nil
}

func parseMaxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// OIDCValidator validates Google-signed OIDC/IAP tokens presented by schedulers and other
// internal callers.
type OIDCValidator struct {
	cache         *JWKSCache
	logger        *zap.Logger
	now           func() time.Time
	verifications metric.Int64Counter
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// NewOIDCValidator constructs an OIDCValidator.
func NewOIDCValidator(cache *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	validator := &OIDCValidator{
		cache:  cache,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	return validator
}

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCMeter records verification outcomes on an "auth.oidc.verifications" counter.
func WithOIDCMeter(meter metric.Meter) OIDCOption {
	return func(v *OIDCValidator) {
		if meter == nil {
			return
		}
		counter, err := meter.Int64Counter("auth.oidc.verifications", metric.WithDescription("OIDC token verification outcomes"))
		if err == nil {
			v.verifications = counter
		}
	}
}

// WithOIDCClock injects a custom clock.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// ServiceIdentity captures details about the authenticated service principal.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
	Claims   map[string]any
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by the middleware.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

type oidcFailure struct {
	reason string
	err    httpx.Error
}

// RequireOIDC enforces a valid Google-signed token whose audience matches audience and, when
// issuers is non-empty, whose issuer is listed.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowedIssuers := make([]string, 0, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers = append(allowedIssuers, issuer)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, failure := v.validate(ctx, r, audience, allowedIssuers)
			if failure != nil {
				v.record(ctx, false, failure.reason)
				v.logger.Info("auth: oidc verification failed", zap.String("reason", failure.reason))
				httpx.WriteError(ctx, w, failure.err)
				return
			}
			v.record(ctx, true, "ok")
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) validate(ctx context.Context, r *http.Request, audience string, issuers []string) (*ServiceIdentity, *oidcFailure) {
	if audience == "" || v == nil || v.cache == nil {
		return nil, &oidcFailure{"not_configured", httpx.NewError("verification_unavailable", "oidc verification unavailable", http.StatusServiceUnavailable)}
	}
	raw := extractOIDCToken(r)
	if raw == "" {
		return nil, &oidcFailure{"token_missing", httpx.NewError("unauthenticated", "oidc token missing", http.StatusUnauthorized)}
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if _, err := parser.ParseWithClaims(raw, claims, v.cache.Keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, &oidcFailure{"jwks_unavailable", httpx.NewError("verification_unavailable", "oidc signing keys unavailable", http.StatusServiceUnavailable)}
		}
		return nil, &oidcFailure{"token_invalid", httpx.NewError("invalid_token", "oidc token verification failed", http.StatusUnauthorized)}
	}

	issuer, _ := claims["iss"].(string)
	if len(issuers) > 0 && !slices.Contains(issuers, issuer) {
		return nil, &oidcFailure{"issuer_mismatch", httpx.NewError("invalid_token", "oidc issuer mismatch", http.StatusUnauthorized)}
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, &oidcFailure{"audience_mismatch", httpx.NewError("invalid_token", "oidc audience mismatch", http.StatusUnauthorized)}
	}

	subject, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	return &ServiceIdentity{
		Subject:  subject,
		Email:    email,
		Issuer:   issuer,
		Audience: audience,
		Claims:   map[string]any(claims),
	}, nil
}

func (v *OIDCValidator) record(ctx context.Context, success bool, reason string) {
	if v == nil || v.verifications == nil {
		return
	}
	v.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	))
}

func extractOIDCToken(r *http.Request) string {
	if bearer, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return bearer
	}
	return strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
}
