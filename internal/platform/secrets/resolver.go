package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultCacheTTL     = 10 * time.Minute
	metricNamespace     = "github.com/Ngumi22/zami-web-sub001/internal/platform/secrets"
)

// ErrSecretNotFound is returned when neither Secret Manager nor the fallback file knows the secret.
var ErrSecretNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver turns secret://name[?version=N&project=P] references into values. Values are cached
// for a bounded TTL. When Secret Manager cannot be reached, or no project is configured, values are
// read from a local dotenv-formatted file keyed by secret name.
type Resolver struct {
	client     accessClient
	ownsClient bool
	projectID  string
	ttl        time.Duration
	now        func() time.Time
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cachedValue

	latency metric.Float64Histogram
}

type cachedValue struct {
	value     string
	expiresAt time.Time
}

type resolverConfig struct {
	projectID    string
	ttl          time.Duration
	fallbackPath string
	logger       *zap.Logger
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
	now          func() time.Time
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithProject sets the Secret Manager project used when a reference carries no project override.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithCacheTTL bounds how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *resolverConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithFallbackFile overrides the local fallback file path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) { cfg.logger = logger }
}

// WithMeter injects the meter used for the fetch latency histogram.
func WithMeter(meter metric.Meter) Option {
	return func(cfg *resolverConfig) { cfg.meter = meter }
}

// WithClient injects a Secret Manager client.
func WithClient(client accessClient) Option {
	return func(cfg *resolverConfig) { cfg.client = client }
}

// WithClientOptions forwards options to the Secret Manager client constructor.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) Option {
	return func(cfg *resolverConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// NewResolver constructs a Resolver. A Secret Manager client is only dialled when a project is
// configured and none was injected; dial failures leave the resolver in fallback-only mode.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{
		ttl:          defaultCacheTTL,
		fallbackPath: defaultFallbackPath,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	r := &Resolver{
		client:       cfg.client,
		projectID:    cfg.projectID,
		ttl:          cfg.ttl,
		now:          cfg.now,
		logger:       cfg.logger,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]cachedValue),
	}

	latency, err := cfg.meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	} else {
		r.latency = latency
	}

	if r.client == nil && r.projectID != "" {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; using fallback file", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r != nil && r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value for ref.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.cacheKey()

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && r.now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.value, nil
	}
	r.mu.Unlock()

	start := time.Now()
	value, source, err := r.fetch(ctx, parsed)
	r.recordLatency(ctx, time.Since(start), source, err)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[key] = cachedValue{value: value, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
	return value, nil
}

// Invalidate drops cached values for ref so the next resolve fetches again.
func (r *Resolver) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, parsed.cacheKey())
	r.mu.Unlock()
}

func (r *Resolver) fetch(ctx context.Context, ref reference) (string, string, error) {
	project := ref.project
	if project == "" {
		project = r.projectID
	}

	if project != "" && r.client != nil {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		switch {
		case err == nil && resp.GetPayload() != nil:
			return string(resp.GetPayload().GetData()), "remote", nil
		case err == nil:
			return "", "remote", fmt.Errorf("secrets: empty payload for %s", name)
		case status.Code(err) == codes.NotFound:
			return "", "remote", fmt.Errorf("%w: %s", ErrSecretNotFound, ref.name)
		case !fallbackEligible(err):
			return "", "remote", fmt.Errorf("secrets: fetch %s: %w", name, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("secret", ref.name), zap.Error(err))
	}

	if value, ok := r.lookupFallback(ref.name); ok {
		return value, "fallback", nil
	}
	return "", "fallback", fmt.Errorf("%w: %s", ErrSecretNotFound, ref.name)
}

func (r *Resolver) lookupFallback(name string) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback = map[string]string{}
		if r.fallbackPath == "" {
			return
		}
		values, err := godotenv.Read(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
			}
			return
		}
		r.fallback = values
	})
	value, ok := r.fallback[name]
	return value, ok
}

func (r *Resolver) recordLatency(ctx context.Context, d time.Duration, source string, err error) {
	if r.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	r.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

type reference struct {
	name    string
	version string
	project string
}

func (r reference) cacheKey() string {
	return r.project + "/" + r.name + "#" + r.version
}

func parseReference(ref string) (reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" || strings.Contains(name, "/") {
		return reference{}, fmt.Errorf("secrets: invalid secret name in %q", ref)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		name:    name,
		version: version,
		project: strings.TrimSpace(query.Get("project")),
	}, nil
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
