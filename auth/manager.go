package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// Manager hashes passwords, issues bearer tokens and verifies them into an
// identity of type T. Configuration is immutable after construction; the
// resolver is bound exactly once, either at construction or through Bind.
type Manager[T any] struct {
	cfg      Config
	method   jwt.SigningMethod
	key      []byte
	parser   *jwt.Parser
	hasher   PasswordHasher
	resolver atomic.Pointer[boundResolver[T]]
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics
}

type boundResolver[T any] struct {
	r IdentityResolver[T]
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	now    func() time.Time
	hasher PasswordHasher
	log    zerolog.Logger
	meter  metric.Meter
}

// WithClock injects the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h PasswordHasher) Option {
	return func(o *managerOptions) {
		if h != nil {
			o.hasher = h
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *managerOptions) { o.log = l }
}

// WithMeter records token counters on the given meter instead of the global
// provider.
func WithMeter(m metric.Meter) Option {
	return func(o *managerOptions) {
		if m != nil {
			o.meter = m
		}
	}
}

// NewManager validates cfg and builds a Manager. resolver may be nil, in
// which case Bind must be called before the first verification.
func NewManager[T any](cfg Config, resolver IdentityResolver[T], opts ...Option) (*Manager[T], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := managerOptions{now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.hasher == nil {
		o.hasher = NewBcryptHasher()
	}

	mt, err := newMetrics(o.meter)
	if err != nil {
		return nil, fmt.Errorf("auth: metrics: %w", err)
	}

	method := signingMethod(cfg.Algorithm)
	m := &Manager[T]{
		cfg:    cfg,
		method: method,
		key:    []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(o.now),
		),
		hasher:  o.hasher,
		now:     o.now,
		log:     o.log.With().Str("component", "auth").Logger(),
		metrics: mt,
	}
	if resolver != nil {
		m.resolver.Store(&boundResolver[T]{r: resolver})
	}
	return m, nil
}

// Bind sets the identity resolver. It succeeds once; later calls return
// ErrResolverAlreadyBound and leave the existing binding in place.
func (m *Manager[T]) Bind(resolver IdentityResolver[T]) error {
	if resolver == nil {
		return fmt.Errorf("%w: nil resolver", ErrInvalidConfig)
	}
	if !m.resolver.CompareAndSwap(nil, &boundResolver[T]{r: resolver}) {
		m.log.Warn().Msg("identity resolver already bound; ignoring re-registration")
		return ErrResolverAlreadyBound
	}
	m.log.Debug().Msg("identity resolver bound")
	return nil
}

// Bound reports whether a resolver is in place.
func (m *Manager[T]) Bound() bool {
	return m.resolver.Load() != nil
}

// Config returns a copy of the effective configuration.
func (m *Manager[T]) Config() Config {
	return m.cfg
}

func (m *Manager[T]) HashPassword(plain string) (string, error) {
	return m.hasher.Hash(plain)
}

func (m *Manager[T]) VerifyPassword(plain, hash string) bool {
	return m.hasher.Verify(plain, hash)
}

// NeedsRehash reports whether hash should be replaced after a successful
// login. Hashers without a rehash policy never ask for one.
func (m *Manager[T]) NeedsRehash(hash string) bool {
	if r, ok := m.hasher.(interface{ NeedsRehash(string) bool }); ok {
		return r.NeedsRehash(hash)
	}
	return false
}

// IssueToken signs claims with an "exp" of now plus lifetime, or plus the
// configured default when lifetime is not positive. A caller-supplied "exp"
// is overwritten; the caller's map is not modified.
func (m *Manager[T]) IssueToken(claims Claims, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = m.cfg.AccessTokenTTL
	}

	payload := make(Claims, len(claims)+1)
	maps.Copy(payload, claims)
	payload["exp"] = expiryValue(m.now().Add(lifetime))

	signed, err := jwt.NewWithClaims(m.method, payload).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	m.metrics.recordIssued(context.Background(), m.method.Alg())
	return signed, nil
}

// VerifyToken checks signature, algorithm and expiry, then hands the claims
// to the bound resolver. Token failures are reported as ErrUnauthorized
// without saying which check failed. ErrResolverNotBound is returned before
// the token is even looked at.
func (m *Manager[T]) VerifyToken(ctx context.Context, raw string) (T, error) {
	var zero T

	bound := m.resolver.Load()
	if bound == nil {
		m.metrics.recordVerified(ctx, outcomeConfig)
		m.log.Error().Err(ErrResolverNotBound).Msg("token verification before resolver binding")
		return zero, ErrResolverNotBound
	}

	claims, err := m.parse(raw)
	if err != nil {
		m.metrics.recordVerified(ctx, outcomeUnauthorized)
		return zero, ErrUnauthorized
	}

	identity, err := bound.r.Resolve(ctx, claims)
	if err != nil {
		return zero, m.classifyResolverError(ctx, err)
	}
	m.metrics.recordVerified(ctx, outcomeOK)
	return identity, nil
}

// Authenticate runs the guard logic for one request and reports the result
// as an Outcome. An empty token means no token was supplied.
func (m *Manager[T]) Authenticate(ctx context.Context, token string, required bool) Outcome[T] {
	if !m.Bound() {
		m.metrics.recordVerified(ctx, outcomeConfig)
		m.log.Error().Err(ErrResolverNotBound).Msg("authentication before resolver binding")
		return Outcome[T]{Kind: OutcomeConfigError, Err: ErrResolverNotBound}
	}

	if token == "" {
		if required {
			return Outcome[T]{Kind: OutcomeAuthError, Err: ErrUnauthorized}
		}
		return Outcome[T]{Kind: OutcomeAnonymous}
	}

	identity, err := m.VerifyToken(ctx, token)
	switch {
	case err == nil:
		return Outcome[T]{Kind: OutcomeAuthenticated, Identity: identity}
	case errors.Is(err, ErrResolverNotBound):
		return Outcome[T]{Kind: OutcomeConfigError, Err: err}
	case IsFatal(err):
		return Outcome[T]{Kind: OutcomeFatalError, Err: err}
	case required:
		return Outcome[T]{Kind: OutcomeAuthError, Err: err}
	default:
		m.log.Debug().Err(err).Msg("optional auth: treating invalid token as anonymous")
		return Outcome[T]{Kind: OutcomeAnonymous}
	}
}

// Requirement returns a reusable guard. In required mode a missing or
// invalid token is an error; in optional mode both yield no identity.
// Configuration and fatal resolver errors surface in both modes.
func (m *Manager[T]) Requirement(required bool) Dependency[T] {
	return func(ctx context.Context, token string) (T, bool, error) {
		out := m.Authenticate(ctx, token, required)
		switch out.Kind {
		case OutcomeAuthenticated:
			return out.Identity, true, nil
		case OutcomeAnonymous:
			var zero T
			return zero, false, nil
		default:
			var zero T
			return zero, false, out.Err
		}
	}
}

func (m *Manager[T]) parse(raw string) (Claims, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	token, err := m.parser.ParseWithClaims(raw, &preciseClaims{}, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*preciseClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return Claims(*claims), nil
}

func (m *Manager[T]) classifyResolverError(ctx context.Context, err error) error {
	switch {
	case IsFatal(err):
		m.metrics.recordVerified(ctx, outcomeFatal)
		m.log.Error().Err(err).Msg("identity resolver failed")
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.metrics.recordVerified(ctx, outcomeFatal)
		return Fatal(err)
	case errors.Is(err, ErrUnauthorized):
		m.metrics.recordVerified(ctx, outcomeRejected)
		return err
	default:
		m.metrics.recordVerified(ctx, outcomeRejected)
		return fmt.Errorf("%w: %w", ErrIdentityRejected, err)
	}
}

// expiryValue encodes t as a NumericDate in seconds, rounded up to the
// microsecond so a token never expires before its lifetime ends.
// Whole-second times stay integral on the wire.
func expiryValue(t time.Time) float64 {
	usec := t.UnixMicro()
	if t.Sub(time.UnixMicro(usec)) > 0 {
		usec++
	}
	return float64(usec) / 1e6
}

// preciseClaims reads "exp" at microsecond precision. jwt.MapClaims
// truncates dates to jwt.TimePrecision, which would expire fractional
// lifetimes early.
type preciseClaims map[string]any

func (c preciseClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	secs, ok := c["exp"].(float64)
	if !ok || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return jwt.MapClaims(c).GetExpirationTime()
	}
	return &jwt.NumericDate{Time: time.UnixMicro(int64(math.Round(secs * 1e6)))}, nil
}

func (c preciseClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.MapClaims(c).GetIssuedAt()
}

func (c preciseClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return jwt.MapClaims(c).GetNotBefore()
}

func (c preciseClaims) GetIssuer() (string, error) { return jwt.MapClaims(c).GetIssuer() }

func (c preciseClaims) GetSubject() (string, error) { return jwt.MapClaims(c).GetSubject() }

func (c preciseClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.MapClaims(c).GetAudience()
}
