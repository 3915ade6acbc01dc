package auth

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/adeilh/corekit/auth"

// verification outcomes recorded on auth.tokens.verified
const (
	outcomeOK           = "ok"
	outcomeUnauthorized = "unauthorized"
	outcomeRejected     = "rejected"
	outcomeConfig       = "config"
	outcomeFatal        = "fatal"
)

type metrics struct {
	issued   metric.Int64Counter
	verified metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	issued, err := meter.Int64Counter("auth.tokens.issued",
		metric.WithDescription("Bearer tokens signed by the manager"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}
	verified, err := meter.Int64Counter("auth.tokens.verified",
		metric.WithDescription("Bearer token verification attempts by outcome"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{issued: issued, verified: verified}, nil
}

func (m *metrics) recordIssued(ctx context.Context, alg string) {
	m.issued.Add(ctx, 1, metric.WithAttributes(attribute.String("alg", alg)))
}

func (m *metrics) recordVerified(ctx context.Context, outcome string) {
	m.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
