package ranking

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/stark/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithProvisionalThreshold sets the voted/assigned ratio below which results are provisional.
func WithProvisionalThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracer replaces the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) {
		if t != nil {
			a.tracer = t
		}
	}
}
