package service

import (
	"time"

	"github.com/okian/stark/internal/adapters/repository"
	"github.com/okian/stark/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backend. Without it the service runs on an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProvisionalThreshold sets the voted/assigned ratio below which a result is provisional.
func WithProvisionalThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

// WithAuditQueueSize sets the capacity of the audit queue.
func WithAuditQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.auditQueueSize = size
		}
	}
}

// WithAuditWorkers sets the number of audit writer goroutines.
func WithAuditWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.auditWorkers = count
		}
	}
}

// WithMaxAuditLimit caps the page size of AuditLog.
func WithMaxAuditLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxAuditLimit = limit
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the audit queue to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}
