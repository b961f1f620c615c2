package api

import (
	"golang.org/x/time/rate"

	"github.com/okian/stark/pkg/logger"
)

// Default per-judge save budget.
const (
	defaultSaveRate  = rate.Limit(5)
	defaultSaveBurst = 10
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithSaveRate sets the sustained per-judge save rate and its burst. A rate
// of zero disables limiting.
func WithSaveRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond < 0 {
			return
		}
		if perSecond == 0 {
			s.saveRate = rate.Inf
		} else {
			s.saveRate = rate.Limit(perSecond)
		}
		if burst > 0 {
			s.saveBurst = burst
		}
	}
}

// WithLogger sets a custom logger for the handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
