package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/stark/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		statusCodeStr := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if wrapped.statusCode >= statusBadRequest {
			metrics.RecordErrorByComponent("http_"+endpoint, getErrorType(wrapped.statusCode))
		}
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return "auth"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Bounds on how long an untouched bucket is kept.
const (
	minLimiterIdle = time.Minute
	maxLimiterIdle = 24 * time.Hour
)

// saveLimiter holds one token bucket per judge. A bucket left alone long
// enough to refill is dropped on the next sweep.
type saveLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	buckets   map[string]*judgeBucket
}

type judgeBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newSaveLimiter(limit rate.Limit, burst int) *saveLimiter {
	l := &saveLimiter{
		limit:   limit,
		burst:   burst,
		idle:    minLimiterIdle,
		now:     time.Now,
		buckets: make(map[string]*judgeBucket),
	}
	if limit > 0 && limit != rate.Inf {
		refill := float64(burst) / float64(limit)
		switch {
		case refill >= maxLimiterIdle.Seconds():
			l.idle = maxLimiterIdle
		case refill > minLimiterIdle.Seconds():
			l.idle = time.Duration(refill * float64(time.Second))
		}
	}
	l.lastSweep = l.now()
	return l
}

// Allow consumes one token from judgeID's bucket.
func (l *saveLimiter) Allow(judgeID string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
		l.lastSweep = now
	}
	b, ok := l.buckets[judgeID]
	if !ok {
		b = &judgeBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[judgeID] = b
	}
	b.seen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle for at least l.idle. Callers hold l.mu.
func (l *saveLimiter) sweep(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, id)
		}
	}
}

// size reports how many buckets are held.
func (l *saveLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
