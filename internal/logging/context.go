package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger carried on ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext returns a context carrying the given logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext stamps ctx with a fresh trace ID and returns the scoped logger.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// AnalysisContext scopes a logger to one timeframe's analysis pipeline.
func AnalysisContext(timeframe string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"timeframe": timeframe,
	}).WithComponent("analysis")
}

// AdvisorContext scopes a logger to one advisor call.
func AdvisorContext(provider, model, timeframe string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"provider":  provider,
		"model":     model,
		"timeframe": timeframe,
	}).WithComponent("advisor")
}

// SignalContext scopes a logger to a trading signal.
func SignalContext(symbol, side string, confidence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"confidence": confidence,
	}).WithComponent("signal")
}

// ReconcilerContext scopes a logger to one reconciliation pass.
func ReconcilerContext(symbol string, liveSide string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":    symbol,
		"live_side": liveSide,
	}).WithComponent("reconciler")
}

// ExecutorContext scopes a logger to execution of one plan action.
func ExecutorContext(symbol, action string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"action": action,
	}).WithComponent("executor")
}

// RiskContext scopes a logger to a position sizing decision.
func RiskContext(symbol string, riskPercent, positionSize float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":        symbol,
		"risk_percent":  riskPercent,
		"position_size": positionSize,
	}).WithComponent("risk")
}

// APIContext scopes a logger to one inbound HTTP command.
func APIContext(method, path string, statusCode int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
	}).WithComponent("api")
}

// ExchangeContext scopes a logger to one exchange-adapter call.
func ExchangeContext(endpoint string, params map[string]interface{}) *Logger {
	l := Default().WithFields(map[string]interface{}{
		"endpoint": endpoint,
	}).WithComponent("exchange")

	for k, v := range params {
		if k != "signature" && k != "apiKey" && k != "secretKey" {
			l = l.WithField(k, v)
		}
	}
	return l
}

// NotificationContext scopes a logger to one notification-channel send.
func NotificationContext(channel, recipient string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"channel":   channel,
		"recipient": recipient,
	}).WithComponent("notification")
}

// HTTPMiddleware adds request-scoped logging to the admin HTTP surface.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		}).WithComponent("http")

		ctx := NewContext(r.Context(), l)
		r = r.WithContext(ctx)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		l.WithDuration(time.Since(start)).WithField("status_code", wrapped.statusCode).Info("request completed")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
