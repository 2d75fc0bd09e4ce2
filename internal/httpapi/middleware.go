package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	logx "mangabot/pkg/logx"
)

const correlationHeader = "X-Correlation-ID"

type ctxKey struct{}

// CorrelationID echoes X-Correlation-ID, generating one when absent.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// CorrelationIDFrom returns the id stored by CorrelationID, or "".
func CorrelationIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// RequestLogger logs one line per completed request.
func RequestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []logx.Field{
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", status),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("latency", time.Since(start)),
				logx.String("correlation_id", CorrelationIDFrom(r.Context())),
				logx.String("remote_addr", r.RemoteAddr),
			}
			if status >= 500 {
				log.Warn("http request", fields...)
				return
			}
			log.Debug("http request", fields...)
		})
	}
}

// BearerAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
// An empty token disables the check.
func BearerAuth(token string) func(http.Handler) http.Handler {
	tok := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		if len(tok) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if got == "" {
				const p = "Bearer "
				if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) {
					got = strings.TrimSpace(ah[len(p):])
				}
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), tok) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				respondJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
