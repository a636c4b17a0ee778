package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/baccarat-roads/internal/engine"
)

// requestTrace collects per-request fields that handlers learn after the
// body is decoded. Raw seeds never reach it, only their fingerprints.
type requestTrace struct {
	serverHash string
	clientHash string
}

type traceKey struct{}

func traceFrom(ctx context.Context) *requestTrace {
	t, _ := ctx.Value(traceKey{}).(*requestTrace)
	return t
}

// noteSeeds attaches seed fingerprints to the access log line of r.
func noteSeeds(r *http.Request, seeds engine.Seeds) {
	if t := traceFrom(r.Context()); t != nil {
		t.serverHash = seedFingerprint(seeds.Server)
		t.clientHash = seedFingerprint(seeds.Client)
	}
}

// seedFingerprint is a short prefix of the seed's SHA256 commitment.
func seedFingerprint(seed string) string {
	if seed == "" {
		return "-"
	}
	return engine.HashServerSeed(seed)[:12]
}

// RequestLogger writes one access line per request, after the handler
// returns, including any seed fingerprints the handler noted.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		trace := &requestTrace{}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), traceKey{}, trace)))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		line := "http method=%s route=%s status=%d duration=%s bytes=%d request_id=%s remote=%s"
		args := []any{r.Method, route, ww.Status(), time.Since(start).Round(time.Microsecond),
			ww.BytesWritten(), middleware.GetReqID(r.Context()), r.RemoteAddr}
		if trace.serverHash != "" {
			line += " server_hash=%s client_hash=%s"
			args = append(args, trace.serverHash, trace.clientHash)
		}
		s.logger.Printf(line, args...)
	})
}

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	corsHeaders = []string{"Content-Type", "Authorization", "X-Ingest-Token"}
)

// CORSMiddleware allows any origin. Preflights answer without reaching
// the router.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	methods := strings.Join(corsMethods, ", ")
	headers := strings.Join(corsHeaders, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		h.Set("Access-Control-Expose-Headers", "X-Engine-Version, X-Request-Id")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
