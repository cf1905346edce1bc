// Package api implements HTTP routing, input validation, content negotiation,
// and error mapping for every route the gateway exposes.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/jetgate/jetgate/internal/auth"
	"github.com/jetgate/jetgate/internal/obs"
	"github.com/jetgate/jetgate/internal/reqctx"
	"github.com/jetgate/jetgate/pkg/fail"
)

// HTTPMiddlewareFunc intercepts a request/response pair before the real handler runs.
type HTTPMiddlewareFunc func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc)

// HTTPMiddlewareFuncs is an ordered middleware pipeline.
type HTTPMiddlewareFuncs []HTTPMiddlewareFunc

// Append adds functions to the end of the pipeline.
func (funcs HTTPMiddlewareFuncs) Append(functions ...HTTPMiddlewareFunc) HTTPMiddlewareFuncs {
	return append(funcs, functions...)
}

// Then collapses the pipeline into a single handler, with handler as the innermost call.
func (funcs HTTPMiddlewareFuncs) Then(handler http.HandlerFunc) http.HandlerFunc {
	for i := len(funcs) - 1; i >= 0; i-- {
		mw := funcs[i]
		next := handler
		handler = func(w http.ResponseWriter, req *http.Request) {
			mw(w, req, next)
		}
	}
	return handler
}

// recoverFromPanic turns a panicking handler into a 500 instead of a dead connection.
func recoverFromPanic(logger *slog.Logger) HTTPMiddlewareFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic handling request", "path", req.URL.Path, "recovered", r)
				writeError(w, fail.Unexpected("internal error"))
			}
		}()
		next(w, req)
	}
}

// restoreTraceID assigns every request a trace id, carrying over X-Request-ID when present.
func restoreTraceID() HTTPMiddlewareFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		traceID := req.Header.Get("X-Request-ID")
		if traceID == "" {
			traceID = reqctx.NewTraceID()
		}
		ctx := reqctx.WithTraceID(req.Context(), traceID)
		w.Header().Set("X-Request-ID", traceID)
		next(w, req.WithContext(ctx))
	}
}

// restoreAuthorization reads the standard Authorization header, falling back to
// the websocket-protocol-smuggled form browsers are forced to use on upgrade
// requests.
func restoreAuthorization() HTTPMiddlewareFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		header := strings.TrimSpace(req.Header.Get("Authorization"))
		if header == "" {
			header = readWebsocketAuth(req)
		}
		ctx := reqctx.WithAuthorization(req.Context(), header)
		next(w, req.WithContext(ctx))
	}
}

func readWebsocketAuth(req *http.Request) string {
	for _, v := range req.Header["Sec-Websocket-Protocol"] {
		_, value, found := strings.Cut(v, "Authorization.")
		if !found {
			continue
		}
		if rest, ok := strings.CutPrefix(value, "Bearer."); ok {
			return "Bearer " + rest
		}
		return value
	}
	return ""
}

// authenticate enforces the Request Gate's decision for protected routes.
func authenticate(gate *auth.Gate) HTTPMiddlewareFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		if !auth.IsProtected(req.URL.Path) {
			next(w, req)
			return
		}
		if err := gate.Authenticate(reqctx.Authorization(req.Context())); err != nil {
			writeError(w, err)
			return
		}
		next(w, req)
	}
}

// applyCorsHeaders wires in rs/cors, or no-ops when CORS isn't configured.
func applyCorsHeaders(c *cors.Cors) HTTPMiddlewareFunc {
	if c == nil {
		return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
			next(w, req)
		}
	}
	return c.ServeHTTP
}

// instrument records request counts/latency for every route.
func instrument() HTTPMiddlewareFunc {
	return func(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		route := routeLabel(req)
		timer := newStatusRecorder(w)
		start := nowFunc()
		next(timer, req)
		obs.RequestsTotal.WithLabelValues(route, statusClass(timer.status)).Inc()
		obs.RequestDuration.WithLabelValues(route).Observe(sinceSeconds(start))
	}
}

func routeLabel(req *http.Request) string {
	return req.URL.Path
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := fail.Status(err)
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
