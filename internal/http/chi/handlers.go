package chi

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/dmz-exchange/exchange"
	"github.com/marcelsud/dmz-exchange/internal/requestid"
	"github.com/marcelsud/dmz-exchange/signature"
	"github.com/rs/zerolog"
)

const (
	defaultMaxBodyBytes   = 1 << 20
	defaultRequestTimeout = 2 * time.Minute
)

// Options tunes the router
type Options struct {
	MaxBodyBytes   int64
	RequestTimeout time.Duration

	// InboundSecret, when set, is required on POST /dmz/messages
	InboundSecret *signature.Secret

	// Metrics serves GET /metrics when set
	Metrics http.Handler
}

// Handlers sets up the node API routes
func Handlers(ctx context.Context, svc exchange.UseCase, logger zerolog.Logger, opts Options) *chi.Mux {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Method(http.MethodPost, "/messages", postMessages(svc, opts.MaxBodyBytes))
	r.Method(http.MethodPost, "/dmz/messages", postDMZMessages(svc, opts.MaxBodyBytes, opts.InboundSecret))

	return r
}

// withRequestID assigns a fresh id to every request. Caller-supplied ids are ignored.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestid.New()
		ctx := requestid.WithID(r.Context(), id)
		ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverer turns a panic into the standard 500 failure envelope
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			oplog := httplog.LogEntry(r.Context())
			oplog.Error().Interface("panic", rvr).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			writeFailure(w, r, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
