// Package rpc serves the read-only HTTP query API over the engines: curve
// cursor and bucket prices, purchase quotes, the asset registry, bond books
// and staking positions.
package rpc

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ibco/native/assets"
	"ibco/native/bonds"
	"ibco/native/curve"
	"ibco/native/liquidity"
	"ibco/native/offering"
	"ibco/native/staking"
	"ibco/observability"
)

const requestTimeout = 10 * time.Second

// Viewer runs fn against a consistent snapshot of engine state.
type Viewer interface {
	View(fn func() error) error
}

type CurveReader interface {
	State() (curve.State, error)
	Schedule() *curve.Schedule
}

type Quoter interface {
	Quote(ctx context.Context, amountIn *uint256.Int, symbol string) (offering.Result, error)
}

type AssetLister interface {
	List() ([]assets.Entry, error)
}

type BondReader interface {
	Book(owner common.Address) (bonds.Book, error)
	ClaimableReward(ctx context.Context, owner common.Address) (bonds.Settlement, error)
	State() (bonds.LedgerState, error)
}

type StakeReader interface {
	Position(owner common.Address) (staking.Position, bool, error)
	State() (staking.PoolState, error)
}

// Config wires the query API to its backends. Staking and Ranges are
// optional; their routes answer 404 when unset.
type Config struct {
	Host    Viewer
	Curve   CurveReader
	Quoter  Quoter
	Assets  AssetLister
	Bonds   BondReader
	Staking StakeReader
	// Ranges builds a range request for a tick from the node's liquidity
	// settings.
	Ranges func(tick int64) liquidity.RangeRequest
	// RateLimits maps LimitQuote and LimitQuery to per client limits. A
	// missing class is not limited.
	RateLimits map[string]RateLimit
	Metrics    http.Handler
	Logger     *slog.Logger
}

type server struct {
	cfg    Config
	log    *slog.Logger
	tracer trace.Tracer
}

// NewRouter builds the chi router serving the query API.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{
		cfg:    cfg,
		log:    logger.With(slog.String("component", "rpc")),
		tracer: otel.Tracer("ibco/rpc"),
	}

	limiter := NewRateLimiter(cfg.RateLimits)
	r := chi.NewRouter()
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/v1", func(v1 chi.Router) {
		v1.With(limiter.Middleware(LimitQuote)).Get("/quote", s.handleQuote)
		v1.Group(func(q chi.Router) {
			q.Use(limiter.Middleware(LimitQuery))
			q.Get("/curve", s.handleCurve)
			q.Get("/curve/buckets/{index}", s.handleBucket)
			q.Get("/assets", s.handleAssets)
			q.Get("/bonds/{owner}", s.handleBonds)
			q.Get("/staking/{owner}", s.handleStaking)
			q.Get("/liquidity/range", s.handleRange)
		})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	return r
}

// observe records latency, status and a span per request under the matched
// route pattern.
func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.Start(r.Context(), r.URL.Path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
		))
		defer span.End()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", recorder.status))
		observability.RPC().Observe(route, recorder.status, time.Since(start))
		if recorder.kind != "" || recorder.status >= http.StatusInternalServerError {
			observability.RPC().RecordError(route, recorder.status, recorder.kind)
		}
		s.log.Debug("request served",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", recorder.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	kind   string
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// view runs fn under the host snapshot when one is configured.
func (s *server) view(fn func() error) error {
	if s.cfg.Host == nil {
		return fn()
	}
	return s.cfg.Host.View(fn)
}

func (s *server) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout)
}
