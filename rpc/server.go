package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"genomarket/native/common"
	"genomarket/runtime"
)

const (
	defaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 10 * time.Second
)

// Config configures the HTTP API.
type Config struct {
	Address           string
	RequestsPerSecond float64
	Burst             int
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	MaxBodyBytes      int64
	// AdminSecret signs admin bearer tokens. Admin routes are not mounted
	// without it.
	AdminSecret []byte
	AdminIssuer string
}

// Server exposes the runtime over HTTP.
type Server struct {
	cfg     Config
	runtime *runtime.Runtime
	pauses  *common.PauseSet
	hub     *Hub
	limiter *rateLimiter
	auth    *adminAuth
	logger  *slog.Logger
	http    *http.Server
}

// NewServer builds the API. pauses may be nil, in which case the admin pause
// routes report that pausing is unsupported.
func NewServer(rt *runtime.Runtime, pauses *common.PauseSet, hub *Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		cfg:     cfg,
		runtime: rt,
		pauses:  pauses,
		hub:     hub,
		limiter: newRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:  logger.With("component", "rpc"),
	}
	if len(cfg.AdminSecret) > 0 {
		s.auth = newAdminAuth(cfg.AdminSecret, cfg.AdminIssuer)
	}
	return s
}

// Handler returns the routed API, instrumented with OpenTelemetry.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.observe("tx")).Post("/tx", s.handleSubmit)
	r.With(s.observe("meta")).Get("/calls", s.handleCalls)

	r.Route("/pallets", func(pr chi.Router) {
		pr.Use(s.observe("pallets"))
		pr.Get("/", s.handlePallets)
		pr.Get("/{pallet}/config", s.handleSettlementConfig)
		pr.Get("/{pallet}/orders/{id}", s.handleOrder)
		pr.Get("/{pallet}/orders/{id}/escrow", s.handleEscrow)
		pr.Get("/{pallet}/customers/{address}/orders", s.handleCustomerOrders)
		pr.Get("/{pallet}/customers/{address}/last-order", s.handleLastOrder)
		pr.Get("/{pallet}/sellers/{address}/orders", s.handleSellerOrders)
	})

	r.Group(func(gr chi.Router) {
		gr.Use(s.observe("state"))
		gr.Get("/accounts/{address}", s.handleAccount)
		gr.Get("/assets/{id}", s.handleAsset)
		gr.Get("/assets/{id}/balances/{address}", s.handleAssetBalance)
		gr.Get("/tracking/{kind}/{id}", s.handleTracking)
		gr.Get("/sellers/{address}", s.handleSeller)
		gr.Get("/sellers/{address}/offerings", s.handleSellerOfferings)
		gr.Get("/offerings/{id}", s.handleOffering)
	})

	if s.hub != nil {
		r.Get("/events", s.handleEvents)
	}

	if s.auth != nil {
		r.Route("/admin", func(ar chi.Router) {
			ar.Use(s.observe("admin"))
			ar.Use(s.auth.Middleware(scopeAdmin))
			ar.Get("/pauses", s.handleListPauses)
			ar.Put("/pauses/{module}", s.handleSetPause)
		})
	}

	return otelhttp.NewHandler(r, "genomarket.rpc")
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", "address", s.cfg.Address)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
