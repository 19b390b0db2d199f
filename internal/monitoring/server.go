package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ixperf/internal/config"
	"ixperf/internal/logging"
	"ixperf/internal/pipeline"
)

// ServiceName is the gRPC health service name of the harness
const ServiceName = "ixperf"

// Source is what the server observes. *pipeline.Pipeline implements it.
type Source interface {
	Status() pipeline.Status
	Report() (*pipeline.Report, bool)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server exposes run status, the final report, health and metrics over
// HTTP, plus the standard gRPC health service on a second port
type Server struct {
	cfg     config.ServerConfig
	source  Source
	metrics *Metrics
	health  *HealthManager
	logger  *logging.Logger

	httpServer *http.Server
	grpcServer *grpc.Server
	grpcHealth *health.Server
	httpAddr   net.Addr
	grpcAddr   net.Addr
	errCh      chan error
}

func NewServer(cfg config.ServerConfig, source Source, metrics *Metrics, logger *logging.Logger) *Server {
	hm := NewHealthManager()
	hm.RegisterChecker(NewPipelineChecker(source))
	hm.RegisterChecker(NewRuntimeChecker(cfg.MaxMemoryMB, cfg.MaxGoroutines))

	return &Server{
		cfg:        cfg,
		source:     source,
		metrics:    metrics,
		health:     hm,
		logger:     logger,
		grpcHealth: health.NewServer(),
		errCh:      make(chan error, 2),
	}
}

func (s *Server) Health() *HealthManager { return s.health }

// Router configures the HTTP routes
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(logging.RequestIDMiddleware)
	router.Use(logging.LoggingMiddleware(s.logger))

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return router
}

// Start binds both listeners and serves in the background. Port 0 picks a
// free port; HTTPAddr and GRPCAddr report the bound addresses.
func (s *Server) Start() error {
	httpLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.HTTPPort))
	if err != nil {
		return fmt.Errorf("failed to listen for HTTP: %w", err)
	}
	grpcLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.GRPCPort))
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	s.serve(httpLn, grpcLn)
	s.logger.Info("Monitoring server started",
		"http_addr", s.httpAddr.String(),
		"grpc_addr", s.grpcAddr.String(),
	)
	return nil
}

func (s *Server) serve(httpLn, grpcLn net.Listener) {
	s.httpAddr = httpLn.Addr()
	s.grpcAddr = grpcLn.Addr()

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.grpcHealth)
	s.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.grpcHealth.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	go func() {
		if err := s.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.errCh <- fmt.Errorf("gRPC server failed: %w", err)
		}
	}()
}

// Errors delivers failures of the background listeners
func (s *Server) Errors() <-chan error { return s.errCh }

func (s *Server) HTTPAddr() net.Addr { return s.httpAddr }
func (s *Server) GRPCAddr() net.Addr { return s.grpcAddr }

// Stop marks the gRPC health service NOT_SERVING and shuts both servers down
func (s *Server) Stop(ctx context.Context) error {
	s.grpcHealth.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping monitoring server")
	return s.httpServer.Shutdown(ctx)
}

// GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.source.Status())
}

// GET /api/v1/report[?format=text|structured|json]
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, ok := s.source.Report()
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "run has not completed")
		return
	}

	snap := report.Snapshot()
	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		s.writeJSONResponse(w, http.StatusOK, snap)
		return
	}

	body, err := snap.Render(format)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.health.CheckHealth(r.Context())

	code := http.StatusOK
	serving := healthpb.HealthCheckResponse_SERVING
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHealth.SetServingStatus(ServiceName, serving)
	s.writeJSONResponse(w, code, resp)
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    statusCode,
		Message: http.StatusText(statusCode),
	})
}
