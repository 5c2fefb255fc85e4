package httpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/reporter"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxPacketBytes caps the request body of a packet submission.
const maxPacketBytes = 1 << 20

// PacketProcessor decodes and runs a single wire packet.
type PacketProcessor interface {
	Decode(ctx context.Context, data []byte) (domain.Report, error)
}

// Server exposes health, readiness, metrics, and packet submission endpoints.
type Server struct {
	httpServer *http.Server
	processor  PacketProcessor
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
// When processor is non-nil, POST /v1/packets accepts a JSON packet and
// returns its report.
func NewServer(addr string, ready sharedobs.ReadinessChecker, processor PacketProcessor, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		processor: processor,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if processor != nil {
		mux.HandleFunc("POST /v1/packets", s.handlePacket)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handlePacket runs one packet. ?format=markdown returns the rendered ticket
// instead of the JSON report.
func (s *Server) handlePacket(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPacketBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sharedobs.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "packet too large"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	report, err := s.processor.Decode(r.Context(), body)
	if err != nil {
		s.logger.Warn("rejected packet", "error", err)
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, reporter.RenderMarkdown(report.Ticket)) //nolint:errcheck // best-effort response
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}
