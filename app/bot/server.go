package bot

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger func(ctx context.Context) error

// NewRouter serves the health probes and, when webhook is non-nil, the
// Telegram webhook at webhookPath.
func NewRouter(logger *zap.Logger, deps map[string]Pinger, webhookPath string, webhook http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods(http.MethodGet)
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		for name, ping := range deps {
			if err := ping(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})).Methods(http.MethodGet)

	if webhook != nil {
		r.Handle(webhookPath, webhook).Methods(http.MethodPost)
	}
	return r
}

// NewServer builds the HTTP server.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
