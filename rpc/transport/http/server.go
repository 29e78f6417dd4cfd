package http

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	"github.com/ValentinKolb/dAudit/rpc/transport/base"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// RPCPath is the route serialized messages are posted to
	RPCPath = "/rpc"

	shutdownTimeout = 5 * time.Second
)

func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	t.config = config

	lc := net.ListenConfig{Control: base.ListenControl(config.ReuseAddr)}
	listener, err := lc.Listen(context.Background(), "tcp", config.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	server := &http.Server{
		Handler:     t.Handler(),
		ReadTimeout: time.Duration(config.TimeoutSecond) * time.Second,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return listener.Close()
	}
	t.server = server
	t.mu.Unlock()

	base.Logger.Infof("Starting HTTP server on %s", config.Endpoint)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *httpServerTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	server := t.server
	t.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// Handler returns the routes of the server: the rpc endpoint, a health check and the
// prometheus metrics of the process
func (t *httpServerTransport) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware)
	if t.config.LogLevel == "debug" {
		r.Use(loggerMiddleware)
	}

	r.Post(RPCPath, t.handleRequest)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return r
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleRequest handles incoming HTTP requests and writes the response to the writer
func (t *httpServerTransport) handleRequest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	resp := t.handler(body)

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err = w.Write(resp); err != nil {
		base.Logger.Errorf("Failed to write response: %v", err)
	}
}

// --------------------------------------------------------------------------
// Middleware
// --------------------------------------------------------------------------

// responseWriter is a custom ResponseWriter that captures status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware logs every request with its status and duration
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(rw, r)

		base.Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// recoverMiddleware turns a panicking handler into a 500
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				base.Logger.Errorf("Panic while handling %s %s: %v", r.Method, r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
