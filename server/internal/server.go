package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/db"
	"github.com/gregriff/vocall/server/internal/metrics"
	"github.com/gregriff/vocall/server/internal/middleware"
	"github.com/gregriff/vocall/server/internal/routes"
	logging "github.com/ipfs/go-log/v2"
	"github.com/rs/cors"
	"golang.org/x/net/websocket"
)

var log = logging.Logger("server")

// Options configures the handler tree of the server.
type Options struct {
	Debug          bool
	AllowedOrigins []string

	// signals per second each websocket may relay, and the burst allowed above that
	SignalRate  float64
	SignalBurst int
}

// NewHandler builds the http handler serving the call API, the signaling websocket and metrics.
func NewHandler(db *sql.DB, opts Options) http.Handler {
	m := metrics.New()
	h := routes.NewRouteHandler(db, m, opts.SignalRate, opts.SignalBurst)

	mux := http.NewServeMux()
	createRoutes(mux, h, db, m)

	// apply middlewares
	var handler http.Handler = mux
	if opts.Debug {
		handler = middleware.DebugLogging(handler)
	}
	return cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{public.UserHeader, "Content-Type"},
	}).Handler(handler)
}

// CreateAndListen serves on host:port until SIGINT or SIGTERM.
func CreateAndListen(dbPath, host string, port int, opts Options) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", host, port),
		// no read timeout, it would carry over to hijacked websockets
		ReadHeaderTimeout: 500 * time.Millisecond,
		IdleTimeout:       30 * time.Second,
		Handler:           NewHandler(conn, opts),
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("starting server on %s", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server error: %w", err)
		}
		close(serveErr)
		log.Info("stopped serving new connections")
	}()

	// recieve stop signals
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	log.Info("graceful shutdown complete")
	return nil
}

// createRoutes creates the routing rules for the webserver
func createRoutes(mux *http.ServeMux, h *routes.RouteHandler, db *sql.DB, m *metrics.Metrics) {
	identified := func(fn http.HandlerFunc) http.Handler {
		return middleware.Identify(http.TimeoutHandler(fn, 30*time.Second, ""), db)
	}

	mux.Handle("POST /api/calls/start", identified(h.StartCall))
	mux.Handle("POST /api/calls/{id}/accept", identified(h.AcceptCall))
	mux.Handle("POST /api/calls/{id}/decline", identified(h.DeclineCall))
	mux.Handle("POST /api/calls/{id}/end", identified(h.EndCall))
	mux.Handle("GET /api/users/{id}", identified(h.GetUser))

	signalingHandler := websocket.Server{
		Handshake: websocketHandshake,
		Handler:   h.SignalingWS,
	}
	mux.Handle("GET /ws", middleware.Identify(signalingHandler, db))

	mux.Handle("GET /metrics", m.Handler())
}

// clients are not browsers, so their origin is not checked
func websocketHandshake(_ *websocket.Config, _ *http.Request) error { return nil }
