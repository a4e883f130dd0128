// Package status serves the runtime loop's health and counters over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Enriquefft/tgloop/internal/logsink"
	"github.com/Enriquefft/tgloop/internal/runtime"
)

// Reporter is implemented by runtime.Loop.
type Reporter interface {
	Snapshot() runtime.Snapshot
}

// Server exposes /health and /status for a Reporter.
type Server struct {
	addr     string
	reporter Reporter
	log      logsink.Logger
	srv      *http.Server
}

// NewServer creates a status server listening on addr (e.g. ":18791").
func NewServer(addr string, reporter Reporter, log logsink.Logger) *Server {
	s := &Server{addr: addr, reporter: reporter, log: log}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the status routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run listens until ctx is cancelled, then shuts the server down. It
// returns nil after a shutdown caused by ctx.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("status listen: %w", err)
	}
	s.log.Infof("status server listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		return fmt.Errorf("status serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status serve: %w", err)
	}
	return nil
}

// handleHealth returns 200 "ok" while the loop is running and 503 with the
// state name otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.reporter.Snapshot().State
	if state != runtime.Running {
		http.Error(w, state.String(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.reporter.Snapshot()); err != nil {
		s.log.Errorf("status: encode snapshot: %v", err)
	}
}

// Fetch reads /status from a running server. addr is either a listen
// address (":18791") or a base URL.
func Fetch(ctx context.Context, client *http.Client, addr string) (runtime.Snapshot, error) {
	var snap runtime.Snapshot
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, BaseURL(addr)+"/status", nil)
	if err != nil {
		return snap, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("get status: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode status: %w", err)
	}
	return snap, nil
}

// BaseURL turns a listen address into a URL a client can reach.
func BaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}
