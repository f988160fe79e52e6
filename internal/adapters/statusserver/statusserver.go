// Package statusserver exposes a small read-only HTTP surface: per-shard
// counts and the Prometheus metrics endpoint. Grounded on the teacher's
// web/router.go (gorilla/mux routing, promhttp.Handler on /metrics).
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mwzzzh/devicegen/internal/core/ports"
)

// Server serves /status and /metrics over a gorilla/mux router.
type Server struct {
	addr   string
	writer ports.ShardWriter
	srv    *http.Server
}

// New builds a Server bound to addr, reporting shard counts from writer.
func New(addr string, writer ports.ShardWriter) *Server {
	s := &Server{addr: addr, writer: writer}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

type shardStatus struct {
	ShardID int   `json:"shard_id"`
	Count   int64 `json:"count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	n := s.writer.ShardCount()
	shards := make([]shardStatus, 0, n)
	for i := 0; i < n; i++ {
		count, err := s.writer.Count(r.Context(), i)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		shards = append(shards, shardStatus{ShardID: i, Count: count})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(shards)
}

// Run listens until ctx is cancelled, then gracefully shuts down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
