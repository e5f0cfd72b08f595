// Package live streams in-progress results to websocket clients.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NodePath81/cfspeed/internal/engine"
	"github.com/NodePath81/cfspeed/internal/metrics"
	"github.com/NodePath81/cfspeed/internal/util"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// Source yields the current results. *engine.Results satisfies it.
type Source interface {
	Snapshot() engine.Snapshot
}

type snapshotMessage struct {
	SchemaVersion int    `json:"schema_version"`
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp"`
	engine.Snapshot
}

// Server pushes a snapshot to every client each Interval.
type Server struct {
	Source   Source
	Interval time.Duration
	Logger   util.Logger
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/metrics", metrics.NewMetrics(s.Source).Handler)
	return mux
}

// ListenAndServe serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.logger().Info("live results listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) message() []byte {
	data, _ := json.Marshal(snapshotMessage{
		SchemaVersion: 1,
		Type:          "snapshot",
		Timestamp:     time.Now().UnixMilli(),
		Snapshot:      s.Source.Snapshot(),
	})
	return data
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.message())
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	logger := s.logger().With("remote", r.RemoteAddr)
	logger.Debug("live client connected")

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	var closeOnce sync.Once
	done := make(chan struct{})
	cleanup := func() {
		closeOnce.Do(func() {
			close(done)
			_ = conn.Close()
			logger.Debug("live client disconnected")
		})
	}

	go func() {
		defer cleanup()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cleanup()
		interval := s.Interval
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		pings := time.NewTicker(wsPingInterval)
		defer pings.Stop()

		send := func() bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			return conn.WriteMessage(websocket.TextMessage, s.message()) == nil
		}
		if !send() {
			return
		}
		for {
			select {
			case <-done:
				return
			case <-pings.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-ticker.C:
				if !send() {
					return
				}
			}
		}
	}()
}

func (s *Server) logger() util.Logger {
	if s.Logger == nil {
		return util.DiscardLogger()
	}
	return s.Logger
}
