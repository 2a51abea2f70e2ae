// Package dashboard serves a small live view of the reconstructed
// books and pipeline counters over HTTP and websocket.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	appconfig "taifexflow/config"
	"taifexflow/logger"
)

const indexPage = `<!doctype html>
<html>
<head><title>TaifexFlow</title></head>
<body>
<h1>TaifexFlow</h1>
<pre id="out">connecting...</pre>
<script>
const out = document.getElementById("out");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => { out.textContent = JSON.stringify(JSON.parse(ev.data), null, 2); };
ws.onclose = () => { out.textContent = "disconnected"; };
</script>
</body>
</html>`

// Server hosts the monitoring dashboard. A nil server (feature
// disabled) is safe to Start and Stop.
type Server struct {
	cfg    appconfig.DashboardConfig
	store  *Store
	log    *logger.Entry
	http   *http.Server
	wsUp   websocket.Upgrader
}

func NewServer(cfg appconfig.DashboardConfig, store *Store, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}
	return &Server{
		cfg:   cfg,
		store: store,
		log:   log.WithComponent("dashboard"),
		wsUp:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 8192},
	}
}

type snapshotPayload struct {
	Stats interface{} `json:"stats"`
	Books interface{} `json:"books"`
}

func (s *Server) snapshot() snapshotPayload {
	return snapshotPayload{Stats: s.store.Stats(), Books: s.store.BookList()}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	if s == nil {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexPage))
	})
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.snapshot())
	})
	mux.HandleFunc("/ws", s.handleWS)

	s.http = &http.Server{Addr: s.cfg.Address, Handler: mux}
	go func() {
		s.log.WithField("address", s.cfg.Address).Info("dashboard listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("dashboard server failed")
		}
	}()
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() {
	if s == nil || s.http == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = s.http.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUp.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for range ticker.C {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(s.snapshot()); err != nil {
			return
		}
	}
}
