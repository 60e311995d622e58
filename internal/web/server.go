// Package web serves a read-only status API over the tracking catalog and
// relays live pipeline progress to websocket clients. A front end consumes
// this; the pipeline itself never depends on it.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"nebulapilot/internal/catalog"
	"nebulapilot/internal/queue"
)

// Server exposes catalog status over HTTP and progress over websocket.
type Server struct {
	addr     string
	store    *catalog.Store
	queue    *queue.Queue
	hub      *hub
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// TargetStatus is the per-target payload of the targets endpoint.
type TargetStatus struct {
	Name     string             `json:"name"`
	Status   string             `json:"status"`
	Goals    map[string]float64 `json:"goals"`
	Progress map[string]float64 `json:"progress"`
}

// event is one progress message pushed to websocket clients.
type event struct {
	Kind      string    `json:"kind"` // progress, structure, channel
	Percent   int       `json:"percent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Target    string    `json:"target,omitempty"`
	Filter    string    `json:"filter,omitempty"`
	Count     int       `json:"count,omitempty"`
	Structure any       `json:"structure,omitempty"`
	Time      time.Time `json:"time"`
}

// NewServer builds the status server. queue may be nil.
func NewServer(addr string, store *catalog.Store, q *queue.Queue, log *slog.Logger) *Server {
	return &Server{
		addr:  addr,
		store: store,
		queue: q,
		hub:   newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/targets", s.handleTargets).Methods(http.MethodGet)
	r.HandleFunc("/api/targets/{name}/frames", s.handleTargetFrames).Methods(http.MethodGet)
	r.HandleFunc("/api/queue", s.handleQueue).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.hub.run(ctx)

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("status server listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.Targets()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]TargetStatus, 0, len(targets))
	for _, t := range targets {
		progress, err := s.store.Progress(t.Name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, TargetStatus{
			Name:   t.Name,
			Status: t.Status,
			Goals: map[string]float64{
				"L": t.Goals.L, "R": t.Goals.R, "G": t.Goals.G, "B": t.Goals.B,
				"S": t.Goals.S, "H": t.Goals.H, "O": t.Goals.O,
			},
			Progress: progress,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleTargetFrames(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	frames, err := s.store.FramesForTarget(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, frames)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, []string{})
		return
	}
	writeJSON(w, s.queue.Items())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.register <- conn
	go s.readPump(conn)
}

// readPump drains inbound frames so pings and close frames are processed,
// and unregisters the client when the connection drops.
func (s *Server) readPump(conn *websocket.Conn) {
	defer func() {
		s.hub.unregister <- conn
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Progress implements organize.Observer.
func (s *Server) Progress(percent int, message string) {
	s.broadcast(event{Kind: "progress", Percent: percent, Message: message, Time: time.Now()})
}

// Structure implements organize.Observer.
func (s *Server) Structure(counts map[string]map[string]int) {
	s.broadcast(event{Kind: "structure", Structure: counts, Time: time.Now()})
}

// ChannelProgress implements organize.Observer.
func (s *Server) ChannelProgress(target, filter string, done int) {
	s.broadcast(event{Kind: "channel", Target: target, Filter: filter, Count: done, Time: time.Now()})
}

func (s *Server) broadcast(e event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	s.hub.send(data)
}
