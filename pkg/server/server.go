package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presale/pkg/config"
	"presale/pkg/logging"
	"presale/pkg/models"
	"presale/pkg/phase"
	"presale/pkg/watcher"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Session reports the wallet session state.
type Session interface {
	State() models.ConnectionState
}

// BusyReporter reports whether a transaction is in flight.
type BusyReporter interface {
	Busy() bool
}

// Status is the JSON body of /api/status and the initial /ws message.
type Status struct {
	Phase      phase.View             `json:"phase"`
	Stats      *models.StatsSnapshot  `json:"stats"`
	Connection models.ConnectionState `json:"connection"`
	Position   *models.Position       `json:"position"`
	Busy       bool                   `json:"busy"`
	Logs       []models.LogEntry      `json:"logs"`
}

type Server struct {
	cfg     *config.SaleConfig
	watcher *watcher.Watcher
	session Session
	busy    BusyReporter
	log     *zap.Logger
	now     func() time.Time

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	mux     *http.ServeMux
}

func NewServer(cfg *config.SaleConfig, w *watcher.Watcher, session Session, busy BusyReporter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		watcher: w,
		session: session,
		busy:    busy,
		log:     log,
		now:     time.Now,
		clients: make(map[*websocket.Conn]bool),
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/ws", s.handleWS)
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	go s.listenToWatcher(ctx, s.watcher.Subscribe())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: s.mux, ReadHeaderTimeout: writeWait}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info(fmt.Sprintf("API Server listening on :%d", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) status() Status {
	st := Status{
		Phase: phase.Render(s.cfg, s.now().Unix()),
		Logs:  s.watcher.Logs(),
	}
	if snap, ok := s.watcher.Stats(); ok {
		st.Stats = &snap
	}
	if pos, ok := s.watcher.Position(); ok {
		st.Position = &pos
	}
	if s.session != nil {
		st.Connection = s.session.State()
	} else {
		st.Connection = models.ConnectionState{Status: models.StatusDisconnected}
	}
	if s.busy != nil {
		st.Busy = s.busy.Busy()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.status())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// The initial state is written before the client is registered so it
	// always arrives first.
	s.mu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(watcher.Event{Type: "initial", Data: s.status()})
	if err == nil {
		s.clients[conn] = true
	}
	s.mu.Unlock()
	if err != nil {
		return
	}

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) listenToWatcher(ctx context.Context, sub watcher.Subscriber) {
	defer logging.Recover(s.log, "status server")
	defer s.watcher.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub:
			if !ok {
				return
			}
			s.broadcast(event)
		}
	}
}

func (s *Server) broadcast(event watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for client := range s.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteJSON(event); err != nil {
			_ = client.Close()
			delete(s.clients, client)
		}
	}
}
