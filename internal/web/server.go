// Package web exposes the control surface over HTTP and streams status to
// websocket clients.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/guidoenr/lumen/internal/config"
	"github.com/guidoenr/lumen/internal/params"
	"github.com/guidoenr/lumen/internal/pipeline"
	"github.com/guidoenr/lumen/internal/safety"
)

//go:embed index.html
var indexHTML []byte

const (
	defaultStatusInterval = 100 * time.Millisecond
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = pongWait * 9 / 10
	clientBuffer          = 16
	maxBodyBytes          = 1 << 16
)

// Controller is the running pipeline as seen by the server. Every mutation
// goes through Submit so it lands on a frame boundary.
type Controller interface {
	Submit(cmd pipeline.Command) bool
	Status() (pipeline.Status, bool)
	// Settings returns the current settings in saved form.
	Settings() config.SavedConfig
}

// Config controls the server.
type Config struct {
	Addr string
	// ConfigPath is where POST /api/save writes. Empty uses
	// config.DefaultPath.
	ConfigPath string
	// StatusInterval is the websocket push period.
	StatusInterval time.Duration
	Log            logrus.FieldLogger
}

// Server serves the control API.
type Server struct {
	ctrl     Controller
	cfg      Config
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer builds the handlers. Call Run to listen.
func NewServer(ctrl Controller, cfg Config) *Server {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = config.DefaultPath()
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		ctrl:    ctrl,
		cfg:     cfg,
		log:     log.WithField("component", "web"),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/safety", s.handleSafety)
	s.mux.HandleFunc("POST /api/safety", s.handleSetSafety)
	s.mux.HandleFunc("POST /api/emergency", s.handleEmergency)
	s.mux.HandleFunc("POST /api/mode", s.handleMode)
	s.mux.HandleFunc("GET /api/levels", s.handleLevels)
	s.mux.HandleFunc("GET /api/modes", s.handleModes)
	s.mux.HandleFunc("POST /api/save", s.handleSave)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run listens on cfg.Addr and pushes status until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	go s.statusLoop(ctx)
	s.log.WithField("addr", s.cfg.Addr).Info("control server listening")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.ctrl.Status()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSafety(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.ctrl.Status()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	writeJSON(w, http.StatusOK, st.Safety)
}

type safetyRequest struct {
	Level *string `json:"level"`
	Cycle bool    `json:"cycle"`
}

func (s *Server) handleSetSafety(w http.ResponseWriter, r *http.Request) {
	var req safetyRequest
	if !decode(w, r, &req) {
		return
	}
	switch {
	case req.Cycle:
		s.submit(w, pipeline.CycleSafetyLevel())
	case req.Level != nil:
		level, err := safety.ParseLevel(*req.Level)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.submit(w, pipeline.SetSafetyLevel(level))
	default:
		writeError(w, http.StatusBadRequest, `expected "level" or "cycle"`)
	}
}

type emergencyRequest struct {
	Active *bool `json:"active"`
	Toggle bool  `json:"toggle"`
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if !decode(w, r, &req) {
		return
	}
	switch {
	case req.Toggle:
		s.submit(w, pipeline.ToggleEmergency())
	case req.Active != nil && *req.Active:
		s.submit(w, pipeline.EmergencyStop())
	case req.Active != nil:
		s.submit(w, pipeline.Resume())
	default:
		writeError(w, http.StatusBadRequest, `expected "active" or "toggle"`)
	}
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Mode == "" {
		writeError(w, http.StatusBadRequest, `expected "mode"`)
		return
	}
	mode, err := params.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.submit(w, pipeline.SetMode(mode))
}

// LevelInfo describes one safety level for clients.
type LevelInfo struct {
	Name        string             `json:"name"`
	Label       string             `json:"label"`
	Multipliers params.Multipliers `json:"multipliers"`
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	levels := safety.Levels()
	out := make([]LevelInfo, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelInfo{
			Name:        l.String(),
			Label:       safety.Label(l),
			Multipliers: safety.MultipliersFor(l),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, append([]string{params.ModeAuto.String()}, params.ModeNames()...))
}

func (s *Server) handleSave(w http.ResponseWriter, _ *http.Request) {
	settings := s.ctrl.Settings()
	if err := config.Save(s.cfg.ConfigPath, settings); err != nil {
		s.log.WithError(err).Error("save settings")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithField("path", s.cfg.ConfigPath).Info("settings saved")
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": s.cfg.ConfigPath})
}

func (s *Server) submit(w http.ResponseWriter, cmd pipeline.Command) {
	if !s.ctrl.Submit(cmd) {
		writeError(w, http.StatusServiceUnavailable, "command queue full")
		return
	}
	s.log.WithField("command", cmd.Kind.String()).Debug("command queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "command": cmd.Kind.String()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
