// Package webhook exposes the HTTP command surface for scened: scene
// activation, custom override, timeshift and recompute, each fanned out
// to a batch of devices through the manager.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"scened/internal/manager"
)

// Server is the HTTP command server.
type Server struct {
	addr       string
	manager    *manager.Manager
	httpServer *http.Server
}

// NewServer creates a new command server.
func NewServer(host string, port int, mgr *manager.Manager) *Server {
	return &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		manager: mgr,
	}
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /scenes/activate", s.handleSceneActivate)
	mux.HandleFunc("POST /scenes/deactivate", s.handleSceneDeactivate)
	mux.HandleFunc("POST /custom/activate", s.handleCustomActivate)
	mux.HandleFunc("POST /custom/deactivate", s.handleCustomDeactivate)
	mux.HandleFunc("POST /timeshift/set", s.handleTimeshiftSet)
	mux.HandleFunc("POST /timeshift/shift", s.handleTimeshiftShift)
	mux.HandleFunc("POST /recompute", s.handleRecompute)
	mux.HandleFunc("GET /devices", s.handleDevices)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	log.Info().Str("addr", s.addr).Msg("Starting webhook server")

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Webhook server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// sceneRequest addresses a named scene on a batch of devices. An empty
// device list targets all registered devices.
type sceneRequest struct {
	Devices []string `json:"devices"`
	Scene   string   `json:"scene"`
}

// devicesRequest addresses a batch of devices.
type devicesRequest struct {
	Devices []string `json:"devices"`
}

// timeshiftRequest carries an absolute offset or a delta, in seconds.
type timeshiftRequest struct {
	Devices []string `json:"devices"`
	Seconds int      `json:"seconds"`
	Delta   int      `json:"delta"`
}

func (s *Server) handleSceneActivate(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Scene == "" {
		http.Error(w, `{"error":"scene is required"}`, http.StatusBadRequest)
		return
	}
	writeResults(w, s.manager.SetSceneActive(req.Devices, req.Scene))
}

func (s *Server) handleSceneDeactivate(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Scene == "" {
		http.Error(w, `{"error":"scene is required"}`, http.StatusBadRequest)
		return
	}
	writeResults(w, s.manager.SetSceneInactive(req.Devices, req.Scene))
}

func (s *Server) handleCustomActivate(w http.ResponseWriter, r *http.Request) {
	var req devicesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeResults(w, s.manager.SetCustomActive(req.Devices))
}

func (s *Server) handleCustomDeactivate(w http.ResponseWriter, r *http.Request) {
	var req devicesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeResults(w, s.manager.SetCustomInactive(req.Devices))
}

func (s *Server) handleTimeshiftSet(w http.ResponseWriter, r *http.Request) {
	var req timeshiftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeResults(w, s.manager.SetTimeshift(req.Devices, req.Seconds))
}

func (s *Server) handleTimeshiftShift(w http.ResponseWriter, r *http.Request) {
	var req timeshiftRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeResults(w, s.manager.ShiftTimeshift(req.Devices, req.Delta))
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	s.manager.RecomputeAll()
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	type deviceInfo struct {
		DeviceID     string   `json:"device_id"`
		Profile      string   `json:"profile"`
		CurrentScene string   `json:"current_scene"`
		ActiveScenes []string `json:"active_scenes"`
		Timeshift    int      `json:"timeshift"`
	}

	var out []deviceInfo
	for _, id := range s.manager.DeviceIDs() {
		dev, ok := s.manager.Device(id)
		if !ok {
			continue
		}
		out = append(out, deviceInfo{
			DeviceID:     id,
			Profile:      dev.Profile.Name,
			CurrentScene: dev.Entity.CurrentScene(),
			ActiveScenes: dev.Entity.ActiveScenes(),
			Timeshift:    dev.Entity.Timeshift(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decodeJSON decodes the request body into dst. Writes a 400 response
// and returns false on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("Malformed request body")
		http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

func writeResults(w http.ResponseWriter, results []manager.DeviceResult) {
	writeJSON(w, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
