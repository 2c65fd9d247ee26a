package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/cors"

	"github.com/looploom/looploom/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server exposes the engine's command surface as a small JSON API so
// external tools (and the share UI) can poke the transport and layers.
type Server struct {
	engine *engine.Engine
}

func NewServer(e *engine.Engine) *Server {
	return &Server{engine: e}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/transport", s.getTransport).Methods("GET")
	r.HandleFunc("/v1/transport/start", s.startTransport).Methods("POST")
	r.HandleFunc("/v1/transport/stop", s.stopTransport).Methods("POST")
	r.HandleFunc("/v1/tempo", s.setTempo).Methods("POST")
	r.HandleFunc("/v1/layers", s.getLayers).Methods("GET")
	r.HandleFunc("/v1/layers/{id}/mute", s.setMute).Methods("POST")
	r.HandleFunc("/v1/layers/{id}/volume", s.setVolume).Methods("POST")
	r.HandleFunc("/v1/layers/{id}", s.removeLayer).Methods("DELETE")
	return cors.Default().Handler(r)
}

// ListenAndServe blocks serving the API on the given port.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("api: listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type transportState struct {
	Running       bool    `json:"running"`
	BPM           float64 `json:"bpm"`
	PositionTicks int64   `json:"position_ticks"`
	TimelineTicks int64   `json:"timeline_ticks"`
	TimelineSecs  float64 `json:"timeline_seconds"`
}

func (s *Server) getTransport(w http.ResponseWriter, _ *http.Request) {
	e := s.engine
	writeJSON(w, transportState{
		Running:       e.Clock.Running(),
		BPM:           e.Clock.BPM(),
		PositionTicks: int64(e.Clock.PositionTicks()),
		TimelineTicks: int64(e.TimelineDuration()),
		TimelineSecs:  e.TimelineSeconds(),
	})
}

func (s *Server) startTransport(w http.ResponseWriter, _ *http.Request) {
	s.engine.Play()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stopTransport(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setTempo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BPM float64 `json:"bpm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.SetTempo(body.BPM)
	w.WriteHeader(http.StatusNoContent)
}

type layerInfo struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	EffectiveDur int64   `json:"effective_duration"`
	VolumeDB     float64 `json:"volume_db"`
	Muted        bool    `json:"muted"`
	Solo         bool    `json:"solo"`
	Class        string  `json:"class"`
	EventCount   int     `json:"event_count"`
}

func (s *Server) getLayers(w http.ResponseWriter, _ *http.Request) {
	layers := s.engine.Layers.Layers()
	out := make([]layerInfo, 0, len(layers))
	for _, l := range layers {
		out = append(out, layerInfo{
			ID:           l.ID,
			Name:         l.Name,
			EffectiveDur: int64(l.EffectiveDuration()),
			VolumeDB:     l.VolumeDB,
			Muted:        l.Muted,
			Solo:         l.Solo,
			Class:        l.Class.String(),
			EventCount:   len(l.Events),
		})
	}
	writeJSON(w, out)
}

func (s *Server) setMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.SetMuted(mux.Vars(r)["id"], body.Muted)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VolumeDB float64 `json:"volume_db"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.SetVolume(mux.Vars(r)["id"], body.VolumeDB)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeLayer(w http.ResponseWriter, r *http.Request) {
	s.engine.RemoveLayer(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
