// Package syncserver is the relay that sequences, stores and fans out opaque update payloads per room. It never decodes
// a payload; rooms are identified only by the discovery key that clients present in their Hello.
package syncserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type Server struct {
	config   Config
	log      Log
	hub      *Hub
	upgrader websocket.Upgrader
}

func New(config Config, log Log) *Server {
	return &Server{
		config: config,
		log:    log,
		hub:    NewHub(log, config.QueueSize),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			// clients are native apps and browsers on arbitrary origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/sync").HandlerFunc(s.syncRoom)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthz)
	r.Methods(http.MethodGet).Path("/rooms/{room}/stats").HandlerFunc(s.roomStats)
	return r
}

func (s *Server) healthz(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/plain")
	_, _ = writer.Write([]byte("ok\n"))
}

type roomStatsResponse struct {
	Room string `json:"room"`
	RoomStats
	Members int `json:"members"`
}

func (s *Server) roomStats(writer http.ResponseWriter, request *http.Request) {
	room := mux.Vars(request)["room"]
	stats, err := s.log.Stats(request.Context(), room)
	if err != nil {
		slog.Error("failed to read stats", "room", room, "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(roomStatsResponse{
		Room:      room,
		RoomStats: stats,
		Members:   s.hub.MemberCount(room),
	}); err != nil {
		slog.Error("failed to write stats", "err", err)
	}
}
