package game

import (
	"log/slog"
	"net/http"

	"example.com/degenpizza/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type Verifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Server is the websocket face of a Service.
type Server struct {
	svc      *Service
	verifier Verifier
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(svc *Service, verifier Verifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		svc:      svc,
		verifier: verifier,
		log:      log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/ws", s.handleWS)
}
