package httpapi

import (
	"log/slog"
	"net/http"

	"example.com/degenpizza/internal/game"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterDeps struct {
	Games    *game.Service
	Stats    StatsReader // optional
	Verifier Verifier
	WS       *game.Server // optional
	Log      *slog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h := &GameHandler{Games: d.Games, Stats: d.Stats}

	r.Get("/api/game", h.State)
	r.Get("/api/games/{number}", h.FinishedGame)
	r.Post("/api/commitment", h.Commitment)
	r.Get("/api/players/{address}/stats", h.PlayerStats)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier))
		r.Post("/api/game/join", h.Join)
		r.Post("/api/game/leave", h.Leave)
		r.Post("/api/game/commit", h.Commit)
		r.Post("/api/game/reveal", h.Reveal)
		r.With(RequireRole(game.RoleRelayer)).Post("/api/game/rounds/{round}/close", h.CloseRound)
	})

	if d.WS != nil {
		d.WS.RegisterRoutes(r)
	}
	return r
}
