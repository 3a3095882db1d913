package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/handler/chat"
	"github.com/zhouzirui/digital-human/internal/handler/state"
	middlewarePkg "github.com/zhouzirui/digital-human/internal/middleware"
	chatService "github.com/zhouzirui/digital-human/internal/service/chat"
)

func newBaseRouter(metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

// NewRouter wires the dialogue backend routes.
func NewRouter(chatSvc *chatService.Service, metrics http.Handler, logger zerolog.Logger) http.Handler {
	r := newBaseRouter(metrics)
	chat.New(chatSvc, logger).RegisterRoutes(r)
	return r
}

// NewStateRouter exposes the client runtime state to an external renderer.
func NewStateRouter(source state.Source, metrics http.Handler, logger zerolog.Logger) http.Handler {
	r := newBaseRouter(metrics)
	state.New(source, logger).RegisterRoutes(r)
	return r
}
