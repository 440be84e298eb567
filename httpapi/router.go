// Package httpapi exposes a workflow.Service over five endpoints on a
// github.com/go-chi/chi/v5 router.
package httpapi

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowforge/agentcore/workflow"
)

// NewRouter mounts POST /chat, POST /chat/stream, POST /chat/resume,
// POST /chat/retry, and GET /chat/history/{thread_id} onto a fresh chi
// router backed by svc.
func NewRouter(svc *workflow.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	h := &handler{svc: svc, logger: log.Default()}
	r.Post("/chat", h.chat)
	r.Post("/chat/stream", h.chatStream)
	r.Post("/chat/resume", h.resume)
	r.Post("/chat/retry", h.retry)
	r.Get("/chat/history/{thread_id}", h.history)
	return r
}

type handler struct {
	svc    *workflow.Service
	logger *log.Logger
}
