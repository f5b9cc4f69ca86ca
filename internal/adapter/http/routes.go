package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the analysis API on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/analysis", func(r chi.Router) {
		r.Post("/", h.StartAnalysis)
		r.Get("/{runId}/status", h.GetStatus)
		r.Post("/{runId}/score-file", h.ScoreFile)
		r.Get("/{runId}/file-content", h.FileContent)
	})
}
