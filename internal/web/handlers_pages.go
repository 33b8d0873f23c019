package web

import (
	"errors"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/logging"
	"github.com/JonMunkholm/txtfix/internal/textenc"
	"github.com/JonMunkholm/txtfix/internal/web/templates"
)

// recentRuns is how many history entries the home page shows.
const recentRuns = 10

// handleHome renders the upload form and recent runs.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	defaults, enc := s.service.Defaults()

	history, err := s.service.History(r.Context(), recentRuns)
	if err != nil {
		logging.FromContext(r.Context()).Warn("failed to load history", "error", err)
	}

	page := templates.Page("Repair", templates.RepairForm(templates.FormData{
		Defaults:       defaults,
		InputEncoding:  enc.Input,
		OutputEncoding: enc.Output,
		Encodings:      textenc.Supported,
		Bounds:         formBounds,
		History:        history,
	}))
	render(w, r, page)
}

// handleJobPage renders live progress for a tracked job, or the history
// entry once the job has been forgotten.
func (s *Server) handleJobPage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	progress, err := s.service.GetProgress(jobID)
	if err == nil {
		render(w, r, templates.Page(progress.FileName, templates.JobPage(progress)))
		return
	}
	if !errors.Is(err, core.ErrJobNotFound) {
		fail(w, r, err)
		return
	}

	run, err := s.service.Run(r.Context(), jobID)
	if err != nil {
		fail(w, r, err)
		return
	}
	render(w, r, templates.Page(run.FileName, templates.RunSummary(run)))
}

func render(w http.ResponseWriter, r *http.Request, page templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Warn("render failed", "path", r.URL.Path, "error", err)
	}
}
