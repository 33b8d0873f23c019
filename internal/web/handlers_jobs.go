package web

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/logging"
)

// sseKeepAlive is how often a comment is sent on an idle progress stream.
const sseKeepAlive = 15 * time.Second

// jobAccepted is the response to a started repair.
type jobAccepted struct {
	JobID       string `json:"job_id"`
	PageURL     string `json:"page_url"`
	ProgressURL string `json:"progress_url"`
	ResultURL   string `json:"result_url"`
}

// handleRepair starts a repair job from a multipart upload. The uploaded
// file is streamed by the job; the service closes it when the job ends.
func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, err, statusFor(err, http.StatusBadRequest))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	if header.Size == 0 {
		file.Close()
		respondError(w, r, core.ErrEmptyFile, http.StatusBadRequest)
		return
	}

	defaults, enc := s.service.Defaults()
	params, enc, err := parseRepairForm(r, defaults, enc)
	if err != nil {
		file.Close()
		fail(w, r, err)
		return
	}

	jobID, err := s.service.StartJob(r.Context(), core.JobRequest{
		FileName:  header.Filename,
		Reader:    file,
		Size:      header.Size,
		Params:    params,
		Encodings: enc,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	logging.WithFields(r.Context(), "job_id", jobID).Info("repair job accepted",
		"file", header.Filename,
		"size", header.Size,
		"columns", params.Columns,
	)

	page := "/jobs/" + jobID
	switch {
	case isHTMX(r):
		w.Header().Set("HX-Redirect", page)
		w.WriteHeader(http.StatusAccepted)
	case prefersHTML(r):
		http.Redirect(w, r, page, http.StatusSeeOther)
	default:
		base := "/api/jobs/" + jobID
		writeJSON(w, http.StatusAccepted, jobAccepted{
			JobID:       jobID,
			PageURL:     page,
			ProgressURL: base + "/progress",
			ResultURL:   base + "/result",
		})
	}
}

// handlePreview returns the first lines of an upload so the delimiter and
// column count can be checked before repairing.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, r, err, statusFor(err, http.StatusBadRequest))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	delim := unescapeDelimiter(r.FormValue("delimiter"))
	result, err := s.service.Preview(file, r.FormValue("input_encoding"), delim)
	if err != nil {
		respondError(w, r, err, statusFor(err, http.StatusUnprocessableEntity))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleJobProgress streams job progress via Server-Sent Events.
//
// The event ID is the line count, so a reconnecting client that sends
// Last-Event-ID (or ?lastEventId=) skips states it has already seen. The
// stream ends with a complete event once the job finishes.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("lastEventId")
	}
	resumeFrom, resuming := int64(0), false
	if lastID != "" {
		if v, err := strconv.ParseInt(lastID, 10, 64); err == nil {
			resumeFrom, resuming = v, true
		}
	}

	progressCh, err := s.service.SubscribeProgress(jobID)
	if err != nil {
		fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		logging.FromContext(r.Context()).Error("streaming not supported", "error", err)
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}
			if resuming && progress.Lines <= resumeFrom && !progress.Phase.Finished() {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Lines, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleJobResult returns the summary of a finished job. It waits for a
// running job unless called with ?wait=false.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	if wait, err := strconv.ParseBool(r.URL.Query().Get("wait")); err == nil && !wait {
		p, err := s.service.GetProgress(jobID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if !p.Phase.Finished() {
			fail(w, r, fmt.Errorf("%w: %s", core.ErrJobRunning, jobID))
			return
		}
	}

	result, err := s.service.GetResult(r.Context(), jobID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelJob cancels a running job. Outputs written so far stay
// downloadable.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.CancelJob(jobID); err != nil {
		fail(w, r, err)
		return
	}
	logging.WithFields(r.Context(), "job_id", jobID).Info("repair job cancel requested")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling", "job_id": jobID})
}

// handleDownload serves a job's clean or rejects output.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	kind, err := core.ParseArtifactKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, err, http.StatusNotFound)
		return
	}

	f, name, err := s.service.OpenArtifact(jobID, kind)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fail(w, r, err)
		return
	}

	contentType := "text/csv"
	if kind == core.ArtifactRejects {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
