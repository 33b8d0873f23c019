package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gocarina/gocsv"

	"github.com/JonMunkholm/txtfix/internal/logging"
	"github.com/JonMunkholm/txtfix/internal/store"
	"github.com/JonMunkholm/txtfix/internal/web/templates"
)

const defaultHistoryPage = 50

// historyRow is one line of the history CSV export.
type historyRow struct {
	ID                 string `csv:"id"`
	CreatedAt          string `csv:"created_at"`
	FileName           string `csv:"file_name"`
	Status             string `csv:"status"`
	Delimiter          string `csv:"delimiter"`
	Columns            int    `csv:"columns"`
	ChunkSize          int    `csv:"chunk_size"`
	OverflowMultiplier int    `csv:"overflow_multiplier"`
	InputEncoding      string `csv:"input_encoding"`
	OutputEncoding     string `csv:"output_encoding"`
	Lines              int64  `csv:"lines"`
	Accepted           int64  `csv:"valid_rows"`
	Rejected           int64  `csv:"reject_rows"`
	Bytes              int64  `csv:"bytes"`
	DurationMs         int64  `csv:"duration_ms"`
	Error              string `csv:"error"`
}

func toHistoryRows(runs []store.RunRecord) []*historyRow {
	rows := make([]*historyRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, &historyRow{
			ID:                 run.ID,
			CreatedAt:          run.CreatedAt.UTC().Format(time.RFC3339),
			FileName:           run.FileName,
			Status:             run.Status,
			Delimiter:          run.Delimiter,
			Columns:            run.Columns,
			ChunkSize:          run.ChunkSize,
			OverflowMultiplier: run.OverflowMultiplier,
			InputEncoding:      run.InputEncoding,
			OutputEncoding:     run.OutputEncoding,
			Lines:              run.Lines,
			Accepted:           run.Accepted,
			Rejected:           run.Rejected,
			Bytes:              run.Bytes,
			DurationMs:         run.DurationMs,
			Error:              run.Error,
		})
	}
	return rows
}

// handleHistory lists recent runs as JSON, or as a table fragment for HTMX.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultHistoryPage, s.cfg.Database.HistoryLimit)
	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}

	if isHTMX(r) {
		render(w, r, templates.HistoryTable(runs))
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleHistoryEntry returns one run.
func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleHistoryExport downloads run history as CSV.
func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, s.cfg.Database.HistoryLimit, s.cfg.Database.HistoryLimit)
	runs, err := s.service.History(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("repair_history_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := gocsv.Marshal(toHistoryRows(runs), w); err != nil {
		logging.FromContext(r.Context()).Error("history export failed", "error", err)
	}
}

// handleStatus reports process resources and job slots.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
