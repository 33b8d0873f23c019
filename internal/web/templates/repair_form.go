package templates

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/txtfix/internal/repair"
	"github.com/JonMunkholm/txtfix/internal/store"
)

// Bounds are the limits the form enforces on repair parameters.
type Bounds struct {
	MinChunk, MaxChunk           int
	MinMultiplier, MaxMultiplier int
}

// FormData fills the upload form.
type FormData struct {
	Defaults       repair.Params
	InputEncoding  string
	OutputEncoding string
	Encodings      []string
	Bounds         Bounds
	History        []store.RunRecord
}

// RepairForm is the home page: upload form plus recent runs.
func RepairForm(d FormData) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<section><h2>Repair a file</h2>`)
		h.raw(`<form method="post" action="/api/repair" enctype="multipart/form-data">`)
		h.raw(`<label for="file">Delimited text file (.txt, .gz)</label>`)
		h.raw(`<input id="file" name="file" type="file" required>`)
		h.raw(`<div class="grid">`)

		h.raw(`<div><label for="delimiter">Delimiter</label><input id="delimiter" name="delimiter" maxlength="8" required value="`)
		h.text(d.Defaults.Delimiter)
		h.raw(`"></div>`)

		numberInput(h, "columns", "Columns", d.Defaults.Columns, 1, 0)
		numberInput(h, "chunk_size", "Chunk size", d.Defaults.ChunkSize, d.Bounds.MinChunk, d.Bounds.MaxChunk)
		numberInput(h, "overflow_multiplier", "Overflow multiplier", d.Defaults.OverflowMultiplier,
			d.Bounds.MinMultiplier, d.Bounds.MaxMultiplier)
		encodingSelect(h, "input_encoding", "Input encoding", d.Encodings, d.InputEncoding)
		encodingSelect(h, "output_encoding", "Output encoding", d.Encodings, d.OutputEncoding)

		h.raw(`</div><button type="submit">Repair</button></form></section>`)

		h.raw(`<section><h2>Recent runs</h2>`)
		h.render(ctx, HistoryTable(d.History))
		h.raw(`<p><a href="/api/history/export">Export history as CSV</a></p></section>`)
	})
}

func numberInput(h *html, name, label string, value, min, max int) {
	h.raw(`<div><label for="` + name + `">`)
	h.text(label)
	h.raw(`</label><input type="number" required id="` + name + `" name="` + name + `"`)
	h.raw(` min="` + strconv.Itoa(min) + `"`)
	if max > 0 {
		h.raw(` max="` + strconv.Itoa(max) + `"`)
	}
	h.raw(` value="` + strconv.Itoa(value) + `"></div>`)
}

func encodingSelect(h *html, name, label string, options []string, selected string) {
	h.raw(`<div><label for="` + name + `">`)
	h.text(label)
	h.raw(`</label><select id="` + name + `" name="` + name + `">`)
	for _, opt := range options {
		h.raw(`<option value="`)
		h.text(opt)
		h.raw(`"`)
		if opt == selected {
			h.raw(" selected")
		}
		h.raw(">")
		h.text(opt)
		h.raw("</option>")
	}
	h.raw(`</select></div>`)
}

// HistoryTable lists finished runs, newest first.
func HistoryTable(runs []store.RunRecord) templ.Component {
	return component(func(_ context.Context, h *html) {
		if len(runs) == 0 {
			h.raw(`<p>No runs yet.</p>`)
			return
		}
		h.raw(`<table><thead><tr><th>When</th><th>File</th><th>Status</th><th>Valid</th><th>Rejected</th><th>Columns</th><th>Duration</th></tr></thead><tbody>`)
		for _, run := range runs {
			h.raw("<tr><td>")
			h.text(run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			h.raw("</td><td>")
			h.text(run.FileName)
			h.raw(`</td><td class="status-`)
			h.text(run.Status)
			h.raw(`">`)
			h.text(run.Status)
			h.raw("</td><td>")
			h.num("%d", run.Accepted)
			h.raw("</td><td>")
			h.num("%d", run.Rejected)
			h.raw("</td><td>")
			h.num("%d", run.Columns)
			h.raw("</td><td>")
			h.num("%.2fs", float64(run.DurationMs)/1000)
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")
	})
}
