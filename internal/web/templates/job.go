package templates

import (
	"context"
	"errors"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/txtfix/internal/core"
	"github.com/JonMunkholm/txtfix/internal/store"
)

// JobPage shows live progress of a job and, once it ends, the summary and
// download links. Progress arrives over server-sent events.
func JobPage(p core.JobProgress) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.raw(`<section id="job" data-job-id="`)
		h.text(p.JobID)
		h.raw(`"><h2>`)
		h.text(p.FileName)
		h.raw(`</h2><p>Status: <strong id="phase">`)
		h.text(string(p.Phase))
		h.raw(`</strong></p><div class="bar"><div id="bar"></div></div>`)
		h.raw(`<table><tbody>`)
		h.raw(`<tr><th>Lines read</th><td id="lines">`)
		h.num("%d", p.Lines)
		h.raw(`</td></tr><tr><th>Valid rows</th><td id="accepted">`)
		h.num("%d", p.Accepted)
		h.raw(`</td></tr><tr><th>Reject rows</th><td id="rejected">`)
		h.num("%d", p.Rejected)
		h.raw(`</td></tr><tr><th>Throughput</th><td id="rate">`)
		h.num("%.2f", p.MBPerSec)
		h.raw(` MB/s</td></tr></tbody></table>`)
		h.raw(`<div id="error"></div>`)
		h.raw(`<p id="downloads" hidden><a id="dl-clean" href="#">Download clean CSV</a> | <a id="dl-rejects" href="#">Download rejects</a></p>`)
		h.raw(`<button id="cancel" class="secondary" type="button">Cancel</button></section>`)
		h.raw(jobScript)
	})
}

const jobScript = `<script>
(function () {
  var root = document.getElementById('job');
  var id = encodeURIComponent(root.dataset.jobId);
  var base = '/api/jobs/' + id;
  function set(name, v) { document.getElementById(name).textContent = v; }
  function show(p) {
    set('phase', p.phase);
    set('lines', p.lines);
    set('accepted', p.accepted);
    set('rejected', p.rejected);
    set('rate', p.mb_per_sec.toFixed(2) + ' MB/s');
    if (p.bytes_total > 0) {
      document.getElementById('bar').style.width = Math.min(100, p.bytes_read * 100 / p.bytes_total) + '%';
    }
  }
  function finish(res) {
    set('phase', res.phase);
    document.getElementById('cancel').hidden = true;
    if (res.user_error) {
      var e = document.getElementById('error');
      e.className = 'alert';
      e.textContent = res.user_error.message + ' ' + res.user_error.action + ' (' + res.user_error.code + ')';
    }
    if (res.phase === 'complete' || res.phase === 'cancelled') {
      document.getElementById('bar').style.width = '100%';
      document.getElementById('dl-clean').href = base + '/download/clean';
      document.getElementById('dl-clean').textContent = 'Download ' + res.clean_name;
      document.getElementById('dl-rejects').href = base + '/download/rejects';
      document.getElementById('dl-rejects').textContent = 'Download ' + res.rejects_name;
      document.getElementById('downloads').hidden = false;
    }
  }
  var es = new EventSource(base + '/progress');
  es.addEventListener('progress', function (ev) { show(JSON.parse(ev.data)); });
  es.addEventListener('complete', function () {
    es.close();
    fetch(base + '/result').then(function (r) { return r.json(); }).then(finish);
  });
  document.getElementById('cancel').addEventListener('click', function () {
    fetch(base + '/cancel', { method: 'POST' });
  });
})();
</script>`

// RunSummary shows a finished run from history after its outputs have
// expired.
func RunSummary(run store.RunRecord) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<section><h2>`)
		h.text(run.FileName)
		h.raw(`</h2><p>Status: <strong class="status-`)
		h.text(run.Status)
		h.raw(`">`)
		h.text(run.Status)
		h.raw(`</strong> on `)
		h.text(run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		h.raw(`</p><table><tbody><tr><th>Lines read</th><td>`)
		h.num("%d", run.Lines)
		h.raw(`</td></tr><tr><th>Valid rows</th><td>`)
		h.num("%d", run.Accepted)
		h.raw(`</td></tr><tr><th>Reject rows</th><td>`)
		h.num("%d", run.Rejected)
		h.raw(`</td></tr><tr><th>Columns</th><td>`)
		h.num("%d", run.Columns)
		h.raw(`</td></tr><tr><th>Delimiter</th><td><code>`)
		h.text(run.Delimiter)
		h.raw(`</code></td></tr><tr><th>Duration</th><td>`)
		h.num("%.2fs", float64(run.DurationMs)/1000)
		h.raw(`</td></tr></tbody></table>`)
		if run.Error != "" {
			msg := core.MapError(errors.New(run.Error))
			h.render(ctx, ErrorAlert(msg.Message, msg.Action, msg.Code))
		}
		h.raw(`<p>Outputs of this run are no longer available.</p></section>`)
	})
}
